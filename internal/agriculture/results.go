package agriculture

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/terminal-bench/stochopt/pkg/solver"
	"github.com/terminal-bench/stochopt/pkg/stochastic"
)

// StatusOptimal is the only status a synthesized PlanResult carries;
// every non-optimal outcome surfaces as an error instead.
const StatusOptimal = "optimal"

// PlanResult is the business view of an optimal plan.
type PlanResult struct {
	Status         string           `json:"status"`
	ObjectiveValue float64          `json:"objective_value"`
	Stage1         Stage1Decisions  `json:"stage1_decisions"`
	Stage2         []ScenarioResult `json:"stage2_decisions"`
	Financial      FinancialSummary `json:"financial_summary"`
	Risk           RiskMetrics      `json:"risk_metrics"`
}

// Stage1Decisions reports the committed acreage.
type Stage1Decisions struct {
	PlantingPlan       map[string]float64 `json:"planting_plan"`
	TotalLandUsed      float64            `json:"total_land_used"`
	LandUtilizationPct float64            `json:"land_utilization_pct"`
	PlantingCost       float64            `json:"planting_cost"`
}

// ScenarioResult reports one scenario's recourse, keyed by crop name.
// Crops without a vendor or shortage channel report zero in those maps.
type ScenarioResult struct {
	ScenarioName    string             `json:"scenario_name"`
	Probability     float64            `json:"probability"`
	YieldRealized   map[string]float64 `json:"yield_realized"`
	VendorPurchases map[string]float64 `json:"vendor_purchases"`
	ContractSales   map[string]float64 `json:"contract_sales"`
	ProcessingSales map[string]float64 `json:"processing_sales"`
	RetailSales     map[string]float64 `json:"retail_sales"`
	Waste           map[string]float64 `json:"waste"`
	Shortages       map[string]float64 `json:"shortages"`
	Revenue         float64            `json:"revenue"`
	Cost            float64            `json:"cost"`
	Profit          float64            `json:"profit"`
}

// FinancialSummary aggregates profit across scenarios. PlantingCost is the
// first-stage spend, charged once regardless of which scenario realizes.
type FinancialSummary struct {
	PlantingCost    float64 `json:"planting_cost"`
	ExpectedProfit  float64 `json:"expected_profit"`
	WorstCaseProfit float64 `json:"worst_case_profit"`
	BestCaseProfit  float64 `json:"best_case_profit"`
	ProfitRange     float64 `json:"profit_range"`
}

// RiskMetrics summarizes the profit distribution over scenarios.
type RiskMetrics struct {
	ExpectedProfit float64 `json:"expected_profit"`
	StdDeviation   float64 `json:"std_deviation"`
	MinProfit      float64 `json:"min_profit"`
	MaxProfit      float64 `json:"max_profit"`
	ProfitRange    float64 `json:"profit_range"`
}

// synthesize recomputes the business view of an optimal solution: per-crop
// allocations, per-scenario channel flows and profit, and the financial and
// risk summaries. Per-scenario profits are recomputed from prices and flows
// rather than read back from the solver objective.
func synthesize(in *Input, sol *solver.Solution) (*PlanResult, error) {
	plan := make(map[string]float64, len(in.Crops))
	var landUsed, plantingCost float64
	for i := range in.Crops {
		c := &in.Crops[i]
		acres := sol.Values[acresVar(c.Name)]
		plan[c.Name] = acres
		landUsed += c.landUse() * acres
		plantingCost += c.MaterialsCostPerAcre * acres
	}

	utilization := 0.0
	if in.FarmResources.TotalLand > 0 {
		utilization = landUsed / in.FarmResources.TotalLand * 100
	}

	stage2 := make([]ScenarioResult, 0, len(in.Scenarios))
	probs := make([]float64, 0, len(in.Scenarios))
	profits := make([]float64, 0, len(in.Scenarios))
	for _, sc := range in.Scenarios {
		res := scenarioResult(in, sc, plan, sol, plantingCost)
		stage2 = append(stage2, res)
		probs = append(probs, sc.Probability)
		profits = append(profits, res.Profit)
	}

	expected := floats.Dot(probs, profits)
	variance := stat.MomentAbout(2, profits, expected, probs)
	minProfit := floats.Min(profits)
	maxProfit := floats.Max(profits)

	result := &PlanResult{
		Status:         StatusOptimal,
		ObjectiveValue: sol.Objective,
		Stage1: Stage1Decisions{
			PlantingPlan:       plan,
			TotalLandUsed:      landUsed,
			LandUtilizationPct: utilization,
			PlantingCost:       plantingCost,
		},
		Stage2: stage2,
		Financial: FinancialSummary{
			PlantingCost:    plantingCost,
			ExpectedProfit:  expected,
			WorstCaseProfit: minProfit,
			BestCaseProfit:  maxProfit,
			ProfitRange:     maxProfit - minProfit,
		},
		Risk: RiskMetrics{
			ExpectedProfit: expected,
			StdDeviation:   math.Sqrt(variance),
			MinProfit:      minProfit,
			MaxProfit:      maxProfit,
			ProfitRange:    maxProfit - minProfit,
		},
	}
	if err := result.checkFinite(); err != nil {
		return nil, err
	}
	return result, nil
}

func scenarioResult(in *Input, sc stochastic.Scenario, plan map[string]float64, sol *solver.Solution, plantingCost float64) ScenarioResult {
	n := len(in.Crops)
	res := ScenarioResult{
		ScenarioName:    sc.Name,
		Probability:     sc.Probability,
		YieldRealized:   make(map[string]float64, n),
		VendorPurchases: make(map[string]float64, n),
		ContractSales:   make(map[string]float64, n),
		ProcessingSales: make(map[string]float64, n),
		RetailSales:     make(map[string]float64, n),
		Waste:           make(map[string]float64, n),
		Shortages:       make(map[string]float64, n),
	}

	var revenue float64
	cost := plantingCost
	for i := range in.Crops {
		c := &in.Crops[i]
		vendor := sol.Values[stochastic.SecondStage(sc.Name, c.Name, channelVendor)]
		contract := sol.Values[stochastic.SecondStage(sc.Name, c.Name, channelContract)]
		processing := sol.Values[stochastic.SecondStage(sc.Name, c.Name, channelProcessing)]
		retail := sol.Values[stochastic.SecondStage(sc.Name, c.Name, channelRetail)]
		waste := sol.Values[stochastic.SecondStage(sc.Name, c.Name, channelWaste)]
		shortage := sol.Values[stochastic.SecondStage(sc.Name, c.Name, channelShortage)]

		res.YieldRealized[c.Name] = c.yieldRate(sc.YieldChange(c.Name)) * plan[c.Name]
		res.VendorPurchases[c.Name] = vendor
		res.ContractSales[c.Name] = contract
		res.ProcessingSales[c.Name] = processing
		res.RetailSales[c.Name] = retail
		res.Waste[c.Name] = waste
		res.Shortages[c.Name] = shortage

		revenue += c.ContractPrice*contract + c.ProcessingPrice*processing + c.RetailPrice*retail
		cost += c.WasteCost * waste
		if c.PurchasePrice != nil {
			cost += *c.PurchasePrice * vendor
		}
		if c.ShortagePenalty != nil {
			cost += *c.ShortagePenalty * shortage
		}
	}
	res.Revenue = revenue
	res.Cost = cost
	res.Profit = revenue - cost
	return res
}

// checkFinite rejects a result carrying NaN or infinite values so a silent
// numeric failure can never masquerade as a valid plan.
func (r *PlanResult) checkFinite() error {
	scalars := []struct {
		name  string
		value float64
	}{
		{"objective_value", r.ObjectiveValue},
		{"stage1_decisions.total_land_used", r.Stage1.TotalLandUsed},
		{"stage1_decisions.land_utilization_pct", r.Stage1.LandUtilizationPct},
		{"stage1_decisions.planting_cost", r.Stage1.PlantingCost},
		{"financial_summary.planting_cost", r.Financial.PlantingCost},
		{"financial_summary.expected_profit", r.Financial.ExpectedProfit},
		{"financial_summary.worst_case_profit", r.Financial.WorstCaseProfit},
		{"financial_summary.best_case_profit", r.Financial.BestCaseProfit},
		{"financial_summary.profit_range", r.Financial.ProfitRange},
		{"risk_metrics.expected_profit", r.Risk.ExpectedProfit},
		{"risk_metrics.std_deviation", r.Risk.StdDeviation},
		{"risk_metrics.min_profit", r.Risk.MinProfit},
		{"risk_metrics.max_profit", r.Risk.MaxProfit},
		{"risk_metrics.profit_range", r.Risk.ProfitRange},
	}
	for _, f := range scalars {
		if err := finiteResult(f.name, f.value); err != nil {
			return err
		}
	}
	for crop, v := range r.Stage1.PlantingPlan {
		if err := finiteResult("stage1_decisions.planting_plan."+crop, v); err != nil {
			return err
		}
	}
	for _, sc := range r.Stage2 {
		maps := []struct {
			name   string
			values map[string]float64
		}{
			{"yield_realized", sc.YieldRealized},
			{"vendor_purchases", sc.VendorPurchases},
			{"contract_sales", sc.ContractSales},
			{"processing_sales", sc.ProcessingSales},
			{"retail_sales", sc.RetailSales},
			{"waste", sc.Waste},
			{"shortages", sc.Shortages},
		}
		for _, m := range maps {
			for crop, v := range m.values {
				name := fmt.Sprintf("stage2_decisions[%s].%s.%s", sc.ScenarioName, m.name, crop)
				if err := finiteResult(name, v); err != nil {
					return err
				}
			}
		}
		for _, f := range []struct {
			name  string
			value float64
		}{
			{"revenue", sc.Revenue},
			{"cost", sc.Cost},
			{"profit", sc.Profit},
		} {
			name := fmt.Sprintf("stage2_decisions[%s].%s", sc.ScenarioName, f.name)
			if err := finiteResult(name, f.value); err != nil {
				return err
			}
		}
	}
	return nil
}

func finiteResult(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &stochastic.InternalError{Reason: fmt.Sprintf("non-finite value in %s", name)}
	}
	return nil
}

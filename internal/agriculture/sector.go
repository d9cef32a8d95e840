package agriculture

import (
	"fmt"

	"github.com/terminal-bench/stochopt/pkg/stochastic"
)

// Channel names shared by model assembly and result synthesis.
const (
	channelAcres      = "acres"
	channelVendor     = "vendor"
	channelContract   = "contract"
	channelProcessing = "processing"
	channelRetail     = "retail"
	channelWaste      = "waste"
	channelShortage   = "shortage"
)

// sector declares the crop-planning model to the stochastic builder.
type sector struct {
	farm  FarmResources
	crops []Crop
}

func newSector(in *Input) *sector {
	return &sector{farm: in.FarmResources, crops: in.Crops}
}

func acresVar(crop string) stochastic.Var {
	return stochastic.FirstStage(crop, channelAcres)
}

func (s *sector) FirstStageVariables() []stochastic.Var {
	vars := make([]stochastic.Var, 0, len(s.crops))
	for i := range s.crops {
		vars = append(vars, acresVar(s.crops[i].Name))
	}
	return vars
}

func (s *sector) FirstStageConstraints() []stochastic.Constraint {
	land := stochastic.NewExpr()
	for i := range s.crops {
		c := &s.crops[i]
		land.Add(acresVar(c.Name), c.landUse())
	}
	return []stochastic.Constraint{
		stochastic.NewConstraint("total_land_limit", land, stochastic.LessEq, s.farm.TotalLand),
	}
}

func (s *sector) SecondStageVariables(sc stochastic.Scenario) []stochastic.Var {
	vars := make([]stochastic.Var, 0, 6*len(s.crops))
	for i := range s.crops {
		c := &s.crops[i]
		if c.hasVendor() {
			vars = append(vars, stochastic.SecondStage(sc.Name, c.Name, channelVendor))
		}
		vars = append(vars,
			stochastic.SecondStage(sc.Name, c.Name, channelContract),
			stochastic.SecondStage(sc.Name, c.Name, channelProcessing),
			stochastic.SecondStage(sc.Name, c.Name, channelRetail),
			stochastic.SecondStage(sc.Name, c.Name, channelWaste),
		)
		if c.hasShortage() {
			vars = append(vars, stochastic.SecondStage(sc.Name, c.Name, channelShortage))
		}
	}
	return vars
}

func (s *sector) SecondStageConstraints(sc stochastic.Scenario) []stochastic.Constraint {
	cons := make([]stochastic.Constraint, 0, 3*len(s.crops))
	for i := range s.crops {
		c := &s.crops[i]
		contract := stochastic.SecondStage(sc.Name, c.Name, channelContract)

		// Everything harvested or bought lands in exactly one channel.
		flow := stochastic.NewExpr().
			Add(acresVar(c.Name), c.yieldRate(sc.YieldChange(c.Name))).
			Add(contract, -1).
			Add(stochastic.SecondStage(sc.Name, c.Name, channelProcessing), -1).
			Add(stochastic.SecondStage(sc.Name, c.Name, channelRetail), -1).
			Add(stochastic.SecondStage(sc.Name, c.Name, channelWaste), -1)
		if c.hasVendor() {
			flow.Add(stochastic.SecondStage(sc.Name, c.Name, channelVendor), 1)
		}
		cons = append(cons, stochastic.NewConstraint(
			constraintName("flow_balance", c.Name, sc.Name),
			flow, stochastic.Equal, 0))

		// The buyer accepts deliveries only up to the contracted amount.
		cons = append(cons, stochastic.NewConstraint(
			constraintName("contract_cap", c.Name, sc.Name),
			stochastic.NewExpr().Add(contract, 1),
			stochastic.LessEq, c.Requirement))

		delivery := stochastic.NewExpr().Add(contract, 1)
		if c.hasShortage() {
			delivery.Add(stochastic.SecondStage(sc.Name, c.Name, channelShortage), 1)
		}
		cons = append(cons, stochastic.NewConstraint(
			constraintName("delivery", c.Name, sc.Name),
			delivery, stochastic.GreaterEq, c.Requirement))

		if c.VendorCapacity != nil {
			cons = append(cons, stochastic.NewConstraint(
				constraintName("vendor_capacity", c.Name, sc.Name),
				stochastic.NewExpr().Add(stochastic.SecondStage(sc.Name, c.Name, channelVendor), 1),
				stochastic.LessEq, *c.VendorCapacity))
		}
		if c.ProcessingCapacity != nil {
			cons = append(cons, stochastic.NewConstraint(
				constraintName("processing_capacity", c.Name, sc.Name),
				stochastic.NewExpr().Add(stochastic.SecondStage(sc.Name, c.Name, channelProcessing), 1),
				stochastic.LessEq, *c.ProcessingCapacity))
		}
		if c.RetailCapacity != nil {
			cons = append(cons, stochastic.NewConstraint(
				constraintName("retail_capacity", c.Name, sc.Name),
				stochastic.NewExpr().Add(stochastic.SecondStage(sc.Name, c.Name, channelRetail), 1),
				stochastic.LessEq, *c.RetailCapacity))
		}
	}
	return cons
}

// ObjectiveTerms prices one scenario. Materials cost is charged in every
// scenario's profit, so the builder's probability weights sum it back to a
// single full charge.
func (s *sector) ObjectiveTerms(sc stochastic.Scenario) *stochastic.LinearExpr {
	profit := stochastic.NewExpr()
	for i := range s.crops {
		c := &s.crops[i]
		profit.Add(acresVar(c.Name), -c.MaterialsCostPerAcre)
		profit.Add(stochastic.SecondStage(sc.Name, c.Name, channelContract), c.ContractPrice)
		profit.Add(stochastic.SecondStage(sc.Name, c.Name, channelProcessing), c.ProcessingPrice)
		profit.Add(stochastic.SecondStage(sc.Name, c.Name, channelRetail), c.RetailPrice)
		profit.Add(stochastic.SecondStage(sc.Name, c.Name, channelWaste), -c.WasteCost)
		if c.hasVendor() {
			profit.Add(stochastic.SecondStage(sc.Name, c.Name, channelVendor), -*c.PurchasePrice)
		}
		if c.hasShortage() {
			profit.Add(stochastic.SecondStage(sc.Name, c.Name, channelShortage), -*c.ShortagePenalty)
		}
	}
	return profit
}

func constraintName(kind, crop, scenario string) string {
	return fmt.Sprintf("%s_%s_%s", kind, crop, scenario)
}

// Package agriculture models seasonal crop planning as a two-stage
// stochastic program. Acreage is committed before the weather is known;
// once a scenario realizes, the harvest is routed across the contract,
// processing, and retail channels, topped up from vendors or written off
// as waste and shortage.
package agriculture

import (
	"fmt"
	"math"

	"github.com/terminal-bench/stochopt/pkg/stochastic"
)

// Input is a complete planning request.
type Input struct {
	FarmResources FarmResources          `json:"farm_resources" yaml:"farm_resources"`
	Crops         []Crop                 `json:"crops" yaml:"crops"`
	Scenarios     stochastic.ScenarioSet `json:"scenarios" yaml:"scenarios"`
}

// FarmResources holds the shared first-stage capacity.
type FarmResources struct {
	// TotalLand is the acreage available for planting.
	TotalLand float64 `json:"total_land" yaml:"total_land"`
}

// Crop describes one production unit. Pointer fields distinguish absent
// from zero: a nil PurchasePrice means no vendor channel exists, a nil
// ShortagePenalty makes the delivery requirement hard, and a nil channel
// capacity leaves that channel uncapped.
type Crop struct {
	Name string `json:"name" yaml:"name"`

	// BaseYieldPerPlant is the nominal harvest weight per plant; scenarios
	// scale it through their yield-change fraction.
	BaseYieldPerPlant float64 `json:"base_yield_per_plant" yaml:"base_yield_per_plant"`
	PlantsPerAcre     float64 `json:"plants_per_acre" yaml:"plants_per_acre"`

	// LandUse is the land consumed per allocated acre, defaulting to one.
	LandUse *float64 `json:"land_use,omitempty" yaml:"land_use,omitempty"`

	MaterialsCostPerAcre float64 `json:"materials_cost_per_acre" yaml:"materials_cost_per_acre"`

	// Requirement is the contracted delivery obligation in harvest units.
	// The buyer pays ContractPrice per unit and accepts nothing beyond the
	// requirement.
	Requirement   float64 `json:"requirement" yaml:"requirement"`
	ContractPrice float64 `json:"contract_price" yaml:"contract_price"`

	ProcessingPrice float64 `json:"processing_price" yaml:"processing_price"`
	RetailPrice     float64 `json:"retail_price" yaml:"retail_price"`
	WasteCost       float64 `json:"waste_cost" yaml:"waste_cost"`

	// PurchasePrice enables buying from outside vendors, typically to
	// cover the delivery requirement after a poor harvest.
	PurchasePrice *float64 `json:"purchase_price,omitempty" yaml:"purchase_price,omitempty"`

	VendorCapacity     *float64 `json:"vendor_capacity,omitempty" yaml:"vendor_capacity,omitempty"`
	ProcessingCapacity *float64 `json:"processing_capacity,omitempty" yaml:"processing_capacity,omitempty"`
	RetailCapacity     *float64 `json:"retail_capacity,omitempty" yaml:"retail_capacity,omitempty"`

	// ShortagePenalty is the cost per undelivered harvest unit. When nil,
	// the requirement must be met in full in every scenario.
	ShortagePenalty *float64 `json:"shortage_penalty,omitempty" yaml:"shortage_penalty,omitempty"`
}

// landUse returns the effective land consumption per allocated acre.
func (c *Crop) landUse() float64 {
	if c.LandUse == nil {
		return 1
	}
	return *c.LandUse
}

// yieldRate returns harvest units per allocated acre under a yield change.
func (c *Crop) yieldRate(yieldChange float64) float64 {
	return c.PlantsPerAcre * c.BaseYieldPerPlant * (1 + yieldChange)
}

func (c *Crop) hasVendor() bool { return c.PurchasePrice != nil }

func (c *Crop) hasShortage() bool { return c.ShortagePenalty != nil }

// Validate checks every structural rule before any model assembly and
// reports the first violation as a *stochastic.ValidationError.
func (in *Input) Validate() error {
	if err := finiteNonNegative("farm_resources.total_land", in.FarmResources.TotalLand); err != nil {
		return err
	}
	if len(in.Crops) == 0 {
		return &stochastic.ValidationError{Field: "crops", Reason: "at least one crop is required"}
	}
	seen := make(map[string]struct{}, len(in.Crops))
	for i := range in.Crops {
		crop := &in.Crops[i]
		field := fmt.Sprintf("crops[%d]", i)
		if err := crop.validate(field); err != nil {
			return err
		}
		if _, dup := seen[crop.Name]; dup {
			return &stochastic.ValidationError{
				Field:  field + ".name",
				Reason: fmt.Sprintf("duplicate crop name %q", crop.Name),
			}
		}
		seen[crop.Name] = struct{}{}
	}
	if err := in.Scenarios.Validate(); err != nil {
		return err
	}
	for i, sc := range in.Scenarios {
		for unit, change := range sc.YieldChanges {
			if math.IsNaN(change) || math.IsInf(change, 0) || change < -1 {
				return &stochastic.ValidationError{
					Field:  fmt.Sprintf("scenarios[%d].yield_changes[%s]", i, unit),
					Reason: fmt.Sprintf("yield change %v would drive the realized yield below zero; the minimum is -1", change),
				}
			}
		}
	}
	return nil
}

func (c *Crop) validate(field string) error {
	if c.Name == "" {
		return &stochastic.ValidationError{Field: field + ".name", Reason: "crop name must not be empty"}
	}
	if err := finitePositive(field+".base_yield_per_plant", c.BaseYieldPerPlant); err != nil {
		return err
	}
	if err := finitePositive(field+".plants_per_acre", c.PlantsPerAcre); err != nil {
		return err
	}
	if c.LandUse != nil {
		if err := finitePositive(field+".land_use", *c.LandUse); err != nil {
			return err
		}
	}
	required := []struct {
		name  string
		value float64
	}{
		{".materials_cost_per_acre", c.MaterialsCostPerAcre},
		{".requirement", c.Requirement},
		{".contract_price", c.ContractPrice},
		{".processing_price", c.ProcessingPrice},
		{".retail_price", c.RetailPrice},
		{".waste_cost", c.WasteCost},
	}
	for _, f := range required {
		if err := finiteNonNegative(field+f.name, f.value); err != nil {
			return err
		}
	}
	optional := []struct {
		name  string
		value *float64
	}{
		{".purchase_price", c.PurchasePrice},
		{".vendor_capacity", c.VendorCapacity},
		{".processing_capacity", c.ProcessingCapacity},
		{".retail_capacity", c.RetailCapacity},
		{".shortage_penalty", c.ShortagePenalty},
	}
	for _, f := range optional {
		if f.value != nil {
			if err := finiteNonNegative(field+f.name, *f.value); err != nil {
				return err
			}
		}
	}
	if c.VendorCapacity != nil && c.PurchasePrice == nil {
		return &stochastic.ValidationError{
			Field:  field + ".vendor_capacity",
			Reason: "vendor_capacity requires purchase_price",
		}
	}
	return nil
}

func finiteNonNegative(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &stochastic.ValidationError{Field: field, Reason: "value must be finite"}
	}
	if v < 0 {
		return &stochastic.ValidationError{Field: field, Reason: fmt.Sprintf("value %v must not be negative", v)}
	}
	return nil
}

func finitePositive(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &stochastic.ValidationError{Field: field, Reason: "value must be finite"}
	}
	if v <= 0 {
		return &stochastic.ValidationError{Field: field, Reason: fmt.Sprintf("value %v must be positive", v)}
	}
	return nil
}

// Package pricing computes the price of a verification or rental. It performs no
// I/O and keeps no state beyond static tables, so identical requests always produce
// identical quotes.
package pricing

import (
	"fmt"
	"strings"

	"github.com/linebroker/internal/domain/shared"
)

// Band is a service price band
type Band string

const (
	BandEconomy   Band = "economy"
	BandStandard  Band = "standard"
	BandPremium   Band = "premium"
	BandSpecialty Band = "specialty"
)

// Add-on identifiers
const (
	AddonCustomLine        = "custom_line"
	AddonGuaranteedCarrier = "guaranteed_carrier"
	AddonPriority          = "priority"
)

const (
	bpsScale = 10000

	VoicePremium  int64 = 25
	MaxRentalDays       = 90

	dayPrice   int64 = 100
	weekPrice  int64 = 500
	monthPrice int64 = 1800
)

var bandPrices = map[Band]int64{
	BandEconomy:   50,
	BandStandard:  75,
	BandPremium:   100,
	BandSpecialty: 150,
}

var serviceBands = map[string]Band{
	"discord":   BandEconomy,
	"viber":     BandEconomy,
	"wechat":    BandEconomy,
	"line":      BandEconomy,
	"telegram":  BandStandard,
	"facebook":  BandStandard,
	"instagram": BandStandard,
	"tinder":    BandStandard,
	"uber":      BandStandard,
	"whatsapp":  BandPremium,
	"google":    BandPremium,
	"microsoft": BandPremium,
	"apple":     BandPremium,
	"amazon":    BandPremium,
	"paypal":    BandSpecialty,
	"coinbase":  BandSpecialty,
}

var planMultipliers = map[shared.Plan]int64{
	shared.PlanPayAsYouGo: 10000,
	shared.PlanStarter:    9500,
	shared.PlanPro:        9000,
	shared.PlanEnterprise: 8500,
}

var addonPrices = map[string]int64{
	AddonCustomLine:        25,
	AddonGuaranteedCarrier: 50,
	AddonPriority:          35,
}

// volumeSteps must stay ordered by threshold descending.
var volumeSteps = []struct {
	threshold   int64
	discountBps int64
}{
	{500, 1500},
	{200, 1000},
	{50, 500},
}

// QuoteRequest is the pricing input
type QuoteRequest struct {
	ServiceID             string
	Capability            shared.Capability
	Plan                  shared.Plan
	RentalDays            int // zero for a one-shot verification
	Addons                []string
	TrailingVerifications int64
}

// AddonCost is one priced add-on
type AddonCost struct {
	Name string `json:"name"`
	Cost int64  `json:"cost"`
}

// Quote is a computed price. It is never cached across requests.
type Quote struct {
	ServiceID         string            `json:"service_id"`
	Band              Band              `json:"band"`
	Capability        shared.Capability `json:"capability"`
	Plan              shared.Plan       `json:"plan"`
	RentalDays        int               `json:"rental_days,omitempty"`
	BasePrice         int64             `json:"base_price"`
	TierMultiplierBps int64             `json:"tier_multiplier_bps"`
	VolumeDiscountBps int64             `json:"volume_discount_bps"`
	AddonCosts        []AddonCost       `json:"addon_costs"`
	Total             int64             `json:"total"`
}

// Engine quotes prices
type Engine interface {
	Quote(req QuoteRequest) (*Quote, error)
}

type engine struct{}

// NewEngine returns the static-table pricing engine
func NewEngine() Engine {
	return engine{}
}

func (engine) Quote(req QuoteRequest) (*Quote, error) {
	serviceID := strings.ToLower(strings.TrimSpace(req.ServiceID))
	if serviceID == "" {
		return nil, shared.NewValidationError("service_id", "must not be empty")
	}
	if !req.Capability.Valid() {
		return nil, shared.NewValidationError("capability", fmt.Sprintf("unsupported capability %q", req.Capability))
	}
	plan := req.Plan
	if plan == "" {
		plan = shared.PlanPayAsYouGo
	}
	multiplier, ok := planMultipliers[plan]
	if !ok {
		return nil, shared.NewValidationError("plan", fmt.Sprintf("unknown plan %q", req.Plan))
	}
	if req.RentalDays < 0 || req.RentalDays > MaxRentalDays {
		return nil, shared.NewValidationError("rental_days", fmt.Sprintf("must be between 1 and %d", MaxRentalDays))
	}
	if req.TrailingVerifications < 0 {
		return nil, shared.NewValidationError("trailing_verifications", "must not be negative")
	}

	addons, addonTotal, err := priceAddons(req.Addons)
	if err != nil {
		return nil, err
	}

	band := BandOf(serviceID)
	var base int64
	if req.RentalDays > 0 {
		base = RentalBase(req.RentalDays)
	} else {
		base = bandPrices[band]
	}
	if req.Capability == shared.CapabilityVoice {
		base += VoicePremium
	}

	discount := VolumeDiscount(req.TrailingVerifications)

	// base × multiplier × (1 − discount), all in basis points
	numerator := base * multiplier * (bpsScale - discount)
	denominator := int64(bpsScale * bpsScale)

	return &Quote{
		ServiceID:         serviceID,
		Band:              band,
		Capability:        req.Capability,
		Plan:              plan,
		RentalDays:        req.RentalDays,
		BasePrice:         base,
		TierMultiplierBps: multiplier,
		VolumeDiscountBps: discount,
		AddonCosts:        addons,
		Total:             RoundHalfUp(numerator, denominator) + addonTotal,
	}, nil
}

// BandOf maps a service to its band; unlisted services price as specialty.
func BandOf(serviceID string) Band {
	if band, ok := serviceBands[strings.ToLower(strings.TrimSpace(serviceID))]; ok {
		return band
	}
	return BandSpecialty
}

// VolumeDiscount returns the discount in basis points for a trailing count.
// Thresholds are inclusive.
func VolumeDiscount(trailing int64) int64 {
	for _, step := range volumeSteps {
		if trailing >= step.threshold {
			return step.discountBps
		}
	}
	return 0
}

// RentalBase prices a rental greedily in months, weeks and days. A remainder is
// never charged more than the next larger unit.
func RentalBase(days int) int64 {
	months := int64(days / 30)
	rest := days % 30
	weeks := int64(rest / 7)
	tail := int64(rest % 7)

	tailCost := min(tail*dayPrice, weekPrice)
	restCost := min(weeks*weekPrice+tailCost, monthPrice)
	return months*monthPrice + restCost
}

// RoundHalfUp divides non-negative num by den rounding halves up.
func RoundHalfUp(num, den int64) int64 {
	return (num + den/2) / den
}

func priceAddons(names []string) ([]AddonCost, int64, error) {
	costs := make([]AddonCost, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	var total int64
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		price, ok := addonPrices[name]
		if !ok {
			return nil, 0, shared.NewValidationError("addons", fmt.Sprintf("unknown add-on %q", raw))
		}
		if _, dup := seen[name]; dup {
			return nil, 0, shared.NewValidationError("addons", fmt.Sprintf("duplicate add-on %q", raw))
		}
		seen[name] = struct{}{}
		costs = append(costs, AddonCost{Name: name, Cost: price})
		total += price
	}
	return costs, total, nil
}

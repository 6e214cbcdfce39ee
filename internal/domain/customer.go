package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// FeeSlot names one overridable fee in a customer's custom pricing map.
type FeeSlot string

const (
	SlotApostilleServiceFee    FeeSlot = "apostilleServiceFee"
	SlotNotarizationServiceFee FeeSlot = "notarizationServiceFee"
	SlotEmbassyServiceFee      FeeSlot = "embassyServiceFee"
	SlotUDServiceFee           FeeSlot = "udServiceFee"
	SlotTranslationServiceFee  FeeSlot = "translationServiceFee"
	SlotChamberServiceFee      FeeSlot = "chamberServiceFee"
	SlotDoxServiceFee          FeeSlot = "doxServiceFee"
	SlotExpressServiceFee      FeeSlot = "expressServiceFee"
	SlotScannedCopiesFee       FeeSlot = "scannedCopiesFee"
	SlotDHLPickupFee           FeeSlot = "dhlPickupFee"
	SlotStockholmCourierFee    FeeSlot = "stockholmCourierFee"
	SlotDHLExpressPickupFee    FeeSlot = "dhlExpressPickupFee"
	SlotStockholmSamedayFee    FeeSlot = "stockholmSamedayFee"
	SlotDHLPre12Fee            FeeSlot = "dhlPre12Fee"
	SlotDHLPre9Fee             FeeSlot = "dhlPre9Fee"
	SlotDHLEndOfDayFee         FeeSlot = "dhlEndOfDayFee"
	SlotReturnDHLFee           FeeSlot = "returnDhlFee"
	SlotStockholmCityFee       FeeSlot = "stockholmCityFee"
	SlotStockholmExpressFee    FeeSlot = "stockholmExpressFee"
	SlotStockholmUrgentFee     FeeSlot = "stockholmUrgentFee"
	SlotReturnPostnordFee      FeeSlot = "returnPostnordFee"
	SlotReturnBudFee           FeeSlot = "returnBudFee"
)

var knownFeeSlots = map[FeeSlot]struct{}{
	SlotApostilleServiceFee:    {},
	SlotNotarizationServiceFee: {},
	SlotEmbassyServiceFee:      {},
	SlotUDServiceFee:           {},
	SlotTranslationServiceFee:  {},
	SlotChamberServiceFee:      {},
	SlotDoxServiceFee:          {},
	SlotExpressServiceFee:      {},
	SlotScannedCopiesFee:       {},
	SlotDHLPickupFee:           {},
	SlotStockholmCourierFee:    {},
	SlotDHLExpressPickupFee:    {},
	SlotStockholmSamedayFee:    {},
	SlotDHLPre12Fee:            {},
	SlotDHLPre9Fee:             {},
	SlotDHLEndOfDayFee:         {},
	SlotReturnDHLFee:           {},
	SlotStockholmCityFee:       {},
	SlotStockholmExpressFee:    {},
	SlotStockholmUrgentFee:     {},
	SlotReturnPostnordFee:      {},
	SlotReturnBudFee:           {},
}

// IsKnown reports whether the slot is one the pricing engine reads.
func (s FeeSlot) IsKnown() bool {
	_, ok := knownFeeSlots[s]
	return ok
}

// CustomPricing is a sparse map of fee overrides. A present zero is a valid override.
type CustomPricing map[FeeSlot]int64

// Amount returns the override for slot and whether one is set.
func (c CustomPricing) Amount(slot FeeSlot) (int64, bool) {
	if c == nil {
		return 0, false
	}
	v, ok := c[slot]
	return v, ok
}

// ToMap renders the overrides in their stored representation.
func (c CustomPricing) ToMap() map[string]any {
	out := make(map[string]any, len(c))
	for slot, amount := range c {
		out[string(slot)] = amount
	}
	return out
}

// ParseCustomPricing converts a loosely typed map (Firestore document or JSON body) into
// overrides. Unknown slots and values that are not non-negative numbers are dropped.
func ParseCustomPricing(raw map[string]any) CustomPricing {
	if len(raw) == 0 {
		return nil
	}
	out := make(CustomPricing, len(raw))
	for key, value := range raw {
		slot := FeeSlot(strings.TrimSpace(key))
		if !slot.IsKnown() {
			continue
		}
		amount, ok := ParseOverrideAmount(value)
		if !ok {
			continue
		}
		out[slot] = amount
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ParseOverrideAmount coerces a stored override value to whole kronor.
func ParseOverrideAmount(value any) (int64, bool) {
	var f float64
	switch v := value.(type) {
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case float32:
		f = float64(v)
	case float64:
		f = v
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > math.MaxInt32 {
		return 0, false
	}
	return int64(math.Round(f)), true
}

// CustomerPricing carries a customer's negotiated prices and VAT treatment.
type CustomerPricing struct {
	CustomerID    string
	CompanyName   string
	VATExempt     bool
	CustomPricing CustomPricing
}

// Customer is a business customer record holding pricing agreements.
type Customer struct {
	ID             string
	CustomerNumber string
	CompanyName    string
	Email          string
	VATExempt      bool
	CustomPricing  CustomPricing
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Pricing projects the customer onto the engine's override set.
func (c Customer) Pricing() CustomerPricing {
	return CustomerPricing{
		CustomerID:    c.ID,
		CompanyName:   c.CompanyName,
		VATExempt:     c.VATExempt,
		CustomPricing: c.CustomPricing,
	}
}

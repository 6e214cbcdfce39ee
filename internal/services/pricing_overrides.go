package services

import (
	"regexp"
	"strconv"
	"strings"

	domain "github.com/doxvisum/api/internal/domain"
)

// overrideRule maps selection ids containing any of keywords to override slots. Slots are
// consulted in order; the first one the customer has set wins.
type overrideRule struct {
	keywords []string
	slots    []FeeSlot
}

func (r overrideRule) matches(id string) bool {
	for _, keyword := range r.keywords {
		if strings.Contains(id, keyword) {
			return true
		}
	}
	return false
}

// Order matters: specific DHL products must match before the generic "dhl" rule.
var returnServiceOverrideRules = []overrideRule{
	{keywords: []string{"pre12", "pre-12"}, slots: []FeeSlot{domain.SlotDHLPre12Fee}},
	{keywords: []string{"pre9", "pre-9"}, slots: []FeeSlot{domain.SlotDHLPre9Fee}},
	{keywords: []string{"endofday", "end-of-day", "end_of_day"}, slots: []FeeSlot{domain.SlotDHLEndOfDayFee}},
	{keywords: []string{"dhl"}, slots: []FeeSlot{domain.SlotReturnDHLFee, domain.SlotDHLEndOfDayFee}},
	{keywords: []string{"stockholm-city", "stockholm_city"}, slots: []FeeSlot{domain.SlotStockholmCityFee}},
	{keywords: []string{"stockholm-express", "stockholm_express"}, slots: []FeeSlot{domain.SlotStockholmExpressFee}},
	{keywords: []string{"stockholm-sameday", "stockholm_sameday", "stockholm-urgent", "stockholm_urgent"}, slots: []FeeSlot{domain.SlotStockholmUrgentFee}},
	{keywords: []string{"postnord"}, slots: []FeeSlot{domain.SlotReturnPostnordFee}},
	{keywords: []string{"bud", "courier"}, slots: []FeeSlot{domain.SlotReturnBudFee}},
}

var premiumDeliveryOverrideRules = []overrideRule{
	{keywords: []string{"dhl"}, slots: []FeeSlot{domain.SlotReturnDHLFee}},
	{keywords: []string{"bud", "courier"}, slots: []FeeSlot{domain.SlotReturnBudFee}},
}

var pickupOverrideSlots = map[string]FeeSlot{
	"dhl":               domain.SlotDHLPickupFee,
	"stockholm_courier": domain.SlotStockholmCourierFee,
}

var premiumPickupOverrideSlots = map[string]FeeSlot{
	"dhl_express":       domain.SlotDHLExpressPickupFee,
	"stockholm_sameday": domain.SlotStockholmSamedayFee,
}

// matchOverride finds the first rule whose keywords occur in id. Only that rule is consulted:
// when none of its slots is set the standard price applies.
func matchOverride(rules []overrideRule, id string, overrides CustomPricing) (int64, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" || len(overrides) == 0 {
		return 0, false
	}
	for _, rule := range rules {
		if !rule.matches(id) {
			continue
		}
		for _, slot := range rule.slots {
			if amount, ok := overrides.Amount(slot); ok {
				return amount, true
			}
		}
		return 0, false
	}
	return 0, false
}

func methodOverride(slots map[string]FeeSlot, method string, overrides CustomPricing) (int64, bool) {
	slot, ok := slots[normalizeMethod(method)]
	if !ok {
		return 0, false
	}
	return overrides.Amount(slot)
}

// resolveServiceFee applies the service-specific override, then the general doxServiceFee,
// then the rule's own fee. A set specific slot hides the general one even when it is 0.
func resolveServiceFee(rule PricingRule, overrides CustomPricing) int64 {
	if slot, ok := rule.ServiceType.ServiceFeeSlot(); ok {
		if amount, set := overrides.Amount(slot); set {
			return amount
		}
	}
	if amount, set := overrides.Amount(domain.SlotDoxServiceFee); set {
		return amount
	}
	return rule.ServiceFee
}

func resolveExpressFee(overrides CustomPricing) int64 {
	if amount, ok := overrides.Amount(domain.SlotExpressServiceFee); ok {
		return amount
	}
	return ExpressFee
}

func resolveScannedCopiesFee(overrides CustomPricing) int64 {
	if amount, ok := overrides.Amount(domain.SlotScannedCopiesFee); ok {
		return amount
	}
	return ScannedCopiesFee
}

var firstIntegerGroup = regexp.MustCompile(`\d+`)

// catalogStandardPrice reads the catalog price of a return option. Display strings yield their
// first integer group, so "Från 85 kr" is 85.
func catalogStandardPrice(option ReturnServiceOption) int64 {
	if option.PriceValue != nil {
		return *option.PriceValue
	}
	if option.Price.Value != nil {
		return *option.Price.Value
	}
	match := firstIntegerGroup.FindString(option.Price.Label)
	if match == "" {
		return 0
	}
	amount, err := strconv.ParseInt(match, 10, 64)
	if err != nil {
		return 0
	}
	return amount
}

func findReturnOption(catalog []ReturnServiceOption, id string) (ReturnServiceOption, bool) {
	id = strings.TrimSpace(id)
	for _, option := range catalog {
		if option.ID == id {
			return option, true
		}
	}
	return ReturnServiceOption{}, false
}

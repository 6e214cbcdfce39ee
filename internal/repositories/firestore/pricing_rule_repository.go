package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/doxvisum/api/internal/domain"
	pfirestore "github.com/doxvisum/api/internal/platform/firestore"
	"github.com/doxvisum/api/internal/repositories"
)

const pricingRulesCollection = "pricing_rules"

// PricingRuleRepository stores one document per (country, service type), keyed "SE_apostille".
// Documents written by older tooling may carry numbers as strings; decoding tolerates both.
type PricingRuleRepository struct {
	provider  *pfirestore.Provider
	base      *pfirestore.BaseRepository[domain.PricingRule]
	retryOpts []pfirestore.RetryOption
	clock     func() time.Time
}

// PricingRuleRepositoryOption customises the repository.
type PricingRuleRepositoryOption func(*PricingRuleRepository)

// WithPricingRuleRetry overrides the retry policy applied to reads.
func WithPricingRuleRetry(opts ...pfirestore.RetryOption) PricingRuleRepositoryOption {
	return func(r *PricingRuleRepository) {
		r.retryOpts = append(r.retryOpts, opts...)
	}
}

// WithPricingRuleClock overrides the clock used for updatedAt stamps.
func WithPricingRuleClock(clock func() time.Time) PricingRuleRepositoryOption {
	return func(r *PricingRuleRepository) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewPricingRuleRepository constructs a Firestore-backed pricing rule repository.
func NewPricingRuleRepository(provider *pfirestore.Provider, opts ...PricingRuleRepositoryOption) (*PricingRuleRepository, error) {
	if provider == nil {
		return nil, errors.New("pricing rule repository requires firestore provider")
	}
	repo := &PricingRuleRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[domain.PricingRule](provider, pricingRulesCollection, encodePricingRule, decodePricingRule),
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

var _ repositories.PricingRuleRepository = (*PricingRuleRepository)(nil)

// FindByKey loads a single rule, retrying transient backend failures.
func (r *PricingRuleRepository) FindByKey(ctx context.Context, key domain.RuleKey) (domain.PricingRule, error) {
	if r == nil || r.base == nil {
		return domain.PricingRule{}, errors.New("pricing rule repository not initialised")
	}
	if strings.TrimSpace(key.CountryCode) == "" || key.ServiceType == "" {
		return domain.PricingRule{}, errors.New("pricing rule key is incomplete")
	}

	var doc pfirestore.Document[domain.PricingRule]
	err := pfirestore.Retry(ctx, "pricing_rules.find", func(ctx context.Context) error {
		var getErr error
		doc, getErr = r.base.Get(ctx, key.ID())
		return getErr
	}, r.retryOpts...)
	if err != nil {
		return domain.PricingRule{}, err
	}
	return withDocumentDefaults(doc, key), nil
}

// ListByCountry returns every rule stored for the country, active or not.
func (r *PricingRuleRepository) ListByCountry(ctx context.Context, countryCode string) ([]domain.PricingRule, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("pricing rule repository not initialised")
	}
	country := strings.ToUpper(strings.TrimSpace(countryCode))
	if country == "" {
		return nil, errors.New("country code is required")
	}

	var docs []pfirestore.Document[domain.PricingRule]
	err := pfirestore.Retry(ctx, "pricing_rules.list", func(ctx context.Context) error {
		var queryErr error
		docs, queryErr = r.base.Query(ctx, func(q firestore.Query) firestore.Query {
			return q.Where("countryCode", "==", country).OrderBy("serviceType", firestore.Asc)
		})
		return queryErr
	}, r.retryOpts...)
	if err != nil {
		return nil, err
	}

	rules := make([]domain.PricingRule, 0, len(docs))
	for _, doc := range docs {
		rules = append(rules, withDocumentDefaults(doc, domain.RuleKey{CountryCode: country}))
	}
	return rules, nil
}

// Upsert writes the rule with a recomputed base price and returns the stored value.
func (r *PricingRuleRepository) Upsert(ctx context.Context, rule domain.PricingRule) (domain.PricingRule, error) {
	if r == nil || r.base == nil {
		return domain.PricingRule{}, errors.New("pricing rule repository not initialised")
	}
	rule = normaliseRule(rule, r.clock().UTC())
	key := domain.RuleKey{CountryCode: rule.CountryCode, ServiceType: rule.ServiceType}
	if rule.CountryCode == "" || rule.ServiceType == "" {
		return domain.PricingRule{}, errors.New("pricing rule key is incomplete")
	}

	if _, err := r.base.Set(ctx, key.ID(), rule); err != nil {
		return domain.PricingRule{}, err
	}
	rule.Source = domain.RuleSourceStore
	return rule, nil
}

// AdjustServiceFees applies adjust to every existing rule in one transaction.
func (r *PricingRuleRepository) AdjustServiceFees(ctx context.Context, keys []domain.RuleKey, adjust func(domain.PricingRule) domain.PricingRule) (repositories.RuleAdjustmentResult, error) {
	if r == nil || r.provider == nil {
		return repositories.RuleAdjustmentResult{}, errors.New("pricing rule repository not initialised")
	}
	if adjust == nil {
		return repositories.RuleAdjustmentResult{}, errors.New("adjust function is required")
	}
	if len(keys) == 0 {
		return repositories.RuleAdjustmentResult{}, nil
	}

	now := r.clock().UTC()
	var result repositories.RuleAdjustmentResult

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// The closure may run more than once when Firestore retries the transaction.
		result = repositories.RuleAdjustmentResult{}

		refs := make([]*firestore.DocumentRef, 0, len(keys))
		for _, key := range keys {
			ref, err := r.base.DocumentRef(ctx, key.ID())
			if err != nil {
				return err
			}
			refs = append(refs, ref)
		}

		snapshots, err := tx.GetAll(refs)
		if err != nil {
			return err
		}

		type pendingWrite struct {
			ref  *firestore.DocumentRef
			rule domain.PricingRule
		}
		writes := make([]pendingWrite, 0, len(snapshots))
		for i, snap := range snapshots {
			if snap == nil || !snap.Exists() {
				result.Missing = append(result.Missing, keys[i])
				continue
			}
			doc, err := r.base.Decode(ctx, snap)
			if err != nil {
				return err
			}
			current := withDocumentDefaults(doc, keys[i])
			updated := normaliseRule(adjust(current), now)
			updated.CountryCode = current.CountryCode
			updated.ServiceType = current.ServiceType
			updated.OfficialFee = current.OfficialFee
			updated.BasePrice = updated.TotalFee()
			writes = append(writes, pendingWrite{ref: refs[i], rule: updated})
		}

		// Firestore requires every read to precede the first write.
		for _, w := range writes {
			payload, err := r.base.Encode(ctx, w.rule)
			if err != nil {
				return err
			}
			if err := tx.Set(w.ref, payload, firestore.MergeAll); err != nil {
				return err
			}
			stored := w.rule
			stored.Source = domain.RuleSourceStore
			result.Updated = append(result.Updated, stored)
		}
		return nil
	}, pfirestore.WithTxOp("pricing_rules.adjust"))
	if err != nil {
		return repositories.RuleAdjustmentResult{}, err
	}
	return result, nil
}

func normaliseRule(rule domain.PricingRule, now time.Time) domain.PricingRule {
	rule.CountryCode = strings.ToUpper(strings.TrimSpace(rule.CountryCode))
	rule.CountryName = strings.TrimSpace(rule.CountryName)
	if rule.OfficialFee < 0 {
		rule.OfficialFee = 0
	}
	if rule.ServiceFee < 0 {
		rule.ServiceFee = 0
	}
	rule.BasePrice = rule.TotalFee()
	rule.Currency = "SEK"
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = now
	}
	rule.UpdatedAt = rule.UpdatedAt.UTC()
	return rule
}

func withDocumentDefaults(doc pfirestore.Document[domain.PricingRule], key domain.RuleKey) domain.PricingRule {
	rule := doc.Data
	if rule.CountryCode == "" || rule.ServiceType == "" {
		country, service := splitRuleID(doc.ID)
		if rule.CountryCode == "" {
			rule.CountryCode = country
		}
		if rule.ServiceType == "" {
			rule.ServiceType = service
		}
	}
	if rule.CountryCode == "" {
		rule.CountryCode = strings.ToUpper(strings.TrimSpace(key.CountryCode))
	}
	if rule.ServiceType == "" {
		rule.ServiceType = key.ServiceType
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = doc.UpdateTime.UTC()
	}
	rule.BasePrice = rule.TotalFee()
	rule.Source = domain.RuleSourceStore
	return rule
}

func splitRuleID(id string) (string, domain.ServiceType) {
	country, service, ok := strings.Cut(id, "_")
	if !ok {
		return "", ""
	}
	parsed, _ := domain.ParseServiceType(service)
	return strings.ToUpper(country), parsed
}

func encodePricingRule(_ context.Context, rule domain.PricingRule) (any, error) {
	return map[string]any{
		"countryCode":      rule.CountryCode,
		"countryName":      rule.CountryName,
		"serviceType":      string(rule.ServiceType),
		"officialFee":      rule.OfficialFee,
		"serviceFee":       rule.ServiceFee,
		"basePrice":        rule.TotalFee(),
		"priceUnconfirmed": rule.PriceUnconfirmed,
		"processingTime":   rule.ProcessingTimeDays,
		"isActive":         rule.IsActive,
		"currency":         "SEK",
		"updatedAt":        rule.UpdatedAt,
		"updatedBy":        rule.UpdatedBy,
	}, nil
}

func decodePricingRule(_ context.Context, snap *firestore.DocumentSnapshot) (domain.PricingRule, error) {
	return ruleFromData(snap.Ref.ID, snap.Data())
}

// ruleFromData rejects documents whose fees are missing or unparseable; pricing them as 0 would
// undercharge.
func ruleFromData(id string, data map[string]any) (domain.PricingRule, error) {
	if data == nil {
		return domain.PricingRule{}, invalidRule(id, errors.New("document is empty"))
	}

	rule := domain.PricingRule{
		CountryCode:      strings.ToUpper(stringField(data, "countryCode")),
		CountryName:      stringField(data, "countryName"),
		PriceUnconfirmed: boolField(data, "priceUnconfirmed", false),
		IsActive:         boolField(data, "isActive", true),
		Currency:         "SEK",
		UpdatedBy:        stringField(data, "updatedBy"),
	}
	if raw := stringField(data, "serviceType"); raw != "" {
		rule.ServiceType, _ = domain.ParseServiceType(raw)
	}
	for _, fee := range []struct {
		field string
		dst   *int64
	}{
		{"officialFee", &rule.OfficialFee},
		{"serviceFee", &rule.ServiceFee},
	} {
		amount, ok := domain.ParseOverrideAmount(data[fee.field])
		if !ok {
			return domain.PricingRule{}, invalidRule(id, fmt.Errorf("%s %v is not a non-negative amount", fee.field, data[fee.field]))
		}
		*fee.dst = amount
	}
	rule.ProcessingTimeDays = processingDays(data["processingTime"])
	if ts, ok := data["updatedAt"].(time.Time); ok {
		rule.UpdatedAt = ts.UTC()
	}
	return rule, nil
}

func invalidRule(id string, err error) error {
	return &repositories.InvalidDocumentError{Collection: pricingRulesCollection, ID: id, Err: err}
}

// processingDays accepts a bare number or a {"standard": n} map.
func processingDays(value any) int {
	if nested, ok := value.(map[string]any); ok {
		value = nested["standard"]
	}
	days, ok := domain.ParseOverrideAmount(value)
	if !ok {
		return 0
	}
	return int(days)
}

func stringField(data map[string]any, key string) string {
	if value, ok := data[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func boolField(data map[string]any, key string, fallback bool) bool {
	switch value := data[key].(type) {
	case bool:
		return value
	case string:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true":
			return true
		case "false":
			return false
		}
	}
	return fallback
}

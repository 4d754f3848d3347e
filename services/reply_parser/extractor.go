package reply_parser

import (
	"github.com/customeros/lenderinbox/dto"
)

type Extractor struct {
	AmountRules        []Rule[float64]
	FactorRateRules    []Rule[float64]
	TermRules          []Rule[string]
	ApplicationIDRules []Rule[string]
	LenderIDRules      []Rule[string]
}

func NewExtractor() *Extractor {
	return &Extractor{
		AmountRules:        DefaultAmountRules(),
		FactorRateRules:    DefaultFactorRateRules(),
		TermRules:          DefaultTermRules(),
		ApplicationIDRules: DefaultApplicationIDRules(),
		LenderIDRules:      DefaultLenderIDRules(),
	}
}

// Extract runs every field's rules independently. A field no rule matched stays nil.
func (e *Extractor) Extract(text string) dto.ExtractedFields {
	var fields dto.ExtractedFields

	if v, rule, ok := firstMatch(e.AmountRules, text); ok {
		fields.OfferedAmount = &v
		fields.MatchedRules = append(fields.MatchedRules, "amount:"+rule)
	}
	if v, rule, ok := firstMatch(e.FactorRateRules, text); ok {
		fields.FactorRate = &v
		fields.MatchedRules = append(fields.MatchedRules, "factor_rate:"+rule)
	}
	if v, rule, ok := firstMatch(e.TermRules, text); ok {
		fields.Terms = &v
		fields.MatchedRules = append(fields.MatchedRules, "terms:"+rule)
	}
	if v, rule, ok := firstMatch(e.ApplicationIDRules, text); ok {
		fields.ApplicationID = &v
		fields.MatchedRules = append(fields.MatchedRules, "application_id:"+rule)
	}
	if v, rule, ok := firstMatch(e.LenderIDRules, text); ok {
		fields.LenderID = &v
		fields.MatchedRules = append(fields.MatchedRules, "lender_id:"+rule)
	}

	return fields
}

func firstMatch[T any](rules []Rule[T], text string) (T, string, bool) {
	var zero T
	for _, rule := range rules {
		if v, ok := applyRule(rule, text); ok {
			return v, rule.Name, true
		}
	}
	return zero, "", false
}

// applyRule treats a panicking rule as a miss.
func applyRule[T any](rule Rule[T], text string) (value T, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			value, ok = zero, false
		}
	}()
	if rule.Apply == nil {
		return value, false
	}
	return rule.Apply(text)
}

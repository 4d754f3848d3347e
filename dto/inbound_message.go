package dto

import "time"

// InboundMessage is one fetched message. It lives only for the duration of a cycle.
type InboundMessage struct {
	UID               uint32
	Sender            string
	Subject           string
	Raw               []byte
	ProviderMessageID string
	Date              *time.Time
}

type ExtractedFields struct {
	OfferedAmount *float64 `json:"offeredAmount"`
	FactorRate    *float64 `json:"factorRate"`
	Terms         *string  `json:"terms"`
	ApplicationID *string  `json:"applicationId"`
	LenderID      *string  `json:"lenderId"`
	// MatchedRules names the rule that produced each populated field, e.g. "amount:money_token".
	MatchedRules []string `json:"matchedRules,omitempty"`
}

func (f ExtractedFields) HasOffer() bool {
	return f.OfferedAmount != nil || f.FactorRate != nil || f.Terms != nil
}

package dto

import "github.com/customeros/lenderinbox/internal/enum"

type Event struct {
	Event    EventDetails  `json:"event"`
	Metadata EventMetadata `json:"metadata"`
}

type EventDetails struct {
	Id         string          `json:"id"`
	EntityId   string          `json:"entityId"`
	EntityType enum.EntityType `json:"entityType"`
	EventType  string          `json:"eventType"`
	Data       interface{}     `json:"data"`
}

type EventMetadata struct {
	UberTraceId string `json:"uber-trace-id"`
	AppSource   string `json:"appSource"`
	RunId       string `json:"runId"`
	Timestamp   string `json:"timestamp"`
}

// SubmissionResponded is published after a lender reply updates a submission.
type SubmissionResponded struct {
	SubmissionID      string   `json:"submissionId"`
	ApplicationID     string   `json:"applicationId"`
	LenderID          string   `json:"lenderId"`
	ProviderMessageID string   `json:"providerMessageId"`
	OfferedAmount     *float64 `json:"offeredAmount,omitempty"`
	FactorRate        *float64 `json:"factorRate,omitempty"`
	Terms             *string  `json:"terms,omitempty"`
	ResponseDate      string   `json:"responseDate"`
}

// RunRequested asks the service to run one batch pass, e.g. after new credentials are stored.
type RunRequested struct {
	Reason        string `json:"reason"`
	ApplicationID string `json:"applicationId,omitempty"`
}

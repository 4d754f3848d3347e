package dto

import (
	"time"

	"github.com/customeros/lenderinbox/internal/enum"
)

type ProcessingOutcome struct {
	UID       uint32             `json:"uid"`
	MessageID string             `json:"messageId,omitempty"`
	Status    enum.OutcomeStatus `json:"status"`
	Reason    string             `json:"reason,omitempty"`
}

type MailboxSummary struct {
	Key            string              `json:"key"`
	Host           string              `json:"host"`
	Username       string              `json:"username"`
	ApplicationIDs []string            `json:"applicationIds"`
	Processed      int                 `json:"processed"`
	Skipped        int                 `json:"skipped"`
	Errored        int                 `json:"errored"`
	Outcomes       []ProcessingOutcome `json:"outcomes"`
	// Error is set when the mailbox could not be connected, selected or searched.
	Error string `json:"error,omitempty"`
	// ConnectionError is set when the connection dropped mid-cycle.
	ConnectionError string `json:"connectionError,omitempty"`
}

func (s *MailboxSummary) Add(outcome ProcessingOutcome) {
	s.Outcomes = append(s.Outcomes, outcome)
	switch outcome.Status {
	case enum.OutcomeProcessed:
		s.Processed++
	case enum.OutcomeSkipped:
		s.Skipped++
	case enum.OutcomeErrored:
		s.Errored++
	}
}

func (s *MailboxSummary) Failed() bool {
	return s.Error != "" || s.ConnectionError != ""
}

type RunSummary struct {
	RunID          string           `json:"runId"`
	StartedAt      time.Time        `json:"startedAt"`
	FinishedAt     time.Time        `json:"finishedAt"`
	ProcessedCount int              `json:"processedCount"`
	Mailboxes      []MailboxSummary `json:"mailboxes"`
	Errors         []string         `json:"errors,omitempty"`
}

func (r *RunSummary) AddMailbox(summary MailboxSummary) {
	r.Mailboxes = append(r.Mailboxes, summary)
	r.ProcessedCount += summary.Processed
	if summary.Error != "" {
		r.Errors = append(r.Errors, summary.Key+": "+summary.Error)
	} else if summary.ConnectionError != "" {
		r.Errors = append(r.Errors, summary.Key+": "+summary.ConnectionError)
	}
}

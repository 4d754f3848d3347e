package events

import (
	"context"

	"github.com/customeros/lenderinbox/dto"
	"github.com/customeros/lenderinbox/internal/logger"
)

// NoopPublisher is used when RABBITMQ_URL is not configured.
type NoopPublisher struct {
	log logger.Logger
}

func NewNoopPublisher(log logger.Logger) *NoopPublisher {
	return &NoopPublisher{log: log}
}

func (p *NoopPublisher) PublishSubmissionResponded(_ context.Context, event dto.SubmissionResponded) error {
	p.log.Debugf("Events disabled, dropping SubmissionResponded for submission %s", event.SubmissionID)
	return nil
}

func (p *NoopPublisher) Close() error {
	return nil
}

package interfaces

import (
	"context"

	"github.com/customeros/lenderinbox/dto"
)

type EventPublisher interface {
	PublishSubmissionResponded(ctx context.Context, event dto.SubmissionResponded) error
	Close() error
}

type EventListener interface {
	Handle(ctx context.Context, event any) error
	GetEventType() string
	GetQueueName() string
}

type EventSubscriber interface {
	RegisterListener(listener EventListener)
	ListenQueue(queueName string) error
	Close() error
}

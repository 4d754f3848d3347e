package events

import (
	"fmt"

	"github.com/customeros/lenderinbox/interfaces"
	"github.com/customeros/lenderinbox/internal/logger"
)

type EventsService struct {
	Publisher  interfaces.EventPublisher
	Subscriber *RabbitMQSubscriber
}

// NewEventsService falls back to a no-op publisher and no subscriber when
// rabbitmqURL is empty.
func NewEventsService(rabbitmqURL string, log logger.Logger, publisherConfig *PublisherConfig) (*EventsService, error) {
	if rabbitmqURL == "" {
		log.Warn("RABBITMQ_URL not set, events disabled")
		return &EventsService{Publisher: NewNoopPublisher(log)}, nil
	}

	publisher, err := NewRabbitMQPublisher(rabbitmqURL, log, publisherConfig)
	if err != nil {
		return nil, err
	}

	subscriber, err := NewRabbitMQSubscriber(rabbitmqURL, log, nil)
	if err != nil {
		_ = publisher.Close()
		return nil, err
	}

	return &EventsService{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// ListenForRunRequests is a no-op when events are disabled.
func (s *EventsService) ListenForRunRequests(listener interfaces.EventListener) error {
	if s.Subscriber == nil {
		return nil
	}
	s.Subscriber.RegisterListener(listener)
	return s.Subscriber.ListenQueue(listener.GetQueueName())
}

func (s *EventsService) Close() error {
	var errs []error

	if s.Subscriber != nil {
		if err := s.Subscriber.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing events service: %v", errs)
	}

	return nil
}

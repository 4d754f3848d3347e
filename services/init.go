package services

import (
	"github.com/customeros/lenderinbox/config"
	"github.com/customeros/lenderinbox/interfaces"
	"github.com/customeros/lenderinbox/internal/logger"
	"github.com/customeros/lenderinbox/internal/repository"
	"github.com/customeros/lenderinbox/services/email_filter"
	"github.com/customeros/lenderinbox/services/events"
	"github.com/customeros/lenderinbox/services/identity"
	"github.com/customeros/lenderinbox/services/imap"
	"github.com/customeros/lenderinbox/services/listener"
	"github.com/customeros/lenderinbox/services/reply_parser"
	"github.com/customeros/lenderinbox/services/reply_processor"
	"github.com/customeros/lenderinbox/services/submission"
)

type Services struct {
	EventsService   *events.EventsService
	ReplyProcessor  interfaces.ReplyProcessor
	ListenerService *listener.Service
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	listenerConfig := cfg.ListenerConfig
	if listenerConfig == nil {
		listenerConfig = config.DefaultListenerConfig()
	}

	// events
	eventsService, err := events.NewEventsService(cfg.AppConfig.RabbitMQURL, log, events.DefaultPublisherConfig())
	if err != nil {
		return nil, err
	}

	processor := reply_processor.NewReplyProcessor(
		email_filter.NewEmailFilterService(),
		reply_parser.NewNormalizer(listenerConfig.StripQuotedReplies),
		reply_parser.NewExtractor(),
		identity.NewResolver(repos.LenderRepository, log),
		submission.NewUpdater(repos.SubmissionRepository, log, listenerConfig.ResponseMaxChars),
		eventsService.Publisher,
		log,
	)

	listenerService := listener.NewService(
		repos.MailboxCredentialRepository,
		imap.NewDialer(log, listenerConfig),
		processor,
		listenerConfig,
		log,
	)

	return &Services{
		EventsService:   eventsService,
		ReplyProcessor:  processor,
		ListenerService: listenerService,
	}, nil
}

package reply_processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/lenderinbox/dto"
	"github.com/customeros/lenderinbox/interfaces"
	"github.com/customeros/lenderinbox/internal/enum"
	lenderinbox_errors "github.com/customeros/lenderinbox/internal/errors"
	"github.com/customeros/lenderinbox/internal/logger"
	"github.com/customeros/lenderinbox/internal/metrics"
	"github.com/customeros/lenderinbox/internal/models"
	"github.com/customeros/lenderinbox/internal/tracing"
	"github.com/customeros/lenderinbox/internal/utils"
	"github.com/customeros/lenderinbox/services/identity"
	"github.com/customeros/lenderinbox/services/reply_parser"
	"github.com/customeros/lenderinbox/services/submission"
)

// skippedErrors are business-rule misses: the message is not actionable and is
// not an operational failure.
var skippedErrors = []error{
	lenderinbox_errors.ErrNoApplicationID,
	lenderinbox_errors.ErrApplicationNotServed,
	lenderinbox_errors.ErrLenderNotFound,
	lenderinbox_errors.ErrLenderAmbiguous,
	lenderinbox_errors.ErrSubmissionNotFound,
	lenderinbox_errors.ErrAutomatedMessage,
}

type replyProcessor struct {
	filter     interfaces.EmailFilterService
	normalizer *reply_parser.Normalizer
	extractor  *reply_parser.Extractor
	resolver   *identity.Resolver
	updater    *submission.Updater
	publisher  interfaces.EventPublisher
	log        logger.Logger
}

func NewReplyProcessor(
	filter interfaces.EmailFilterService,
	normalizer *reply_parser.Normalizer,
	extractor *reply_parser.Extractor,
	resolver *identity.Resolver,
	updater *submission.Updater,
	publisher interfaces.EventPublisher,
	log logger.Logger,
) interfaces.ReplyProcessor {
	return &replyProcessor{
		filter:     filter,
		normalizer: normalizer,
		extractor:  extractor,
		resolver:   resolver,
		updater:    updater,
		publisher:  publisher,
		log:        log,
	}
}

// Process screens out automated mail, then runs normalize, extract, resolve and
// update for one message. It
// always returns an outcome; failures are classified, never propagated.
func (p *replyProcessor) Process(ctx context.Context, mailbox *models.MailboxConfig, message *dto.InboundMessage) dto.ProcessingOutcome {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ReplyProcessor.Process")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("message.uid", message.UID)
	span.SetTag("message.id", message.ProviderMessageID)

	outcome := dto.ProcessingOutcome{
		UID:       message.UID,
		MessageID: message.ProviderMessageID,
	}

	if p.filter != nil {
		if classification, reason := p.filter.ScanMessage(ctx, message); classification != enum.EmailOK {
			span.SetTag("classification", classification.String())
			return classify(outcome, fmt.Errorf("%s, %s: %w", classification, reason, lenderinbox_errors.ErrAutomatedMessage))
		}
	}

	body := p.normalizer.Normalize(message.Raw)
	fields := p.extractor.Extract(body)
	span.LogKV("matchedRules", fields.MatchedRules)
	span.SetTag("offer.extracted", fields.HasOffer())

	if fields.ApplicationID == nil {
		return classify(outcome, lenderinbox_errors.ErrNoApplicationID)
	}
	applicationID := *fields.ApplicationID
	span.SetTag("application.id", applicationID)

	if mailbox != nil && !mailbox.Serves(applicationID) {
		return classify(outcome, fmt.Errorf("%s: %w", applicationID, lenderinbox_errors.ErrApplicationNotServed))
	}

	resolution, err := p.resolver.Resolve(ctx, message.Sender, fields.LenderID)
	if err != nil {
		tracing.TraceErr(span, err)
		return classify(outcome, err)
	}

	result, err := p.updater.Apply(ctx, submission.Reply{
		ApplicationID:     applicationID,
		LenderID:          resolution.LenderID,
		Fields:            fields,
		Body:              body,
		ProviderMessageID: message.ProviderMessageID,
		ReceivedAt:        message.Date,
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return classify(outcome, err)
	}

	metrics.SubmissionsUpdatedTotal.Inc()
	p.log.Infof("[%s] message %d updated submission %s (lender %s via %s)", utils.GetMailboxKeyFromContext(ctx), message.UID, result.SubmissionID, resolution.LenderID, resolution.Method)
	if !fields.HasOffer() {
		p.log.Infof("[%s] message %d carried no offer terms, recorded as response only", utils.GetMailboxKeyFromContext(ctx), message.UID)
	}

	if !result.Duplicate {
		p.publishResponded(ctx, result, fields)
	}

	outcome.Status = enum.OutcomeProcessed
	return outcome
}

// publishResponded is best effort; a failed notification does not change the outcome.
func (p *replyProcessor) publishResponded(ctx context.Context, result *submission.Result, fields dto.ExtractedFields) {
	if p.publisher == nil {
		return
	}
	err := p.publisher.PublishSubmissionResponded(ctx, dto.SubmissionResponded{
		SubmissionID:      result.SubmissionID,
		ApplicationID:     result.ApplicationID,
		LenderID:          result.LenderID,
		ProviderMessageID: result.Update.ProviderMessageID,
		OfferedAmount:     fields.OfferedAmount,
		FactorRate:        fields.FactorRate,
		Terms:             fields.Terms,
		ResponseDate:      result.Update.ResponseDate.Format(time.RFC3339),
	})
	if err != nil {
		metrics.EventsPublishFailuresTotal.Inc()
		p.log.Errorf("Failed to publish SubmissionResponded for %s: %v", result.SubmissionID, err)
	}
}

func classify(outcome dto.ProcessingOutcome, err error) dto.ProcessingOutcome {
	outcome.Reason = err.Error()
	outcome.Status = enum.OutcomeErrored
	for _, skipped := range skippedErrors {
		if errors.Is(err, skipped) {
			outcome.Status = enum.OutcomeSkipped
			break
		}
	}
	if errors.Is(err, lenderinbox_errors.ErrNoApplicationID) {
		outcome.Reason = lenderinbox_errors.ErrNoApplicationID.Error()
	}
	return outcome
}

package listener

import (
	"context"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/customeros/lenderinbox/dto"
	"github.com/customeros/lenderinbox/interfaces"
	"github.com/customeros/lenderinbox/internal/enum"
	lenderinbox_errors "github.com/customeros/lenderinbox/internal/errors"
	"github.com/customeros/lenderinbox/internal/logger"
	"github.com/customeros/lenderinbox/internal/metrics"
	"github.com/customeros/lenderinbox/internal/models"
	"github.com/customeros/lenderinbox/internal/tracing"
	"github.com/customeros/lenderinbox/internal/utils"
)

// Session runs one unseen-search-and-process cycle over an open mailbox connection.
type Session struct {
	processor interfaces.ReplyProcessor
	log       logger.Logger
}

func NewSession(processor interfaces.ReplyProcessor, log logger.Logger) *Session {
	return &Session{
		processor: processor,
		log:       log,
	}
}

// Run selects INBOX, searches unseen messages since the cutoff and processes
// them one at a time. Every message that is attempted gets flagged \Seen unless
// the connection itself is gone.
func (s *Session) Run(ctx context.Context, client interfaces.MailboxClient, cfg *models.MailboxConfig, since time.Time) dto.MailboxSummary {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Session.Run")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag(tracing.SpanTagMailbox, cfg.Key)

	ctx = utils.SetMailboxKeyInContext(ctx, cfg.Key)
	summary := dto.MailboxSummary{
		Key:            cfg.Key,
		Host:           cfg.Host,
		Username:       cfg.Username,
		ApplicationIDs: cfg.ApplicationIDs,
	}

	if err := client.SelectInbox(ctx); err != nil {
		tracing.TraceErr(span, err)
		summary.Error = err.Error()
		return summary
	}

	uids, err := client.SearchUnseenSince(ctx, since)
	if err != nil {
		tracing.TraceErr(span, err)
		summary.Error = err.Error()
		return summary
	}
	span.LogFields(tracingLog.Int("unseen", len(uids)))
	if len(uids) > 0 {
		s.log.Infof("[%s] %d unseen messages since %s", cfg.Key, len(uids), since.Format(time.RFC3339))
	}

	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			summary.Error = fmt.Sprintf("cycle interrupted: %v", err)
			break
		}

		outcome, connErr := s.processMessage(ctx, client, cfg, uid)
		summary.Add(outcome)
		metrics.RecordOutcome(cfg.Key, outcome.Status)
		if connErr != nil {
			s.log.Warnf("[%s] connection error, stopping cycle: %v", cfg.Key, connErr)
			summary.ConnectionError = connErr.Error()
			break
		}
	}

	span.LogFields(
		tracingLog.Int("processed", summary.Processed),
		tracingLog.Int("skipped", summary.Skipped),
		tracingLog.Int("errored", summary.Errored),
	)
	return summary
}

func (s *Session) processMessage(ctx context.Context, client interfaces.MailboxClient, cfg *models.MailboxConfig, uid uint32) (outcome dto.ProcessingOutcome, connErr error) {
	outcome = dto.ProcessingOutcome{UID: uid}

	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("[%s] recovered from panic processing uid %d: %v", cfg.Key, uid, r)
			outcome = dto.ProcessingOutcome{
				UID:       uid,
				MessageID: outcome.MessageID,
				Status:    enum.OutcomeErrored,
				Reason:    fmt.Sprintf("panic: %v", r),
			}
		}
		if connErr != nil {
			return
		}
		if err := client.MarkSeen(ctx, uid); err != nil {
			s.log.Warnf("[%s] failed to flag uid %d as seen: %v", cfg.Key, uid, err)
			if lenderinbox_errors.IsConnectionError(err) {
				connErr = err
			}
		}
	}()

	message, err := client.Fetch(ctx, uid)
	if err != nil {
		outcome.Status = enum.OutcomeErrored
		outcome.Reason = err.Error()
		if lenderinbox_errors.IsConnectionError(err) {
			connErr = err
		}
		return outcome, connErr
	}

	outcome = s.processor.Process(ctx, cfg, message)
	outcome.UID = uid
	return outcome, nil
}

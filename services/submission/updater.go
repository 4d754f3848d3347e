package submission

import (
	"context"
	"strings"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/lenderinbox/dto"
	"github.com/customeros/lenderinbox/interfaces"
	"github.com/customeros/lenderinbox/internal/enum"
	lenderinbox_errors "github.com/customeros/lenderinbox/internal/errors"
	"github.com/customeros/lenderinbox/internal/logger"
	"github.com/customeros/lenderinbox/internal/models"
	"github.com/customeros/lenderinbox/internal/tracing"
	"github.com/customeros/lenderinbox/internal/utils"
)

const DefaultResponseMaxChars = 10000

type Reply struct {
	ApplicationID     string
	LenderID          string
	Fields            dto.ExtractedFields
	Body              string
	ProviderMessageID string
	ReceivedAt        *time.Time
}

type Result struct {
	SubmissionID string
	// ApplicationID and LenderID are the ids as stored on the submission row.
	ApplicationID string
	LenderID      string
	Update       models.SubmissionUpdate
	// Duplicate is true when the row already carried this provider message id.
	Duplicate bool
}

type Updater struct {
	submissions      interfaces.SubmissionRepository
	log              logger.Logger
	responseMaxChars int
	now              func() time.Time
}

func NewUpdater(submissions interfaces.SubmissionRepository, log logger.Logger, responseMaxChars int) *Updater {
	if responseMaxChars <= 0 {
		responseMaxChars = DefaultResponseMaxChars
	}
	return &Updater{
		submissions:      submissions,
		log:              log,
		responseMaxChars: responseMaxChars,
		now:              utils.Now,
	}
}

// Apply writes one reply onto the submission keyed by (application, lender).
// It issues a single update and never retries it.
func (u *Updater) Apply(ctx context.Context, reply Reply) (*Result, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Updater.Apply")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("application.id", reply.ApplicationID)
	span.SetTag("lender.id", reply.LenderID)

	if reply.ApplicationID == "" || reply.LenderID == "" {
		err := fmt.Errorf("application and lender are required: %w", lenderinbox_errors.ErrInvalidSubmissionData)
		tracing.TraceErr(span, err)
		return nil, err
	}

	submissions, err := u.submissions.GetSubmissionsByApplication(ctx, reply.ApplicationID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("load submissions for application %s: %w", reply.ApplicationID, err)
	}

	target := findForLender(submissions, reply.LenderID)
	if target == nil {
		return nil, fmt.Errorf("application %s lender %s: %w", reply.ApplicationID, reply.LenderID, lenderinbox_errors.ErrSubmissionNotFound)
	}
	tracing.TagEntity(span, target.ID)

	update := u.buildUpdate(reply)
	if err := u.submissions.UpdateSubmission(ctx, target.ID, update); err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("update submission %s: %w", target.ID, err)
	}

	duplicate := reply.ProviderMessageID != "" && target.ProviderMessageID == reply.ProviderMessageID
	if duplicate {
		u.log.Infof("Submission %s already recorded message %s", target.ID, reply.ProviderMessageID)
	}

	return &Result{
		SubmissionID:  target.ID,
		ApplicationID: target.ApplicationID,
		LenderID:      target.LenderID,
		Update:        update,
		Duplicate:     duplicate,
	}, nil
}

func (u *Updater) buildUpdate(reply Reply) models.SubmissionUpdate {
	responseDate := u.now()
	if reply.ReceivedAt != nil && !reply.ReceivedAt.IsZero() {
		responseDate = reply.ReceivedAt.UTC()
	}

	return models.SubmissionUpdate{
		Status:            enum.SubmissionResponded,
		Response:          utils.TruncateRunes(reply.Body, u.responseMaxChars),
		ResponseDate:      responseDate,
		ProviderMessageID: reply.ProviderMessageID,
		OfferedAmount:     reply.Fields.OfferedAmount,
		FactorRate:        reply.Fields.FactorRate,
		Terms:             reply.Fields.Terms,
	}
}

// findForLender compares ids case-insensitively; extracted UUIDs are lowercase
// but stored ids may not be.
func findForLender(submissions []*models.Submission, lenderID string) *models.Submission {
	for _, s := range submissions {
		if s != nil && strings.EqualFold(s.LenderID, lenderID) {
			return s
		}
	}
	return nil
}

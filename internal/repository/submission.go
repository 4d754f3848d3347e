package repository

import (
	"context"
	"strings"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/lenderinbox/interfaces"
	lenderinbox_errors "github.com/customeros/lenderinbox/internal/errors"
	"github.com/customeros/lenderinbox/internal/models"
	"github.com/customeros/lenderinbox/internal/tracing"
)

type submissionRepository struct {
	db *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) interfaces.SubmissionRepository {
	return &submissionRepository{db: db}
}

func submissionsByApplication(applicationID string) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where("LOWER(application_id) = ?", strings.ToLower(strings.TrimSpace(applicationID))).Order("created_at ASC")
	}
}

func (r *submissionRepository) GetSubmissionsByApplication(ctx context.Context, applicationID string) ([]*models.Submission, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "submissionRepository.GetSubmissionsByApplication")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.SetTag("application.id", applicationID)

	var submissions []*models.Submission
	err := r.db.WithContext(ctx).Scopes(submissionsByApplication(applicationID)).Find(&submissions).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return submissions, nil
}

// UpdateSubmission writes only the columns carried by update.
func (r *submissionRepository) UpdateSubmission(ctx context.Context, id string, update models.SubmissionUpdate) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "submissionRepository.UpdateSubmission")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	result := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ?", id).
		Updates(update.Columns())
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		err := fmt.Errorf("submission %s: %w", id, lenderinbox_errors.ErrSubmissionNotFound)
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

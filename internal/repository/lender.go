package repository

import (
	"context"
	"strings"

	"github.com/lib/pq"
	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/lenderinbox/interfaces"
	"github.com/customeros/lenderinbox/internal/models"
	"github.com/customeros/lenderinbox/internal/tracing"
)

type lenderRepository struct {
	db *gorm.DB
}

func NewLenderRepository(db *gorm.DB) interfaces.LenderRepository {
	return &lenderRepository{db: db}
}

func lenderByEmail(email string) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Model(&models.Lender{}).Where("LOWER(contact_email) = ?", strings.ToLower(strings.TrimSpace(email)))
	}
}

func lendersByIDs(ids []string) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		lowered := make([]string, 0, len(ids))
		for _, id := range ids {
			lowered = append(lowered, strings.ToLower(strings.TrimSpace(id)))
		}
		return tx.Model(&models.Lender{}).Where("LOWER(id) = ANY(?)", pq.Array(lowered))
	}
}

func (r *lenderRepository) FindLenderIDsByEmail(ctx context.Context, email string) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "lenderRepository.FindLenderIDsByEmail")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.SetTag("email", email)

	if strings.TrimSpace(email) == "" {
		return []string{}, nil
	}

	var ids []string
	err := r.db.WithContext(ctx).Scopes(lenderByEmail(email)).Order("id ASC").Pluck("id", &ids).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.LogKV("result.count", len(ids))
	return ids, nil
}

func (r *lenderRepository) FindContactEmails(ctx context.Context, lenderIDs []string) (map[string]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "lenderRepository.FindContactEmails")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.LogKV("lenderIds", lenderIDs)

	result := make(map[string]string, len(lenderIDs))
	if len(lenderIDs) == 0 {
		return result, nil
	}

	var lenders []models.Lender
	err := r.db.WithContext(ctx).Scopes(lendersByIDs(lenderIDs)).Select("id", "contact_email").Find(&lenders).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	for _, lender := range lenders {
		result[lender.ID] = lender.ContactEmail
	}
	return result, nil
}

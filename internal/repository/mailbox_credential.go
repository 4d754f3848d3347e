package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/lenderinbox/interfaces"
	"github.com/customeros/lenderinbox/internal/models"
	"github.com/customeros/lenderinbox/internal/tracing"
)

type mailboxCredentialRepository struct {
	db *gorm.DB
}

func NewMailboxCredentialRepository(db *gorm.DB) interfaces.MailboxCredentialRepository {
	return &mailboxCredentialRepository{db: db}
}

func activeCredentials(tx *gorm.DB) *gorm.DB {
	return tx.Where("active = ?", true).Order("created_at ASC").Order("id ASC")
}

// GetActiveMailboxCredentials returns every active row, oldest first, so that
// grouping keeps a stable application order between loads.
func (r *mailboxCredentialRepository) GetActiveMailboxCredentials(ctx context.Context) ([]*models.MailboxCredential, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxCredentialRepository.GetActiveMailboxCredentials")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var credentials []*models.MailboxCredential
	err := r.db.WithContext(ctx).Scopes(activeCredentials).Find(&credentials).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.LogKV("result.count", len(credentials))
	return credentials, nil
}

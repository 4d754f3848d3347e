package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/customeros/lenderinbox/internal/enum"
	"github.com/customeros/lenderinbox/internal/models"
	"github.com/customeros/lenderinbox/internal/utils"
)

// dryRunDB builds statements without touching a server.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=test password=test dbname=test port=5432 sslmode=disable",
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return db
}

func TestActiveCredentialsQuery(t *testing.T) {
	db := dryRunDB(t)

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var credentials []*models.MailboxCredential
		return tx.Scopes(activeCredentials).Find(&credentials)
	})

	assert.Contains(t, sql, `FROM "application_mailbox_credentials"`)
	assert.Contains(t, sql, "active = true")
	assert.Contains(t, sql, "ORDER BY created_at ASC")
}

func TestLenderByEmailQuery(t *testing.T) {
	db := dryRunDB(t)

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var ids []string
		return tx.Scopes(lenderByEmail("  Offers@FundCo.com ")).Pluck("id", &ids)
	})

	assert.Contains(t, sql, `FROM "lenders"`)
	assert.Contains(t, sql, "LOWER(contact_email) = 'offers@fundco.com'")
}

func TestLendersByIDsQuery(t *testing.T) {
	db := dryRunDB(t)

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var lenders []models.Lender
		return tx.Scopes(lendersByIDs([]string{"l1", "l2"})).Find(&lenders)
	})

	assert.Contains(t, sql, `FROM "lenders"`)
	assert.Contains(t, sql, "LOWER(id) = ANY(")
}

func TestSubmissionQueries(t *testing.T) {
	db := dryRunDB(t)

	selectSQL := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var submissions []*models.Submission
		return tx.Scopes(submissionsByApplication("app-1")).Find(&submissions)
	})
	assert.Contains(t, selectSQL, `FROM "submissions"`)
	assert.Contains(t, selectSQL, "LOWER(application_id) = 'app-1'")

	upperSQL := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var submissions []*models.Submission
		return tx.Scopes(submissionsByApplication(" APP-1 ")).Find(&submissions)
	})
	assert.Contains(t, upperSQL, "LOWER(application_id) = 'app-1'")

	update := models.SubmissionUpdate{
		Status:            enum.SubmissionResponded,
		Response:          "offer attached",
		ProviderMessageID: "m1@lender",
		FactorRate:        utils.ToPtr(1.25),
	}
	updateSQL := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return tx.Model(&models.Submission{}).Where("id = ?", "sub-1").Updates(update.Columns())
	})
	assert.Contains(t, updateSQL, `UPDATE "submissions"`)
	assert.Contains(t, updateSQL, `"factor_rate"`)
	assert.Contains(t, updateSQL, `"updated_at"`)
	assert.Contains(t, updateSQL, "responded")
	assert.NotContains(t, updateSQL, "offered_amount")
	assert.NotContains(t, updateSQL, "terms")
}

func TestFindContactEmails_EmptyInput(t *testing.T) {
	repo := NewLenderRepository(dryRunDB(t))

	emails, err := repo.FindContactEmails(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, emails)

	ids, err := repo.FindLenderIDsByEmail(context.Background(), "  ")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

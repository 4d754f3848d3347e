package submission

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/lenderinbox/dto"
	"github.com/customeros/lenderinbox/internal/enum"
	lenderinbox_errors "github.com/customeros/lenderinbox/internal/errors"
	"github.com/customeros/lenderinbox/internal/logger"
	"github.com/customeros/lenderinbox/internal/models"
	"github.com/customeros/lenderinbox/internal/utils"
)

// memorySubmissionRepository applies updates the way the postgres repository
// does: only the columns carried by the update change.
type memorySubmissionRepository struct {
	mu          sync.Mutex
	rows        map[string]*models.Submission
	updateCalls int
	updateErr   error
}

func newMemoryRepo(rows ...*models.Submission) *memorySubmissionRepository {
	repo := &memorySubmissionRepository{rows: map[string]*models.Submission{}}
	for _, row := range rows {
		repo.rows[row.ID] = row
	}
	return repo
}

func (r *memorySubmissionRepository) GetSubmissionsByApplication(_ context.Context, applicationID string) ([]*models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.Submission
	for _, row := range r.rows {
		if strings.EqualFold(row.ApplicationID, applicationID) {
			copied := *row
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *memorySubmissionRepository) UpdateSubmission(_ context.Context, id string, update models.SubmissionUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateCalls++
	if r.updateErr != nil {
		return r.updateErr
	}
	row, ok := r.rows[id]
	if !ok {
		return lenderinbox_errors.ErrSubmissionNotFound
	}
	columns := update.Columns()
	row.Status = update.Status
	row.Response = update.Response
	row.ResponseDate = utils.ToPtr(update.ResponseDate)
	row.ProviderMessageID = update.ProviderMessageID
	if _, ok := columns["offered_amount"]; ok {
		row.OfferedAmount = update.OfferedAmount
	}
	if _, ok := columns["factor_rate"]; ok {
		row.FactorRate = update.FactorRate
	}
	if _, ok := columns["terms"]; ok {
		row.Terms = update.Terms
	}
	return nil
}

func (r *memorySubmissionRepository) row(id string) models.Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.rows[id]
}

func testLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true, LogLevel: "error"})
	appLogger.InitLogger()
	return appLogger
}

func pendingRows() []*models.Submission {
	return []*models.Submission{
		{ID: "sub-1", ApplicationID: "app-1", LenderID: "lender-1", Status: enum.SubmissionSent},
		{ID: "sub-2", ApplicationID: "app-1", LenderID: "lender-2", Status: enum.SubmissionSent},
	}
}

func TestUpdater_Apply(t *testing.T) {
	repo := newMemoryRepo(pendingRows()...)
	updater := NewUpdater(repo, testLogger(), 0)
	received := time.Date(2025, 3, 4, 10, 15, 0, 0, time.UTC)

	result, err := updater.Apply(context.Background(), Reply{
		ApplicationID: "app-1",
		LenderID:      "lender-2",
		Fields: dto.ExtractedFields{
			OfferedAmount: utils.ToPtr(150000.0),
			FactorRate:    utils.ToPtr(1.3),
			Terms:         utils.ToPtr("12 months"),
		},
		Body:              "We are pleased to offer $150,000",
		ProviderMessageID: "abc123@fundco.com",
		ReceivedAt:        &received,
	})

	require.NoError(t, err)
	assert.Equal(t, "sub-2", result.SubmissionID)
	assert.False(t, result.Duplicate)

	row := repo.row("sub-2")
	assert.Equal(t, enum.SubmissionResponded, row.Status)
	assert.Equal(t, 150000.0, *row.OfferedAmount)
	assert.Equal(t, 1.3, *row.FactorRate)
	assert.Equal(t, "12 months", *row.Terms)
	assert.Equal(t, received, *row.ResponseDate)
	assert.Equal(t, "abc123@fundco.com", row.ProviderMessageID)
	assert.Equal(t, enum.SubmissionSent, repo.row("sub-1").Status)
	assert.Equal(t, 1, repo.updateCalls)
}

func TestUpdater_Apply_IsIdempotent(t *testing.T) {
	reply := Reply{
		ApplicationID:     "app-1",
		LenderID:          "lender-1",
		Fields:            dto.ExtractedFields{OfferedAmount: utils.ToPtr(80000.0)},
		Body:              "We can do $80,000",
		ProviderMessageID: "m-1@lender",
		ReceivedAt:        utils.ToPtr(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)),
	}

	once := newMemoryRepo(pendingRows()...)
	_, err := NewUpdater(once, testLogger(), 0).Apply(context.Background(), reply)
	require.NoError(t, err)

	twice := newMemoryRepo(pendingRows()...)
	updater := NewUpdater(twice, testLogger(), 0)
	_, err = updater.Apply(context.Background(), reply)
	require.NoError(t, err)
	second, err := updater.Apply(context.Background(), reply)
	require.NoError(t, err)

	assert.Equal(t, once.row("sub-1"), twice.row("sub-1"))
	assert.True(t, second.Duplicate)
}

func TestUpdater_Apply_AbsentFieldsLeaveStoredValues(t *testing.T) {
	rows := pendingRows()
	rows[0].OfferedAmount = utils.ToPtr(50000.0)
	rows[0].Terms = utils.ToPtr("6 months")
	repo := newMemoryRepo(rows...)

	_, err := NewUpdater(repo, testLogger(), 0).Apply(context.Background(), Reply{
		ApplicationID: "app-1",
		LenderID:      "lender-1",
		Fields:        dto.ExtractedFields{FactorRate: utils.ToPtr(1.4)},
		Body:          "Updated factor rate: 1.4",
	})
	require.NoError(t, err)

	row := repo.row("sub-1")
	assert.Equal(t, 50000.0, *row.OfferedAmount)
	assert.Equal(t, "6 months", *row.Terms)
	assert.Equal(t, 1.4, *row.FactorRate)
}

func TestUpdater_Apply_TruncatesResponse(t *testing.T) {
	repo := newMemoryRepo(pendingRows()...)
	body := strings.Repeat("é", 25)

	result, err := NewUpdater(repo, testLogger(), 10).Apply(context.Background(), Reply{
		ApplicationID: "app-1",
		LenderID:      "lender-1",
		Body:          body,
	})

	require.NoError(t, err)
	assert.Equal(t, 10, utf8.RuneCountInString(result.Update.Response))
	assert.True(t, utf8.ValidString(repo.row("sub-1").Response))
}

func TestUpdater_Apply_MissingDateFallsBackToNow(t *testing.T) {
	repo := newMemoryRepo(pendingRows()...)
	updater := NewUpdater(repo, testLogger(), 0)
	fixed := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	updater.now = func() time.Time { return fixed }

	result, err := updater.Apply(context.Background(), Reply{ApplicationID: "app-1", LenderID: "lender-1"})

	require.NoError(t, err)
	assert.Equal(t, fixed, result.Update.ResponseDate)
}

func TestUpdater_Apply_NoSubmission(t *testing.T) {
	repo := newMemoryRepo(pendingRows()...)

	_, err := NewUpdater(repo, testLogger(), 0).Apply(context.Background(), Reply{ApplicationID: "app-1", LenderID: "lender-3"})

	assert.ErrorIs(t, err, lenderinbox_errors.ErrSubmissionNotFound)
	assert.Equal(t, 0, repo.updateCalls)
}

func TestUpdater_Apply_UpdateFailureIsNotRetried(t *testing.T) {
	repo := newMemoryRepo(pendingRows()...)
	repo.updateErr = errors.New("write rejected")

	_, err := NewUpdater(repo, testLogger(), 0).Apply(context.Background(), Reply{ApplicationID: "app-1", LenderID: "lender-1"})

	assert.ErrorIs(t, err, repo.updateErr)
	assert.Equal(t, 1, repo.updateCalls)
}

func TestUpdater_Apply_RequiresIdentity(t *testing.T) {
	repo := newMemoryRepo(pendingRows()...)

	_, err := NewUpdater(repo, testLogger(), 0).Apply(context.Background(), Reply{ApplicationID: "app-1"})

	assert.ErrorIs(t, err, lenderinbox_errors.ErrInvalidSubmissionData)
}

func TestUpdater_Apply_MatchesStoredIDsIgnoringCase(t *testing.T) {
	repo := newMemoryRepo(&models.Submission{
		ID: "sub-9", ApplicationID: "3FA85F64-5717-4562-B3FC-2C963F66AFA6", LenderID: "LENDER-9", Status: enum.SubmissionSent,
	})

	result, err := NewUpdater(repo, testLogger(), 0).Apply(context.Background(), Reply{
		ApplicationID:     "3fa85f64-5717-4562-b3fc-2c963f66afa6",
		LenderID:          "lender-9",
		ProviderMessageID: "m9@lender",
	})

	require.NoError(t, err)
	assert.Equal(t, "sub-9", result.SubmissionID)
	assert.Equal(t, "LENDER-9", result.LenderID)
	assert.Equal(t, "3FA85F64-5717-4562-B3FC-2C963F66AFA6", result.ApplicationID)
	assert.Equal(t, enum.SubmissionResponded, repo.row("sub-9").Status)
}

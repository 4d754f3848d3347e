package interfaces

import (
	"context"

	"github.com/customeros/lenderinbox/internal/models"
)

type MailboxCredentialRepository interface {
	GetActiveMailboxCredentials(ctx context.Context) ([]*models.MailboxCredential, error)
}

type LenderRepository interface {
	FindLenderIDsByEmail(ctx context.Context, email string) ([]string, error)
	// FindContactEmails returns lender id -> contact email for the given ids.
	FindContactEmails(ctx context.Context, lenderIDs []string) (map[string]string, error)
}

type SubmissionRepository interface {
	GetSubmissionsByApplication(ctx context.Context, applicationID string) ([]*models.Submission, error)
	UpdateSubmission(ctx context.Context, id string, update models.SubmissionUpdate) error
}

package interfaces

import (
	"context"
	"time"

	"github.com/customeros/lenderinbox/dto"
	"github.com/customeros/lenderinbox/internal/models"
)

type MailboxDialer interface {
	Dial(ctx context.Context, cfg *models.MailboxConfig) (MailboxClient, error)
}

// MailboxClient is one authenticated IMAP connection.
type MailboxClient interface {
	SelectInbox(ctx context.Context) error
	SearchUnseenSince(ctx context.Context, since time.Time) ([]uint32, error)
	Fetch(ctx context.Context, uid uint32) (*dto.InboundMessage, error)
	MarkSeen(ctx context.Context, uid uint32) error
	// WaitForUpdate blocks until the server reports new mail, the poll interval
	// elapses, or ctx is done.
	WaitForUpdate(ctx context.Context) error
	Logout() error
}

type MailboxStatus struct {
	Key            string    `json:"key"`
	ApplicationIDs []string  `json:"applicationIds"`
	Connected      bool      `json:"connected"`
	LastError      string    `json:"lastError,omitempty"`
	LastChecked    time.Time `json:"lastChecked"`
	Processed      int       `json:"processed"`
	Skipped        int       `json:"skipped"`
	Errored        int       `json:"errored"`
}

type BatchRunner interface {
	RunOnce(ctx context.Context) (*dto.RunSummary, error)
}

// ApplicationRunner can also limit a run to the mailboxes serving one application.
type ApplicationRunner interface {
	BatchRunner
	RunOnceForApplication(ctx context.Context, applicationID string) (*dto.RunSummary, error)
}

type ListenerService interface {
	ApplicationRunner
	Run(ctx context.Context) error
	Stop()
	Status() map[string]MailboxStatus
}

type ReplyProcessor interface {
	Process(ctx context.Context, mailbox *models.MailboxConfig, message *dto.InboundMessage) dto.ProcessingOutcome
}

package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/lenderinbox/internal/utils"
)

// MailboxCredential is one application's IMAP credential row. Several rows may
// point at the same physical mailbox.
type MailboxCredential struct {
	ID            string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	ApplicationID string `gorm:"column:application_id;type:varchar(50);index;not null" json:"applicationId"`
	// IMAP Configuration
	ImapHost     string `gorm:"column:imap_host;type:varchar(255)" json:"imapHost"`
	ImapPort     int    `gorm:"column:imap_port;not null;default:993" json:"imapPort"`
	ImapUsername string `gorm:"column:imap_username;type:varchar(255)" json:"imapUsername"`
	ImapPassword string `gorm:"column:imap_password;type:varchar(255)" json:"-"`
	ImapSecurity string `gorm:"column:imap_security;type:varchar(20);default:tls" json:"imapSecurity"`
	Active       bool   `gorm:"column:active;not null;default:true;index" json:"active"`
	// Standard timestamps
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (MailboxCredential) TableName() string {
	return "application_mailbox_credentials"
}

func (m *MailboxCredential) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("cred", 16)
	}
	return nil
}

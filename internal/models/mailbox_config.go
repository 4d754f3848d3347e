package models

import (
	"fmt"

	"github.com/customeros/lenderinbox/internal/enum"
	"github.com/customeros/lenderinbox/internal/utils"
)

// MailboxConfig is a physical mailbox with every application it serves. It is
// built from credential rows on each load and never persisted.
type MailboxConfig struct {
	Key            string             `json:"key"`
	Host           string             `json:"host"`
	Port           int                `json:"port"`
	Username       string             `json:"username"`
	Password       string             `json:"-"`
	Security       enum.EmailSecurity `json:"security"`
	ApplicationIDs []string           `json:"applicationIds"`
}

func (m *MailboxConfig) Address() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}

// Serves reports whether applicationID is one of the applications bound to this
// mailbox. UUIDs compare case-insensitively.
func (m *MailboxConfig) Serves(applicationID string) bool {
	return utils.IsStringInSliceFold(applicationID, m.ApplicationIDs)
}

// Equal compares connection settings and served applications, in order.
func (m *MailboxConfig) Equal(other *MailboxConfig) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.Key != other.Key || m.Host != other.Host || m.Port != other.Port ||
		m.Username != other.Username || m.Password != other.Password || m.Security != other.Security {
		return false
	}
	if len(m.ApplicationIDs) != len(other.ApplicationIDs) {
		return false
	}
	for i := range m.ApplicationIDs {
		if m.ApplicationIDs[i] != other.ApplicationIDs[i] {
			return false
		}
	}
	return true
}

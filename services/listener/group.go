package listener

import (
	"strings"

	"github.com/customeros/lenderinbox/internal/enum"
	"github.com/customeros/lenderinbox/internal/logger"
	"github.com/customeros/lenderinbox/internal/models"
)

const defaultImapPort = 993

// MailboxKey identifies a physical mailbox regardless of letter case.
func MailboxKey(host, username string) string {
	return strings.ToLower(strings.TrimSpace(host)) + "|" + strings.ToLower(strings.TrimSpace(username))
}

// GroupMailboxCredentials collapses credential rows that share host and username
// into one MailboxConfig per physical mailbox, keeping first-seen order. Rows
// missing a host, username or secret are not connectable and are dropped.
func GroupMailboxCredentials(rows []*models.MailboxCredential, log logger.Logger) []*models.MailboxConfig {
	var mailboxes []*models.MailboxConfig
	byKey := make(map[string]*models.MailboxConfig)

	for _, row := range rows {
		if row == nil {
			continue
		}
		host := strings.TrimSpace(row.ImapHost)
		username := strings.TrimSpace(row.ImapUsername)
		if host == "" || username == "" || row.ImapPassword == "" {
			if log != nil {
				log.Debugf("skipping credential %s for application %s: not connectable", row.ID, row.ApplicationID)
			}
			continue
		}

		key := MailboxKey(host, username)
		mailbox, ok := byKey[key]
		if !ok {
			port := row.ImapPort
			if port <= 0 {
				port = defaultImapPort
			}
			mailbox = &models.MailboxConfig{
				Key:      key,
				Host:     host,
				Port:     port,
				Username: username,
				Password: row.ImapPassword,
				Security: enum.ParseEmailSecurity(row.ImapSecurity),
			}
			byKey[key] = mailbox
			mailboxes = append(mailboxes, mailbox)
		}
		if row.ApplicationID != "" && !mailbox.Serves(row.ApplicationID) {
			mailbox.ApplicationIDs = append(mailbox.ApplicationIDs, row.ApplicationID)
		}
	}
	return mailboxes
}

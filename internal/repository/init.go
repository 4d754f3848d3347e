package repository

import (
	"gorm.io/gorm"

	"github.com/customeros/lenderinbox/interfaces"
)

type Repositories struct {
	MailboxCredentialRepository interfaces.MailboxCredentialRepository
	LenderRepository            interfaces.LenderRepository
	SubmissionRepository        interfaces.SubmissionRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		MailboxCredentialRepository: NewMailboxCredentialRepository(db),
		LenderRepository:            NewLenderRepository(db),
		SubmissionRepository:        NewSubmissionRepository(db),
	}
}

package database

import (
	"gorm.io/gorm"

	"github.com/customeros/lenderinbox/config"
	"github.com/customeros/lenderinbox/internal/models"
)

func InitDatabase(dbConfig *config.DatabaseConfig) (*gorm.DB, error) {
	return NewConnection(dbConfig)
}

// Migrate creates the collaborator tables for local development. In production
// these tables belong to the application backend.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Lender{},
		&models.Submission{},
		&models.MailboxCredential{},
	)
}

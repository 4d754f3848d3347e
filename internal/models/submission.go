package models

import (
	"time"

	"github.com/customeros/lenderinbox/internal/enum"
)

// Submission is an application package sent to one lender. Rows are owned by
// the application backend; this service only updates them.
type Submission struct {
	ID                string                `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	ApplicationID     string                `gorm:"column:application_id;type:varchar(50);index;not null" json:"applicationId"`
	LenderID          string                `gorm:"column:lender_id;type:varchar(50);index;not null" json:"lenderId"`
	Status            enum.SubmissionStatus `gorm:"column:status;type:varchar(20);not null;default:pending" json:"status"`
	Response          string                `gorm:"column:response;type:text" json:"response"`
	OfferedAmount     *float64              `gorm:"column:offered_amount;type:numeric" json:"offeredAmount"`
	FactorRate        *float64              `gorm:"column:factor_rate;type:numeric" json:"factorRate"`
	Terms             *string               `gorm:"column:terms;type:varchar(100)" json:"terms"`
	ResponseDate      *time.Time            `gorm:"column:response_date;type:timestamp" json:"responseDate"`
	ProviderMessageID string                `gorm:"column:provider_message_id;type:varchar(255);index" json:"providerMessageId"`
	CreatedAt         time.Time             `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Submission) TableName() string {
	return "submissions"
}

// SubmissionUpdate is the single write applied for a lender reply. Nil offer
// fields are left untouched in the stored row.
type SubmissionUpdate struct {
	Status            enum.SubmissionStatus
	Response          string
	ResponseDate      time.Time
	ProviderMessageID string
	OfferedAmount     *float64
	FactorRate        *float64
	Terms             *string
}

// Columns depends only on the update, so re-applying a reply writes the same
// values. updated_at is stamped by gorm on every write.
func (u SubmissionUpdate) Columns() map[string]interface{} {
	columns := map[string]interface{}{
		"status":              u.Status,
		"response":            u.Response,
		"response_date":       u.ResponseDate,
		"provider_message_id": u.ProviderMessageID,
	}
	if u.OfferedAmount != nil {
		columns["offered_amount"] = *u.OfferedAmount
	}
	if u.FactorRate != nil {
		columns["factor_rate"] = *u.FactorRate
	}
	if u.Terms != nil {
		columns["terms"] = *u.Terms
	}
	return columns
}

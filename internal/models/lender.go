package models

import "time"

type Lender struct {
	ID           string    `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Name         string    `gorm:"column:name;type:varchar(255)" json:"name"`
	ContactEmail string    `gorm:"column:contact_email;type:varchar(255);index" json:"contactEmail"`
	CreatedAt    time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Lender) TableName() string {
	return "lenders"
}

package models

import "gorm.io/gorm"

// User is a dashboard operator stored in the local sqlite user database.
type User struct {
	gorm.Model

	Username     string `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string `gorm:"not null" json:"-"`
}

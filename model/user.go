package model

import "time"

// UserPreference holds the playback preferences of a user account.
// Owned by the session provider; the playback core only reads it.
type UserPreference struct {
	UserID    int64     `json:"userId" gorm:"primaryKey;autoIncrement:false"`
	Username  string    `json:"username" gorm:"size:64"`
	Language  string    `json:"language" gorm:"size:16"` // BCP 47 tag, empty when unset
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName pins the table name used by the preference repository.
func (UserPreference) TableName() string {
	return "user_preferences"
}

package users

import (
	"strings"
	"time"
)

// User captures the profile fields the realtime core and messaging surface read.
// Profile fields are owned by the account-management flows; this service only
// ever mutates the online-status columns.
type User struct {
	ID             string    `gorm:"column:id;primaryKey;size:190;not null"`
	Username       string    `gorm:"column:username;size:190;not null;uniqueIndex"`
	FullName       string    `gorm:"column:full_name;size:320"`
	ProfilePicture string    `gorm:"column:profile_picture;size:512"`
	IsVerified     bool      `gorm:"column:is_verified;not null;default:false"`
	IsOnline       bool      `gorm:"column:is_online;not null;default:false"`
	LastActiveAt   time.Time `gorm:"column:last_active"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user profiles.
func (User) TableName() string {
	return "users"
}

// Profile is the subset of user fields joined into outbound message payloads.
type Profile struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	FullName       string `json:"full_name"`
	ProfilePicture string `json:"profile_picture"`
	IsVerified     bool   `json:"is_verified"`
}

// ProfileOf projects a stored user onto its outbound profile fields.
func ProfileOf(user User) Profile {
	return Profile{
		ID:             user.ID,
		Username:       user.Username,
		FullName:       user.FullName,
		ProfilePicture: user.ProfilePicture,
		IsVerified:     user.IsVerified,
	}
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}

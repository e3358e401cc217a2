// Package store persists users and recordings in the relational schema
// specified for this service, via GORM over its cgo-based sqlite driver.
package store

import "time"

// User mirrors the `users` table: user_id INTEGER PRIMARY KEY,
// username TEXT NOT NULL UNIQUE, password TEXT NOT NULL. The password
// column stores an opaque, already-hashed credential — this service never
// sees or handles plaintext passwords.
type User struct {
	UserID       int32  `gorm:"column:user_id;primaryKey;autoIncrement"`
	Username     string `gorm:"column:username;unique;not null"`
	PasswordHash string `gorm:"column:password;not null"`
}

func (User) TableName() string { return "users" }

// Recording mirrors the `recordings` table: recording_id INTEGER PRIMARY
// KEY, filename TEXT NOT NULL, time TEXT NOT NULL, user_id INTEGER
// (FOREIGN KEY -> users.user_id).
type Recording struct {
	RecordingID int32  `gorm:"column:recording_id;primaryKey;autoIncrement"`
	Filename    string `gorm:"column:filename;not null"`
	Time        string `gorm:"column:time;not null"`
	UserID      int32  `gorm:"column:user_id"`
}

func (Recording) TableName() string { return "recordings" }

// CreatedAt parses Time (stored as RFC3339, matching the ISO-8601 local
// time the host worker records at session end) for display purposes.
// Callers that only need the raw string should read Time directly.
func (r Recording) CreatedAt() (time.Time, error) {
	return time.Parse(time.RFC3339, r.Time)
}

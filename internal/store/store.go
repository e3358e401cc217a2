package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrUsernameTaken is returned by Register when the unique-username
// constraint is violated by the underlying store.
var ErrUsernameTaken = errors.New("store: username already taken")

// ErrInvalidUsername is returned by Register when the username fails
// validation: must be non-empty and every character in [A-Za-z0-9].
var ErrInvalidUsername = errors.New("store: username must be non-empty and alphanumeric")

// ErrUserNotFound is returned by Authenticate when no row matches.
var ErrUserNotFound = errors.New("store: no matching user")

// Store is the credential and recording persistence boundary: component D
// of the design plus the recording bookkeeping component I writes into at
// session end.
type Store interface {
	// Authenticate looks up a user by username and password hash,
	// returning ErrUserNotFound if there is no match.
	Authenticate(ctx context.Context, username, passwordHash string) (userID int32, err error)

	// Register validates and inserts a new user, returning its assigned
	// user_id. Returns ErrInvalidUsername or ErrUsernameTaken on failure.
	Register(ctx context.Context, username, passwordHash string) (userID int32, err error)

	// ListRecordings returns every recording owned by userID, keyed by
	// recording_id, matching the menu-scene catch-up list sent on login.
	ListRecordings(ctx context.Context, userID int32) (map[int32]Recording, error)

	// GetRecording resolves a single recording by id.
	GetRecording(ctx context.Context, id int32) (Recording, bool, error)

	// InsertRecording records a finished hosted session. A failure here is
	// logged by the caller and does not unwind the already-broadcast
	// session end (§7 Storage failure).
	InsertRecording(ctx context.Context, filename, timeRFC3339 string, userID int32) error

	Close() error
}

// ValidUsername reports whether username satisfies the wire contract:
// non-empty, every character ASCII alphanumeric.
func ValidUsername(username string) bool {
	if username == "" {
		return false
	}
	for _, r := range username {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if !isAlpha && !isDigit {
			return false
		}
	}
	return true
}

// gormStore is the default Store backed by GORM over its cgo-based
// sqlite driver, auto-migrating the exact two-table schema from §6.
type gormStore struct {
	db *gorm.DB
}

// Open opens (creating if absent) the sqlite database at path and ensures
// the users/recordings tables exist.
func Open(path string) (Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	if err := db.AutoMigrate(&User{}, &Recording{}); err != nil {
		return nil, fmt.Errorf("store: migrate schema: %w", err)
	}

	return &gormStore{db: db}, nil
}

func (s *gormStore) Authenticate(ctx context.Context, username, passwordHash string) (int32, error) {
	var user User
	err := s.db.WithContext(ctx).
		Where("username = ? AND password = ?", username, passwordHash).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("store: authenticate: %w", err)
	}
	return user.UserID, nil
}

func (s *gormStore) Register(ctx context.Context, username, passwordHash string) (int32, error) {
	if !ValidUsername(username) {
		return 0, ErrInvalidUsername
	}

	user := User{Username: username, PasswordHash: passwordHash}
	err := s.db.WithContext(ctx).Create(&user).Error
	if err != nil {
		if isUniqueConstraintErr(err) {
			return 0, ErrUsernameTaken
		}
		return 0, fmt.Errorf("store: register: %w", err)
	}
	return user.UserID, nil
}

func (s *gormStore) ListRecordings(ctx context.Context, userID int32) (map[int32]Recording, error) {
	var rows []Recording
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list recordings: %w", err)
	}

	out := make(map[int32]Recording, len(rows))
	for _, r := range rows {
		out[r.RecordingID] = r
	}
	return out, nil
}

func (s *gormStore) GetRecording(ctx context.Context, id int32) (Recording, bool, error) {
	var r Recording
	err := s.db.WithContext(ctx).Where("recording_id = ?", id).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Recording{}, false, nil
	}
	if err != nil {
		return Recording{}, false, fmt.Errorf("store: get recording: %w", err)
	}
	return r, true, nil
}

func (s *gormStore) InsertRecording(ctx context.Context, filename, timeRFC3339 string, userID int32) error {
	rec := Recording{Filename: filename, Time: timeRFC3339, UserID: userID}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("store: insert recording: %w", err)
	}
	return nil
}

func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// isUniqueConstraintErr reports whether err wraps sqlite's unique
// constraint violation, the one the credential store maps to
// ErrUsernameTaken per the design.
func isUniqueConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrEmailTaken = errors.New("email already registered")
var ErrUserNotFound = errors.New("user not found")

// User is a registered account. PasswordHash never leaves this package's
// callers unredacted; wire payloads carry only id/email/username.
type User struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	Username     string `gorm:"not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
}

// SessionRecord mirrors the in-memory session registry for durability. The
// live sync core never reads these on its event path.
type SessionRecord struct {
	ID         string `gorm:"primaryKey"`
	InviteCode string `gorm:"index"`
	HostID     string
	GuestID    string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ActivityLog is one zone visit or activity entry for the history feed.
type ActivityLog struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"index"`
	Zone      string
	Activity  string
	CreatedAt time.Time
}

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open connects to postgres and migrates the schema.
func Open(dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true, // surface duplicate-key as gorm.ErrDuplicatedKey
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&User{}, &SessionRecord{}, &ActivityLog{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, log: log.Named("store")}, nil
}

func (s *Store) CreateUser(ctx context.Context, email, username, passwordHash string) (User, error) {
	u := User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
	}
	err := s.db.WithContext(ctx).Create(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("user by email: %w", err)
	}
	return u, nil
}

func (s *Store) UserByID(ctx context.Context, id string) (User, error) {
	var u User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("user by id: %w", err)
	}
	return u, nil
}

func (s *Store) AppendActivity(ctx context.Context, userID, zone, activity string) (ActivityLog, error) {
	entry := ActivityLog{
		ID:       uuid.NewString(),
		UserID:   userID,
		Zone:     zone,
		Activity: activity,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return ActivityLog{}, fmt.Errorf("append activity: %w", err)
	}
	return entry, nil
}

func (s *Store) ActivitiesByUser(ctx context.Context, userID string) ([]ActivityLog, error) {
	var logs []ActivityLog
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("activities by user: %w", err)
	}
	return logs, nil
}

// SessionRecordByID loads a persisted session record, for tooling and
// post-hoc inspection; the live registry never consults it.
func (s *Store) SessionRecordByID(ctx context.Context, id string) (SessionRecord, error) {
	var rec SessionRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SessionRecord{}, fmt.Errorf("session record %s: not found", id)
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("session record by id: %w", err)
	}
	return rec, nil
}

// ArchiveSession upserts a session record. Fire-and-forget from the hub's
// perspective, so failures are logged, not returned.
func (s *Store) ArchiveSession(id, inviteCode, hostID, guestID string, active bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := SessionRecord{
		ID:         id,
		InviteCode: inviteCode,
		HostID:     hostID,
		GuestID:    guestID,
		Active:     active,
	}
	if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		s.log.Warn("archive session failed", zap.String("session_id", id), zap.Error(err))
	}
}

// LogActivity satisfies the room's activity recorder for relayed zone
// changes. Best effort, same as ArchiveSession.
func (s *Store) LogActivity(participantID, zone, activity string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := s.AppendActivity(ctx, participantID, zone, activity); err != nil {
		s.log.Warn("log activity failed", zap.String("participant_id", participantID), zap.Error(err))
	}
}

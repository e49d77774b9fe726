// Package ledger maintains the authoritative punishment history: per-user
// ordered ban records, the append-only unban log, and the evidence store
// with its ticket and ban link indexes.
//
// Histories are cached in memory per user and backed by the database. There
// is no transaction spanning the cache and the store; operations write the
// store first, then the cache, and callers should re-derive state from
// storage if an operation reports failure partway through.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"gorm.io/gorm"

	"github.com/7UKECREAT0R/ability-wars-service-sub000/models"
)

var ErrNoCurrentBan = errors.New("user has no current ban")

type Service struct {
	db     *gorm.DB
	logger *slog.Logger

	histories *xsync.MapOf[uint64, *History]

	lastEvidenceID atomic.Int64
}

func NewService(db *gorm.DB, logger *slog.Logger) *Service {
	return &Service{
		db:        db,
		logger:    logger.With("component", "ledger"),
		histories: xsync.NewMapOf[uint64, *History](),
	}
}

// HistoryFor returns the cached ban history for a user, loading it from
// storage on first use.
func (s *Service) HistoryFor(ctx context.Context, userID uint64) (*History, error) {
	if h, ok := s.histories.Load(userID); ok {
		return h, nil
	}

	var rows []models.BanRecord
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("starts_at asc").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading ban history for user %d: %w", userID, err)
	}

	h, _ := s.histories.LoadOrCompute(userID, func() *History {
		return &History{userID: userID, records: rows}
	})
	return h, nil
}

// AddBan records a ban, replacing any prior record with the same start time
// in both the store and the cached history (last write wins).
func (s *Service) AddBan(ctx context.Context, rec models.BanRecord) error {
	h, err := s.HistoryFor(ctx, rec.UserID)
	if err != nil {
		return err
	}

	db := s.db.WithContext(ctx)
	if err := db.Where("user_id = ? AND starts_at = ?", rec.UserID, rec.StartsAt).
		Delete(&models.BanRecord{}).Error; err != nil {
		return fmt.Errorf("removing conflicting ban record: %w", err)
	}
	if err := db.Create(&rec).Error; err != nil {
		return fmt.Errorf("inserting ban record: %w", err)
	}

	h.upsert(rec)
	bansRecorded.Inc()
	s.logger.Info("ban recorded", "user", rec.UserID, "starts", rec.StartsAt, "duration", rec.DurationLabel())
	return nil
}

// SetCurrentBanEnd sets the end time of the user's most recent ban, in the
// store and the cached history.
func (s *Service) SetCurrentBanEnd(ctx context.Context, userID uint64, end time.Time) error {
	h, err := s.HistoryFor(ctx, userID)
	if err != nil {
		return err
	}

	cur, ok := h.CurrentBan()
	if !ok {
		return ErrNoCurrentBan
	}

	if err := s.db.WithContext(ctx).Model(&models.BanRecord{}).
		Where("user_id = ? AND starts_at = ?", userID, cur.StartsAt).
		Update("ends_at", end).Error; err != nil {
		return fmt.Errorf("updating ban end: %w", err)
	}

	h.setEnd(cur.StartsAt, end)
	return nil
}

// Clear removes the user's entire ban history from store and cache.
func (s *Service) Clear(ctx context.Context, userID uint64) error {
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.BanRecord{}).Error; err != nil {
		return fmt.Errorf("clearing ban history: %w", err)
	}
	if h, ok := s.histories.Load(userID); ok {
		h.clear()
	}
	return nil
}

// RecordUnban appends to the unban audit log. Entries are never mutated.
func (s *Service) RecordUnban(ctx context.Context, userID uint64, moderatorID *uint64, at time.Time) error {
	rec := models.UnbanRecord{
		UserID:      userID,
		ModeratorID: moderatorID,
		At:          at,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("inserting unban record: %w", err)
	}
	unbansRecorded.Inc()
	return nil
}

// Unbans returns the user's unban audit entries, oldest first.
func (s *Service) Unbans(ctx context.Context, userID uint64) ([]models.UnbanRecord, error) {
	var rows []models.UnbanRecord
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("at asc").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading unban records: %w", err)
	}
	return rows, nil
}

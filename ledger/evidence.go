package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/7UKECREAT0R/ability-wars-service-sub000/models"
)

// NewEvidenceID derives a unique evidence id from the given creation time.
// Ids are unix milliseconds, bumped past the previous allocation when two
// pieces of evidence are created within the same millisecond.
func (s *Service) NewEvidenceID(now time.Time) int64 {
	id := now.UnixMilli()
	for {
		last := s.lastEvidenceID.Load()
		if id <= last {
			id = last + 1
		}
		if s.lastEvidenceID.CompareAndSwap(last, id) {
			return id
		}
	}
}

// PutEvidence inserts or updates an evidence record by id.
func (s *Service) PutEvidence(ctx context.Context, ev models.Evidence) error {
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&ev).Error; err != nil {
		return fmt.Errorf("upserting evidence %d: %w", ev.ID, err)
	}
	return nil
}

// GetEvidence returns the evidence record with the given id, or nil when no
// such record exists.
func (s *Service) GetEvidence(ctx context.Context, id int64) (*models.Evidence, error) {
	var ev models.Evidence
	err := s.db.WithContext(ctx).First(&ev, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading evidence %d: %w", id, err)
	}
	return &ev, nil
}

// LinkTicketEvidence associates evidence with a ticket. Linking twice is a
// no-op.
func (s *Service) LinkTicketEvidence(ctx context.Context, ticketID uint64, evidenceID int64) error {
	link := models.TicketEvidenceLink{TicketID: ticketID, EvidenceID: evidenceID}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&link).Error; err != nil {
		return fmt.Errorf("linking ticket %d to evidence %d: %w", ticketID, evidenceID, err)
	}
	return nil
}

func (s *Service) UnlinkTicketEvidence(ctx context.Context, ticketID uint64, evidenceID int64) error {
	return s.db.WithContext(ctx).
		Where("ticket_id = ? AND evidence_id = ?", ticketID, evidenceID).
		Delete(&models.TicketEvidenceLink{}).Error
}

// TicketEvidence returns all evidence linked to a ticket.
func (s *Service) TicketEvidence(ctx context.Context, ticketID uint64) ([]models.Evidence, error) {
	var out []models.Evidence
	err := s.db.WithContext(ctx).
		Joins("join ticket_evidence_links on ticket_evidence_links.evidence_id = evidences.id").
		Where("ticket_evidence_links.ticket_id = ?", ticketID).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("loading evidence for ticket %d: %w", ticketID, err)
	}
	return out, nil
}

// LinkBanEvidence associates evidence with the ban identified by user and
// start time.
func (s *Service) LinkBanEvidence(ctx context.Context, userID uint64, startsAt time.Time, evidenceID int64) error {
	link := models.BanEvidenceLink{UserID: userID, StartsAt: startsAt, EvidenceID: evidenceID}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&link).Error; err != nil {
		return fmt.Errorf("linking ban (%d, %s) to evidence %d: %w", userID, startsAt, evidenceID, err)
	}
	return nil
}

func (s *Service) UnlinkBanEvidence(ctx context.Context, userID uint64, startsAt time.Time, evidenceID int64) error {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND starts_at = ? AND evidence_id = ?", userID, startsAt, evidenceID).
		Delete(&models.BanEvidenceLink{}).Error
}

// BanEvidence returns all evidence linked to a specific ban.
func (s *Service) BanEvidence(ctx context.Context, userID uint64, startsAt time.Time) ([]models.Evidence, error) {
	var out []models.Evidence
	err := s.db.WithContext(ctx).
		Joins("join ban_evidence_links on ban_evidence_links.evidence_id = evidences.id").
		Where("ban_evidence_links.user_id = ? AND ban_evidence_links.starts_at = ?", userID, startsAt).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("loading evidence for ban (%d, %s): %w", userID, startsAt, err)
	}
	return out, nil
}

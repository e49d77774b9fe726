package tickets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/7UKECREAT0R/ability-wars-service-sub000/models"
	"github.com/7UKECREAT0R/ability-wars-service-sub000/platform"
)

// saveTicket persists the ticket's current state. There is no transaction
// covering the row and the cache; on failure, callers should treat the
// cached ticket as suspect and re-derive from storage.
func (s *Service) saveTicket(ctx context.Context, t Ticket) error {
	row, err := t.base().snapshotRow(t.payloadValue())
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("persisting ticket %d: %w", row.ID, err)
	}
	return nil
}

// Materialize creates the backing channel and posts the service marker,
// moving the ticket from pending to fully open.
func (s *Service) Materialize(ctx context.Context, t Ticket) (*platform.Channel, error) {
	if t.ChannelID() != "" {
		return nil, validationErrorf("ticket %d already has a channel", t.ID())
	}

	category := s.cfg.Categories[t.Kind()]
	name := fmt.Sprintf("%s-%d", t.Kind(), t.ID())

	ch, err := s.channels.CreateChannel(ctx, category, name)
	if err != nil {
		return nil, fmt.Errorf("creating ticket channel: %w", err)
	}
	if err := s.channels.PostServiceMarker(ctx, ch.ID); err != nil {
		// a channel without the marker reads as dead to the sweep
		return nil, fmt.Errorf("posting service marker: %w", err)
	}

	t.base().setChannel(ch.ID)
	if err := s.saveTicket(ctx, t); err != nil {
		return nil, err
	}
	s.cache.reindexChannel(t, ch.ID)

	s.logger.Info("ticket materialized", "id", t.ID(), "channel", ch.ID)
	return ch, nil
}

// Close finishes a ticket: persist the terminal state, drop it from the
// cache, reclaim the channel, and notify the owner where that applies.
// Channel reclamation and owner notification are best-effort.
func (s *Service) Close(ctx context.Context, t Ticket, closedBy *uint64, reason string) error {
	t.base().markClosed(closedBy, reason)
	if err := s.saveTicket(ctx, t); err != nil {
		return err
	}
	s.cache.remove(t)
	ticketsClosed.WithLabelValues(string(t.Kind())).Inc()

	if ch := t.ChannelID(); ch != "" {
		if err := s.channels.DeleteChannel(ctx, ch); err != nil && !errors.Is(err, platform.ErrChannelNotFound) {
			s.logger.Error("releasing ticket channel", "ticket", t.ID(), "channel", ch, "err", err)
		}
	}

	// only platform-domain appeal/dispute owners get a closing DM
	if u, ok := t.(interface{ unban() *unbanTicket }); ok && u.unban().Domain() == DomainPlatform {
		msg := fmt.Sprintf("Your %s (#%d) has been closed: %s", t.Kind(), t.ID(), reason)
		if err := s.channels.SendDirectMessage(ctx, t.OwnerID(), msg); err != nil {
			s.logger.Debug("owner DM undeliverable", "ticket", t.ID(), "owner", t.OwnerID())
		}
	}

	s.logger.Info("ticket closed", "id", t.ID(), "reason", reason)
	return nil
}

// Cleanup force-closes a ticket whose channel is missing or broken. No
// messages are sent; the channel is deleted if anything is left of it.
func (s *Service) Cleanup(ctx context.Context, t Ticket) error {
	t.base().markClosed(nil, "cleaned up")
	if err := s.saveTicket(ctx, t); err != nil {
		return err
	}
	s.cache.remove(t)
	ticketsCleaned.Inc()

	if ch := t.ChannelID(); ch != "" {
		if err := s.channels.DeleteChannel(ctx, ch); err != nil && !errors.Is(err, platform.ErrChannelNotFound) {
			s.logger.Error("releasing dead ticket channel", "ticket", t.ID(), "channel", ch, "err", err)
		}
	}
	s.logger.Info("ticket cleaned up", "id", t.ID())
	return nil
}

// RecordStaffMention advances the warning counter of an appeal or dispute
// whose owner pinged staff unsolicited. Walking past the end of the
// escalation list closes the ticket. Other ticket kinds ignore mentions.
func (s *Service) RecordStaffMention(ctx context.Context, t Ticket) error {
	u, ok := t.(interface{ unban() *unbanTicket })
	if !ok || !t.IsOpen() {
		return nil
	}

	n := u.unban().bumpWarnings()
	mentionWarnings.Inc()

	msgs := s.cfg.escalation()
	if n > len(msgs) {
		return s.Close(ctx, t, nil, "closed automatically after repeated staff mentions")
	}

	if err := s.saveTicket(ctx, t); err != nil {
		return err
	}
	if ch := t.ChannelID(); ch != "" {
		if err := s.channels.SendChannelMessage(ctx, ch, msgs[n-1]); err != nil {
			s.logger.Error("posting mention warning", "ticket", t.ID(), "err", err)
		}
	}
	return nil
}

// Load rebuilds the open-ticket cache from storage: query all open rows,
// hydrate each, then relink related reports. Run at startup.
func (s *Service) Load(ctx context.Context) error {
	if err := s.seedIDs(ctx); err != nil {
		return err
	}

	var rows []models.TicketRow
	if err := s.db.WithContext(ctx).Where("open = ?", true).Find(&rows).Error; err != nil {
		return fmt.Errorf("querying open tickets: %w", err)
	}

	for i := range rows {
		t, err := s.hydrate(rows[i])
		if err != nil {
			s.logger.Error("skipping unloadable ticket", "id", rows[i].ID, "err", err)
			continue
		}
		s.cache.insert(t)
	}

	s.relinkReports()
	s.logger.Info("ticket cache loaded", "open", s.cache.Len())
	return nil
}

func (s *Service) hydrate(row models.TicketRow) (Ticket, error) {
	var t Ticket
	switch Kind(row.Kind) {
	case KindReport:
		rt := &ReportTicket{}
		if err := json.Unmarshal([]byte(row.Payload), &rt.payload); err != nil {
			return nil, fmt.Errorf("parsing report payload: %w", err)
		}
		t = rt
	case KindAppeal:
		at := &AppealTicket{}
		if err := json.Unmarshal([]byte(row.Payload), &at.payload); err != nil {
			return nil, fmt.Errorf("parsing appeal payload: %w", err)
		}
		t = at
	case KindDispute:
		dt := &DisputeTicket{}
		if err := json.Unmarshal([]byte(row.Payload), &dt.payload); err != nil {
			return nil, fmt.Errorf("parsing dispute payload: %w", err)
		}
		t = dt
	case KindBlacklistAppeal:
		bt := &BlacklistAppealTicket{}
		if err := json.Unmarshal([]byte(row.Payload), &bt.payload); err != nil {
			return nil, fmt.Errorf("parsing blacklist appeal payload: %w", err)
		}
		t = bt
	default:
		return nil, fmt.Errorf("unknown ticket kind %q", row.Kind)
	}

	b := t.base()
	b.svc = s
	b.row = row
	return t, nil
}

// relinkReports rescans every open report against every other and links
// pairs accusing the same player, case-insensitively. Quadratic, run once
// per cache load; open report counts stay small enough that an index by
// accused identity has not been worth it.
func (s *Service) relinkReports() {
	var reports []*ReportTicket
	for _, t := range s.cache.All() {
		if rt, ok := t.(*ReportTicket); ok {
			reports = append(reports, rt)
		}
	}

	for i := 0; i < len(reports); i++ {
		for j := i + 1; j < len(reports); j++ {
			a, b := reports[i], reports[j]
			if a.payload.AccusedUsername == "" {
				continue
			}
			if strings.EqualFold(a.payload.AccusedUsername, b.payload.AccusedUsername) {
				a.addRelated(b.ID())
				b.addRelated(a.ID())
			}
		}
	}
}

// SweepDead walks every cached open ticket and cleans up the dead ones: a
// ticket whose channel is gone, or whose channel lost its service marker.
// One or more platform calls per ticket makes this expensive; it is meant
// for startup and on-demand use, not a hot path. Returns the swept ids.
func (s *Service) SweepDead(ctx context.Context) ([]uint64, error) {
	var swept []uint64
	for _, t := range s.cache.All() {
		dead, err := s.isDead(ctx, t)
		if err != nil {
			s.logger.Error("probing ticket channel", "ticket", t.ID(), "err", err)
			continue
		}
		if !dead {
			continue
		}
		if err := s.Cleanup(ctx, t); err != nil {
			s.logger.Error("cleaning up dead ticket", "ticket", t.ID(), "err", err)
			continue
		}
		swept = append(swept, t.ID())
	}
	if len(swept) > 0 {
		s.logger.Info("dead ticket sweep finished", "swept", len(swept))
	}
	return swept, nil
}

func (s *Service) isDead(ctx context.Context, t Ticket) (bool, error) {
	ch := t.ChannelID()
	if ch == "" {
		// pending ticket that never materialized
		return true, nil
	}
	exists, err := s.channels.ChannelExists(ctx, ch)
	if err != nil {
		return false, err
	}
	if !exists {
		return true, nil
	}
	marker, err := s.channels.HasServiceMarker(ctx, ch)
	if err != nil {
		return false, err
	}
	return !marker, nil
}

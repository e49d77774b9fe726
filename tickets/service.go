package tickets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/7UKECREAT0R/ability-wars-service-sub000/identity"
	"github.com/7UKECREAT0R/ability-wars-service-sub000/models"
	"github.com/7UKECREAT0R/ability-wars-service-sub000/platform"
	"github.com/7UKECREAT0R/ability-wars-service-sub000/relay"
)

// DefaultCategoryCapacity caps how many ticket channels one category holds.
const DefaultCategoryCapacity = 50

// defaultEscalation is walked one message per unsolicited staff mention;
// running past the end closes the ticket.
var defaultEscalation = []string{
	"Please don't ping staff; your ticket is in the queue and will be handled in order.",
	"Second warning: pinging staff does not move your ticket up the queue.",
	"Final warning: the next staff ping closes this ticket.",
}

type Config struct {
	// Categories maps each ticket kind to the channel category it opens
	// under. A kind with no category does not accept tickets.
	Categories map[Kind]string
	// CategoryCapacity limits channels per category; zero means the default.
	CategoryCapacity int
	// MaxPerOwner limits open tickets of a kind per owner; a missing kind
	// gets the default (3 for reports, 1 for everything else).
	MaxPerOwner map[Kind]int
	// EscalationMessages override defaultEscalation when non-empty.
	EscalationMessages []string
	// ModLogChannelID receives follow-up notices from command callbacks.
	// Empty means log-only.
	ModLogChannelID string
}

func (c *Config) capacity() int {
	if c.CategoryCapacity > 0 {
		return c.CategoryCapacity
	}
	return DefaultCategoryCapacity
}

func (c *Config) maxPerOwner(kind Kind) int {
	if n, ok := c.MaxPerOwner[kind]; ok {
		return n
	}
	if kind == KindReport {
		return 3
	}
	return 1
}

func (c *Config) escalation() []string {
	if len(c.EscalationMessages) > 0 {
		return c.EscalationMessages
	}
	return defaultEscalation
}

// Service owns the ticket state machine: intake validation, the open-ticket
// cache, lifecycle transitions, and staff actions.
type Service struct {
	db       *gorm.DB
	logger   *slog.Logger
	channels platform.Client
	resolver identity.Resolver
	queue    *relay.Queue
	cfg      Config

	cache *Cache

	idMu     sync.Mutex
	idSeeded bool
	lastID   atomic.Uint64
}

func NewService(db *gorm.DB, channels platform.Client, resolver identity.Resolver, queue *relay.Queue, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		logger:   logger.With("component", "tickets"),
		channels: channels,
		resolver: resolver,
		queue:    queue,
		cfg:      cfg,
		cache:    NewCache(),
	}
}

// Cache exposes the open-ticket index.
func (s *Service) Cache() *Cache {
	return s.cache
}

// OpenCount returns the number of cached open tickets.
func (s *Service) OpenCount() int {
	return s.cache.Len()
}

// seedIDs primes the id sequence from the max persisted id, once.
func (s *Service) seedIDs(ctx context.Context) error {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	if s.idSeeded {
		return nil
	}
	var maxID int64
	err := s.db.WithContext(ctx).Model(&models.TicketRow{}).
		Select("COALESCE(MAX(id), 0)").Scan(&maxID).Error
	if err != nil {
		return fmt.Errorf("seeding ticket id sequence: %w", err)
	}
	s.lastID.Store(uint64(maxID))
	s.idSeeded = true
	return nil
}

// nextTicketID allocates from a monotonic sequence seeded from the max
// persisted id on first use. Ids handed out for opens that later fail are
// never reclaimed; uniqueness matters, density does not.
func (s *Service) nextTicketID(ctx context.Context) (uint64, error) {
	if err := s.seedIDs(ctx); err != nil {
		return 0, err
	}
	return s.lastID.Add(1), nil
}

// validateOpen runs the checks every intake shares: destination eligibility,
// the per-owner cap, and category capacity. Failures are ValidationErrors.
func (s *Service) validateOpen(ctx context.Context, kind Kind, ownerID uint64) error {
	category, ok := s.cfg.Categories[kind]
	if !ok || category == "" {
		return validationErrorf("%s tickets are not accepted here", kind)
	}

	if open := s.cache.countByOwnerKind(ownerID, kind); open >= s.cfg.maxPerOwner(kind) {
		return validationErrorf("you already have %d open %s ticket(s); close one first", open, kind)
	}

	count, err := s.channels.ChannelCount(ctx, category)
	if err != nil {
		return fmt.Errorf("checking category capacity: %w", err)
	}
	if count >= s.cfg.capacity() {
		return validationErrorf("the %s queue is full right now; try again later", kind)
	}
	return nil
}

// createTicket persists the row and indexes the ticket. The ticket starts
// pending: open, but with no backing channel until Materialize.
func (s *Service) createTicket(ctx context.Context, t Ticket, kind Kind, ownerID uint64) error {
	id, err := s.nextTicketID(ctx)
	if err != nil {
		return err
	}

	b := t.base()
	b.svc = s
	b.row = models.TicketRow{
		ID:       id,
		Kind:     string(kind),
		OwnerID:  ownerID,
		OpenedAt: time.Now(),
		Open:     true,
	}

	row, err := b.snapshotRow(t.payloadValue())
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("inserting ticket row: %w", err)
	}

	s.cache.insert(t)
	ticketsOpened.WithLabelValues(string(kind)).Inc()
	s.logger.Info("ticket opened", "id", id, "kind", kind, "owner", ownerID)
	return nil
}

// OpenReport validates and opens a player report. The accused username must
// resolve to a real player.
func (s *Service) OpenReport(ctx context.Context, ownerID uint64, accusedUsername, ruleBroken string, evidenceID *int64) (*ReportTicket, error) {
	if accusedUsername == "" {
		return nil, validationErrorf("the accused player's username is required")
	}
	if ruleBroken == "" {
		return nil, validationErrorf("say which rule was broken")
	}
	if err := s.validateOpen(ctx, KindReport, ownerID); err != nil {
		return nil, err
	}

	player, err := s.resolver.ResolveUsername(ctx, accusedUsername)
	if errors.Is(err, identity.ErrPlayerNotFound) {
		return nil, validationErrorf("no player named %q exists", accusedUsername)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving accused player: %w", err)
	}

	t := &ReportTicket{
		payload: ReportPayload{
			AccusedUsername: player.Username,
			AccusedID:       &player.ID,
			RuleBroken:      ruleBroken,
			EvidenceID:      evidenceID,
		},
	}
	if err := s.createTicket(ctx, t, KindReport, ownerID); err != nil {
		return nil, err
	}

	if evidenceID != nil {
		// best effort; the evidence row may arrive later via upsert
		if err := s.ledgerLinkEvidence(ctx, t.ID(), *evidenceID); err != nil {
			s.logger.Error("linking report evidence", "ticket", t.ID(), "evidence", *evidenceID, "err", err)
		}
	}
	return t, nil
}

func (s *Service) ledgerLinkEvidence(ctx context.Context, ticketID uint64, evidenceID int64) error {
	link := models.TicketEvidenceLink{TicketID: ticketID, EvidenceID: evidenceID}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error
}

// OpenAppeal validates and opens a ban appeal. Blacklisted identities are
// turned away.
func (s *Service) OpenAppeal(ctx context.Context, ownerID uint64, domain Domain, targetID uint64, explanation string) (*AppealTicket, error) {
	payload, err := s.validateUnbanIntake(ctx, KindAppeal, ownerID, domain, targetID, explanation)
	if err != nil {
		return nil, err
	}
	t := &AppealTicket{unbanTicket{payload: *payload}}
	if err := s.createTicket(ctx, t, KindAppeal, ownerID); err != nil {
		return nil, err
	}
	return t, nil
}

// OpenDispute validates and opens a ban dispute. Same gates as an appeal.
func (s *Service) OpenDispute(ctx context.Context, ownerID uint64, domain Domain, targetID uint64, explanation string) (*DisputeTicket, error) {
	payload, err := s.validateUnbanIntake(ctx, KindDispute, ownerID, domain, targetID, explanation)
	if err != nil {
		return nil, err
	}
	t := &DisputeTicket{unbanTicket{payload: *payload}}
	if err := s.createTicket(ctx, t, KindDispute, ownerID); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) validateUnbanIntake(ctx context.Context, kind Kind, ownerID uint64, domain Domain, targetID uint64, explanation string) (*UnbanPayload, error) {
	if domain != DomainPlatform && domain != DomainGame {
		return nil, validationErrorf("unknown ban domain %q", domain)
	}
	if targetID == 0 {
		return nil, validationErrorf("which ban is this about?")
	}
	if err := s.validateOpen(ctx, kind, ownerID); err != nil {
		return nil, err
	}

	blacklisted, err := s.IsBlacklisted(ctx, targetID, domain)
	if err != nil {
		return nil, err
	}
	if blacklisted {
		return nil, validationErrorf("this identity is blacklisted from appeals")
	}

	return &UnbanPayload{
		Domain:      domain,
		TargetID:    targetID,
		Explanation: explanation,
	}, nil
}

// OpenBlacklistAppeal opens an appeal against a blacklist entry itself. The
// blacklist gate deliberately does not apply.
func (s *Service) OpenBlacklistAppeal(ctx context.Context, ownerID uint64, domain Domain, targetID uint64, explanation string) (*BlacklistAppealTicket, error) {
	if err := s.validateOpen(ctx, KindBlacklistAppeal, ownerID); err != nil {
		return nil, err
	}
	t := &BlacklistAppealTicket{
		payload: BlacklistAppealPayload{
			Domain:      domain,
			TargetID:    targetID,
			Explanation: explanation,
		},
	}
	if err := s.createTicket(ctx, t, KindBlacklistAppeal, ownerID); err != nil {
		return nil, err
	}
	return t, nil
}

// IsBlacklisted reports whether the identity may not open appeals.
func (s *Service) IsBlacklisted(ctx context.Context, userID uint64, domain Domain) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.AppealBlacklistEntry{}).
		Where("user_id = ? AND domain = ?", userID, domain).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking appeal blacklist: %w", err)
	}
	return count > 0, nil
}

// Blacklist adds an identity to the appeal blacklist.
func (s *Service) Blacklist(ctx context.Context, userID uint64, domain Domain, moderatorID uint64, reason string) error {
	entry := models.AppealBlacklistEntry{
		UserID:      userID,
		Domain:      string(domain),
		ModeratorID: moderatorID,
		Reason:      reason,
		At:          time.Now(),
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&entry).Error; err != nil {
		return fmt.Errorf("inserting blacklist entry: %w", err)
	}
	return nil
}

// Unblacklist removes an identity from the appeal blacklist.
func (s *Service) Unblacklist(ctx context.Context, userID uint64, domain Domain) error {
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND domain = ?", userID, domain).
		Delete(&models.AppealBlacklistEntry{}).Error; err != nil {
		return fmt.Errorf("removing blacklist entry: %w", err)
	}
	return nil
}

// banFromReport enqueues a permanent game ban of the accused and
// optimistically closes the report; the outcome lands in the mod log when
// the game server reports back.
func (s *Service) banFromReport(ctx context.Context, t *ReportTicket, actor uint64) error {
	p := t.payload
	if p.AccusedID == nil {
		return validationErrorf("the accused player %q was never resolved", p.AccusedUsername)
	}

	ticketID := t.ID()
	reason := p.RuleBroken
	id := s.queue.Enqueue(&relay.Command{
		Kind:        relay.KindBan,
		User:        *p.AccusedID,
		Responsible: actor,
		Reason:      &reason,
		Days:        0,
		TicketID:    &ticketID,
		OnResult: func(res *relay.Result) {
			s.notifyModLog(fmt.Sprintf("report #%d: player %d banned (%s)", ticketID, *p.AccusedID, reason))
		},
		OnDenied: func() {
			s.notifyModLog(fmt.Sprintf("report #%d: game server refused to ban player %d", ticketID, *p.AccusedID))
		},
	})
	s.logger.Info("ban command issued from report", "ticket", ticketID, "command", id)

	return s.Close(ctx, t, &actor, "report resolved: ban issued")
}

// handleUnbanAction resolves an accept/deny on an appeal or dispute.
func (s *Service) handleUnbanAction(ctx context.Context, t Ticket, u *unbanTicket, action ActionID, actor uint64) error {
	switch action {
	case ActionAccept:
		p := u.Payload()
		if p.Domain == DomainGame {
			ticketID := t.ID()
			id := s.queue.Enqueue(&relay.Command{
				Kind:        relay.KindUnban,
				User:        p.TargetID,
				Responsible: actor,
				TicketID:    &ticketID,
				OnResult: func(res *relay.Result) {
					s.notifyModLog(fmt.Sprintf("%s #%d: player %d unbanned in-game", t.Kind(), ticketID, p.TargetID))
				},
				OnDenied: func() {
					s.notifyModLog(fmt.Sprintf("%s #%d: game server refused to unban player %d", t.Kind(), ticketID, p.TargetID))
				},
			})
			s.logger.Info("unban command issued", "ticket", ticketID, "command", id)
		}
		// platform-domain unbans are executed by the bot's event layer,
		// which watches for this closure
		return s.Close(ctx, t, &actor, fmt.Sprintf("%s accepted", t.Kind()))
	case ActionDeny:
		return s.Close(ctx, t, &actor, fmt.Sprintf("%s denied", t.Kind()))
	default:
		return validationErrorf("action %q is not available on a %s", action, t.Kind())
	}
}

// notifyModLog posts a follow-up notice from a command callback. Callbacks
// run outside any request, so failures only log.
func (s *Service) notifyModLog(msg string) {
	if s.cfg.ModLogChannelID == "" {
		s.logger.Info("mod log", "msg", msg)
		return
	}
	if err := s.channels.SendChannelMessage(context.Background(), s.cfg.ModLogChannelID, msg); err != nil {
		s.logger.Error("posting to mod log", "err", err)
	}
}

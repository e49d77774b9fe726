// Package tickets implements the typed ticket workflow: reports, ban
// appeals, ban disputes, and blacklist appeals. Every ticket moves through
// the same lifecycle (pending, open, closed) with kind-specific intake data
// and staff actions; open tickets are cached in memory, indexed by id and by
// backing channel.
package tickets

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/7UKECREAT0R/ability-wars-service-sub000/models"
)

// Kind discriminates ticket variants.
type Kind string

const (
	KindReport          Kind = "report"
	KindAppeal          Kind = "appeal"
	KindDispute         Kind = "dispute"
	KindBlacklistAppeal Kind = "blacklist_appeal"
)

// Domain distinguishes which ban an appeal or dispute targets: the chat
// platform's, or the game's.
type Domain string

const (
	DomainPlatform Domain = "platform"
	DomainGame     Domain = "game"
)

// ActionID names a staff action available on an open ticket.
type ActionID string

const (
	ActionBan     ActionID = "ban"
	ActionDismiss ActionID = "dismiss"
	ActionAccept  ActionID = "accept"
	ActionDeny    ActionID = "deny"
)

// ValidationError is a user-facing rejection: bad input, a cap or capacity
// violation, or an eligibility failure. It is surfaced to the actor
// directly and never logged as a fault.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Ticket is the shared contract over the four variants. The unexported
// method seals the set of implementations to this package.
type Ticket interface {
	ID() uint64
	Kind() Kind
	OwnerID() uint64
	ChannelID() string
	IsOpen() bool
	OpenedAt() time.Time

	// AvailableActions lists the staff actions this ticket currently offers.
	AvailableActions() []ActionID
	// HandleAction performs a staff action. Unknown or unavailable actions
	// return a ValidationError.
	HandleAction(ctx context.Context, action ActionID, actor uint64) error

	base() *ticketBase
	// payloadValue returns the kind-specific intake data for serialization.
	payloadValue() any
}

// ticketBase carries the lifecycle state every variant shares. The mutex
// guards the row; cache membership is the Cache's concern.
type ticketBase struct {
	svc *Service

	mu  sync.Mutex
	row models.TicketRow
}

func (b *ticketBase) base() *ticketBase { return b }

func (b *ticketBase) Kind() Kind {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Kind(b.row.Kind)
}

func (b *ticketBase) ID() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.row.ID
}

func (b *ticketBase) OwnerID() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.row.OwnerID
}

func (b *ticketBase) ChannelID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.row.ChannelID
}

func (b *ticketBase) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.row.Open
}

func (b *ticketBase) OpenedAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.row.OpenedAt
}

// snapshotRow returns a copy of the persisted shape, with the payload
// refreshed from the variant.
func (b *ticketBase) snapshotRow(payload any) (models.TicketRow, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return models.TicketRow{}, fmt.Errorf("serializing ticket payload: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.row.Payload = string(raw)
	return b.row, nil
}

func (b *ticketBase) setChannel(channelID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.row.ChannelID = channelID
}

func (b *ticketBase) markClosed(closedBy *uint64, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.row.Open = false
	b.row.ClosedBy = closedBy
	if reason != "" {
		r := reason
		b.row.CloseReason = &r
	}
}

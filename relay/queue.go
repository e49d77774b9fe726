// Package relay implements the command–correlation protocol between the bot
// and the game server. The game server cannot receive pushed commands; it
// periodically polls for pending work and later posts back a batch of
// results, each matched to its command by id.
//
// Commands live only in memory. A command leaves the queue on exactly one of
// three events: its result arrives, a denial arrives, or it expires. Expiry
// is silent: no callback fires for an expired command.
package relay

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/7UKECREAT0R/ability-wars-service-sub000/ledger"
)

// CommandTTL is how long a command waits for the game server before being
// dropped from snapshots.
const CommandTTL = 3 * time.Minute

// Kind discriminates command and result payloads on the wire.
type Kind string

const (
	KindInfo       Kind = "info"
	KindBan        Kind = "ban"
	KindUnban      Kind = "unban"
	KindSetCounter Kind = "setpunches"
	// KindDenied only appears in results: the game server refused the
	// referenced command.
	KindDenied Kind = "nopermission"
)

// Command is an outstanding moderation command awaiting execution by the
// game server.
type Command struct {
	ID        uint64
	Kind      Kind
	CreatedAt time.Time

	// User is the target player; Responsible the acting moderator.
	User        uint64
	Responsible uint64

	// Reason and Days apply to ban commands. Days of zero means permanent.
	Reason *string
	Days   int64

	// Punches applies to setpunches commands.
	Punches int64

	// TicketID references the ticket that produced this command, when any.
	// Evidence linked to that ticket is attached to the resulting ban.
	TicketID *uint64

	// OnResult fires at most once, when the matching result is applied.
	OnResult func(res *Result)
	// OnDenied fires at most once, when the game server refuses the command.
	OnDenied func()
}

// Queue holds pending commands and matches results back to them. Safe for
// concurrent use; poll handlers, fulfill handlers, and ticket actions all
// touch it.
type Queue struct {
	logger *slog.Logger
	ledger *ledger.Service
	ttl    time.Duration

	pending *xsync.MapOf[uint64, *Command]
	lastID  atomic.Uint64
}

func NewQueue(led *ledger.Service, logger *slog.Logger) *Queue {
	q := &Queue{
		logger:  logger.With("component", "relay"),
		ledger:  led,
		ttl:     CommandTTL,
		pending: xsync.NewMapOf[uint64, *Command](),
	}
	q.lastID.Store(1000)
	return q
}

// Enqueue stamps the command with an id and creation time and stores it.
// Returns the assigned id. The command is fire-and-forget from the caller's
// perspective; resolution arrives through the callbacks, if ever.
func (q *Queue) Enqueue(cmd *Command) uint64 {
	cmd.ID = q.lastID.Add(1)
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now()
	}
	q.pending.Store(cmd.ID, cmd)
	commandsEnqueued.WithLabelValues(string(cmd.Kind)).Inc()
	queueDepth.Set(float64(q.pending.Size()))
	q.logger.Info("command enqueued", "id", cmd.ID, "kind", cmd.Kind, "user", cmd.User)
	return cmd.ID
}

// Len returns the number of pending commands, expired or not.
func (q *Queue) Len() int {
	return q.pending.Size()
}

// Get returns the pending command with the given id, if present.
func (q *Queue) Get(id uint64) (*Command, bool) {
	return q.pending.Load(id)
}

// purgeExpired drops commands older than the TTL. No callbacks fire.
func (q *Queue) purgeExpired(now time.Time) int {
	var expired []uint64
	q.pending.Range(func(id uint64, cmd *Command) bool {
		if now.Sub(cmd.CreatedAt) > q.ttl {
			expired = append(expired, id)
		}
		return true
	})
	for _, id := range expired {
		if _, ok := q.pending.LoadAndDelete(id); ok {
			commandsExpired.Inc()
			q.logger.Warn("command expired unanswered", "id", id)
		}
	}
	if len(expired) > 0 {
		queueDepth.Set(float64(q.pending.Size()))
	}
	return len(expired)
}

// take removes and returns the command with the given id. The removal is
// atomic, so concurrent deliveries of the same id resolve to exactly one
// callback invocation.
func (q *Queue) take(id uint64) (*Command, bool) {
	cmd, ok := q.pending.LoadAndDelete(id)
	if ok {
		queueDepth.Set(float64(q.pending.Size()))
	}
	return cmd, ok
}

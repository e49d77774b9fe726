package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/7UKECREAT0R/ability-wars-service-sub000/ledger"
	"github.com/7UKECREAT0R/ability-wars-service-sub000/models"
)

// Result is what reaches a command's OnResult callback after the ledger
// mutation for the entry has been applied.
type Result struct {
	Kind  Kind
	Entry FulfillEntry
	// Ban is the ledger record written for ban results, nil otherwise.
	Ban *models.BanRecord
}

// RejectedEntry reports one result entry that could not be applied.
type RejectedEntry struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// ApplyOutcome summarizes a result batch: entries applied (including
// idempotent re-deliveries, which are no-ops) and entries rejected.
type ApplyOutcome struct {
	Applied  int             `json:"applied"`
	Rejected []RejectedEntry `json:"rejected,omitempty"`
}

// ApplyResults walks a result batch. Each entry is handled independently;
// a malformed entry is rejected without affecting its neighbors.
//
// A denial removes the referenced command and fires OnDenied with no ledger
// effect. Any other entry first applies its kind-specific ledger mutation,
// then removes the originating command, if one is referenced and still
// pending, and fires OnResult. A failed mutation rejects the entry and
// leaves the command pending, so the game server's redelivery can retry it.
// An entry whose id matches nothing is dropped silently: the command either
// already resolved or expired, and re-applying the mutation would
// double-write the ledger.
func (q *Queue) ApplyResults(ctx context.Context, batch *FulfillBatch) *ApplyOutcome {
	out := &ApplyOutcome{}

	for i := range batch.Fulfill {
		entry := batch.Fulfill[i]
		if err := q.applyEntry(ctx, &entry); err != nil {
			out.Rejected = append(out.Rejected, RejectedEntry{Index: i, Reason: err.Error()})
			resultsRejected.Inc()
			continue
		}
		out.Applied++
		resultsApplied.WithLabelValues(string(entry.Type)).Inc()
	}
	return out
}

func (q *Queue) applyEntry(ctx context.Context, e *FulfillEntry) error {
	switch e.Type {
	case KindDenied:
		if e.ID == nil {
			return errors.New("nopermission entry without id")
		}
		cmd, ok := q.take(*e.ID)
		if !ok {
			return nil
		}
		q.logger.Info("command denied by game server", "id", cmd.ID, "kind", cmd.Kind)
		if cmd.OnDenied != nil {
			cmd.OnDenied()
		}
		return nil
	case KindInfo, KindBan, KindUnban, KindSetCounter:
		// handled below
	default:
		return fmt.Errorf("unknown result type %q", e.Type)
	}

	var cmd *Command
	if e.ID != nil {
		var ok bool
		cmd, ok = q.Get(*e.ID)
		if !ok {
			// already resolved or expired; idempotent no-op
			return nil
		}
	}

	res := &Result{Kind: e.Type, Entry: *e}
	var err error
	switch e.Type {
	case KindBan:
		res.Ban, err = q.processBan(ctx, cmd, e)
	case KindUnban:
		err = q.processUnban(ctx, cmd, e)
	case KindInfo, KindSetCounter:
		// read-only / game-side only; nothing to apply locally
	}
	if err != nil {
		// the command stays pending; a redelivery within the TTL retries the
		// mutation (AddBan's dedup on startsAt absorbs a rare double write)
		return err
	}

	if cmd != nil {
		if _, ok := q.take(cmd.ID); !ok {
			// a concurrent duplicate delivery resolved it first
			return nil
		}
		if cmd.OnResult != nil {
			cmd.OnResult(res)
		}
	}
	return nil
}

func (q *Queue) processBan(ctx context.Context, cmd *Command, e *FulfillEntry) (*models.BanRecord, error) {
	start, ok := e.startTime()
	if !ok {
		return nil, errors.New("ban entry without started/starts timestamp")
	}
	user := e.User
	if user == 0 && cmd != nil {
		user = cmd.User
	}
	if user == 0 {
		return nil, errors.New("ban entry without user")
	}

	rec := models.BanRecord{
		UserID:      user,
		StartsAt:    start,
		EndsAt:      e.endTime(),
		ModeratorID: e.ResponsibleUser,
		Reason:      e.Reason,
		Legacy:      e.Legacy != nil && *e.Legacy,
	}
	if cmd != nil {
		if rec.ModeratorID == nil && cmd.Responsible != 0 {
			responsible := cmd.Responsible
			rec.ModeratorID = &responsible
		}
		if rec.Reason == nil {
			rec.Reason = cmd.Reason
		}
		rec.TicketID = cmd.TicketID
	}

	if err := q.ledger.AddBan(ctx, rec); err != nil {
		return nil, fmt.Errorf("recording ban: %w", err)
	}

	// carry evidence from the originating ticket over to the ban
	if cmd != nil && cmd.TicketID != nil {
		evs, err := q.ledger.TicketEvidence(ctx, *cmd.TicketID)
		if err != nil {
			q.logger.Error("loading ticket evidence for ban link", "ticket", *cmd.TicketID, "err", err)
		}
		for _, ev := range evs {
			if err := q.ledger.LinkBanEvidence(ctx, user, start, ev.ID); err != nil {
				q.logger.Error("linking ban evidence", "ticket", *cmd.TicketID, "evidence", ev.ID, "err", err)
			}
		}
	}
	return &rec, nil
}

func (q *Queue) processUnban(ctx context.Context, cmd *Command, e *FulfillEntry) error {
	user := e.User
	if user == 0 && cmd != nil {
		user = cmd.User
	}
	if user == 0 {
		return errors.New("unban entry without user")
	}

	at := time.Now()
	if start, ok := e.startTime(); ok {
		at = start
	}

	if err := q.ledger.SetCurrentBanEnd(ctx, user, at); err != nil && !errors.Is(err, ledger.ErrNoCurrentBan) {
		return fmt.Errorf("ending current ban: %w", err)
	}

	responsible := e.ResponsibleUser
	if responsible == nil && cmd != nil && cmd.Responsible != 0 {
		r := cmd.Responsible
		responsible = &r
	}
	if err := q.ledger.RecordUnban(ctx, user, responsible, at); err != nil {
		return fmt.Errorf("recording unban: %w", err)
	}
	return nil
}

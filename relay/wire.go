package relay

import (
	"time"
)

// RequestBatch is the poll response handed to the game server:
// {"requests": [...]}.
type RequestBatch struct {
	Requests []RequestEntry `json:"requests"`
}

// RequestEntry is one pending command on the wire. Fields beyond id and
// type are kind-specific.
type RequestEntry struct {
	ID   uint64 `json:"id"`
	Type Kind   `json:"type"`

	User            uint64  `json:"user,omitempty"`
	ResponsibleUser uint64  `json:"responsible_user,omitempty"`
	Reason          *string `json:"reason,omitempty"`
	// Length is the ban length in days; 0 means permanent. Only present on
	// ban requests.
	Length *int64 `json:"length,omitempty"`
	// Punches is only present on setpunches requests.
	Punches *int64 `json:"punches,omitempty"`
}

// SnapshotPending purges expired commands, then serializes everything still
// pending into the wire format. Expired commands are dropped silently.
func (q *Queue) SnapshotPending(now time.Time) *RequestBatch {
	q.purgeExpired(now)

	batch := &RequestBatch{Requests: []RequestEntry{}}
	q.pending.Range(func(id uint64, cmd *Command) bool {
		batch.Requests = append(batch.Requests, cmd.wireEntry())
		return true
	})
	return batch
}

func (c *Command) wireEntry() RequestEntry {
	e := RequestEntry{
		ID:   c.ID,
		Type: c.Kind,
		User: c.User,
	}
	switch c.Kind {
	case KindBan:
		days := c.Days
		e.ResponsibleUser = c.Responsible
		e.Reason = c.Reason
		e.Length = &days
	case KindUnban:
		e.ResponsibleUser = c.Responsible
	case KindSetCounter:
		punches := c.Punches
		e.ResponsibleUser = c.Responsible
		e.Punches = &punches
	case KindInfo:
		// id, type, and user only
	}
	return e
}

// FulfillBatch is the result submission posted by the game server:
// {"fulfill": [...]}.
type FulfillBatch struct {
	Fulfill []FulfillEntry `json:"fulfill"`
}

// FulfillEntry is one result on the wire. ID is optional: entries without
// one correlate to no pending command but still apply their ledger effect
// (for example an in-game self-service ban reported after the fact).
type FulfillEntry struct {
	ID   *uint64 `json:"id,omitempty"`
	Type Kind    `json:"type"`

	User uint64 `json:"user,omitempty"`
	// Started and Starts are accepted interchangeably: unix milliseconds of
	// the ban start.
	Started         *int64  `json:"started,omitempty"`
	Starts          *int64  `json:"starts,omitempty"`
	Ends            *int64  `json:"ends,omitempty"`
	Reason          *string `json:"reason,omitempty"`
	ResponsibleUser *uint64 `json:"responsible_user,omitempty"`
	Legacy          *bool   `json:"legacy,omitempty"`

	// Info and setpunches results report the player's punch counter.
	Punches *int64 `json:"punches,omitempty"`
	// Info results report whether the player is banned game-side.
	Banned *bool `json:"banned,omitempty"`
}

func (e *FulfillEntry) startTime() (time.Time, bool) {
	switch {
	case e.Started != nil:
		return time.UnixMilli(*e.Started), true
	case e.Starts != nil:
		return time.UnixMilli(*e.Starts), true
	}
	return time.Time{}, false
}

func (e *FulfillEntry) endTime() *time.Time {
	if e.Ends == nil {
		return nil
	}
	t := time.UnixMilli(*e.Ends)
	return &t
}

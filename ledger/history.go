package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/7UKECREAT0R/ability-wars-service-sub000/models"
)

// History is one user's ban history, kept ordered by start time. It is safe
// for concurrent use; mutation goes through the owning Service so that the
// store is written first.
type History struct {
	userID uint64

	mu      sync.RWMutex
	records []models.BanRecord
}

func (h *History) UserID() uint64 {
	return h.userID
}

// Records returns a copy of the history, oldest first.
func (h *History) Records() []models.BanRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]models.BanRecord, len(h.records))
	copy(out, h.records)
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// CurrentBan returns the record with the greatest start time. The second
// return is false for an empty history.
func (h *History) CurrentBan() (models.BanRecord, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.records) == 0 {
		return models.BanRecord{}, false
	}
	return h.records[len(h.records)-1], true
}

// CurrentlyBanned reports whether the most recent ban is still in force:
// open-ended, or ending after now.
func (h *History) CurrentlyBanned(now time.Time) bool {
	cur, ok := h.CurrentBan()
	if !ok {
		return false
	}
	return cur.Active(now)
}

func (h *History) upsert(rec models.BanRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.records {
		if h.records[i].StartsAt.Equal(rec.StartsAt) {
			h.records[i] = rec
			return
		}
	}
	h.records = append(h.records, rec)
	sort.Slice(h.records, func(i, j int) bool {
		return h.records[i].StartsAt.Before(h.records[j].StartsAt)
	})
}

func (h *History) setEnd(startsAt, end time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.records {
		if h.records[i].StartsAt.Equal(startsAt) {
			e := end
			h.records[i].EndsAt = &e
			return
		}
	}
}

func (h *History) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = nil
}

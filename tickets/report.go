package tickets

import (
	"context"
	"sort"
	"sync"
)

// ReportPayload is the intake data of a player report.
type ReportPayload struct {
	AccusedUsername string  `json:"accused_username"`
	AccusedID       *uint64 `json:"accused_id,omitempty"`
	RuleBroken      string  `json:"rule_broken"`
	EvidenceID      *int64  `json:"evidence_id,omitempty"`
}

// ReportTicket accuses a player of breaking a rule. Open reports accusing
// the same player are linked to each other when the cache loads.
type ReportTicket struct {
	ticketBase
	payload ReportPayload

	relMu   sync.Mutex
	related map[uint64]struct{}
}

func (t *ReportTicket) Payload() ReportPayload {
	return t.payload
}

func (t *ReportTicket) payloadValue() any {
	return t.payload
}

// RelatedReports returns ids of other open reports accusing the same
// player, ascending.
func (t *ReportTicket) RelatedReports() []uint64 {
	t.relMu.Lock()
	defer t.relMu.Unlock()
	out := make([]uint64, 0, len(t.related))
	for id := range t.related {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *ReportTicket) addRelated(id uint64) {
	t.relMu.Lock()
	defer t.relMu.Unlock()
	if t.related == nil {
		t.related = make(map[uint64]struct{})
	}
	t.related[id] = struct{}{}
}

func (t *ReportTicket) AvailableActions() []ActionID {
	if !t.IsOpen() {
		return nil
	}
	return []ActionID{ActionBan, ActionDismiss}
}

func (t *ReportTicket) HandleAction(ctx context.Context, action ActionID, actor uint64) error {
	switch action {
	case ActionBan:
		return t.svc.banFromReport(ctx, t, actor)
	case ActionDismiss:
		return t.svc.Close(ctx, t, &actor, "report dismissed")
	default:
		return validationErrorf("action %q is not available on a report", action)
	}
}

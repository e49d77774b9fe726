package tickets

import (
	"context"
	"sync"
)

// UnbanPayload is the intake data shared by appeals and disputes: which ban
// the owner wants lifted and their case for it.
type UnbanPayload struct {
	Domain      Domain `json:"domain"`
	TargetID    uint64 `json:"target_id"`
	Explanation string `json:"explanation"`
	// MentionWarnings counts unsolicited staff mentions by the owner; it
	// indexes into the escalation message list.
	MentionWarnings int `json:"mention_warnings"`
}

// unbanTicket carries what appeals and disputes share. The two exported
// variants exist so staff-facing code can tell them apart; their workflow
// is identical.
type unbanTicket struct {
	ticketBase

	pmu     sync.Mutex
	payload UnbanPayload
}

func (t *unbanTicket) unban() *unbanTicket { return t }

func (t *unbanTicket) Payload() UnbanPayload {
	t.pmu.Lock()
	defer t.pmu.Unlock()
	return t.payload
}

func (t *unbanTicket) payloadValue() any {
	t.pmu.Lock()
	defer t.pmu.Unlock()
	return t.payload
}

func (t *unbanTicket) Domain() Domain {
	t.pmu.Lock()
	defer t.pmu.Unlock()
	return t.payload.Domain
}

// bumpWarnings advances the mention counter and returns its new value.
func (t *unbanTicket) bumpWarnings() int {
	t.pmu.Lock()
	defer t.pmu.Unlock()
	t.payload.MentionWarnings++
	return t.payload.MentionWarnings
}

func (t *unbanTicket) AvailableActions() []ActionID {
	if !t.IsOpen() {
		return nil
	}
	return []ActionID{ActionAccept, ActionDeny}
}

// AppealTicket asks for one's own ban to be lifted.
type AppealTicket struct {
	unbanTicket
}

func (t *AppealTicket) HandleAction(ctx context.Context, action ActionID, actor uint64) error {
	return t.svc.handleUnbanAction(ctx, t, &t.unbanTicket, action, actor)
}

// DisputeTicket contests a ban issued against someone else's judgment call,
// raised by the banned player's representative.
type DisputeTicket struct {
	unbanTicket
}

func (t *DisputeTicket) HandleAction(ctx context.Context, action ActionID, actor uint64) error {
	return t.svc.handleUnbanAction(ctx, t, &t.unbanTicket, action, actor)
}

package tickets

import (
	"context"
)

// BlacklistAppealPayload is the intake data of a blacklist appeal: a
// request to be removed from the appeal blacklist itself.
type BlacklistAppealPayload struct {
	Domain      Domain `json:"domain"`
	TargetID    uint64 `json:"target_id"`
	Explanation string `json:"explanation"`
}

// BlacklistAppealTicket asks for an appeal-blacklist entry to be lifted.
// Accepting it removes the entry; the owner can then open regular appeals
// again.
type BlacklistAppealTicket struct {
	ticketBase
	payload BlacklistAppealPayload
}

func (t *BlacklistAppealTicket) Payload() BlacklistAppealPayload {
	return t.payload
}

func (t *BlacklistAppealTicket) payloadValue() any {
	return t.payload
}

func (t *BlacklistAppealTicket) AvailableActions() []ActionID {
	if !t.IsOpen() {
		return nil
	}
	return []ActionID{ActionAccept, ActionDeny}
}

func (t *BlacklistAppealTicket) HandleAction(ctx context.Context, action ActionID, actor uint64) error {
	switch action {
	case ActionAccept:
		if err := t.svc.Unblacklist(ctx, t.payload.TargetID, t.payload.Domain); err != nil {
			return err
		}
		return t.svc.Close(ctx, t, &actor, "blacklist appeal accepted")
	case ActionDeny:
		return t.svc.Close(ctx, t, &actor, "blacklist appeal denied")
	default:
		return validationErrorf("action %q is not available on a blacklist appeal", action)
	}
}

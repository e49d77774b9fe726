package tickets

import (
	"sync"
)

// Cache indexes open tickets by id and by backing channel. Both indices are
// guarded by one lock so a ticket is never visible in one and absent from
// the other.
type Cache struct {
	mu        sync.RWMutex
	byID      map[uint64]Ticket
	byChannel map[string]Ticket
}

func NewCache() *Cache {
	return &Cache{
		byID:      make(map[uint64]Ticket),
		byChannel: make(map[string]Ticket),
	}
}

func (c *Cache) insert(t Ticket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[t.ID()] = t
	if ch := t.ChannelID(); ch != "" {
		c.byChannel[ch] = t
	}
}

// reindexChannel records a ticket's channel after materialization.
func (c *Cache) reindexChannel(t Ticket, channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byChannel[channelID] = t
}

func (c *Cache) remove(t Ticket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byID, t.ID())
	if ch := t.ChannelID(); ch != "" {
		delete(c.byChannel, ch)
	}
}

// ByID returns the open ticket with the given id.
func (c *Cache) ByID(id uint64) (Ticket, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byID[id]
	return t, ok
}

// ByChannel returns the open ticket backed by the given channel.
func (c *Cache) ByChannel(channelID string) (Ticket, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byChannel[channelID]
	return t, ok
}

// All returns a snapshot of every cached open ticket.
func (c *Cache) All() []Ticket {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Ticket, 0, len(c.byID))
	for _, t := range c.byID {
		out = append(out, t)
	}
	return out
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// countByOwnerKind counts open tickets of one kind belonging to one owner.
func (c *Cache) countByOwnerKind(ownerID uint64, kind Kind) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, t := range c.byID {
		if t.OwnerID() == ownerID && t.Kind() == kind {
			n++
		}
	}
	return n
}

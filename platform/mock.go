package platform

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is an in-memory Client for tests. Failure modes can be toggled
// to exercise best-effort code paths.
type MockClient struct {
	mu       sync.Mutex
	nextID   int
	channels map[string]*Channel
	markers  map[string]bool

	ChannelMsgs []SentMessage
	DirectMsgs  []SentMessage

	FailDMs           bool
	FailChannelDelete bool
}

type SentMessage struct {
	Target  string
	Content string
}

func NewMockClient() *MockClient {
	return &MockClient{
		channels: make(map[string]*Channel),
		markers:  make(map[string]bool),
	}
}

func (m *MockClient) CreateChannel(ctx context.Context, categoryID, name string) (*Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	ch := &Channel{
		ID:         fmt.Sprintf("chan-%d", m.nextID),
		CategoryID: categoryID,
		Name:       name,
	}
	m.channels[ch.ID] = ch
	return ch, nil
}

func (m *MockClient) DeleteChannel(ctx context.Context, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailChannelDelete {
		return fmt.Errorf("delete of %s refused", channelID)
	}
	if _, ok := m.channels[channelID]; !ok {
		return ErrChannelNotFound
	}
	delete(m.channels, channelID)
	delete(m.markers, channelID)
	return nil
}

func (m *MockClient) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.channels[channelID]
	return ok, nil
}

func (m *MockClient) ChannelCount(ctx context.Context, categoryID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ch := range m.channels {
		if ch.CategoryID == categoryID {
			n++
		}
	}
	return n, nil
}

func (m *MockClient) PostServiceMarker(ctx context.Context, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[channelID]; !ok {
		return ErrChannelNotFound
	}
	m.markers[channelID] = true
	return nil
}

func (m *MockClient) HasServiceMarker(ctx context.Context, channelID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markers[channelID], nil
}

func (m *MockClient) SendChannelMessage(ctx context.Context, channelID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[channelID]; !ok {
		return ErrChannelNotFound
	}
	m.ChannelMsgs = append(m.ChannelMsgs, SentMessage{Target: channelID, Content: content})
	return nil
}

func (m *MockClient) SendDirectMessage(ctx context.Context, userID uint64, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDMs {
		return fmt.Errorf("user %d does not accept direct messages", userID)
	}
	m.DirectMsgs = append(m.DirectMsgs, SentMessage{Target: fmt.Sprintf("%d", userID), Content: content})
	return nil
}

// RemoveMarker simulates the service marker being deleted out from under a
// ticket, leaving the channel structurally broken.
func (m *MockClient) RemoveMarker(channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.markers, channelID)
}

// DropChannel simulates a channel disappearing without the service's
// involvement.
func (m *MockClient) DropChannel(channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, channelID)
	delete(m.markers, channelID)
}

var _ Client = (*MockClient)(nil)

package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// BridgeClient talks to the bot gateway's REST bridge, which executes channel
// and message operations against the chat platform on this service's behalf.
type BridgeClient struct {
	host   string
	secret string
	client *http.Client
	logger *slog.Logger
}

type bridgeLogger struct {
	inner *slog.Logger
}

func (l bridgeLogger) Error(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}
func (l bridgeLogger) Warn(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}
func (l bridgeLogger) Info(msg string, keysAndValues ...any) {
	l.inner.Info(msg, keysAndValues...)
}
func (l bridgeLogger) Debug(msg string, keysAndValues ...any) {
	l.inner.Debug(msg, keysAndValues...)
}

func NewBridgeClient(host, secret string, logger *slog.Logger) *BridgeClient {
	logger = logger.With("component", "platform_bridge")

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = cleanhttp.DefaultPooledTransport()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(bridgeLogger{inner: logger})

	client := retryClient.StandardClient()
	client.Timeout = 15 * time.Second

	return &BridgeClient{
		host:   host,
		secret: secret,
		client: client,
		logger: logger,
	}
}

var _ Client = (*BridgeClient)(nil)

func (b *BridgeClient) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var rd *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(buf)
	} else {
		rd = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.host+path, rd)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.secret)

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("bridge request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return resp.StatusCode, nil
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding bridge response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

type createChannelRequest struct {
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
}

type channelResponse struct {
	ID         string `json:"id"`
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
}

func (b *BridgeClient) CreateChannel(ctx context.Context, categoryID, name string) (*Channel, error) {
	var out channelResponse
	status, err := b.do(ctx, http.MethodPost, "/v1/channels", createChannelRequest{CategoryID: categoryID, Name: name}, &out)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("bridge refused channel creation: HTTP %d", status)
	}
	return &Channel{ID: out.ID, CategoryID: out.CategoryID, Name: out.Name}, nil
}

func (b *BridgeClient) DeleteChannel(ctx context.Context, channelID string) error {
	status, err := b.do(ctx, http.MethodDelete, "/v1/channels/"+channelID, nil, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return ErrChannelNotFound
	}
	if status >= 400 {
		return fmt.Errorf("bridge refused channel deletion: HTTP %d", status)
	}
	return nil
}

func (b *BridgeClient) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	status, err := b.do(ctx, http.MethodGet, "/v1/channels/"+channelID, nil, nil)
	if err != nil {
		return false, err
	}
	if status == http.StatusNotFound {
		return false, nil
	}
	if status >= 400 {
		return false, fmt.Errorf("bridge channel probe failed: HTTP %d", status)
	}
	return true, nil
}

func (b *BridgeClient) ChannelCount(ctx context.Context, categoryID string) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	status, err := b.do(ctx, http.MethodGet, "/v1/categories/"+categoryID+"/channel-count", nil, &out)
	if err != nil {
		return 0, err
	}
	if status >= 400 {
		return 0, fmt.Errorf("bridge category count failed: HTTP %d", status)
	}
	return out.Count, nil
}

func (b *BridgeClient) PostServiceMarker(ctx context.Context, channelID string) error {
	status, err := b.do(ctx, http.MethodPost, "/v1/channels/"+channelID+"/marker", nil, nil)
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("bridge refused marker post: HTTP %d", status)
	}
	return nil
}

func (b *BridgeClient) HasServiceMarker(ctx context.Context, channelID string) (bool, error) {
	status, err := b.do(ctx, http.MethodGet, "/v1/channels/"+channelID+"/marker", nil, nil)
	if err != nil {
		return false, err
	}
	if status == http.StatusNotFound {
		return false, nil
	}
	if status >= 400 {
		return false, fmt.Errorf("bridge marker probe failed: HTTP %d", status)
	}
	return true, nil
}

type messageRequest struct {
	Content string `json:"content"`
}

func (b *BridgeClient) SendChannelMessage(ctx context.Context, channelID, content string) error {
	status, err := b.do(ctx, http.MethodPost, "/v1/channels/"+channelID+"/messages", messageRequest{Content: content}, nil)
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("bridge refused channel message: HTTP %d", status)
	}
	return nil
}

func (b *BridgeClient) SendDirectMessage(ctx context.Context, userID uint64, content string) error {
	status, err := b.do(ctx, http.MethodPost, "/v1/users/"+strconv.FormatUint(userID, 10)+"/messages", messageRequest{Content: content}, nil)
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("bridge refused direct message: HTTP %d", status)
	}
	return nil
}

package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"queueline/internal/models"

	"github.com/gorilla/websocket"
)

// HTTPFetcher reads the public live-state endpoint of the booking service.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

func (f HTTPFetcher) FetchLive(ctx context.Context, entryID string) (models.LiveState, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	endpoint := strings.TrimRight(f.BaseURL, "/") + "/api/queue/entries/" + url.PathEscape(entryID) + "/live"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.LiveState{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return models.LiveState{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.LiveState{}, fmt.Errorf("live state: unexpected status %d", resp.StatusCode)
	}
	var state models.LiveState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return models.LiveState{}, err
	}
	return state, nil
}

// WebsocketSubscriber subscribes over the realtime service's raw websocket
// endpoint (ws://host/realtime/websocket).
type WebsocketSubscriber struct {
	URL         string
	Dialer      *websocket.Dialer
	DialTimeout time.Duration
}

type subscribeRequest struct {
	Action    string `json:"action"`
	Kind      string `json:"kind"`
	SubjectID string `json:"subject_id"`
}

type changedNotice struct {
	Type      string `json:"type"`
	SubjectID string `json:"subject_id"`
}

func (s WebsocketSubscriber) Subscribe(ctx context.Context, entryID string) (<-chan struct{}, error) {
	if s.URL == "" {
		return nil, errors.New("realtime url not configured")
	}
	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	timeout := s.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn, _, err := dialer.DialContext(dialCtx, s.URL, nil)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(subscribeRequest{Action: "subscribe", Kind: "queue_entry", SubjectID: entryID}); err != nil {
		_ = conn.Close()
		return nil, err
	}

	notices := make(chan struct{}, 1)
	finished := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-finished:
		}
		_ = conn.Close()
	}()
	go func() {
		defer close(notices)
		defer close(finished)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("realtime read error entry_id=%s err=%v", entryID, err)
				}
				return
			}
			var notice changedNotice
			if err := json.Unmarshal(data, &notice); err != nil || notice.Type != "changed" {
				continue
			}
			if notice.SubjectID != "" && notice.SubjectID != entryID {
				continue
			}
			// Coalesce: one pending notice is enough to trigger a re-fetch.
			select {
			case notices <- struct{}{}:
			default:
			}
		}
	}()
	return notices, nil
}

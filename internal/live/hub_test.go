package live

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	appconfig "fieldtrack/config"
	"fieldtrack/internal/fix"
)

func TestHubBroadcastsFixes(t *testing.T) {
	hub := NewHub(appconfig.LiveConfig{Enabled: true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := hub.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer hub.Stop()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Registration is asynchronous relative to the dial returning.
	time.Sleep(50 * time.Millisecond)

	hub.Publish([]fix.Fix{{
		Timestamp: time.Date(2025, 12, 17, 17, 21, 13, 0, time.UTC),
		DeviceID:  7,
		Latitude:  50.2585,
		Longitude: 18.9659,
	}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg := string(payload)
	if !strings.Contains(msg, `"player_id":7`) || !strings.Contains(msg, `"latitude":50.2585`) {
		t.Errorf("unexpected payload: %s", msg)
	}
}

func TestPublishEmptyIsNoop(t *testing.T) {
	hub := NewHub(appconfig.LiveConfig{})
	hub.Publish(nil)
}

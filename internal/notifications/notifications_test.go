package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ducminhle1904/trade-guard/internal/alerts"
	"github.com/ducminhle1904/trade-guard/internal/logger"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAlert() alerts.Alert {
	return alerts.Alert{
		Category:  alerts.CategoryKillSwitch,
		Priority:  alerts.PriorityCritical,
		Title:     "Kill switch activated",
		Message:   "trading halted: daily loss",
		Metadata:  map[string]string{"reason": "daily loss", "by": "monitor"},
		Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestFormatAlert(t *testing.T) {
	text := FormatAlert(testAlert())
	assert.True(t, strings.HasPrefix(text, "🚨 *Kill switch activated* [kill_switch/CRITICAL]"))
	assert.Contains(t, text, "trading halted: daily loss")
	assert.Less(t, strings.Index(text, "• by"), strings.Index(text, "• reason"), "metadata sorted by key")
}

func TestTelegramChannelDeliver(t *testing.T) {
	var got struct {
		path, chatID, text, mode string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got.path = r.URL.Path
		got.chatID = r.PostForm.Get("chat_id")
		got.text = r.PostForm.Get("text")
		got.mode = r.PostForm.Get("parse_mode")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewTelegramChannel("TOKEN", "42")
	ch.apiBase = srv.URL

	require.NoError(t, ch.Deliver(context.Background(), testAlert()))
	assert.Equal(t, "/botTOKEN/sendMessage", got.path)
	assert.Equal(t, "42", got.chatID)
	assert.Equal(t, "Markdown", got.mode)
	assert.Contains(t, got.text, "Kill switch activated")
}

func TestTelegramChannelError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	ch := NewTelegramChannel("TOKEN", "missing")
	ch.apiBase = srv.URL

	err := ch.Deliver(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "chat not found")
}

func TestLogChannel(t *testing.T) {
	var buf bytes.Buffer
	ch := NewLogChannel(logger.NewWithWriter(&buf, "test"))

	require.NoError(t, ch.Deliver(context.Background(), testAlert()))
	assert.Contains(t, buf.String(), "[ERROR] ALERT [kill_switch/CRITICAL] Kill switch activated")
}

func TestWebsocketHubBroadcast(t *testing.T) {
	hub := NewWebsocketHub(logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, hub.Deliver(ctx, testAlert()))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)

	var frame struct {
		Type  string       `json:"type"`
		Alert alerts.Alert `json:"alert"`
	}
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, "alert", frame.Type)
	assert.Equal(t, "Kill switch activated", frame.Alert.Title)
	assert.Equal(t, alerts.PriorityCritical, frame.Alert.Priority)
}

func TestWebsocketHubStopped(t *testing.T) {
	hub := NewWebsocketHub(logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	// fill the buffer so Deliver has to wait
	for i := 0; i < cap(hub.broadcast); i++ {
		hub.broadcast <- nil
	}
	assert.Error(t, hub.Deliver(context.Background(), testAlert()))
}

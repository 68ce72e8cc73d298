package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_BroadcastReachesClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	hub.Broadcast(Message{
		Type:            TypeAccrual,
		InvestmentID:    "inv-1",
		UserID:          "u1",
		CurrentInterest: "12.5",
		Status:          "active",
	})

	var got Message
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, TypeAccrual, got.Type)
	assert.Equal(t, "inv-1", got.InvestmentID)
	assert.Equal(t, "12.5", got.CurrentInterest)
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	hub := NewHub() // not running: nothing drains the buffer

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Broadcast(Message{Type: TypeAccrualRun})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked with a full buffer")
	}
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_OriginCheck(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tests := []struct {
		name    string
		allowed []string
		origin  string
		ok      bool
	}{
		{"listed origin", []string{"https://app.solari.io"}, "https://app.solari.io", true},
		{"listed origin, case differs", []string{"https://App.Solari.io/"}, "https://app.solari.io", true},
		{"unlisted origin", []string{"https://app.solari.io"}, "https://evil.example", false},
		{"no origin header", []string{"https://app.solari.io"}, "", true},
		{"wildcard", []string{"*"}, "https://evil.example", true},
		{"default rejects cross-site", nil, "https://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := NewHub(tt.allowed...)
			go hub.Run(ctx)
			srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
			defer srv.Close()

			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
			if !tt.ok {
				require.ErrorIs(t, err, websocket.ErrBadHandshake)
				assert.Equal(t, http.StatusForbidden, resp.StatusCode)
				assert.Zero(t, hub.Clients())
				return
			}
			require.NoError(t, err)
			defer conn.Close()
			require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)
		})
	}
}

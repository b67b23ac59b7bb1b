package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubRoutesFramesByFlow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(DefaultHubConfig())
	go hub.Start(ctx)

	flowA, flowB := uuid.New(), uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.MustParse(r.URL.Query().Get("flow_id"))
		assert.NoError(t, hub.Upgrade(w, r, id))
	}))
	defer srv.Close()

	dial := func(id uuid.UUID) *websocket.Conn {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?flow_id=" + id.String()
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		return conn
	}
	a := dial(flowA)
	defer a.Close()
	b := dial(flowB)
	defer b.Close()

	require.Eventually(t, func() bool {
		return hub.Connections(flowA) == 1 && hub.Connections(flowB) == 1
	}, 2*time.Second, 10*time.Millisecond)

	frame, err := newFrame(flowB, FrameCountdown, time.Now(), CountdownPayload{Timer: "resend", RemainingSeconds: 12})
	require.NoError(t, err)
	hub.Broadcast(flowB, frame)

	got := readFrame(t, b)
	assert.Equal(t, frame.ID, got.ID)
	assert.JSONEq(t, `{"timer":"resend","timer_id":"","remaining_seconds":12,"elapsed":false}`, string(got.Data))

	// nothing for flow A
	require.NoError(t, a.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = a.ReadMessage()
	assert.Error(t, err)

	hub.Disconnect(flowB)
	assert.Equal(t, 0, hub.Connections(flowB))
}

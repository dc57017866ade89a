package events

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

	"studytrack/internal/logger"
)

func TestRelay_DispatchKnownEvents(t *testing.T) {
	bus := NewBus()
	relay := NewRelay("ws://unused", "token", bus, logger.Discard())

	var got []Payload
	bus.Subscribe(SessionStarted, func(p Payload) { got = append(got, p) })

	id := uuid.New()
	relay.dispatch([]byte(`{"type":"session-started","sessionId":"` + id.String() + `"}`))
	relay.dispatch([]byte(`{"type":"job_update"}`))
	relay.dispatch([]byte(`not json`))

	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].SessionID)
	assert.Equal(t, relaySource, got[0].Source)
}

func TestRelay_RunForwardsServerMessages(t *testing.T) {
	upgrader := websocket.Upgrader{}
	tokens := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens <- r.URL.Query().Get("token")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"milestone-updated","progress":40}`))
		// Hold the connection until the client goes away.
		conn.ReadMessage()
	}))
	defer srv.Close()

	bus := NewBus()
	received := make(chan Payload, 1)
	bus.Subscribe(MilestoneUpdated, func(p Payload) { received <- p })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay := NewRelay("ws"+strings.TrimPrefix(srv.URL, "http"), "secret-token", bus, logger.Discard())
	errCh := make(chan error, 1)
	go func() { errCh <- relay.Run(ctx) }()

	select {
	case p := <-received:
		assert.Equal(t, 40.0, p.Progress)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not forward the message")
	}
	assert.Equal(t, "secret-token", <-tokens)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop after cancel")
	}
}

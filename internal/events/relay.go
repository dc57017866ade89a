package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Message is the wire form of an event pushed by the session store over the
// user's update stream.
type Message struct {
	Type Event `json:"type"`
	Payload
}

const relaySource = "relay"

// Relay forwards events from the session store's websocket stream onto a
// local Bus, so sessions started on other surfaces reach this process.
type Relay struct {
	wsURL      string
	token      string
	bus        *Bus
	log        *logrus.Logger
	dialer     *websocket.Dialer
	retryDelay time.Duration
}

func NewRelay(wsURL, token string, bus *Bus, log *logrus.Logger) *Relay {
	return &Relay{
		wsURL:      wsURL,
		token:      token,
		bus:        bus,
		log:        log,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		retryDelay: 5 * time.Second,
	}
}

// Run keeps a connection open until ctx is cancelled, reconnecting after
// failures.
func (r *Relay) Run(ctx context.Context) error {
	for {
		if err := r.session(ctx); err != nil && ctx.Err() == nil {
			r.log.WithError(err).Warn("event relay disconnected")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.retryDelay):
		}
	}
}

func (r *Relay) session(ctx context.Context) error {
	target, err := url.Parse(r.wsURL)
	if err != nil {
		return err
	}
	q := target.Query()
	q.Set("token", r.token)
	target.RawQuery = q.Encode()

	conn, _, err := r.dialer.DialContext(ctx, target.String(), http.Header{})
	if err != nil {
		return err
	}
	r.log.Debug("event relay connected")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		r.dispatch(data)
	}
}

func (r *Relay) dispatch(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		r.log.WithError(err).Debug("event relay: ignoring malformed message")
		return
	}

	switch msg.Type {
	case SessionStarted, MilestoneUpdated:
		if msg.Source == "" {
			msg.Source = relaySource
		}
		r.bus.Publish(msg.Type, msg.Payload)
	default:
		r.log.WithField("type", msg.Type).Debug("event relay: ignoring unknown event")
	}
}

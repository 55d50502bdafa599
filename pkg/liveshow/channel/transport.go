package channel

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/overbid/liveshow/pkg/liveshow/events"
)

// Transport is the persistent room-scoped connection the channel rides on.
// It is a shared resource that may outlive any single subscription.
type Transport interface {
	Send(env events.Envelope) error
	// Receive blocks until the next inbound envelope or a connection
	// error.
	Receive() (events.Envelope, error)
	Close() error
}

// WSTransport carries envelopes over one websocket connection. Writes are
// serialized; gorilla allows only one concurrent writer.
type WSTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

// Dial connects the commerce channel for one room, authenticating with the
// room token.
func Dial(ctx context.Context, url, token string) (*WSTransport, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial commerce channel: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial commerce channel: %w", err)
	}

	return &WSTransport{conn: conn}, nil
}

func (t *WSTransport) Send(env events.Envelope) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	return t.conn.WriteJSON(env)
}

func (t *WSTransport) Receive() (events.Envelope, error) {
	var env events.Envelope

	if err := t.conn.ReadJSON(&env); err != nil {
		return events.Envelope{}, err
	}

	return env, nil
}

func (t *WSTransport) Close() error {
	return t.conn.Close()
}

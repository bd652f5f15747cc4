package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mossy-p/call-signaling/internal/models"
)

const handshakeWait = 10 * time.Second

// Dial connects to a relay and waits for it to name the connection. The
// returned Conn is not started: register handlers, then call Start.
func Dial(ctx context.Context, rawURL string, header http.Header, logger *slog.Logger) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}

	deadline := time.Now().Add(handshakeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	ws.SetReadDeadline(deadline)

	var frame models.Frame
	if err := ws.ReadJSON(&frame); err != nil {
		ws.Close()
		return nil, fmt.Errorf("read handshake: %w", err)
	}
	if frame.Event != models.EventConnected {
		ws.Close()
		return nil, fmt.Errorf("read handshake: expected %q, got %q", models.EventConnected, frame.Event)
	}

	var hello models.Connected
	if err := json.Unmarshal(frame.Data, &hello); err != nil || hello.ConnectionID == "" {
		ws.Close()
		return nil, fmt.Errorf("read handshake: missing connection id")
	}

	ws.SetReadDeadline(time.Time{})
	return newConn(hello.ConnectionID, ws, logger), nil
}

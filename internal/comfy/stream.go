package comfy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/gorilla/websocket"
)

// Progress is a generation progress report for the watched prompt.
type Progress struct {
	Value int
	Max   int
}

// Stream is one run's slice of the server's shared event stream. It must be
// closed on every exit path.
type Stream struct {
	conn   *websocket.Conn
	logger *slog.Logger
}

// DialStream opens the event stream, identifying the caller by clientID.
func DialStream(ctx context.Context, serverAddr, clientID string, logger *slog.Logger) (*Stream, error) {
	if logger == nil {
		logger = slog.Default()
	}
	u := url.URL{Scheme: "ws", Host: serverAddr, Path: "/ws", RawQuery: "clientId=" + url.QueryEscape(clientID)}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial event stream: %w", err)
	}
	return &Stream{conn: conn, logger: logger}, nil
}

func (s *Stream) Close() error {
	return s.conn.Close()
}

// event is the decoded shape of the frames the watcher cares about. The
// server emits many other message types; they unmarshal harmlessly into
// this and are filtered by Type.
type event struct {
	Type string `json:"type"`
	Data struct {
		Node     *string `json:"node"`
		PromptID string  `json:"prompt_id"`
		Value    int     `json:"value"`
		Max      int     `json:"max"`
	} `json:"data"`
}

// WaitForCompletion consumes events until the watched prompt reports that no
// node is executing, which is the server's completion signal. Events for
// other prompts are ignored: the stream is shared across clients. The
// context deadline is the only way out of an unresponsive server; on expiry
// the connection is closed and the context error returned.
func (s *Stream) WaitForCompletion(ctx context.Context, promptID string, onProgress func(Progress)) error {
	// Websocket reads have no context support; closing the connection is the
	// documented way to unblock a pending read.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.conn.Close()
		case <-done:
		}
	}()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("waiting for completion of %s: %w", promptID, ctxErr)
			}
			return fmt.Errorf("event stream read: %w", err)
		}
		if msgType != websocket.TextMessage {
			// Binary frames carry node previews; the watcher has no use for them.
			continue
		}

		var ev event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		if ev.Data.PromptID != promptID {
			continue
		}

		switch ev.Type {
		case "executing":
			if ev.Data.Node == nil {
				s.logger.Info("generation complete", "prompt_id", promptID)
				return nil
			}
			s.logger.Debug("executing node", "node", *ev.Data.Node, "prompt_id", promptID)
		case "progress":
			if onProgress != nil {
				onProgress(Progress{Value: ev.Data.Value, Max: ev.Data.Max})
			}
		}
	}
}

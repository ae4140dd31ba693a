package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"labledger/core/types"
)

const wsWriteTimeout = 10 * time.Second

// handleEventsWS replays persisted events after ?cursor= and then streams
// new commits until the client disconnects. A subscriber that falls behind
// the live buffer is closed with StatusTryAgainLater and should reconnect
// from the last sequence it saw.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	cursor, err := parseCursor(r)
	if err != nil {
		writeBadRequest(w, "invalid cursor: %v", err)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, cursor); err != nil {
		if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
			s.logger.Debug("event stream ended", "error", err)
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, cursor uint64) error {
	updates, cancel, backlog, err := s.node.SubscribeEvents(ctx, cursor)
	if err != nil {
		return err
	}
	defer cancel()

	last := cursor
	for _, record := range backlog {
		if err := writeEvent(ctx, conn, record); err != nil {
			return err
		}
		last = record.Sequence
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case record, ok := <-updates:
			if !ok {
				return nil
			}
			if record.Sequence <= last {
				continue
			}
			if record.Sequence != last+1 {
				return conn.Close(websocket.StatusTryAgainLater, "subscriber lagged; reconnect with cursor")
			}
			if err := writeEvent(ctx, conn, record); err != nil {
				return err
			}
			last = record.Sequence
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, record types.EventRecord) error {
	data, err := json.Marshal(eventJSONFrom(record))
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

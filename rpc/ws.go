package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"splitledger/core"

	"nhooyr.io/websocket"
)

const wsWriteTimeout = 10 * time.Second

type eventPayload struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// handleEventsWS streams the ledger event log over a websocket. A numeric
// "cursor" query parameter replays retained events after that sequence before
// switching to live delivery.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s == nil || s.node == nil {
		http.Error(w, "node unavailable", http.StatusServiceUnavailable)
		return
	}
	var cursor uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("cursor")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid cursor", http.StatusBadRequest)
			return
		}
		cursor = parsed
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	if err := s.streamEvents(r.Context(), conn, cursor); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, cursor uint64) error {
	updates, cancel, backlog := s.node.SubscribeEvents(ctx, cursor)
	defer cancel()

	for _, evt := range backlog {
		if err := writeSequencedEvent(ctx, conn, evt); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeSequencedEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeSequencedEvent(ctx context.Context, conn *websocket.Conn, evt core.SequencedEvent) error {
	payload := eventPayload{Sequence: evt.Sequence}
	if evt.Event != nil {
		payload.Type = evt.Event.Type
		payload.Attributes = evt.Event.Attributes
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

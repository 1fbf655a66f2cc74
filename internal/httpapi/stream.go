package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mfalconi/lingotutor/internal/genlang"
	"github.com/mfalconi/lingotutor/internal/protocol"
	"github.com/mfalconi/lingotutor/internal/store"
)

// handleStream serves the websocket variant of ask: the client sends
// client_ask messages and receives assistant_delta frames as the model
// produces text, closed out by a turn_complete with the parsed reply. Asks
// are handled one at a time per connection, so all writes stay on this
// goroutine.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.writeStreamMessage(conn, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Code:      "invalid_client_message",
				Retryable: false,
				Detail:    err.Error(),
			})
			continue
		}

		ask, ok := parsed.(protocol.ClientAsk)
		if !ok {
			continue
		}

		result, err := s.conversations.StreamAsk(r.Context(), ask.Email, ask.Message, func(delta string) error {
			return s.writeStreamMessage(conn, protocol.AssistantDelta{
				Type:      protocol.TypeAssistantDelta,
				TextDelta: delta,
			})
		})
		if err != nil {
			s.writeStreamMessage(conn, streamErrorEvent(err))
			continue
		}

		if err := s.writeStreamMessage(conn, protocol.TurnComplete{
			Type:     protocol.TypeTurnComplete,
			TurnID:   result.TurnID,
			Reply:    result.Reply,
			FellBack: result.FellBack,
		}); err != nil {
			return
		}
	}
}

func (s *Server) writeStreamMessage(conn *websocket.Conn, msg any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(msg)
}

func streamErrorEvent(err error) protocol.ErrorEvent {
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		return protocol.ErrorEvent{
			Type:   protocol.TypeErrorEvent,
			Code:   "user_not_found",
			Detail: "no user with that email",
		}
	case errors.Is(err, genlang.ErrUpstream):
		return protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			Code:      "model_unavailable",
			Retryable: true,
			Detail:    "the language model could not be reached",
		}
	default:
		return protocol.ErrorEvent{
			Type:   protocol.TypeErrorEvent,
			Code:   "internal_error",
			Detail: "internal server error",
		}
	}
}

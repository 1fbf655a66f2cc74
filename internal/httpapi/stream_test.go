package httpapi

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/mfalconi/lingotutor/internal/protocol"
)

func dialStream(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/v1/conversation/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readStreamMessage(t *testing.T, conn *websocket.Conn) (protocol.MessageType, []byte) {
	t.Helper()
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode envelope: %v\n%s", err, data)
	}
	return env.Type, data
}

func TestStreamDeliversDeltaThenTurnComplete(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "student@example.com")
	conn := dialStream(t, env)

	err := conn.WriteJSON(protocol.ClientAsk{
		Type:    protocol.TypeClientAsk,
		Email:   user.Email,
		Message: "hello",
	})
	if err != nil {
		t.Fatalf("write ask: %v", err)
	}

	msgType, data := readStreamMessage(t, conn)
	if msgType != protocol.TypeAssistantDelta {
		t.Fatalf("first message type = %q, want assistant_delta\n%s", msgType, data)
	}
	var delta protocol.AssistantDelta
	if err := json.Unmarshal(data, &delta); err != nil {
		t.Fatalf("decode delta: %v", err)
	}
	if delta.TextDelta == "" {
		t.Fatalf("empty delta text")
	}

	msgType, data = readStreamMessage(t, conn)
	if msgType != protocol.TypeTurnComplete {
		t.Fatalf("second message type = %q, want turn_complete\n%s", msgType, data)
	}
	var done protocol.TurnComplete
	if err := json.Unmarshal(data, &done); err != nil {
		t.Fatalf("decode turn_complete: %v", err)
	}
	if done.TurnID == "" {
		t.Fatalf("turn_complete missing turn id")
	}
	if done.FellBack {
		t.Fatalf("FellBack = true for valid model output")
	}
}

func TestStreamReportsUnknownUser(t *testing.T) {
	env := newTestEnv(t)
	conn := dialStream(t, env)

	err := conn.WriteJSON(protocol.ClientAsk{
		Type:    protocol.TypeClientAsk,
		Email:   "ghost@example.com",
		Message: "hello",
	})
	if err != nil {
		t.Fatalf("write ask: %v", err)
	}

	msgType, data := readStreamMessage(t, conn)
	if msgType != protocol.TypeErrorEvent {
		t.Fatalf("message type = %q, want error_event\n%s", msgType, data)
	}
	var ev protocol.ErrorEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode error event: %v", err)
	}
	if ev.Code != "user_not_found" {
		t.Fatalf("error code = %q", ev.Code)
	}
}

func TestStreamRejectsMalformedMessages(t *testing.T) {
	env := newTestEnv(t)
	conn := dialStream(t, env)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"client_ask","email":""}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	msgType, data := readStreamMessage(t, conn)
	if msgType != protocol.TypeErrorEvent {
		t.Fatalf("message type = %q, want error_event\n%s", msgType, data)
	}
	var ev protocol.ErrorEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode error event: %v", err)
	}
	if ev.Code != "invalid_client_message" {
		t.Fatalf("error code = %q", ev.Code)
	}
}

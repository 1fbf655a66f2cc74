package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants on the streaming ask
// endpoint.
type MessageType string

const (
	TypeClientAsk      MessageType = "client_ask"
	TypeAssistantDelta MessageType = "assistant_delta"
	TypeTurnComplete   MessageType = "turn_complete"
	TypeErrorEvent     MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientAsk submits one message for a streamed turn.
type ClientAsk struct {
	Type    MessageType `json:"type"`
	Email   string      `json:"email"`
	Message string      `json:"message"`
}

// AssistantDelta carries one fragment of model text as it is produced.
type AssistantDelta struct {
	Type      MessageType `json:"type"`
	TextDelta string      `json:"text_delta"`
}

// TurnComplete closes a streamed turn with the parsed structured reply and
// the persisted turn id.
type TurnComplete struct {
	Type     MessageType `json:"type"`
	TurnID   string      `json:"turn_id"`
	Reply    any         `json:"reply"`
	FellBack bool        `json:"fell_back"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientAsk:
		var msg ClientAsk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Email) == "" || strings.TrimSpace(msg.Message) == "" {
			return nil, errors.New("invalid client_ask")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

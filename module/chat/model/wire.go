package model

import (
	"encoding/json"

	"github.com/mitchellh/mapstructure"

	"tripchat/tools/errs"
)

// Socket event names. Client-to-server instructions and server-to-room
// broadcasts share one envelope: {"type": ..., "payload": ...}.
const (
	EventJoinConversation = "join_conversation"
	EventSendMessage      = "send_message"
	EventMessagesSeen     = "messages_seen"

	EventReceiveMessage   = "receive_message"
	EventUpdateSeenStatus = "update_seen_status"
)

// Frame is the wire envelope for both directions of the socket channel.
// Payload stays untyped until the dispatcher knows the event kind.
type Frame struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

type JoinPayload struct {
	ConversationID string `json:"conversationId" mapstructure:"conversationId"`
}

type SendPayload struct {
	ConversationID string `json:"conversationId" mapstructure:"conversationId"`
	SenderID       string `json:"senderId" mapstructure:"senderId"`
	Content        string `json:"content" mapstructure:"content"`
	ClientMsgID    string `json:"clientMsgId,omitempty" mapstructure:"clientMsgId"`
}

type SeenPayload struct {
	ConversationID string `json:"conversationId" mapstructure:"conversationId"`
	ViewerID       string `json:"viewerId" mapstructure:"viewerId"`
}

// SeenStatus is the payload of update_seen_status.
type SeenStatus struct {
	ConversationID string `json:"conversationId" mapstructure:"conversationId"`
	ViewerID       string `json:"viewerId" mapstructure:"viewerId"`
}

func ParseFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errs.ErrArgs.WrapMsg("bad frame: " + err.Error())
	}
	if f.Type == "" {
		return nil, errs.ErrArgs.WrapMsg("frame type missing")
	}
	return &f, nil
}

// DecodePayload maps the untyped payload onto the event's struct.
func DecodePayload[T any](f *Frame) (*T, error) {
	var out T
	if err := mapstructure.Decode(f.Payload, &out); err != nil {
		return nil, errs.ErrArgs.WrapMsg("bad payload: " + err.Error())
	}
	return &out, nil
}

// DecodeJSONPayload round-trips the payload through JSON instead. Needed for
// event structs shaped by json tags (embedded types, nested sender objects),
// which mapstructure does not flatten.
func DecodeJSONPayload[T any](f *Frame) (*T, error) {
	body, err := json.Marshal(f.Payload)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errs.ErrArgs.WrapMsg("bad payload: " + err.Error())
	}
	return &out, nil
}

// BuildFrame marshals an event onto the wire. payload goes through JSON so
// struct json tags, not field names, shape the format.
func BuildFrame(event string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, errs.Wrap(err)
	}
	return json.Marshal(Frame{Type: event, Payload: m})
}

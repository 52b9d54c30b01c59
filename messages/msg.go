// Package messages defines the realtime protocol spoken over WebSocket
// connections and the binary encoding used to bulk load positions.
package messages

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// MsgType identifies the payload carried by a Msg.
type MsgType string

const (
	MsgTypePingRequest               MsgType = "ping_request"
	MsgTypePingResponse              MsgType = "ping_response"
	MsgTypeSyncClock                 MsgType = "sync_clock"
	MsgTypeErrorResponse             MsgType = "error_response"
	MsgTypeFieldJoinRequest          MsgType = "field_join_request"
	MsgTypeFieldJoinResponse         MsgType = "field_join_response"
	MsgTypeFieldLeaveRequest         MsgType = "field_leave_request"
	MsgTypeFieldLeaveResponse        MsgType = "field_leave_response"
	MsgTypeFieldState                MsgType = "field_state"
	MsgTypeParticipantJoinBroadcast  MsgType = "participant_join_broadcast"
	MsgTypeParticipantLeaveBroadcast MsgType = "participant_leave_broadcast"
	MsgTypeEntitySpawnRequest        MsgType = "entity_spawn_request"
	MsgTypeEntitySpawnResponse       MsgType = "entity_spawn_response"
	MsgTypeEntitySpawnBroadcast      MsgType = "entity_spawn_broadcast"
	MsgTypeEntitiesSpawnBroadcast    MsgType = "entities_spawn_broadcast"
	MsgTypeNearbyRequest             MsgType = "nearby_request"
	MsgTypeNearbyResponse            MsgType = "nearby_response"
	MsgTypeTreeRequest               MsgType = "tree_request"
	MsgTypeTreeResponse              MsgType = "tree_response"
)

// Payload is a message body that knows its own type.
type Payload interface {
	MsgType() MsgType
}

// Msg is the envelope of every message exchanged over a connection.
type Msg struct {
	Type MsgType         `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MsgFromPayload wraps the given payload into a message.
func MsgFromPayload(p Payload) (Msg, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return Msg{}, errors.New("encoding message payload failed").
			WithType(ErrTypeMsgEncoding).
			WithTag("msg_type", p.MsgType()).
			Wrap(err)
	}

	return Msg{
		Type: p.MsgType(),
		Data: data,
	}, nil
}

// DataTo decodes the message payload into v.
func (m Msg) DataTo(v any) error {
	if len(m.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(m.Data, v); err != nil {
		return errors.New("decoding message payload failed").
			WithType(ErrTypeMsgDecoding).
			WithTag("msg_type", m.Type).
			Wrap(err)
	}
	return nil
}

func (m Msg) TypeString() string {
	if m.Type == "" {
		return "unknown"
	}
	return string(m.Type)
}

// Receiver reads the next message from a connection and returns it with the
// number of bytes read.
type Receiver func() (Msg, int, error)

// Sender writes a message to a connection and returns the number of bytes
// written.
type Sender func(Msg) (int, error)

// ResponseSender sends messages to a connected client.
type ResponseSender interface {
	// Send wraps the payload into a message and sends it.
	Send(Payload)

	SendMsg(Msg)
}

// Receive reads a message from the given connection.
func Receive(conn *websocket.Conn) (Msg, int, error) {
	var data []byte
	if err := websocket.Message.Receive(conn, &data); err != nil {
		return Msg{}, 0, err
	}

	var msg Msg
	if err := json.Unmarshal(data, &msg); err != nil {
		return Msg{}, len(data), errors.New("decoding message failed").
			WithType(ErrTypeMsgDecoding).
			WithTag("size", len(data)).
			Wrap(err)
	}
	return msg, len(data), nil
}

// Send writes a message to the given connection as a text frame.
func Send(conn *websocket.Conn, msg Msg) (int, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, errors.New("encoding message failed").
			WithType(ErrTypeMsgEncoding).
			WithTag("msg_type", msg.Type).
			Wrap(err)
	}

	if err := websocket.Message.Send(conn, string(data)); err != nil {
		return 0, err
	}
	return len(data), nil
}

package messages

import (
	"time"

	"github.com/aukilabs/quadfield/quadtree"
)

type Color struct {
	R float32 `json:"r"`
	G float32 `json:"g"`
	B float32 `json:"b"`
}

type Entity struct {
	ID            uint32            `json:"id"`
	ParticipantID uint32            `json:"participant_id,omitempty"`
	Position      quadtree.Vector3f `json:"position"`
	Color         Color             `json:"color"`
}

// Region describes the area covered by a field.
type Region struct {
	Center quadtree.Vector3f `json:"center"`
	Size   quadtree.Vector3f `json:"size"`
}

// FieldConfig describes the field to create when joining without a field id.
// Unset values are replaced by the server defaults.
type FieldConfig struct {
	Region         *Region `json:"region,omitempty"`
	Capacity       *int    `json:"capacity,omitempty"`
	MaxDepth       *int    `json:"max_depth,omitempty"`
	BoundaryPolicy string  `json:"boundary_policy,omitempty"`
}

// FieldInfo describes an existing field.
type FieldInfo struct {
	FieldID          string    `json:"field_id"`
	FieldUUID        string    `json:"field_uuid"`
	Region           Region    `json:"region"`
	Capacity         int       `json:"capacity"`
	MaxDepth         int       `json:"max_depth"`
	BoundaryPolicy   string    `json:"boundary_policy"`
	Persist          bool      `json:"persist"`
	EntityCount      int       `json:"entity_count"`
	ParticipantCount int       `json:"participant_count"`
	CreatedAt        time.Time `json:"created_at"`
}

type PingRequest struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID uint32    `json:"request_id"`
}

func (PingRequest) MsgType() MsgType { return MsgTypePingRequest }

type PingResponse struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID uint32    `json:"request_id"`
}

func (PingResponse) MsgType() MsgType { return MsgTypePingResponse }

type SyncClock struct {
	Timestamp time.Time `json:"timestamp"`
}

func (SyncClock) MsgType() MsgType { return MsgTypeSyncClock }

type ErrorResponse struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID uint32    `json:"request_id,omitempty"`
	Code      ErrorCode `json:"code"`
}

func (ErrorResponse) MsgType() MsgType { return MsgTypeErrorResponse }

// FieldJoinRequest joins the field with the given id. An empty field id
// creates a new field.
type FieldJoinRequest struct {
	Timestamp time.Time    `json:"timestamp"`
	RequestID uint32       `json:"request_id"`
	FieldID   string       `json:"field_id,omitempty"`
	Field     *FieldConfig `json:"field,omitempty"`
}

func (FieldJoinRequest) MsgType() MsgType { return MsgTypeFieldJoinRequest }

type FieldJoinResponse struct {
	Timestamp     time.Time `json:"timestamp"`
	RequestID     uint32    `json:"request_id"`
	ParticipantID uint32    `json:"participant_id"`
	Field         FieldInfo `json:"field"`
}

func (FieldJoinResponse) MsgType() MsgType { return MsgTypeFieldJoinResponse }

type FieldLeaveRequest struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID uint32    `json:"request_id"`
}

func (FieldLeaveRequest) MsgType() MsgType { return MsgTypeFieldLeaveRequest }

type FieldLeaveResponse struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID uint32    `json:"request_id"`
}

func (FieldLeaveResponse) MsgType() MsgType { return MsgTypeFieldLeaveResponse }

// FieldState is sent to a participant right after it joined a field.
type FieldState struct {
	Timestamp    time.Time `json:"timestamp"`
	Participants []uint32  `json:"participants"`
	Entities     []Entity  `json:"entities"`
}

func (FieldState) MsgType() MsgType { return MsgTypeFieldState }

type ParticipantJoinBroadcast struct {
	Timestamp       time.Time `json:"timestamp"`
	OriginTimestamp time.Time `json:"origin_timestamp"`
	ParticipantID   uint32    `json:"participant_id"`
}

func (ParticipantJoinBroadcast) MsgType() MsgType { return MsgTypeParticipantJoinBroadcast }

type ParticipantLeaveBroadcast struct {
	Timestamp     time.Time `json:"timestamp"`
	ParticipantID uint32    `json:"participant_id"`
}

func (ParticipantLeaveBroadcast) MsgType() MsgType { return MsgTypeParticipantLeaveBroadcast }

// EntitySpawnRequest places a new entity in the joined field. A random color
// is picked when none is given.
type EntitySpawnRequest struct {
	Timestamp time.Time         `json:"timestamp"`
	RequestID uint32            `json:"request_id"`
	Position  quadtree.Vector3f `json:"position"`
	Color     *Color            `json:"color,omitempty"`
}

func (EntitySpawnRequest) MsgType() MsgType { return MsgTypeEntitySpawnRequest }

type EntitySpawnResponse struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID uint32    `json:"request_id"`
	EntityID  uint32    `json:"entity_id"`
	Result    string    `json:"result"`
}

func (EntitySpawnResponse) MsgType() MsgType { return MsgTypeEntitySpawnResponse }

type EntitySpawnBroadcast struct {
	Timestamp       time.Time `json:"timestamp"`
	OriginTimestamp time.Time `json:"origin_timestamp"`
	Entity          Entity    `json:"entity"`
}

func (EntitySpawnBroadcast) MsgType() MsgType { return MsgTypeEntitySpawnBroadcast }

// EntitiesSpawnBroadcast notifies participants of entities bulk loaded into
// the field.
type EntitiesSpawnBroadcast struct {
	Timestamp       time.Time `json:"timestamp"`
	OriginTimestamp time.Time `json:"origin_timestamp"`
	Entities        []Entity  `json:"entities"`
}

func (EntitiesSpawnBroadcast) MsgType() MsgType { return MsgTypeEntitiesSpawnBroadcast }

type NearbyRequest struct {
	Timestamp time.Time         `json:"timestamp"`
	RequestID uint32            `json:"request_id"`
	Origin    quadtree.Vector3f `json:"origin"`
}

func (NearbyRequest) MsgType() MsgType { return MsgTypeNearbyRequest }

type NearbyResponse struct {
	Timestamp time.Time           `json:"timestamp"`
	RequestID uint32              `json:"request_id"`
	Positions []quadtree.Vector3f `json:"positions"`
	EntityIDs []uint32            `json:"entity_ids"`
}

func (NearbyResponse) MsgType() MsgType { return MsgTypeNearbyResponse }

type TreeRequest struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID uint32    `json:"request_id"`
}

func (TreeRequest) MsgType() MsgType { return MsgTypeTreeRequest }

// Tree is a snapshot of a field quadtree. Signature is set when the server
// has an identity and covers the JSON encoding of Nodes.
type Tree struct {
	Nodes         []quadtree.NodeInfo `json:"nodes"`
	Info          quadtree.DebugInfo  `json:"info"`
	Signature     string              `json:"signature,omitempty"`
	WalletAddress string              `json:"wallet_address,omitempty"`
}

type TreeResponse struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID uint32    `json:"request_id"`
	Tree
}

func (TreeResponse) MsgType() MsgType { return MsgTypeTreeResponse }

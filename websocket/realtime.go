package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/quadfield/featureflag"
	qfhttp "github.com/aukilabs/quadfield/http"
	"github.com/aukilabs/quadfield/messages"
	"github.com/aukilabs/quadfield/models"
	"github.com/aukilabs/quadfield/quadtree"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"
	"golang.org/x/time/rate"
)

// RealtimeHandler represents a service that manages a client connection to
// the fields of a server and relays its actions in realtime.
type RealtimeHandler struct {
	// The interval between each sync clock message sent to the connected
	// client.
	ClientSyncClockInterval time.Duration

	// The time a client is idle before being disconnected.
	ClientIdleTimeout time.Duration

	// The store that contains all the server fields.
	Fields *models.FieldStore

	// The config used to create fields requested by clients.
	FieldDefaults models.FieldConfig

	// The number of entities a client can spawn per second. Zero means no
	// limit.
	SpawnRate rate.Limit

	// The number of entities a client can spawn at once.
	SpawnBurst int

	// The identity used to sign tree snapshots. Snapshots are unsigned when
	// nil.
	Identity *models.Identity

	FeatureFlags featureflag.FeatureFlag

	conn               *websocket.Conn
	currentField       *models.Field
	currentParticipant *models.Participant
	spawnLimiter       *rate.Limiter

	clientID string
}

func (h *RealtimeHandler) HandleConnect(conn *websocket.Conn) {
	if req := conn.Request(); req != nil {
		h.clientID = qfhttp.GetClientIDFromHTTPRequest(req)
	}
	if h.clientID == "" {
		h.clientID = uuid.NewString()
	}

	if h.SpawnRate > 0 {
		burst := h.SpawnBurst
		if burst < 1 {
			burst = 1
		}
		h.spawnLimiter = rate.NewLimiter(h.SpawnRate, burst)
	}

	h.conn = conn
}

func (h *RealtimeHandler) HandlePing(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	var req messages.PingRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	respond.Send(messages.PingResponse{
		Timestamp: time.Now(),
		RequestID: req.RequestID,
	})
	return nil
}

func (h *RealtimeHandler) HandleFieldJoin(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	var req messages.FieldJoinRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	if h.currentField != nil && h.Fields.GlobalFieldID(h.currentField.ID) == req.FieldID {
		sendError(respond, req.RequestID, messages.ErrorCodeAlreadyJoined)
		return nil
	}

	if h.currentParticipant != nil {
		h.leaveField()
	}

	field, ok := h.Fields.GetByGlobalID(req.FieldID)
	if !ok && req.FieldID != "" {
		sendError(respond, req.RequestID, messages.ErrorCodeNotFound)
		return nil
	}

	if !ok {
		conf, err := h.FieldDefaults.WithOverrides(req.Field)
		if err != nil {
			logs.WithTag(ClientIDTag, h.clientID).Debug(err)
			sendError(respond, req.RequestID, messages.ErrorCodeBadRequest)
			return nil
		}
		conf.Persist = false

		if field, err = h.Fields.Create(ctx, conf); err != nil {
			logs.WithTag(ClientIDTag, h.clientID).Warn(err)
			sendError(respond, req.RequestID, createFieldErrorCode(err))
			return nil
		}

		logs.WithTag(ClientIDTag, h.clientID).
			WithTag(FieldIDTag, h.Fields.GlobalFieldID(field.ID)).
			Info("field created")
	}

	participant := &models.Participant{
		ID:        field.NewParticipantID(),
		Responder: respond,
	}
	field.AddParticipant(participant)

	respond.Send(messages.FieldJoinResponse{
		Timestamp:     time.Now(),
		RequestID:     req.RequestID,
		ParticipantID: participant.ID,
		Field:         h.Fields.FieldToMessage(field),
	})

	h.currentField = field
	h.currentParticipant = participant

	h.FeatureFlags.IfNotSet(featureflag.FlagDisableFieldState, func() {
		respond.Send(messages.FieldState{
			Timestamp:    time.Now(),
			Participants: models.ParticipantIDs(field.Participants()),
			Entities:     models.EntitiesToMessage(field.Entities()),
		})
	})

	h.FeatureFlags.IfNotSet(featureflag.FlagDisableParticipantJoinBroadcast, func() {
		field.Broadcast(participant, messages.ParticipantJoinBroadcast{
			Timestamp:       time.Now(),
			OriginTimestamp: req.Timestamp,
			ParticipantID:   participant.ID,
		})
	})

	return nil
}

func (h *RealtimeHandler) HandleFieldLeave(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	var req messages.FieldLeaveRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	if h.currentParticipant == nil || h.currentField == nil {
		sendError(respond, req.RequestID, messages.ErrorCodeNotJoined)
		return nil
	}

	h.leaveField()

	respond.Send(messages.FieldLeaveResponse{
		Timestamp: time.Now(),
		RequestID: req.RequestID,
	})
	return nil
}

func (h *RealtimeHandler) HandleDisconnect(_ error) {
	if h.currentParticipant != nil {
		h.leaveField()
	}
}

func (h *RealtimeHandler) HandleEntitySpawn(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	var req messages.EntitySpawnRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	participant := h.currentParticipant
	field := h.currentField
	if participant == nil || field == nil {
		sendError(respond, req.RequestID, messages.ErrorCodeNotJoined)
		return nil
	}

	if h.spawnLimiter != nil && !h.spawnLimiter.Allow() {
		sendError(respond, req.RequestID, messages.ErrorCodeRateLimited)
		return nil
	}

	var color *models.Color
	if req.Color != nil {
		c := models.ColorFromMessage(*req.Color)
		color = &c
	}

	entity, res, err := field.Spawn(participant, req.Position, color)
	if errors.IsType(err, models.ErrTypeFieldClosed) {
		sendError(respond, req.RequestID, messages.ErrorCodeNotFound)
		return nil
	}
	if err != nil {
		return err
	}
	if entity == nil {
		sendError(respond, req.RequestID, messages.ErrorCodeOutOfBounds)
		return nil
	}

	now := time.Now()

	respond.Send(messages.EntitySpawnResponse{
		Timestamp: now,
		RequestID: req.RequestID,
		EntityID:  entity.ID,
		Result:    res.String(),
	})

	h.FeatureFlags.IfNotSet(featureflag.FlagDisableEntitySpawnBroadcast, func() {
		field.Broadcast(participant, messages.EntitySpawnBroadcast{
			Timestamp:       now,
			OriginTimestamp: req.Timestamp,
			Entity:          entity.ToMessage(),
		})
	})

	return nil
}

func (h *RealtimeHandler) HandleNearby(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	var req messages.NearbyRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	field := h.currentField
	if field == nil {
		sendError(respond, req.RequestID, messages.ErrorCodeNotJoined)
		return nil
	}

	positions, entityIDs := field.Nearby(req.Origin)
	if positions == nil {
		positions = []quadtree.Vector3f{}
	}
	if entityIDs == nil {
		entityIDs = []uint32{}
	}

	respond.Send(messages.NearbyResponse{
		Timestamp: time.Now(),
		RequestID: req.RequestID,
		Positions: positions,
		EntityIDs: entityIDs,
	})
	return nil
}

func (h *RealtimeHandler) HandleTree(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	var req messages.TreeRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	field := h.currentField
	if field == nil {
		sendError(respond, req.RequestID, messages.ErrorCodeNotJoined)
		return nil
	}

	tree, err := field.TreeMessage(h.signingIdentity())
	if err != nil {
		logs.WithTag(ClientIDTag, h.clientID).Error(err)
		sendError(respond, req.RequestID, messages.ErrorCodeInternal)
		return nil
	}

	respond.Send(messages.TreeResponse{
		Timestamp: time.Now(),
		RequestID: req.RequestID,
		Tree:      tree,
	})
	return nil
}

func (h *RealtimeHandler) SendSyncClock(ctx context.Context, respond messages.ResponseSender) error {
	respond.Send(messages.SyncClock{
		Timestamp: time.Now(),
	})
	return nil
}

func (h *RealtimeHandler) Receiver() messages.Receiver {
	return func() (messages.Msg, int, error) {
		return messages.Receive(h.conn)
	}
}

func (h *RealtimeHandler) Sender() messages.Sender {
	return func(msg messages.Msg) (int, error) {
		return messages.Send(h.conn, msg)
	}
}

func (h *RealtimeHandler) Close() {
}

func (h *RealtimeHandler) SyncClockInterval() time.Duration {
	return h.ClientSyncClockInterval
}

func (h *RealtimeHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *RealtimeHandler) GetFields() *models.FieldStore {
	return h.Fields
}

func (h *RealtimeHandler) CurrentField() *models.Field {
	return h.currentField
}

func (h *RealtimeHandler) CurrentParticipant() *models.Participant {
	return h.currentParticipant
}

func (h *RealtimeHandler) GetClientID() string {
	return h.clientID
}

func (h *RealtimeHandler) signingIdentity() *models.Identity {
	if h.FeatureFlags.IsSet(featureflag.FlagDisableTreeSignature) {
		return nil
	}
	return h.Identity
}

func (h *RealtimeHandler) leaveField() {
	field := h.currentField
	participant := h.currentParticipant

	if participant == nil || field == nil {
		return
	}

	field.RemoveParticipant(participant)

	h.FeatureFlags.IfNotSet(featureflag.FlagDisableParticipantLeaveBroadcast, func() {
		field.Broadcast(participant, messages.ParticipantLeaveBroadcast{
			Timestamp:     time.Now(),
			ParticipantID: participant.ID,
		})
	})

	if !field.Persist && field.ParticipantCount() == 0 {
		// The connection context may already be canceled at this point.
		h.Fields.Remove(context.Background(), field)

		logs.WithTag(ClientIDTag, h.clientID).
			WithTag(FieldIDTag, h.Fields.GlobalFieldID(field.ID)).
			Info("field removed")
	}

	h.currentParticipant = nil
	h.currentField = nil
}

func sendError(respond messages.ResponseSender, requestID uint32, code messages.ErrorCode) {
	respond.Send(messages.ErrorResponse{
		Timestamp: time.Now(),
		RequestID: requestID,
		Code:      code,
	})
}

func createFieldErrorCode(err error) messages.ErrorCode {
	switch {
	case errors.IsType(err, models.ErrTypeFieldLimitReached):
		return messages.ErrorCodeLimitReached

	case errors.IsType(err, quadtree.ErrTypeInvalidRegion),
		errors.IsType(err, quadtree.ErrTypeInvalidCapacity),
		errors.IsType(err, quadtree.ErrTypeInvalidMaxDepth),
		errors.IsType(err, quadtree.ErrTypeInvalidBoundary):
		return messages.ErrorCodeBadRequest

	default:
		return messages.ErrorCodeInternal
	}
}

package websocket

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/quadfield/messages"
	"golang.org/x/net/websocket"
)

const (
	ClientIDTag      = "client_id"
	FieldIDTag       = "field_id"
	ParticipantIDTag = "participant_id"

	headerXForwardedFor = "X-Forwarded-For"
)

// HandlerWithLogs wraps the given handler with connection logs and a periodic
// summary of the received messages.
func HandlerWithLogs(h Handler, summaryInterval time.Duration) Handler {
	ctx, cancel := context.WithCancel(context.Background())

	handler := &handlerWithLogs{
		Handler:            h,
		summaryInterval:    summaryInterval,
		closeSummaryWorker: cancel,
		counter:            make(map[string]int),
	}

	go handler.startSummaryWorker(ctx)
	return handler
}

type handlerWithLogs struct {
	Handler

	originalRequest *http.Request

	summaryInterval    time.Duration
	closeSummaryWorker func()
	counterMutex       sync.Mutex
	counter            map[string]int

	mutex         sync.Mutex
	fieldID       string
	fieldUUID     string
	participantID uint32
}

type httpHeaders struct {
	UserAgent     string `json:"user_agent,omitempty"`
	XForwardedFor string `json:"x_forwarded_for,omitempty"`
}

func (h *handlerWithLogs) HandleConnect(conn *websocket.Conn) {
	h.Handler.HandleConnect(conn)
	h.originalRequest = conn.Request()

	logs.WithTag(ClientIDTag, h.GetClientID()).
		Info("new client is connected")
}

func (h *handlerWithLogs) HandleFieldJoin(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	if err := h.Handler.HandleFieldJoin(ctx, respond, msg); err != nil {
		return err
	}

	if h.CurrentParticipant() == nil {
		var req messages.FieldJoinRequest
		// The request already decoded in the wrapped handler.
		msg.DataTo(&req)

		h.setField("", "", 0)

		logs.WithTag(ClientIDTag, h.GetClientID()).
			WithTag(FieldIDTag, req.FieldID).
			WithTag("request_id", req.RequestID).
			WithTag("http_headers", h.httpHeaders()).
			Info("participant failed to join a field")
		return nil
	}

	field := h.CurrentField()
	h.setField(h.GetFields().GlobalFieldID(field.ID), field.FieldUUID, h.CurrentParticipant().ID)

	fieldID, fieldUUID, participantID := h.field()
	logs.WithTag(ClientIDTag, h.GetClientID()).
		WithTag(FieldIDTag, fieldID).
		WithTag("field_uuid", fieldUUID).
		WithTag(ParticipantIDTag, participantID).
		WithTag("http_headers", h.httpHeaders()).
		Info("participant joined a field")
	return nil
}

func (h *handlerWithLogs) HandleFieldLeave(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	fieldID, fieldUUID, participantID := h.field()

	if err := h.Handler.HandleFieldLeave(ctx, respond, msg); err != nil {
		return err
	}

	if fieldID == "" || h.CurrentField() != nil {
		return nil
	}

	h.setField("", "", 0)

	logs.WithTag(ClientIDTag, h.GetClientID()).
		WithTag(FieldIDTag, fieldID).
		WithTag("field_uuid", fieldUUID).
		WithTag(ParticipantIDTag, participantID).
		Info("participant left a field")
	return nil
}

func (h *handlerWithLogs) HandleDisconnect(err error) {
	h.Handler.HandleDisconnect(err)

	fieldID, _, participantID := h.field()
	logs.WithTag(ClientIDTag, h.GetClientID()).
		WithTag(FieldIDTag, fieldID).
		WithTag(ParticipantIDTag, participantID).
		Info("client disconnected")
}

func (h *handlerWithLogs) Receiver() messages.Receiver {
	receive := h.Handler.Receiver()

	return func() (messages.Msg, int, error) {
		msg, n, err := receive()
		fieldID, fieldUUID, participantID := h.field()

		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			logs.WithTag(ClientIDTag, h.GetClientID()).
				WithTag(FieldIDTag, fieldID).
				WithTag("field_uuid", fieldUUID).
				WithTag(ParticipantIDTag, participantID).
				Error(errors.New("receiving message failed").Wrap(err))
		} else if err == nil {
			logs.WithTag(ClientIDTag, h.GetClientID()).
				WithTag(FieldIDTag, fieldID).
				WithTag("field_uuid", fieldUUID).
				WithTag(ParticipantIDTag, participantID).
				WithTag("msg_type", msg.TypeString()).
				Debug("message received")
			h.incCounter(msg.TypeString())
		}
		return msg, n, err
	}
}

func (h *handlerWithLogs) Sender() messages.Sender {
	sender := h.Handler.Sender()

	return func(msg messages.Msg) (int, error) {
		msgType := msg.TypeString()
		fieldID, fieldUUID, participantID := h.field()

		n, err := sender(msg)
		if err != nil && !errors.Is(err, net.ErrClosed) {
			logs.WithTag(ClientIDTag, h.GetClientID()).
				WithTag(FieldIDTag, fieldID).
				WithTag("field_uuid", fieldUUID).
				WithTag(ParticipantIDTag, participantID).
				WithTag("msg_type", msgType).
				Error(errors.New("sending message failed").Wrap(err))
		} else if err == nil {
			logs.WithTag(ClientIDTag, h.GetClientID()).
				WithTag(FieldIDTag, fieldID).
				WithTag("field_uuid", fieldUUID).
				WithTag(ParticipantIDTag, participantID).
				WithTag("msg_type", msgType).
				Debug("message sent")
		}
		return n, err
	}
}

func (h *handlerWithLogs) Close() {
	h.Handler.Close()
	h.closeSummaryWorker()
	h.logSummary()
}

func (h *handlerWithLogs) setField(fieldID, fieldUUID string, participantID uint32) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.fieldID = fieldID
	h.fieldUUID = fieldUUID
	h.participantID = participantID
}

func (h *handlerWithLogs) field() (string, string, uint32) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.fieldID, h.fieldUUID, h.participantID
}

func (h *handlerWithLogs) httpHeaders() httpHeaders {
	if h.originalRequest == nil {
		return httpHeaders{}
	}

	return httpHeaders{
		UserAgent:     h.originalRequest.UserAgent(),
		XForwardedFor: h.originalRequest.Header.Get(headerXForwardedFor),
	}
}

func (h *handlerWithLogs) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(h.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			h.logSummary()
		}
	}
}

func (h *handlerWithLogs) incCounter(msgType string) {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	h.counter[msgType]++
}

func (h *handlerWithLogs) logSummary() {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	if len(h.counter) == 0 {
		return
	}

	fieldID, fieldUUID, participantID := h.field()
	entry := logs.
		WithTag(ClientIDTag, h.GetClientID()).
		WithTag(ParticipantIDTag, participantID).
		WithTag(FieldIDTag, fieldID).
		WithTag("field_uuid", fieldUUID).
		WithTag("time_interval", h.summaryInterval)

	for k, v := range h.counter {
		entry = entry.WithTag(k, v)
		delete(h.counter, k)
	}

	entry.Info("inbound message summary")
}

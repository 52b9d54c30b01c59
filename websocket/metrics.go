package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/quadfield/messages"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/websocket"
)

const (
	errTypeLabel        = "error_type"
	errCodeLabel        = "error_code"
	msgTypeLabel        = "msg_type"
	publicEndpointLabel = "public_endpoint"
	spawnResultLabel    = "result"
)

var (
	wsConnectedClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ws_connected_clients",
		Help: "The number of connected clients.",
	}, []string{publicEndpointLabel})

	wsReceivedMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_received_msgs",
		Help: "The number of messages received from WebSocket connections.",
	}, []string{publicEndpointLabel, msgTypeLabel})

	wsReceivedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_received_bytes",
		Help: "The number of bytes received from WebSocket connections.",
	}, []string{publicEndpointLabel, msgTypeLabel})

	wsReceiveErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_receive_errors",
		Help: "The errors that occured while receiving a websocket message.",
	}, []string{publicEndpointLabel, errTypeLabel})

	wsSentMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sent_msgs",
		Help: "The number of messages sent to WebSocket connections.",
	}, []string{publicEndpointLabel, msgTypeLabel})

	wsSentBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sent_bytes",
		Help: "The number of bytes sent to WebSocket connections.",
	}, []string{publicEndpointLabel, msgTypeLabel})

	wsSendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_send_errors",
		Help: "The errors that occured while sending a websocket message.",
	}, []string{publicEndpointLabel, errTypeLabel, msgTypeLabel})

	wsHandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_handler_errors",
		Help: "The errors returned while handling a websocket message.",
	}, []string{publicEndpointLabel, errTypeLabel, msgTypeLabel})

	wsErrorResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_error_responses",
		Help: "The number of error responses sent to clients by error code.",
	}, []string{publicEndpointLabel, errCodeLabel})

	wsSpawnResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_spawn_results",
		Help: "The number of entity spawn responses by quadtree insert result.",
	}, []string{publicEndpointLabel, spawnResultLabel})

	wsMsgLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ws_msg_latency",
		Help:    "The time to process a WebSocket msg.",
		Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
	}, []string{publicEndpointLabel, msgTypeLabel})
)

// HandlerWithMetrics wraps the given handler with prometheus metrics labelled
// with the public endpoint of the server.
func HandlerWithMetrics(h Handler, publicEndpoint string) Handler {
	endpoint := prometheus.Labels{publicEndpointLabel: publicEndpoint}

	return &handlerWithMetrics{
		Handler:        h,
		connected:      wsConnectedClients.With(endpoint),
		receivedMsgs:   wsReceivedMsgs.MustCurryWith(endpoint),
		receivedBytes:  wsReceivedBytes.MustCurryWith(endpoint),
		receiveErrors:  wsReceiveErrors.MustCurryWith(endpoint),
		sentMsgs:       wsSentMsgs.MustCurryWith(endpoint),
		sentBytes:      wsSentBytes.MustCurryWith(endpoint),
		sendErrors:     wsSendErrors.MustCurryWith(endpoint),
		handlerErrors:  wsHandlerErrors.MustCurryWith(endpoint),
		errorResponses: wsErrorResponses.MustCurryWith(endpoint),
		spawnResults:   wsSpawnResults.MustCurryWith(endpoint),
		latency:        wsMsgLatency.MustCurryWith(endpoint),
	}
}

type handlerWithMetrics struct {
	Handler

	connected      prometheus.Gauge
	receivedMsgs   *prometheus.CounterVec
	receivedBytes  *prometheus.CounterVec
	receiveErrors  *prometheus.CounterVec
	sentMsgs       *prometheus.CounterVec
	sentBytes      *prometheus.CounterVec
	sendErrors     *prometheus.CounterVec
	handlerErrors  *prometheus.CounterVec
	errorResponses *prometheus.CounterVec
	spawnResults   *prometheus.CounterVec
	latency        prometheus.ObserverVec
}

func (h *handlerWithMetrics) HandleConnect(conn *websocket.Conn) {
	h.connected.Inc()
	h.Handler.HandleConnect(conn)
}

func (h *handlerWithMetrics) HandleDisconnect(err error) {
	h.connected.Dec()
	h.Handler.HandleDisconnect(err)
}

func (h *handlerWithMetrics) HandlePing(ctx context.Context, sender messages.ResponseSender, msg messages.Msg) error {
	return h.measure(msg.TypeString(), func() error {
		return h.Handler.HandlePing(ctx, sender, msg)
	})
}

func (h *handlerWithMetrics) HandleFieldJoin(ctx context.Context, sender messages.ResponseSender, msg messages.Msg) error {
	return h.measure(msg.TypeString(), func() error {
		return h.Handler.HandleFieldJoin(ctx, sender, msg)
	})
}

func (h *handlerWithMetrics) HandleFieldLeave(ctx context.Context, sender messages.ResponseSender, msg messages.Msg) error {
	return h.measure(msg.TypeString(), func() error {
		return h.Handler.HandleFieldLeave(ctx, sender, msg)
	})
}

func (h *handlerWithMetrics) HandleEntitySpawn(ctx context.Context, sender messages.ResponseSender, msg messages.Msg) error {
	return h.measure(msg.TypeString(), func() error {
		return h.Handler.HandleEntitySpawn(ctx, sender, msg)
	})
}

func (h *handlerWithMetrics) HandleNearby(ctx context.Context, sender messages.ResponseSender, msg messages.Msg) error {
	return h.measure(msg.TypeString(), func() error {
		return h.Handler.HandleNearby(ctx, sender, msg)
	})
}

func (h *handlerWithMetrics) HandleTree(ctx context.Context, sender messages.ResponseSender, msg messages.Msg) error {
	return h.measure(msg.TypeString(), func() error {
		return h.Handler.HandleTree(ctx, sender, msg)
	})
}

func (h *handlerWithMetrics) SendSyncClock(ctx context.Context, sender messages.ResponseSender) error {
	return h.measure(string(messages.MsgTypeSyncClock), func() error {
		return h.Handler.SendSyncClock(ctx, sender)
	})
}

func (h *handlerWithMetrics) Receiver() messages.Receiver {
	receive := h.Handler.Receiver()

	return func() (messages.Msg, int, error) {
		msg, n, err := receive()
		msgType := msg.TypeString()

		if err != nil {
			h.receiveErrors.WithLabelValues(errors.Type(err)).Inc()
		} else {
			h.receivedMsgs.WithLabelValues(msgType).Inc()
		}

		if n != 0 {
			h.receivedBytes.WithLabelValues(msgType).Add(float64(n))
		}
		return msg, n, err
	}
}

func (h *handlerWithMetrics) Sender() messages.Sender {
	send := h.Handler.Sender()

	return func(msg messages.Msg) (int, error) {
		msgType := msg.TypeString()

		n, err := send(msg)
		if err != nil {
			h.sendErrors.WithLabelValues(errors.Type(err), msgType).Inc()
		}
		if n == 0 {
			return n, err
		}

		h.sentMsgs.WithLabelValues(msgType).Inc()
		h.sentBytes.WithLabelValues(msgType).Add(float64(n))
		h.countOutcome(msg)
		return n, err
	}
}

// countOutcome counts the error codes and spawn results sent to the client.
func (h *handlerWithMetrics) countOutcome(msg messages.Msg) {
	switch msg.Type {
	case messages.MsgTypeErrorResponse:
		var res messages.ErrorResponse
		if msg.DataTo(&res) == nil {
			h.errorResponses.WithLabelValues(string(res.Code)).Inc()
		}

	case messages.MsgTypeEntitySpawnResponse:
		var res messages.EntitySpawnResponse
		if msg.DataTo(&res) == nil {
			h.spawnResults.WithLabelValues(res.Result).Inc()
		}
	}
}

func (h *handlerWithMetrics) measure(msgType string, handle func() error) error {
	start := time.Now()
	err := handle()
	h.latency.WithLabelValues(msgType).Observe(time.Since(start).Seconds())

	if err != nil {
		h.handlerErrors.WithLabelValues(errors.Type(err), msgType).Inc()
	}
	return err
}

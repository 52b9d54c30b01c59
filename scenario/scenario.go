// Package scenario drives a websocket connection to a quadfield server
// through a sequence of sent and expected messages.
package scenario

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/quadfield/messages"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const ErrTypeMsgSkip = "scenario_msg_skip"

// ErrScenarioMsgSkip is returned by a receive handler to wait for the next
// message instead of failing the scenario.
var ErrScenarioMsgSkip = errors.New("message skipped").WithType(ErrTypeMsgSkip)

// Handler handles a received message.
type Handler func(messages.Msg) error

type step struct {
	send    func() messages.Payload
	receive []Handler
}

// Scenario is a sequence of steps run against a websocket connection.
type Scenario struct {
	conn  *websocket.Conn
	steps []step
}

func NewScenario(conn *websocket.Conn) *Scenario {
	return &Scenario{conn: conn}
}

// Send adds a step that sends the payload returned by newPayload. The payload
// is created when the step runs.
func (s *Scenario) Send(newPayload func() messages.Payload) *Scenario {
	s.steps = append(s.steps, step{send: newPayload})
	return s
}

// Receive adds a step that waits for a message accepted by all the given
// handlers, in order. Messages skipped by a handler are discarded.
func (s *Scenario) Receive(handlers ...Handler) *Scenario {
	s.steps = append(s.steps, step{receive: handlers})
	return s
}

// Run runs the scenario steps until one fails or the context deadline is
// exceeded.
func (s *Scenario) Run(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetReadDeadline(deadline)
		defer s.conn.SetReadDeadline(time.Time{})
	}

	for i, st := range s.steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		var err error
		if st.send != nil {
			err = s.runSend(st.send)
		} else {
			err = s.runReceive(ctx, st.receive)
		}
		if err == context.DeadlineExceeded {
			return err
		}
		if err != nil {
			return errors.New("running scenario step failed").
				WithTag("step", i).
				Wrap(err)
		}
	}
	return nil
}

func (s *Scenario) runSend(newPayload func() messages.Payload) error {
	msg, err := messages.MsgFromPayload(newPayload())
	if err != nil {
		return err
	}

	_, err = messages.Send(s.conn, msg)
	return err
}

func (s *Scenario) runReceive(ctx context.Context, handlers []Handler) error {
	for {
		msg, _, err := messages.Receive(s.conn)
		if err != nil {
			if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
				return context.DeadlineExceeded
			}
			return err
		}

		err = handle(msg, handlers)
		if errors.IsType(err, ErrTypeMsgSkip) {
			continue
		}
		return err
	}
}

func handle(msg messages.Msg, handlers []Handler) error {
	for _, h := range handlers {
		if err := h(msg); err != nil {
			return err
		}
	}
	return nil
}

// FilterByType skips the messages that are not of the given type.
func FilterByType(t messages.MsgType) Handler {
	return func(msg messages.Msg) error {
		if msg.Type != t {
			return ErrScenarioMsgSkip
		}
		return nil
	}
}

// FilterByRequestID skips the messages that are not answering the given
// request.
func FilterByRequestID(id uint32) Handler {
	return func(msg messages.Msg) error {
		var res struct {
			RequestID uint32 `json:"request_id"`
		}
		if err := json.Unmarshal(msg.Data, &res); err != nil || res.RequestID != id {
			return ErrScenarioMsgSkip
		}
		return nil
	}
}

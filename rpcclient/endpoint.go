// Package rpcclient implements the Client Endpoint component: the
// per-(service, client_name) state machine that submits requests, polls
// for responses, and drives cancellation and timeouts. One Endpoint
// speaks for exactly one client identity on exactly one service.
package rpcclient

import (
	"bytes"
	"fmt"

	"go.uber.org/zap"

	"github.com/hakoniwalab/hakoniwa-pdu-rpc/header"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/pdu"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/rpcerrors"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/rpctypes"

	"sync"
)

// Endpoint drives a single client's transaction lifecycle against one
// service. All exported methods are safe for concurrent use; poll() and
// call() contend on the same mutex the way the design mandates a single
// logical thread per endpoint driving its state machine.
type Endpoint struct {
	mu sync.Mutex

	serviceName string
	clientName  string
	reqPduName  string
	resPduName  string

	transport pdu.Endpoint
	codec     header.Codec
	clock     pdu.TimeSource
	log       *zap.Logger

	reqSize int
	resSize int

	state            rpctypes.ClientState
	currentRequestID rpctypes.RequestID
	hasDeadline      bool
	deadlineUsec     uint64

	pollIntervalMsec uint32
	requestStartUsec uint64

	pending [][]byte
}

// New builds a client endpoint for one (serviceName, clientName) pair.
// sizes and metaSize come from the service's config document and fix the
// request/response buffer sizes for the lifetime of this endpoint.
func New(serviceName, clientName string, transport pdu.Endpoint, codec header.Codec, clock pdu.TimeSource, sizes header.ServicePduSize, metaSize uint32, log *zap.Logger) *Endpoint {
	if log == nil {
		log = zap.NewNop()
	}
	return &Endpoint{
		serviceName: serviceName,
		clientName:  clientName,
		reqPduName:  clientName + "Req",
		resPduName:  clientName + "Res",
		transport:   transport,
		codec:       codec,
		clock:       clock,
		log:         log,
		reqSize:     header.RequestPduSize(sizes, metaSize),
		resSize:     header.ResponsePduSize(sizes, metaSize),
		state:       rpctypes.ClientIdle,
	}
}

func (e *Endpoint) ServiceName() string { return e.serviceName }
func (e *Endpoint) ClientName() string  { return e.clientName }
func (e *Endpoint) RequestPduName() string  { return e.reqPduName }
func (e *Endpoint) ResponsePduName() string { return e.resPduName }

// State reports the endpoint's current transaction state.
func (e *Endpoint) State() rpctypes.ClientState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SetPollInterval sets the status_poll_interval_msec hint stamped into
// every request header this endpoint builds from now on. The core never
// interprets it; it exists for the server (or an operator watching
// traffic) to see how often this client intends to poll.
func (e *Endpoint) SetPollInterval(msec uint32) {
	e.mu.Lock()
	e.pollIntervalMsec = msec
	e.mu.Unlock()
}

// RecommendedPollInterval returns the poll-interval hint last set with
// SetPollInterval, which every request header built since then carries.
// It is read-only bookkeeping: nothing in this endpoint schedules
// polling off of it.
func (e *Endpoint) RecommendedPollInterval() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pollIntervalMsec
}

// Elapsed reports microseconds since the current transaction's request
// was submitted. ok is false when the endpoint is IDLE.
func (e *Endpoint) Elapsed() (usec uint64, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == rpctypes.ClientIdle {
		return 0, false
	}
	return e.clock.NowMicros() - e.requestStartUsec, true
}

// buildRequestBufferLocked stamps a fresh header into a new buffer sized
// per the service's PDU sizing rule. A REQUEST opcode advances
// current_request_id; CANCEL reuses whatever is already running.
func (e *Endpoint) buildRequestBufferLocked(opcode rpctypes.Opcode) ([]byte, error) {
	if opcode == rpctypes.OpcodeRequest {
		e.currentRequestID++
	}
	buf := make([]byte, e.reqSize)
	h := rpctypes.RequestHeader{
		RequestID:              e.currentRequestID,
		ServiceName:            e.serviceName,
		ClientName:             e.clientName,
		Opcode:                 opcode,
		StatusPollIntervalMsec: e.pollIntervalMsec,
	}
	if err := e.codec.EncodeRequest(h, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// CreateRequestBuffer exposes buildRequestBufferLocked for the manager's
// create_request_buffer delegation (spec section 4.5); it does not touch
// transaction state, only the header stamp and current_request_id.
func (e *Endpoint) CreateRequestBuffer(opcode rpctypes.Opcode) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buildRequestBufferLocked(opcode)
}

// Call submits a new request. It only succeeds from IDLE; on success the
// endpoint moves to RUNNING and, if timeoutUsec is non-zero, arms a
// deadline. A submission failure rolls state back to IDLE.
func (e *Endpoint) Call(body []byte, timeoutUsec uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != rpctypes.ClientIdle {
		return rpcerrors.ErrBusy
	}

	buf, err := e.buildRequestBufferLocked(rpctypes.OpcodeRequest)
	if err != nil {
		return err
	}
	headerSize := e.codec.RequestHeaderSize()
	if len(body) > len(buf)-headerSize {
		return fmt.Errorf("%w: body of %d bytes exceeds request capacity %d", rpcerrors.ErrMalformed, len(body), len(buf)-headerSize)
	}
	copy(buf[headerSize:], body)

	now := e.clock.NowMicros()
	e.state = rpctypes.ClientRunning
	e.requestStartUsec = now
	if timeoutUsec == 0 {
		e.hasDeadline = false
	} else {
		e.hasDeadline = true
		e.deadlineUsec = now + timeoutUsec
	}

	if err := e.transport.Send(pdu.Key{Robot: e.serviceName, PduName: e.reqPduName}, buf); err != nil {
		e.state = rpctypes.ClientIdle
		e.hasDeadline = false
		return fmt.Errorf("%w: %v", rpcerrors.ErrTransportFailure, err)
	}
	return nil
}

// SendCancelRequest asks the server to cancel the in-flight request. Only
// valid from RUNNING; on a successful submission the state moves to
// CANCELLING.
func (e *Endpoint) SendCancelRequest() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != rpctypes.ClientRunning {
		return rpcerrors.ErrInvalid
	}
	buf, err := e.buildRequestBufferLocked(rpctypes.OpcodeCancel)
	if err != nil {
		return err
	}
	if err := e.transport.Send(pdu.Key{Robot: e.serviceName, PduName: e.reqPduName}, buf); err != nil {
		return fmt.Errorf("%w: %v", rpcerrors.ErrTransportFailure, err)
	}
	e.state = rpctypes.ClientCancelling
	return nil
}

// OnRecv is the dispatch registry's delivery hook: it only ever parks
// bytes on the pending queue. Parsing and state transitions happen in
// Poll, which is the endpoint's single logical thread of control.
func (e *Endpoint) OnRecv(pduName string, data []byte) {
	if pduName != e.resPduName {
		return
	}
	cp := append([]byte(nil), data...)
	e.mu.Lock()
	e.pending = append(e.pending, cp)
	e.mu.Unlock()
}

// Poll drains pending responses in arrival order and advances the state
// machine. It returns at most one event per call. ClientEventNone does
// not imply an empty queue: an undecodable response or one with a result
// other than OK or CANCELED is consumed and reported as ClientEventNone
// while later responses stay queued. The returned body is the response's
// body region with its trailing NUL padding trimmed.
func (e *Endpoint) Poll() (rpctypes.ClientEvent, rpctypes.ResponseHeader, []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for len(e.pending) > 0 {
		raw := e.pending[0]
		e.pending = e.pending[1:]

		h, err := e.codec.DecodeResponse(raw)
		if err != nil {
			e.log.Warn("rpcclient: dropping undecodable response",
				zap.String("service", e.serviceName), zap.String("client", e.clientName), zap.Error(err))
			e.state = rpctypes.ClientIdle
			return rpctypes.ClientEventNone, rpctypes.ResponseHeader{}, nil
		}
		if h.RequestID != e.currentRequestID {
			continue // stale, drop silently
		}

		headerSize := e.codec.ResponseHeaderSize()
		body := bytes.TrimRight(raw[headerSize:], "\x00")

		switch h.ResultCode {
		case rpctypes.ResultOK:
			e.state = rpctypes.ClientIdle
			return rpctypes.ClientEventResponseIn, h, body
		case rpctypes.ResultCanceled:
			e.state = rpctypes.ClientIdle
			return rpctypes.ClientEventResponseCancel, h, body
		default:
			e.log.Warn("rpcclient: response carried non-OK result",
				zap.String("service", e.serviceName), zap.String("client", e.clientName),
				zap.String("result", h.ResultCode.String()))
			e.state = rpctypes.ClientIdle
			return rpctypes.ClientEventNone, h, nil
		}
	}

	if e.state == rpctypes.ClientRunning && e.hasDeadline && e.clock.NowMicros() >= e.deadlineUsec {
		buf, err := e.buildRequestBufferLocked(rpctypes.OpcodeCancel)
		if err == nil {
			err = e.transport.Send(pdu.Key{Robot: e.serviceName, PduName: e.reqPduName}, buf)
		}
		if err != nil {
			e.log.Warn("rpcclient: cancel-on-timeout submission failed, forcing IDLE",
				zap.String("service", e.serviceName), zap.String("client", e.clientName), zap.Error(err))
			e.state = rpctypes.ClientIdle
		} else {
			e.state = rpctypes.ClientCancelling
		}
		e.hasDeadline = false
		return rpctypes.ClientEventResponseTimeout, rpctypes.ResponseHeader{}, nil
	}

	return rpctypes.ClientEventNone, rpctypes.ResponseHeader{}, nil
}

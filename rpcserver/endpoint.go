// Package rpcserver implements the Server Endpoint component: the
// per-service, multi-client state machine that accepts requests, gates
// concurrency per client, and emits replies and cancel-replies. One
// Endpoint serves every client registered against a single service.
package rpcserver

import (
	"bytes"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hakoniwalab/hakoniwa-pdu-rpc/header"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/pdu"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/rpcerrors"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/rpctypes"
)

type clientRow struct {
	state           rpctypes.ServerState
	activeRequestID rpctypes.RequestID
}

// Endpoint serves one service's declared client set. Each client's row is
// independent: a reply to one never touches another's state.
type Endpoint struct {
	mu sync.Mutex

	serviceName string
	transport   pdu.Endpoint
	codec       header.Codec
	log         *zap.Logger

	reqSize int
	resSize int

	clients map[string]*clientRow
	pending [][]byte
}

// New builds a server endpoint for serviceName. clientNames is the
// service's declared client set (spec section 6's clients array); rows
// start IDLE.
func New(serviceName string, clientNames []string, transport pdu.Endpoint, codec header.Codec, sizes header.ServicePduSize, metaSize uint32, log *zap.Logger) *Endpoint {
	if log == nil {
		log = zap.NewNop()
	}
	clients := make(map[string]*clientRow, len(clientNames))
	for _, name := range clientNames {
		clients[name] = &clientRow{state: rpctypes.ServerIdle}
	}
	return &Endpoint{
		serviceName: serviceName,
		transport:   transport,
		codec:       codec,
		log:         log,
		reqSize:     header.RequestPduSize(sizes, metaSize),
		resSize:     header.ResponsePduSize(sizes, metaSize),
		clients:     clients,
	}
}

func (e *Endpoint) ServiceName() string { return e.serviceName }

// ClientState reports one client's row state; ok is false if clientName
// was never registered.
func (e *Endpoint) ClientState(clientName string) (state rpctypes.ServerState, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	row, ok := e.clients[clientName]
	if !ok {
		return 0, false
	}
	return row.state, true
}

// OnRecv parks an inbound request PDU. Every client's request PDU for
// this service routes here; the dispatch registry is what fans them all
// into this one endpoint.
func (e *Endpoint) OnRecv(pduName string, data []byte) {
	cp := append([]byte(nil), data...)
	e.mu.Lock()
	e.pending = append(e.pending, cp)
	e.mu.Unlock()
}

func (e *Endpoint) buildResponseLocked(clientName string, requestID rpctypes.RequestID, status rpctypes.Status, resultCode rpctypes.ResultCode, body []byte) ([]byte, error) {
	buf := make([]byte, e.resSize)
	h := rpctypes.ResponseHeader{
		RequestID:   requestID,
		ServiceName: e.serviceName,
		ClientName:  clientName,
		Status:      status,
		ResultCode:  resultCode,
	}
	if err := e.codec.EncodeResponse(h, buf); err != nil {
		return nil, err
	}
	headerSize := e.codec.ResponseHeaderSize()
	if len(body) > len(buf)-headerSize {
		return nil, fmt.Errorf("%w: body of %d bytes exceeds response capacity %d", rpcerrors.ErrMalformed, len(body), len(buf)-headerSize)
	}
	copy(buf[headerSize:], body)
	return buf, nil
}

func (e *Endpoint) sendLocked(clientName string, buf []byte) error {
	if err := e.transport.Send(pdu.Key{Robot: e.serviceName, PduName: clientName + "Res"}, buf); err != nil {
		return fmt.Errorf("%w: %v", rpcerrors.ErrTransportFailure, err)
	}
	return nil
}

// replyErrorLocked emits a best-effort error/invalid reply for a request
// that failed header validation. It never touches client-row state: an
// unknown client has no row, and a malformed opcode should not perturb a
// row that might otherwise be mid-transaction.
func (e *Endpoint) replyErrorLocked(clientName string, requestID rpctypes.RequestID, resultCode rpctypes.ResultCode) {
	buf, err := e.buildResponseLocked(clientName, requestID, rpctypes.StatusError, resultCode, nil)
	if err != nil {
		e.log.Warn("rpcserver: failed to build validation-error reply",
			zap.String("service", e.serviceName), zap.String("client", clientName), zap.Error(err))
		return
	}
	if err := e.sendLocked(clientName, buf); err != nil {
		e.log.Warn("rpcserver: failed to send validation-error reply",
			zap.String("service", e.serviceName), zap.String("client", clientName), zap.Error(err))
	}
}

// Poll pops the oldest pending request and advances at most one client's
// state machine. Header and registration failures are answered inline
// and reported as ServerEventNone, except a PDU too short to hold a
// header, which names no client and is dropped without a reply; across
// clients no ordering is promised, only per-client FIFO. The returned
// body is the request's body region with its trailing NUL padding
// trimmed.
func (e *Endpoint) Poll() (rpctypes.ServerEvent, rpctypes.RequestHeader, []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.pending) == 0 {
		return rpctypes.ServerEventNone, rpctypes.RequestHeader{}, nil
	}
	raw := e.pending[0]
	e.pending = e.pending[1:]

	if len(raw) < e.codec.RequestHeaderSize() {
		e.log.Warn("rpcserver: dropping undersized request PDU", zap.String("service", e.serviceName))
		return rpctypes.ServerEventNone, rpctypes.RequestHeader{}, nil
	}

	h, decodeErr := e.codec.DecodeRequest(raw)
	row, known := e.clients[h.ClientName]

	if !known {
		e.replyErrorLocked(h.ClientName, h.RequestID, rpctypes.ResultInvalid)
		return rpctypes.ServerEventNone, rpctypes.RequestHeader{}, nil
	}
	if decodeErr != nil || h.ServiceName != e.serviceName {
		e.replyErrorLocked(h.ClientName, h.RequestID, rpctypes.ResultError)
		return rpctypes.ServerEventNone, rpctypes.RequestHeader{}, nil
	}

	headerSize := e.codec.RequestHeaderSize()
	body := bytes.TrimRight(raw[headerSize:], "\x00")

	switch h.Opcode {
	case rpctypes.OpcodeRequest:
		switch row.state {
		case rpctypes.ServerIdle:
			row.state = rpctypes.ServerRunning
			row.activeRequestID = h.RequestID
			return rpctypes.ServerEventRequestIn, h, body
		default: // RUNNING or CANCELLING
			e.replyErrorLocked(h.ClientName, h.RequestID, rpctypes.ResultBusy)
			return rpctypes.ServerEventNone, rpctypes.RequestHeader{}, nil
		}

	case rpctypes.OpcodeCancel:
		switch row.state {
		case rpctypes.ServerRunning:
			if h.RequestID == row.activeRequestID {
				row.state = rpctypes.ServerCancelling
				return rpctypes.ServerEventRequestCancel, h, nil
			}
			e.replyErrorLocked(h.ClientName, h.RequestID, rpctypes.ResultInvalid)
			return rpctypes.ServerEventNone, rpctypes.RequestHeader{}, nil
		case rpctypes.ServerIdle:
			return rpctypes.ServerEventNone, rpctypes.RequestHeader{}, nil
		default: // CANCELLING
			e.replyErrorLocked(h.ClientName, h.RequestID, rpctypes.ResultBusy)
			return rpctypes.ServerEventNone, rpctypes.RequestHeader{}, nil
		}
	}

	return rpctypes.ServerEventNone, rpctypes.RequestHeader{}, nil
}

// SendReply answers a client's in-flight request. Allowed whenever that
// client's row is not IDLE. The row resets to IDLE before the transport
// send is attempted: a duplicate reply is worse than a stuck client, so
// a transport failure here is reported but not rolled back.
func (e *Endpoint) SendReply(clientName string, status rpctypes.Status, resultCode rpctypes.ResultCode, body []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	row, known := e.clients[clientName]
	if !known || row.state == rpctypes.ServerIdle {
		return rpcerrors.ErrInvalid
	}
	requestID := row.activeRequestID
	buf, err := e.buildResponseLocked(clientName, requestID, status, resultCode, body)
	if err != nil {
		return err
	}
	row.state = rpctypes.ServerIdle
	row.activeRequestID = 0
	return e.sendLocked(clientName, buf)
}

// SendCancelReply acknowledges a cancellation. Allowed only while that
// client's row is CANCELLING.
func (e *Endpoint) SendCancelReply(clientName string, body []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	row, known := e.clients[clientName]
	if !known || row.state != rpctypes.ServerCancelling {
		return rpcerrors.ErrInvalid
	}
	requestID := row.activeRequestID
	buf, err := e.buildResponseLocked(clientName, requestID, rpctypes.StatusDone, rpctypes.ResultCanceled, body)
	if err != nil {
		return err
	}
	row.state = rpctypes.ServerIdle
	row.activeRequestID = 0
	return e.sendLocked(clientName, buf)
}

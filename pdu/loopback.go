package pdu

import (
	"sync"

	"github.com/hakoniwalab/hakoniwa-pdu-rpc/rpcerrors"
)

// LoopbackBus is an in-process substitute for a real hakoniwa PDU
// transport: every LoopbackEndpoint attached to the same bus can Send to
// any (robot, pdu_name) another attached endpoint has declared it wants
// to receive. It exists so tests can exercise the full manager/endpoint
// stack without a real transport.
//
// Delivery is synchronous: Send calls the destination's callback inline,
// standing in for whatever thread a real transport would deliver on.
// The core does not assume synchronous delivery — its endpoints only
// ever touch pending queues under their own lock — so this is a
// simplification specific to the loopback, not a load-bearing property
// callers should depend on.
type LoopbackBus struct {
	mu        sync.RWMutex
	receivers map[string]*LoopbackEndpoint // "robot/pduName" -> owner
}

func NewLoopbackBus() *LoopbackBus {
	return &LoopbackBus{receivers: make(map[string]*LoopbackEndpoint)}
}

func busKey(robot, pduName string) string { return robot + "/" + pduName }

// LoopbackEndpoint implements Endpoint by routing through a shared
// LoopbackBus instead of a socket.
type LoopbackEndpoint struct {
	bus       *LoopbackBus
	nodeID    string
	def       *DefinitionRegistry
	mu        sync.Mutex
	running   bool
	callback  RecvCallback
	chanNames map[int]string // channel id -> pdu name, per this endpoint
}

// NewLoopbackEndpoint creates an unopened endpoint attached to bus. nodeID
// is cosmetic: it is stored but nothing reads it; the bus keys receivers by
// (robot, pdu_name), matching the real transport's addressing.
func NewLoopbackEndpoint(bus *LoopbackBus, nodeID string) *LoopbackEndpoint {
	return &LoopbackEndpoint{
		bus:       bus,
		nodeID:    nodeID,
		def:       NewDefinitionRegistry(64),
		chanNames: make(map[int]string),
	}
}

func (e *LoopbackEndpoint) Open(_ string) error { return nil }

func (e *LoopbackEndpoint) Start() error {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	return nil
}

func (e *LoopbackEndpoint) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *LoopbackEndpoint) Stop() error {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	return nil
}

func (e *LoopbackEndpoint) Close() error {
	e.bus.mu.Lock()
	for k, v := range e.bus.receivers {
		if v == e {
			delete(e.bus.receivers, k)
		}
	}
	e.bus.mu.Unlock()
	return nil
}

// RegisterChannel makes this endpoint the receiver for (robot, pduName)
// on the shared bus, and records the (channel_id, pdu_name) mapping in
// its DefinitionRegistry so an inbound delivery can be resolved.
func (e *LoopbackEndpoint) RegisterChannel(robot, pduName string, channelID, pduSize int) {
	e.bus.mu.Lock()
	e.bus.receivers[busKey(robot, pduName)] = e
	e.bus.mu.Unlock()

	e.mu.Lock()
	e.chanNames[channelID] = pduName
	e.mu.Unlock()

	e.def.AddDefinition(robot, Def{OrgName: pduName, Name: robot + "_" + pduName, ChannelID: channelID, PduSize: pduSize, MethodType: "RPC"})
}

func (e *LoopbackEndpoint) Send(key Key, data []byte) error {
	e.bus.mu.RLock()
	dst, ok := e.bus.receivers[busKey(key.Robot, key.PduName)]
	e.bus.mu.RUnlock()
	if !ok {
		return rpcerrors.ErrTransportFailure
	}

	dst.mu.Lock()
	running := dst.running
	cb := dst.callback
	channelID := -1
	for id, name := range dst.chanNames {
		if name == key.PduName {
			channelID = id
			break
		}
	}
	dst.mu.Unlock()

	if !running {
		return rpcerrors.ErrTransportFailure
	}
	if cb != nil {
		cp := append([]byte(nil), data...)
		cb(ResolvedKey{Robot: key.Robot, ChannelID: channelID}, cp)
	}
	return nil
}

func (e *LoopbackEndpoint) SetOnRecvCallback(cb RecvCallback) {
	e.mu.Lock()
	e.callback = cb
	e.mu.Unlock()
}

func (e *LoopbackEndpoint) GetPduDefinition() *DefinitionRegistry { return e.def }

func (e *LoopbackEndpoint) GetPduName(key ResolvedKey) (string, bool) {
	return e.def.Resolve(key)
}

func (e *LoopbackEndpoint) GetPduSize(key Key) (int, bool) {
	return e.def.SizeOf(key.Robot, key.PduName)
}

// Package dispatch implements the Dispatch Registry component: a
// process-wide lookup from (service_name, pdu_name) to the endpoint that
// owns it, replacing the original's static instance vectors with an
// explicit registration API. Registries hold no opinion about what a
// client or server endpoint is beyond "something that can accept raw
// bytes from a transport delivery" — the actual endpoint types live in
// rpcclient and rpcserver and satisfy these interfaces structurally.
package dispatch

import (
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ClientReceiver is the surface a client endpoint exposes to its
// registry: OnRecv delivers the raw bytes of a response PDU addressed by
// (service_name, pdu_name).
type ClientReceiver interface {
	OnRecv(pduName string, data []byte)
}

// ServerReceiver is the server-side equivalent of ClientReceiver.
type ServerReceiver interface {
	OnRecv(pduName string, data []byte)
}

type key struct {
	serviceName string
	pduName     string
}

// ClientRegistry maps (service_name, pdu_name) to the client endpoint that
// should receive PDUs delivered on that pair. A manager owns one registry
// per side; endpoints register themselves as they are constructed.
type ClientRegistry struct {
	mu       sync.RWMutex
	entries  map[key]ClientReceiver
	log      *zap.Logger
	limiter  *rate.Limiter
}

// NewClientRegistry builds an empty registry. log may be nil, in which
// case a no-op logger is used. Unknown-delivery warnings are throttled to
// at most one per second (burst 1) so a misconfigured transport flooding
// unregistered PDUs cannot itself become a performance problem.
func NewClientRegistry(log *zap.Logger) *ClientRegistry {
	if log == nil {
		log = zap.NewNop()
	}
	return &ClientRegistry{
		entries: make(map[key]ClientReceiver),
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(1), 1),
	}
}

// Register binds (serviceName, pduName) to recv. Registering the same key
// twice replaces the previous owner; the manager relies on this to be
// idempotent across re-initialization.
func (r *ClientRegistry) Register(serviceName, pduName string, recv ClientReceiver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key{serviceName, pduName}] = recv
}

// Deregister removes the (serviceName, pduName) binding, if any.
func (r *ClientRegistry) Deregister(serviceName, pduName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key{serviceName, pduName})
}

// Dispatch routes an inbound PDU to its registered receiver. A miss is
// not an error to the caller (a transport can deliver PDUs for services
// this process does not care about) but is logged at a throttled rate so
// a persistently misdirected delivery is still observable.
func (r *ClientRegistry) Dispatch(serviceName, pduName string, data []byte) {
	r.mu.RLock()
	recv, ok := r.entries[key{serviceName, pduName}]
	r.mu.RUnlock()
	if !ok {
		if r.limiter.Allow() {
			r.log.Warn("dispatch: no client registered for pdu",
				zap.String("service", serviceName), zap.String("pdu", pduName))
		}
		return
	}
	recv.OnRecv(pduName, data)
}

// ServerRegistry is the server-side mirror of ClientRegistry.
type ServerRegistry struct {
	mu      sync.RWMutex
	entries map[key]ServerReceiver
	log     *zap.Logger
	limiter *rate.Limiter
}

func NewServerRegistry(log *zap.Logger) *ServerRegistry {
	if log == nil {
		log = zap.NewNop()
	}
	return &ServerRegistry{
		entries: make(map[key]ServerReceiver),
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(1), 1),
	}
}

func (r *ServerRegistry) Register(serviceName, pduName string, recv ServerReceiver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key{serviceName, pduName}] = recv
}

func (r *ServerRegistry) Deregister(serviceName, pduName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key{serviceName, pduName})
}

func (r *ServerRegistry) Dispatch(serviceName, pduName string, data []byte) {
	r.mu.RLock()
	recv, ok := r.entries[key{serviceName, pduName}]
	r.mu.RUnlock()
	if !ok {
		if r.limiter.Allow() {
			r.log.Warn("dispatch: no server registered for pdu",
				zap.String("service", serviceName), zap.String("pdu", pduName))
		}
		return
	}
	recv.OnRecv(pduName, data)
}

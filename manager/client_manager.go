// Package manager implements the Multi-Service Manager component, both
// the client-side and server-side variants: each owns a map of
// service_name to endpoint built from a parsed configuration document,
// fans poll out across them in registration order, and delegates calls
// to the right endpoint.
package manager

import (
	"fmt"
	"sync"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/hakoniwalab/hakoniwa-pdu-rpc/config"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/dispatch"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/header"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/pdu"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/rpcclient"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/rpcerrors"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/rpctypes"
)

// TransportResolver hands back the already-opened PduEndpoint for a
// (nodeId, endpointId) pair from the configuration's endpoints section.
// Opening the transport is outside this module's scope; the caller is
// expected to have called Open/Start on whatever it returns.
type TransportResolver func(nodeID, endpointID string) (pdu.Endpoint, error)

// ClientManager is bound at construction to a single client identity. It
// creates one client endpoint per service whose clients array lists that
// identity with a client_endpoint on this manager's own node.
type ClientManager struct {
	clientName string
	nodeID     string
	instanceID string
	log        *zap.Logger

	mu        sync.Mutex
	registry  *dispatch.ClientRegistry
	endpoints map[string]*rpcclient.Endpoint
	order     []string
	wired     map[pdu.Endpoint]struct{}
}

// NewClientManager builds an uninitialized manager for clientName running
// on nodeID. Call Initialize before using it.
func NewClientManager(clientName, nodeID string, log *zap.Logger) *ClientManager {
	if log == nil {
		log = zap.NewNop()
	}
	instanceID := xid.New().String()
	return &ClientManager{
		clientName: clientName,
		nodeID:     nodeID,
		instanceID: instanceID,
		log:        log.With(zap.String("manager_id", instanceID)),
		registry:   dispatch.NewClientRegistry(log),
		endpoints:  make(map[string]*rpcclient.Endpoint),
		wired:      make(map[pdu.Endpoint]struct{}),
	}
}

// Initialize builds one client endpoint per matching service. It fails
// with ErrConfigMalformed if the manager's identity never appears in the
// document, matching S6's "client-definition absent from the manager's
// identity" scenario.
func (m *ClientManager) Initialize(doc *config.Document, resolveTransport TransportResolver, clock pdu.TimeSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, svc := range doc.Services {
		for _, c := range svc.Clients {
			if c.Name != m.clientName || c.ClientEndpoint.NodeID != m.nodeID {
				continue
			}
			transport, err := resolveTransport(c.ClientEndpoint.NodeID, c.ClientEndpoint.EndpointID)
			if err != nil {
				return fmt.Errorf("%w: resolving transport for service %q: %v", rpcerrors.ErrConfigMalformed, svc.Name, err)
			}

			ep := rpcclient.New(svc.Name, c.Name, transport, header.NewBinaryCodec(), clock, svc.PduSize.ToServicePduSize(), doc.PduMetaDataSize, m.log)
			m.registry.Register(svc.Name, ep.ResponsePduName(), ep)
			m.endpoints[svc.Name] = ep
			m.order = append(m.order, svc.Name)

			if _, ok := m.wired[transport]; !ok {
				m.wired[transport] = struct{}{}
				transport.SetOnRecvCallback(m.dispatchCallback(transport))
			}
		}
	}

	if len(m.endpoints) == 0 {
		return fmt.Errorf("%w: no service registers client %q on node %q", rpcerrors.ErrConfigMalformed, m.clientName, m.nodeID)
	}
	return nil
}

func (m *ClientManager) dispatchCallback(transport pdu.Endpoint) pdu.RecvCallback {
	return func(key pdu.ResolvedKey, data []byte) {
		name, ok := transport.GetPduName(key)
		if !ok {
			m.log.Warn("client manager: could not resolve inbound pdu name", zap.String("robot", key.Robot), zap.Int("channel", key.ChannelID))
			return
		}
		m.registry.Dispatch(key.Robot, name, data)
	}
}

// Call delegates to the named service's client endpoint.
func (m *ClientManager) Call(serviceName string, body []byte, timeoutUsec uint64) error {
	ep, ok := m.lookup(serviceName)
	if !ok {
		return rpcerrors.ErrUnknownService
	}
	return ep.Call(body, timeoutUsec)
}

// SendCancelRequest delegates to the named service's client endpoint.
func (m *ClientManager) SendCancelRequest(serviceName string) error {
	ep, ok := m.lookup(serviceName)
	if !ok {
		return rpcerrors.ErrUnknownService
	}
	return ep.SendCancelRequest()
}

// CreateRequestBuffer delegates to the named service's client endpoint.
func (m *ClientManager) CreateRequestBuffer(serviceName string, opcode rpctypes.Opcode) ([]byte, error) {
	ep, ok := m.lookup(serviceName)
	if !ok {
		return nil, rpcerrors.ErrUnknownService
	}
	return ep.CreateRequestBuffer(opcode)
}

func (m *ClientManager) lookup(serviceName string) (*rpcclient.Endpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ep, ok := m.endpoints[serviceName]
	return ep, ok
}

// Poll fans out across every owned endpoint in registration order and
// returns the first non-NONE event, along with the service name it came
// from. Deterministic order lets tests reason about which service wins
// under contention.
func (m *ClientManager) Poll() (serviceName string, event rpctypes.ClientEvent, respHeader rpctypes.ResponseHeader, body []byte) {
	m.mu.Lock()
	order := append([]string(nil), m.order...)
	endpoints := m.endpoints
	m.mu.Unlock()

	for _, name := range order {
		ep := endpoints[name]
		if event, h, b := ep.Poll(); event != rpctypes.ClientEventNone {
			return name, event, h, b
		}
	}
	return "", rpctypes.ClientEventNone, rpctypes.ResponseHeader{}, nil
}

// StopAllServices stops every unique transport this manager wired a
// callback onto. Idempotent: transports are safe to Stop twice.
func (m *ClientManager) StopAllServices() error {
	m.mu.Lock()
	transports := make([]pdu.Endpoint, 0, len(m.wired))
	for t := range m.wired {
		transports = append(transports, t)
	}
	m.mu.Unlock()

	var firstErr error
	for _, t := range transports {
		if err := t.Stop(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: %v", rpcerrors.ErrTransportFailure, err)
		}
	}
	return firstErr
}

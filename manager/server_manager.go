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
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/rpcerrors"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/rpcserver"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/rpctypes"
)

// ServerManager creates one server endpoint per service declared to be
// served by this manager's node.
type ServerManager struct {
	nodeID     string
	instanceID string
	log        *zap.Logger

	mu        sync.Mutex
	registry  *dispatch.ServerRegistry
	endpoints map[string]*rpcserver.Endpoint
	order     []string
	wired     map[pdu.Endpoint]struct{}
}

func NewServerManager(nodeID string, log *zap.Logger) *ServerManager {
	if log == nil {
		log = zap.NewNop()
	}
	instanceID := xid.New().String()
	return &ServerManager{
		nodeID:     nodeID,
		instanceID: instanceID,
		log:        log.With(zap.String("manager_id", instanceID)),
		registry:   dispatch.NewServerRegistry(log),
		endpoints:  make(map[string]*rpcserver.Endpoint),
		wired:      make(map[pdu.Endpoint]struct{}),
	}
}

// Initialize builds one server endpoint per service this node serves.
func (m *ServerManager) Initialize(doc *config.Document, resolveTransport TransportResolver) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, svc := range doc.Services {
		var served *config.EndpointRef
		for i := range svc.ServerEndpoints {
			if svc.ServerEndpoints[i].NodeID == m.nodeID {
				served = &svc.ServerEndpoints[i]
				break
			}
		}
		if served == nil {
			continue
		}

		transport, err := resolveTransport(served.NodeID, served.EndpointID)
		if err != nil {
			return fmt.Errorf("%w: resolving transport for service %q: %v", rpcerrors.ErrConfigMalformed, svc.Name, err)
		}

		clientNames := make([]string, 0, len(svc.Clients))
		for _, c := range svc.Clients {
			clientNames = append(clientNames, c.Name)
		}

		ep := rpcserver.New(svc.Name, clientNames, transport, header.NewBinaryCodec(), svc.PduSize.ToServicePduSize(), doc.PduMetaDataSize, m.log)
		for _, c := range svc.Clients {
			m.registry.Register(svc.Name, c.Name+"Req", ep)
		}
		m.endpoints[svc.Name] = ep
		m.order = append(m.order, svc.Name)

		if _, ok := m.wired[transport]; !ok {
			m.wired[transport] = struct{}{}
			transport.SetOnRecvCallback(m.dispatchCallback(transport))
		}
	}

	if len(m.endpoints) == 0 {
		return fmt.Errorf("%w: no service is served by node %q", rpcerrors.ErrConfigMalformed, m.nodeID)
	}
	return nil
}

func (m *ServerManager) dispatchCallback(transport pdu.Endpoint) pdu.RecvCallback {
	return func(key pdu.ResolvedKey, data []byte) {
		name, ok := transport.GetPduName(key)
		if !ok {
			m.log.Warn("server manager: could not resolve inbound pdu name", zap.String("robot", key.Robot), zap.Int("channel", key.ChannelID))
			return
		}
		m.registry.Dispatch(key.Robot, name, data)
	}
}

func (m *ServerManager) lookup(serviceName string) (*rpcserver.Endpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ep, ok := m.endpoints[serviceName]
	return ep, ok
}

// SendReply delegates to the named service's server endpoint.
func (m *ServerManager) SendReply(serviceName, clientName string, status rpctypes.Status, resultCode rpctypes.ResultCode, body []byte) error {
	ep, ok := m.lookup(serviceName)
	if !ok {
		return rpcerrors.ErrUnknownService
	}
	return ep.SendReply(clientName, status, resultCode, body)
}

// SendCancelReply delegates to the named service's server endpoint.
func (m *ServerManager) SendCancelReply(serviceName, clientName string, body []byte) error {
	ep, ok := m.lookup(serviceName)
	if !ok {
		return rpcerrors.ErrUnknownService
	}
	return ep.SendCancelReply(clientName, body)
}

// Poll fans out across every owned endpoint in registration order and
// returns the first non-NONE event, along with the service name it came
// from. When every endpoint reports NONE the service name is empty.
func (m *ServerManager) Poll() (serviceName string, event rpctypes.ServerEvent, reqHeader rpctypes.RequestHeader, body []byte) {
	m.mu.Lock()
	order := append([]string(nil), m.order...)
	endpoints := m.endpoints
	m.mu.Unlock()

	for _, name := range order {
		ep := endpoints[name]
		if event, h, b := ep.Poll(); event != rpctypes.ServerEventNone {
			return name, event, h, b
		}
	}
	return "", rpctypes.ServerEventNone, rpctypes.RequestHeader{}, nil
}

// StopAllServices stops every unique transport this manager wired a
// callback onto. Idempotent.
func (m *ServerManager) StopAllServices() error {
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

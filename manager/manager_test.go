package manager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hakoniwalab/hakoniwa-pdu-rpc/config"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/header"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/pdu"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/rpctypes"
)

type fakeClock struct{ now uint64 }

func (c *fakeClock) NowMicros() uint64 { return c.now }
func (c *fakeClock) Sleep(usec uint64) { c.now += usec }

func addServiceDoc() *config.Document {
	sizes := config.PduSize{
		Client: config.SidePduSize{BaseSize: 64, HeapSize: 64},
		Server: config.SidePduSize{BaseSize: 64, HeapSize: 64},
	}
	return &config.Document{
		PduMetaDataSize: 24,
		Services: []config.ServiceDef{
			{
				Name:            "Service/Add",
				PduSize:         sizes,
				ServerEndpoints: []config.EndpointRef{{NodeID: "ServerNode", EndpointID: "ep0"}},
				Clients: []config.ClientDef{
					{Name: "TestClient", RequestChannelID: 1, ResponseChannelID: 2, ClientEndpoint: config.EndpointRef{NodeID: "ClientNode", EndpointID: "ep0"}},
				},
			},
		},
		Endpoints: []config.NodeEndpoints{
			{NodeID: "ServerNode", Endpoints: []config.EndpointConfig{{ID: "ep0", ConfigPath: "server.json"}}},
			{NodeID: "ClientNode", Endpoints: []config.EndpointConfig{{ID: "ep0", ConfigPath: "client.json"}}},
		},
	}
}

type harness struct {
	clientMgr *ClientManager
	serverMgr *ServerManager
	clock     *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	doc := addServiceDoc()

	bus := pdu.NewLoopbackBus()
	serverTransport := pdu.NewLoopbackEndpoint(bus, "ServerNode")
	clientTransport := pdu.NewLoopbackEndpoint(bus, "ClientNode")
	serverTransport.RegisterChannel("Service/Add", "TestClientReq", 1, 152)
	clientTransport.RegisterChannel("Service/Add", "TestClientRes", 2, 152)
	if err := serverTransport.Start(); err != nil {
		t.Fatalf("server transport Start: %v", err)
	}
	if err := clientTransport.Start(); err != nil {
		t.Fatalf("client transport Start: %v", err)
	}

	clock := &fakeClock{}
	clientMgr := NewClientManager("TestClient", "ClientNode", nil)
	if err := clientMgr.Initialize(doc, func(string, string) (pdu.Endpoint, error) { return clientTransport, nil }, clock); err != nil {
		t.Fatalf("client Initialize: %v", err)
	}
	serverMgr := NewServerManager("ServerNode", nil)
	if err := serverMgr.Initialize(doc, func(string, string) (pdu.Endpoint, error) { return serverTransport, nil }); err != nil {
		t.Fatalf("server Initialize: %v", err)
	}

	return &harness{clientMgr: clientMgr, serverMgr: serverMgr, clock: clock}
}

// TestS1HappyPathAdd exercises scenario S1: a request round trips and the
// client sees the server's computed sum.
func TestS1HappyPathAdd(t *testing.T) {
	h := newHarness(t)

	if err := h.clientMgr.Call("Service/Add", []byte("a=5,b=7"), 1_000_000); err != nil {
		t.Fatalf("Call: %v", err)
	}

	svc, event, _, body := h.serverMgr.Poll()
	if svc != "Service/Add" || event != rpctypes.ServerEventRequestIn {
		t.Fatalf("server poll = (%q, %v), want (Service/Add, REQUEST_IN)", svc, event)
	}
	if string(body) != "a=5,b=7" {
		t.Fatalf("request body = %q", body)
	}

	if err := h.serverMgr.SendReply("Service/Add", "TestClient", rpctypes.StatusDone, rpctypes.ResultOK, []byte("sum=12")); err != nil {
		t.Fatalf("SendReply: %v", err)
	}

	svc, cevent, _, cbody := h.clientMgr.Poll()
	if svc != "Service/Add" || cevent != rpctypes.ClientEventResponseIn {
		t.Fatalf("client poll = (%q, %v), want (Service/Add, RESPONSE_IN)", svc, cevent)
	}
	if string(cbody) != "sum=12" {
		t.Fatalf("response body = %q", cbody)
	}
}

// TestS2Timeout exercises scenario S2: the server never replies and the
// client's deadline fires on the next poll.
func TestS2Timeout(t *testing.T) {
	h := newHarness(t)

	if err := h.clientMgr.Call("Service/Add", []byte("a=1,b=1"), 100_000); err != nil {
		t.Fatalf("Call: %v", err)
	}
	// Server receives but never replies.
	if svc, event, _, _ := h.serverMgr.Poll(); svc != "Service/Add" || event != rpctypes.ServerEventRequestIn {
		t.Fatalf("server poll = (%q, %v)", svc, event)
	}

	h.clock.now += 100_001
	svc, event, _, _ := h.clientMgr.Poll()
	if svc != "Service/Add" || event != rpctypes.ClientEventResponseTimeout {
		t.Fatalf("client poll = (%q, %v), want (Service/Add, RESPONSE_TIMEOUT)", svc, event)
	}
}

// TestS3MultiRound exercises scenario S3: two successive calls produce
// strictly increasing request ids and correct sums.
func TestS3MultiRound(t *testing.T) {
	h := newHarness(t)

	if err := h.clientMgr.Call("Service/Add", []byte("10,20"), 0); err != nil {
		t.Fatalf("Call 1: %v", err)
	}
	svc, event, reqHeader, _ := h.serverMgr.Poll()
	if svc != "Service/Add" || event != rpctypes.ServerEventRequestIn {
		t.Fatalf("server poll 1 = (%q, %v)", svc, event)
	}
	if reqHeader.RequestID != 1 {
		t.Fatalf("first request id = %d, want 1", reqHeader.RequestID)
	}
	if err := h.serverMgr.SendReply("Service/Add", "TestClient", rpctypes.StatusDone, rpctypes.ResultOK, []byte("30")); err != nil {
		t.Fatalf("SendReply 1: %v", err)
	}
	if _, event, _, body := h.clientMgr.Poll(); event != rpctypes.ClientEventResponseIn || string(body) != "30" {
		t.Fatalf("client poll 1 = (%v, %q)", event, body)
	}

	if err := h.clientMgr.Call("Service/Add", []byte("15,25"), 0); err != nil {
		t.Fatalf("Call 2: %v", err)
	}
	_, event, reqHeader, _ = h.serverMgr.Poll()
	if event != rpctypes.ServerEventRequestIn {
		t.Fatalf("server poll 2 = %v", event)
	}
	if reqHeader.RequestID != 2 {
		t.Fatalf("second request id = %d, want 2", reqHeader.RequestID)
	}
	if err := h.serverMgr.SendReply("Service/Add", "TestClient", rpctypes.StatusDone, rpctypes.ResultOK, []byte("40")); err != nil {
		t.Fatalf("SendReply 2: %v", err)
	}
	if _, event, _, body := h.clientMgr.Poll(); event != rpctypes.ClientEventResponseIn || string(body) != "40" {
		t.Fatalf("client poll 2 = (%v, %q)", event, body)
	}
}

// TestS4BusyRejection exercises scenario S4: a second request for the
// same client while one is in flight is answered BUSY without disturbing
// server state.
func TestS4BusyRejection(t *testing.T) {
	h := newHarness(t)

	if err := h.clientMgr.Call("Service/Add", []byte("first"), 0); err != nil {
		t.Fatalf("Call 1: %v", err)
	}
	if _, event, _, _ := h.serverMgr.Poll(); event != rpctypes.ServerEventRequestIn {
		t.Fatalf("expected REQUEST_IN, got %v", event)
	}

	// A raw second REQUEST for the same client, bypassing the client
	// endpoint's own single-flight guard, to exercise the server's BUSY
	// path directly (as an out-of-band or misbehaving peer might).
	ep, ok := h.serverMgr.lookup("Service/Add")
	if !ok {
		t.Fatal("server endpoint not found")
	}
	ep.OnRecv("TestClientReq", rawRequest(t, 99, "Service/Add", "TestClient", rpctypes.OpcodeRequest, nil))

	svc, event, _, _ := h.serverMgr.Poll()
	if svc != "" || event != rpctypes.ServerEventNone {
		t.Fatalf("second poll = (%q, %v), want (\"\", NONE)", svc, event)
	}
	if state, _ := ep.ClientState("TestClient"); state != rpctypes.ServerRunning {
		t.Fatalf("server state = %v, want still RUNNING", state)
	}
}

// TestS5UnknownClient exercises scenario S5.
func TestS5UnknownClient(t *testing.T) {
	h := newHarness(t)
	ep, ok := h.serverMgr.lookup("Service/Add")
	if !ok {
		t.Fatal("server endpoint not found")
	}
	ep.OnRecv("StrangerReq", rawRequest(t, 1, "Service/Add", "Stranger", rpctypes.OpcodeRequest, nil))

	svc, event, _, _ := h.serverMgr.Poll()
	if svc != "" || event != rpctypes.ServerEventNone {
		t.Fatalf("poll = (%q, %v), want (\"\", NONE)", svc, event)
	}
}

// TestS6ConfigErrorsUnknownIdentity exercises scenario S6's manager-level slice: a
// client identity absent from the document fails Initialize, and no
// endpoint is ever created to Call against.
func TestS6ConfigErrorsUnknownIdentity(t *testing.T) {
	doc := addServiceDoc()
	bus := pdu.NewLoopbackBus()
	transport := pdu.NewLoopbackEndpoint(bus, "ClientNode")

	mgr := NewClientManager("NobodyClient", "ClientNode", nil)
	err := mgr.Initialize(doc, func(string, string) (pdu.Endpoint, error) { return transport, nil }, &fakeClock{})
	if err == nil {
		t.Fatal("expected Initialize to fail for an identity absent from the document")
	}
	if err := mgr.Call("Service/Add", nil, 0); err == nil {
		t.Fatal("expected Call on an uninitialized manager to fail")
	}
}

func TestS6ConfigErrorsMissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error loading a missing config file")
	}
}

func TestS6ConfigErrorsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected error loading malformed JSON")
	}
}

func rawRequest(t *testing.T, requestID rpctypes.RequestID, serviceName, clientName string, opcode rpctypes.Opcode, body []byte) []byte {
	t.Helper()
	codec := header.NewBinaryCodec()
	buf := make([]byte, codec.RequestHeaderSize()+len(body))
	h := rpctypes.RequestHeader{RequestID: requestID, ServiceName: serviceName, ClientName: clientName, Opcode: opcode}
	if err := codec.EncodeRequest(h, buf); err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	copy(buf[codec.RequestHeaderSize():], body)
	return buf
}

package rpcclient

import (
	"testing"

	"github.com/hakoniwalab/hakoniwa-pdu-rpc/header"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/pdu"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/rpctypes"
)

// fakeTransport records every Send and can be told to fail the next one.
type fakeTransport struct {
	sent    []sentCall
	failNext bool
}

type sentCall struct {
	key  pdu.Key
	data []byte
}

func (f *fakeTransport) Open(string) error { return nil }
func (f *fakeTransport) Start() error      { return nil }
func (f *fakeTransport) IsRunning() bool   { return true }
func (f *fakeTransport) Stop() error       { return nil }
func (f *fakeTransport) Close() error      { return nil }
func (f *fakeTransport) Send(key pdu.Key, data []byte) error {
	if f.failNext {
		f.failNext = false
		return errBoom
	}
	cp := append([]byte(nil), data...)
	f.sent = append(f.sent, sentCall{key: key, data: cp})
	return nil
}
func (f *fakeTransport) SetOnRecvCallback(pdu.RecvCallback)                {}
func (f *fakeTransport) GetPduDefinition() *pdu.DefinitionRegistry         { return nil }
func (f *fakeTransport) GetPduName(pdu.ResolvedKey) (string, bool)        { return "", false }
func (f *fakeTransport) GetPduSize(pdu.Key) (int, bool)                   { return 0, false }

var errBoom = &boomError{}

type boomError struct{}

func (*boomError) Error() string { return "boom" }

// fakeClock is a manually advanced monotonic clock for deterministic
// timeout testing.
type fakeClock struct {
	now uint64
}

func (c *fakeClock) NowMicros() uint64  { return c.now }
func (c *fakeClock) Sleep(usec uint64)  { c.now += usec }

func newTestEndpoint(t *testing.T, transport pdu.Endpoint, clock pdu.TimeSource) *Endpoint {
	t.Helper()
	sizes := header.ServicePduSize{
		Client: header.SidePduSize{BaseSize: 64, HeapSize: 64},
		Server: header.SidePduSize{BaseSize: 64, HeapSize: 64},
	}
	return New("Service/Add", "TestClient", transport, header.NewBinaryCodec(), clock, sizes, 24, nil)
}

func mustEncodeResponse(t *testing.T, ep *Endpoint, h rpctypes.ResponseHeader, body []byte) []byte {
	t.Helper()
	codec := header.NewBinaryCodec()
	buf := make([]byte, codec.ResponseHeaderSize()+len(body))
	if err := codec.EncodeResponse(h, buf); err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	copy(buf[codec.ResponseHeaderSize():], body)
	return buf
}

func TestCallHappyPath(t *testing.T) {
	transport := &fakeTransport{}
	clock := &fakeClock{}
	ep := newTestEndpoint(t, transport, clock)

	if err := ep.Call([]byte("a=5,b=7"), 1_000_000); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if ep.State() != rpctypes.ClientRunning {
		t.Fatalf("state = %v, want RUNNING", ep.State())
	}
	if len(transport.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(transport.sent))
	}

	resp := mustEncodeResponse(t, ep, rpctypes.ResponseHeader{
		RequestID: 1, ServiceName: "Service/Add", ClientName: "TestClient",
		Status: rpctypes.StatusDone, ResultCode: rpctypes.ResultOK,
	}, []byte("sum=12"))
	ep.OnRecv(ep.ResponsePduName(), resp)

	event, _, body := ep.Poll()
	if event != rpctypes.ClientEventResponseIn {
		t.Fatalf("event = %v, want RESPONSE_IN", event)
	}
	if string(body) != "sum=12" {
		t.Fatalf("body = %q", body)
	}
	if ep.State() != rpctypes.ClientIdle {
		t.Fatalf("state after response = %v, want IDLE", ep.State())
	}
}

func TestCallFromNonIdleFails(t *testing.T) {
	transport := &fakeTransport{}
	ep := newTestEndpoint(t, transport, &fakeClock{})

	if err := ep.Call([]byte("x"), 0); err != nil {
		t.Fatalf("first Call: %v", err)
	}
	if err := ep.Call([]byte("x"), 0); err == nil {
		t.Fatal("expected second Call from RUNNING to fail")
	}
}

func TestCallSubmissionFailureRollsBackToIdle(t *testing.T) {
	transport := &fakeTransport{failNext: true}
	ep := newTestEndpoint(t, transport, &fakeClock{})

	if err := ep.Call([]byte("x"), 0); err == nil {
		t.Fatal("expected Call to fail")
	}
	if ep.State() != rpctypes.ClientIdle {
		t.Fatalf("state = %v, want IDLE after rollback", ep.State())
	}
}

func TestPollTimeoutMovesToCancelling(t *testing.T) {
	transport := &fakeTransport{}
	clock := &fakeClock{}
	ep := newTestEndpoint(t, transport, clock)

	if err := ep.Call([]byte("x"), 100_000); err != nil {
		t.Fatalf("Call: %v", err)
	}
	clock.now += 100_001

	event, _, _ := ep.Poll()
	if event != rpctypes.ClientEventResponseTimeout {
		t.Fatalf("event = %v, want RESPONSE_TIMEOUT", event)
	}
	if ep.State() != rpctypes.ClientCancelling {
		t.Fatalf("state = %v, want CANCELLING", ep.State())
	}
	if len(transport.sent) != 2 { // original request + cancel
		t.Fatalf("expected 2 sends (request + cancel), got %d", len(transport.sent))
	}

	// A second poll before any cancel reply must not re-fire the timeout
	// or submit a duplicate cancel.
	event, _, _ = ep.Poll()
	if event != rpctypes.ClientEventNone {
		t.Fatalf("second poll event = %v, want NONE", event)
	}
	if len(transport.sent) != 2 {
		t.Fatalf("expected no additional sends while CANCELLING, got %d", len(transport.sent))
	}
}

func TestStaleResponseDroppedSilently(t *testing.T) {
	transport := &fakeTransport{}
	ep := newTestEndpoint(t, transport, &fakeClock{})

	if err := ep.Call([]byte("first"), 0); err != nil {
		t.Fatalf("Call: %v", err)
	}
	stale := mustEncodeResponse(t, ep, rpctypes.ResponseHeader{
		RequestID: 999, ServiceName: "Service/Add", ClientName: "TestClient",
		Status: rpctypes.StatusDone, ResultCode: rpctypes.ResultOK,
	}, []byte("ignored"))
	ep.OnRecv(ep.ResponsePduName(), stale)

	event, _, _ := ep.Poll()
	if event != rpctypes.ClientEventNone {
		t.Fatalf("event = %v, want NONE for stale-only queue", event)
	}
	if ep.State() != rpctypes.ClientRunning {
		t.Fatalf("state = %v, want RUNNING (call still pending)", ep.State())
	}
}

func TestPollIntervalStampedIntoRequestHeader(t *testing.T) {
	transport := &fakeTransport{}
	ep := newTestEndpoint(t, transport, &fakeClock{})
	ep.SetPollInterval(250)

	if err := ep.Call([]byte("x"), 0); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got := ep.RecommendedPollInterval(); got != 250 {
		t.Fatalf("RecommendedPollInterval() = %d, want 250", got)
	}

	codec := header.NewBinaryCodec()
	h, err := codec.DecodeRequest(transport.sent[0].data)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if h.StatusPollIntervalMsec != 250 {
		t.Fatalf("wire StatusPollIntervalMsec = %d, want 250", h.StatusPollIntervalMsec)
	}
}

func TestElapsedTracksTimeSinceSubmission(t *testing.T) {
	transport := &fakeTransport{}
	clock := &fakeClock{now: 1_000}
	ep := newTestEndpoint(t, transport, clock)

	if _, ok := ep.Elapsed(); ok {
		t.Fatal("Elapsed() should report ok=false while IDLE")
	}

	if err := ep.Call([]byte("x"), 0); err != nil {
		t.Fatalf("Call: %v", err)
	}
	clock.now += 500

	usec, ok := ep.Elapsed()
	if !ok {
		t.Fatal("Elapsed() should report ok=true while RUNNING")
	}
	if usec != 500 {
		t.Fatalf("Elapsed() = %d, want 500", usec)
	}
}

func TestMultiRoundRequestIDsIncrease(t *testing.T) {
	transport := &fakeTransport{}
	ep := newTestEndpoint(t, transport, &fakeClock{})

	if err := ep.Call([]byte("10,20"), 0); err != nil {
		t.Fatalf("Call 1: %v", err)
	}
	resp1 := mustEncodeResponse(t, ep, rpctypes.ResponseHeader{RequestID: 1, ResultCode: rpctypes.ResultOK}, []byte("30"))
	ep.OnRecv(ep.ResponsePduName(), resp1)
	if event, _, body := ep.Poll(); event != rpctypes.ClientEventResponseIn || string(body) != "30" {
		t.Fatalf("round 1: event=%v body=%q", event, body)
	}

	if err := ep.Call([]byte("15,25"), 0); err != nil {
		t.Fatalf("Call 2: %v", err)
	}
	resp2 := mustEncodeResponse(t, ep, rpctypes.ResponseHeader{RequestID: 2, ResultCode: rpctypes.ResultOK}, []byte("40"))
	ep.OnRecv(ep.ResponsePduName(), resp2)
	if event, _, body := ep.Poll(); event != rpctypes.ClientEventResponseIn || string(body) != "40" {
		t.Fatalf("round 2: event=%v body=%q", event, body)
	}
}

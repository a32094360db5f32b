// Package pdu declares the external collaborators the RPC overlay rides
// on top of: the transport endpoint, the per-service PDU definition
// registry, and the time source. None of these are the overlay's job to
// get right at the wire level — a real deployment supplies a hakoniwa PDU
// transport — but the overlay needs concrete Go types to program against,
// so this package also ships the definition registry (a real, if small,
// piece of bookkeeping) and a couple of reference Endpoint implementations
// live in the pduws and loopback subpackages/files.
package pdu

// Key addresses an outgoing PDU: the service acting as "robot" plus the
// PDU's logical name (e.g. "TestClientReq").
type Key struct {
	Robot   string
	PduName string
}

// ResolvedKey is what a transport hands back on receive: the robot plus a
// numeric channel id that must be resolved to a PDU name via a
// DefinitionRegistry before it means anything to the overlay.
type ResolvedKey struct {
	Robot     string
	ChannelID int
}

// RecvCallback is the single, untyped hook a transport invokes for every
// inbound PDU. The overlay's dispatch registries are what give it meaning.
type RecvCallback func(key ResolvedKey, data []byte)

// Endpoint is the transport surface the core requires, per spec section 6.
// Implementations are not this module's concern; pduws and the in-process
// loopback endpoint in this package are reference implementations used by
// the CLI programs and tests.
type Endpoint interface {
	Open(configPath string) error
	Start() error
	IsRunning() bool
	Stop() error
	Close() error
	Send(key Key, data []byte) error
	SetOnRecvCallback(cb RecvCallback)
	GetPduDefinition() *DefinitionRegistry
	GetPduName(key ResolvedKey) (string, bool)
	GetPduSize(key Key) (int, bool)
}

// TimeSource returns a monotonic microsecond timestamp and can sleep. The
// core never reads the wall clock directly so tests can substitute a
// fake and drive timeouts deterministically.
type TimeSource interface {
	NowMicros() uint64
	Sleep(usec uint64)
}

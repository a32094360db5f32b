// Package pduws is a reference PduEndpoint implementation carrying PDU
// traffic over a single WebSocket connection. It exists to give the
// module a real, non-loopback transport to run the CLI programs against;
// production deployments would replace it with the actual hakoniwa PDU
// transport.
//
// Wire format: every WebSocket binary message is one PDU envelope —
// 2-byte robot-name length, robot name, 2-byte pdu-name length, pdu name,
// then the raw payload. There is no further framing: one WebSocket
// message is one PDU, mirroring the "one PDU = one RPC message" rule.
package pduws

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hakoniwalab/hakoniwa-pdu-rpc/pdu"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/rpcerrors"
)

// FileConfig is the JSON document Open reads its target URL from.
type FileConfig struct {
	URL string `json:"url"`
}

// Endpoint implements pdu.Endpoint over one WebSocket connection.
type Endpoint struct {
	log *zap.Logger

	mu       sync.Mutex
	url      string
	conn     *websocket.Conn
	running  bool
	callback pdu.RecvCallback
	def      *pdu.DefinitionRegistry
	nextChan int
	channels map[string]int // "robot/pduName" -> assigned channel id

	writeMu sync.Mutex
}

// New builds an unopened endpoint. log may be nil.
func New(log *zap.Logger) *Endpoint {
	if log == nil {
		log = zap.NewNop()
	}
	return &Endpoint{
		log:      log,
		def:      pdu.NewDefinitionRegistry(256),
		channels: make(map[string]int),
	}
}

// Open reads a FileConfig JSON document at configPath and records the
// target URL. It does not connect; Start does.
func (e *Endpoint) Open(configPath string) error {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("%w: %v", rpcerrors.ErrConfigMalformed, err)
	}
	var cfg FileConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("%w: %v", rpcerrors.ErrConfigMalformed, err)
	}
	if cfg.URL == "" {
		return fmt.Errorf("%w: pduws config missing url", rpcerrors.ErrConfigMalformed)
	}
	e.mu.Lock()
	e.url = cfg.URL
	e.mu.Unlock()
	return nil
}

// Start dials the configured URL and begins the receive loop.
func (e *Endpoint) Start() error {
	e.mu.Lock()
	url := e.url
	e.mu.Unlock()
	if url == "" {
		return fmt.Errorf("%w: pduws endpoint not opened", rpcerrors.ErrConfigMalformed)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", rpcerrors.ErrTransportFailure, err)
	}

	e.mu.Lock()
	e.conn = conn
	e.running = true
	e.mu.Unlock()

	go e.readLoop(conn)
	return nil
}

func (e *Endpoint) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			e.log.Debug("pduws: read loop exiting", zap.Error(err))
			return
		}
		robot, pduName, payload, err := decodeEnvelope(data)
		if err != nil {
			e.log.Warn("pduws: dropping undecodable envelope", zap.Error(err))
			continue
		}

		e.mu.Lock()
		key := robot + "/" + pduName
		channelID, ok := e.channels[key]
		if !ok {
			channelID = e.nextChan
			e.nextChan++
			e.channels[key] = channelID
			e.def.AddDefinition(robot, pdu.Def{OrgName: pduName, Name: key, ChannelID: channelID, PduSize: len(payload)})
		}
		cb := e.callback
		e.mu.Unlock()

		if cb != nil {
			cb(pdu.ResolvedKey{Robot: robot, ChannelID: channelID}, payload)
		}
	}
}

func (e *Endpoint) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Endpoint) Stop() error {
	e.mu.Lock()
	conn := e.conn
	e.conn = nil
	e.running = false
	e.mu.Unlock()
	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("%w: %v", rpcerrors.ErrTransportFailure, err)
	}
	return nil
}

func (e *Endpoint) Close() error { return e.Stop() }

func (e *Endpoint) Send(key pdu.Key, data []byte) error {
	e.mu.Lock()
	conn := e.conn
	running := e.running
	e.mu.Unlock()
	if !running || conn == nil {
		return rpcerrors.ErrTransportFailure
	}

	envelope := encodeEnvelope(key.Robot, key.PduName, data)
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.BinaryMessage, envelope); err != nil {
		return fmt.Errorf("%w: %v", rpcerrors.ErrTransportFailure, err)
	}
	return nil
}

func (e *Endpoint) SetOnRecvCallback(cb pdu.RecvCallback) {
	e.mu.Lock()
	e.callback = cb
	e.mu.Unlock()
}

func (e *Endpoint) GetPduDefinition() *pdu.DefinitionRegistry { return e.def }

func (e *Endpoint) GetPduName(key pdu.ResolvedKey) (string, bool) {
	return e.def.Resolve(key)
}

func (e *Endpoint) GetPduSize(key pdu.Key) (int, bool) {
	return e.def.SizeOf(key.Robot, key.PduName)
}

func encodeEnvelope(robot, pduName string, payload []byte) []byte {
	buf := make([]byte, 2+len(robot)+2+len(pduName)+len(payload))
	off := 0
	binary.BigEndian.PutUint16(buf[off:], uint16(len(robot)))
	off += 2
	off += copy(buf[off:], robot)
	binary.BigEndian.PutUint16(buf[off:], uint16(len(pduName)))
	off += 2
	off += copy(buf[off:], pduName)
	copy(buf[off:], payload)
	return buf
}

func decodeEnvelope(buf []byte) (robot, pduName string, payload []byte, err error) {
	if len(buf) < 2 {
		return "", "", nil, rpcerrors.ErrMalformed
	}
	robotLen := int(binary.BigEndian.Uint16(buf))
	off := 2
	if len(buf) < off+robotLen+2 {
		return "", "", nil, rpcerrors.ErrMalformed
	}
	robot = string(buf[off : off+robotLen])
	off += robotLen
	pduNameLen := int(binary.BigEndian.Uint16(buf[off:]))
	off += 2
	if len(buf) < off+pduNameLen {
		return "", "", nil, rpcerrors.ErrMalformed
	}
	pduName = string(buf[off : off+pduNameLen])
	off += pduNameLen
	payload = buf[off:]
	return robot, pduName, payload, nil
}

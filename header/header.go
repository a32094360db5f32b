// Package header implements the Header & Buffer Layout component: it
// carries no state of its own, only the sizing rule from a service's
// configured base/heap sizes and the fixed binary layout used to stamp a
// request or response header into the first bytes of a PDU buffer.
//
// Layout mirrors the fixed 14-byte frame header the teacher protocol
// package uses for its own wire format, extended with the RPC-specific
// fields this overlay needs. Names are stored as fixed-width, NUL-padded
// byte fields rather than length-prefixed strings so that RequestHeaderSize
// and ResponseHeaderSize are constants known before any PDU is seen.
package header

import (
	"encoding/binary"

	"github.com/hakoniwalab/hakoniwa-pdu-rpc/rpcerrors"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/rpctypes"
)

// NameFieldSize bounds service_name and client_name on the wire. Names
// longer than this are a configuration error, not a runtime one.
const NameFieldSize = 32

const (
	requestHeaderSize  = 8 + 1 + 1 + 4 + NameFieldSize + NameFieldSize // reqID + opcode + pad + poll-interval + names
	responseHeaderSize = 8 + 1 + 1 + 1 + 1 + NameFieldSize + NameFieldSize
)

// SidePduSize is one side's contribution to a service's PDU sizing, taken
// verbatim from the service-config document's pduSize.client / pduSize.server
// objects.
type SidePduSize struct {
	BaseSize uint32
	HeapSize uint32
}

// ServicePduSize is the pduSize block of one service: both sides' base and
// heap sizes, from which request and response buffer sizes are derived.
type ServicePduSize struct {
	Client SidePduSize
	Server SidePduSize
}

// RequestPduSize is server.baseSize + client.heapSize + metaSize, per the
// buffer sizing rule: the server side supplies the fixed part of a
// request, the client side supplies the variable (heap) part.
func RequestPduSize(sizes ServicePduSize, metaSize uint32) int {
	return int(sizes.Server.BaseSize + sizes.Client.HeapSize + metaSize)
}

// ResponsePduSize is client.baseSize + server.heapSize + metaSize, the
// mirror image of RequestPduSize.
func ResponsePduSize(sizes ServicePduSize, metaSize uint32) int {
	return int(sizes.Client.BaseSize + sizes.Server.HeapSize + metaSize)
}

// Codec converts fixed request/response headers to and from the prefix of
// a PDU buffer. It holds no state; a single Codec value is safe to share
// across every endpoint in a process.
type Codec interface {
	EncodeRequest(h rpctypes.RequestHeader, buf []byte) error
	DecodeRequest(buf []byte) (rpctypes.RequestHeader, error)
	EncodeResponse(h rpctypes.ResponseHeader, buf []byte) error
	DecodeResponse(buf []byte) (rpctypes.ResponseHeader, error)
	RequestHeaderSize() int
	ResponseHeaderSize() int
}

// BinaryCodec is the concrete fixed-width Codec used by every endpoint in
// this module. There is currently no second implementation, but the
// interface keeps the state machines independent of the wire layout.
type BinaryCodec struct{}

func NewBinaryCodec() *BinaryCodec { return &BinaryCodec{} }

func (BinaryCodec) RequestHeaderSize() int  { return requestHeaderSize }
func (BinaryCodec) ResponseHeaderSize() int { return responseHeaderSize }

func putName(buf []byte, name string) error {
	if len(name) > NameFieldSize {
		return rpcerrors.ErrMalformed
	}
	clear(buf)
	copy(buf, name)
	return nil
}

func getName(buf []byte) string {
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	return string(buf[:n])
}

func (BinaryCodec) EncodeRequest(h rpctypes.RequestHeader, buf []byte) error {
	if len(buf) < requestHeaderSize {
		return rpcerrors.ErrMalformed
	}
	if !h.Opcode.Valid() {
		return rpcerrors.ErrMalformed
	}
	off := 0
	binary.BigEndian.PutUint64(buf[off:off+8], uint64(h.RequestID))
	off += 8
	buf[off] = byte(h.Opcode)
	off++
	off++ // reserved padding byte, keeps the poll-interval field 4-byte aligned
	binary.BigEndian.PutUint32(buf[off:off+4], h.StatusPollIntervalMsec)
	off += 4
	if err := putName(buf[off:off+NameFieldSize], h.ServiceName); err != nil {
		return err
	}
	off += NameFieldSize
	if err := putName(buf[off:off+NameFieldSize], h.ClientName); err != nil {
		return err
	}
	return nil
}

func (BinaryCodec) DecodeRequest(buf []byte) (rpctypes.RequestHeader, error) {
	var h rpctypes.RequestHeader
	if len(buf) < requestHeaderSize {
		return h, rpcerrors.ErrMalformed
	}
	off := 0
	h.RequestID = rpctypes.RequestID(binary.BigEndian.Uint64(buf[off : off+8]))
	off += 8
	h.Opcode = rpctypes.Opcode(buf[off])
	off++
	off++ // skip reserved byte
	h.StatusPollIntervalMsec = binary.BigEndian.Uint32(buf[off : off+4])
	off += 4
	h.ServiceName = getName(buf[off : off+NameFieldSize])
	off += NameFieldSize
	h.ClientName = getName(buf[off : off+NameFieldSize])
	if !h.Opcode.Valid() {
		return h, rpcerrors.ErrMalformed
	}
	return h, nil
}

func (BinaryCodec) EncodeResponse(h rpctypes.ResponseHeader, buf []byte) error {
	if len(buf) < responseHeaderSize {
		return rpcerrors.ErrMalformed
	}
	if !h.Status.Valid() || !h.ResultCode.Valid() {
		return rpcerrors.ErrMalformed
	}
	off := 0
	binary.BigEndian.PutUint64(buf[off:off+8], uint64(h.RequestID))
	off += 8
	buf[off] = byte(h.Status)
	off++
	buf[off] = h.ProcessingPercentage
	off++
	buf[off] = byte(h.ResultCode)
	off++
	off++ // reserved padding byte
	if err := putName(buf[off:off+NameFieldSize], h.ServiceName); err != nil {
		return err
	}
	off += NameFieldSize
	if err := putName(buf[off:off+NameFieldSize], h.ClientName); err != nil {
		return err
	}
	return nil
}

func (BinaryCodec) DecodeResponse(buf []byte) (rpctypes.ResponseHeader, error) {
	var h rpctypes.ResponseHeader
	if len(buf) < responseHeaderSize {
		return h, rpcerrors.ErrMalformed
	}
	off := 0
	h.RequestID = rpctypes.RequestID(binary.BigEndian.Uint64(buf[off : off+8]))
	off += 8
	h.Status = rpctypes.Status(buf[off])
	off++
	h.ProcessingPercentage = buf[off]
	off++
	h.ResultCode = rpctypes.ResultCode(buf[off])
	off++
	off++ // skip reserved byte
	h.ServiceName = getName(buf[off : off+NameFieldSize])
	off += NameFieldSize
	h.ClientName = getName(buf[off : off+NameFieldSize])
	if !h.Status.Valid() || !h.ResultCode.Valid() {
		return h, rpcerrors.ErrMalformed
	}
	return h, nil
}

// Package rpcerrors declares the sentinel errors that make up the error
// taxonomy the core reports to callers. All of them except
// ErrConfigMalformed are locally recovered: the endpoint stays usable and
// the caller sees the failure only at the call site that triggered it.
package rpcerrors

import "errors"

var (
	// ErrConfigMalformed means the service-config document was missing,
	// invalid, or had no endpoint matching the caller's identity. It fails
	// Initialize; nothing built on top of it is usable.
	ErrConfigMalformed = errors.New("rpc: service configuration is malformed")

	// ErrTransportFailure wraps a non-OK return from the underlying
	// PduEndpoint's open/start/send.
	ErrTransportFailure = errors.New("rpc: transport operation failed")

	// ErrBusy is returned when a caller tries to start a new transaction
	// on an endpoint that already has one in flight.
	ErrBusy = errors.New("rpc: endpoint is busy")

	// ErrInvalid covers an unknown client_name, a bad opcode, or a
	// request_id mismatch on a cancel.
	ErrInvalid = errors.New("rpc: invalid request or state")

	// ErrUnknownService is returned by the manager when a caller names a
	// service it never registered an endpoint for.
	ErrUnknownService = errors.New("rpc: unknown service")

	// ErrMalformed is returned by the header codec when a buffer is too
	// small for its header, or a field falls outside its enumerated range.
	ErrMalformed = errors.New("rpc: malformed header or buffer")
)

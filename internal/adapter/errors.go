package adapter

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned by stub runtimes that cannot sync yet.
var ErrUnsupported = errors.New("runtime not supported")

// TransportError wraps RPC-level failures: unreachable nodes, timeouts,
// connection resets. The engine retries on the next interval.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport: %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError marks a response that arrived but could not be interpreted.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("protocol: %s: %v", e.Op, e.Err) }
func (e *ProtocolError) Unwrap() error { return e.Err }

// NotFoundError means the requested height does not exist on the remote node
// yet. At the window tip this is benign: later heights fail the same way, the
// cursor stays put, and the heights are retried on a later cycle.
type NotFoundError struct {
	Height uint64
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("height %d not found", e.Height) }

// IsNotFound reports whether err is a NotFoundError anywhere in its chain.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

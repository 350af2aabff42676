package wire

import (
	"bufio"
	"errors"
	"io"

	"github.com/smnsjas/go-boincrpc/rpcerr"
)

const (
	// DefaultMaxMessageBytes bounds a single reply. A full get_state dump
	// of a busy host is a few megabytes.
	DefaultMaxMessageBytes = 64 << 20

	readBufferSize = 64 << 10
)

// Limits constrains message decode memory use.
type Limits struct {
	// MaxMessageBytes is the largest payload accepted, terminator excluded.
	// Zero means no limit.
	MaxMessageBytes int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxMessageBytes: DefaultMaxMessageBytes}
}

// Reader accumulates terminated messages from a byte stream.
type Reader struct {
	br     *bufio.Reader
	limits Limits
}

// NewReader wraps r. The Reader must be the only consumer of r, since bytes
// following a terminator stay buffered for the next message.
func NewReader(r io.Reader, limits Limits) *Reader {
	return &Reader{
		br:     bufio.NewReaderSize(r, readBufferSize),
		limits: limits,
	}
}

// ReadMessage blocks until a complete message has arrived and returns its
// payload without the terminator.
//
// The payload may arrive across any number of reads. An EOF before the
// terminator is reported as a KindDisconnected error. Other read errors,
// such as deadline expiry, are returned unchanged for the caller to classify.
func (r *Reader) ReadMessage() ([]byte, error) {
	var msg []byte
	for {
		chunk, err := r.br.ReadSlice(Terminator)
		if limit := r.limits.MaxMessageBytes; limit > 0 && len(msg)+len(chunk) > limit+1 {
			return nil, rpcerr.Newf(rpcerr.KindProtocol, "read", "message exceeds %d bytes", limit)
		}
		msg = append(msg, chunk...)

		switch {
		case err == nil:
			return msg[:len(msg)-1], nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(msg) == 0 {
				return nil, rpcerr.New(rpcerr.KindDisconnected, "read", "connection closed by peer")
			}
			return nil, rpcerr.Wrap(rpcerr.KindDisconnected, "read", io.ErrUnexpectedEOF)
		default:
			return nil, err
		}
	}
}

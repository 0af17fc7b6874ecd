// Package calcproto implements the length-prefixed framing protocol
// spoken between a bot and its out-of-process computation worker.
//
// A request frame is an 8-byte header of two big-endian u32 lengths
// followed by the `unit` and `expr` byte strings. A response frame is a
// 1-byte success flag plus a big-endian u32 payload length followed by
// the payload. Both sides treat the payloads as opaque bytes.
//
// The protocol has no delimiters and no means to abort an in-flight
// exchange: the receiver reads exactly the declared number of bytes or
// fails. Partial sends are fatal by design; this is a point-to-point
// socketpair, not a general transport abstraction.
package calcproto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// RequestHeaderSize is two u32 big-endian length fields.
	RequestHeaderSize = 8
	// ResponseHeaderSize is one flag byte plus a u32 big-endian length.
	ResponseHeaderSize = 5
)

var (
	// ErrClosed reports a connection that closed before a full frame
	// arrived. Distinct from a short read, which is handled internally
	// by looping.
	ErrClosed = errors.New("calcproto: connection closed mid-frame")

	// ErrShortWrite reports a write call which transmitted less than
	// the whole buffer.
	ErrShortWrite = errors.New("calcproto: short write")

	// ErrBadFlag reports a response flag byte that is neither 0 nor 1.
	ErrBadFlag = errors.New("calcproto: invalid success flag")
)

// WriteRequest writes one request frame: header, unit bytes, expr bytes,
// in that order.
func WriteRequest(w io.Writer, unit, expr []byte) error {
	header := make([]byte, RequestHeaderSize)
	binary.BigEndian.PutUint32(header[0:4], uint32(len(unit)))
	binary.BigEndian.PutUint32(header[4:8], uint32(len(expr)))
	if err := writeFull(w, header); err != nil {
		return err
	}
	if err := writeFull(w, unit); err != nil {
		return err
	}
	return writeFull(w, expr)
}

// ReadRequest reads one request frame.
func ReadRequest(r io.Reader) (unit, expr []byte, err error) {
	header := make([]byte, RequestHeaderSize)
	if err := readFull(r, header); err != nil {
		return nil, nil, err
	}
	unit = make([]byte, binary.BigEndian.Uint32(header[0:4]))
	expr = make([]byte, binary.BigEndian.Uint32(header[4:8]))
	if err := readFull(r, unit); err != nil {
		return nil, nil, err
	}
	if err := readFull(r, expr); err != nil {
		return nil, nil, err
	}
	return unit, expr, nil
}

// WriteResponse writes one response frame. ok reports whether payload is
// a result or an error message.
func WriteResponse(w io.Writer, ok bool, payload []byte) error {
	header := make([]byte, ResponseHeaderSize)
	if ok {
		header[0] = 1
	}
	binary.BigEndian.PutUint32(header[1:5], uint32(len(payload)))
	if err := writeFull(w, header); err != nil {
		return err
	}
	return writeFull(w, payload)
}

// ReadResponse reads one response frame.
func ReadResponse(r io.Reader) (ok bool, payload []byte, err error) {
	header := make([]byte, ResponseHeaderSize)
	if err := readFull(r, header); err != nil {
		return false, nil, err
	}
	switch header[0] {
	case 0:
	case 1:
		ok = true
	default:
		return false, nil, fmt.Errorf("%w: %#x", ErrBadFlag, header[0])
	}
	payload = make([]byte, binary.BigEndian.Uint32(header[1:5]))
	if err := readFull(r, payload); err != nil {
		return false, nil, err
	}
	return ok, payload, nil
}

// readFull accumulates exactly len(buf) bytes, looping over however many
// short reads the transport produces. A stream that ends early is a
// protocol error, not a short buffer.
func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrClosed
	}
	return err
}

func writeFull(w io.Writer, buf []byte) error {
	n, err := w.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(buf))
	}
	return nil
}

// Package bstream provides the little-endian byte cursor used by the woz
// container parser: a thin wrapper that lets binary.Read
// decode fixed structs while still allowing a caller to peek ahead for
// framing bytes (chunk IDs, field prologues) without consuming them.
package bstream

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Reader is a peekable, little-endian byte cursor over an io.Reader.
type Reader struct {
	br  *bufio.Reader
	pos int64
}

// NewReader wraps an io.Reader for sequential little-endian decoding.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 4096)}
}

// NewReaderFromBytes wraps an in-memory image for parsing.
func NewReaderFromBytes(data []byte) *Reader {
	return NewReader(bytes.NewReader(data))
}

// Read implements io.Reader so *Reader can be passed directly to binary.Read.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.br.Read(p)
	r.pos += int64(n)
	return n, err
}

// ReadByte consumes and returns the next byte.
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.br.ReadByte()
	if err != nil {
		return 0, err
	}
	r.pos++
	return b, nil
}

// Peek returns the next n bytes without advancing the cursor.
func (r *Reader) Peek(n int) ([]byte, error) {
	return r.br.Peek(n)
}

// PeekByte previews the next byte without consuming it.
func (r *Reader) PeekByte() (byte, error) {
	b, err := r.Peek(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// PeekUint16LE previews the next two bytes as a little-endian uint16.
func (r *Reader) PeekUint16LE() (uint16, error) {
	b, err := r.Peek(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadUint16LE consumes the next two bytes as a little-endian uint16.
func (r *Reader) ReadUint16LE() (uint16, error) {
	var v uint16
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, errors.Wrap(err, "read uint16")
	}
	return v, nil
}

// ReadUint32LE consumes the next four bytes as a little-endian uint32.
func (r *Reader) ReadUint32LE() (uint32, error) {
	var v uint32
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, errors.Wrap(err, "read uint32")
	}
	return v, nil
}

// ReadBytes consumes and returns exactly n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrapf(err, "read %d bytes", n)
	}
	return buf, nil
}

// Skip discards n bytes.
func (r *Reader) Skip(n int) error {
	_, err := r.ReadBytes(n)
	return err
}

// Pos returns the number of bytes consumed so far.
func (r *Reader) Pos() int64 {
	return r.pos
}

// PutUint16LE encodes v into the low two bytes of dst, little-endian.
func PutUint16LE(dst []byte, v uint16) {
	binary.LittleEndian.PutUint16(dst, v)
}

// PutUint32LE encodes v into the low four bytes of dst, little-endian.
func PutUint32LE(dst []byte, v uint32) {
	binary.LittleEndian.PutUint32(dst, v)
}

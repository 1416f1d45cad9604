package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxPacketBytes bounds the length prefix a Codec will honor,
// preventing memory exhaustion from a hostile 4-byte header.
const DefaultMaxPacketBytes = 16 * 1024 * 1024

// ErrPacketTooLarge is returned by ReadPacket when the declared length
// exceeds the codec's configured maximum.
var ErrPacketTooLarge = errors.New("protocol: packet exceeds maximum size")

// Codec frames Packets onto a byte stream as
// uint32BE(len(body)) ++ body, body being UTF-8 JSON.
//
// A Codec is not safe for concurrent use by multiple goroutines calling the
// same method (ReadPacket vs ReadPacket); a single reader and a single
// writer may use it concurrently, matching the Worker's Recver/Sender
// split in internal/worker.
type Codec struct {
	r          io.Reader
	w          io.Writer
	maxPacket  int
}

// NewCodec wraps a connection (or any byte stream) for framed packet I/O.
// maxPacketBytes <= 0 selects DefaultMaxPacketBytes.
func NewCodec(rw io.ReadWriter, maxPacketBytes int) *Codec {
	if maxPacketBytes <= 0 {
		maxPacketBytes = DefaultMaxPacketBytes
	}
	return &Codec{r: rw, w: rw, maxPacket: maxPacketBytes}
}

// ReadPacket blocks until one full frame has been read, decodes its body,
// and returns the Packet. A short read before EOF is never treated as a
// complete packet — readFull loops until the exact byte count is consumed
// or the stream dies.
func (c *Codec) ReadPacket() (Packet, error) {
	var lenBuf [4]byte
	if err := readFull(c.r, lenBuf[:]); err != nil {
		return Packet{}, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if int(length) > c.maxPacket {
		return Packet{}, ErrPacketTooLarge
	}
	body := make([]byte, length)
	if err := readFull(c.r, body); err != nil {
		return Packet{}, err
	}
	return Decode(body)
}

// WritePacket encodes and writes one frame.
func (c *Codec) WritePacket(p Packet) error {
	body, err := p.Encode()
	if err != nil {
		return fmt.Errorf("protocol: encode packet: %w", err)
	}
	if len(body) > c.maxPacket {
		return ErrPacketTooLarge
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := c.w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = c.w.Write(body)
	return err
}

// readFull reads exactly len(buf) bytes or returns the first error
// encountered: io.EOF when the stream ends before any byte is read,
// io.ErrUnexpectedEOF when it ends part-way (a dead connection, never
// retried).
func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}

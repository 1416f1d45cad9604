// Package transfer implements the on-demand file-transfer side-channel
// described in spec §4.7: a per-transfer ephemeral TCP listener, handed
// back to the client as a port number, that streams or ingests exactly
// one file outside the main control connection.
package transfer

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lanhub/lanhub/internal/fsroot"
	"github.com/lanhub/lanhub/internal/metrics"
	"github.com/lanhub/lanhub/internal/ratelimit"
)

// Direction distinguishes a download (server sends bytes to the client)
// from an upload (server receives bytes from the client).
type Direction string

const (
	Download Direction = "download"
	Upload   Direction = "upload"
)

// acceptTimeout is the wall-clock window a file-transfer endpoint waits
// for the originating client to connect, per spec §4.7 step 3.
const acceptTimeout = 3 * time.Second

// Endpoint is one ephemeral listener servicing exactly one transfer.
// It is constructed, bound, and handed its port to the caller
// synchronously; the accept-and-stream work happens in Serve, which the
// caller runs on a goroutine of its own.
type Endpoint struct {
	id         string
	direction  Direction
	root       *fsroot.Root
	relPath    string
	size       int64
	startOff   int64
	expectIP   net.IP
	ln         *net.TCPListener
	limiter    *ratelimit.Limiter
	log        *logrus.Entry
	collector  metrics.Collector
}

// New binds a fresh ephemeral TCP listener and returns the Endpoint along
// with the bound port, ready for Serve to be started. Opening the
// listener (step 1) happens here so the caller can reply to the client
// with the real port (step 2) before the transfer itself begins.
func New(direction Direction, root *fsroot.Root, relPath string, size, startOffset int64, expectIP net.IP, limiter *ratelimit.Limiter, log *logrus.Entry, collector metrics.Collector) (*Endpoint, int, error) {
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, 0, fmt.Errorf("transfer: listen: %w", err)
	}
	id := uuid.NewString()
	e := &Endpoint{
		id:        id,
		direction: direction,
		root:      root,
		relPath:   relPath,
		size:      size,
		startOff:  startOffset,
		expectIP:  expectIP,
		ln:        ln,
		limiter:   limiter,
		log:       log.WithField("transfer_id", id).WithField("direction", string(direction)),
		collector: collector,
	}
	return e, ln.Addr().(*net.TCPAddr).Port, nil
}

// Serve runs the accept-and-stream lifecycle on the calling goroutine; the
// Worker starts it with `go e.Serve()` right after replying to the
// client with the port.
func (e *Endpoint) Serve() {
	defer e.ln.Close()

	_ = e.ln.SetDeadline(time.Now().Add(acceptTimeout))
	deadline := time.Now().Add(acceptTimeout)

	for {
		conn, err := e.ln.AcceptTCP()
		if err != nil {
			e.log.WithError(err).Warn("file transfer endpoint: accept timed out, abandoning")
			return
		}
		peerIP, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
		if e.expectIP != nil && net.ParseIP(peerIP) != nil && !net.ParseIP(peerIP).Equal(e.expectIP) {
			e.log.WithField("got_ip", peerIP).Warn("file transfer endpoint: peer IP mismatch, keep waiting")
			conn.Close()
			if time.Now().After(deadline) {
				e.log.Warn("file transfer endpoint: window expired waiting for matching peer")
				return
			}
			continue
		}

		e.handle(conn)
		return
	}
}

func (e *Endpoint) handle(conn *net.TCPConn) {
	defer conn.Close()
	start := time.Now()

	var (
		n   int64
		err error
	)
	switch e.direction {
	case Download:
		n, err = e.sendFile(conn)
	case Upload:
		n, err = e.recvFile(conn)
	}

	duration := time.Since(start)
	if err != nil {
		e.log.WithError(err).WithField("bytes", n).Warn("file transfer failed")
		return
	}
	if e.collector != nil {
		e.collector.RecordTransfer(string(e.direction), n, duration)
	}
	e.log.WithField("bytes", n).WithField("duration_ms", duration.Milliseconds()).Info("file transfer complete")
}

// sendFile implements spec §4.7 step 5 (download): seek to startOffset,
// stream the bytes from there to the end of the file, then wait for the one-byte
// drain/fin handshake before closing.
func (e *Endpoint) sendFile(conn *net.TCPConn) (int64, error) {
	f, err := e.root.OpenFile(e.relPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if e.startOff > 0 {
		if _, err := f.Seek(e.startOff, io.SeekStart); err != nil {
			return 0, err
		}
	}

	var w io.Writer = conn
	if e.limiter != nil {
		w = ratelimit.NewWriter(conn, e.limiter)
	}

	n, err := io.Copy(w, f)
	if err != nil {
		return n, err
	}

	// Drain/fin handshake: read exactly one byte from the client before
	// closing, giving the client a signal the full stream has arrived.
	var fin [1]byte
	_, _ = io.ReadFull(conn, fin[:])
	return n, nil
}

// recvFile implements spec §4.7 step 6 (upload): read exactly size bytes,
// streaming them to disk at the resolved path; a stream that ends early
// removes the partial file and fails the transfer. The target must not
// already exist — checked by the Worker before the endpoint is even
// created (spec §4.7 step 6: "Refuse ... at request time, before opening
// the endpoint").
func (e *Endpoint) recvFile(conn *net.TCPConn) (int64, error) {
	f, err := e.root.Create(e.relPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var r io.Reader = io.LimitReader(conn, e.size)
	if e.limiter != nil {
		r = ratelimit.NewReader(r, e.limiter)
	}

	n, err := io.Copy(f, r)
	if err == nil && n < e.size {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		_ = os.Remove(filepath.Join(e.root.AbsPath(), e.relPath))
		return n, err
	}
	return n, nil
}

// Package worker implements the per-connection state machine of spec
// §4.5: a Worker frames packets over one control connection, dispatches
// commands, and asks Master for the authority it does not itself hold
// (login binding, message broadcast).
package worker

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lanhub/lanhub/internal/fsroot"
	"github.com/lanhub/lanhub/internal/metrics"
	"github.com/lanhub/lanhub/internal/permission"
	"github.com/lanhub/lanhub/internal/protocol"
	"github.com/lanhub/lanhub/internal/users"
)

// State names the three states of spec §4.5.
type State int

const (
	Unauthenticated State = iota
	Authenticated
	Stopped
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Deps are the shared, process-wide collaborators every Worker needs.
// They are constructed once by the wiring code in cmd/lanhubd and handed
// to every Worker Master creates.
type Deps struct {
	Permissions     *permission.Table
	Users           *users.Table
	Share           *fsroot.Root
	Metrics         metrics.Collector
	Log             *logrus.Entry
	MaxPacketBytes  int
	IdleTimeout     time.Duration
	DownloadBpsCap  int64
	UploadBpsCap    int64

	// UploadCapBytes bounds the declared size of an incoming putFile.
	// internal/transfer already streams uploads straight to disk rather
	// than buffering them (spec §9's preferred resolution of the
	// unbounded-memory Open Question), so this cap guards disk space
	// rather than memory; 0 disables it.
	UploadCapBytes int64
}

// Worker is one accepted connection's agent. Its three helper threads are
// Recver (frames inbound packets), Sender (drains the response queue) and
// its own main goroutine (Run), which handles one packet at a time —
// never concurrently per connection (spec §5).
type Worker struct {
	deps Deps

	id       string
	conn     net.Conn
	peerAddr string
	peerIP   net.IP
	codec    *protocol.Codec
	log      *logrus.Entry

	state   atomic.Int32
	running atomic.Bool

	userID   string
	userRec  users.Record
	loggedIn atomic.Bool

	inbox inbox

	reqCh  chan *protocol.Packet
	respCh chan *protocol.Packet
	askCh  chan *Ask

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// New constructs a Worker for an accepted connection. It does not start
// any goroutines; call Run for that (Master does `go w.Run()`).
func New(conn net.Conn, deps Deps) *Worker {
	peerAddr := conn.RemoteAddr().String()
	host, _, _ := net.SplitHostPort(peerAddr)

	id := uuid.NewString()
	w := &Worker{
		deps:     deps,
		id:       id,
		conn:     conn,
		peerAddr: peerAddr,
		peerIP:   net.ParseIP(host),
		codec:    protocol.NewCodec(conn, deps.MaxPacketBytes),
		log:      deps.Log.WithField("worker_id", id).WithField("peer", peerAddr),
		reqCh:    make(chan *protocol.Packet, 16),
		respCh:   make(chan *protocol.Packet, 16),
		askCh:    make(chan *Ask, 4),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	w.state.Store(int32(Unauthenticated))
	w.running.Store(true)
	return w
}

func (w *Worker) PeerAddr() string  { return w.peerAddr }
func (w *Worker) PeerIP() net.IP    { return w.peerIP }
func (w *Worker) ID() string        { return w.id }
func (w *Worker) State() State      { return State(w.state.Load()) }
func (w *Worker) Alive() bool       { return w.running.Load() }
func (w *Worker) Asks() <-chan *Ask { return w.askCh }

// LoggedInAs returns the bound user id and whether the Worker is
// currently authenticated — SessionState.userInfo/loggedIn from spec §3.
func (w *Worker) LoggedInAs() (string, bool) {
	if w.loggedIn.Load() {
		return w.userID, true
	}
	return "", false
}

// Deliver pushes a fanned-out message into this Worker's inbox (spec
// §4.6 step 4). Safe to call from Master's tick goroutine.
func (w *Worker) Deliver(m Message) {
	w.inbox.push(m)
}

// Run frames inbound packets, dispatches them one at a time, and writes
// responses, until the connection dies or Stop is called. It starts its
// own Recver and Sender goroutines and blocks until both have exited.
func (w *Worker) Run() {
	defer close(w.done)
	defer w.teardown()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.recv()
	}()
	go func() {
		defer wg.Done()
		w.send()
	}()

	w.main()

	wg.Wait()
}

// Wait blocks until Run has fully exited.
func (w *Worker) Wait() { <-w.done }

// recv is the Recver helper thread: frames packets off the socket and
// pushes them to the request queue, pushing nil on stream death (spec
// §4.5).
func (w *Worker) recv() {
	for {
		if w.deps.IdleTimeout > 0 {
			_ = w.conn.SetReadDeadline(time.Now().Add(w.deps.IdleTimeout))
		}
		pkt, err := w.codec.ReadPacket()
		if err != nil {
			w.reqCh <- nil
			return
		}
		p := pkt
		w.reqCh <- &p
	}
}

// send is the Sender helper thread: drains the response queue and writes
// frames; it exits when stopCh is closed or on a nil sentinel (spec §4.5, §5).
func (w *Worker) send() {
	for {
		select {
		case pkt := <-w.respCh:
			if pkt == nil {
				return
			}
			if err := w.codec.WritePacket(*pkt); err != nil {
				w.log.WithError(err).Debug("worker: write failed, session ending")
				w.Stop()
				return
			}
		case <-w.stopCh:
			return
		}
	}
}

// main is the Worker's single dispatch thread: one packet at a time,
// never concurrent per connection (spec §5 ordering guarantee).
func (w *Worker) main() {
	for {
		select {
		case pkt := <-w.reqCh:
			if pkt == nil {
				w.Stop()
				return
			}
			w.handle(*pkt)
		case <-w.stopCh:
			return
		}
		if !w.running.Load() {
			return
		}
	}
}

// Stop implements spec §5's cancellation sequence: flip running false,
// close stopCh (which ends the Sender and the main loop), force the
// Recver to unblock via an immediate read deadline, and close the socket.
// Idempotent and safe from any goroutine.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.running.Store(false)
		w.state.Store(int32(Stopped))
		close(w.stopCh)
		_ = w.conn.SetReadDeadline(time.Now().Add(-time.Second))
		_ = w.conn.Close()
	})
}

func (w *Worker) teardown() {
	w.loggedIn.Store(false)
	w.inbox.discard()
}

// Package master implements the singleton coordinator of spec §4.6: the
// authoritative user table, login arbitration, message fan-out, and
// Worker reaping, all serialized onto one 10ms tick loop so nothing but
// Master's own goroutine ever touches workerMap or userMap (spec §5).
package master

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/lanhub/lanhub/internal/metrics"
	"github.com/lanhub/lanhub/internal/protocol"
	"github.com/lanhub/lanhub/internal/sink"
	"github.com/lanhub/lanhub/internal/users"
	"github.com/lanhub/lanhub/internal/worker"
)

// tickInterval is the ~10ms cadence from spec §4.6 and GLOSSARY "Tick".
const tickInterval = 10 * time.Millisecond

// acceptResult carries one accepted socket, or a sentinel with conn==nil
// reporting the acceptor's own death (spec §4.4).
type acceptResult struct {
	conn net.Conn
	err  error
}

// Master owns workerMap, userMap (here: bindings), the outbound accept
// queue, and the local operator message queue described in spec §4.6.
type Master struct {
	listener net.Listener
	deps     worker.Deps
	users    *users.Table
	log      *logrus.Entry
	metrics  metrics.Collector
	tap      *sink.UITap

	maxConnections int
	maxPerIP       int
	shutdownGrace  time.Duration

	acceptCh      chan acceptResult
	operatorMsgCh chan worker.Message

	workers  map[string]*worker.Worker // keyed by Worker.ID()
	bindings map[string]*worker.Worker // userID -> bound Worker
	perIP    map[string]int            // live connection count by peer IP

	stopCh chan struct{}
}

// New constructs a Master that will accept connections on ln. deps is
// handed to every Worker it creates; deps.Users must be the same table
// used for login arbitration here. maxConnections/maxPerIP are the
// ceilings from spec §9's supplemented connection limits (0 = unlimited).
// shutdownGrace bounds how long shutdown, after stopping every Worker
// (which closes its connection at once), waits for them to finish
// unwinding before returning anyway.
func New(ln net.Listener, deps worker.Deps, collector metrics.Collector, tap *sink.UITap, log *logrus.Entry, maxConnections, maxPerIP int, shutdownGrace time.Duration) *Master {
	return &Master{
		listener:       ln,
		deps:           deps,
		users:          deps.Users,
		log:            log.WithField("component", "master"),
		metrics:        collector,
		tap:            tap,
		maxConnections: maxConnections,
		maxPerIP:       maxPerIP,
		shutdownGrace:  shutdownGrace,
		acceptCh:       make(chan acceptResult, 64),
		operatorMsgCh:  make(chan worker.Message, 256),
		workers:        make(map[string]*worker.Worker),
		bindings:       make(map[string]*worker.Worker),
		perIP:          make(map[string]int),
		stopCh:         make(chan struct{}),
	}
}

// SendMessage implements spec §4.6's operator send: enqueues a
// SERVER-sentinel message, picked up by the next tick.
func (m *Master) SendMessage(body string) {
	msg := worker.Message{SenderID: worker.SenderServer, Time: time.Now(), Body: body}
	select {
	case m.operatorMsgCh <- msg:
	case <-m.stopCh:
	}
}

// Tap exposes the UI mirror of every fanned-out message, if configured.
func (m *Master) Tap() *sink.UITap { return m.tap }

// Run supervises the acceptor and the tick loop with an errgroup (drawn
// from the corpus's golang.org/x/sync/errgroup usage). The acceptor never
// returns an error (its failure is only logged), so Run blocks until Stop
// is called or the context is cancelled.
func (m *Master) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m.acceptLoop()
		return nil
	})
	g.Go(func() error {
		return m.tickLoop(ctx)
	})

	go func() {
		<-ctx.Done()
		m.Stop()
	}()

	return g.Wait()
}

// acceptLoop is the Acceptor of spec §4.4: blocks on accept, enqueues
// (socket, peerAddr) pairs, and on any error pushes a nil-conn sentinel
// so Master observes the listener's death without the failure cascading
// (spec §7 "background-thread failures... log and exit that thread").
func (m *Master) acceptLoop() {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			m.log.WithError(err).Info("acceptor stopped")
			select {
			case m.acceptCh <- acceptResult{err: err}:
			case <-m.stopCh:
			}
			return
		}
		select {
		case m.acceptCh <- acceptResult{conn: conn}:
		case <-m.stopCh:
			conn.Close()
			return
		}
	}
}

// tickLoop runs one iteration of spec §4.6's loop every tickInterval
// until stopCh closes.
func (m *Master) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			m.shutdownWorkers()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Master) tick() {
	messages := m.drainOperatorMessages()
	m.admitPendingConnection()
	messages = append(messages, m.drainAsks()...)
	m.fanOut(messages)
	m.reap()
	if m.metrics != nil {
		m.metrics.RecordLoggedInUsers(len(m.bindings))
	}
}

// drainOperatorMessages implements tick step 1.
func (m *Master) drainOperatorMessages() []worker.Message {
	var out []worker.Message
	for {
		select {
		case msg := <-m.operatorMsgCh:
			out = append(out, msg)
		default:
			return out
		}
	}
}

// admitPendingConnection implements tick step 2: drain at most one
// pending accepted socket per tick, rejecting it first against the
// connection and per-IP ceilings of spec §9's supplemented limits.
func (m *Master) admitPendingConnection() {
	select {
	case res := <-m.acceptCh:
		if res.conn == nil {
			m.log.WithError(res.err).Warn("listener reported an error; no longer admitting new connections")
			return
		}

		host, _, _ := net.SplitHostPort(res.conn.RemoteAddr().String())
		if m.maxConnections > 0 && len(m.workers) >= m.maxConnections {
			m.rejectConnection(res.conn, "max_connections")
			return
		}
		if m.maxPerIP > 0 && m.perIP[host] >= m.maxPerIP {
			m.rejectConnection(res.conn, "max_connections_per_ip")
			return
		}

		w := worker.New(res.conn, m.deps)
		m.workers[w.ID()] = w
		m.perIP[host]++
		if m.metrics != nil {
			m.metrics.RecordConnection(true, "")
		}
		go w.Run()
	default:
	}
}

// rejectConnection closes a just-accepted socket before any Worker is
// built for it, the ceiling-exceeded path of spec §9's supplemented
// connection limits.
func (m *Master) rejectConnection(conn net.Conn, reason string) {
	m.log.WithField("reason", reason).WithField("peer", conn.RemoteAddr()).Warn("rejecting connection")
	_ = conn.Close()
	if m.metrics != nil {
		m.metrics.RecordConnection(false, reason)
	}
}

// drainAsks implements tick step 3: service every Worker's ask queue.
func (m *Master) drainAsks() []worker.Message {
	var messages []worker.Message
	for _, w := range m.workers {
		messages = append(messages, m.drainWorkerAsks(w)...)
	}
	return messages
}

// drainWorkerAsks services every ask currently queued for one Worker,
// without blocking when the queue is empty.
func (m *Master) drainWorkerAsks(w *worker.Worker) []worker.Message {
	var messages []worker.Message
	for {
		select {
		case ask := <-w.Asks():
			if msg, ok := m.serviceAsk(w, ask); ok {
				messages = append(messages, msg)
			}
		default:
			return messages
		}
	}
}

// serviceAsk answers one Ask and returns a message to add to this tick's
// fan-out list when the ask was a broadcast.
func (m *Master) serviceAsk(w *worker.Worker, ask *worker.Ask) (worker.Message, bool) {
	switch ask.Kind {
	case worker.AskLogin:
		return worker.Message{}, m.serviceLogin(w, ask)
	case worker.AskBroadcastMessage:
		ask.Result <- worker.AskResult{Status: protocol.StatusSuccess}
		return ask.Message, true
	default:
		ask.Result <- worker.AskResult{Status: protocol.StatusErrNoPermission}
		return worker.Message{}, false
	}
}

// serviceLogin implements spec §4.6's "user" ask: verify credentials,
// displace any prior binding, and bind the asking Worker.
//
// Open question from spec §9: the source's displacement path has a
// `continue` that skips binding the new Worker in the same tick, relying
// on the client to retry. This implementation takes the "cleaner" reading
// explicitly endorsed by spec §9: stop the displaced Worker and bind the
// new one atomically, in the same tick, in the same critical section
// (Master's single goroutine, so "atomically" is free). See DESIGN.md.
func (m *Master) serviceLogin(w *worker.Worker, ask *worker.Ask) bool {
	_, result := m.users.Authenticate(ask.UserID, ask.Password)
	switch result {
	case users.AuthUserUndefined:
		ask.Result <- worker.AskResult{Status: protocol.StatusErrUserUndefined}
		return false
	case users.AuthPasswordMismatch:
		ask.Result <- worker.AskResult{Status: protocol.StatusErrPasswordMismatch}
		return false
	}

	if prior, ok := m.bindings[ask.UserID]; ok && prior != w {
		prior.Stop()
	}
	m.bindings[ask.UserID] = w

	if m.metrics != nil {
		m.metrics.RecordAuthentication(true, ask.UserID)
	}
	ask.Result <- worker.AskResult{Status: protocol.StatusSuccess, UserID: ask.UserID}
	return false
}

// fanOut implements tick step 4 (delivery) and step 6 (tap publish).
func (m *Master) fanOut(messages []worker.Message) {
	distribute := m.deps.Permissions.DistributeMessage()
	for _, msg := range messages {
		for userID, w := range m.bindings {
			if distribute || msg.SenderID == userID || msg.SenderID == worker.SenderServer {
				w.Deliver(msg)
			}
		}
		if m.tap != nil {
			_ = m.tap.WriteString(msg.SenderID + ": " + msg.Body)
		}
	}
}

// reap implements tick step 5: drop dead Workers from workerMap and clear
// their binding slot.
func (m *Master) reap() {
	for id, w := range m.workers {
		if w.Alive() {
			continue
		}
		delete(m.workers, id)
		for userID, bound := range m.bindings {
			if bound == w {
				delete(m.bindings, userID)
			}
		}
		host, _, _ := net.SplitHostPort(w.PeerAddr())
		if m.perIP[host] > 0 {
			m.perIP[host]--
			if m.perIP[host] == 0 {
				delete(m.perIP, host)
			}
		}
	}
}

// Stop implements spec §4.6's shutdown: idempotent, safe from any
// goroutine, cascades to the acceptor and every Worker.
func (m *Master) Stop() {
	select {
	case <-m.stopCh:
		return
	default:
	}
	close(m.stopCh)
	_ = m.listener.Close()
}

// shutdownWorkers implements the graceful-drain shape of the teacher's
// Server.Shutdown: signal every Worker to stop, then wait up to
// shutdownGrace for them to actually unwind before giving up on the
// stragglers and returning anyway.
func (m *Master) shutdownWorkers() {
	for _, w := range m.workers {
		w.Stop()
	}

	grace := m.shutdownGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	deadline := time.After(grace)
	for _, w := range m.workers {
		select {
		case <-waitDone(w):
		case <-deadline:
			m.log.Warn("shutdown grace period elapsed with workers still unwinding")
			goto drainSockets
		}
	}

drainSockets:
	// Drain and close any queued-but-unserviced accepted sockets.
	for {
		select {
		case res := <-m.acceptCh:
			if res.conn != nil {
				res.conn.Close()
			}
		default:
			return
		}
	}
}

// waitDone adapts Worker.Wait (a blocking call) to a channel so
// shutdownWorkers can select on it alongside a grace-period timer.
func waitDone(w *worker.Worker) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()
	return done
}

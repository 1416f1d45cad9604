// Package discovery implements the UDP broadcast responder of spec §4.3:
// a listener on 0.0.0.0:57777 answering the literal probe "REQUIRE_SERVER"
// with "RESPONSE_SERVER_<NAME>_IP_PORT" — the angle brackets around the
// name are part of the wire format, not decoration.
package discovery

import (
	"fmt"
	"net"
	"regexp"

	"github.com/sirupsen/logrus"
)

// Port is the fixed UDP discovery port from spec §6.
const Port = 57777

// probe is the exact literal payload a discovery request must match.
const probe = "REQUIRE_SERVER"

// nameRE constrains the configured server name to spec §4.3's
// alphanumerics-and-hyphen charset.
var nameRE = regexp.MustCompile(`^[A-Za-z0-9-]*$`)

// Responder answers discovery probes until Close is called.
type Responder struct {
	conn       *net.UDPConn
	serverName string
	advertise  net.IP
	tcpPort    int
	log        *logrus.Entry
}

// New binds the UDP discovery socket. A serverName that does not satisfy
// nameRE is rejected with an error; advertiseIP is the IPv4 the
// responder reports back, and tcpPort is the server's TCP listen port.
func New(serverName string, advertiseIP net.IP, tcpPort int, log *logrus.Entry) (*Responder, error) {
	if !nameRE.MatchString(serverName) {
		return nil, fmt.Errorf("discovery: server name %q contains characters outside [A-Za-z0-9-]", serverName)
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: Port})
	if err != nil {
		return nil, fmt.Errorf("discovery: listen udp :%d: %w", Port, err)
	}
	return &Responder{
		conn:       conn,
		serverName: serverName,
		advertise:  advertiseIP.To4(),
		tcpPort:    tcpPort,
		log:        log.WithField("component", "discovery"),
	}, nil
}

// Close stops the responder, unblocking Serve.
func (r *Responder) Close() error { return r.conn.Close() }

// Serve reads datagrams until the socket is closed. Malformed probes are
// silently dropped, per spec §4.3; a read error (typically from Close)
// ends the loop without cascading to the rest of the process (spec §7).
func (r *Responder) Serve() {
	buf := make([]byte, 512)
	for {
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			r.log.WithError(err).Info("discovery responder stopped")
			return
		}
		if string(buf[:n]) != probe {
			continue
		}
		resp := fmt.Sprintf("RESPONSE_SERVER_<%s>_%s_%d", r.serverName, r.advertise.String(), r.tcpPort)
		if _, err := r.conn.WriteToUDP([]byte(resp), addr); err != nil {
			r.log.WithError(err).Warn("discovery: failed to reply")
		}
	}
}

package master

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lanhub/lanhub/internal/fsroot"
	"github.com/lanhub/lanhub/internal/metrics"
	"github.com/lanhub/lanhub/internal/permission"
	"github.com/lanhub/lanhub/internal/protocol"
	"github.com/lanhub/lanhub/internal/sink"
	"github.com/lanhub/lanhub/internal/users"
	"github.com/lanhub/lanhub/internal/worker"
)

func newTestMaster(t *testing.T) (*Master, net.Addr) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	root, err := fsroot.Open(t.TempDir())
	if err != nil {
		t.Fatalf("fsroot.Open: %v", err)
	}
	t.Cleanup(func() { _ = root.Close() })

	userTable, err := users.NewTable([]users.Record{
		{ID: "alice", Password: "secret", Perms: users.Perms{MsgDown: true, MsgUp: true, FileDown: true, FileUp: true}},
	})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	deps := worker.Deps{
		Permissions: permission.New(true),
		Users:       userTable,
		Share:       root,
		Metrics:     metrics.NopCollector{},
		Log:         logrus.NewEntry(log),
	}

	m := New(ln, deps, metrics.NopCollector{}, sink.NewUITap(8), logrus.NewEntry(log), 0, 0, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = m.Run(ctx) }()

	return m, ln.Addr()
}

func login(t *testing.T, codec *protocol.Codec, id, password string) protocol.Packet {
	t.Helper()
	req := protocol.Packet{ID: protocol.NextID(), Cmd: "login", Args: []interface{}{id, password}}
	if err := codec.WritePacket(req); err != nil {
		t.Fatalf("WritePacket: %v", err)
	}
	resp, err := codec.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	return resp
}

func TestMasterAuthenticatesAndDispatchesCommand(t *testing.T) {
	_, addr := newTestMaster(t)

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(3 * time.Second))

	codec := protocol.NewCodec(conn, 0)
	resp := login(t, codec, "alice", "secret")
	if status, _ := resp.Args[0].(float64); int(status) != protocol.StatusSuccess {
		t.Fatalf("login status = %v, want success", resp.Args[0])
	}

	req := protocol.Packet{ID: protocol.NextID(), Cmd: "getFileList", Args: []interface{}{"/"}}
	if err := codec.WritePacket(req); err != nil {
		t.Fatalf("WritePacket: %v", err)
	}
	got, err := codec.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if status, _ := got.Args[0].(float64); int(status) != protocol.StatusSuccess {
		t.Fatalf("getFileList status = %v, want success", got.Args[0])
	}
}

func TestMasterRejectsBadPassword(t *testing.T) {
	_, addr := newTestMaster(t)

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(3 * time.Second))

	codec := protocol.NewCodec(conn, 0)
	resp := login(t, codec, "alice", "wrong")
	if status, _ := resp.Args[0].(float64); int(status) != protocol.StatusErrPasswordMismatch {
		t.Fatalf("login status = %v, want ERR_PASSWORD_MISMATCH", resp.Args[0])
	}
}

func TestMasterDisplacesPriorLoginOnTick(t *testing.T) {
	_, addr := newTestMaster(t)

	firstConn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer firstConn.Close()
	firstConn.SetDeadline(time.Now().Add(3 * time.Second))
	firstCodec := protocol.NewCodec(firstConn, 0)
	if resp := login(t, firstCodec, "alice", "secret"); resp.Args[0].(float64) != protocol.StatusSuccess {
		t.Fatalf("first login failed: %v", resp.Args[0])
	}

	secondConn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer secondConn.Close()
	secondConn.SetDeadline(time.Now().Add(3 * time.Second))
	secondCodec := protocol.NewCodec(secondConn, 0)
	if resp := login(t, secondCodec, "alice", "secret"); resp.Args[0].(float64) != protocol.StatusSuccess {
		t.Fatalf("second login failed: %v", resp.Args[0])
	}

	// The first connection should be forcibly closed once the second
	// Worker displaces its binding.
	firstConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := firstConn.Read(buf); err == nil {
		t.Fatal("expected first connection to be closed after displacement")
	}
}

package worker

import (
	"time"

	"github.com/lanhub/lanhub/internal/protocol"
	"github.com/lanhub/lanhub/internal/ratelimit"
	"github.com/lanhub/lanhub/internal/transfer"
	"github.com/lanhub/lanhub/internal/users"
)

// cmdSpec is the uniform handler shape from spec §9's design note: a table
// mapping command string to a handler closure, replacing a long branch
// and making the "unknown command" default trivial.
type cmdSpec struct {
	handle     func(w *Worker, pkt protocol.Packet) (status int, payload interface{})
	globalGate func(w *Worker) bool       // nil = no global-flag gate
	userGate   func(p users.Perms) bool   // nil = no per-user gate
}

var commandTable = map[string]cmdSpec{
	"getFileList": {
		handle:     (*Worker).handleGetFileList,
		globalGate: func(w *Worker) bool { return w.deps.Permissions.AllUserGetFilelist() },
	},
	"getMessage": {
		handle:     (*Worker).handleGetMessage,
		globalGate: func(w *Worker) bool { return w.deps.Permissions.AllUserGetMessage() },
		userGate:   func(p users.Perms) bool { return p.MsgDown },
	},
	"putMessage": {
		handle:     (*Worker).handlePutMessage,
		globalGate: func(w *Worker) bool { return w.deps.Permissions.AllUserPutMessage() },
		userGate:   func(p users.Perms) bool { return p.MsgUp },
	},
	"getFile": {
		handle:     (*Worker).handleGetFile,
		globalGate: func(w *Worker) bool { return w.deps.Permissions.AllUserDownloadFile() },
		userGate:   func(p users.Perms) bool { return p.FileDown },
	},
	"putFile": {
		handle:     (*Worker).handlePutFile,
		globalGate: func(w *Worker) bool { return w.deps.Permissions.AllUserUploadFile() },
		userGate:   func(p users.Perms) bool { return p.FileUp },
	},
}

// handle dispatches one request packet to its command handler, enforcing
// the state machine and permission gate of spec §4.5.
func (w *Worker) handle(pkt protocol.Packet) {
	start := time.Now()
	_, success := w.dispatch(pkt)
	if w.deps.Metrics != nil {
		w.deps.Metrics.RecordCommand(pkt.Cmd, success, time.Since(start))
	}
}

func (w *Worker) dispatch(pkt protocol.Packet) (status int, success bool) {
	if pkt.Cmd == "login" {
		return w.handleLogin(pkt)
	}

	if !w.loggedIn.Load() {
		w.reply(pkt.ID, protocol.StatusErrNoLogin, nil)
		return protocol.StatusErrNoLogin, false
	}

	spec, ok := commandTable[pkt.Cmd]
	if !ok {
		w.reply(pkt.ID, protocol.StatusErrUndefCmd, nil)
		return protocol.StatusErrUndefCmd, false
	}

	// Global flag precedes per-user flag; either failing is
	// ERR_NO_PERMISSION (spec §4.5 "Permission gate").
	if spec.globalGate != nil && !spec.globalGate(w) {
		if pkt.Cmd == "getMessage" {
			w.inbox.discard()
		}
		w.reply(pkt.ID, protocol.StatusErrNoPermission, nil)
		return protocol.StatusErrNoPermission, false
	}
	if spec.userGate != nil && !spec.userGate(w.userRec.Perms) {
		if pkt.Cmd == "getMessage" {
			w.inbox.discard()
		}
		w.reply(pkt.ID, protocol.StatusErrNoPermission, nil)
		return protocol.StatusErrNoPermission, false
	}

	s, payload := spec.handle(w, pkt)
	w.reply(pkt.ID, s, payload)
	return s, s == protocol.StatusSuccess
}

// reply writes a correlated response packet via the Sender queue.
func (w *Worker) reply(requestID uint64, status int, payload interface{}) {
	p := protocol.NewResponse(requestID, status, payload)
	select {
	case w.respCh <- &p:
	case <-w.stopCh:
	}
}

// handleLogin implements spec §4.5's login protocol: the request is not
// answered directly, it is forwarded to Master as AskLogin and the Worker
// blocks on the completion signal.
func (w *Worker) handleLogin(pkt protocol.Packet) (int, bool) {
	if w.loggedIn.Load() {
		w.reply(pkt.ID, protocol.StatusErrUserRelogin, nil)
		return protocol.StatusErrUserRelogin, false
	}

	id, ok1 := argString(pkt.Args, 0)
	pass, ok2 := argString(pkt.Args, 1)
	if !ok1 || !ok2 {
		w.reply(pkt.ID, protocol.StatusErrUserUndefined, nil)
		return protocol.StatusErrUserUndefined, false
	}

	ask := &Ask{Kind: AskLogin, UserID: id, Password: pass, Result: make(chan AskResult, 1)}
	w.askCh <- ask
	res := <-ask.Result

	if res.Status != protocol.StatusSuccess {
		w.reply(pkt.ID, res.Status, nil)
		return res.Status, false
	}

	rec, found := w.deps.Users.Lookup(res.UserID)
	if !found {
		// The user table cannot change after load, so this would mean
		// Master answered success for an id it cannot itself find —
		// treat defensively as undefined rather than panic.
		w.reply(pkt.ID, protocol.StatusErrUserUndefined, nil)
		return protocol.StatusErrUserUndefined, false
	}

	w.userID = res.UserID
	w.userRec = rec
	w.loggedIn.Store(true)
	w.state.Store(int32(Authenticated))
	w.reply(pkt.ID, protocol.StatusSuccess, nil)
	return protocol.StatusSuccess, true
}

// handleGetFileList implements spec §4.5 getFileList: returns
// [[dirNames], [(name, suffix, size, mtime)]] for the resolved directory.
func (w *Worker) handleGetFileList(pkt protocol.Packet) (int, interface{}) {
	relArg, ok := argString(pkt.Args, 0)
	if !ok {
		relArg = "/"
	}
	rel, err := w.deps.Share.Resolve(relArg)
	if err != nil {
		return protocol.StatusErrDirNotExist, nil
	}
	entries, err := w.deps.Share.ReadDir(rel)
	if err != nil {
		return protocol.StatusErrDirNotExist, nil
	}

	var dirNames []string
	type fileEntry struct {
		Name   string `json:"name"`
		Suffix string `json:"suffix"`
		Size   int64  `json:"size"`
		MTime  int64  `json:"mtime"`
	}
	var files []fileEntry

	for _, e := range entries {
		if e.IsDir() {
			dirNames = append(dirNames, e.Name())
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileEntry{
			Name:   e.Name(),
			Suffix: suffixOf(e.Name()),
			Size:   info.Size(),
			MTime:  info.ModTime().Unix(),
		})
	}
	if dirNames == nil {
		dirNames = []string{}
	}
	if files == nil {
		files = []fileEntry{}
	}
	return protocol.StatusSuccess, []interface{}{dirNames, files}
}

// handleGetMessage implements spec §4.5 getMessage: drains the inbox.
func (w *Worker) handleGetMessage(pkt protocol.Packet) (int, interface{}) {
	msgs := w.inbox.drain()
	if msgs == nil {
		msgs = []Message{}
	}
	return protocol.StatusSuccess, msgs
}

// handlePutMessage implements spec §4.5 putMessage: forwards to Master as
// AskBroadcastMessage.
func (w *Worker) handlePutMessage(pkt protocol.Packet) (int, interface{}) {
	body, ok := argString(pkt.Args, 0)
	if !ok {
		body = ""
	}
	msg := Message{SenderID: w.userID, Time: time.Now(), Body: body}
	ask := &Ask{Kind: AskBroadcastMessage, Message: msg, Result: make(chan AskResult, 1)}
	w.askCh <- ask
	res := <-ask.Result
	return res.Status, nil
}

// handleGetFile implements spec §4.5/§4.7 getFile: opens a file-transfer
// endpoint in download direction and returns its port and the file size.
func (w *Worker) handleGetFile(pkt protocol.Packet) (int, interface{}) {
	relArg, ok := argString(pkt.Args, 0)
	if !ok {
		return protocol.StatusErrFileNotExist, nil
	}
	startOffset, _ := argInt64(pkt.Args, 1)

	rel, err := w.deps.Share.Resolve(relArg)
	if err != nil {
		return protocol.StatusErrFileNotExist, nil
	}
	info, err := w.deps.Share.Stat(rel)
	if err != nil || info.IsDir() {
		return protocol.StatusErrFileNotExist, nil
	}

	limiter := ratelimit.New(w.deps.DownloadBpsCap)
	ep, port, err := transfer.New(transfer.Download, w.deps.Share, rel, info.Size(), startOffset, w.peerIP, limiter, w.log, w.deps.Metrics)
	if err != nil {
		w.log.WithError(err).Warn("getFile: failed to open transfer endpoint")
		return protocol.StatusErrFileNotExist, nil
	}
	go ep.Serve()

	return protocol.StatusSuccess, []interface{}{port, info.Size()}
}

// handlePutFile implements spec §4.5/§4.7 putFile: refuses up front if
// the target already exists, otherwise opens an upload endpoint.
func (w *Worker) handlePutFile(pkt protocol.Packet) (int, interface{}) {
	relArg, ok := argString(pkt.Args, 0)
	if !ok {
		return protocol.StatusErrFileAlreadyExist, nil
	}
	size, _ := argInt64(pkt.Args, 1)

	rel, err := w.deps.Share.Resolve(relArg)
	if err != nil {
		// Escaping the root on upload is a permission failure, not a
		// not-found one, per spec §4.5 "File path resolution".
		return protocol.StatusErrNoPermission, nil
	}
	if w.deps.Share.Exists(rel) {
		return protocol.StatusErrFileAlreadyExist, nil
	}
	if w.deps.UploadCapBytes > 0 && size > w.deps.UploadCapBytes {
		return protocol.StatusErrNoPermission, nil
	}

	limiter := ratelimit.New(w.deps.UploadBpsCap)
	ep, port, err := transfer.New(transfer.Upload, w.deps.Share, rel, size, 0, w.peerIP, limiter, w.log, w.deps.Metrics)
	if err != nil {
		w.log.WithError(err).Warn("putFile: failed to open transfer endpoint")
		return protocol.StatusErrFileAlreadyExist, nil
	}
	go ep.Serve()

	return protocol.StatusSuccess, []interface{}{port}
}

package worker

// AskKind enumerates the typed requests a Worker can ask Master to
// arbitrate, per spec §4.5/§4.6. Workers never call Master methods
// directly — every cross-goroutine request to Master's authoritative
// state travels on an Ask, resolved via the Worker's own ask queue.
type AskKind int

const (
	AskLogin AskKind = iota
	AskBroadcastMessage
)

// Ask is one synchronous request from a Worker to Master, carried on the
// Worker's ask queue with a one-shot completion channel (spec GLOSSARY
// "Ask").
type Ask struct {
	Kind AskKind

	// Populated for AskLogin.
	UserID   string
	Password string

	// Populated for AskBroadcastMessage.
	Message Message

	// Result is buffered (capacity 1) so Master's tick never blocks
	// delivering an answer, and the asking goroutine blocks only on its
	// own receive.
	Result chan AskResult
}

// AskResult is Master's answer to an Ask.
type AskResult struct {
	Status int // protocol status code, e.g. protocol.StatusSuccess

	// UserID is populated on a successful AskLogin.
	UserID string
}

package worker

import "time"

// SenderServer is the sentinel senderId denoting an operator-originated
// broadcast, per spec §3.
const SenderServer = "SERVER"

// Message is the (senderId, time, body) triple of spec §3. Messages are
// never persisted; they live only in a Worker's inbox until drained by
// getMessage.
type Message struct {
	SenderID string    `json:"senderId"`
	Time     time.Time `json:"time"`
	Body     string    `json:"body"`
}

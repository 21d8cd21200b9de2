package domain

import "time"

// Message is one inbound item from the message stream, either a fresh post
// or a subsequent edit of one.
type Message struct {
	ID      int64
	Text    string
	ReplyTo *int64 // id of the message this one replies to, nil if none
	Time    time.Time
	Edited  bool
}

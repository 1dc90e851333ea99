// Package events publishes session lifecycle events to an external stream.
// The producer buffers pending events so a slow writer never blocks the
// dispatch that produced the event.
package events

import (
	"sync"
)

const (
	SessionMessageKind  = "archivekit.conversion.events.session"
	ProgressMessageKind = "archivekit.conversion.events.progress"
	JournalMessageKind  = "archivekit.conversion.events.journal"
	defaultSource       = "archivekit.conversion.assistant"
)

type message struct {
	Kind string
	Data []byte
}

// queue is a slice-backed FIFO of pending events.
type queue struct {
	lock    sync.Mutex
	pending []*message
}

func newQueue() *queue {
	return &queue{}
}

func (q *queue) PushBack(msg *message) {
	q.lock.Lock()
	defer q.lock.Unlock()
	q.pending = append(q.pending, msg)
}

func (q *queue) Pop() *message {
	q.lock.Lock()
	defer q.lock.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	msg := q.pending[0]
	q.pending = q.pending[1:]
	return msg
}

func (q *queue) Size() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.pending)
}

package server

import (
	"time"

	"github.com/sasha-s/go-deadlock"
)

// logEntry is one buffered log line.
type logEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
}

// logSink receives log lines, history and live alike.
type logSink func(line string)

type logBuffer struct {
	entries []logEntry
	sinks   map[uint64]logSink
	cancel  func()
}

// logBuffers keeps a bounded per-container replay buffer, shared by
// every session attached to the same container. A single follow stream
// per buffer is its only writer; sessions subscribe for the live
// fan-out. The buffer and its stream are dropped when the last
// subscriber detaches.
type logBuffers struct {
	mu          deadlock.Mutex
	capacity    int
	nextSink    uint64
	byContainer map[string]*logBuffer
}

func newLogBuffers(capacity int) *logBuffers {
	if capacity < 1 {
		capacity = 1000
	}
	return &logBuffers{
		capacity:    capacity,
		byContainer: map[string]*logBuffer{},
	}
}

// subscribe attaches a sink to the container's buffer, creating the
// buffer on first use, and reports whether it is brand new (so the
// caller knows to start the follow stream feeding it). The buffered
// history is replayed through the sink before any live line can reach
// it, so a session always sees history first.
func (b *logBuffers) subscribe(containerID string, sink logSink) (id uint64, fresh bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, ok := b.byContainer[containerID]
	if !ok {
		buf = &logBuffer{sinks: map[uint64]logSink{}}
		b.byContainer[containerID] = buf
	}

	for _, entry := range buf.entries {
		sink(entry.Content)
	}

	b.nextSink++
	id = b.nextSink
	buf.sinks[id] = sink
	return id, !ok
}

// setCancel stores the follow stream's stop hook, called once the last
// subscriber detaches.
func (b *logBuffers) setCancel(containerID string, cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if buf, ok := b.byContainer[containerID]; ok {
		buf.cancel = cancel
		return
	}
	// the last subscriber left while the stream was still starting
	cancel()
}

// publish records one line, evicting the oldest once the bound is hit,
// and hands it to every subscribed sink.
func (b *logBuffers) publish(containerID, content string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, ok := b.byContainer[containerID]
	if !ok {
		return
	}
	buf.entries = append(buf.entries, logEntry{Timestamp: time.Now(), Content: content})
	if overflow := len(buf.entries) - b.capacity; overflow > 0 {
		buf.entries = append([]logEntry(nil), buf.entries[overflow:]...)
	}
	for _, sink := range buf.sinks {
		sink(content)
	}
}

// unsubscribe detaches one sink; the last detach stops the follow
// stream and drops the buffer.
func (b *logBuffers) unsubscribe(containerID string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, ok := b.byContainer[containerID]
	if !ok {
		return
	}
	delete(buf.sinks, id)
	if len(buf.sinks) > 0 {
		return
	}
	delete(b.byContainer, containerID)
	if buf.cancel != nil {
		buf.cancel()
	}
}

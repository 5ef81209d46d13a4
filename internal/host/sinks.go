package host

import (
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"

	"github.com/anstrom/pathorama/internal/logging"
)

// ChannelSink buffers batches in a bounded channel. Publish never blocks: when
// the buffer is full the batch is dropped and counted.
type ChannelSink struct {
	ch      chan RowBatch
	dropped atomic.Int64
	onDrop  func()
}

// NewChannelSink creates a ChannelSink holding up to size batches.
func NewChannelSink(size int) *ChannelSink {
	if size <= 0 {
		size = 1
	}
	return &ChannelSink{ch: make(chan RowBatch, size)}
}

// OnDrop registers a callback invoked for every dropped batch.
func (s *ChannelSink) OnDrop(fn func()) *ChannelSink {
	s.onDrop = fn
	return s
}

// Publish implements Sink.
func (s *ChannelSink) Publish(batch RowBatch) {
	select {
	case s.ch <- batch:
	default:
		s.dropped.Add(1)
		if s.onDrop != nil {
			s.onDrop()
		}
	}
}

// C returns the receive side of the buffer.
func (s *ChannelSink) C() <-chan RowBatch {
	return s.ch
}

// Dropped returns the number of batches dropped so far.
func (s *ChannelSink) Dropped() int64 {
	return s.dropped.Load()
}

// JSONLinesSink writes every row as one JSON document per line.
type JSONLinesSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLinesSink creates a sink writing to w.
func NewJSONLinesSink(w io.Writer) *JSONLinesSink {
	return &JSONLinesSink{enc: json.NewEncoder(w)}
}

// Publish implements Sink.
func (s *JSONLinesSink) Publish(batch RowBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range batch {
		if err := s.enc.Encode(row); err != nil {
			logging.Error("Failed to write result row", "error", err)
			return
		}
	}
}

// MultiSink fans each batch out to every wrapped sink in order.
type MultiSink []Sink

// Publish implements Sink.
func (m MultiSink) Publish(batch RowBatch) {
	for _, s := range m {
		if s != nil {
			s.Publish(batch)
		}
	}
}

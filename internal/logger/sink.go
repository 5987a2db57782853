package logger

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrSinkFull is returned by Emit when the queue has no free slot.
	ErrSinkFull = errors.New("log sink queue full")
	// ErrSinkClosed is returned by Emit after Close.
	ErrSinkClosed = errors.New("log sink closed")
)

// Sink accepts structured records. Implementations must not block the caller.
type Sink interface {
	Emit(msg string, fields logrus.Fields) error
}

// NopSink discards every record.
type NopSink struct{}

// Emit implements Sink.
func (NopSink) Emit(string, logrus.Fields) error { return nil }

// AsyncSink writes newline-delimited JSON records to an io.Writer from a
// single background goroutine. Emit only enqueues.
type AsyncSink struct {
	out       io.Writer
	formatter *logrus.JSONFormatter
	owner     *logrus.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan *logrus.Entry
	done   chan struct{}
}

// NewAsyncSink creates a sink with a queue of the given size and starts its writer.
func NewAsyncSink(out io.Writer, buffer int) *AsyncSink {
	if buffer <= 0 {
		buffer = 1024
	}
	s := &AsyncSink{
		out:       out,
		formatter: &logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano},
		owner:     logrus.New(),
		queue:     make(chan *logrus.Entry, buffer),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

// Emit queues a record without waiting for I/O.
func (s *AsyncSink) Emit(msg string, fields logrus.Fields) error {
	entry := logrus.NewEntry(s.owner)
	entry.Time = time.Now()
	entry.Level = logrus.InfoLevel
	entry.Message = msg
	entry.Data = make(logrus.Fields, len(fields))
	for k, v := range fields {
		entry.Data[k] = v
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.queue <- entry:
		return nil
	default:
		return ErrSinkFull
	}
}

// Close stops accepting records and waits for the queue to drain.
func (s *AsyncSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	<-s.done
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for entry := range s.queue {
		b, err := s.formatter.Format(entry)
		if err != nil {
			Log().WithError(err).Warn("log sink: format record")
			continue
		}
		if _, err := s.out.Write(b); err != nil {
			Log().WithError(err).Warn("log sink: write record")
		}
	}
}

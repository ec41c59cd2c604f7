package asr

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/scholarmaster/campus-attendance/pkg/logger"
)

// ErrQueueFull is returned by Submit when the scribe is saturated.
var ErrQueueFull = errors.New("asr: audio queue full")

// Chunk is one uploaded audio segment.
type Chunk struct {
	Audio    []byte
	Filename string
	Zone     string
	Received time.Time
}

// Transcriber converts audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (Transcript, error)
}

// Sink receives finished transcript text.
type Sink interface {
	Push(ctx context.Context, text string) error
}

// Scribe drains queued audio chunks through the transcriber into the sink.
// Submit never blocks; Run owns the worker goroutines.
type Scribe struct {
	transcriber Transcriber
	sink        Sink
	queue       chan Chunk
	workers     int
	timeout     time.Duration
	log         *logger.Logger

	wg sync.WaitGroup
}

// NewScribe creates a scribe with a queue of queueSize chunks.
func NewScribe(t Transcriber, sink Sink, queueSize, workers int, log *logger.Logger) *Scribe {
	if queueSize <= 0 {
		queueSize = 32
	}
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = logger.Default()
	}
	return &Scribe{
		transcriber: t,
		sink:        sink,
		queue:       make(chan Chunk, queueSize),
		workers:     workers,
		timeout:     2 * time.Minute,
		log:         log.With(logger.Component("scribe")),
	}
}

// Submit enqueues a chunk.
func (s *Scribe) Submit(c Chunk) error {
	if c.Received.IsZero() {
		c.Received = time.Now()
	}
	select {
	case s.queue <- c:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued chunks.
func (s *Scribe) Pending() int {
	return len(s.queue)
}

// Run processes chunks until ctx is cancelled, then waits for in-flight work.
func (s *Scribe) Run(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	<-ctx.Done()
	s.wg.Wait()
}

func (s *Scribe) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-s.queue:
			s.process(ctx, c)
		}
	}
}

func (s *Scribe) process(ctx context.Context, c Chunk) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	tr, err := s.transcriber.Transcribe(ctx, c.Audio, c.Filename)
	if err != nil {
		s.log.Error("transcription failed", logger.Err(err), logger.Zone(c.Zone))
		return
	}

	text := tr.Text()
	if text == "" {
		return
	}
	if err := s.sink.Push(ctx, text); err != nil {
		s.log.Error("buffer transcript", logger.Err(err), logger.Zone(c.Zone))
		return
	}

	s.log.Debug("transcript buffered",
		logger.Zone(c.Zone),
		logger.Int("chars", len(text)),
		logger.Latency(time.Since(start)),
	)
}

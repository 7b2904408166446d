// Package worker provides an asynchronous worker pool for generating and
// indexing fragment embeddings using the provided embeddings.Embedder and
// vector.Driver.
//
// The pool decouples embedding generation from the ingest hot path so that
// storing a fragment never waits on an embedding model.
package worker

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/embeddings"
	"github.com/papercomputeco/engram/pkg/vector"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	// Hash identifies the stored entry the embedding belongs to.
	Hash string

	// Text is the content to embed.
	Text string
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Vectors is the vector store receiving indexed embeddings.
	Vectors vector.Driver

	// Embedder generates text embeddings.
	Embedder embeddings.Embedder

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool processes embedding jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Vectors == nil {
		return nil, fmt.Errorf("vector driver is required")
	}
	if c.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("embedding job queued",
			zap.String("hash", job.Hash),
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			zap.String("hash", job.Hash),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after ingestion has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("embedding worker stopped", zap.Uint("worker_id", id))
}

// processJob embeds one fragment's content and indexes the result.
// Errors are logged but not surfaced; a missing embedding only degrades
// historical retrieval for that entry.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	if job.Text == "" {
		p.logger.Debug("skipping embedding for entry with no text content",
			zap.String("hash", job.Hash),
		)
		return
	}

	embedding, err := p.config.Embedder.Embed(ctx, job.Text)
	if err != nil {
		p.logger.Warn("failed to generate embedding",
			zap.String("hash", job.Hash),
			zap.Error(err),
		)
		return
	}

	doc := vector.Document{
		ID:        job.Hash,
		Hash:      job.Hash,
		Embedding: embedding,
	}

	if err := p.config.Vectors.Add(ctx, []vector.Document{doc}); err != nil {
		p.logger.Warn("failed to store embedding",
			zap.String("hash", job.Hash),
			zap.Error(err),
		)
		return
	}

	p.logger.Debug("stored embedding",
		zap.String("hash", job.Hash),
		zap.Int("embedding_dim", len(embedding)),
	)
}

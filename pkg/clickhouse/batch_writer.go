package clickhouse

import (
	"context"
	"sync"
	"time"

	"optibooking/pkg/logger"
)

// FlushFunc performs the actual INSERT of one batch
type FlushFunc[T any] func(ctx context.Context, batch []T) error

// BatchWriter accumulates items in memory and flushes them to ClickHouse in
// batches; single-row inserts are expensive there. A failed batch is dropped.
type BatchWriter[T any] struct {
	flushFunc FlushFunc[T]
	log       *logger.Logger

	mu        sync.Mutex
	buffer    []T
	lastFlush time.Time
	running   bool
	flushed   uint64
	dropped   uint64

	maxBatchSize int
	maxAge       time.Duration
	tableName    string

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// BatchWriterConfig contains configuration for BatchWriter
type BatchWriterConfig[T any] struct {
	FlushFunc    FlushFunc[T]
	TableName    string
	MaxBatchSize int           // Default: 500
	MaxAge       time.Duration // Default: 5s
	Logger       *logger.Logger
}

// NewBatchWriter creates a new batch writer
func NewBatchWriter[T any](cfg BatchWriterConfig[T]) *BatchWriter[T] {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 500
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Get()
	}

	return &BatchWriter[T]{
		flushFunc:    cfg.FlushFunc,
		buffer:       make([]T, 0, cfg.MaxBatchSize),
		maxBatchSize: cfg.MaxBatchSize,
		maxAge:       cfg.MaxAge,
		tableName:    cfg.TableName,
		lastFlush:    time.Now(),
		stopCh:       make(chan struct{}),
		log:          cfg.Logger.With("component", "batch_writer", "table", cfg.TableName),
	}
}

// Start begins the background flush loop
func (bw *BatchWriter[T]) Start(ctx context.Context) {
	bw.mu.Lock()
	if bw.running {
		bw.mu.Unlock()
		return
	}
	bw.running = true
	bw.mu.Unlock()

	bw.wg.Add(1)
	go bw.flushLoop(ctx)

	bw.log.Infow("BatchWriter started", "max_batch_size", bw.maxBatchSize, "max_age", bw.maxAge)
}

// Add buffers an item and flushes synchronously once the batch is full
func (bw *BatchWriter[T]) Add(ctx context.Context, item T) error {
	bw.mu.Lock()
	bw.buffer = append(bw.buffer, item)
	full := len(bw.buffer) >= bw.maxBatchSize
	bw.mu.Unlock()

	if full {
		return bw.Flush(ctx)
	}
	return nil
}

// Flush writes all buffered items
func (bw *BatchWriter[T]) Flush(ctx context.Context) error {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return nil
	}
	batch := bw.buffer
	bw.buffer = make([]T, 0, bw.maxBatchSize)
	bw.lastFlush = time.Now()
	bw.mu.Unlock()

	// outside the lock so Add never waits on I/O
	start := time.Now()
	err := bw.flushFunc(ctx, batch)

	bw.mu.Lock()
	if err != nil {
		bw.dropped += uint64(len(batch))
	} else {
		bw.flushed += uint64(len(batch))
	}
	bw.mu.Unlock()

	if err != nil {
		bw.log.Errorw("Failed to flush batch", "items", len(batch), "error", err, "took", time.Since(start))
		return err
	}

	bw.log.Debugw("Flushed batch", "items", len(batch), "took", time.Since(start))
	return nil
}

func (bw *BatchWriter[T]) flushLoop(ctx context.Context) {
	defer bw.wg.Done()

	ticker := time.NewTicker(bw.maxAge)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			bw.finalFlush(ctx)
			return
		case <-bw.stopCh:
			bw.finalFlush(ctx)
			return
		case <-ticker.C:
			if err := bw.Flush(ctx); err != nil {
				bw.log.Warnw("Periodic flush failed", "error", err)
			}
		}
	}
}

func (bw *BatchWriter[T]) finalFlush(ctx context.Context) {
	if err := bw.Flush(context.WithoutCancel(ctx)); err != nil {
		bw.log.Errorw("Final flush failed", "error", err)
	}
}

// Stop flushes the remaining items and waits for the loop to exit
func (bw *BatchWriter[T]) Stop(ctx context.Context) error {
	bw.mu.Lock()
	if !bw.running {
		bw.mu.Unlock()
		return nil
	}
	bw.running = false
	bw.mu.Unlock()

	close(bw.stopCh)

	done := make(chan struct{})
	go func() {
		bw.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		bw.log.Info("BatchWriter stopped gracefully")
		return nil
	case <-ctx.Done():
		bw.log.Warn("BatchWriter stop timed out")
		return ctx.Err()
	}
}

// BatchWriterStats is a point-in-time view for monitoring
type BatchWriterStats struct {
	BufferSize   int
	LastFlushAge time.Duration
	Flushed      uint64
	Dropped      uint64
	Running      bool
}

// Stats returns current statistics
func (bw *BatchWriter[T]) Stats() BatchWriterStats {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	return BatchWriterStats{
		BufferSize:   len(bw.buffer),
		LastFlushAge: time.Since(bw.lastFlush),
		Flushed:      bw.flushed,
		Dropped:      bw.dropped,
		Running:      bw.running,
	}
}

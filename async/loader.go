package async

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/mtoivainen/latentreach/nn"
)

// Config holds configuration for the prefetching loader
type Config struct {
	BatchSize     int   // Size of each batch
	Shuffle       bool  // Reshuffle sample order every epoch
	Workers       int   // Number of background workers (default: 2)
	PrefetchDepth int   // Number of batches buffered ahead (default: 3)
	Seed          int64 // Shuffle seed (0 = fixed default)
}

// Loader assembles batches on background workers so the training loop
// never waits on sample loading. It yields one epoch per Reset; batches
// arrive in completion order, not index order.
type Loader struct {
	dataset nn.Dataset
	config  Config

	mutex    sync.Mutex
	run      *epochRun
	rng      *rand.Rand
	produced uint64
}

// epochRun is the pipeline state for a single epoch
type epochRun struct {
	jobs    chan []int
	results chan batchResult
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type batchResult struct {
	batch *nn.Batch
	err   error
}

// NewLoader creates a prefetching loader over the dataset
func NewLoader(dataset nn.Dataset, config Config) (*Loader, error) {
	if dataset == nil {
		return nil, fmt.Errorf("dataset cannot be nil")
	}
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", config.BatchSize)
	}

	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.PrefetchDepth <= 0 {
		config.PrefetchDepth = 3
	}

	return &Loader{
		dataset: dataset,
		config:  config,
		rng:     rand.New(rand.NewSource(config.Seed)),
	}, nil
}

// Len returns the number of batches in an epoch
func (l *Loader) Len() int {
	return (l.dataset.Len() + l.config.BatchSize - 1) / l.config.BatchSize
}

// Reset starts a new epoch. The previous epoch's workers are stopped
// before the new pipeline spins up.
func (l *Loader) Reset() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.stopLocked()

	indices := make([]int, l.dataset.Len())
	for i := range indices {
		indices[i] = i
	}
	if l.config.Shuffle {
		l.rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &epochRun{
		jobs:    make(chan []int, l.Len()),
		results: make(chan batchResult, l.config.PrefetchDepth),
		ctx:     ctx,
		cancel:  cancel,
	}

	for start := 0; start < len(indices); start += l.config.BatchSize {
		end := start + l.config.BatchSize
		if end > len(indices) {
			end = len(indices)
		}
		run.jobs <- indices[start:end]
	}
	close(run.jobs)

	for i := 0; i < l.config.Workers; i++ {
		run.wg.Add(1)
		go l.worker(run)
	}

	// Close the results channel once every job has been consumed, so
	// Next sees a clean end of epoch
	go func() {
		run.wg.Wait()
		close(run.results)
	}()

	l.run = run
}

// Next returns the next ready batch, blocking until a worker delivers
// one. It returns (nil, nil) once the epoch is exhausted.
func (l *Loader) Next() (*nn.Batch, error) {
	l.mutex.Lock()
	if l.run == nil {
		l.mutex.Unlock()
		l.Reset()
		l.mutex.Lock()
	}
	run := l.run
	l.mutex.Unlock()

	result, ok := <-run.results
	if !ok {
		return nil, nil // End of epoch
	}
	if result.err != nil {
		run.cancel()
		return nil, fmt.Errorf("batch loading failed: %v", result.err)
	}

	l.mutex.Lock()
	l.produced++
	l.mutex.Unlock()

	return result.batch, nil
}

// Stop shuts down the current epoch's workers. The loader can be reused
// afterwards with Reset.
func (l *Loader) Stop() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.stopLocked()
}

func (l *Loader) stopLocked() {
	if l.run == nil {
		return
	}
	l.run.cancel()
	l.run.wg.Wait()
	// Drain so blocked workers have exited before the run is dropped
	for range l.run.results {
	}
	l.run = nil
}

// worker pulls index slices off the job queue and assembles batches
func (l *Loader) worker(run *epochRun) {
	defer run.wg.Done()

	for {
		select {
		case <-run.ctx.Done():
			return
		case indices, ok := <-run.jobs:
			if !ok {
				return
			}

			batch, err := nn.LoadBatch(l.dataset, indices)

			select {
			case run.results <- batchResult{batch: batch, err: err}:
			case <-run.ctx.Done():
				return
			}
		}
	}
}

// Stats returns statistics about the loader's pipeline
func (l *Loader) Stats() LoaderStats {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	stats := LoaderStats{
		BatchesProduced: l.produced,
		Workers:         l.config.Workers,
		QueueCapacity:   l.config.PrefetchDepth,
	}
	if l.run != nil {
		stats.IsRunning = true
		stats.QueuedBatches = len(l.run.results)
	}
	return stats
}

// LoaderStats provides statistics about the loader
type LoaderStats struct {
	IsRunning       bool
	BatchesProduced uint64
	QueuedBatches   int
	QueueCapacity   int
	Workers         int
}

// Package runtime implements batch inference over histonet classifiers.
//
// The Engine owns an immutable classifier and splits incoming histograms into
// chunks of BatchSize rows. Chunks are staged in pooled, cache-aligned input
// buffers and run on a bounded set of worker goroutines. Predictions are
// returned in input order.
//
// Key components:
//   - Engine: execution coordinator with a read-only classifier
//   - BufferPool: reusable staging buffers for chunk inputs
//   - ExecutionStats: execution counters and latency tracking
//
// Execution model:
//  1. Validate every histogram against the classifier's bin count
//  2. Stage each chunk in a pooled (batch, bins) buffer
//  3. Run chunks in parallel, at most Workers at a time
//  4. Decode logits into predictions and collect statistics
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/errgroup"

	"github.com/sbl8/histonet/core"
	"github.com/sbl8/histonet/kernels"
	"github.com/sbl8/histonet/model"
)

// ErrShapeMismatch is returned when an input histogram does not have the
// classifier's bin count.
var ErrShapeMismatch = core.ErrShapeMismatch

// ErrNoInput is returned by Execute for an empty batch.
var ErrNoInput = errors.New("no histograms to execute")

// Engine runs a classifier over batches of histograms.
type Engine struct {
	clf    model.Classifier
	labels []string
	opts   EngineOptions
	bufs   *BufferPool
	stats  ExecutionStats
	mu     sync.RWMutex
}

// EngineOptions configures engine behavior
type EngineOptions struct {
	Workers     int  `yaml:"workers"`
	BatchSize   int  `yaml:"batch_size"`
	EnableStats bool `yaml:"-"`
}

// ExecutionStats tracks runtime performance metrics
type ExecutionStats struct {
	TotalExecutions int64         `json:"total_executions" yaml:"total_executions"`
	TotalSamples    int64         `json:"total_samples" yaml:"total_samples"`
	TotalChunks     int64         `json:"total_chunks" yaml:"total_chunks"`
	Failures        int64         `json:"failures" yaml:"failures"`
	AverageLatency  time.Duration `json:"average_latency" yaml:"average_latency"`
}

// Result is one streamed prediction. Index is the position of the sample in
// the input stream.
type Result struct {
	Index      int
	Prediction model.Prediction
}

// DefaultEngineOptions provides sensible runtime defaults
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		Workers:     runtime.NumCPU(),
		BatchSize:   kernels.BatchSize(),
		EnableStats: true,
	}
}

// NewEngine creates an engine for clf. A nil opts selects
// DefaultEngineOptions. Otherwise zero Workers and BatchSize fall back to
// the defaults and EnableStats is used as given.
func NewEngine(clf model.Classifier, opts *EngineOptions) (*Engine, error) {
	if clf == nil {
		return nil, errors.New("classifier required")
	}
	o := DefaultEngineOptions()
	if opts != nil {
		if opts.Workers < 0 || opts.BatchSize < 0 {
			return nil, fmt.Errorf("invalid engine options: workers=%d batch_size=%d", opts.Workers, opts.BatchSize)
		}
		if opts.Workers > 0 {
			o.Workers = opts.Workers
		}
		if opts.BatchSize > 0 {
			o.BatchSize = opts.BatchSize
		}
		o.EnableStats = opts.EnableStats
	}

	e := &Engine{
		clf:  clf,
		opts: o,
		bufs: NewBufferPool(o.Workers, o.BatchSize*clf.NumBins()),
	}
	slog.Debug("engine created",
		"architecture", clf.Architecture(),
		"bins", clf.NumBins(),
		"workers", o.Workers,
		"batch_size", o.BatchSize)
	return e, nil
}

// Classifier returns the engine's underlying classifier.
func (e *Engine) Classifier() model.Classifier {
	return e.clf
}

// Options returns the resolved engine options.
func (e *Engine) Options() EngineOptions {
	return e.opts
}

// SetLabels names the classifier outputs. A nil slice clears the labels.
func (e *Engine) SetLabels(labels []string) error {
	if labels != nil && len(labels) != e.clf.NumClasses() {
		return fmt.Errorf("%d labels for %d classes", len(labels), e.clf.NumClasses())
	}
	e.mu.Lock()
	e.labels = labels
	e.mu.Unlock()
	return nil
}

func (e *Engine) checkSample(i int, h []float32) error {
	if len(h) != e.clf.NumBins() {
		return fmt.Errorf("histogram %d: %w: %d bins, classifier expects %d",
			i, ErrShapeMismatch, len(h), e.clf.NumBins())
	}
	return nil
}

// Execute classifies histograms and returns one prediction per input, in
// input order.
func (e *Engine) Execute(ctx context.Context, histograms [][]float32) ([]model.Prediction, error) {
	if len(histograms) == 0 {
		return nil, ErrNoInput
	}
	for i, h := range histograms {
		if err := e.checkSample(i, h); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	preds := make([]model.Prediction, len(histograms))
	p := pool.New().
		WithMaxGoroutines(e.opts.Workers).
		WithErrors().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()

	chunks := 0
	for lo := 0; lo < len(histograms); lo += e.opts.BatchSize {
		hi := min(lo+e.opts.BatchSize, len(histograms))
		chunks++
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := e.runChunk(histograms[lo:hi])
			if err != nil {
				return fmt.Errorf("chunk [%d:%d]: %w", lo, hi, err)
			}
			copy(preds[lo:hi], out)
			return nil
		})
	}

	err := p.Wait()
	e.updateExecutionStats(start, len(histograms), chunks, err)
	if err != nil {
		return nil, err
	}
	return preds, nil
}

// ExecuteTensor classifies a (batch, bins) tensor.
func (e *Engine) ExecuteTensor(ctx context.Context, x *core.Tensor) ([]model.Prediction, error) {
	if err := x.ExpectShape(-1, e.clf.NumBins()); err != nil {
		return nil, err
	}
	rows := make([][]float32, x.Shape[0])
	for i := range rows {
		rows[i] = x.Row(i)
	}
	return e.Execute(ctx, rows)
}

// ExecuteStream reads histograms from in until it is closed, runs them in
// chunks of BatchSize and sends every prediction to out. Results within a
// chunk keep their order; chunks may complete out of order, so each Result
// carries its input index. out is closed when ExecuteStream returns.
func (e *Engine) ExecuteStream(ctx context.Context, in <-chan []float32, out chan<- Result) error {
	defer close(out)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	var (
		batch   = make([][]float32, 0, e.opts.BatchSize)
		base    int
		next    int
		chunks  int
		readErr error
	)
	flush := func() {
		rows, offset := batch, base
		batch = make([][]float32, 0, e.opts.BatchSize)
		base = next
		chunks++
		g.Go(func() error {
			preds, err := e.runChunk(rows)
			if err != nil {
				return fmt.Errorf("chunk at %d: %w", offset, err)
			}
			for i, p := range preds {
				select {
				case out <- Result{Index: offset + i, Prediction: p}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

read:
	for {
		select {
		case <-gctx.Done():
			break read
		case h, ok := <-in:
			if !ok {
				break read
			}
			if err := e.checkSample(next, h); err != nil {
				readErr = err
				break read
			}
			batch = append(batch, h)
			next++
			if len(batch) == e.opts.BatchSize {
				flush()
			}
		}
	}
	if len(batch) > 0 && readErr == nil && gctx.Err() == nil {
		flush()
	}

	err := g.Wait()
	if err == nil {
		err = readErr
	}
	if err == nil {
		err = ctx.Err()
	}
	e.updateExecutionStats(start, next, chunks, err)
	return err
}

// runChunk stages rows in a pooled buffer and runs one forward pass.
func (e *Engine) runChunk(rows [][]float32) ([]model.Prediction, error) {
	bins := e.clf.NumBins()
	buf := e.bufs.GetBuffer()
	defer e.bufs.PutBuffer(buf)

	data := buf[:len(rows)*bins]
	for i, r := range rows {
		copy(data[i*bins:(i+1)*bins], r)
	}
	x, err := core.FromSlice(data, len(rows), bins)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	labels := e.labels
	e.mu.RUnlock()
	return model.Predict(e.clf, x, labels)
}

// Stats returns current execution statistics
func (e *Engine) Stats() ExecutionStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// updateExecutionStats updates totals and the running average latency
func (e *Engine) updateExecutionStats(start time.Time, samples, chunks int, err error) {
	if !e.opts.EnableStats {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.stats.Failures++
		return
	}
	e.stats.TotalExecutions++
	e.stats.TotalSamples += int64(samples)
	e.stats.TotalChunks += int64(chunks)
	duration := time.Since(start)

	if e.stats.TotalExecutions == 1 {
		e.stats.AverageLatency = duration
	} else {
		oldTotal := e.stats.TotalExecutions - 1
		e.stats.AverageLatency = time.Duration((int64(e.stats.AverageLatency)*oldTotal + int64(duration)) / e.stats.TotalExecutions)
	}
}

// BufferPool manages reusable cache-aligned float buffers for chunk inputs
type BufferPool struct {
	buffers chan []float32
	size    int
}

// NewBufferPool creates a pool of reusable buffers
func NewBufferPool(poolSize, bufferSize int) *BufferPool {
	bp := &BufferPool{
		buffers: make(chan []float32, poolSize),
		size:    bufferSize,
	}

	// Pre-allocate buffers
	for i := 0; i < poolSize; i++ {
		bp.buffers <- bp.newBuffer()
	}

	return bp
}

// newBuffer allocates whole cache lines so neighbouring buffers never share
// a line, and returns the first size floats.
func (bp *BufferPool) newBuffer() []float32 {
	n := core.AlignSize(bp.size, core.FloatsPerLine)
	return core.AlignedFloats(n)[:bp.size]
}

// GetBuffer returns a buffer from the pool or creates a new one
func (bp *BufferPool) GetBuffer() []float32 {
	select {
	case buf := <-bp.buffers:
		return buf
	default:
		return bp.newBuffer()
	}
}

// PutBuffer returns a buffer to the pool
func (bp *BufferPool) PutBuffer(buf []float32) {
	if len(buf) == bp.size {
		select {
		case bp.buffers <- buf:
		default:
			// Pool full, let GC handle it
		}
	}
}

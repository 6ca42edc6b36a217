package cpu

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"powengine/internal/metrics"
	"powengine/pkg/pow/core"
	"powengine/pkg/pow/hardware"
)

const driverName = "CPU"

// Driver implements core.Driver on host threads
type Driver struct {
	mu sync.Mutex

	threads    atomic.Uint32
	difficulty atomic.Uint64

	table *core.LookupTable
	last  core.SolveResult

	logger          *zap.Logger
	metrics         *metrics.Recorder
	availableMemory func() uint64
}

// Option configures a Driver
type Option func(*Driver)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(r *metrics.Recorder) Option {
	return func(d *Driver) {
		d.metrics = r
	}
}

// WithThreads overrides the initial thread count. 0 keeps the recommendation.
func WithThreads(n uint32) Option {
	return func(d *Driver) {
		if n > 0 {
			d.threads.Store(n)
		}
	}
}

// WithMemoryProbe replaces the available memory probe
func WithMemoryProbe(probe func() uint64) Option {
	return func(d *Driver) {
		d.availableMemory = probe
	}
}

// New creates a CPU driver using every hardware thread
func New(opts ...Option) *Driver {
	d := &Driver{
		logger:          zap.NewNop(),
		availableMemory: hardware.AvailableMemory,
	}
	d.threads.Store(d.RecommendedThreads())
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the human-readable name of the driver
func (d *Driver) Name() string {
	return driverName
}

// Type returns core.DriverCPU
func (d *Driver) Type() core.DriverType {
	return core.DriverCPU
}

// RecommendedThreads returns the hardware thread count
func (d *Driver) RecommendedThreads() uint32 {
	return hardware.LogicalCPUs()
}

// Threads returns the worker count used per solve
func (d *Driver) Threads() uint32 {
	return d.threads.Load()
}

// SetThreads changes the worker count
func (d *Driver) SetThreads(n uint32) error {
	if n == 0 {
		return core.ErrThreadInvalidCount
	}
	d.threads.Store(n)
	return nil
}

// RecommendedLookup balances table build cost against expected search cost
func (d *Driver) RecommendedLookup(class uint8) (uint8, error) {
	if err := core.CheckDifficultyClass(class); err != nil {
		return 0, err
	}
	return class / 2, nil
}

// Difficulty returns the threshold of the last search
func (d *Driver) Difficulty() uint64 {
	return d.difficulty.Load()
}

// SetDifficulty overrides the recorded threshold
func (d *Driver) SetDifficulty(difficulty uint64) {
	d.difficulty.Store(difficulty)
}

// LastResult returns statistics of the last successful solve
func (d *Driver) LastResult() core.SolveResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Solve builds the table for w and searches until a solution is found or ctx is done
func (d *Driver) Solve(ctx context.Context, w *core.Work) error {
	if w == nil {
		return core.ErrWorkInvalid
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.difficulty.Store(w.Difficulty())
	threads := uint64(d.threads.Load())
	seed := w.Seed()
	c := core.NewCanonical(seed)

	d.logger.Debug("Solve started",
		zap.Stringer("seed", seed),
		zap.Uint64("difficulty", w.Difficulty()),
		zap.Uint64("table_size", w.TableSize()),
		zap.Uint64("threads", threads))

	fillStart := time.Now()
	if err := d.prepare(ctx, c, w.TableSize(), threads); err != nil {
		d.metrics.ObserveSolve(driverName, err, 0, time.Since(fillStart), 0)
		return err
	}
	fillTime := time.Since(fillStart)

	searchStart := time.Now()
	solution, attempts, err := d.search(ctx, c, w.Difficulty(), core.SearchOrigin(seed), threads)
	searchTime := time.Since(searchStart)
	d.metrics.ObserveSolve(driverName, err, attempts, fillTime, searchTime)
	if err != nil {
		d.logger.Debug("Solve stopped", zap.Error(err), zap.Uint64("attempts", attempts))
		return err
	}

	w.SetSolution(solution.Hi, solution.Lo)
	d.last = core.SolveResult{
		Solution: solution,
		Attempts: attempts,
		FillUs:   uint64(fillTime.Microseconds()),
		SearchUs: uint64(searchTime.Microseconds()),
		Driver:   driverName,
	}

	d.logger.Debug("Solve finished",
		zap.Stringer("solution", solution),
		zap.Uint64("attempts", attempts),
		zap.Duration("fill", fillTime),
		zap.Duration("search", searchTime))
	return nil
}

// Validate rebuilds the table for w and checks its solution against it
func (d *Driver) Validate(ctx context.Context, w *core.Work) (bool, error) {
	if w == nil {
		return false, core.ErrWorkInvalid
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	c := core.NewCanonical(w.Seed())
	start := time.Now()
	if err := d.prepare(ctx, c, w.TableSize(), uint64(d.threads.Load())); err != nil {
		return false, err
	}

	valid := d.table.Verify(c, w.SolutionNonce(), w.Difficulty())
	d.metrics.ObserveValidation(driverName, valid, time.Since(start))
	return valid, nil
}

// prepare makes sure a table of size exists and fills it for c
func (d *Driver) prepare(ctx context.Context, c core.Canonical, size, threads uint64) error {
	if err := core.CheckTableSize(size); err != nil {
		return err
	}

	if d.table == nil || d.table.Size() != size {
		d.table = nil
		if available := d.availableMemory(); available != 0 && size > available {
			d.logger.Warn("Table does not fit in memory",
				zap.Uint64("table_size", size),
				zap.Uint64("available", available))
			return core.NewError(core.CodeInsufficientMemory,
				fmt.Sprintf("table needs %d bytes, %d available", size, available))
		}
		table, err := core.NewLookupTable(size)
		if err != nil {
			return err
		}
		d.table = table
		d.metrics.SetTableBytes(driverName, size)
	} else {
		d.table.Clear()
	}

	return d.fill(ctx, c, threads)
}

// fill splits the preimage space in contiguous ranges, one per worker
func (d *Driver) fill(ctx context.Context, c core.Canonical, threads uint64) error {
	entries := d.table.Entries()
	chunk := (entries + threads - 1) / threads

	g, gctx := errgroup.WithContext(ctx)
	for t := uint64(0); t < threads; t++ {
		begin := t * chunk
		if begin >= entries {
			break
		}
		end := min(begin+chunk, entries)
		g.Go(func() error {
			for lhs := begin; lhs < end; lhs += core.Stepping {
				if err := gctx.Err(); err != nil {
					return err
				}
				d.table.FillRange(c, lhs, min(lhs+core.Stepping, end))
			}
			return nil
		})
	}
	return g.Wait()
}

// search runs one worker per thread. Worker t probes origin+t, origin+t+threads, ...
// The first worker to accept a candidate raises the shared flag.
func (d *Driver) search(ctx context.Context, c core.Canonical, difficulty, origin, threads uint64) (core.Nonce, uint64, error) {
	var (
		found    atomic.Bool
		attempts atomic.Uint64
		solution core.Nonce
	)

	// candidates probed by each worker before the whole space is covered
	perWorker := (core.CandidateMask + threads) / threads

	g, gctx := errgroup.WithContext(ctx)
	for t := uint64(0); t < threads; t++ {
		t := t
		g.Go(func() error {
			rhs := (origin + t) & core.CandidateMask
			for done := uint64(0); done < perWorker; done += core.Stepping {
				if found.Load() {
					return nil
				}
				if err := gctx.Err(); err != nil {
					return err
				}
				count := min(core.Stepping, perWorker-done)
				candidate, ok := d.table.Search(c, difficulty, rhs, threads, count)
				if ok {
					if found.CompareAndSwap(false, true) {
						solution = candidate
					}
					// count the probes up to and including the accepted candidate
					attempts.Add(((candidate.Lo-rhs)&core.CandidateMask)/threads + 1)
					return nil
				}
				attempts.Add(count)
				rhs = (rhs + count*threads) & core.CandidateMask
			}
			return nil
		})
	}

	err := g.Wait()
	if found.Load() {
		return solution, attempts.Load(), nil
	}
	if err != nil {
		return core.Nonce{}, attempts.Load(), err
	}
	return core.Nonce{}, attempts.Load(), core.ErrSearchSpaceExhausted
}

// Dump writes the host resources seen by the driver
func (d *Driver) Dump(w io.Writer) error {
	d.mu.Lock()
	var tableSize uint64
	if d.table != nil {
		tableSize = d.table.Size()
	}
	d.mu.Unlock()

	_, err := fmt.Fprintf(w,
		"Driver: %s\nModel: %s\nHardware threads: %d\nPhysical cores: %d\nThreads: %d\nTable: %d MB\nMemory available: %d MB\n",
		driverName,
		hardware.CPUModel(),
		d.RecommendedThreads(),
		hardware.PhysicalCPUs(),
		d.Threads(),
		tableSize>>20,
		d.availableMemory()>>20)
	return err
}

// Capabilities describes the driver
func (d *Driver) Capabilities() *core.Capabilities {
	maxTable := core.MaxTableSize
	if total := hardware.TotalMemory(); total != 0 && total < maxTable {
		maxTable = total
	}
	return &core.Capabilities{
		Name:               driverName,
		Type:               core.DriverCPU.String(),
		IsHardware:         false,
		Threads:            d.Threads(),
		RecommendedThreads: d.RecommendedThreads(),
		MaxTableSize:       maxTable,
	}
}

// Close releases the table
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.table = nil
	d.metrics.SetTableBytes(driverName, 0)
	return nil
}

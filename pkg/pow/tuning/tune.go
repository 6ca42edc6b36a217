package tuning

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"time"

	"go.uber.org/zap"

	"powengine/pkg/pow/core"
)

const (
	// DefaultMinLookup bounds the memory search from below
	DefaultMinLookup = 18
	// DefaultMaxLookup bounds the memory search from above
	DefaultMaxLookup = core.MaxLookup
)

// Options controls a Tune run
type Options struct {
	// Solves per measured configuration
	Count      uint
	Difficulty uint64
	// Starting table size
	TableSize uint64
	// Starting threads, 0 keeps the driver's current value
	Threads uint32
	// Thread search ceiling for OpenCL, 0 uses four times the recommendation
	MaxThreads   uint32
	MinTableSize uint64
	MaxTableSize uint64
	Logger       *zap.Logger
}

// Trial is one measured configuration
type Trial struct {
	Threads   uint32
	TableSize uint64
	Average   time.Duration
	Err       error
}

// Result holds the outcome of Tune
type Result struct {
	// MaxTableSize is the largest table the device could build (OpenCL only)
	MaxTableSize  uint64
	BestTableSize uint64
	BestThreads   uint32
	BestAverage   time.Duration
	Trials        []Trial
}

type tuner struct {
	driver core.Driver
	opts   Options
	logger *zap.Logger
	result *Result
}

// Tune searches the table size, and for OpenCL the thread count, giving the
// lowest average solve time. The driver is left configured with the best threads.
func Tune(ctx context.Context, d core.Driver, opts Options) (*Result, error) {
	if opts.Count == 0 {
		opts.Count = 1
	}
	if opts.MinTableSize == 0 {
		opts.MinTableSize = core.LookupToTableSize(DefaultMinLookup)
	}
	if opts.MaxTableSize == 0 {
		opts.MaxTableSize = core.LookupToTableSize(DefaultMaxLookup)
	}
	if opts.TableSize == 0 {
		lookup, err := d.RecommendedLookup(uint8(bits.LeadingZeros64(^opts.Difficulty)))
		if err != nil {
			lookup = DefaultMinLookup
		}
		opts.TableSize = core.LookupToTableSize(lookup)
	}
	for _, size := range []uint64{opts.MinTableSize, opts.MaxTableSize, opts.TableSize} {
		if err := core.CheckTableSize(size); err != nil {
			return nil, err
		}
	}
	if opts.MinTableSize > opts.MaxTableSize {
		return nil, fmt.Errorf("minimum table size %d exceeds maximum %d", opts.MinTableSize, opts.MaxTableSize)
	}
	if opts.Threads > 0 {
		if err := d.SetThreads(opts.Threads); err != nil {
			return nil, err
		}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	d.SetDifficulty(opts.Difficulty)

	t := &tuner{
		driver: d,
		opts:   opts,
		logger: opts.Logger.With(zap.String("driver", d.Name())),
		result: &Result{BestThreads: d.Threads()},
	}

	if d.Type() == core.DriverOpenCL {
		return t.result, t.tuneOpenCL(ctx)
	}
	return t.result, t.tuneCPU(ctx)
}

// measure solves Count works at size and records the trial
func (t *tuner) measure(ctx context.Context, size uint64) (time.Duration, error) {
	profile, err := Profile(ctx, t.driver, t.opts.Difficulty, size, t.opts.Count)
	trial := Trial{Threads: t.driver.Threads(), TableSize: size, Err: err}
	if err == nil {
		trial.Average = profile.Average
		t.logger.Info("Tuning trial",
			zap.Uint32("threads", trial.Threads),
			zap.Uint64("table_mb", size>>20),
			zap.Duration("average", trial.Average))
	} else {
		t.logger.Warn("Tuning trial failed",
			zap.Uint32("threads", trial.Threads),
			zap.Uint64("table_mb", size>>20),
			zap.Error(err))
	}
	t.result.Trials = append(t.result.Trials, trial)
	return trial.Average, err
}

func (t *tuner) improve(avg time.Duration, size uint64) bool {
	if t.result.BestAverage != 0 && avg >= t.result.BestAverage {
		return false
	}
	t.result.BestAverage = avg
	t.result.BestTableSize = size
	t.result.BestThreads = t.driver.Threads()
	return true
}

func cancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// firstWorking halves size from the starting point until a solve succeeds
func (t *tuner) firstWorking(ctx context.Context) (uint64, time.Duration, error) {
	size := t.opts.TableSize
	for {
		avg, err := t.measure(ctx, size)
		if err == nil {
			return size, avg, nil
		}
		if cancelled(err) {
			return 0, 0, err
		}
		if size/2 < t.opts.MinTableSize {
			return 0, 0, fmt.Errorf("could not build the minimum table of %d bytes: %w", t.opts.MinTableSize, err)
		}
		size /= 2
	}
}

// tuneCPU walks down then up in memory until a worse configuration is found in each direction
func (t *tuner) tuneCPU(ctx context.Context) error {
	start, avg, err := t.firstWorking(ctx)
	if err != nil {
		return err
	}
	t.improve(avg, start)

	for size := start / 2; size >= t.opts.MinTableSize; size /= 2 {
		avg, err := t.measure(ctx, size)
		if cancelled(err) {
			return err
		}
		if err != nil || !t.improve(avg, size) {
			break
		}
	}

	for size := start * 2; size <= t.opts.MaxTableSize; size *= 2 {
		avg, err := t.measure(ctx, size)
		if cancelled(err) {
			return err
		}
		if err != nil || !t.improve(avg, size) {
			break
		}
	}

	t.logger.Info("Found best memory", zap.Uint64("table_mb", t.result.BestTableSize>>20))
	return nil
}

// tuneOpenCL finds the largest buildable table, the best table below it, then
// doubles threads while solves get faster
func (t *tuner) tuneOpenCL(ctx context.Context) error {
	start, avg, err := t.firstWorking(ctx)
	if err != nil {
		return err
	}
	t.result.MaxTableSize = start
	t.logger.Info("Found max memory", zap.Uint64("table_mb", start>>20))
	t.improve(avg, start)

	for size := start / 2; size >= t.opts.MinTableSize; size /= 2 {
		avg, err := t.measure(ctx, size)
		if cancelled(err) {
			return err
		}
		if err != nil || !t.improve(avg, size) {
			break
		}
	}
	t.logger.Info("Found best memory", zap.Uint64("table_mb", t.result.BestTableSize>>20))

	maxThreads := t.opts.MaxThreads
	if maxThreads == 0 {
		maxThreads = 4 * t.driver.RecommendedThreads()
	}
	best := t.result.BestThreads
	for threads := best * 2; threads <= maxThreads; threads *= 2 {
		if err := t.driver.SetThreads(threads); err != nil {
			return err
		}
		avg, err := t.measure(ctx, t.result.BestTableSize)
		if cancelled(err) {
			return err
		}
		if err != nil || !t.improve(avg, t.result.BestTableSize) {
			break
		}
	}
	if err := t.driver.SetThreads(t.result.BestThreads); err != nil {
		return err
	}

	t.logger.Info("Found best threads", zap.Uint32("threads", t.result.BestThreads))
	return nil
}

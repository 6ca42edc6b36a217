package opencl

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"powengine/internal/metrics"
	"powengine/pkg/pow/core"
)

const (
	driverName = "OpenCL"

	// threads per compute unit when the device reports them
	threadsPerComputeUnit = 256
	defaultThreads        = 8192

	// a table above the allocation limit is split in this many buffers
	maxSlabs = 4
)

// Driver implements core.Driver on one OpenCL device
type Driver struct {
	mu sync.Mutex

	threads    atomic.Uint32
	difficulty atomic.Uint64

	catalog *Catalog
	desc    DeviceDescriptor
	device  Device

	allocated uint64
	slabs     int
	last      core.SolveResult

	logger  *zap.Logger
	metrics *metrics.Recorder
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

// WithThreads overrides the initial work-item count. 0 keeps the recommendation.
func WithThreads(n uint32) Option {
	return func(d *Driver) {
		if n > 0 {
			d.threads.Store(n)
		}
	}
}

// New resolves platform and device in the catalog of rt and compiles the search program
func New(rt Runtime, platform, device uint16, opts ...Option) (*Driver, error) {
	if rt == nil {
		return nil, core.ErrDriverInvalid
	}
	catalog, err := GetCatalog(rt)
	if err != nil {
		return nil, err
	}
	desc, err := catalog.GetByPlatformDevice(platform, device)
	if err != nil {
		return nil, err
	}
	if !desc.CompilerAvailable {
		return nil, core.NewError(core.CodeDriverInvalid, "device has no compiler")
	}

	d := &Driver{
		catalog: catalog,
		desc:    desc,
		logger:  zap.NewNop(),
	}
	d.threads.Store(d.RecommendedThreads())
	for _, opt := range opts {
		opt(d)
	}

	dev, err := rt.Open(platform, device)
	if err != nil {
		d.logger.Error("Failed to open device", zap.Stringer("device", desc), zap.Error(err))
		return nil, err
	}
	d.device = dev

	d.logger.Debug("OpenCL driver ready",
		zap.Stringer("device", desc),
		zap.Uint32("threads", d.Threads()))
	return d, nil
}

// Name returns the human-readable name of the driver
func (d *Driver) Name() string {
	return driverName
}

// Type returns core.DriverOpenCL
func (d *Driver) Type() core.DriverType {
	return core.DriverOpenCL
}

// Descriptor returns the device the driver runs on
func (d *Driver) Descriptor() DeviceDescriptor {
	return d.desc
}

// RecommendedThreads sizes a launch from the compute units of the device
func (d *Driver) RecommendedThreads() uint32 {
	if d.desc.ComputeUnits == 0 {
		return defaultThreads
	}
	return d.desc.ComputeUnits * threadsPerComputeUnit
}

// Threads returns the work-items per launch
func (d *Driver) Threads() uint32 {
	return d.threads.Load()
}

// SetThreads changes the work-items per launch
func (d *Driver) SetThreads(n uint32) error {
	if n == 0 {
		return core.ErrThreadInvalidCount
	}
	d.threads.Store(n)
	return nil
}

// RecommendedLookup prefers one class more table than the CPU driver.
// Device memory is cheap to fill in parallel.
func (d *Driver) RecommendedLookup(class uint8) (uint8, error) {
	if err := core.CheckDifficultyClass(class); err != nil {
		return 0, err
	}
	return min(class/2+1, core.MaxLookup), nil
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

// Solve fills the device table and launches search kernels until one reports a solution
func (d *Driver) Solve(ctx context.Context, w *core.Work) error {
	if w == nil {
		return core.ErrWorkInvalid
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil {
		return core.ErrDriverInvalid
	}

	d.difficulty.Store(w.Difficulty())
	threads := d.threads.Load()

	fillStart := time.Now()
	if err := d.prepare(ctx, w.Seed(), w.TableSize(), threads); err != nil {
		d.metrics.ObserveSolve(driverName, err, 0, time.Since(fillStart), 0)
		return err
	}
	fillTime := time.Since(fillStart)

	searchStart := time.Now()
	solution, attempts, err := d.search(ctx, w, threads)
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

func (d *Driver) search(ctx context.Context, w *core.Work, threads uint32) (core.Nonce, uint64, error) {
	origin := core.SearchOrigin(w.Seed())
	perLaunch := uint64(threads) * core.Stepping

	var attempts uint64
	for attempts <= core.CandidateMask {
		if err := ctx.Err(); err != nil {
			return core.Nonce{}, attempts, err
		}
		solution, found, err := d.device.Search(w.Difficulty(), (origin+attempts)&core.CandidateMask, threads, core.Stepping)
		attempts += perLaunch
		if err != nil {
			return core.Nonce{}, attempts, err
		}
		if found {
			return solution, attempts, nil
		}
	}
	return core.Nonce{}, attempts, core.ErrSearchSpaceExhausted
}

// Validate rebuilds the table on the device and checks the slot probed by the solution
func (d *Driver) Validate(ctx context.Context, w *core.Work) (bool, error) {
	if w == nil {
		return false, core.ErrWorkInvalid
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil {
		return false, core.ErrDriverInvalid
	}

	start := time.Now()
	if err := d.prepare(ctx, w.Seed(), w.TableSize(), d.threads.Load()); err != nil {
		return false, err
	}

	c := core.NewCanonical(w.Seed())
	solution := w.SolutionNonce()
	if solution.Lo > core.CandidateMask {
		d.metrics.ObserveValidation(driverName, false, time.Since(start))
		return false, nil
	}

	entries := core.TableSizeToEntries(w.TableSize())
	slot, err := d.device.ReadSlot(core.ProbeSlot(c, solution.Lo, entries))
	if err != nil {
		return false, err
	}

	valid := core.VerifyProbe(c, solution, w.Difficulty(), entries, slot)
	d.metrics.ObserveValidation(driverName, valid, time.Since(start))
	return valid, nil
}

// prepare sizes the device table for size and fills it for seed
func (d *Driver) prepare(ctx context.Context, seed core.Nonce, size uint64, threads uint32) error {
	if err := core.CheckTableSize(size); err != nil {
		return err
	}

	slabs, err := d.slabsFor(size)
	if err != nil {
		d.logger.Warn("Table does not fit on device",
			zap.Uint64("table_size", size),
			zap.Stringer("device", d.desc))
		return err
	}

	entries := core.TableSizeToEntries(size)
	if d.allocated != size || d.slabs != slabs {
		if err := d.device.Allocate(entries, slabs); err != nil {
			d.allocated = 0
			return err
		}
		d.allocated = size
		d.slabs = slabs
		d.metrics.SetTableBytes(driverName, size)
		d.logger.Debug("Allocated device table", zap.Uint64("table_size", size), zap.Int("slabs", slabs))
	}

	if err := d.device.Reset(seed); err != nil {
		return err
	}

	perLaunch := uint64(threads) * core.Stepping
	for begin := uint64(0); begin < entries; begin += perLaunch {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.device.Fill(begin, threads, core.Stepping); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) slabsFor(size uint64) (int, error) {
	if size > d.desc.MemoryAvailable {
		return 0, core.NewOpenCLError(CLInvalidBufferSize,
			fmt.Sprintf("table of %d bytes exceeds device memory of %d bytes", size, d.desc.MemoryAvailable))
	}
	if size <= d.desc.MaxAllocSize {
		return 1, nil
	}
	if size/maxSlabs > d.desc.MaxAllocSize {
		return 0, core.NewOpenCLError(CLInvalidBufferSize,
			fmt.Sprintf("table of %d bytes exceeds %d allocations of %d bytes", size, maxSlabs, d.desc.MaxAllocSize))
	}
	return maxSlabs, nil
}

// Dump lists every device of the catalog the driver was built from
func (d *Driver) Dump(w io.Writer) error {
	devices, err := d.catalog.Devices()
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Driver: %s\nSelected: %s\nThreads: %d\n", driverName, d.desc, d.Threads()); err != nil {
		return err
	}
	for _, dev := range devices {
		if _, err := fmt.Fprintf(w, "  %s compiler=%t compute_units=%d\n", dev, dev.CompilerAvailable, dev.ComputeUnits); err != nil {
			return err
		}
	}
	return nil
}

// Capabilities describes the driver and its device
func (d *Driver) Capabilities() *core.Capabilities {
	maxTable := min(d.desc.MemoryAvailable, d.desc.MaxAllocSize*maxSlabs, core.MaxTableSize)
	return &core.Capabilities{
		Name:               driverName,
		Type:               core.DriverOpenCL.String(),
		IsHardware:         true,
		Threads:            d.Threads(),
		RecommendedThreads: d.RecommendedThreads(),
		MaxTableSize:       maxTable,
		Device:             d.desc.Info(),
	}
}

// Close releases the device resources
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil {
		return nil
	}
	err := d.device.Release()
	d.device = nil
	d.allocated = 0
	d.metrics.SetTableBytes(driverName, 0)
	if cerr := d.catalog.Close(); err == nil {
		err = cerr
	}
	return err
}

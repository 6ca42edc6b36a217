// Package pow is the caller-facing surface of the work-search engine.
// Every operation takes an *ErrorContext first and reports its outcome there:
// a successful call resets the context, a failed one overwrites it with the
// category, code and message of the failure.
package pow

import (
	"context"
	"io"

	"go.uber.org/zap"

	"powengine/internal/metrics"
	"powengine/pkg/pow/core"
	"powengine/pkg/pow/methods/cpu"
	"powengine/pkg/pow/methods/opencl"
)

// Aliases for the types crossing the boundary
type (
	ErrorContext = core.ErrorContext
	Work         = core.Work
	Driver       = core.Driver
	DeviceList   = opencl.Catalog
	Device       = opencl.DeviceDescriptor
)

// Engine carries what drivers are built with
type Engine struct {
	runtime opencl.Runtime
	logger  *zap.Logger
	metrics *metrics.Recorder
}

// Option configures an Engine
type Option func(*Engine)

// WithRuntime replaces the OpenCL runtime, for example with an emulator
func WithRuntime(rt opencl.Runtime) Option {
	return func(e *Engine) {
		e.runtime = rt
	}
}

// WithLogger sets the logger handed to drivers
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the recorder handed to drivers
func WithMetrics(r *metrics.Recorder) Option {
	return func(e *Engine) {
		e.metrics = r
	}
}

// NewEngine creates an engine on the system OpenCL runtime
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		runtime: opencl.DefaultRuntime(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Runtime returns the OpenCL runtime of the engine
func (e *Engine) Runtime() opencl.Runtime {
	return e.runtime
}

func (e *Engine) sessionLogger(ec *ErrorContext) *zap.Logger {
	if ec == nil {
		return e.logger
	}
	return e.logger.With(ec.LogField())
}

func report(ec *ErrorContext, err error) bool {
	if ec != nil {
		ec.Set(err)
	}
	return err == nil
}

// NewContext creates an error context in the success state
func NewContext() *ErrorContext {
	return core.NewErrorContext()
}

// DestroyContext ends a context
func DestroyContext(ec *ErrorContext) {
	if ec != nil {
		_ = ec.Close()
	}
}

// NewWork creates an empty work item
func NewWork(ec *ErrorContext) *Work {
	report(ec, nil)
	return core.NewWork()
}

// DestroyWork releases a work item
func DestroyWork(ec *ErrorContext, w *Work) {
	if w == nil {
		report(ec, core.ErrWorkInvalid)
		return
	}
	report(ec, nil)
}

// NewCPUDriver creates a driver on every host thread
func (e *Engine) NewCPUDriver(ec *ErrorContext) Driver {
	d := cpu.New(
		cpu.WithLogger(e.sessionLogger(ec)),
		cpu.WithMetrics(e.metrics))
	report(ec, nil)
	return d
}

// NewOpenCLDriver creates a driver on one device of the engine runtime
func (e *Engine) NewOpenCLDriver(ec *ErrorContext, platform, device uint16) Driver {
	d, err := opencl.New(e.runtime, platform, device,
		opencl.WithLogger(e.sessionLogger(ec)),
		opencl.WithMetrics(e.metrics))
	if !report(ec, err) {
		return nil
	}
	return d
}

// DestroyDriver releases a driver
func DestroyDriver(ec *ErrorContext, d Driver) {
	if d == nil {
		report(ec, core.ErrDriverInvalid)
		return
	}
	report(ec, d.Close())
}

// Solve searches a solution for w with d
func Solve(ec *ErrorContext, d Driver, w *Work) {
	SolveContext(context.Background(), ec, d, w)
}

// SolveContext is Solve with cancellation
func SolveContext(ctx context.Context, ec *ErrorContext, d Driver, w *Work) {
	if d == nil {
		report(ec, core.ErrDriverInvalid)
		return
	}
	if w == nil {
		report(ec, core.ErrWorkInvalid)
		return
	}
	report(ec, d.Solve(ctx, w))
}

// Validate checks the solution of w without building its table
func Validate(ec *ErrorContext, w *Work) bool {
	valid, err := core.Validate(w)
	if !report(ec, err) {
		return false
	}
	return valid
}

// DriverValidate rebuilds the table of w with d and checks its solution
func DriverValidate(ec *ErrorContext, d Driver, w *Work) bool {
	return DriverValidateContext(context.Background(), ec, d, w)
}

// DriverValidateContext is DriverValidate with cancellation
func DriverValidateContext(ctx context.Context, ec *ErrorContext, d Driver, w *Work) bool {
	if d == nil {
		report(ec, core.ErrDriverInvalid)
		return false
	}
	valid, err := d.Validate(ctx, w)
	if !report(ec, err) {
		return false
	}
	return valid
}

// DumpDriver writes the diagnostic snapshot of d to out
func DumpDriver(ec *ErrorContext, d Driver, out io.Writer) {
	if d == nil {
		report(ec, core.ErrDriverInvalid)
		return
	}
	report(ec, d.Dump(out))
}

// RecommendedThreads returns the parallelism suited to d
func RecommendedThreads(ec *ErrorContext, d Driver) uint32 {
	if d == nil {
		report(ec, core.ErrDriverInvalid)
		return 0
	}
	report(ec, nil)
	return d.RecommendedThreads()
}

// ThreadsGet returns the parallelism of d
func ThreadsGet(ec *ErrorContext, d Driver) uint32 {
	if d == nil {
		report(ec, core.ErrDriverInvalid)
		return 0
	}
	report(ec, nil)
	return d.Threads()
}

// ThreadsSet changes the parallelism of d
func ThreadsSet(ec *ErrorContext, d Driver, n uint32) {
	if d == nil {
		report(ec, core.ErrDriverInvalid)
		return
	}
	report(ec, d.SetThreads(n))
}

// RecommendedLookup maps a difficulty class to the table class d prefers
func RecommendedLookup(ec *ErrorContext, d Driver, difficultyClass uint8) uint8 {
	if d == nil {
		report(ec, core.ErrDriverInvalid)
		return 0
	}
	lookup, err := d.RecommendedLookup(difficultyClass)
	report(ec, err)
	return lookup
}

// DifficultyGet returns the threshold d last searched for
func DifficultyGet(ec *ErrorContext, d Driver) uint64 {
	if d == nil {
		report(ec, core.ErrDriverInvalid)
		return 0
	}
	report(ec, nil)
	return d.Difficulty()
}

// DifficultySet overrides the threshold recorded by d
func DifficultySet(ec *ErrorContext, d Driver, difficulty uint64) {
	if d == nil {
		report(ec, core.ErrDriverInvalid)
		return
	}
	d.SetDifficulty(difficulty)
	report(ec, nil)
}

// DriverDevice returns the device of an OpenCL driver
func DriverDevice(ec *ErrorContext, d Driver) *Device {
	if d == nil {
		report(ec, core.ErrDriverInvalid)
		return nil
	}
	gpu, ok := d.(*opencl.Driver)
	if !ok {
		report(ec, core.ErrDriverInvalidType)
		return nil
	}
	desc := gpu.Descriptor()
	report(ec, nil)
	return &desc
}

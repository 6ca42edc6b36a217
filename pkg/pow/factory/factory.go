package factory

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"powengine/internal/metrics"
	"powengine/pkg/pow/core"
	"powengine/pkg/pow/hardware"
	"powengine/pkg/pow/methods/cpu"
	"powengine/pkg/pow/methods/opencl"
)

// DriverFactory creates drivers according to a Config
type DriverFactory struct {
	config   *Config
	runtime  opencl.Runtime
	logger   *zap.Logger
	metrics  *metrics.Recorder
	detector *hardware.DeviceDetector
	detected map[string]bool
}

// Option configures a DriverFactory
type Option func(*DriverFactory)

// WithRuntime replaces the OpenCL runtime
func WithRuntime(rt opencl.Runtime) Option {
	return func(f *DriverFactory) {
		f.runtime = rt
	}
}

// WithLogger sets the logger handed to drivers
func WithLogger(logger *zap.Logger) Option {
	return func(f *DriverFactory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithMetrics sets the recorder handed to drivers
func WithMetrics(r *metrics.Recorder) Option {
	return func(f *DriverFactory) {
		f.metrics = r
	}
}

// NewDriverFactory detects the available drivers
func NewDriverFactory(config *Config, opts ...Option) *DriverFactory {
	if config == nil {
		config = DefaultConfig()
	}

	f := &DriverFactory{
		config:  config,
		runtime: opencl.DefaultRuntime(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.detector = hardware.NewDeviceDetector(f.runtime)
	f.detected = f.detector.DetectAvailableMethods()
	return f
}

// Config returns the configuration in use
func (f *DriverFactory) Config() *Config {
	return f.config
}

// Runtime returns the OpenCL runtime drivers are opened on
func (f *DriverFactory) Runtime() opencl.Runtime {
	return f.runtime
}

// Create builds the driver called name
func (f *DriverFactory) Create(name string) (core.Driver, error) {
	switch name {
	case core.DriverCPU.String():
		return cpu.New(
			cpu.WithLogger(f.logger),
			cpu.WithMetrics(f.metrics),
			cpu.WithThreads(f.config.Threads)), nil
	case core.DriverOpenCL.String():
		d, err := opencl.New(f.runtime, f.config.OpenCLPlatform, f.config.OpenCLDevice,
			opencl.WithLogger(f.logger),
			opencl.WithMetrics(f.metrics),
			opencl.WithThreads(f.config.Threads))
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, core.NewError(core.CodeDriverInvalidType, name)
	}
}

// CreateBest walks the preferred order and returns the first driver that can be created
func (f *DriverFactory) CreateBest() (core.Driver, error) {
	var firstErr error
	for _, name := range f.config.PreferredOrder {
		if !f.detected[name] {
			continue
		}
		d, err := f.Create(name)
		if err == nil {
			f.logger.Info("Selected driver", zap.String("driver", name))
			return d, nil
		}
		f.logger.Warn("Driver unavailable", zap.String("driver", name), zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
		if !f.config.EnableFallback {
			return nil, err
		}
	}

	if !f.config.EnableFallback && firstErr == nil && len(f.config.PreferredOrder) > 0 {
		return nil, fmt.Errorf("no preferred driver detected: %v", f.config.PreferredOrder)
	}

	// The host is always there
	return f.Create(core.DriverCPU.String())
}

// GetDetectionReport returns a report of detected drivers and their status
func (f *DriverFactory) GetDetectionReport() *DetectionReport {
	report := &DetectionReport{
		Drivers: make([]*DriverStatus, 0, len(f.detected)),
		Devices: f.detector.Devices(),
	}

	for name, available := range f.detected {
		report.Drivers = append(report.Drivers, &DriverStatus{
			Name:         name,
			Available:    available,
			Priority:     f.getPriority(name),
			Capabilities: f.detector.Capabilities(name),
			Description:  getDriverDescription(name),
		})
		if available {
			report.AvailableCount++
		}
	}
	SortDriversByPriority(report.Drivers)

	report.BestDriver = "none"
	for _, status := range report.Drivers {
		if status.Available {
			report.BestDriver = status.Name
			break
		}
	}
	return report
}

// getPriority returns the priority index of a driver
func (f *DriverFactory) getPriority(name string) int {
	for i, preferred := range f.config.PreferredOrder {
		if name == preferred {
			return i
		}
	}
	return 999 // Low priority for drivers not in preferred list
}

func getDriverDescription(name string) string {
	descriptions := map[string]string{
		"cpu":    "Host threads with the table in main memory",
		"opencl": "OpenCL device with the table in device memory",
	}

	if desc, exists := descriptions[name]; exists {
		return desc
	}
	return "Unknown driver"
}

// DetectionReport contains the results of hardware detection
type DetectionReport struct {
	Drivers        []*DriverStatus           `json:"drivers"`
	Devices        []opencl.DeviceDescriptor `json:"devices"`
	BestDriver     string                    `json:"best_driver"`
	AvailableCount int                       `json:"available_count"`
}

// DriverStatus describes the status of a single driver
type DriverStatus struct {
	Name         string             `json:"name"`
	Available    bool               `json:"available"`
	Priority     int                `json:"priority"`
	Capabilities *core.Capabilities `json:"capabilities"`
	Description  string             `json:"description"`
}

// SortDriversByPriority sorts drivers by priority, then by name
func SortDriversByPriority(drivers []*DriverStatus) {
	sort.Slice(drivers, func(i, j int) bool {
		if drivers[i].Priority != drivers[j].Priority {
			return drivers[i].Priority < drivers[j].Priority
		}
		return drivers[i].Name < drivers[j].Name
	})
}

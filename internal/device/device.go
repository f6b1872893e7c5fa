package device

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	DefaultBlockSize   = 128
	MaxThreadsPerBlock = 1024
	DefaultMaxGridSize = 65535
	DefaultTotalMem    = 1 << 30
)

// Properties describes the capabilities of a device.
type Properties struct {
	Name         string `yaml:"name"`
	TotalMem     int64  `yaml:"total_mem"`
	BlockSize    int    `yaml:"block_size"`
	MaxBlockSize int    `yaml:"max_block_size"`
	MaxGridSize  int    `yaml:"max_grid_size"`
	Workers      int    `yaml:"workers"`
}

func DefaultProperties() Properties {
	return Properties{
		Name:         "cpu-emulated",
		TotalMem:     DefaultTotalMem,
		BlockSize:    DefaultBlockSize,
		MaxBlockSize: MaxThreadsPerBlock,
		MaxGridSize:  DefaultMaxGridSize,
		Workers:      runtime.NumCPU(),
	}
}

// Device is a compute device with accounted memory and a single in-order
// stream. Allocation bookkeeping is safe for concurrent use.
type Device struct {
	props    Properties
	log      *zap.Logger
	registry *prometheus.Registry
	metrics  *deviceMetrics
	stream   *Stream

	mu     sync.Mutex
	used   int64
	closed bool
}

type Option func(*Device)

func WithLogger(l *zap.Logger) Option {
	return func(d *Device) { d.log = l }
}

// WithRegistry registers the device collectors on r instead of a private registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(d *Device) { d.registry = r }
}

func New(props Properties, opts ...Option) (*Device, error) {
	if props.Workers <= 0 {
		props.Workers = runtime.NumCPU()
	}
	if props.MaxBlockSize <= 0 {
		props.MaxBlockSize = MaxThreadsPerBlock
	}
	if props.MaxGridSize <= 0 {
		props.MaxGridSize = DefaultMaxGridSize
	}
	if props.TotalMem <= 0 {
		return nil, fmt.Errorf("%w: total memory %d", ErrInvalidSize, props.TotalMem)
	}
	if props.BlockSize < 1 || props.BlockSize > props.MaxBlockSize {
		return nil, fmt.Errorf("%w: block size %d outside [1,%d]", ErrInvalidLaunch, props.BlockSize, props.MaxBlockSize)
	}

	d := &Device{props: props}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	if d.registry == nil {
		d.registry = prometheus.NewRegistry()
	}
	d.metrics = newDeviceMetrics(d.registry, props.Name)
	d.stream = newStream()

	d.log.Debug("device ready",
		zap.String("name", props.Name),
		zap.Int64("total_mem", props.TotalMem),
		zap.Int("block_size", props.BlockSize),
		zap.Int("workers", props.Workers))
	return d, nil
}

func (d *Device) Name() string                   { return d.props.Name }
func (d *Device) Properties() Properties         { return d.props }
func (d *Device) BlockSize() int                 { return d.props.BlockSize }
func (d *Device) Stream() *Stream                { return d.stream }
func (d *Device) Registry() *prometheus.Registry { return d.registry }
func (d *Device) Logger() *zap.Logger            { return d.log }

// Used returns the number of device bytes currently allocated.
func (d *Device) Used() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.used
}

func (d *Device) Free() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.props.TotalMem - d.used
}

// Synchronize blocks until every queued launch and copy has completed and
// returns the first execution error raised since the previous call.
func (d *Device) Synchronize() error {
	return d.stream.Synchronize()
}

// Close drains the stream and stops its worker. Buffers still allocated stay
// accounted until they are cleared.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()
	return d.stream.Close()
}

func (d *Device) reserve(bytes int64) error {
	if bytes <= 0 {
		return fmt.Errorf("%w: %d bytes", ErrInvalidSize, bytes)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.used+bytes > d.props.TotalMem {
		return fmt.Errorf("%w: need %d bytes, %d available", ErrOutOfMemory, bytes, d.props.TotalMem-d.used)
	}
	d.used += bytes
	d.metrics.allocated.Set(float64(d.used))
	return nil
}

func (d *Device) release(bytes int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.used -= bytes
	if d.used < 0 {
		d.used = 0
	}
	d.metrics.allocated.Set(float64(d.used))
}

func (d *Device) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Device) validateLaunch(grid, block int) error {
	if block < 1 || block > d.props.MaxBlockSize {
		return fmt.Errorf("%w: block size %d outside [1,%d]", ErrInvalidLaunch, block, d.props.MaxBlockSize)
	}
	if grid < 1 || grid > d.props.MaxGridSize {
		return fmt.Errorf("%w: grid size %d outside [1,%d]", ErrInvalidLaunch, grid, d.props.MaxGridSize)
	}
	return nil
}

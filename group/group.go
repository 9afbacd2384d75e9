// Package group provides the process-group abstraction: a fixed set of
// cooperating processes, a registry of communication backends keyed by
// device type, and the collective/point-to-point dispatch API. The group
// itself is a thin router; data movement and completion semantics belong
// to the backends and the work handles they emit.
package group

import (
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/commflow/backend"
	"github.com/BaSui01/commflow/internal/metrics"
	"github.com/BaSui01/commflow/store"
	"github.com/BaSui01/commflow/types"
)

// Config assembles a Group. The process set is fixed: changing membership
// requires discarding the instance and rebuilding from scratch.
type Config struct {
	// Rank is this process's identity, in [0, Size).
	Rank int
	// Size is the group cardinality.
	Size int

	// Store is the bootstrap rendezvous handle, consumed by backends and
	// by the sequence-number protocol.
	Store store.Store

	// Options carries the default backend name and collective timeout.
	Options types.GroupOptions

	Logger *zap.Logger

	// Tracer overrides the global otel tracer; nil uses the global one.
	Tracer trace.Tracer

	// EnableMetrics registers prometheus collectors with Registerer
	// (default registerer when nil).
	EnableMetrics bool
	Registerer    prometheus.Registerer
}

// Group represents the local view of a fixed-membership process set and
// routes collectives to the backend registered for the involved device
// type. Registry mutation belongs to the setup phase; once a group is in
// use the maps are read-mostly and safe for concurrent lookup.
type Group struct {
	rank        int
	size        int
	options     types.GroupOptions
	backendType types.BackendType
	store       store.Store
	logger      *zap.Logger
	tracer      trace.Tracer
	metrics     *metrics.Collector
	debugLevel  types.DebugLevel
	id          string

	mu                      sync.RWMutex
	deviceTypes             map[types.DeviceType]struct{}
	deviceTypeToBackendType map[types.DeviceType]types.BackendType
	deviceTypeToBackend     map[types.DeviceType]backend.Backend
	backendTypeToBackend    map[types.BackendType]backend.Backend
	backendIDs              map[types.BackendType]string

	boundDevice *types.Device
	groupName   string
	groupDesc   string
	timing      bool

	coalescing map[types.DeviceType]bool
}

// New constructs a Group against a fixed process set and a rendezvous
// handle. Backends are attached afterwards via SetBackend.
func New(cfg Config) (*Group, error) {
	if cfg.Size <= 0 {
		return nil, types.Errorf(types.ErrInvalidRank, "group size must be positive, got %d", cfg.Size)
	}
	if cfg.Rank < 0 || cfg.Rank >= cfg.Size {
		return nil, types.Errorf(types.ErrInvalidRank, "rank %d outside group of size %d", cfg.Rank, cfg.Size)
	}
	if cfg.Options.Timeout == 0 {
		cfg.Options.Timeout = types.DefaultTimeout
	}
	if err := types.ValidateTimeout(cfg.Options.Timeout); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	g := &Group{
		rank:                    cfg.Rank,
		size:                    cfg.Size,
		options:                 cfg.Options,
		backendType:             types.ParseBackendType(cfg.Options.Backend),
		store:                   cfg.Store,
		logger:                  cfg.Logger.With(zap.Int("rank", cfg.Rank), zap.Int("size", cfg.Size)),
		tracer:                  cfg.Tracer,
		debugLevel:              types.DebugLevelFromEnv(),
		id:                      uuid.NewString(),
		deviceTypes:             make(map[types.DeviceType]struct{}),
		deviceTypeToBackendType: make(map[types.DeviceType]types.BackendType),
		deviceTypeToBackend:     make(map[types.DeviceType]backend.Backend),
		backendTypeToBackend:    make(map[types.BackendType]backend.Backend),
		backendIDs:              make(map[types.BackendType]string),
		groupName:               cfg.Options.GroupName,
		groupDesc:               cfg.Options.GroupDesc,
		coalescing:              make(map[types.DeviceType]bool),
	}
	if cfg.EnableMetrics {
		g.metrics = metrics.NewCollector(cfg.Registerer)
	}
	g.logger.Info("group constructed",
		zap.String("id", g.id),
		zap.String("backend", g.options.Backend),
		zap.String("debug", g.debugLevel.String()))
	return g, nil
}

// SetBackend registers a backend for a device type. When the backend type
// is already attached, the existing instance is reused for the new device
// type and the supplied instance (if any) must agree on the bound device;
// otherwise the supplied instance is registered under both views and the
// group's bound device, if set, is propagated onto it. Instances are never
// duplicated per backend type.
func (g *Group) SetBackend(deviceType types.DeviceType, backendType types.BackendType, b backend.Backend) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.deviceTypeToBackendType[deviceType] = backendType
	g.deviceTypes[deviceType] = struct{}{}

	if existing, ok := g.backendTypeToBackend[backendType]; ok {
		g.deviceTypeToBackend[deviceType] = existing
		if b != nil && b != existing && !sameBoundDevice(existing.BoundDeviceID(), b.BoundDeviceID()) {
			return types.Errorf(types.ErrBoundDeviceMismatch,
				"backend type %s already registered with bound device %v, new instance is bound to %v",
				backendType, deviceString(existing.BoundDeviceID()), deviceString(b.BoundDeviceID()))
		}
		return nil
	}

	if b == nil {
		return nil
	}
	g.deviceTypeToBackend[deviceType] = b
	g.backendTypeToBackend[backendType] = b
	g.backendIDs[backendType] = uuid.NewString()
	if g.boundDevice != nil {
		if err := b.SetBoundDeviceID(g.boundDevice); err != nil {
			return err
		}
	}
	if g.timing {
		b.EnableCollectivesTiming()
	}
	g.logger.Info("backend attached",
		zap.String("device_type", deviceType.String()),
		zap.String("backend_type", backendType.String()),
		zap.String("backend", b.Name()))
	return nil
}

// Backend resolves the backend serving a device type. It fails with a
// not-found error when the device type was never registered.
func (g *Group) Backend(deviceType types.DeviceType) (backend.Backend, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	bt, ok := g.deviceTypeToBackendType[deviceType]
	if !ok {
		return nil, types.Errorf(types.ErrBackendNotFound,
			"no backend registered for device type %s", deviceType)
	}
	b, ok := g.backendTypeToBackend[bt]
	if !ok {
		return nil, types.Errorf(types.ErrBackendNotFound,
			"device type %s maps to backend type %s, but no instance is attached", deviceType, bt)
	}
	return b, nil
}

// BackendByType resolves an attached backend by its kind tag.
func (g *Group) BackendByType(backendType types.BackendType) (backend.Backend, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	b, ok := g.backendTypeToBackend[backendType]
	if !ok {
		return nil, types.Errorf(types.ErrBackendNotFound,
			"no backend of type %s attached", backendType)
	}
	return b, nil
}

// DefaultBackend resolves the backend of the group's own backend type.
// This is the common failure point when callers invoke a feature
// (sequence numbers, hooks) implemented by only some backend kinds.
func (g *Group) DefaultBackend() (backend.Backend, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	b, ok := g.backendTypeToBackend[g.backendType]
	if !ok {
		return nil, types.Errorf(types.ErrBackendNotFound,
			"could not find the default backend type %s for group %q", g.backendType, g.groupName)
	}
	return b, nil
}

// HasBackends reports whether any backend has been registered.
func (g *Group) HasBackends() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.deviceTypeToBackendType) > 0
}

// DeviceTypes returns the device kinds with a registered backend, as
// Devices with the index unset.
func (g *Group) DeviceTypes() []types.Device {
	g.mu.RLock()
	defer g.mu.RUnlock()
	devices := make([]types.Device, 0, len(g.deviceTypes))
	for dt := range g.deviceTypes {
		devices = append(devices, types.NewDevice(dt))
	}
	return devices
}

// Rank returns this process's rank.
func (g *Group) Rank() int { return g.rank }

// Size returns the group cardinality.
func (g *Group) Size() int { return g.size }

// ID returns an opaque identifier stable for the object's lifetime.
func (g *Group) ID() string { return g.id }

// BackendID returns the opaque identifier of an attached backend.
func (g *Group) BackendID(backendType types.BackendType) (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.backendIDs[backendType]
	if !ok {
		return "", types.Errorf(types.ErrBackendNotFound, "no backend of type %s attached", backendType)
	}
	return id, nil
}

// BackendName returns the group's default backend name label.
func (g *Group) BackendName() string { return g.options.Backend }

// BackendType returns the group's default backend kind.
func (g *Group) BackendType() types.BackendType { return g.backendType }

// Options returns the group's immutable options.
func (g *Group) Options() types.GroupOptions { return g.options }

// DebugLevel returns the debug level snapshotted at construction.
func (g *Group) DebugLevel() types.DebugLevel { return g.debugLevel }

// GroupName returns the group identity label.
func (g *Group) GroupName() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.groupName
}

// SetGroupName updates the group identity label.
func (g *Group) SetGroupName(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.groupName = name
}

// GroupDesc returns the group description.
func (g *Group) GroupDesc() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.groupDesc
}

// SetGroupDesc updates the group description.
func (g *Group) SetGroupDesc(desc string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.groupDesc = desc
}

// BoundDeviceID returns the device the group is committed to, if any.
func (g *Group) BoundDeviceID() *types.Device {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.boundDevice == nil {
		return nil
	}
	d := *g.boundDevice
	return &d
}

// SetBoundDeviceID commits the group to a single concrete device, enabling
// backend-specific fast paths. The device must carry an index.
func (g *Group) SetBoundDeviceID(device *types.Device) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if device == nil {
		g.boundDevice = nil
		return nil
	}
	if !device.HasIndex() {
		return types.Errorf(types.ErrBoundDeviceNoIndex, "bound device %s must carry a device index", device)
	}
	d := *device
	g.boundDevice = &d
	return nil
}

// EnableCollectivesTiming asks every attached backend to stamp completion
// times on the works it emits.
func (g *Group) EnableCollectivesTiming() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.timing = true
	for _, b := range g.backendTypeToBackend {
		b.EnableCollectivesTiming()
	}
}

// Store returns the bootstrap rendezvous handle the group was built with.
func (g *Group) Store() store.Store { return g.store }

// Close releases every distinct attached backend.
func (g *Group) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var firstErr error
	for bt, b := range g.backendTypeToBackend {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(g.backendTypeToBackend, bt)
	}
	return firstErr
}

func sameBoundDevice(a, b *types.Device) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func deviceString(d *types.Device) string {
	if d == nil {
		return "<none>"
	}
	return d.String()
}

package selection

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/markgpu/gpucore"
	"github.com/gogpu/markgpu/internal/channel"
	"github.com/gogpu/markgpu/internal/hashtable"
	"github.com/gogpu/markgpu/internal/uniform"
	"github.com/gogpu/markgpu/internal/wgsl"
)

// AddUniforms appends the selection uniforms in definition order.
func AddUniforms(b *uniform.Builder, defs []Def) {
	for _, d := range defs {
		switch d.Type {
		case channel.SelectionSingle, channel.SelectionMulti:
			b.Add(uniform.Field{Name: d.UniformName(), Type: wgsl.U32, Components: 1})
		case channel.SelectionInterval:
			b.Add(uniform.Field{Name: d.UniformName(), Type: d.ScalarType.Or(wgsl.F32), Components: 2})
		}
	}
}

// ConditionUniform names the uniform of a dynamic condition value.
func ConditionUniform(channelName string, k int) string {
	return fmt.Sprintf("%s%s__cond%d", wgsl.ValuePrefix, channelName, k)
}

// AddConditionUniforms appends one uniform per dynamic condition, typed
// like the scaled output of its channel.
func AddConditionUniforms(b *uniform.Builder, channels []channel.Named) {
	for _, ch := range channels {
		if len(ch.Config.Conditions) == 0 {
			continue
		}
		a := channel.Analyze(ch.Name, ch.Config)
		t := wgsl.F32
		if a.OutputComponents == 1 {
			t = a.OutputScalarType
		}
		for k, c := range ch.Config.Conditions {
			if c.Dynamic {
				b.Add(uniform.Field{Name: ConditionUniform(ch.Name, k), Type: t, Components: a.OutputComponents})
			}
		}
	}
}

// Update is a new selection state. Type must match the definition.
type Update struct {
	Type     channel.SelectionType
	ID       uint32
	IDs      []uint32
	Min, Max float64
}

// Single selects one instance id. Zero selects nothing.
func Single(id uint32) Update {
	return Update{Type: channel.SelectionSingle, ID: id}
}

// Multi selects a set of instance ids.
func Multi(ids ...uint32) Update {
	return Update{Type: channel.SelectionMulti, IDs: ids}
}

// Interval selects the inclusive range [lo, hi]. lo > hi selects nothing.
func Interval(lo, hi float64) Update {
	return Update{Type: channel.SelectionInterval, Min: lo, Max: hi}
}

// Context is what the manager needs from the mark that owns it.
type Context struct {
	Device   gpucore.Device
	Uniforms *uniform.Buffer
	Logger   *slog.Logger
	Label    string
}

type setBuffer struct {
	id       gpucore.BufferID
	size     uint64
	capacity int
}

// Manager owns the selection uniforms and multi-selection hash sets of
// one mark.
type Manager struct {
	ctx      Context
	defs     []Def
	index    map[string]int
	channels []channel.Named
	buffers  map[string]*setBuffer
}

// NewManager collects the selections of channels. Single and multi
// selections need the uniqueId channel.
func NewManager(ctx Context, channels []channel.Named) (*Manager, error) {
	if ctx.Logger == nil {
		ctx.Logger = slog.New(slog.DiscardHandler)
	}
	defs, err := Collect(channels)
	if err != nil {
		return nil, err
	}
	if needsUniqueID(defs) {
		if _, ok := channel.Lookup(channels, UniqueIDChannel); !ok {
			return nil, ErrMissingUniqueID
		}
	}
	m := &Manager{
		ctx:      ctx,
		defs:     defs,
		index:    make(map[string]int, len(defs)),
		channels: channels,
		buffers:  make(map[string]*setBuffer),
	}
	for i, d := range defs {
		m.index[d.Name] = i
	}
	return m, nil
}

// Defs returns the collected selections in definition order.
func (m *Manager) Defs() []Def {
	return m.defs
}

// Def returns one selection by name.
func (m *Manager) Def(name string) (Def, bool) {
	i, ok := m.index[name]
	if !ok {
		return Def{}, false
	}
	return m.defs[i], true
}

func (m *Manager) set(name string, values ...float64) error {
	if m.ctx.Uniforms == nil {
		return fmt.Errorf("selection: no uniform buffer for %q", name)
	}
	return m.ctx.Uniforms.Set(name, values...)
}

// Initialize puts every selection in its empty state and writes the
// initial dynamic condition values.
func (m *Manager) Initialize() error {
	for _, d := range m.defs {
		switch d.Type {
		case channel.SelectionSingle:
			if err := m.set(d.UniformName(), 0); err != nil {
				return err
			}
		case channel.SelectionInterval:
			if err := m.set(d.UniformName(), 1, 0); err != nil {
				return err
			}
		case channel.SelectionMulti:
			if _, err := m.writeSet(d, nil); err != nil {
				return err
			}
		}
	}
	for _, ch := range m.channels {
		for k, c := range ch.Config.Conditions {
			if !c.Dynamic {
				continue
			}
			if err := m.set(ConditionUniform(ch.Name, k), c.Value...); err != nil {
				return fmt.Errorf("channel %q condition %d: %w", ch.Name, k, err)
			}
		}
	}
	return nil
}

// Update applies a new selection state. It reports true when a membership
// buffer was replaced and the bind group must be rebuilt.
func (m *Manager) Update(name string, u Update) (bool, error) {
	d, ok := m.Def(name)
	if !ok {
		return false, fmt.Errorf("%w %q", ErrUnknownSelection, name)
	}
	if u.Type != d.Type {
		return false, invalid("selection %q must remain type %q", name, d.Type)
	}
	switch d.Type {
	case channel.SelectionSingle:
		return false, m.set(d.UniformName(), float64(u.ID))
	case channel.SelectionInterval:
		return false, m.set(d.UniformName(), u.Min, u.Max)
	}
	return m.writeSet(d, u.IDs)
}

// SetConditionValue rewrites the value of a dynamic condition.
func (m *Manager) SetConditionValue(channelName string, k int, values []float64) error {
	cfg, ok := channel.Lookup(m.channels, channelName)
	if !ok || k < 0 || k >= len(cfg.Conditions) {
		return invalid("channel %q has no condition %d", channelName, k)
	}
	if !cfg.Conditions[k].Dynamic {
		return invalid("condition %d on %q is not dynamic", k, channelName)
	}
	return m.set(ConditionUniform(channelName, k), values...)
}

// writeSet rebuilds a membership set. The set is rebuilt at the current
// buffer capacity when it fits, so stale slots never survive.
func (m *Manager) writeSet(d Def, ids []uint32) (bool, error) {
	need, err := hashtable.CapacityFor(len(ids), 0)
	if err != nil {
		return false, err
	}
	cur := m.buffers[d.Name]
	var table *hashtable.Table
	switch {
	case len(ids) == 0 && cur == nil:
		table = hashtable.Empty()
	case cur != nil && cur.capacity >= need:
		table, err = hashtable.BuildSet(ids, hashtable.Options{Capacity: cur.capacity})
	default:
		table, err = hashtable.BuildSet(ids, hashtable.Options{})
	}
	if err != nil {
		return false, fmt.Errorf("selection %q: %w", d.Name, err)
	}
	if err := m.set(d.UniformName(), float64(table.Size)); err != nil {
		return false, err
	}

	data := table.Bytes()
	if cur != nil && cur.size >= uint64(len(data)) {
		m.ctx.Device.WriteBuffer(cur.id, 0, data)
		return false, nil
	}
	id, err := m.ctx.Device.CreateBuffer(gpucore.BufferDesc{
		Label: m.ctx.Label + d.BufferName(),
		Size:  uint64(len(data)),
		Usage: gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst,
	})
	if err != nil {
		return false, fmt.Errorf("selection %q: create buffer: %w", d.Name, err)
	}
	m.ctx.Device.WriteBuffer(id, 0, data)
	if cur != nil {
		m.ctx.Device.DestroyBuffer(cur.id)
		m.ctx.Logger.Debug("selection buffer grown", "selection", d.Name, "capacity", table.Capacity)
	} else {
		cur = &setBuffer{}
		m.buffers[d.Name] = cur
	}
	cur.id, cur.size, cur.capacity = id, uint64(len(data)), table.Capacity
	return true, nil
}

// Buffer returns a membership buffer by WGSL name (selection_<name>).
func (m *Manager) Buffer(bufferName string) (gpucore.BufferID, bool) {
	for _, d := range m.defs {
		if d.BufferName() != bufferName {
			continue
		}
		if b, ok := m.buffers[d.Name]; ok {
			return b.id, true
		}
	}
	return gpucore.InvalidID, false
}

// Close destroys the membership buffers.
func (m *Manager) Close() {
	for name, b := range m.buffers {
		m.ctx.Device.DestroyBuffer(b.id)
		delete(m.buffers, name)
	}
}

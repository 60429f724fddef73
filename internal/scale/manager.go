package scale

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	"github.com/gogpu/markgpu/gpucore"
	"github.com/gogpu/markgpu/internal/hashtable"
	"github.com/gogpu/markgpu/internal/uniform"
	"github.com/gogpu/markgpu/internal/wgsl"
)

// AddUniforms appends the uniform fields a channel's scale needs: stop
// arrays, family parameters, then the ordinal range and domain map counts.
func AddUniforms(b *uniform.Builder, bind Binding) error {
	def, err := LookupName(bind.Scale.typeName())
	if err != nil {
		return err
	}
	info := def.Info()
	req := info.Requirements(bind.Piecewise)
	if req.Stops != StopNone {
		dl, rl, err := def.StopLengths(bind, req.Stops)
		if err != nil {
			return err
		}
		rangeType, rangeComps := rangeUniformType(bind)
		b.Add(uniform.Field{Name: wgsl.DomainPrefix + bind.Name, Type: wgsl.F32, Components: 1, ArrayLength: dl})
		b.Add(uniform.Field{Name: wgsl.RangePrefix + bind.Name, Type: rangeType, Components: rangeComps, ArrayLength: rl})
	}
	for _, p := range info.Params {
		b.Add(uniform.Field{Name: p.Prefix + bind.Name, Type: wgsl.F32, Components: 1})
	}
	if req.NeedsOrdinalRange {
		b.Add(uniform.Field{Name: wgsl.RangeCountPrefix + bind.Name, Type: wgsl.F32, Components: 1})
	}
	if req.NeedsDomainMap {
		b.Add(uniform.Field{Name: wgsl.DomainMapCountPrefix + bind.Name, Type: wgsl.F32, Components: 1})
	}
	return nil
}

// rangeUniformType is the element type of the uRange_ array. Range
// textures store unit positions; vector outputs use whole vec4 elements.
func rangeUniformType(b Binding) (wgsl.ScalarType, int) {
	if b.UseRangeTexture {
		return wgsl.F32, 1
	}
	if b.OutputComponents == 1 {
		return b.OutputType.Or(wgsl.F32), 1
	}
	return wgsl.F32, 4
}

func (c *Config) typeName() string {
	if c == nil {
		return ""
	}
	return c.Type
}

// Context is what the manager needs from the mark that owns it.
type Context struct {
	Device   gpucore.Device
	Uniforms *uniform.Buffer

	// DefaultRange returns the renderer default range of a channel, or nil.
	DefaultRange func(channel string) []float64

	Logger *slog.Logger
	Label  string
}

type storageSlot struct {
	id   gpucore.BufferID
	size uint64
}

type rampSlot struct {
	texture gpucore.TextureID
	sampler gpucore.SamplerID
	width   uint32
}

type channelState struct {
	bind Binding
	def  Def
	req  Requirements

	domainLength int
	rangeLength  int

	domainMap    *storageSlot
	ordinalRange *storageSlot
	ramp         *rampSlot
}

// Manager owns the scale resources of one mark: stop uniforms, domain
// map hash tables, ordinal range buffers and colour ramp textures.
type Manager struct {
	ctx      Context
	order    []string
	channels map[string]*channelState
}

// NewManager prepares state for every binding with a non-identity scale.
func NewManager(ctx Context, bindings []Binding) (*Manager, error) {
	if ctx.Logger == nil {
		ctx.Logger = slog.New(slog.DiscardHandler)
	}
	m := &Manager{ctx: ctx, channels: make(map[string]*channelState)}
	for _, b := range bindings {
		def, err := LookupName(b.Scale.typeName())
		if err != nil {
			return nil, fmt.Errorf("channel %q: %w", b.Name, err)
		}
		m.order = append(m.order, b.Name)
		m.channels[b.Name] = &channelState{
			bind: b,
			def:  def,
			req:  def.Info().Requirements(b.Piecewise),
		}
	}
	return m, nil
}

func (m *Manager) state(name string) (*channelState, error) {
	st, ok := m.channels[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownChannel, name)
	}
	return st, nil
}

func (m *Manager) set(name string, values ...float64) error {
	if m.ctx.Uniforms == nil {
		return fmt.Errorf("scale: no uniform buffer for %q", name)
	}
	return m.ctx.Uniforms.Set(name, values...)
}

func (m *Manager) defaultRange(name string) []float64 {
	if m.ctx.DefaultRange == nil {
		return nil
	}
	return m.ctx.DefaultRange(name)
}

// InitializeAll initializes every managed channel in declaration order.
func (m *Manager) InitializeAll() error {
	for _, name := range m.order {
		if err := m.Initialize(name); err != nil {
			return err
		}
	}
	return nil
}

// Initialize writes the initial stops, parameters and auxiliary buffers
// of one channel.
func (m *Manager) Initialize(name string) error {
	st, err := m.state(name)
	if err != nil {
		return err
	}
	b := st.bind
	cfg := b.Scale
	if cfg == nil {
		cfg = &Config{}
	}

	if st.req.Stops != StopNone {
		if b.UseRangeTexture {
			if err := m.initRampStops(st, cfg); err != nil {
				return err
			}
		} else {
			stops, err := st.def.NormalizeStops(b, st.req.Stops, m.defaultRange(name))
			if err != nil {
				return err
			}
			st.domainLength, st.rangeLength = stops.DomainLength, stops.RangeLength
			if err := m.set(wgsl.DomainPrefix+name, stops.Domain...); err != nil {
				return err
			}
			if err := m.set(wgsl.RangePrefix+name, stops.Range...); err != nil {
				return err
			}
		}
	}

	if st.req.NeedsDomainMap {
		if cfg.Domain == nil {
			return configErr("scale on %q requires an explicit domain array", name)
		}
		if _, err := m.applyDomainMap(st, cfg.Domain); err != nil {
			return err
		}
	}

	if st.req.NeedsOrdinalRange {
		if _, err := m.writeOrdinalRange(st, cfg.Range); err != nil {
			return err
		}
	}

	for _, p := range st.def.Info().Params {
		v := p.Default
		if override, ok := cfg.param(p.Prop); ok {
			v = override
		}
		if err := m.set(p.Prefix+name, v); err != nil {
			return err
		}
	}
	return nil
}

// initRampStops stores raw domain stops and unit range positions, then
// builds the colour ramp the shader samples.
func (m *Manager) initRampStops(st *channelState, cfg *Config) error {
	name := st.bind.Name
	dl, rl, err := st.def.StopLengths(st.bind, st.req.Stops)
	if err != nil {
		return err
	}
	st.domainLength, st.rangeLength = dl, rl

	domain := domainPair(cfg.Domain)
	rng := []float64{0, 1}
	if st.req.Stops == StopPiecewise {
		domain = append([]float64(nil), cfg.Domain...)
		rng = RangePositions(rl)
	}
	if err := m.set(wgsl.DomainPrefix+name, domain...); err != nil {
		return err
	}
	if err := m.set(wgsl.RangePrefix+name, rng...); err != nil {
		return err
	}
	texels, err := rampFor(name, cfg, cfg.Range, cfg.Interpolator)
	if err != nil {
		return err
	}
	_, err = m.writeRamp(st, texels)
	return err
}

// UpdateDomain replaces a channel's domain. It reports true when an
// auxiliary buffer had to be reallocated and the bind group must be
// rebuilt.
func (m *Manager) UpdateDomain(name string, domain []float64) (bool, error) {
	st, err := m.state(name)
	if err != nil {
		return false, err
	}
	rebind := false
	stopDomain := domain
	if st.req.NeedsDomainMap {
		dm, err := m.applyDomainMap(st, domain)
		if err != nil {
			return false, err
		}
		rebind = dm.replaced
		if dm.uniform != nil {
			stopDomain = dm.uniform
		}
	}
	if st.req.Stops == StopNone {
		return rebind, nil
	}
	if err := m.updateStopDomain(st, stopDomain); err != nil {
		return false, err
	}
	return rebind, nil
}

func (m *Manager) updateStopDomain(st *channelState, domain []float64) error {
	name := st.bind.Name
	label := stopLabel(st.req.Stops)
	switch st.req.Stops {
	case StopContinuous, StopQuantize:
		if st.bind.Kind() == Index {
			packed, err := indexDomain(name, domain)
			if err != nil {
				return err
			}
			return m.set(wgsl.DomainPrefix+name, packed...)
		}
		if len(domain) < 2 || (st.req.Stops == StopQuantize && len(domain) != 2) {
			return configErr("%s scale on %q expects 2 domain entries, got %d", label, name, len(domain))
		}
		return m.set(wgsl.DomainPrefix+name, domain[0], domain[1])
	}
	if len(domain) != st.domainLength {
		return configErr("%s scale on %q expects %d domain entries, got %d", label, name, st.domainLength, len(domain))
	}
	return m.set(wgsl.DomainPrefix+name, domain...)
}

// UpdateRange replaces a channel's range. It reports true when the
// ordinal range buffer or the ramp texture was reallocated.
func (m *Manager) UpdateRange(name string, rng []RangeValue) (bool, error) {
	st, err := m.state(name)
	if err != nil {
		return false, err
	}
	b := st.bind
	switch {
	case b.UseRangeTexture:
		if st.req.Stops == StopPiecewise && len(rng) != st.rangeLength {
			return false, configErr("scale on %q expects %d range entries, got %d", name, st.rangeLength, len(rng))
		}
		texels, err := rampFor(name, b.Scale, rng, nil)
		if err != nil {
			return false, err
		}
		return m.writeRamp(st, texels)
	case st.req.NeedsOrdinalRange:
		return m.writeOrdinalRange(st, rng)
	case st.req.Stops == StopNone:
		return false, configErr("channel %q does not use a scale with range values", name)
	case st.req.Stops == StopContinuous:
		if len(rng) < 2 {
			return false, configErr("scale range for %q must have two numeric entries", name)
		}
		pair, err := numericPair(name, rng)
		if err != nil {
			return false, err
		}
		return false, m.set(wgsl.RangePrefix+name, pair...)
	}
	label := stopLabel(st.req.Stops)
	if len(rng) != st.rangeLength {
		return false, configErr("%s scale on %q expects %d range entries, got %d", label, name, st.rangeLength, len(rng))
	}
	values, _, err := normalizeDiscreteRange(name, rng, b.OutputComponents, label, 1)
	if err != nil {
		return false, err
	}
	return false, m.set(wgsl.RangePrefix+name, values...)
}

// UpdateInterpolator replaces the colour ramp of an interpolated channel.
func (m *Manager) UpdateInterpolator(name string, fn Interpolator) (bool, error) {
	st, err := m.state(name)
	if err != nil {
		return false, err
	}
	if !st.bind.UseRangeTexture || fn == nil {
		return false, configErr("scale on %q does not support interpolator ranges", name)
	}
	return m.writeRamp(st, Ramp(fn))
}

type domainMapResult struct {
	replaced bool
	uniform  []float64
}

func (m *Manager) applyDomainMap(st *channelState, domain []float64) (domainMapResult, error) {
	name := st.bind.Name
	mapper, ok := st.def.(DomainMapper)
	if !ok {
		return domainMapResult{}, configErr("scale %q does not provide domain map normalization", st.bind.Kind())
	}
	dm, err := mapper.NormalizeDomainMap(name, domain)
	if err != nil {
		return domainMapResult{}, err
	}

	entries := make([]hashtable.Entry, len(dm.Keys))
	for i, k := range dm.Keys {
		entries[i] = hashtable.Entry{Key: k, Value: uint32(i)}
	}
	table, err := buildDomainTable(entries, st.domainMap)
	if err != nil {
		return domainMapResult{}, fmt.Errorf("domain map for %q: %w", name, err)
	}
	count := len(dm.Keys)

	if st.domainMap == nil {
		st.domainMap = &storageSlot{}
	}
	replaced, err := m.writeStorage(st.domainMap, wgsl.DomainMapPrefix+name, table.Bytes())
	if err != nil {
		return domainMapResult{}, err
	}
	if err := m.set(wgsl.DomainMapCountPrefix+name, float64(count)); err != nil {
		return domainMapResult{}, err
	}
	if dm.DomainUniform != nil {
		if err := m.set(wgsl.DomainPrefix+name, dm.DomainUniform...); err != nil {
			return domainMapResult{}, err
		}
	}
	return domainMapResult{replaced: replaced, uniform: dm.DomainUniform}, nil
}

// buildDomainTable builds the lookup table for entries. A current buffer
// with enough slots is reused at its full capacity, since the shader
// probes arrayLength slots.
func buildDomainTable(entries []hashtable.Entry, cur *storageSlot) (*hashtable.Table, error) {
	have := 0
	if cur != nil {
		have = int(cur.size / 8)
	}
	if len(entries) == 0 && have == 0 {
		return hashtable.Empty(), nil
	}
	need, err := hashtable.CapacityFor(len(entries), 0)
	if err != nil {
		return nil, err
	}
	opts := hashtable.Options{}
	if have >= need {
		opts.Capacity = have
	}
	return hashtable.BuildMap(entries, opts)
}

func (m *Manager) writeOrdinalRange(st *channelState, rng []RangeValue) (bool, error) {
	name := st.bind.Name
	b := st.bind
	if b.Scale != nil && b.Scale.Interpolator != nil {
		return false, configErr("ordinal scale on %q does not support interpolator ranges", name)
	}
	values, comps, err := normalizeDiscreteRange(name, rng, b.OutputComponents, "Ordinal", 1)
	if err != nil {
		return false, err
	}
	data := make([]byte, len(values)*4)
	for i, v := range values {
		var bits uint32
		switch {
		case comps > 1 || b.OutputType.Or(wgsl.F32) == wgsl.F32:
			bits = math.Float32bits(float32(v))
		case b.OutputType == wgsl.I32:
			bits = uint32(int32(v))
		default:
			bits = uint32(v)
		}
		binary.LittleEndian.PutUint32(data[i*4:], bits)
	}
	if st.ordinalRange == nil {
		st.ordinalRange = &storageSlot{}
	}
	replaced, err := m.writeStorage(st.ordinalRange, wgsl.OrdinalRangePrefix+name, data)
	if err != nil {
		return false, err
	}
	if err := m.set(wgsl.RangeCountPrefix+name, float64(len(rng))); err != nil {
		return false, err
	}
	return replaced, nil
}

// writeStorage uploads data, allocating a larger buffer first when the
// current one is too small. The old buffer is destroyed only after the
// new ID is stored.
func (m *Manager) writeStorage(slot *storageSlot, label string, data []byte) (bool, error) {
	dev := m.ctx.Device
	size := uint64(len(data))
	if slot.id != gpucore.InvalidID && slot.size >= size {
		dev.WriteBuffer(slot.id, 0, data)
		return false, nil
	}
	id, err := dev.CreateBuffer(gpucore.BufferDesc{
		Label: m.ctx.Label + label,
		Size:  size,
		Usage: gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst,
	})
	if err != nil {
		return false, fmt.Errorf("scale: create %s: %w", label, err)
	}
	dev.WriteBuffer(id, 0, data)
	old := slot.id
	slot.id, slot.size = id, size
	if old != gpucore.InvalidID {
		dev.DestroyBuffer(old)
		m.ctx.Logger.Debug("scale buffer grown", "buffer", label, "bytes", size)
	}
	return true, nil
}

func (m *Manager) writeRamp(st *channelState, texels []byte) (bool, error) {
	dev := m.ctx.Device
	name := st.bind.Name
	width := uint32(len(texels) / 4)
	if st.ramp != nil && st.ramp.width == width {
		dev.WriteTexture(st.ramp.texture, texels)
		return false, nil
	}
	tex, err := dev.CreateTexture(gpucore.TextureDesc{
		Label:  m.ctx.Label + wgsl.RangeTexturePrefix + name,
		Width:  width,
		Height: 1,
	})
	if err != nil {
		return false, fmt.Errorf("scale: create range texture for %q: %w", name, err)
	}
	dev.WriteTexture(tex, texels)
	if st.ramp == nil {
		sampler, err := dev.CreateSampler(m.ctx.Label + wgsl.RangeSamplerPrefix + name)
		if err != nil {
			dev.DestroyTexture(tex)
			return false, fmt.Errorf("scale: create range sampler for %q: %w", name, err)
		}
		st.ramp = &rampSlot{sampler: sampler}
	}
	old := st.ramp.texture
	st.ramp.texture, st.ramp.width = tex, width
	if old != gpucore.InvalidID {
		dev.DestroyTexture(old)
	}
	return true, nil
}

// DomainMapBuffer returns the domain map buffer of a channel.
func (m *Manager) DomainMapBuffer(name string) (gpucore.BufferID, bool) {
	st, ok := m.channels[name]
	if !ok || st.domainMap == nil {
		return gpucore.InvalidID, false
	}
	return st.domainMap.id, true
}

// OrdinalRangeBuffer returns the ordinal range buffer of a channel.
func (m *Manager) OrdinalRangeBuffer(name string) (gpucore.BufferID, bool) {
	st, ok := m.channels[name]
	if !ok || st.ordinalRange == nil {
		return gpucore.InvalidID, false
	}
	return st.ordinalRange.id, true
}

// RangeTexture returns the colour ramp texture and sampler of a channel.
func (m *Manager) RangeTexture(name string) (gpucore.TextureID, gpucore.SamplerID, bool) {
	st, ok := m.channels[name]
	if !ok || st.ramp == nil {
		return gpucore.InvalidID, gpucore.InvalidID, false
	}
	return st.ramp.texture, st.ramp.sampler, true
}

// Requirements returns the resource requirements of a managed channel.
func (m *Manager) Requirements(name string) (Requirements, bool) {
	st, ok := m.channels[name]
	if !ok {
		return Requirements{}, false
	}
	return st.req, true
}

// Close destroys every buffer and texture the manager owns.
func (m *Manager) Close() {
	dev := m.ctx.Device
	for _, name := range m.order {
		st := m.channels[name]
		if st.domainMap != nil && st.domainMap.id != gpucore.InvalidID {
			dev.DestroyBuffer(st.domainMap.id)
		}
		if st.ordinalRange != nil && st.ordinalRange.id != gpucore.InvalidID {
			dev.DestroyBuffer(st.ordinalRange.id)
		}
		if st.ramp != nil {
			dev.DestroyTexture(st.ramp.texture)
			dev.DestroySampler(st.ramp.sampler)
		}
		st.domainMap, st.ordinalRange, st.ramp = nil, nil, nil
	}
}

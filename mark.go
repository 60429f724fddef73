package markgpu

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/gogpu/markgpu/gpucore"
	"github.com/gogpu/markgpu/internal/bindgroup"
	"github.com/gogpu/markgpu/internal/channel"
	"github.com/gogpu/markgpu/internal/scale"
	"github.com/gogpu/markgpu/internal/selection"
	"github.com/gogpu/markgpu/internal/series"
	"github.com/gogpu/markgpu/internal/shader"
	"github.com/gogpu/markgpu/internal/uniform"
	"github.com/gogpu/markgpu/internal/wgsl"
)

// InferCount asks NewMark to derive the instance count from the series
// channels.
const InferCount = -1

// Errors returned by Mark.
var (
	ErrClosed         = errors.New("markgpu: mark is closed")
	ErrUnknownChannel = errors.New("markgpu: unknown channel")
	ErrNotDynamic     = errors.New("markgpu: channel is not a dynamic value")
	ErrNoGlobalLayout = errors.New("markgpu: renderer globals have no globals layout")
)

// Mark owns the compiled shader and every GPU resource of one mark.
//
// A Mark is not safe for concurrent use.
type Mark struct {
	dev     gpucore.Device
	globals RendererGlobals
	label   string
	logger  *slog.Logger

	channels []channel.Named
	shader   *shader.Result
	count    int

	uniforms   *uniform.Buffer
	uniformBuf gpucore.BufferID
	layout     gpucore.BindGroupLayoutID
	bindGroup  gpucore.BindGroupID
	rebinds    int

	series     *series.Buffers
	scales     *scale.Manager
	selections *selection.Manager
	extras     map[string]ExtraResource

	module         gpucore.ShaderModuleID
	pipelineLayout gpucore.PipelineLayoutID
	pipeline       gpucore.RenderPipelineID

	closed bool
}

var _ bindgroup.Sources = (*Mark)(nil)

// NewMark compiles channels into a shader and allocates, initializes and
// binds every resource the shader reads. count is the number of instances
// to pack, or InferCount.
func NewMark(globals RendererGlobals, channels []NamedConfig, count int, opts ...MarkOption) (*Mark, error) {
	if globals.Device == nil {
		return nil, ErrNoDevice
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	normalized, err := normalize(channels, o.context)
	if err != nil {
		return nil, err
	}

	m := &Mark{
		dev:      globals.Device,
		globals:  globals,
		label:    o.label,
		logger:   Logger().With("mark", o.label),
		channels: normalized,
		extras:   make(map[string]ExtraResource, len(o.extras)),
	}
	if err := m.build(o); err != nil {
		m.Close()
		return nil, err
	}
	if err := m.pack(nil, count); err != nil {
		m.Close()
		return nil, err
	}
	if err := m.rebind(); err != nil {
		m.Close()
		return nil, err
	}

	Logger().Info("mark created",
		"label", m.label,
		"channels", len(m.channels),
		"count", m.count,
		"bindings", len(m.shader.LayoutEntries))
	m.logger.Debug("mark shader", "bytes", len(m.shader.Code))
	return m, nil
}

func normalize(channels []NamedConfig, ctx *ChannelContext) ([]channel.Named, error) {
	byName := make(map[string]channel.Config, len(channels))
	order := make([]string, 0, len(channels))
	for _, ch := range channels {
		if _, dup := byName[ch.Name]; dup {
			return nil, fmt.Errorf("%w: channel %q configured twice", channel.ErrInvalid, ch.Name)
		}
		byName[ch.Name] = ch.Config
		order = append(order, ch.Name)
	}
	c := channel.Context{Order: order}
	if ctx != nil {
		c = *ctx
	}
	return channel.Normalize(byName, c)
}

// build lays out and assembles the shader, then creates and initializes
// the managers and the uniform buffer.
func (m *Mark) build(o markOptions) error {
	defs, err := selection.Collect(m.channels)
	if err != nil {
		return err
	}
	layout, err := shader.UniformLayout(m.channels, defs)
	if err != nil {
		return err
	}
	m.uniforms = uniform.NewBuffer(layout)

	m.series, err = series.NewBuffers(m.dev, m.channels, m.label, m.logger)
	if err != nil {
		return err
	}

	extras := shader.SelectionExtras(defs)
	for _, e := range o.extras {
		if _, dup := m.extras[e.Name]; dup {
			return fmt.Errorf("%w: extra resource %q declared twice", shader.ErrInvalid, e.Name)
		}
		m.extras[e.Name] = e
		extras = append(extras, e.Extra)
	}
	m.shader, err = shader.Build(shader.Input{
		Channels:   m.channels,
		Uniforms:   layout,
		Series:     m.series.Layout(),
		Selections: defs,
		Extras:     extras,
		Globals:    o.globalLayout,
		Body:       o.body,
	})
	if err != nil {
		return err
	}

	var bindings []scale.Binding
	for _, ch := range m.channels {
		if a := channel.Analyze(ch.Name, ch.Config); a.HasScale() {
			bindings = append(bindings, a.Binding())
		}
	}
	m.scales, err = scale.NewManager(scale.Context{
		Device:       m.dev,
		Uniforms:     m.uniforms,
		DefaultRange: m.globals.DefaultRange,
		Logger:       m.logger,
		Label:        m.label,
	}, bindings)
	if err != nil {
		return err
	}
	if err := m.scales.InitializeAll(); err != nil {
		return err
	}

	m.selections, err = selection.NewManager(selection.Context{
		Device:   m.dev,
		Uniforms: m.uniforms,
		Logger:   m.logger,
		Label:    m.label,
	}, m.channels)
	if err != nil {
		return err
	}
	if err := m.selections.Initialize(); err != nil {
		return err
	}

	for _, ch := range m.channels {
		if ch.Config.IsSeries() || !ch.Config.Dynamic {
			continue
		}
		if err := m.uniforms.Set(wgsl.ValuePrefix+ch.Name, ch.Config.Value...); err != nil {
			return fmt.Errorf("channel %q: %w", ch.Name, err)
		}
	}

	m.uniformBuf, err = m.dev.CreateBuffer(gpucore.BufferDesc{
		Label: m.label + "_params",
		Size:  uint64(layout.Size()),
		Usage: gpucore.BufferUsageUniform | gpucore.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("markgpu: params buffer: %w", err)
	}
	m.flush()

	m.layout, err = m.dev.CreateBindGroupLayout(gpucore.BindGroupLayoutDesc{
		Label:   m.label + "_layout",
		Entries: m.shader.LayoutEntries,
	})
	if err != nil {
		return fmt.Errorf("markgpu: bind group layout: %w", err)
	}
	return nil
}

// pack uploads series data, replacing channels named in updates.
func (m *Mark) pack(updates map[string]any, count int) error {
	if count < 0 {
		n, ok, err := m.series.InferCount(updates)
		if err != nil {
			return err
		}
		if ok {
			count = n
		} else {
			count = 0
		}
	}
	grown, err := m.series.Update(updates, count)
	if err != nil {
		return err
	}
	for name, data := range updates {
		if cfg, ok := channel.Lookup(m.channels, name); ok {
			cfg.Data = data
		}
	}
	m.count = count
	if grown && m.bindGroup != gpucore.InvalidID {
		return m.rebind()
	}
	return nil
}

// flush writes the Params block if any uniform changed.
func (m *Mark) flush() {
	if !m.uniforms.Dirty() {
		return
	}
	m.dev.WriteBuffer(m.uniformBuf, 0, m.uniforms.Bytes())
	m.uniforms.MarkClean()
}

// rebind rebuilds the bind group from the current resource IDs.
func (m *Mark) rebind() error {
	entries, err := bindgroup.Build(m.uniformBuf, m.shader.Resources, m)
	if err != nil {
		return err
	}
	id, err := m.dev.CreateBindGroup(gpucore.BindGroupDesc{
		Label:   m.label + "_bind",
		Layout:  m.layout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("markgpu: bind group: %w", err)
	}
	if m.bindGroup != gpucore.InvalidID {
		m.dev.DestroyBindGroup(m.bindGroup)
		m.rebinds++
		m.logger.Debug("bind group rebuilt", "rebinds", m.rebinds)
	}
	m.bindGroup = id
	return nil
}

func (m *Mark) finish(rebind bool, err error) error {
	m.flush()
	if err != nil {
		return err
	}
	if rebind {
		return m.rebind()
	}
	return nil
}

// === Updates ===

// UpdateSeries replaces the data of series channels and repacks every
// instance. The instance count is inferred again from the new data.
func (m *Mark) UpdateSeries(updates map[string]any) error {
	if m.closed {
		return ErrClosed
	}
	return m.pack(updates, InferCount)
}

// UpdateSeriesCount is UpdateSeries with an explicit instance count.
func (m *Mark) UpdateSeriesCount(updates map[string]any, count int) error {
	if m.closed {
		return ErrClosed
	}
	return m.pack(updates, count)
}

// UpdateValues changes dynamic value channels. Only the Params block is
// written.
func (m *Mark) UpdateValues(values map[string][]float64) error {
	if m.closed {
		return ErrClosed
	}
	for _, name := range slices.Sorted(maps.Keys(values)) {
		cfg, ok := channel.Lookup(m.channels, name)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownChannel, name)
		}
		if cfg.IsSeries() || !cfg.Dynamic {
			return fmt.Errorf("%w: %q", ErrNotDynamic, name)
		}
		v := values[name]
		if err := m.uniforms.Set(wgsl.ValuePrefix+name, v...); err != nil {
			return m.finish(false, fmt.Errorf("channel %q: %w", name, err))
		}
		cfg.Value = append([]float64(nil), v...)
	}
	return m.finish(false, nil)
}

// UpdateConditionValue changes the value of the k-th dynamic condition of
// a channel.
func (m *Mark) UpdateConditionValue(channelName string, k int, values []float64) error {
	if m.closed {
		return ErrClosed
	}
	return m.finish(false, m.selections.SetConditionValue(channelName, k, values))
}

// UpdateScaleDomains replaces scale domains. Band and ordinal domain maps
// are rebuilt in place unless they outgrow their buffers.
func (m *Mark) UpdateScaleDomains(domains map[string][]float64) error {
	if m.closed {
		return ErrClosed
	}
	rebind := false
	for _, name := range slices.Sorted(maps.Keys(domains)) {
		grown, err := m.scales.UpdateDomain(name, domains[name])
		if err != nil {
			return m.finish(rebind, err)
		}
		rebind = rebind || grown
	}
	return m.finish(rebind, nil)
}

// UpdateScaleRanges replaces scale ranges.
func (m *Mark) UpdateScaleRanges(ranges map[string][]RangeValue) error {
	if m.closed {
		return ErrClosed
	}
	rebind := false
	for _, name := range slices.Sorted(maps.Keys(ranges)) {
		grown, err := m.scales.UpdateRange(name, ranges[name])
		if err != nil {
			return m.finish(rebind, err)
		}
		rebind = rebind || grown
	}
	return m.finish(rebind, nil)
}

// UpdateScaleInterpolator replaces the colour ramp function of a channel.
func (m *Mark) UpdateScaleInterpolator(name string, fn Interpolator) error {
	if m.closed {
		return ErrClosed
	}
	return m.finish(m.scales.UpdateInterpolator(name, fn))
}

// UpdateSelection sets the state of a selection. Multi selections
// rebuild their hash set and rebind only if it outgrew its buffer.
func (m *Mark) UpdateSelection(name string, u SelectionUpdate) error {
	if m.closed {
		return ErrClosed
	}
	return m.finish(m.selections.Update(name, u))
}

// SetExtra replaces the resource IDs bound to a declared extra.
func (m *Mark) SetExtra(r ExtraResource) error {
	if m.closed {
		return ErrClosed
	}
	cur, ok := m.extras[r.Name]
	if !ok {
		return fmt.Errorf("%w: extra %q", ErrUnknownChannel, r.Name)
	}
	r.Extra = cur.Extra
	if r == cur {
		return nil
	}
	m.extras[r.Name] = r
	return m.rebind()
}

// === Accessors ===

// ShaderCode returns the assembled WGSL.
func (m *Mark) ShaderCode() string { return m.shader.Code }

// ResourceLayout returns the bindings after the Params block, in binding
// order.
func (m *Mark) ResourceLayout() []Resource {
	return slices.Clone(m.shader.Resources)
}

// LayoutEntries returns the @group(1) layout, binding 0 included.
func (m *Mark) LayoutEntries() []gpucore.BindGroupLayoutEntry {
	return slices.Clone(m.shader.LayoutEntries)
}

// BindGroupLayout returns the @group(1) layout.
func (m *Mark) BindGroupLayout() gpucore.BindGroupLayoutID { return m.layout }

// BindGroup returns the current @group(1) bind group. The ID changes
// whenever an update replaced a buffer or texture.
func (m *Mark) BindGroup() gpucore.BindGroupID { return m.bindGroup }

// UniformBuffer returns the Params buffer.
func (m *Mark) UniformBuffer() gpucore.BufferID { return m.uniformBuf }

// SeriesBuckets reports the packed series layout and allocated buffer
// sizes.
func (m *Mark) SeriesBuckets() []SeriesBucket { return m.series.Info() }

// Count returns the number of packed instances.
func (m *Mark) Count() int { return m.count }

// Channels returns the normalized channel configurations.
func (m *Mark) Channels() []NamedConfig {
	return slices.Clone(m.channels)
}

// CreatePipeline compiles the shader and creates an instanced render
// pipeline with layout [globals, mark]. The pipeline is created once and
// reused.
func (m *Mark) CreatePipeline(vertexEntry, fragmentEntry string) (gpucore.RenderPipelineID, error) {
	if m.closed {
		return gpucore.InvalidID, ErrClosed
	}
	if m.pipeline != gpucore.InvalidID {
		return m.pipeline, nil
	}
	if m.globals.GlobalsLayout == gpucore.InvalidID {
		return gpucore.InvalidID, ErrNoGlobalLayout
	}

	var err error
	if m.module == gpucore.InvalidID {
		m.module, err = m.dev.CreateShaderModule(m.shader.Code, m.label+"_shader")
		if err != nil {
			return gpucore.InvalidID, fmt.Errorf("markgpu: shader module: %w", err)
		}
	}
	if m.pipelineLayout == gpucore.InvalidID {
		m.pipelineLayout, err = m.dev.CreatePipelineLayout(gpucore.PipelineLayoutDesc{
			Label:            m.label + "_pipeline_layout",
			BindGroupLayouts: []gpucore.BindGroupLayoutID{m.globals.GlobalsLayout, m.layout},
		})
		if err != nil {
			return gpucore.InvalidID, fmt.Errorf("markgpu: pipeline layout: %w", err)
		}
	}
	m.pipeline, err = m.dev.CreateRenderPipeline(gpucore.RenderPipelineDesc{
		Label:              m.label + "_pipeline",
		Layout:             m.pipelineLayout,
		Module:             m.module,
		VertexEntry:        vertexEntry,
		FragmentEntry:      fragmentEntry,
		PremultipliedBlend: true,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("markgpu: render pipeline: %w", err)
	}
	Logger().Info("mark pipeline created", "label", m.label)
	return m.pipeline, nil
}

// Close releases every resource of the mark. Close is idempotent.
func (m *Mark) Close() {
	if m.closed {
		m.logger.Warn("mark closed twice")
		return
	}
	m.closed = true

	if m.pipeline != gpucore.InvalidID {
		m.dev.DestroyRenderPipeline(m.pipeline)
	}
	if m.pipelineLayout != gpucore.InvalidID {
		m.dev.DestroyPipelineLayout(m.pipelineLayout)
	}
	if m.module != gpucore.InvalidID {
		m.dev.DestroyShaderModule(m.module)
	}
	if m.bindGroup != gpucore.InvalidID {
		m.dev.DestroyBindGroup(m.bindGroup)
	}
	if m.layout != gpucore.InvalidID {
		m.dev.DestroyBindGroupLayout(m.layout)
	}
	if m.uniformBuf != gpucore.InvalidID {
		m.dev.DestroyBuffer(m.uniformBuf)
	}
	if m.series != nil {
		m.series.Close()
	}
	if m.scales != nil {
		m.scales.Close()
	}
	if m.selections != nil {
		m.selections.Close()
	}
	m.pipeline, m.pipelineLayout, m.module = gpucore.InvalidID, gpucore.InvalidID, gpucore.InvalidID
	m.bindGroup, m.layout, m.uniformBuf = gpucore.InvalidID, gpucore.InvalidID, gpucore.InvalidID
}

// === bindgroup.Sources ===

// SeriesBuffer implements bindgroup.Sources.
func (m *Mark) SeriesBuffer(name string) (gpucore.BufferID, bool) {
	return m.series.Buffer(name)
}

// OrdinalRangeBuffer implements bindgroup.Sources.
func (m *Mark) OrdinalRangeBuffer(name string) (gpucore.BufferID, bool) {
	return m.scales.OrdinalRangeBuffer(name)
}

// DomainMapBuffer implements bindgroup.Sources.
func (m *Mark) DomainMapBuffer(name string) (gpucore.BufferID, bool) {
	return m.scales.DomainMapBuffer(name)
}

// RangeTexture implements bindgroup.Sources.
func (m *Mark) RangeTexture(name string) (gpucore.TextureID, gpucore.SamplerID, bool) {
	return m.scales.RangeTexture(name)
}

// ExtraBuffer implements bindgroup.Sources. Selection membership buffers
// take precedence over caller extras.
func (m *Mark) ExtraBuffer(name string) (gpucore.BufferID, bool) {
	if id, ok := m.selections.Buffer(name); ok {
		return id, true
	}
	e, ok := m.extras[name]
	if !ok || e.Buffer == gpucore.InvalidID {
		return gpucore.InvalidID, false
	}
	return e.Buffer, true
}

// ExtraTexture implements bindgroup.Sources.
func (m *Mark) ExtraTexture(name string) (gpucore.TextureID, gpucore.SamplerID, bool) {
	e, ok := m.extras[name]
	if !ok {
		return gpucore.InvalidID, gpucore.InvalidID, false
	}
	switch e.Kind {
	case ExtraTexture:
		return e.Texture, e.Sampler, e.Texture != gpucore.InvalidID
	case ExtraSampler:
		return e.Texture, e.Sampler, e.Sampler != gpucore.InvalidID
	}
	return gpucore.InvalidID, gpucore.InvalidID, false
}

package gpucore

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// Memory device errors.
var (
	// ErrUnknownResource is returned when a descriptor references an ID the
	// device does not own.
	ErrUnknownResource = errors.New("gpucore: unknown resource")

	// ErrInvalidBufferSize is returned for zero-sized or misaligned buffers.
	ErrInvalidBufferSize = errors.New("gpucore: invalid buffer size")

	// ErrEmptyShader is returned when a shader module has no source.
	ErrEmptyShader = errors.New("gpucore: empty shader source")
)

// MemoryBuffer is the host-side state of a buffer owned by a MemoryDevice.
type MemoryBuffer struct {
	Label  string
	Usage  BufferUsage
	Data   []byte
	Writes int
}

// MemoryTexture is the host-side state of a texture owned by a MemoryDevice.
type MemoryTexture struct {
	Label  string
	Width  uint32
	Height uint32
	Data   []byte
}

// MemoryBindGroup records a bind group created on a MemoryDevice.
type MemoryBindGroup struct {
	Label   string
	Layout  BindGroupLayoutID
	Entries []BindGroupEntry
}

// MemoryDevice is a Device that keeps every resource in host memory.
//
// It backs headless compilation (cmd/markdemo) and tests. Resources live in
// ID-indexed tables; destroyed IDs are removed and never handed out again.
//
// MemoryDevice is safe for concurrent use.
type MemoryDevice struct {
	mu     sync.Mutex
	nextID atomic.Uint64

	buffers          map[BufferID]*MemoryBuffer
	textures         map[TextureID]*MemoryTexture
	samplers         map[SamplerID]string
	shaders          map[ShaderModuleID]string
	bindGroupLayouts map[BindGroupLayoutID]BindGroupLayoutDesc
	bindGroups       map[BindGroupID]MemoryBindGroup
	pipelineLayouts  map[PipelineLayoutID]PipelineLayoutDesc
	pipelines        map[RenderPipelineID]RenderPipelineDesc

	created   int
	destroyed int
}

// NewMemoryDevice creates an empty MemoryDevice.
func NewMemoryDevice() *MemoryDevice {
	d := &MemoryDevice{
		buffers:          make(map[BufferID]*MemoryBuffer),
		textures:         make(map[TextureID]*MemoryTexture),
		samplers:         make(map[SamplerID]string),
		shaders:          make(map[ShaderModuleID]string),
		bindGroupLayouts: make(map[BindGroupLayoutID]BindGroupLayoutDesc),
		bindGroups:       make(map[BindGroupID]MemoryBindGroup),
		pipelineLayouts:  make(map[PipelineLayoutID]PipelineLayoutDesc),
		pipelines:        make(map[RenderPipelineID]RenderPipelineDesc),
	}
	// Start ID generation at 1 (0 is invalid)
	d.nextID.Store(1)
	return d
}

// newID generates a unique resource ID. Must be called with mu held.
func (d *MemoryDevice) newID() uint64 {
	d.created++
	return d.nextID.Add(1) - 1
}

// CreateShaderModule stores the WGSL source.
func (d *MemoryDevice) CreateShaderModule(wgsl, _ string) (ShaderModuleID, error) {
	if wgsl == "" {
		return InvalidID, ErrEmptyShader
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := ShaderModuleID(d.newID())
	d.shaders[id] = wgsl
	return id, nil
}

// DestroyShaderModule releases a shader module.
func (d *MemoryDevice) DestroyShaderModule(id ShaderModuleID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.shaders[id]; ok {
		delete(d.shaders, id)
		d.destroyed++
	}
}

// ShaderSource returns the WGSL source of a shader module.
func (d *MemoryDevice) ShaderSource(id ShaderModuleID) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	src, ok := d.shaders[id]
	return src, ok
}

// CreateBuffer allocates a zeroed host buffer.
func (d *MemoryDevice) CreateBuffer(desc BufferDesc) (BufferID, error) {
	if desc.Size == 0 || desc.Size%4 != 0 {
		return InvalidID, fmt.Errorf("%w: %q has %d bytes", ErrInvalidBufferSize, desc.Label, desc.Size)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := BufferID(d.newID())
	d.buffers[id] = &MemoryBuffer{
		Label: desc.Label,
		Usage: desc.Usage,
		Data:  make([]byte, desc.Size),
	}
	return id, nil
}

// DestroyBuffer releases a buffer.
func (d *MemoryDevice) DestroyBuffer(id BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.buffers[id]; ok {
		delete(d.buffers, id)
		d.destroyed++
	}
}

// WriteBuffer copies data into the buffer. Writes past the end are clipped,
// mirroring the validation error a real queue would raise.
func (d *MemoryDevice) WriteBuffer(id BufferID, offset uint64, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[id]
	if !ok || offset >= uint64(len(buf.Data)) {
		return
	}
	copy(buf.Data[offset:], data)
	buf.Writes++
}

// BufferSize returns the allocated size of a buffer.
func (d *MemoryDevice) BufferSize(id BufferID) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if buf, ok := d.buffers[id]; ok {
		return uint64(len(buf.Data))
	}
	return 0
}

// Buffer returns a snapshot of a buffer's state.
func (d *MemoryDevice) Buffer(id BufferID) (MemoryBuffer, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[id]
	if !ok {
		return MemoryBuffer{}, false
	}
	snapshot := *buf
	snapshot.Data = slices.Clone(buf.Data)
	return snapshot, true
}

// CreateTexture allocates a zeroed RGBA8 texture.
func (d *MemoryDevice) CreateTexture(desc TextureDesc) (TextureID, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return InvalidID, fmt.Errorf("gpucore: texture %q has zero extent", desc.Label)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := TextureID(d.newID())
	d.textures[id] = &MemoryTexture{
		Label:  desc.Label,
		Width:  desc.Width,
		Height: desc.Height,
		Data:   make([]byte, int(desc.Width)*int(desc.Height)*4),
	}
	return id, nil
}

// DestroyTexture releases a texture.
func (d *MemoryDevice) DestroyTexture(id TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.textures[id]; ok {
		delete(d.textures, id)
		d.destroyed++
	}
}

// WriteTexture copies RGBA8 rows into the texture.
func (d *MemoryDevice) WriteTexture(id TextureID, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if tex, ok := d.textures[id]; ok {
		copy(tex.Data, data)
	}
}

// Texture returns a snapshot of a texture's state.
func (d *MemoryDevice) Texture(id TextureID) (MemoryTexture, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tex, ok := d.textures[id]
	if !ok {
		return MemoryTexture{}, false
	}
	snapshot := *tex
	snapshot.Data = slices.Clone(tex.Data)
	return snapshot, true
}

// CreateSampler records a sampler.
func (d *MemoryDevice) CreateSampler(label string) (SamplerID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := SamplerID(d.newID())
	d.samplers[id] = label
	return id, nil
}

// DestroySampler releases a sampler.
func (d *MemoryDevice) DestroySampler(id SamplerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.samplers[id]; ok {
		delete(d.samplers, id)
		d.destroyed++
	}
}

// CreateBindGroupLayout records a bind group layout.
func (d *MemoryDevice) CreateBindGroupLayout(desc BindGroupLayoutDesc) (BindGroupLayoutID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := BindGroupLayoutID(d.newID())
	desc.Entries = slices.Clone(desc.Entries)
	d.bindGroupLayouts[id] = desc
	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (d *MemoryDevice) DestroyBindGroupLayout(id BindGroupLayoutID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.bindGroupLayouts[id]; ok {
		delete(d.bindGroupLayouts, id)
		d.destroyed++
	}
}

// BindGroupLayout returns a recorded bind group layout.
func (d *MemoryDevice) BindGroupLayout(id BindGroupLayoutID) (BindGroupLayoutDesc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	desc, ok := d.bindGroupLayouts[id]
	return desc, ok
}

// CreateBindGroup validates that every entry references a live resource
// and records the bind group.
func (d *MemoryDevice) CreateBindGroup(desc BindGroupDesc) (BindGroupID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.bindGroupLayouts[desc.Layout]; !ok {
		return InvalidID, fmt.Errorf("%w: bind group layout %d", ErrUnknownResource, desc.Layout)
	}
	for _, e := range desc.Entries {
		switch {
		case e.Buffer != InvalidID:
			if _, ok := d.buffers[e.Buffer]; !ok {
				return InvalidID, fmt.Errorf("%w: buffer %d at binding %d", ErrUnknownResource, e.Buffer, e.Binding)
			}
		case e.Texture != InvalidID:
			if _, ok := d.textures[e.Texture]; !ok {
				return InvalidID, fmt.Errorf("%w: texture %d at binding %d", ErrUnknownResource, e.Texture, e.Binding)
			}
		case e.Sampler != InvalidID:
			if _, ok := d.samplers[e.Sampler]; !ok {
				return InvalidID, fmt.Errorf("%w: sampler %d at binding %d", ErrUnknownResource, e.Sampler, e.Binding)
			}
		default:
			return InvalidID, fmt.Errorf("%w: empty entry at binding %d", ErrUnknownResource, e.Binding)
		}
	}
	id := BindGroupID(d.newID())
	d.bindGroups[id] = MemoryBindGroup{
		Label:   desc.Label,
		Layout:  desc.Layout,
		Entries: slices.Clone(desc.Entries),
	}
	return id, nil
}

// DestroyBindGroup releases a bind group.
func (d *MemoryDevice) DestroyBindGroup(id BindGroupID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.bindGroups[id]; ok {
		delete(d.bindGroups, id)
		d.destroyed++
	}
}

// BindGroup returns a recorded bind group.
func (d *MemoryDevice) BindGroup(id BindGroupID) (MemoryBindGroup, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	bg, ok := d.bindGroups[id]
	return bg, ok
}

// CreatePipelineLayout records a pipeline layout.
func (d *MemoryDevice) CreatePipelineLayout(desc PipelineLayoutDesc) (PipelineLayoutID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range desc.BindGroupLayouts {
		if _, ok := d.bindGroupLayouts[l]; !ok {
			return InvalidID, fmt.Errorf("%w: bind group layout %d", ErrUnknownResource, l)
		}
	}
	id := PipelineLayoutID(d.newID())
	d.pipelineLayouts[id] = desc
	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (d *MemoryDevice) DestroyPipelineLayout(id PipelineLayoutID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pipelineLayouts[id]; ok {
		delete(d.pipelineLayouts, id)
		d.destroyed++
	}
}

// CreateRenderPipeline records a render pipeline.
func (d *MemoryDevice) CreateRenderPipeline(desc RenderPipelineDesc) (RenderPipelineID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.shaders[desc.Module]; !ok {
		return InvalidID, fmt.Errorf("%w: shader module %d", ErrUnknownResource, desc.Module)
	}
	if _, ok := d.pipelineLayouts[desc.Layout]; !ok {
		return InvalidID, fmt.Errorf("%w: pipeline layout %d", ErrUnknownResource, desc.Layout)
	}
	id := RenderPipelineID(d.newID())
	d.pipelines[id] = desc
	return id, nil
}

// DestroyRenderPipeline releases a render pipeline.
func (d *MemoryDevice) DestroyRenderPipeline(id RenderPipelineID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pipelines[id]; ok {
		delete(d.pipelines, id)
		d.destroyed++
	}
}

// Live returns the number of resources currently alive.
func (d *MemoryDevice) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created - d.destroyed
}

var _ Device = (*MemoryDevice)(nil)

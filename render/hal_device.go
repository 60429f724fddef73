// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package render

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/markgpu/gpucore"
	"github.com/gogpu/markgpu/internal/shader"
	"github.com/gogpu/wgpu/hal"
)

// HALDevice implements gpucore.Device using gogpu/wgpu/hal directly.
//
// Thread Safety: HALDevice is safe for concurrent use from multiple
// goroutines. All resource tables are protected by a mutex.
type HALDevice struct {
	mu     sync.RWMutex
	device hal.Device
	queue  hal.Queue
	format gputypes.TextureFormat

	// ID generation
	nextID atomic.Uint64

	// Resource tracking maps gpucore IDs to hal resources
	buffers          map[gpucore.BufferID]halBuffer
	textures         map[gpucore.TextureID]halTexture
	samplers         map[gpucore.SamplerID]hal.Sampler
	shaderModules    map[gpucore.ShaderModuleID]hal.ShaderModule
	bindGroupLayouts map[gpucore.BindGroupLayoutID]hal.BindGroupLayout
	bindGroups       map[gpucore.BindGroupID]hal.BindGroup
	pipelineLayouts  map[gpucore.PipelineLayoutID]hal.PipelineLayout
	renderPipelines  map[gpucore.RenderPipelineID]hal.RenderPipeline
}

type halBuffer struct {
	buf  hal.Buffer
	size uint64
}

type halTexture struct {
	tex           hal.Texture
	view          hal.TextureView
	width, height uint32
}

var _ gpucore.Device = (*HALDevice)(nil)

// OpenDevice wraps the HAL device and queue shared by provider.
// The provider must implement HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue.
func OpenDevice(provider any) (*HALDevice, error) {
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHAL)
	}
	return NewHALDevice(device, queue, surfaceFormat(provider)), nil
}

// NewHALDevice creates a HALDevice wrapping the given device and queue.
// Render pipelines target format; Undefined selects BGRA8Unorm.
func NewHALDevice(device hal.Device, queue hal.Queue, format gputypes.TextureFormat) *HALDevice {
	if format == gputypes.TextureFormatUndefined {
		format = gputypes.TextureFormatBGRA8Unorm
	}
	d := &HALDevice{
		device:           device,
		queue:            queue,
		format:           format,
		buffers:          make(map[gpucore.BufferID]halBuffer),
		textures:         make(map[gpucore.TextureID]halTexture),
		samplers:         make(map[gpucore.SamplerID]hal.Sampler),
		shaderModules:    make(map[gpucore.ShaderModuleID]hal.ShaderModule),
		bindGroupLayouts: make(map[gpucore.BindGroupLayoutID]hal.BindGroupLayout),
		bindGroups:       make(map[gpucore.BindGroupID]hal.BindGroup),
		pipelineLayouts:  make(map[gpucore.PipelineLayoutID]hal.PipelineLayout),
		renderPipelines:  make(map[gpucore.RenderPipelineID]hal.RenderPipeline),
	}
	// Start ID generation at 1 (0 is invalid)
	d.nextID.Store(1)
	return d
}

func (d *HALDevice) newID() uint64 {
	return d.nextID.Add(1) - 1
}

// Format returns the color target format of render pipelines.
func (d *HALDevice) Format() gputypes.TextureFormat { return d.format }

// === Shader Compilation ===

// CreateShaderModule compiles WGSL to SPIR-V with naga and creates a
// shader module from it.
func (d *HALDevice) CreateShaderModule(wgsl, label string) (gpucore.ShaderModuleID, error) {
	if wgsl == "" {
		return gpucore.InvalidID, gpucore.ErrEmptyShader
	}
	spirv, err := shader.Compile(wgsl)
	if err != nil {
		return gpucore.InvalidID, err
	}
	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create shader module %q: %w", label, err)
	}

	id := gpucore.ShaderModuleID(d.newID())
	d.mu.Lock()
	d.shaderModules[id] = module
	d.mu.Unlock()
	return id, nil
}

// DestroyShaderModule releases a shader module.
func (d *HALDevice) DestroyShaderModule(id gpucore.ShaderModuleID) {
	d.mu.Lock()
	module, ok := d.shaderModules[id]
	delete(d.shaderModules, id)
	d.mu.Unlock()

	if ok {
		d.device.DestroyShaderModule(module)
	}
}

// === Buffer Management ===

// CreateBuffer creates a GPU buffer.
func (d *HALDevice) CreateBuffer(desc gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc.Size == 0 || desc.Size%4 != 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: %d", gpucore.ErrInvalidBufferSize, desc.Size)
	}
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: convertBufferUsage(desc.Usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create buffer %q: %w", desc.Label, err)
	}

	id := gpucore.BufferID(d.newID())
	d.mu.Lock()
	d.buffers[id] = halBuffer{buf: buf, size: desc.Size}
	d.mu.Unlock()
	return id, nil
}

// DestroyBuffer releases a GPU buffer.
func (d *HALDevice) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	b, ok := d.buffers[id]
	delete(d.buffers, id)
	d.mu.Unlock()

	if ok {
		d.device.DestroyBuffer(b.buf)
	}
}

// WriteBuffer queues a write into a buffer.
func (d *HALDevice) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) {
	d.mu.RLock()
	b, ok := d.buffers[id]
	d.mu.RUnlock()

	if ok && len(data) > 0 {
		d.queue.WriteBuffer(b.buf, offset, data)
	}
}

// BufferSize returns the allocated size of a buffer.
func (d *HALDevice) BufferSize(id gpucore.BufferID) uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.buffers[id].size
}

// === Texture Management ===

// CreateTexture creates an RGBA8 texture with its 2D view.
func (d *HALDevice) CreateTexture(desc gpucore.TextureDesc) (gpucore.TextureID, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("texture %q dimensions must be positive", desc.Label)
	}
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create texture %q: %w", desc.Label, err)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         desc.Label + "_view",
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		return gpucore.InvalidID, fmt.Errorf("create texture view %q: %w", desc.Label, err)
	}

	id := gpucore.TextureID(d.newID())
	d.mu.Lock()
	d.textures[id] = halTexture{tex: tex, view: view, width: desc.Width, height: desc.Height}
	d.mu.Unlock()
	return id, nil
}

// DestroyTexture releases a texture and its view.
func (d *HALDevice) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	t, ok := d.textures[id]
	delete(d.textures, id)
	d.mu.Unlock()

	if ok {
		d.device.DestroyTextureView(t.view)
		d.device.DestroyTexture(t.tex)
	}
}

// WriteTexture uploads tightly packed RGBA8 rows covering the whole texture.
func (d *HALDevice) WriteTexture(id gpucore.TextureID, data []byte) {
	d.mu.RLock()
	t, ok := d.textures[id]
	d.mu.RUnlock()

	if !ok || len(data) == 0 {
		return
	}
	d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0},
		data,
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: t.width * 4, RowsPerImage: t.height},
		&hal.Extent3D{Width: t.width, Height: t.height, DepthOrArrayLayers: 1},
	)
}

// CreateSampler creates a linear, clamp-to-edge sampler.
func (d *HALDevice) CreateSampler(label string) (gpucore.SamplerID, error) {
	smp, err := d.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        label,
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create sampler %q: %w", label, err)
	}

	id := gpucore.SamplerID(d.newID())
	d.mu.Lock()
	d.samplers[id] = smp
	d.mu.Unlock()
	return id, nil
}

// DestroySampler releases a sampler.
func (d *HALDevice) DestroySampler(id gpucore.SamplerID) {
	d.mu.Lock()
	smp, ok := d.samplers[id]
	delete(d.samplers, id)
	d.mu.Unlock()

	if ok {
		d.device.DestroySampler(smp)
	}
}

// === Bindings ===

// CreateBindGroupLayout creates a bind group layout.
func (d *HALDevice) CreateBindGroupLayout(desc gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	entries := make([]gputypes.BindGroupLayoutEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		entry, err := convertBindGroupLayoutEntry(e)
		if err != nil {
			return gpucore.InvalidID, fmt.Errorf("bind group layout %q: %w", desc.Label, err)
		}
		entries[i] = entry
	}
	layout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: entries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create bind group layout %q: %w", desc.Label, err)
	}

	id := gpucore.BindGroupLayoutID(d.newID())
	d.mu.Lock()
	d.bindGroupLayouts[id] = layout
	d.mu.Unlock()
	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (d *HALDevice) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	d.mu.Lock()
	layout, ok := d.bindGroupLayouts[id]
	delete(d.bindGroupLayouts, id)
	d.mu.Unlock()

	if ok {
		d.device.DestroyBindGroupLayout(layout)
	}
}

// CreateBindGroup creates a bind group.
func (d *HALDevice) CreateBindGroup(desc gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	d.mu.RLock()
	layout, ok := d.bindGroupLayouts[desc.Layout]
	if !ok {
		d.mu.RUnlock()
		return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", gpucore.ErrUnknownResource, desc.Layout)
	}
	entries := make([]gputypes.BindGroupEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		entry, err := d.convertBindGroupEntry(e)
		if err != nil {
			d.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("bind group %q binding %d: %w", desc.Label, e.Binding, err)
		}
		entries[i] = entry
	}
	d.mu.RUnlock()

	group, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create bind group %q: %w", desc.Label, err)
	}

	id := gpucore.BindGroupID(d.newID())
	d.mu.Lock()
	d.bindGroups[id] = group
	d.mu.Unlock()
	return id, nil
}

// DestroyBindGroup releases a bind group.
func (d *HALDevice) DestroyBindGroup(id gpucore.BindGroupID) {
	d.mu.Lock()
	group, ok := d.bindGroups[id]
	delete(d.bindGroups, id)
	d.mu.Unlock()

	if ok {
		d.device.DestroyBindGroup(group)
	}
}

// HALBindGroup returns the hal bind group behind id, for hosts that record
// their own render passes.
func (d *HALDevice) HALBindGroup(id gpucore.BindGroupID) (hal.BindGroup, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.bindGroups[id]
	return g, ok
}

// === Pipelines ===

// CreatePipelineLayout creates a pipeline layout.
func (d *HALDevice) CreatePipelineLayout(desc gpucore.PipelineLayoutDesc) (gpucore.PipelineLayoutID, error) {
	d.mu.RLock()
	layouts := make([]hal.BindGroupLayout, len(desc.BindGroupLayouts))
	for i, id := range desc.BindGroupLayouts {
		layout, ok := d.bindGroupLayouts[id]
		if !ok {
			d.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", gpucore.ErrUnknownResource, id)
		}
		layouts[i] = layout
	}
	d.mu.RUnlock()

	layout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: layouts,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create pipeline layout %q: %w", desc.Label, err)
	}

	id := gpucore.PipelineLayoutID(d.newID())
	d.mu.Lock()
	d.pipelineLayouts[id] = layout
	d.mu.Unlock()
	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (d *HALDevice) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	d.mu.Lock()
	layout, ok := d.pipelineLayouts[id]
	delete(d.pipelineLayouts, id)
	d.mu.Unlock()

	if ok {
		d.device.DestroyPipelineLayout(layout)
	}
}

// CreateRenderPipeline creates an instanced triangle-list pipeline with no
// vertex buffers.
func (d *HALDevice) CreateRenderPipeline(desc gpucore.RenderPipelineDesc) (gpucore.RenderPipelineID, error) {
	d.mu.RLock()
	layout, layoutOK := d.pipelineLayouts[desc.Layout]
	module, moduleOK := d.shaderModules[desc.Module]
	d.mu.RUnlock()

	if !layoutOK {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline layout %d", gpucore.ErrUnknownResource, desc.Layout)
	}
	if !moduleOK {
		return gpucore.InvalidID, fmt.Errorf("%w: shader module %d", gpucore.ErrUnknownResource, desc.Module)
	}

	target := gputypes.ColorTargetState{
		Format:    d.format,
		WriteMask: gputypes.ColorWriteMaskAll,
	}
	if desc.PremultipliedBlend {
		premulBlend := gputypes.BlendStatePremultiplied()
		target.Blend = &premulBlend
	}
	pipeline, err := d.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     module,
			EntryPoint: desc.VertexEntry,
		},
		Fragment: &hal.FragmentState{
			Module:     module,
			EntryPoint: desc.FragmentEntry,
			Targets:    []gputypes.ColorTargetState{target},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create render pipeline %q: %w", desc.Label, err)
	}

	id := gpucore.RenderPipelineID(d.newID())
	d.mu.Lock()
	d.renderPipelines[id] = pipeline
	d.mu.Unlock()
	return id, nil
}

// DestroyRenderPipeline releases a render pipeline.
func (d *HALDevice) DestroyRenderPipeline(id gpucore.RenderPipelineID) {
	d.mu.Lock()
	pipeline, ok := d.renderPipelines[id]
	delete(d.renderPipelines, id)
	d.mu.Unlock()

	if ok {
		d.device.DestroyRenderPipeline(pipeline)
	}
}

// HALRenderPipeline returns the hal pipeline behind id.
func (d *HALDevice) HALRenderPipeline(id gpucore.RenderPipelineID) (hal.RenderPipeline, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.renderPipelines[id]
	return p, ok
}

// === Conversions ===

func convertBufferUsage(u gpucore.BufferUsage) gputypes.BufferUsage {
	var out gputypes.BufferUsage
	if u&gpucore.BufferUsageCopySrc != 0 {
		out |= gputypes.BufferUsageCopySrc
	}
	if u&gpucore.BufferUsageCopyDst != 0 {
		out |= gputypes.BufferUsageCopyDst
	}
	if u&gpucore.BufferUsageUniform != 0 {
		out |= gputypes.BufferUsageUniform
	}
	if u&gpucore.BufferUsageStorage != 0 {
		out |= gputypes.BufferUsageStorage
	}
	return out
}

func convertShaderStage(s gpucore.ShaderStage) gputypes.ShaderStage {
	var out gputypes.ShaderStage
	if s&gpucore.ShaderStageVertex != 0 {
		out |= gputypes.ShaderStageVertex
	}
	if s&gpucore.ShaderStageFragment != 0 {
		out |= gputypes.ShaderStageFragment
	}
	return out
}

func convertBindGroupLayoutEntry(e gpucore.BindGroupLayoutEntry) (gputypes.BindGroupLayoutEntry, error) {
	out := gputypes.BindGroupLayoutEntry{
		Binding:    e.Binding,
		Visibility: convertShaderStage(e.Visibility),
	}
	switch e.Type {
	case gpucore.BindingTypeUniformBuffer:
		out.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
	case gpucore.BindingTypeReadOnlyStorageBuffer:
		out.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}
	case gpucore.BindingTypeSampledTexture:
		out.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case gpucore.BindingTypeSampler:
		out.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
	default:
		return out, fmt.Errorf("binding %d: unsupported type %v", e.Binding, e.Type)
	}
	return out, nil
}

// convertBindGroupEntry must be called with mu.RLock held.
func (d *HALDevice) convertBindGroupEntry(e gpucore.BindGroupEntry) (gputypes.BindGroupEntry, error) {
	out := gputypes.BindGroupEntry{Binding: e.Binding}
	switch {
	case e.Buffer != gpucore.InvalidID:
		b, ok := d.buffers[e.Buffer]
		if !ok {
			return out, fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, e.Buffer)
		}
		size := e.Size
		if size == 0 {
			size = b.size
		}
		out.Resource = gputypes.BufferBinding{Buffer: b.buf.NativeHandle(), Offset: 0, Size: size}
	case e.Texture != gpucore.InvalidID:
		t, ok := d.textures[e.Texture]
		if !ok {
			return out, fmt.Errorf("%w: texture %d", gpucore.ErrUnknownResource, e.Texture)
		}
		out.Resource = gputypes.TextureViewBinding{TextureView: t.view.NativeHandle()}
	case e.Sampler != gpucore.InvalidID:
		smp, ok := d.samplers[e.Sampler]
		if !ok {
			return out, fmt.Errorf("%w: sampler %d", gpucore.ErrUnknownResource, e.Sampler)
		}
		out.Resource = gputypes.SamplerBinding{Sampler: smp.NativeHandle()}
	default:
		return out, fmt.Errorf("%w: empty entry", gpucore.ErrUnknownResource)
	}
	return out, nil
}

package gpucore

import "fmt"

// Resource IDs
//
// These opaque IDs represent GPU resources. Each Device implementation
// maintains a table between IDs and actual backend resources, so replacing
// a buffer that had to grow is a swap of the ID stored by its owner rather
// than a pointer rewrite.

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// TextureID is an opaque handle to a GPU texture together with its default view.
type TextureID uint64

// SamplerID is an opaque handle to a texture sampler.
type SamplerID uint64

// ShaderModuleID is an opaque handle to a compiled shader module.
type ShaderModuleID uint64

// BindGroupLayoutID is an opaque handle to a bind group layout.
type BindGroupLayoutID uint64

// BindGroupID is an opaque handle to a bind group.
type BindGroupID uint64

// PipelineLayoutID is an opaque handle to a pipeline layout.
type PipelineLayoutID uint64

// RenderPipelineID is an opaque handle to a render pipeline.
type RenderPipelineID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// BufferUsage is a bitmask specifying how a buffer will be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	// BufferUsageCopySrc indicates the buffer can be used as a copy source.
	BufferUsageCopySrc BufferUsage = 1 << 2

	// BufferUsageCopyDst indicates the buffer can be used as a copy destination.
	BufferUsageCopyDst BufferUsage = 1 << 3

	// BufferUsageUniform indicates the buffer can be used as a uniform buffer.
	BufferUsageUniform BufferUsage = 1 << 6

	// BufferUsageStorage indicates the buffer can be used as a storage buffer.
	BufferUsageStorage BufferUsage = 1 << 7
)

// ShaderStage is a bitmask of shader stages a binding is visible to.
type ShaderStage uint32

// Shader stages.
const (
	ShaderStageVertex   ShaderStage = 1 << 0
	ShaderStageFragment ShaderStage = 1 << 1
)

// BindingType specifies the type of a shader binding.
type BindingType uint32

// Binding types.
const (
	// BindingTypeUniformBuffer is a uniform buffer binding.
	BindingTypeUniformBuffer BindingType = iota + 1

	// BindingTypeReadOnlyStorageBuffer is a read-only storage buffer binding.
	BindingTypeReadOnlyStorageBuffer

	// BindingTypeSampler is a filtering texture sampler binding.
	BindingTypeSampler

	// BindingTypeSampledTexture is a 2D float sampled texture binding.
	BindingTypeSampledTexture
)

// String returns the WebGPU-style name of the binding type.
func (t BindingType) String() string {
	switch t {
	case BindingTypeUniformBuffer:
		return "uniform"
	case BindingTypeReadOnlyStorageBuffer:
		return "read-only-storage"
	case BindingTypeSampler:
		return "sampler"
	case BindingTypeSampledTexture:
		return "texture"
	default:
		return fmt.Sprintf("BindingType(%d)", uint32(t))
	}
}

// BufferDesc describes a buffer.
type BufferDesc struct {
	// Label is an optional debug label.
	Label string

	// Size is the buffer size in bytes. WebGPU requires a multiple of 4.
	Size uint64

	// Usage specifies how the buffer is used.
	Usage BufferUsage
}

// TextureDesc describes a 2D RGBA8 texture used for colour ramps.
type TextureDesc struct {
	Label  string
	Width  uint32
	Height uint32
}

// BindGroupLayoutDesc describes a bind group layout.
type BindGroupLayoutDesc struct {
	// Label is an optional debug label.
	Label string

	// Entries defines the bindings in this layout.
	Entries []BindGroupLayoutEntry
}

// BindGroupLayoutEntry describes a single binding in a bind group layout.
type BindGroupLayoutEntry struct {
	// Binding is the binding index.
	Binding uint32

	// Visibility lists the stages that can access the binding.
	Visibility ShaderStage

	// Type is the type of resource bound at this index.
	Type BindingType
}

// BindGroupEntry describes a single binding in a bind group.
// Exactly one of Buffer, Texture and Sampler is set.
type BindGroupEntry struct {
	// Binding is the binding index.
	Binding uint32

	// Buffer is the buffer to bind (for buffer bindings).
	Buffer BufferID

	// Size is the size of the buffer range to bind.
	// Use 0 to bind the entire buffer.
	Size uint64

	// Texture is the texture to bind (for texture bindings).
	Texture TextureID

	// Sampler is the sampler to bind (for sampler bindings).
	Sampler SamplerID
}

// BindGroupDesc describes a bind group.
type BindGroupDesc struct {
	// Label is an optional debug label.
	Label string

	// Layout is the bind group layout.
	Layout BindGroupLayoutID

	// Entries are the resources to bind.
	Entries []BindGroupEntry
}

// PipelineLayoutDesc describes a pipeline layout.
type PipelineLayoutDesc struct {
	Label            string
	BindGroupLayouts []BindGroupLayoutID
}

// RenderPipelineDesc describes an instanced, vertex-buffer-free render
// pipeline: every per-instance input is read from storage buffers.
type RenderPipelineDesc struct {
	Label              string
	Layout             PipelineLayoutID
	Module             ShaderModuleID
	VertexEntry        string
	FragmentEntry      string
	PremultipliedBlend bool
}

package gpucore

// Device abstracts over the GPU backend used by mark resources.
//
// This interface is the core abstraction that lets the channel compiler
// allocate and bind resources without knowing whether they live on a real
// gogpu/wgpu HAL device or in host memory.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - IDs become invalid after destruction and are never reused
//
// Writes are queued: a WriteBuffer call followed by a bind group rebuild is
// observed by the next submitted render pass, never by one in flight.
type Device interface {
	// === Shader Compilation ===

	// CreateShaderModule compiles WGSL source into a shader module.
	// Implementations compile through naga before handing SPIR-V to the
	// backend.
	CreateShaderModule(wgsl, label string) (ShaderModuleID, error)

	// DestroyShaderModule releases a shader module.
	DestroyShaderModule(id ShaderModuleID)

	// === Buffer Management ===

	// CreateBuffer creates a GPU buffer.
	CreateBuffer(desc BufferDesc) (BufferID, error)

	// DestroyBuffer releases a GPU buffer.
	DestroyBuffer(id BufferID)

	// WriteBuffer queues a write of data into a buffer at offset.
	WriteBuffer(id BufferID, offset uint64, data []byte)

	// BufferSize returns the allocated size of a buffer, or 0 for an
	// unknown ID.
	BufferSize(id BufferID) uint64

	// === Texture Management ===

	// CreateTexture creates an RGBA8 texture and its default 2D view.
	CreateTexture(desc TextureDesc) (TextureID, error)

	// DestroyTexture releases a texture and its view.
	DestroyTexture(id TextureID)

	// WriteTexture queues an upload of tightly packed RGBA8 rows.
	WriteTexture(id TextureID, data []byte)

	// CreateSampler creates a linear, clamp-to-edge sampler.
	CreateSampler(label string) (SamplerID, error)

	// DestroySampler releases a sampler.
	DestroySampler(id SamplerID)

	// === Bindings ===

	// CreateBindGroupLayout creates a bind group layout.
	CreateBindGroupLayout(desc BindGroupLayoutDesc) (BindGroupLayoutID, error)

	// DestroyBindGroupLayout releases a bind group layout.
	DestroyBindGroupLayout(id BindGroupLayoutID)

	// CreateBindGroup creates a bind group.
	CreateBindGroup(desc BindGroupDesc) (BindGroupID, error)

	// DestroyBindGroup releases a bind group.
	DestroyBindGroup(id BindGroupID)

	// === Pipelines ===

	// CreatePipelineLayout creates a pipeline layout.
	CreatePipelineLayout(desc PipelineLayoutDesc) (PipelineLayoutID, error)

	// DestroyPipelineLayout releases a pipeline layout.
	DestroyPipelineLayout(id PipelineLayoutID)

	// CreateRenderPipeline creates a render pipeline.
	CreateRenderPipeline(desc RenderPipelineDesc) (RenderPipelineID, error)

	// DestroyRenderPipeline releases a render pipeline.
	DestroyRenderPipeline(id RenderPipelineID)
}

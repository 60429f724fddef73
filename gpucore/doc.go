// Package gpucore provides the GPU handle layer shared by the mark compiler.
//
// This package defines the [Device] interface, which abstracts over the GPU
// backend so that channel resources (packed series buffers, domain maps,
// ordinal ranges, selection sets, colour ramps) can be planned and bound
// without knowing where they live:
//   - gogpu/wgpu (Pure Go WebGPU via HAL), see render.NewHALDevice
//   - host memory, see [MemoryDevice]
//
// # Architecture
//
//	               +-----------------+
//	               |     markgpu     |
//	               |  (Mark, scales, |
//	               |   selections)   |
//	               +--------+--------+
//	                        |
//	               +--------v--------+
//	               |     gpucore     |
//	               |  Device + IDs   |
//	               +--------+--------+
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	|   hal device    |          |  memory device  |
//	| (render pkg)    |          | (headless/test) |
//	+--------+--------+          +-----------------+
//	         |
//	+--------v--------+
//	|   gogpu/wgpu    |
//	|   (Pure Go)     |
//	+-----------------+
//
// # Resource Management
//
// GPU resources are managed via opaque IDs ([BufferID], [TextureID], etc.).
// The owner of a resource keeps its ID in an ordered table keyed by channel
// or selection name. When a buffer has to grow, the owner allocates the new
// buffer first, stores the new ID and only then destroys the old one, so a
// bind group never references a buffer that is being replaced.
package gpucore

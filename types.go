package markgpu

import (
	"github.com/gogpu/markgpu/gpucore"
	"github.com/gogpu/markgpu/internal/bindgroup"
	"github.com/gogpu/markgpu/internal/channel"
	"github.com/gogpu/markgpu/internal/scale"
	"github.com/gogpu/markgpu/internal/selection"
	"github.com/gogpu/markgpu/internal/series"
	"github.com/gogpu/markgpu/internal/shader"
)

// Channel configuration.
type (
	// ChannelConfig configures one channel of a mark.
	ChannelConfig = channel.Config

	// NamedConfig pairs a channel name with its configuration. Slices
	// of NamedConfig fix buffer and binding order.
	NamedConfig = channel.Named

	// ChannelSpec is a mark's fixed expectation for one channel.
	ChannelSpec = channel.Spec

	// ChannelContext lists the channels a mark accepts, with specs and
	// defaults. See WithChannelContext.
	ChannelContext = channel.Context

	// Condition overrides a channel value for selected instances.
	Condition = channel.Condition

	// Predicate names the selection a Condition tests.
	Predicate = channel.Predicate

	// SelectionType is single, interval or multi.
	SelectionType = channel.SelectionType
)

// Scalar types of channel data.
const (
	F32 = channel.F32
	U32 = channel.U32
	I32 = channel.I32
)

// Selection types.
const (
	SelectionSingle   = channel.SelectionSingle
	SelectionInterval = channel.SelectionInterval
	SelectionMulti    = channel.SelectionMulti
)

// Scales.
type (
	// ScaleConfig configures the scale of a channel.
	ScaleConfig = scale.Config

	// RangeValue is one entry of a scale range: a number, a vector or a
	// CSS colour.
	RangeValue = scale.RangeValue

	// Interpolator maps [0, 1] to a colour for ramp ranges.
	Interpolator = scale.Interpolator
)

// SelectionUpdate is the new state of a selection. Build it with
// SelectSingle, SelectMulti or SelectInterval.
type SelectionUpdate = selection.Update

// Extra is a mark-specific resource bound after the channel resources.
type Extra = shader.Extra

// Extra kinds.
const (
	ExtraBuffer  = shader.ExtraBuffer
	ExtraTexture = shader.ExtraTexture
	ExtraSampler = shader.ExtraSampler
)

// ExtraResource is an Extra with the device resource bound to it.
// Buffer is used by ExtraBuffer, Texture by ExtraTexture and Sampler by
// ExtraSampler.
type ExtraResource struct {
	Extra
	Buffer  gpucore.BufferID
	Texture gpucore.TextureID
	Sampler gpucore.SamplerID
}

// Resource is one entry of a mark's resource layout.
type Resource = bindgroup.Resource

// SeriesBucket describes one packed series buffer.
type SeriesBucket = series.BucketInfo

// Constructors.
var (
	// SeriesChannel configures a per-instance data channel.
	SeriesChannel = channel.SeriesConfig

	// ValueChannel configures a constant channel.
	ValueChannel = channel.ValueConfig

	// Range values.
	Num    = scale.Num
	Vec    = scale.Vec
	CSS    = scale.CSS
	Nums   = scale.Nums
	Colors = scale.Colors

	// Float returns a pointer for optional scale parameters.
	Float = scale.F

	SelectSingle   = selection.Single
	SelectMulti    = selection.Multi
	SelectInterval = selection.Interval
)

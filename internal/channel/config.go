// Package channel resolves declarative channel configurations into the
// analysis and shader IR the rest of the compiler consumes.
package channel

import (
	"fmt"

	"github.com/gogpu/markgpu/internal/scale"
	"github.com/gogpu/markgpu/internal/wgsl"
)

// ScalarType is the element type of channel data.
type ScalarType = wgsl.ScalarType

// Scalar types.
const (
	F32 = wgsl.F32
	U32 = wgsl.U32
	I32 = wgsl.I32
)

// Scale is the scale configuration attached to a channel.
type Scale = scale.Config

// SelectionType is the kind of a selection predicate.
type SelectionType uint8

// Selection types.
const (
	SelectionSingle SelectionType = iota + 1
	SelectionInterval
	SelectionMulti
)

func (t SelectionType) String() string {
	switch t {
	case SelectionSingle:
		return "single"
	case SelectionInterval:
		return "interval"
	case SelectionMulti:
		return "multi"
	}
	return fmt.Sprintf("SelectionType(%d)", uint8(t))
}

// ParseSelectionType parses "single", "interval" or "multi".
func ParseSelectionType(s string) (SelectionType, bool) {
	switch s {
	case "single":
		return SelectionSingle, true
	case "interval":
		return SelectionInterval, true
	case "multi":
		return SelectionMulti, true
	}
	return 0, false
}

// Predicate tests an instance against a named selection.
type Predicate struct {
	Selection string
	Type      SelectionType

	// Channel is the channel an interval selection tests.
	Channel string

	// Empty makes an empty selection match every instance.
	Empty bool
}

// Condition overrides a channel's output while its predicate holds.
type Condition struct {
	When  Predicate
	Value []float64

	// Dynamic stores Value in a uniform so it can change without a
	// shader rebuild.
	Dynamic bool
}

// Config is the declarative description of one channel. Exactly one of
// Data and Value must be present after defaults are applied.
type Config struct {
	// Data is per-instance series data: []float32, []uint32, []int32, or
	// []float64 for high-precision u32 indices.
	Data any

	// Value is a constant; nil means absent.
	Value []float64

	// Default is used when neither Data nor Value is given.
	Default []float64

	Type            ScalarType
	Components      int
	InputComponents int

	// Dynamic stores Value in a uniform instead of baking it as a literal.
	Dynamic bool

	Scale      *Scale
	Conditions []Condition
}

// SeriesConfig returns a series channel. The scalar type is inferred from
// the slice type where possible.
func SeriesConfig(data any, components int) Config {
	return Config{Data: data, Type: dataType(data), Components: components}
}

// ValueConfig returns a constant channel with one value per component.
func ValueConfig(values ...float64) Config {
	return Config{Value: values, Components: len(values)}
}

// IsSeries reports whether the channel carries per-instance data.
func (c *Config) IsSeries() bool {
	return c.Data != nil
}

// IsValue reports whether the channel carries a constant.
func (c *Config) IsValue() bool {
	return c.Value != nil
}

// dataType infers the scalar type of a typed slice. []float64 is
// ambiguous and yields zero.
func dataType(data any) ScalarType {
	switch data.(type) {
	case []float32:
		return F32
	case []uint32:
		return U32
	case []int32:
		return I32
	}
	return 0
}

// DataLength returns the element count of series data, or -1 for an
// unsupported slice type.
func DataLength(data any) int {
	switch d := data.(type) {
	case []float32:
		return len(d)
	case []uint32:
		return len(d)
	case []int32:
		return len(d)
	case []float64:
		return len(d)
	}
	return -1
}

// Spec is a mark's fixed expectation for one of its channels.
type Spec struct {
	Type       ScalarType
	Components int
	Default    []float64
	Optional   bool
}

// Named pairs a channel name with its configuration. Slices of Named keep
// declaration order, which fixes buffer and binding order.
type Named struct {
	Name   string
	Config Config
}

// Lookup returns the configuration of a named channel.
func Lookup(channels []Named, name string) (*Config, bool) {
	for i := range channels {
		if channels[i].Name == name {
			return &channels[i].Config, true
		}
	}
	return nil, false
}

// merge overlays explicitly set fields of over onto base.
func merge(base, over Config) Config {
	out := base
	if over.Data != nil {
		out.Data = over.Data
	}
	if over.Value != nil {
		out.Value = over.Value
	}
	if over.Default != nil {
		out.Default = over.Default
	}
	if over.Type != 0 {
		out.Type = over.Type
	}
	if over.Components != 0 {
		out.Components = over.Components
	}
	if over.InputComponents != 0 {
		out.InputComponents = over.InputComponents
	}
	if over.Dynamic {
		out.Dynamic = true
	}
	if over.Scale != nil {
		out.Scale = over.Scale
	}
	if over.Conditions != nil {
		out.Conditions = over.Conditions
	}
	return out
}

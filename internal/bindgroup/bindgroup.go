// Package bindgroup turns a mark's resource layout and its resolved GPU
// resources into bind group entries.
//
// Binding 0 is always the Params uniform buffer; every resource layout
// entry takes the next binding index in order. The package holds no
// state: the same layout and sources always give the same entries.
package bindgroup

import (
	"errors"
	"fmt"

	"github.com/gogpu/markgpu/gpucore"
)

// ErrMissingResource is wrapped when a layout entry has no backing resource.
var ErrMissingResource = errors.New("bindgroup: missing resource")

// ErrUnknownRole is wrapped for layout entries with an unknown role.
var ErrUnknownRole = errors.New("bindgroup: unknown resource binding role")

// Role tells which manager owns the resource behind a binding.
type Role uint8

// Resource roles.
const (
	RoleSeries Role = iota + 1
	RoleOrdinalRange
	RoleDomainMap
	RoleRangeTexture
	RoleRangeSampler
	RoleExtraBuffer
	RoleExtraTexture
	RoleExtraSampler
)

var roleNames = [...]string{
	RoleSeries:       "series",
	RoleOrdinalRange: "ordinalRange",
	RoleDomainMap:    "domainMap",
	RoleRangeTexture: "rangeTexture",
	RoleRangeSampler: "rangeSampler",
	RoleExtraBuffer:  "extraBuffer",
	RoleExtraTexture: "extraTexture",
	RoleExtraSampler: "extraSampler",
}

func (r Role) String() string {
	if int(r) < len(roleNames) && roleNames[r] != "" {
		return roleNames[r]
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

// BindingType returns the layout binding type of a role.
func (r Role) BindingType() gpucore.BindingType {
	switch r {
	case RoleRangeTexture, RoleExtraTexture:
		return gpucore.BindingTypeSampledTexture
	case RoleRangeSampler, RoleExtraSampler:
		return gpucore.BindingTypeSampler
	}
	return gpucore.BindingTypeReadOnlyStorageBuffer
}

// Resource is one resource layout entry. Name is the series bucket for
// RoleSeries, the channel for scale roles and the WGSL name for extras.
type Resource struct {
	Name string
	Role Role
}

// Sources resolves layout entries to GPU resources.
type Sources interface {
	SeriesBuffer(bucket string) (gpucore.BufferID, bool)
	OrdinalRangeBuffer(channel string) (gpucore.BufferID, bool)
	DomainMapBuffer(channel string) (gpucore.BufferID, bool)
	RangeTexture(channel string) (gpucore.TextureID, gpucore.SamplerID, bool)
	ExtraBuffer(name string) (gpucore.BufferID, bool)
	ExtraTexture(name string) (gpucore.TextureID, gpucore.SamplerID, bool)
}

func missing(what, name string) error {
	return fmt.Errorf("%w: missing %s for %q", ErrMissingResource, what, name)
}

// Build returns the bind group entries for a uniform buffer and layout.
func Build(uniform gpucore.BufferID, layout []Resource, src Sources) ([]gpucore.BindGroupEntry, error) {
	entries := make([]gpucore.BindGroupEntry, 0, len(layout)+1)
	entries = append(entries, gpucore.BindGroupEntry{Binding: 0, Buffer: uniform})

	for i, res := range layout {
		e := gpucore.BindGroupEntry{Binding: uint32(i + 1)}
		var ok bool
		switch res.Role {
		case RoleSeries:
			if e.Buffer, ok = src.SeriesBuffer(res.Name); !ok {
				return nil, missing("buffer binding", res.Name)
			}
		case RoleOrdinalRange:
			if e.Buffer, ok = src.OrdinalRangeBuffer(res.Name); !ok {
				return nil, missing("buffer binding", res.Name)
			}
		case RoleDomainMap:
			if e.Buffer, ok = src.DomainMapBuffer(res.Name); !ok {
				return nil, missing("domain map buffer", res.Name)
			}
		case RoleRangeTexture:
			if e.Texture, _, ok = src.RangeTexture(res.Name); !ok {
				return nil, missing("range texture", res.Name)
			}
		case RoleRangeSampler:
			if _, e.Sampler, ok = src.RangeTexture(res.Name); !ok || e.Sampler == gpucore.InvalidID {
				return nil, missing("range sampler", res.Name)
			}
		case RoleExtraBuffer:
			if e.Buffer, ok = src.ExtraBuffer(res.Name); !ok {
				return nil, missing("extra buffer", res.Name)
			}
		case RoleExtraTexture:
			if e.Texture, _, ok = src.ExtraTexture(res.Name); !ok {
				return nil, missing("extra texture", res.Name)
			}
		case RoleExtraSampler:
			if _, e.Sampler, ok = src.ExtraTexture(res.Name); !ok || e.Sampler == gpucore.InvalidID {
				return nil, missing("extra sampler", res.Name)
			}
		default:
			return nil, fmt.Errorf("%w %q", ErrUnknownRole, res.Role)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

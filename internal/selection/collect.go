// Package selection compiles interactive selection predicates referenced
// by channel conditions into uniforms, membership buffers and WGSL tests.
package selection

import (
	"errors"
	"fmt"

	"github.com/gogpu/markgpu/internal/channel"
	"github.com/gogpu/markgpu/internal/wgsl"
)

// UniqueIDChannel identifies instances for single and multi selections.
const UniqueIDChannel = "uniqueId"

// Errors returned by collection, construction and updates.
var (
	ErrInvalid          = errors.New("selection: invalid selection")
	ErrUnknownSelection = errors.New("selection: unknown selection")
	ErrMissingUniqueID  = errors.New(`selection: selections of type "single" or "multi" require the "uniqueId" channel`)
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}

// Def is one named selection referenced by the channels of a mark.
type Def struct {
	Name string
	Type channel.SelectionType

	// Interval selections only.
	Channel          string
	SecondaryChannel string
	ScalarType       wgsl.ScalarType
}

// UniformName is the uniform holding the selected id or interval. Multi
// selections keep their entry count there instead.
func (d Def) UniformName() string {
	if d.Type == channel.SelectionMulti {
		return wgsl.SelectionCountPrefix + d.Name
	}
	return wgsl.SelectionPrefix + d.Name
}

// BufferName is the membership buffer of a multi selection.
func (d Def) BufferName() string {
	return wgsl.SelectionBufferPrefix + d.Name
}

// secondaryOf pairs a position channel with its range end.
var secondaryOf = map[string]string{"x": "x2", "y": "y2"}

// Collect scans channel conditions in declaration order and returns one
// definition per selection name.
func Collect(channels []channel.Named) ([]Def, error) {
	var defs []Def
	index := make(map[string]int)
	for _, ch := range channels {
		for _, cond := range ch.Config.Conditions {
			when := cond.When
			if i, seen := index[when.Selection]; seen {
				existing := defs[i]
				if existing.Type != when.Type {
					return nil, invalid("selection %q must keep a single type", when.Selection)
				}
				if existing.Type == channel.SelectionInterval && existing.Channel != when.Channel {
					return nil, invalid("selection %q must target a single interval channel", when.Selection)
				}
				continue
			}
			def := Def{Name: when.Selection, Type: when.Type}
			if when.Type == channel.SelectionInterval {
				if err := resolveInterval(&def, when, channels); err != nil {
					return nil, err
				}
			}
			index[def.Name] = len(defs)
			defs = append(defs, def)
		}
	}
	return defs, nil
}

func resolveInterval(def *Def, when channel.Predicate, channels []channel.Named) error {
	if when.Channel == "" {
		return invalid("interval selection %q must specify a channel", def.Name)
	}
	target, ok := channel.Lookup(channels, when.Channel)
	if !ok {
		return invalid("interval selection %q references unknown channel %q", def.Name, when.Channel)
	}
	a := channel.Analyze(when.Channel, *target)
	if a.InputComponents != 1 {
		return invalid("interval selection %q requires scalar channel %q", def.Name, when.Channel)
	}
	def.Channel = when.Channel
	def.ScalarType = a.ScalarType
	if sec, ok := secondaryOf[when.Channel]; ok {
		if _, present := channel.Lookup(channels, sec); present {
			def.SecondaryChannel = sec
		}
	}
	return nil
}

// needsUniqueID reports whether any selection tests instance ids.
func needsUniqueID(defs []Def) bool {
	for _, d := range defs {
		if d.Type == channel.SelectionSingle || d.Type == channel.SelectionMulti {
			return true
		}
	}
	return false
}

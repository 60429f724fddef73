// Package series packs per-instance channel data into interleaved storage
// buffers, one per scalar type.
package series

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/gogpu/markgpu/internal/channel"
	"github.com/gogpu/markgpu/internal/parallel"
	"github.com/gogpu/markgpu/internal/scale"
	"github.com/gogpu/markgpu/internal/wgsl"
)

// ErrInvalid is wrapped by every layout and packing error.
var ErrInvalid = errors.New("series: invalid series data")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}

// bucketTypes is the fixed bucket order used for bindings.
var bucketTypes = [...]wgsl.ScalarType{wgsl.F32, wgsl.U32, wgsl.I32}

func bucketIndex(t wgsl.ScalarType) int {
	switch t {
	case wgsl.U32:
		return 1
	case wgsl.I32:
		return 2
	}
	return 0
}

// Entry locates one channel inside its bucket. Offset and Stride count
// 4-byte elements per instance.
type Entry struct {
	Name       string
	Alias      string
	Type       wgsl.ScalarType
	Components int
	Offset     int
	Stride     int
}

// BufferName returns the storage buffer holding the entry.
func (e Entry) BufferName() string {
	return wgsl.SeriesBuffer(e.Type)
}

// Layout is the packed layout of every series channel of a mark. Offsets
// are per instance, so the layout does not depend on the count.
type Layout struct {
	order   []string
	entries map[string]*Entry
	strides [len(bucketTypes)]int
}

// aliasKey identifies the backing array of a slice.
type aliasKey struct {
	ptr uintptr
	len int
	typ reflect.Type
}

func keyOf(data any) (aliasKey, bool) {
	v := reflect.ValueOf(data)
	if v.Kind() != reflect.Slice || v.Len() == 0 {
		return aliasKey{}, false
	}
	return aliasKey{ptr: v.Pointer(), len: v.Len(), typ: v.Type()}, true
}

// Aliases groups series channels that share one data slice. Each channel
// maps to the first channel of its group.
func Aliases(channels []channel.Named) map[string]string {
	groups := make(map[aliasKey]string)
	out := make(map[string]string)
	for _, ch := range channels {
		if !ch.Config.IsSeries() {
			continue
		}
		key, ok := keyOf(ch.Config.Data)
		if !ok {
			out[ch.Name] = ch.Name
			continue
		}
		group, seen := groups[key]
		if !seen {
			group = ch.Name
			groups[key] = group
		}
		out[ch.Name] = group
	}
	return out
}

// BuildLayout assigns offsets to series channels in declaration order.
// Aliased channels share one entry.
func BuildLayout(channels []channel.Named) (*Layout, error) {
	return buildLayout(channels, Aliases(channels))
}

func buildLayout(channels []channel.Named, aliases map[string]string) (*Layout, error) {
	l := &Layout{entries: make(map[string]*Entry)}
	byAlias := make(map[string]*Entry)
	for _, ch := range channels {
		cfg := ch.Config
		if !cfg.IsSeries() {
			continue
		}
		if cfg.Type == 0 {
			return nil, invalid("missing type for series channel %q", ch.Name)
		}
		if !cfg.Type.Valid() {
			return nil, invalid("packed series only supports f32/u32/i32 channels, %q is %v", ch.Name, cfg.Type)
		}
		comps := cfg.InputComponents
		if comps == 0 {
			comps = cfg.Components
		}
		if comps == 0 {
			comps = 1
		}
		if comps != 1 && comps != 2 && comps != 4 {
			return nil, invalid("packed series only supports 1, 2, or 4 components, %q is %d", ch.Name, comps)
		}
		alias := aliases[ch.Name]
		if alias == "" {
			alias = ch.Name
		}
		if existing, ok := byAlias[alias]; ok {
			if existing.Type != cfg.Type || existing.Components != comps {
				return nil, invalid("packed alias %q must keep type/components consistent", alias)
			}
			l.entries[ch.Name] = existing
			l.order = append(l.order, ch.Name)
			continue
		}
		b := bucketIndex(cfg.Type)
		e := &Entry{Name: ch.Name, Alias: alias, Type: cfg.Type, Components: comps, Offset: l.strides[b]}
		l.strides[b] += comps
		l.entries[ch.Name] = e
		byAlias[alias] = e
		l.order = append(l.order, ch.Name)
	}
	for _, e := range byAlias {
		e.Stride = l.strides[bucketIndex(e.Type)]
	}
	return l, nil
}

// Entry returns the entry of a channel.
func (l *Layout) Entry(name string) (Entry, bool) {
	e, ok := l.entries[name]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Channels returns the series channel names in declaration order.
func (l *Layout) Channels() []string {
	return append([]string(nil), l.order...)
}

// Len returns the number of series channels.
func (l *Layout) Len() int {
	return len(l.order)
}

// Stride returns the per-instance element count of a bucket.
func (l *Layout) Stride(t wgsl.ScalarType) int {
	return l.strides[bucketIndex(t)]
}

// Types returns the buckets in use, in binding order.
func (l *Layout) Types() []wgsl.ScalarType {
	var out []wgsl.ScalarType
	for i, t := range bucketTypes {
		if l.strides[i] > 0 {
			out = append(out, t)
		}
	}
	return out
}

// ReaderWGSL returns the read_<name> accessor of a channel.
func (l *Layout) ReaderWGSL(name string) (string, error) {
	e, ok := l.entries[name]
	if !ok {
		return "", invalid("packed series layout is missing entry for %q", name)
	}
	buf := e.BufferName()
	fn := wgsl.ReadFunctionPrefix + name
	t := e.Type.String()
	if e.Components == 1 {
		return fmt.Sprintf("fn %s(i: u32) -> %s {\n    return %s[%du + i * %du];\n}\n",
			fn, t, buf, e.Offset, e.Stride), nil
	}
	parts := make([]string, e.Components)
	for c := range parts {
		if c == 0 {
			parts[c] = buf + "[base]"
		} else {
			parts[c] = fmt.Sprintf("%s[base + %du]", buf, c)
		}
	}
	vt := wgsl.VecType(e.Type, e.Components)
	return fmt.Sprintf("fn %s(i: u32) -> %s {\n    let base = %du + i * %du;\n    return %s(%s);\n}\n",
		fn, vt, e.Offset, e.Stride, vt, strings.Join(parts, ", ")), nil
}

// packChunk is the smallest run of instances packed on one worker.
const packChunk = 1 << 14

// Pack interleaves series data for count instances. The result holds one
// little-endian byte slice per bucket in use. Large counts are packed in
// parallel; every worker writes a disjoint instance range.
func (l *Layout) Pack(channels []channel.Named, count int) (map[wgsl.ScalarType][]byte, error) {
	if count < 0 {
		return nil, invalid("negative count %d", count)
	}
	var words [len(bucketTypes)][]uint32
	for i := range bucketTypes {
		if l.strides[i] > 0 {
			words[i] = make([]uint32, count*l.strides[i])
		}
	}

	packed := make(map[*Entry]bool)
	for _, name := range l.order {
		e := l.entries[name]
		if packed[e] {
			continue
		}
		packed[e] = true
		cfg, ok := channel.Lookup(channels, e.Name)
		if !ok || !cfg.IsSeries() {
			return nil, invalid("missing series data for %q", e.Name)
		}
		src, err := sourceWords(e, cfg)
		if err != nil {
			return nil, err
		}
		inputComponents := e.Components
		if required := count * inputComponents; len(src) < required {
			return nil, invalid("channel %q length (%d) is less than count (%d)", e.Name, len(src), count)
		}
		dest := words[bucketIndex(e.Type)]
		parallel.For(parallel.Shared(), count, packChunk, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				base := i*e.Stride + e.Offset
				copy(dest[base:base+e.Components], src[i*inputComponents:])
			}
		})
	}

	out := make(map[wgsl.ScalarType][]byte)
	for i, t := range bucketTypes {
		if words[i] == nil {
			continue
		}
		src := words[i]
		buf := make([]byte, len(src)*4)
		parallel.For(parallel.Shared(), len(src), packChunk, func(lo, hi int) {
			for j := lo; j < hi; j++ {
				binary.LittleEndian.PutUint32(buf[j*4:], src[j])
			}
		})
		out[t] = buf
	}
	return out, nil
}

// sourceWords converts a channel's data to raw 32-bit words, packing
// high-precision index data.
func sourceWords(e *Entry, cfg *channel.Config) ([]uint32, error) {
	switch d := cfg.Data.(type) {
	case []float32:
		if e.Type != wgsl.F32 {
			break
		}
		out := make([]uint32, len(d))
		for i, v := range d {
			out[i] = math.Float32bits(v)
		}
		return out, nil
	case []uint32:
		if e.Type != wgsl.U32 {
			break
		}
		return d, nil
	case []int32:
		if e.Type != wgsl.I32 {
			break
		}
		out := make([]uint32, len(d))
		for i, v := range d {
			out[i] = uint32(v)
		}
		return out, nil
	case []float64:
		if e.Type != wgsl.U32 || !isIndex(cfg) {
			break
		}
		if e.Components != 2 {
			return nil, invalid("channel %q requires inputComponents: 2 when providing []float64 data", e.Name)
		}
		return PackHighPrecision(d), nil
	}
	return nil, invalid("channel %q expects a %s for %v data", e.Name, sliceName(e.Type), e.Type)
}

func isIndex(cfg *channel.Config) bool {
	if cfg.Scale == nil {
		return false
	}
	k, ok := cfg.Scale.Kind()
	return ok && k == scale.Index
}

func sliceName(t wgsl.ScalarType) string {
	switch t {
	case wgsl.U32:
		return "[]uint32"
	case wgsl.I32:
		return "[]int32"
	}
	return "[]float32"
}

// PackHighPrecision splits each index into (floor(v/4096), v mod 4096).
func PackHighPrecision(values []float64) []uint32 {
	out := make([]uint32, len(values)*2)
	for i, v := range values {
		out[i*2], out[i*2+1] = scale.SplitHighPrecision(v)
	}
	return out
}

// InferCount derives the instance count from series data. ok is false
// when there are no series channels.
func InferCount(channels []channel.Named) (count int, ok bool, err error) {
	inferred := -1
	for _, ch := range channels {
		cfg := ch.Config
		if !cfg.IsSeries() {
			continue
		}
		n := channel.DataLength(cfg.Data)
		if n < 0 {
			return 0, false, invalid("missing data for channel %q", ch.Name)
		}
		divisor := cfg.InputComponents
		if divisor == 0 {
			divisor = cfg.Components
		}
		if divisor == 0 {
			divisor = 1
		}
		if _, f64 := cfg.Data.([]float64); f64 && divisor == 2 && isIndex(&cfg) {
			divisor = 1
		}
		if n%divisor != 0 {
			return 0, false, invalid("channel %q length (%d) must be divisible by %d", ch.Name, n, divisor)
		}
		c := n / divisor
		if inferred < 0 {
			inferred = c
		} else if c != inferred {
			return 0, false, invalid("channel %q count (%d) does not match inferred count (%d)", ch.Name, c, inferred)
		}
	}
	if inferred < 0 {
		return 0, false, nil
	}
	return inferred, true, nil
}

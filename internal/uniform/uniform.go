// Package uniform lays out the per-mark Params uniform block and encodes
// values into it following the WGSL uniform address-space rules.
package uniform

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/gogpu/markgpu/internal/wgsl"
)

// Errors returned by layout construction and value writes.
var (
	ErrDuplicateField = errors.New("uniform: duplicate field")
	ErrInvalidField   = errors.New("uniform: invalid field")
	ErrUnknownField   = errors.New("uniform: unknown field")
	ErrValueCount     = errors.New("uniform: wrong number of values")
)

// DummyField is added to an otherwise empty layout; WGSL structs need at
// least one member.
const DummyField = "dummy"

// Field is one member of the uniform block. Arrays always use vec4<T>
// elements; scalar arrays live in the .x lane.
type Field struct {
	Name        string
	Type        wgsl.ScalarType
	Components  int // 1, 2 or 4
	ArrayLength int // 0 for non-array fields
}

// WGSLType returns the member type as declared in the Params struct.
func (f Field) WGSLType() string {
	t := f.Type.Or(wgsl.F32)
	if f.ArrayLength > 0 {
		return fmt.Sprintf("array<vec4<%s>, %d>", t, f.ArrayLength)
	}
	return wgsl.VecType(t, f.Components)
}

func (f Field) alignSize() (align, size int) {
	if f.ArrayLength > 0 {
		return 16, 16 * f.ArrayLength
	}
	switch f.Components {
	case 2:
		return 8, 8
	case 4:
		return 16, 16
	default:
		return 4, 4
	}
}

// valueCount is the number of host values a full write expects.
func (f Field) valueCount() int {
	c := f.Components
	if c == 0 {
		c = 1
	}
	if f.ArrayLength > 0 {
		return c * f.ArrayLength
	}
	return c
}

// Builder accumulates fields in declaration order.
type Builder struct {
	fields []Field
}

// Add appends a field.
func (b *Builder) Add(f Field) {
	b.fields = append(b.fields, f)
}

// Has reports whether a field with the given name was added.
func (b *Builder) Has(name string) bool {
	for _, f := range b.fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Build computes offsets. An empty builder yields a single dummy f32.
func (b *Builder) Build() (*Layout, error) {
	fields := b.fields
	if len(fields) == 0 {
		fields = []Field{{Name: DummyField, Type: wgsl.F32, Components: 1}}
	}
	l := &Layout{
		fields:  make([]Field, 0, len(fields)),
		offsets: make(map[string]int, len(fields)),
	}
	offset := 0
	for _, f := range fields {
		if f.Components == 0 {
			f.Components = 1
		}
		if f.Components != 1 && f.Components != 2 && f.Components != 4 {
			return nil, fmt.Errorf("%w: %q has %d components", ErrInvalidField, f.Name, f.Components)
		}
		if f.ArrayLength < 0 {
			return nil, fmt.Errorf("%w: %q has array length %d", ErrInvalidField, f.Name, f.ArrayLength)
		}
		if _, dup := l.offsets[f.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateField, f.Name)
		}
		f.Type = f.Type.Or(wgsl.F32)
		align, size := f.alignSize()
		offset = alignUp(offset, align)
		l.offsets[f.Name] = offset
		l.fields = append(l.fields, f)
		offset += size
	}
	l.size = alignUp(offset, 16)
	return l, nil
}

func alignUp(v, align int) int {
	return (v + align - 1) / align * align
}

// Layout is an immutable uniform block layout.
type Layout struct {
	fields  []Field
	offsets map[string]int
	size    int
}

// Fields returns the fields in declaration order.
func (l *Layout) Fields() []Field {
	return l.fields
}

// Size is the block size in bytes, a multiple of 16.
func (l *Layout) Size() int {
	return l.size
}

// Offset returns the byte offset of a field.
func (l *Layout) Offset(name string) (int, bool) {
	off, ok := l.offsets[name]
	return off, ok
}

// Has reports whether the layout declares name.
func (l *Layout) Has(name string) bool {
	_, ok := l.offsets[name]
	return ok
}

// Field returns the field declaration for name.
func (l *Layout) Field(name string) (Field, bool) {
	for _, f := range l.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// WGSLStruct renders the struct declaration with fields in layout order.
func (l *Layout) WGSLStruct(structName string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "struct %s {\n", structName)
	for _, f := range l.fields {
		fmt.Fprintf(&sb, "    %s: %s,\n", f.Name, f.WGSLType())
	}
	sb.WriteString("};\n")
	return sb.String()
}

// Buffer is the host copy of a uniform block.
type Buffer struct {
	layout *Layout
	data   []byte
	dirty  bool
}

// NewBuffer allocates a zeroed host copy of the layout.
func NewBuffer(l *Layout) *Buffer {
	return &Buffer{layout: l, data: make([]byte, l.Size()), dirty: true}
}

// Layout returns the buffer's layout.
func (b *Buffer) Layout() *Layout {
	return b.layout
}

// Set writes values into a field. Scalars take one value, vectors one per
// component, arrays Components values per element (one for scalar arrays).
func (b *Buffer) Set(name string, values ...float64) error {
	off, ok := b.layout.offsets[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	f, _ := b.layout.Field(name)
	if want := f.valueCount(); len(values) != want {
		return fmt.Errorf("%w: %q expects %d, got %d", ErrValueCount, name, want, len(values))
	}
	if f.ArrayLength > 0 {
		for i := 0; i < f.ArrayLength; i++ {
			elem := values[i*f.Components : (i+1)*f.Components]
			b.put(off+16*i, f.Type, elem)
		}
	} else {
		b.put(off, f.Type, values)
	}
	b.dirty = true
	return nil
}

func (b *Buffer) put(offset int, t wgsl.ScalarType, values []float64) {
	for i, v := range values {
		dst := b.data[offset+4*i:]
		switch t {
		case wgsl.U32:
			binary.LittleEndian.PutUint32(dst, toU32(v))
		case wgsl.I32:
			binary.LittleEndian.PutUint32(dst, uint32(toI32(v)))
		default:
			binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(v)))
		}
	}
}

func toU32(v float64) uint32 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}

func toI32(v float64) int32 {
	if math.IsNaN(v) {
		return 0
	}
	return int32(math.Max(math.Min(v, math.MaxInt32), math.MinInt32))
}

// Dirty reports whether values changed since the last MarkClean.
func (b *Buffer) Dirty() bool {
	return b.dirty
}

// MarkClean records that the current bytes were uploaded.
func (b *Buffer) MarkClean() {
	b.dirty = false
}

// Bytes returns the encoded block. The slice is owned by the buffer.
func (b *Buffer) Bytes() []byte {
	return b.data
}

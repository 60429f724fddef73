package series

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/gogpu/markgpu/gpucore"
	"github.com/gogpu/markgpu/internal/channel"
	"github.com/gogpu/markgpu/internal/wgsl"
)

// minBufferSize keeps empty buckets bindable.
const minBufferSize = 4

type bufferSlot struct {
	id   gpucore.BufferID
	size uint64
}

// Buffers owns the packed storage buffers of one mark.
type Buffers struct {
	dev      gpucore.Device
	label    string
	logger   *slog.Logger
	channels []channel.Named
	aliases  map[string]string
	layout   *Layout
	slots    map[string]*bufferSlot
}

// NewBuffers builds the packed layout of the series channels. No GPU
// buffer exists until the first Update.
func NewBuffers(dev gpucore.Device, channels []channel.Named, label string, logger *slog.Logger) (*Buffers, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	series := make([]channel.Named, 0, len(channels))
	for _, ch := range channels {
		if ch.Config.IsSeries() {
			series = append(series, ch)
		}
	}
	aliases := Aliases(series)
	layout, err := buildLayout(series, aliases)
	if err != nil {
		return nil, err
	}
	return &Buffers{
		dev:      dev,
		label:    label,
		logger:   logger,
		channels: series,
		aliases:  aliases,
		layout:   layout,
		slots:    make(map[string]*bufferSlot),
	}, nil
}

// Layout returns the packed layout.
func (b *Buffers) Layout() *Layout {
	return b.layout
}

// Channels returns the current series configurations.
func (b *Buffers) Channels() []channel.Named {
	return b.channels
}

// Buffer returns a bucket buffer by WGSL name (seriesF32, seriesU32,
// seriesI32).
func (b *Buffers) Buffer(name string) (gpucore.BufferID, bool) {
	s, ok := b.slots[name]
	if !ok {
		return gpucore.InvalidID, false
	}
	return s.id, true
}

// InferCount infers the instance count from the current data, with data
// replaced by updates where given.
func (b *Buffers) InferCount(updates map[string]any) (int, bool, error) {
	return InferCount(b.withUpdates(updates))
}

func (b *Buffers) withUpdates(updates map[string]any) []channel.Named {
	if len(updates) == 0 {
		return b.channels
	}
	out := make([]channel.Named, len(b.channels))
	copy(out, b.channels)
	for i := range out {
		if d, ok := updates[out[i].Name]; ok {
			out[i].Config.Data = d
		}
	}
	return out
}

// Update replaces series data, packs count instances and uploads them.
// It reports true when a buffer was created or replaced and the bind
// group must be rebuilt.
func (b *Buffers) Update(updates map[string]any, count int) (bool, error) {
	for name := range updates {
		if _, ok := b.aliases[name]; !ok {
			return false, invalid("unknown series channel %q", name)
		}
	}
	next := b.withUpdates(updates)
	if err := b.checkAliases(next); err != nil {
		return false, err
	}
	packed, err := b.layout.Pack(next, count)
	if err != nil {
		return false, err
	}
	b.channels = next

	rebind := false
	for _, t := range b.layout.Types() {
		grown, err := b.ensure(wgsl.SeriesBuffer(t), packed[t])
		if err != nil {
			return false, err
		}
		rebind = rebind || grown
	}
	return rebind, nil
}

// checkAliases requires aliased channels to keep sharing one slice.
func (b *Buffers) checkAliases(channels []channel.Named) error {
	groups := make(map[string]aliasKey)
	for _, ch := range channels {
		group := b.aliases[ch.Name]
		key, ok := keyOf(ch.Config.Data)
		if !ok {
			continue
		}
		existing, seen := groups[group]
		if !seen {
			groups[group] = key
			continue
		}
		if existing != key {
			return invalid("series channels %s must share the same buffer", b.members(group))
		}
	}
	return nil
}

func (b *Buffers) members(group string) string {
	var names []string
	for _, ch := range b.channels {
		if b.aliases[ch.Name] == group {
			names = append(names, fmt.Sprintf("%q", ch.Name))
		}
	}
	return strings.Join(names, ", ")
}

func (b *Buffers) ensure(name string, data []byte) (bool, error) {
	size := uint64(len(data))
	if size < minBufferSize {
		size = minBufferSize
	}
	s := b.slots[name]
	if s != nil && s.size >= size {
		if len(data) > 0 {
			b.dev.WriteBuffer(s.id, 0, data)
		}
		return false, nil
	}
	id, err := b.dev.CreateBuffer(gpucore.BufferDesc{
		Label: b.label + name,
		Size:  size,
		Usage: gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst,
	})
	if err != nil {
		return false, fmt.Errorf("series: create %s: %w", name, err)
	}
	if len(data) > 0 {
		b.dev.WriteBuffer(id, 0, data)
	}
	if s != nil {
		b.dev.DestroyBuffer(s.id)
		b.logger.Debug("series buffer grown", "buffer", name, "bytes", size)
	} else {
		s = &bufferSlot{}
		b.slots[name] = s
	}
	s.id, s.size = id, size
	return true, nil
}

// BucketInfo describes one packed bucket for diagnostics.
type BucketInfo struct {
	Buffer   string
	Stride   int
	Bytes    uint64
	Channels []Entry
}

// Info reports the packed layout and allocated sizes, sorted by bucket.
func (b *Buffers) Info() []BucketInfo {
	byBuf := make(map[string]*BucketInfo)
	for _, name := range b.layout.Channels() {
		e, _ := b.layout.Entry(name)
		e.Name = name
		buf := e.BufferName()
		info, ok := byBuf[buf]
		if !ok {
			info = &BucketInfo{Buffer: buf, Stride: e.Stride}
			if s := b.slots[buf]; s != nil {
				info.Bytes = s.size
			}
			byBuf[buf] = info
		}
		info.Channels = append(info.Channels, e)
	}
	out := make([]BucketInfo, 0, len(byBuf))
	for _, info := range byBuf {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Buffer < out[j].Buffer })
	return out
}

// Close destroys the bucket buffers.
func (b *Buffers) Close() {
	for name, s := range b.slots {
		b.dev.DestroyBuffer(s.id)
		delete(b.slots, name)
	}
}

package scale

import (
	"math"

	"github.com/gogpu/markgpu/internal/hashtable"
)

// HighPrecisionLowBits is the bit split of high-precision index values.
const HighPrecisionLowBits = 12

const lowDivisor = 1 << HighPrecisionLowBits

// PackHighPrecisionDomain packs an index domain [start, stop] as
// [hi(start), lo(start), stop-start]. hi keeps the bits above the low
// 12, so both parts stay exact in f32.
func PackHighPrecisionDomain(start, stop float64) []float64 {
	lo := math.Mod(start, lowDivisor)
	if lo < 0 {
		lo += lowDivisor
	}
	return []float64{start - lo, lo, stop - start}
}

// SplitHighPrecision splits an integer index into (floor(v/4096), v mod 4096).
func SplitHighPrecision(v float64) (hi, lo uint32) {
	f := math.Floor(v)
	h := math.Floor(f / lowDivisor)
	return uint32(h), uint32(f - h*lowDivisor)
}

func stopLabel(kind StopKind) string {
	switch kind {
	case StopThreshold:
		return "Threshold"
	case StopPiecewise:
		return "Piecewise"
	case StopQuantize:
		return "Quantize"
	}
	return "Scale"
}

// discreteLengths checks threshold and piecewise stop counts.
func discreteLengths(name string, kind StopKind, c *Config) (int, int, error) {
	domain, rng := len(c.Domain), len(c.Range)
	if kind == StopThreshold {
		if domain == 0 {
			return 0, 0, configErr("threshold scale on %q must define a non-empty domain", name)
		}
		if rng < 2 {
			return 0, 0, configErr("threshold scale on %q must define at least two range entries", name)
		}
		if rng != domain+1 {
			return 0, 0, configErr("threshold scale on %q requires range length of %d, got %d", name, domain+1, rng)
		}
		return domain, rng, nil
	}
	if domain < 2 {
		return 0, 0, configErr("piecewise scale on %q must define at least two domain entries", name)
	}
	if rng < 2 {
		return 0, 0, configErr("piecewise scale on %q must define at least two range entries", name)
	}
	if rng != domain {
		return 0, 0, configErr("piecewise scale on %q requires range length of %d, got %d", name, domain, rng)
	}
	return domain, rng, nil
}

// normalizeRangeValue converts one discrete range entry to its uniform
// components: a number for scalar outputs, RGBA otherwise.
func normalizeRangeValue(name string, v RangeValue, outputComponents int, label string) ([]float64, error) {
	if outputComponents == 1 {
		if v.IsNumber() {
			return []float64{v.num}, nil
		}
		return nil, configErr("%s scale on %q expects numeric range values", label, name)
	}
	switch v.kind {
	case rangeVector:
		if len(v.vec) == 4 {
			return append([]float64(nil), v.vec...), nil
		}
		if len(v.vec) == 3 {
			return []float64{v.vec[0], v.vec[1], v.vec[2], 1}, nil
		}
	case rangeColor:
		rgb, err := ParseColor(v.color)
		if err != nil {
			return nil, configErr("%s scale on %q: %v", label, name, err)
		}
		return []float64{rgb[0], rgb[1], rgb[2], 1}, nil
	}
	return nil, configErr("%s scale on %q expects vec4 range values or CSS colors", label, name)
}

// normalizeDiscreteRange flattens a discrete range. Vector outputs use
// four components per entry.
func normalizeDiscreteRange(name string, rng []RangeValue, outputComponents int, label string, minLen int) ([]float64, int, error) {
	if len(rng) < minLen {
		if minLen == 1 {
			return nil, 0, configErr("%s scale on %q must define at least one range entry", label, name)
		}
		return nil, 0, configErr("%s scale on %q must define at least two range entries", label, name)
	}
	comps := 1
	if outputComponents > 1 {
		comps = 4
	}
	out := make([]float64, 0, len(rng)*comps)
	for _, v := range rng {
		vals, err := normalizeRangeValue(name, v, outputComponents, label)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, vals...)
	}
	return out, comps, nil
}

// NormalizeOrdinalDomain validates a sparse categorical domain: integer
// values that fit in u32, excluding the hash table sentinel, without
// duplicates.
func NormalizeOrdinalDomain(name string, domain []float64) ([]uint32, error) {
	out := make([]uint32, len(domain))
	seen := make(map[uint32]struct{}, len(domain))
	for i, v := range domain {
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return nil, configErr("ordinal domain on %q requires integer u32 values", name)
		}
		if v < 0 || v > float64(hashtable.EmptyKey) {
			return nil, configErr("ordinal domain on %q must fit in u32 values", name)
		}
		if v == float64(hashtable.EmptyKey) {
			return nil, configErr("ordinal domain on %q must not contain 0xffffffff", name)
		}
		k := uint32(v)
		if _, dup := seen[k]; dup {
			return nil, configErr("ordinal domain on %q must not contain duplicates", name)
		}
		seen[k] = struct{}{}
		out[i] = k
	}
	return out, nil
}

// buildDomainMap validates domain and drops the keys when they are the
// dense sequence 0..N-1, which needs no lookup.
func buildDomainMap(name string, domain []float64) (*DomainMap, error) {
	if len(domain) == 0 {
		return nil, configErr("ordinal domain on %q must not be empty", name)
	}
	keys, err := NormalizeOrdinalDomain(name, domain)
	if err != nil {
		return nil, err
	}
	dense := true
	for i, k := range keys {
		if k != uint32(i) {
			dense = false
			break
		}
	}
	dm := &DomainMap{Size: len(keys)}
	if !dense {
		dm.Keys = keys
	}
	return dm, nil
}

// RangePositions returns n evenly spaced positions in [0, 1].
func RangePositions(n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{0}
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i) / float64(n-1)
	}
	return out
}

// numericPair returns the first two entries of a numeric range.
func numericPair(name string, rng []RangeValue) ([]float64, error) {
	pair := []float64{0, 1}
	for i := 0; i < 2 && i < len(rng); i++ {
		if !rng[i].IsNumber() {
			return nil, configErr("scale range for %q must be numeric", name)
		}
		pair[i] = rng[i].num
	}
	return pair, nil
}

func domainPair(domain []float64) []float64 {
	pair := []float64{0, 1}
	copy(pair, domain)
	return pair
}

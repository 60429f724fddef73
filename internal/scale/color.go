package scale

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// RampWidth is the texel count of a colour ramp texture.
const RampWidth = 256

// ParseColor parses a CSS colour: a named colour, #rgb, #rrggbb or
// rgb(r, g, b). Channels are returned in [0, 1].
func ParseColor(s string) ([3]float64, error) {
	c := strings.ToLower(strings.TrimSpace(s))
	if named, ok := colornames.Map[c]; ok {
		return [3]float64{float64(named.R) / 255, float64(named.G) / 255, float64(named.B) / 255}, nil
	}
	if strings.HasPrefix(c, "#") {
		return parseHex(c[1:], s)
	}
	if strings.HasPrefix(c, "rgb(") && strings.HasSuffix(c, ")") {
		parts := strings.Split(c[4:len(c)-1], ",")
		if len(parts) == 3 {
			var out [3]float64
			for i, p := range parts {
				v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
				if err != nil {
					return out, fmt.Errorf("invalid color %q", s)
				}
				out[i] = math.Max(0, math.Min(255, v)) / 255
			}
			return out, nil
		}
	}
	return [3]float64{}, fmt.Errorf("invalid color %q", s)
}

func parseHex(h, orig string) ([3]float64, error) {
	var out [3]float64
	switch len(h) {
	case 3:
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseUint(h[i:i+1], 16, 8)
			if err != nil {
				return out, fmt.Errorf("invalid color %q", orig)
			}
			out[i] = float64(v*17) / 255
		}
	case 6:
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseUint(h[i*2:i*2+2], 16, 8)
			if err != nil {
				return out, fmt.Errorf("invalid color %q", orig)
			}
			out[i] = float64(v) / 255
		}
	default:
		return out, fmt.Errorf("invalid color %q", orig)
	}
	return out, nil
}

// StopsInterpolator blends evenly spaced colour stops. space is "rgb"
// (or empty) or "hsl".
func StopsInterpolator(stops [][3]float64, space string) (Interpolator, error) {
	if len(stops) == 0 {
		return nil, fmt.Errorf("no color stops")
	}
	var mix func(a, b [3]float64, t float64) [3]float64
	switch space {
	case "", "rgb":
		mix = mixRGB
	case "hsl":
		mix = mixHSL
	default:
		return nil, fmt.Errorf("unsupported interpolation %q", space)
	}
	return func(t float64) color.Color {
		t = math.Max(0, math.Min(1, t))
		var rgb [3]float64
		if len(stops) == 1 {
			rgb = stops[0]
		} else {
			pos := t * float64(len(stops)-1)
			i := int(math.Floor(pos))
			if i >= len(stops)-1 {
				i = len(stops) - 2
			}
			rgb = mix(stops[i], stops[i+1], pos-float64(i))
		}
		return color.NRGBA{R: to8(rgb[0]), G: to8(rgb[1]), B: to8(rgb[2]), A: 255}
	}, nil
}

func to8(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}

func mixRGB(a, b [3]float64, t float64) [3]float64 {
	return [3]float64{
		a[0] + (b[0]-a[0])*t,
		a[1] + (b[1]-a[1])*t,
		a[2] + (b[2]-a[2])*t,
	}
}

func mixHSL(a, b [3]float64, t float64) [3]float64 {
	ha, sa, la := rgbToHSL(a)
	hb, sb, lb := rgbToHSL(b)
	dh := hb - ha
	if dh > 180 {
		dh -= 360
	} else if dh < -180 {
		dh += 360
	}
	h := math.Mod(ha+dh*t+360, 360)
	return hslToRGB(h, sa+(sb-sa)*t, la+(lb-la)*t)
}

func rgbToHSL(c [3]float64) (h, s, l float64) {
	maxC := math.Max(c[0], math.Max(c[1], c[2]))
	minC := math.Min(c[0], math.Min(c[1], c[2]))
	l = (maxC + minC) / 2
	d := maxC - minC
	if d == 0 {
		return 0, 0, l
	}
	if l > 0.5 {
		s = d / (2 - maxC - minC)
	} else {
		s = d / (maxC + minC)
	}
	switch maxC {
	case c[0]:
		h = math.Mod((c[1]-c[2])/d, 6)
	case c[1]:
		h = (c[2]-c[0])/d + 2
	default:
		h = (c[0]-c[1])/d + 4
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	return h, s, l
}

func hslToRGB(h, s, l float64) [3]float64 {
	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := l - c/2
	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return [3]float64{r + m, g + m, b + m}
}

// Ramp rasterises an interpolator into RampWidth tightly packed,
// non-premultiplied RGBA8 texels.
func Ramp(fn Interpolator) []byte {
	out := make([]byte, RampWidth*4)
	for i := 0; i < RampWidth; i++ {
		c := color.NRGBAModel.Convert(fn(float64(i) / (RampWidth - 1))).(color.NRGBA)
		out[i*4+0] = c.R
		out[i*4+1] = c.G
		out[i*4+2] = c.B
		out[i*4+3] = c.A
	}
	return out
}

// rampFor builds the ramp texels for a channel's range.
func rampFor(name string, c *Config, rng []RangeValue, fn Interpolator) ([]byte, error) {
	if fn != nil {
		return Ramp(fn), nil
	}
	if !IsColorRange(rng) {
		return nil, configErr("interpolated color scale on %q requires a color range", name)
	}
	stops := make([][3]float64, len(rng))
	for i, v := range rng {
		rgba, err := normalizeRangeValue(name, v, 4, "Interpolated color")
		if err != nil {
			return nil, err
		}
		stops[i] = [3]float64{rgba[0], rgba[1], rgba[2]}
	}
	interp, err := StopsInterpolator(stops, c.Interpolate)
	if err != nil {
		return nil, configErr("color scale on %q: %v", name, err)
	}
	return Ramp(interp), nil
}

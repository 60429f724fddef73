package scale

func init() {
	register(identityDef{})
	for _, k := range []Kind{Linear, Log, Pow, Sqrt, Symlog} {
		register(continuousDef{kind: k})
	}
	register(bandDef{})
	register(indexDef{})
	register(ordinalDef{})
	register(thresholdDef{})
	register(quantizeDef{})
}

var bandFamilyParams = []Param{
	{Prefix: "uPaddingInner_", Prop: "paddingInner", Default: 0},
	{Prefix: "uPaddingOuter_", Prop: "paddingOuter", Default: 0},
	{Prefix: "uAlign_", Prop: "align", Default: 0.5},
	{Prefix: "uBand_", Prop: "band", Default: 0.5},
}

// noStops is embedded by families without uniform stop arrays.
type noStops struct{}

func (noStops) StopLengths(Binding, StopKind) (int, int, error) { return 0, 0, nil }

func (noStops) NormalizeStops(Binding, StopKind, []float64) (*Stops, error) { return nil, nil }

type identityDef struct{ noStops }

func (identityDef) Kind() Kind { return Identity }

func (identityDef) Info() Info {
	return Info{Input: InputAny, Output: OutputSame, VectorOutput: VectorNever}
}

func (identityDef) Validate(Binding) error { return nil }

func (identityDef) Emit(in EmitInput) (string, error) { return emitIdentity(in), nil }

// continuousDef covers linear, log, pow, sqrt and symlog.
type continuousDef struct {
	kind Kind
}

func (d continuousDef) Kind() Kind { return d.kind }

func (d continuousDef) Info() Info {
	info := Info{
		Input:             InputNumeric,
		Output:            OutputF32,
		Continuous:        true,
		VectorOutput:      VectorInterpolated,
		Stops:             StopContinuous,
		SupportsPiecewise: d.kind == Linear,
	}
	switch d.kind {
	case Log:
		info.Params = []Param{{Prefix: "uBase_", Prop: "base", Default: 10}}
	case Pow:
		info.Params = []Param{{Prefix: "uExponent_", Prop: "exponent", Default: 1}}
	case Sqrt:
		info.Params = []Param{{Prefix: "uExponent_", Prop: "exponent", Default: 0.5}}
	case Symlog:
		info.Params = []Param{{Prefix: "uConstant_", Prop: "constant", Default: 1}}
	}
	return info
}

func (d continuousDef) Validate(b Binding) error {
	if b.Piecewise && b.InputComponents != 1 {
		return configErr("piecewise scale on %q requires scalar input values", b.Name)
	}
	if b.Piecewise {
		_, _, err := discreteLengths(b.Name, StopPiecewise, b.Scale)
		return err
	}
	return nil
}

func (d continuousDef) StopLengths(b Binding, kind StopKind) (int, int, error) {
	if kind == StopPiecewise {
		return discreteLengths(b.Name, kind, b.Scale)
	}
	return 2, 2, nil
}

func (d continuousDef) NormalizeStops(b Binding, kind StopKind, defaultRange []float64) (*Stops, error) {
	c := b.Scale
	if kind == StopPiecewise {
		dl, rl, err := discreteLengths(b.Name, kind, c)
		if err != nil {
			return nil, err
		}
		rng, comps, err := normalizeDiscreteRange(b.Name, c.Range, b.OutputComponents, "Piecewise", 2)
		if err != nil {
			return nil, err
		}
		return &Stops{
			Kind:            kind,
			Domain:          append([]float64(nil), c.Domain...),
			Range:           rng,
			RangeComponents: comps,
			DomainLength:    dl,
			RangeLength:     rl,
		}, nil
	}
	rng, err := continuousRange(b.Name, c, defaultRange)
	if err != nil {
		return nil, err
	}
	return &Stops{
		Kind:            kind,
		Domain:          domainPair(c.Domain),
		Range:           rng,
		RangeComponents: 1,
		DomainLength:    2,
		RangeLength:     2,
	}, nil
}

func continuousRange(name string, c *Config, defaultRange []float64) ([]float64, error) {
	if c.Interpolator != nil {
		return nil, configErr("scale on %q does not support interpolator ranges without a vec4 output", name)
	}
	if len(c.Range) > 0 {
		return numericPair(name, c.Range)
	}
	if len(defaultRange) >= 2 {
		return []float64{defaultRange[0], defaultRange[1]}, nil
	}
	return []float64{0, 1}, nil
}

func (d continuousDef) Emit(in EmitInput) (string, error) {
	if in.Piecewise {
		return emitPiecewise(in), nil
	}
	return emitContinuous(in, d.kind), nil
}

type bandDef struct{}

func (bandDef) Kind() Kind { return Band }

func (bandDef) Info() Info {
	return Info{
		Input:          InputU32,
		Output:         OutputF32,
		VectorOutput:   VectorNever,
		Params:         bandFamilyParams,
		Stops:          StopContinuous,
		NeedsDomainMap: true,
	}
}

func (bandDef) Validate(b Binding) error {
	if b.Scale == nil || b.Scale.Domain == nil {
		return configErr("band scale on %q requires an explicit domain array", b.Name)
	}
	if len(b.Scale.Domain) == 0 {
		return configErr("band scale on %q requires a non-empty domain", b.Name)
	}
	if b.InputComponents != 1 {
		return configErr("band scale on %q requires scalar inputs when using an ordinal domain", b.Name)
	}
	_, err := NormalizeOrdinalDomain(b.Name, b.Scale.Domain)
	return err
}

func (bandDef) StopLengths(Binding, StopKind) (int, int, error) { return 2, 2, nil }

func (bandDef) NormalizeStops(b Binding, kind StopKind, defaultRange []float64) (*Stops, error) {
	keys, err := NormalizeOrdinalDomain(b.Name, b.Scale.Domain)
	if err != nil {
		return nil, err
	}
	rng, err := continuousRange(b.Name, b.Scale, defaultRange)
	if err != nil {
		return nil, err
	}
	return &Stops{
		Kind:            kind,
		Domain:          []float64{0, float64(len(keys))},
		Range:           rng,
		RangeComponents: 1,
		DomainLength:    2,
		RangeLength:     2,
	}, nil
}

func (bandDef) NormalizeDomainMap(name string, domain []float64) (*DomainMap, error) {
	dm, err := buildDomainMap(name, domain)
	if err != nil {
		return nil, err
	}
	dm.DomainUniform = []float64{0, float64(dm.Size)}
	return dm, nil
}

func (bandDef) Emit(in EmitInput) (string, error) { return emitBand(in), nil }

type indexDef struct{}

func (indexDef) Kind() Kind { return Index }

func (indexDef) Info() Info {
	return Info{
		Input:        InputU32,
		Output:       OutputF32,
		VectorOutput: VectorNever,
		Params:       bandFamilyParams,
		Stops:        StopContinuous,
	}
}

func (indexDef) Validate(b Binding) error {
	if b.Scale != nil && b.Scale.Domain != nil && len(b.Scale.Domain) != 2 && len(b.Scale.Domain) != 3 {
		return configErr("scale domain for %q must have 2 or 3 entries for \"index\" scales", b.Name)
	}
	return nil
}

func (indexDef) StopLengths(Binding, StopKind) (int, int, error) { return 3, 2, nil }

func (indexDef) NormalizeStops(b Binding, kind StopKind, defaultRange []float64) (*Stops, error) {
	domain, err := indexDomain(b.Name, b.Scale.Domain)
	if err != nil {
		return nil, err
	}
	rng, err := continuousRange(b.Name, b.Scale, defaultRange)
	if err != nil {
		return nil, err
	}
	return &Stops{
		Kind:            kind,
		Domain:          domain,
		Range:           rng,
		RangeComponents: 1,
		DomainLength:    3,
		RangeLength:     2,
	}, nil
}

// indexDomain accepts a packed [hi, lo, span] domain or a [start, stop]
// extent, which is packed.
func indexDomain(name string, domain []float64) ([]float64, error) {
	switch len(domain) {
	case 0:
		return PackHighPrecisionDomain(0, 1), nil
	case 2:
		return PackHighPrecisionDomain(domain[0], domain[1]), nil
	case 3:
		return []float64{domain[0], domain[1], domain[2]}, nil
	}
	return nil, configErr("scale domain for %q must have 2 or 3 entries for \"index\" scales", name)
}

func (indexDef) Emit(in EmitInput) (string, error) { return emitIndex(in), nil }

type ordinalDef struct{ noStops }

func (ordinalDef) Kind() Kind { return Ordinal }

func (ordinalDef) Info() Info {
	return Info{
		Input:             InputU32,
		Output:            OutputSame,
		VectorOutput:      VectorAlways,
		NeedsDomainMap:    true,
		NeedsOrdinalRange: true,
	}
}

func (ordinalDef) Validate(b Binding) error {
	c := b.Scale
	if c == nil || len(c.Range) == 0 {
		return configErr("ordinal scale on %q requires a non-empty range", b.Name)
	}
	if c.Interpolator != nil {
		return configErr("ordinal scale on %q does not support interpolator ranges", b.Name)
	}
	if c.Domain == nil {
		return configErr("ordinal scale on %q requires an explicit domain array", b.Name)
	}
	if len(c.Domain) == 0 {
		return configErr("ordinal scale on %q requires a non-empty domain", b.Name)
	}
	if b.InputComponents != 1 {
		return configErr("ordinal scale on %q requires scalar input values", b.Name)
	}
	if err := scalarOrVec4(b, "ordinal"); err != nil {
		return err
	}
	if _, err := NormalizeOrdinalDomain(b.Name, c.Domain); err != nil {
		return err
	}
	_, _, err := normalizeDiscreteRange(b.Name, c.Range, b.OutputComponents, "Ordinal", 1)
	return err
}

func (ordinalDef) NormalizeDomainMap(name string, domain []float64) (*DomainMap, error) {
	return buildDomainMap(name, domain)
}

func (ordinalDef) Emit(in EmitInput) (string, error) { return emitOrdinal(in), nil }

type thresholdDef struct{}

func (thresholdDef) Kind() Kind { return Threshold }

func (thresholdDef) Info() Info {
	return Info{
		Input:        InputNumeric,
		Output:       OutputSame,
		VectorOutput: VectorAlways,
		Stops:        StopThreshold,
	}
}

func (thresholdDef) Validate(b Binding) error {
	if b.Scale == nil {
		return configErr("threshold scale on %q requires a non-empty domain", b.Name)
	}
	if _, _, err := discreteLengths(b.Name, StopThreshold, b.Scale); err != nil {
		return err
	}
	if b.InputComponents != 1 {
		return configErr("threshold scale on %q requires scalar input values", b.Name)
	}
	return scalarOrVec4(b, "threshold")
}

// scalarOrVec4 rejects discrete ranges the storage buffer cannot hold.
// Ranges are stored as array<f32> or array<vec4<f32>>.
func scalarOrVec4(b Binding, family string) error {
	if b.OutputComponents != 1 && b.OutputComponents != 4 {
		return configErr("channel %q uses %d components but %s scales only support scalars or vec4 outputs", b.Name, b.OutputComponents, family)
	}
	return nil
}

func (thresholdDef) StopLengths(b Binding, kind StopKind) (int, int, error) {
	return discreteLengths(b.Name, StopThreshold, b.Scale)
}

func (thresholdDef) NormalizeStops(b Binding, kind StopKind, _ []float64) (*Stops, error) {
	c := b.Scale
	dl, rl, err := discreteLengths(b.Name, StopThreshold, c)
	if err != nil {
		return nil, err
	}
	if c.Interpolator != nil {
		return nil, configErr("threshold scale on %q does not support interpolator ranges", b.Name)
	}
	rng, comps, err := normalizeDiscreteRange(b.Name, c.Range, b.OutputComponents, "Threshold", 2)
	if err != nil {
		return nil, err
	}
	return &Stops{
		Kind:            StopThreshold,
		Domain:          append([]float64(nil), c.Domain...),
		Range:           rng,
		RangeComponents: comps,
		DomainLength:    dl,
		RangeLength:     rl,
	}, nil
}

func (thresholdDef) Emit(in EmitInput) (string, error) { return emitThreshold(in), nil }

type quantizeDef struct{}

func (quantizeDef) Kind() Kind { return Quantize }

func (quantizeDef) Info() Info {
	return Info{
		Input:        InputNumeric,
		Output:       OutputSame,
		VectorOutput: VectorAlways,
		Stops:        StopQuantize,
	}
}

func (quantizeDef) Validate(b Binding) error {
	if err := scalarOrVec4(b, "quantize"); err != nil {
		return err
	}
	if b.InputComponents != 1 {
		return configErr("quantize scale on %q requires scalar input values", b.Name)
	}
	if b.Scale != nil && b.Scale.Domain != nil && len(b.Scale.Domain) != 2 {
		return configErr("quantize scale on %q requires a domain with exactly two entries", b.Name)
	}
	if b.Scale != nil && b.Scale.Interpolator != nil {
		return configErr("quantize scale on %q does not support interpolator ranges", b.Name)
	}
	return nil
}

func (quantizeDef) StopLengths(b Binding, _ StopKind) (int, int, error) {
	n := 2
	if b.Scale != nil && len(b.Scale.Range) > 0 {
		n = len(b.Scale.Range)
	}
	return 2, n, nil
}

func (quantizeDef) NormalizeStops(b Binding, _ StopKind, defaultRange []float64) (*Stops, error) {
	c := b.Scale
	if c.Domain != nil && len(c.Domain) != 2 {
		return nil, configErr("quantize scale on %q requires a domain with exactly two entries", b.Name)
	}
	if c.Interpolator != nil {
		return nil, configErr("quantize scale on %q does not support interpolator ranges", b.Name)
	}
	src := c.Range
	if len(src) == 0 {
		src = Nums(0, 1)
		if len(defaultRange) >= 2 {
			src = Nums(defaultRange[0], defaultRange[1])
		}
	}
	rng, comps, err := normalizeDiscreteRange(b.Name, src, b.OutputComponents, "Quantize", 1)
	if err != nil {
		return nil, err
	}
	return &Stops{
		Kind:            StopQuantize,
		Domain:          domainPair(c.Domain),
		Range:           rng,
		RangeComponents: comps,
		DomainLength:    2,
		RangeLength:     len(src),
	}, nil
}

func (quantizeDef) Emit(in EmitInput) (string, error) {
	if in.RangeLength < 1 {
		return "", configErr("quantize scale on %q must define at least one range entry", in.Name)
	}
	return emitQuantize(in), nil
}

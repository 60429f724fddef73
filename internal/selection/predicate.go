package selection

import (
	"fmt"
	"strings"

	"github.com/gogpu/markgpu/internal/channel"
	"github.com/gogpu/markgpu/internal/wgsl"
)

// emptyFunctionPrefix names the helper reporting an empty selection.
const emptyFunctionPrefix = "isSelectionEmpty_"

func castTo(expr string, from, to wgsl.ScalarType) string {
	if from.Or(wgsl.F32) == to.Or(wgsl.F32) {
		return expr
	}
	return to.Or(wgsl.F32).String() + "(" + expr + ")"
}

func rawExpr(irs map[string]channel.IR, name string) (string, wgsl.ScalarType, error) {
	ir, ok := irs[name]
	if !ok {
		return "", 0, invalid("selection predicate references channel %q without a source", name)
	}
	return ir.RawValueExpr, ir.ScalarType, nil
}

// PredicateWGSL returns the isSelected_<name> and isSelectionEmpty_<name>
// functions of a selection. Interval bounds are inclusive; with a
// secondary channel an instance matches when its span overlaps them.
// An inverted interval matches nothing.
func PredicateWGSL(d Def, irs map[string]channel.IR) (string, error) {
	var sb strings.Builder
	param := "params." + d.UniformName()
	fmt.Fprintf(&sb, "fn %s%s(i: u32) -> bool {\n", wgsl.SelectedFunctionPrefix, d.Name)
	switch d.Type {
	case channel.SelectionSingle, channel.SelectionMulti:
		raw, t, err := rawExpr(irs, UniqueIDChannel)
		if err != nil {
			return "", err
		}
		id := castTo(raw, t, wgsl.U32)
		if d.Type == channel.SelectionSingle {
			fmt.Fprintf(&sb, "    return %s == %s;\n", id, param)
		} else {
			buf := d.BufferName()
			fmt.Fprintf(&sb, "    return hashContains(&%s, %s, arrayLength(&%s));\n", buf, id, buf)
		}
	case channel.SelectionInterval:
		raw, t, err := rawExpr(irs, d.Channel)
		if err != nil {
			return "", err
		}
		st := d.ScalarType.Or(wgsl.F32)
		fmt.Fprintf(&sb, "    let v = %s;\n", castTo(raw, t, st))
		if d.SecondaryChannel != "" {
			raw2, t2, err := rawExpr(irs, d.SecondaryChannel)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&sb, "    let v2 = %s;\n", castTo(raw2, t2, st))
			fmt.Fprintf(&sb, "    return %s.x <= %s.y && v <= %s.y && v2 >= %s.x;\n", param, param, param, param)
		} else {
			fmt.Fprintf(&sb, "    return %s.x <= v && v <= %s.y;\n", param, param)
		}
	default:
		return "", invalid("selection %q has unsupported type %v", d.Name, d.Type)
	}
	sb.WriteString("}\n\n")

	fmt.Fprintf(&sb, "fn %s%s() -> bool {\n", emptyFunctionPrefix, d.Name)
	switch d.Type {
	case channel.SelectionSingle, channel.SelectionMulti:
		fmt.Fprintf(&sb, "    return %s == 0u;\n", param)
	case channel.SelectionInterval:
		fmt.Fprintf(&sb, "    return %s.x > %s.y;\n", param, param)
	}
	sb.WriteString("}\n")
	return sb.String(), nil
}

// ConditionedWGSL returns getConditioned_<name> for a channel with
// conditions. The first matching condition wins; otherwise the scaled
// value is returned.
func ConditionedWGSL(ir channel.IR) (string, bool) {
	conds := ir.Config.Conditions
	if len(conds) == 0 {
		return "", false
	}
	t := wgsl.F32
	ret := wgsl.VecType(wgsl.F32, ir.OutputComponents)
	if ir.OutputComponents == 1 {
		t = ir.OutputScalarType.Or(wgsl.F32)
		ret = t.String()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "fn %s%s(i: u32) -> %s {\n", wgsl.ConditionedFunctionPrefix, ir.Name, ret)
	for k, c := range conds {
		test := wgsl.SelectedFunctionPrefix + c.When.Selection + "(i)"
		if c.When.Empty {
			test += " || " + emptyFunctionPrefix + c.When.Selection + "()"
		}
		value := channel.FormatLiteral(c.Value, t, ir.OutputComponents)
		if c.Dynamic {
			value = "params." + ConditionUniform(ir.Name, k)
		}
		fmt.Fprintf(&sb, "    if (%s) {\n        return %s;\n    }\n", test, value)
	}
	fmt.Fprintf(&sb, "    return %s%s(i);\n}\n", wgsl.ScaledFunctionPrefix, ir.Name)
	return sb.String(), true
}

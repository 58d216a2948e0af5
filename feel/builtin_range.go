package feel

// interval is a range or a point treated as the closed range [p..p].
type interval struct {
	start, end Value
	si, ei     bool
	point      bool
}

func toInterval(v Value) (interval, bool) {
	switch x := v.(type) {
	case *Range:
		if x.Start == nil || x.End == nil {
			return interval{}, false
		}
		return interval{start: x.Start, end: x.End, si: x.StartIncluded, ei: x.EndIncluded}, true
	case NullValue, *List, *Context, *Function:
		return interval{}, false
	}
	if v == nil {
		return interval{}, false
	}
	return interval{start: v, end: v, si: true, ei: true, point: true}, true
}

// rangeCmp collects comparison failures so a relation can be written as a
// single boolean expression.
type rangeCmp struct {
	failed bool
}

func (rc *rangeCmp) cmp(a, b Value) int {
	c, ok := Compare(a, b)
	if !ok {
		rc.failed = true
	}
	return c
}

type relation func(rc *rangeCmp, a, b interval) bool

func rangeRelation(rel relation) BuiltinFunc {
	return func(args []Value) (Value, error) {
		a, ok1 := toInterval(args[0])
		b, ok2 := toInterval(args[1])
		if !ok1 || !ok2 {
			return Null, nil
		}
		rc := &rangeCmp{}
		res := rel(rc, a, b)
		if rc.failed {
			return Null, nil
		}
		return Boolean(res), nil
	}
}

func before(rc *rangeCmp, a, b interval) bool {
	c := rc.cmp(a.end, b.start)
	return c < 0 || (c == 0 && !(a.ei && b.si))
}

func meets(rc *rangeCmp, a, b interval) bool {
	return a.ei && b.si && rc.cmp(a.end, b.start) == 0
}

func overlaps(rc *rangeCmp, a, b interval) bool {
	c1 := rc.cmp(a.end, b.start)
	c2 := rc.cmp(a.start, b.end)
	return (c1 > 0 || (c1 == 0 && a.ei && b.si)) &&
		(c2 < 0 || (c2 == 0 && a.si && b.ei))
}

func overlapsBefore(rc *rangeCmp, a, b interval) bool {
	cs := rc.cmp(a.start, b.start)
	ce := rc.cmp(a.end, b.start)
	cee := rc.cmp(a.end, b.end)
	return (cs < 0 || (cs == 0 && a.si && !b.si)) &&
		(ce > 0 || (ce == 0 && a.ei && b.si)) &&
		(cee < 0 || (cee == 0 && (!a.ei || b.ei)))
}

func finishes(rc *rangeCmp, a, b interval) bool {
	if a.point {
		return b.ei && rc.cmp(a.start, b.end) == 0
	}
	cs := rc.cmp(a.start, b.start)
	return a.ei == b.ei && rc.cmp(a.end, b.end) == 0 &&
		(cs > 0 || (cs == 0 && (!a.si || b.si)))
}

func includes(rc *rangeCmp, a, b interval) bool {
	if b.point {
		cs := rc.cmp(b.start, a.start)
		ce := rc.cmp(b.start, a.end)
		return (cs > 0 || (cs == 0 && a.si)) && (ce < 0 || (ce == 0 && a.ei))
	}
	cs := rc.cmp(a.start, b.start)
	ce := rc.cmp(a.end, b.end)
	return (cs < 0 || (cs == 0 && (a.si || !b.si))) &&
		(ce > 0 || (ce == 0 && (a.ei || !b.ei)))
}

func starts(rc *rangeCmp, a, b interval) bool {
	if a.point {
		return b.si && rc.cmp(a.start, b.start) == 0
	}
	ce := rc.cmp(a.end, b.end)
	return a.si == b.si && rc.cmp(a.start, b.start) == 0 &&
		(ce < 0 || (ce == 0 && (!a.ei || b.ei)))
}

func coincides(rc *rangeCmp, a, b interval) bool {
	return a.si == b.si && a.ei == b.ei &&
		rc.cmp(a.start, b.start) == 0 && rc.cmp(a.end, b.end) == 0
}

func flip(rel relation) relation {
	return func(rc *rangeCmp, a, b interval) bool { return rel(rc, b, a) }
}

func registerRangeBuiltins(r *Registry) {
	params := []string{"a", "b"}
	for name, rel := range map[string]relation{
		"before":          before,
		"after":           flip(before),
		"meets":           meets,
		"met by":          flip(meets),
		"overlaps":        overlaps,
		"overlaps before": overlapsBefore,
		"overlaps after":  flip(overlapsBefore),
		"finishes":        finishes,
		"finished by":     flip(finishes),
		"includes":        includes,
		"during":          flip(includes),
		"starts":          starts,
		"started by":      flip(starts),
		"coincides":       coincides,
	} {
		r.define(name, params, 2, rangeRelation(rel))
	}
}

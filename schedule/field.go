package schedule

import (
	"math/bits"
	"strconv"
	"strings"
)

// Field 表达式字段.
type Field int

// 字段按表达式中的顺序排列.
const (
	Second Field = iota
	Minute
	Hour
	DayOfMonth
	Month
	DayOfWeek
)

type bounds struct {
	min, max int
	name     string
}

var fieldBounds = [...]bounds{
	Second:     {0, 59, "second"},
	Minute:     {0, 59, "minute"},
	Hour:       {0, 23, "hour"},
	DayOfMonth: {1, 31, "day-of-month"},
	Month:      {1, 12, "month"},
	DayOfWeek:  {0, 6, "day-of-week"},
}

// String 返回字段名.
func (f Field) String() string {
	if f < Second || f > DayOfWeek {
		return "unknown"
	}
	return fieldBounds[f].name
}

// Min 返回字段允许的最小值.
func (f Field) Min() int { return fieldBounds[f].min }

// Max 返回字段允许的最大值.
func (f Field) Max() int { return fieldBounds[f].max }

// Matcher 单个字段允许取值的集合.
//
// 零值不可用，只能通过解析得到；构造完成后不可变.
type Matcher struct {
	field Field
	bits  uint64
}

// Field 返回所属字段.
func (m Matcher) Field() Field { return m.field }

// Contains 判断 v 是否在集合中.
func (m Matcher) Contains(v int) bool {
	if v < 0 || v > 63 {
		return false
	}
	return m.bits&(1<<uint(v)) != 0
}

// All 判断集合是否覆盖字段的全部取值.
func (m Matcher) All() bool {
	return m.bits == span(m.field.Min(), m.field.Max(), 1)
}

// Values 按升序返回集合中的值.
func (m Matcher) Values() []int {
	values := make([]int, 0, bits.OnesCount64(m.bits))
	for v := m.field.Min(); v <= m.field.Max(); v++ {
		if m.Contains(v) {
			values = append(values, v)
		}
	}
	return values
}

// span 返回 [lo, hi] 中按 step 递增的取值位图.
func span(lo, hi, step int) uint64 {
	var b uint64
	for v := lo; v <= hi; v += step {
		b |= 1 << uint(v)
	}
	return b
}

// singleton 只包含一个值的集合.
func singleton(f Field, v int) Matcher {
	return Matcher{field: f, bits: 1 << uint(v)}
}

// parseField 解析一个字段，逗号分隔的各项取并集.
func parseField(f Field, text string) (Matcher, error) {
	var b uint64
	for _, part := range strings.Split(text, ",") {
		pb, err := parsePart(f, part)
		if err != nil {
			return Matcher{}, err
		}
		b |= pb
	}
	return Matcher{field: f, bits: b}, nil
}

// parsePart 解析 *, n, a-b, a/b, */b, a-b/c.
func parsePart(f Field, part string) (uint64, error) {
	fail := func(reason string) (uint64, error) {
		return 0, &ParseError{Field: f.String(), Token: part, Reason: reason}
	}
	if part == "" {
		return fail("empty list element")
	}

	rangeText, stepText, hasStep := strings.Cut(part, "/")
	var lo, hi int
	switch {
	case rangeText == "*":
		lo, hi = f.Min(), f.Max()
	case strings.Contains(rangeText, "-"):
		loText, hiText, _ := strings.Cut(rangeText, "-")
		var ok bool
		if lo, ok = atoi(loText); !ok {
			return fail("malformed range start")
		}
		if hi, ok = atoi(hiText); !ok {
			return fail("malformed range end")
		}
		if lo > hi {
			return fail("range start is greater than range end")
		}
	default:
		n, ok := atoi(rangeText)
		if !ok {
			return fail("malformed value")
		}
		lo, hi = n, n
		if hasStep {
			hi = f.Max()
		}
	}

	if lo < f.Min() || hi > f.Max() {
		return fail("value out of range [" + strconv.Itoa(f.Min()) + "," + strconv.Itoa(f.Max()) + "]")
	}

	step := 1
	if hasStep {
		n, ok := atoi(stepText)
		if !ok {
			return fail("malformed step")
		}
		if n <= 0 {
			return fail("step must be positive")
		}
		step = n
	}

	return span(lo, hi, step), nil
}

// atoi 只接受纯数字，拒绝符号和空串.
func atoi(s string) (int, bool) {
	if s == "" || len(s) > 4 {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

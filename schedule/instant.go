package schedule

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// InstantSchedule 只匹配一个绝对时间点的调度.
type InstantSchedule struct {
	at  time.Time
	loc *time.Location
}

// At 创建定点调度.
//
// loc 只影响展示，为 nil 时使用 time.Local.
func At(t time.Time, loc *time.Location) *InstantSchedule {
	if loc == nil {
		loc = time.Local
	}
	return &InstantSchedule{at: t.In(loc), loc: loc}
}

// 可接受的时间字符串格式，依次尝试.
var instantLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseInstant 把时间值转换为定点调度.
//
// 支持 time.Time、*time.Time、Unix 毫秒（int64/int）以及时间字符串.
// 不带偏移量的字符串按 tz 解释.
func ParseInstant(v any, tz string) (*InstantSchedule, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	t, err := toInstant(v, loc)
	if err != nil {
		return nil, err
	}
	return At(t, loc), nil
}

func toInstant(v any, loc *time.Location) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case *time.Time:
		if x == nil {
			return time.Time{}, ErrEmptySchedule
		}
		return *x, nil
	case int64:
		return time.UnixMilli(x), nil
	case int:
		return time.UnixMilli(int64(x)), nil
	case int32:
		return time.UnixMilli(int64(x)), nil
	case uint32:
		return time.UnixMilli(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return time.Time{}, fmt.Errorf("%w: %d out of range", ErrInvalidInstant, x)
		}
		return time.UnixMilli(int64(x)), nil
	case float64:
		// JSON 解码得到的数字
		if math.IsNaN(x) || math.IsInf(x, 0) || x >= math.MaxInt64 || x < math.MinInt64 {
			return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidInstant, x)
		}
		return time.UnixMilli(int64(x)), nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range instantLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidInstant, x)
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidInstant, v)
	}
}

// Next 时间点严格晚于 ref 时返回它，否则返回 false.
func (s *InstantSchedule) Next(ref time.Time) (time.Time, bool) {
	if s.at.After(ref) {
		return s.at, true
	}
	return time.Time{}, false
}

// Exhausted 时间点不晚于 ref 时调度已耗尽.
func (s *InstantSchedule) Exhausted(ref time.Time) bool {
	return !s.at.After(ref)
}

// Time 返回时间点.
func (s *InstantSchedule) Time() time.Time { return s.at }

// Location 返回时区.
func (s *InstantSchedule) Location() *time.Location { return s.loc }

// OneShot 始终为 true.
func (s *InstantSchedule) OneShot() bool { return true }

// String 返回 RFC3339 格式的时间点.
func (s *InstantSchedule) String() string { return s.at.Format(time.RFC3339) }

// New 根据任意调度描述创建调度.
//
// 支持：
//   - Schedule：原样返回
//   - 包含空白的字符串：Cron 表达式
//   - 其他字符串、time.Time、*time.Time、Unix 毫秒（整数或 float64）：定点调度
func New(spec any, loc *time.Location) (Schedule, error) {
	if loc == nil {
		loc = time.Local
	}
	switch x := spec.(type) {
	case nil:
		return nil, ErrEmptySchedule
	case Schedule:
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, ErrEmptySchedule
		}
		if strings.ContainsAny(s, " \t") {
			return Parse(s, loc)
		}
		if t, err := toInstant(s, loc); err == nil {
			return At(t, loc), nil
		}
		return Parse(s, loc)
	default:
		t, err := toInstant(spec, loc)
		if err != nil {
			return nil, err
		}
		return At(t, loc), nil
	}
}

// Package schedule 提供 Cron 表达式解析和下次触发时间计算.
//
// 支持两类调度：
//   - Cron 调度：六字段（秒 分 时 日 月 周）或五字段（省略秒，秒固定为 0）
//   - 定点调度：一个绝对时间点，触发一次后耗尽
//
// 所有字段比较和进位计算都在调度所属时区的墙上时间中进行，
// 因此 "每天 09:00" 在夏令时切换前后都按本地 09:00 触发.
//
// 示例：
//
//	s, err := schedule.ParseInLocation("0 */5 * * * *", "Asia/Shanghai")
//	if err != nil {
//	    return err
//	}
//	next, ok := s.Next(time.Now())
package schedule

import (
	"strings"
	"time"
)

// MaxLookahead 向前搜索的最大年数，超出即视为耗尽.
const MaxLookahead = 5

// Schedule 调度接口.
type Schedule interface {
	// Next 返回严格晚于 ref 的下一个匹配时间点.
	// 返回 false 表示调度已耗尽.
	Next(ref time.Time) (time.Time, bool)

	// Location 返回调度所属时区.
	Location() *time.Location

	// OneShot 是否为只触发一次的定点调度.
	OneShot() bool

	// String 返回调度的文本形式.
	String() string
}

// CronSchedule 基于六个字段集合的 Cron 调度.
type CronSchedule struct {
	expr        string
	second      Matcher
	minute      Matcher
	hour        Matcher
	dom         Matcher
	month       Matcher
	dow         Matcher
	domAll      bool
	dowAll      bool
	withSeconds bool
	loc         *time.Location
}

// Parse 解析 Cron 表达式.
//
// loc 为 nil 时使用 time.Local.
func Parse(expr string, loc *time.Location) (*CronSchedule, error) {
	if loc == nil {
		loc = time.Local
	}

	fields := strings.Fields(expr)
	s := &CronSchedule{expr: strings.Join(fields, " "), loc: loc}

	switch len(fields) {
	case 6:
		s.withSeconds = true
	case 5:
		s.second = singleton(Second, 0)
	default:
		return nil, &ParseError{Token: expr, Reason: "expected 5 or 6 fields"}
	}

	targets := []*Matcher{&s.minute, &s.hour, &s.dom, &s.month, &s.dow}
	if s.withSeconds {
		targets = append([]*Matcher{&s.second}, targets...)
	}
	first := Minute
	if s.withSeconds {
		first = Second
	}
	for i, text := range fields {
		m, err := parseField(first+Field(i), text)
		if err != nil {
			return nil, err
		}
		*targets[i] = m
	}

	s.domAll = s.dom.All()
	s.dowAll = s.dow.All()
	return s, nil
}

// ParseInLocation 在指定 IANA 时区中解析表达式.
//
// tz 为空或 "local" 时使用本机时区.
func ParseInLocation(expr, tz string) (*CronSchedule, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	return Parse(expr, loc)
}

// MustParse 解析表达式，失败时 panic.
func MustParse(expr string, loc *time.Location) *CronSchedule {
	s, err := Parse(expr, loc)
	if err != nil {
		panic(err)
	}
	return s
}

// LoadLocation 加载时区.
func LoadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, &timezoneError{tz: tz, err: err}
	}
	return loc, nil
}

type timezoneError struct {
	tz  string
	err error
}

func (e *timezoneError) Error() string {
	return ErrInvalidTimezone.Error() + " " + e.tz + ": " + e.err.Error()
}

func (e *timezoneError) Unwrap() []error {
	return []error{ErrInvalidTimezone, e.err}
}

// Location 返回调度所属时区.
func (s *CronSchedule) Location() *time.Location { return s.loc }

// OneShot 始终为 false.
func (s *CronSchedule) OneShot() bool { return false }

// String 返回规范化后的表达式.
func (s *CronSchedule) String() string { return s.expr }

// WithSeconds 表达式是否显式包含秒字段.
func (s *CronSchedule) WithSeconds() bool { return s.withSeconds }

// Matcher 返回指定字段的集合.
func (s *CronSchedule) Matcher(f Field) Matcher {
	switch f {
	case Second:
		return s.second
	case Minute:
		return s.minute
	case Hour:
		return s.hour
	case DayOfMonth:
		return s.dom
	case Month:
		return s.month
	default:
		return s.dow
	}
}

// Next 返回严格晚于 ref 的下一个匹配时间点.
//
// 从 ref 的墙上时间加一个单位（有秒字段为 1 秒，否则为 1 分钟）开始，
// 依次修正月、日、时、分、秒：不匹配的字段加一并向高位进位，低位归零.
// 搜索超过 MaxLookahead 年仍无匹配时返回 false.
func (s *CronSchedule) Next(ref time.Time) (time.Time, bool) {
	w := wallOf(ref.In(s.loc))
	if s.withSeconds {
		w.addSecond()
	} else {
		w.second = 0
		w.addMinute()
	}

	limit := w.year + MaxLookahead
	for w.year <= limit {
		switch {
		case !s.month.Contains(w.month):
			w.addMonth()
		case !s.dayMatches(w):
			w.addDay()
		case !s.hour.Contains(w.hour):
			w.addHour()
		case !s.minute.Contains(w.minute):
			w.addMinute()
		case !s.second.Contains(w.second):
			w.addSecond()
		default:
			if t := resolve(w, s.loc); t.After(ref) {
				return t, true
			}
			if s.withSeconds {
				w.addSecond()
			} else {
				w.addMinute()
			}
		}
	}
	return time.Time{}, false
}

// dayMatches 日和周都被限制时满足其一即可，只限制其一时只看被限制的字段.
func (s *CronSchedule) dayMatches(w wallTime) bool {
	switch {
	case !s.domAll && !s.dowAll:
		return s.dom.Contains(w.day) || s.dow.Contains(w.weekday())
	case !s.domAll:
		return s.dom.Contains(w.day)
	case !s.dowAll:
		return s.dow.Contains(w.weekday())
	default:
		return true
	}
}

package schedule

import "time"

// wallTime 某个时区中的墙上时间，不携带偏移量.
type wallTime struct {
	year, month, day     int
	hour, minute, second int
}

func wallOf(t time.Time) wallTime {
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	return wallTime{year: y, month: int(mo), day: d, hour: h, minute: mi, second: s}
}

// asUTC 把墙上时间按 UTC 解释，用于偏移量计算.
func (w wallTime) asUTC() time.Time {
	return time.Date(w.year, time.Month(w.month), w.day, w.hour, w.minute, w.second, 0, time.UTC)
}

func (w wallTime) weekday() int {
	return int(time.Date(w.year, time.Month(w.month), w.day, 0, 0, 0, 0, time.UTC).Weekday())
}

func (w wallTime) after(o wallTime) bool {
	return w.asUTC().After(o.asUTC())
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (w *wallTime) addMonth() {
	w.month++
	w.day, w.hour, w.minute, w.second = 1, 0, 0, 0
	if w.month > 12 {
		w.month = 1
		w.year++
	}
}

func (w *wallTime) addDay() {
	w.day++
	w.hour, w.minute, w.second = 0, 0, 0
	if w.day > daysIn(w.year, w.month) {
		w.addMonth()
	}
}

func (w *wallTime) addHour() {
	w.hour++
	w.minute, w.second = 0, 0
	if w.hour > 23 {
		w.addDay()
	}
}

func (w *wallTime) addMinute() {
	w.minute++
	w.second = 0
	if w.minute > 59 {
		w.addHour()
	}
}

func (w *wallTime) addSecond() {
	w.second++
	if w.second > 59 {
		w.addMinute()
	}
}

// resolve 把墙上时间换算为 loc 中的绝对时间.
//
// 回拨导致同一墙上时间出现两次时取较早的一次；
// 跳变导致墙上时间不存在时取跳变结束后的第一个有效时刻.
func resolve(w wallTime, loc *time.Location) time.Time {
	t := time.Date(w.year, time.Month(w.month), w.day, w.hour, w.minute, w.second, 0, loc)
	got := wallOf(t)

	if got == w {
		start, _ := t.ZoneBounds()
		if start.IsZero() {
			return t
		}
		_, prevOffset := start.Add(-time.Second).Zone()
		earlier := w.asUTC().Add(-time.Duration(prevOffset) * time.Second)
		if earlier.Before(start) && wallOf(earlier.In(loc)) == w {
			return earlier.In(loc)
		}
		return t
	}

	start, end := t.ZoneBounds()
	if got.after(w) {
		if start.IsZero() {
			return t
		}
		return start.In(loc)
	}
	if end.IsZero() {
		return t
	}
	return end.In(loc)
}

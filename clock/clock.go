// Package clock 提供可替换的时间源.
//
// 调度核心只通过两个原语依赖时间：读取当前时间、延迟 d 后回调并返回可取消的句柄.
// 生产环境使用 Real()，测试使用 Fake() 提供的虚拟时钟，时间只在 Advance 时前进.
//
// 示例：
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	c.AfterFunc(time.Second, func() { fmt.Println("tick") })
//	c.Advance(time.Second) // 同步触发回调
package clock

import "time"

// Clock 时间源接口.
type Clock interface {
	// Now 返回当前时间.
	Now() time.Time

	// AfterFunc 在 d 之后调用 f，返回可取消的定时器.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer 由 AfterFunc 返回的定时器句柄.
type Timer struct {
	stopFunc func() bool
}

// Stop 阻止定时器触发.
// 如果本次调用阻止了触发返回 true，已触发或已停止返回 false.
func (t *Timer) Stop() bool {
	if t == nil || t.stopFunc == nil {
		return false
	}
	return t.stopFunc()
}

// Real 返回基于标准库 time 的时间源.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	timer := time.AfterFunc(d, f)
	return &Timer{stopFunc: timer.Stop}
}

package clock

import (
	"sync"
	"time"
)

// FakeClock 确定性的虚拟时钟.
//
// 时间只在 Advance/Set 时前进. 到期的回调在调用 Advance 的 goroutine 中
// 按截止时间顺序同步执行，执行前当前时间被设置为该回调的截止时间，
// 因此回调中再次注册的定时器会在同一次 Advance 中按序触发.
//
// d <= 0 的定时器不会在 AfterFunc 内同步执行，而是在下一次 Advance 时触发，
// 调用方可以在持有锁时注册定时器.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*fakeWaiter
	seq     uint64
}

type fakeWaiter struct {
	deadline time.Time
	seq      uint64
	callback func()
	stopped  bool
	fired    bool
}

// Fake 创建初始时间为 initial 的虚拟时钟.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// Now 返回虚拟当前时间.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc 注册在 d 之后执行的回调.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d < 0 {
		d = 0
	}
	c.seq++
	waiter := &fakeWaiter{
		deadline: c.current.Add(d),
		seq:      c.seq,
		callback: f,
	}
	c.waiters = append(c.waiters, waiter)

	return &Timer{
		stopFunc: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			if waiter.stopped || waiter.fired {
				return false
			}
			waiter.stopped = true
			return true
		},
	}
}

// Advance 将时间前进 d，并依次触发期间到期的回调.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)
	c.mu.Unlock()
	c.advanceTo(target)
}

// Set 将时间设置为 t. t 早于当前时间时只修改时间，不触发回调.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	if t.Before(c.current) {
		c.current = t
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.advanceTo(t)
}

func (c *FakeClock) advanceTo(target time.Time) {
	for {
		waiter := c.popDue(target)
		if waiter == nil {
			return
		}
		waiter.callback()
	}
}

// popDue 取出最早到期的回调并把当前时间推进到它的截止时间.
// 没有到期回调时把时间推进到 target 并返回 nil.
func (c *FakeClock) popDue(target time.Time) *fakeWaiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := -1
	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		if w.stopped {
			continue
		}
		remaining = append(remaining, w)
	}
	c.waiters = remaining

	for i, w := range c.waiters {
		if w.deadline.After(target) {
			continue
		}
		if idx < 0 || w.deadline.Before(c.waiters[idx].deadline) ||
			(w.deadline.Equal(c.waiters[idx].deadline) && w.seq < c.waiters[idx].seq) {
			idx = i
		}
	}

	if idx < 0 {
		if target.After(c.current) {
			c.current = target
		}
		return nil
	}

	waiter := c.waiters[idx]
	c.waiters = append(c.waiters[:idx], c.waiters[idx+1:]...)
	waiter.fired = true
	if waiter.deadline.After(c.current) {
		c.current = waiter.deadline
	}
	return waiter
}

// PendingCount 返回尚未触发且未停止的定时器数量.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, w := range c.waiters {
		if !w.stopped {
			count++
		}
	}
	return count
}

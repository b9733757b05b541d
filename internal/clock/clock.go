package clock

import (
	"sync"
	"time"
)

// Clock 时间来源
type Clock interface {
	Now() time.Time
}

// System 系统时钟
type System struct{}

func (System) Now() time.Time {
	return time.Now()
}

// Fake 可手动拨动的时钟, 用于测试
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake 创建指向 t 的时钟
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set 设置当前时间
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

// Advance 向前拨动时间
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Today 返回 UTC 当天零点
func Today(c Clock) time.Time {
	return Date(c.Now())
}

// Date 截断为 UTC 日期
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

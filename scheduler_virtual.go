package fluxz

import (
	"container/heap"
	"fmt"
	"sync"
	"time"
)

// virtualEpoch is the starting time of every VirtualScheduler.
var virtualEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// VirtualScheduler is a logical clock that only moves when told to.
// Advance runs every action that falls due inside the window, in due order,
// on the caller's goroutine before it returns. Actions due at the same
// instant run in the order they were scheduled. Actions scheduled by other
// actions run in the same Advance call if they fall due in the window.
//
// A VirtualScheduler makes hours of Interval ticks execute in microseconds
// and is what the verify package uses for virtual-time scripts.
type VirtualScheduler struct {
	now   time.Time
	cfg   schedulerConfig
	queue virtualQueue
	mu    sync.Mutex
	seq   uint64
}

// NewVirtualScheduler creates a scheduler whose clock starts at a fixed
// epoch. WithClock is ignored.
//
// Example:
//
//	vs := fluxz.NewVirtualScheduler()
//	ticks := fluxz.NewTake(fluxz.Interval(time.Second, vs), 5)
//	fluxz.Subscribe(ticks, func(n int64) { fmt.Println(n) }, nil, nil)
//	vs.Advance(5 * time.Second) // prints 0..4 immediately
func NewVirtualScheduler(opts ...SchedulerOption) *VirtualScheduler {
	return &VirtualScheduler{
		now: virtualEpoch,
		cfg: newSchedulerConfig(opts),
	}
}

// Now returns the virtual time.
func (v *VirtualScheduler) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// ScheduleOnce runs action once when virtual time reaches now+delay.
func (v *VirtualScheduler) ScheduleOnce(delay time.Duration, action func()) Task {
	if delay < 0 {
		delay = 0
	}
	return v.push(delay, 0, action)
}

// SchedulePeriodic runs action every period of virtual time. It panics if
// period is not positive.
func (v *VirtualScheduler) SchedulePeriodic(period time.Duration, action func()) Task {
	checkPeriod(period)
	return v.push(period, period, action)
}

func (v *VirtualScheduler) push(delay, period time.Duration, action func()) *virtualTask {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seq++
	kind := "once"
	if period > 0 {
		kind = "periodic"
	}
	t := &virtualTask{
		scheduler: v,
		due:       v.now.Add(delay),
		seq:       v.seq,
		period:    period,
		action:    action,
		name:      fmt.Sprintf("%s#%d", kind, v.seq),
	}
	heap.Push(&v.queue, t)
	return t
}

// Advance moves virtual time forward by d, running every action that falls
// due on the way. Advance(0) runs the actions already due.
func (v *VirtualScheduler) Advance(d time.Duration) {
	if d < 0 {
		d = 0
	}
	v.AdvanceTo(v.Now().Add(d))
}

// AdvanceTo moves virtual time to target, running every action due at or
// before it. Time never moves backwards; an earlier target only runs the
// actions already due.
func (v *VirtualScheduler) AdvanceTo(target time.Time) {
	for {
		v.mu.Lock()
		if len(v.queue) == 0 || v.queue[0].due.After(target) {
			if target.After(v.now) {
				v.now = target
			}
			v.mu.Unlock()
			return
		}

		t := heap.Pop(&v.queue).(*virtualTask)
		if t.due.After(v.now) {
			v.now = t.due
		}
		if t.period > 0 {
			v.seq++
			t.due = t.due.Add(t.period)
			t.seq = v.seq
			heap.Push(&v.queue, t)
		} else {
			t.cancelled = true
		}
		v.mu.Unlock()

		if err := runAction(t.action); err != nil {
			v.cfg.report(t.name, err)
			t.Cancel()
		}
	}
}

// Pending returns the number of tasks that may still run.
func (v *VirtualScheduler) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.queue)
}

// Dispose cancels every pending task.
func (v *VirtualScheduler) Dispose() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, t := range v.queue {
		t.cancelled = true
		t.index = -1
	}
	v.queue = nil
}

type virtualTask struct {
	scheduler *VirtualScheduler
	due       time.Time
	action    func()
	name      string
	seq       uint64
	period    time.Duration
	index     int
	cancelled bool
}

func (t *virtualTask) Cancel() {
	v := t.scheduler
	v.mu.Lock()
	defer v.mu.Unlock()
	if t.cancelled {
		return
	}
	t.cancelled = true
	if t.index >= 0 {
		heap.Remove(&v.queue, t.index)
	}
}

// virtualQueue orders tasks by due time, then by scheduling order.
type virtualQueue []*virtualTask

func (q virtualQueue) Len() int { return len(q) }

func (q virtualQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}

func (q virtualQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *virtualQueue) Push(x any) {
	t := x.(*virtualTask)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *virtualQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}

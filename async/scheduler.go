package async

import (
	"fmt"
	"time"

	"github.com/linchenxuan/uvbus/codes"
	"github.com/linchenxuan/uvbus/log"
	"github.com/linchenxuan/uvbus/loop"
	"github.com/linchenxuan/uvbus/metrics"
)

// A zero max-concurrency means effectively unlimited, bounded here so a
// runaway submit loop still cannot wrap the permit count.
const _maxConcurrencyCap = 1_000_000

// Task is one unit of scheduled work. It receives the completion promise
// and must eventually settle it; settlement releases the task's permit.
type Task func(p *Promise)

// SchedulerStats is a point-in-time snapshot of scheduler activity.
type SchedulerStats struct {
	Submitted         uint64
	Completed         uint64
	Failed            uint64
	Cancelled         uint64
	PeakConcurrency   int
	AvgTaskDurationMS float64
	TotalWaitMS       int64
}

// Scheduler runs submitted tasks with a concurrency cap. Permits come
// from an internal semaphore, completion is tracked by a wait-group, and
// everything runs on the context's loop.
type Scheduler struct {
	ctx *Context
	sem *Semaphore
	wg  *WaitGroup

	maxConcurrency int
	active         int

	submitted      uint64
	completed      uint64
	failed         uint64
	cancelled      uint64
	peak           int
	totalTaskDurMS int64
	totalWaitMS    int64
}

// NewScheduler creates a scheduler over ctx. maxConcurrency bounds the
// number of tasks running at once; zero means effectively unlimited.
func NewScheduler(ctx *Context, maxConcurrency int) (*Scheduler, error) {
	if ctx == nil {
		return nil, codes.New(codes.ErrContextInvalid, "")
	}
	if ctx.Loop() == nil {
		return nil, codes.New(codes.ErrContextNoLoop, "")
	}
	if maxConcurrency < 0 {
		return nil, codes.Errorf(codes.ErrConcurrencyInvalid, "max concurrency %d", maxConcurrency)
	}
	if maxConcurrency == 0 {
		maxConcurrency = _maxConcurrencyCap
	}
	sem, err := NewSemaphore(ctx.Loop(), maxConcurrency)
	if err != nil {
		return nil, codes.New(codes.ErrSchedulerInitFailed, err.Error())
	}
	return &Scheduler{
		ctx:            ctx,
		sem:            sem,
		wg:             NewWaitGroup(ctx.Loop()),
		maxConcurrency: maxConcurrency,
	}, nil
}

// Submit queues one task. The task starts once a permit is free and p
// settles when the task settles it. A nil p gets a private promise so the
// permit bookkeeping always has a settlement to observe.
func (s *Scheduler) Submit(task Task, p *Promise) error {
	if s.ctx.Cancelled() {
		return codes.New(codes.ErrTaskCancelled, "")
	}
	if task == nil {
		return codes.New(codes.ErrTaskInvalid, "nil task")
	}
	if p == nil {
		p = NewPromise(s.ctx.Loop())
	}

	s.submitted++
	if err := s.wg.Add(1); err != nil {
		return codes.New(codes.ErrTaskSubmitFailed, err.Error())
	}
	submitTime := time.Now()

	permit := NewPromise(s.ctx.Loop())
	permit.SetCallback(func(granted *Promise) {
		if granted.IsRejected() {
			s.cancelled++
			_ = p.Reject(granted.ErrCode(), granted.ErrMessage())
			_ = s.wg.Done()
			return
		}
		if s.ctx.Cancelled() {
			s.cancelled++
			_ = p.Reject(codes.ErrTaskCancelled, "")
			s.sem.Release()
			_ = s.wg.Done()
			return
		}
		s.start(task, p, submitTime)
	})
	if err := s.sem.AcquireAsync(permit); err != nil {
		_ = s.wg.Done()
		return codes.New(codes.ErrTaskSubmitFailed, err.Error())
	}
	return nil
}

func (s *Scheduler) start(task Task, p *Promise, submitTime time.Time) {
	s.totalWaitMS += time.Since(submitTime).Milliseconds()
	s.active++
	if s.active > s.peak {
		s.peak = s.active
	}
	metrics.UpdateGaugeWithGroup("active_tasks", metrics.GroupAsync, metrics.Value(s.active))
	metrics.UpdateMaxGaugeWithGroup("peak_concurrency", metrics.GroupAsync, metrics.Value(s.active))

	startTime := time.Now()
	p.addObserver(func(settled *Promise) {
		durMS := time.Since(startTime).Milliseconds()
		s.totalTaskDurMS += durMS
		metrics.UpdateAvgGaugeWithGroup("task_duration_ms", metrics.GroupAsync, metrics.Value(durMS))
		if settled.IsRejected() {
			s.failed++
		} else {
			s.completed++
		}
		s.active--
		metrics.UpdateGaugeWithGroup("active_tasks", metrics.GroupAsync, metrics.Value(s.active))
		s.sem.Release()
		_ = s.wg.Done()
	})

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", panicText(r)).Msg("scheduled task panic")
			if p.IsPending() {
				_ = p.Reject(codes.ErrGeneric, "task panicked")
			}
		}
	}()
	task(p)
}

// SubmitBatch submits each task in order, stopping at the first failure.
// ps may be nil or shorter than tasks; missing promises are private.
func (s *Scheduler) SubmitBatch(tasks []Task, ps []*Promise) error {
	for i, task := range tasks {
		var p *Promise
		if i < len(ps) {
			p = ps[i]
		}
		if err := s.Submit(task, p); err != nil {
			return err
		}
	}
	return nil
}

// SubmitAndWait submits one task and drives the loop until it settles,
// returning its result. Must not be called from within a loop callback.
func (s *Scheduler) SubmitAndWait(task Task) ([]byte, error) {
	p := NewPromise(s.ctx.Loop())
	if err := s.Submit(task, p); err != nil {
		return nil, err
	}
	if err := p.Await(); err != nil {
		return nil, err
	}
	return p.Result(), nil
}

// SubmitBatchAndWait submits every task and drives the loop until all
// settle. Results are ordered like tasks; the first rejection is returned
// as the error after all tasks finish.
func (s *Scheduler) SubmitBatchAndWait(tasks []Task) ([][]byte, error) {
	ps := make([]*Promise, len(tasks))
	for i := range tasks {
		ps[i] = NewPromise(s.ctx.Loop())
	}
	if err := s.SubmitBatch(tasks, ps); err != nil {
		return nil, err
	}

	var firstErr error
	results := make([][]byte, len(ps))
	for i, p := range ps {
		if err := p.Await(); err != nil && firstErr == nil {
			firstErr = err
		}
		results[i] = p.Result()
	}
	return results, firstErr
}

// WaitAll drives the loop until every submitted task has finished or the
// timeout fires. A zero timeout waits indefinitely. Must not be called
// from within a loop callback.
func (s *Scheduler) WaitAll(timeoutMS int) error {
	lp := s.ctx.Loop()
	var timedOut bool
	var timer *loop.Timer
	if timeoutMS > 0 {
		timer = lp.After(time.Duration(timeoutMS)*time.Millisecond, func() {
			timedOut = true
		})
	}
	lp.RunUntil(func() bool {
		return s.wg.Count() == 0 || timedOut
	})
	timer.Stop()
	if timedOut && s.wg.Count() > 0 {
		return codes.Errorf(codes.ErrWaitTimeout, "%d tasks still outstanding", s.wg.Count())
	}
	return nil
}

// SetConcurrency changes the cap. Raising it wakes queued tasks; lowering
// it only affects permits granted from now on.
func (s *Scheduler) SetConcurrency(n int) error {
	if n < 0 {
		return codes.Errorf(codes.ErrConcurrencyInvalid, "max concurrency %d", n)
	}
	if n == 0 {
		n = _maxConcurrencyCap
	}
	s.sem.Resize(n - s.maxConcurrency)
	s.maxConcurrency = n
	return nil
}

// ActiveCount returns the number of tasks currently running.
func (s *Scheduler) ActiveCount() int { return s.active }

// PendingCount returns the number of tasks queued for a permit.
func (s *Scheduler) PendingCount() int { return s.sem.WaitingCount() }

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() SchedulerStats {
	st := SchedulerStats{
		Submitted:       s.submitted,
		Completed:       s.completed,
		Failed:          s.failed,
		Cancelled:       s.cancelled,
		PeakConcurrency: s.peak,
		TotalWaitMS:     s.totalWaitMS,
	}
	if done := s.completed + s.failed; done > 0 {
		st.AvgTaskDurationMS = float64(s.totalTaskDurMS) / float64(done)
	}
	return st
}

// ResetStats clears the cumulative counters. Active and pending reflect
// live state and are untouched.
func (s *Scheduler) ResetStats() {
	s.submitted = 0
	s.completed = 0
	s.failed = 0
	s.cancelled = 0
	s.peak = 0
	s.totalTaskDurMS = 0
	s.totalWaitMS = 0
}

// Cleanup cancels queued tasks and releases the permit queue.
func (s *Scheduler) Cleanup() {
	s.sem.Cleanup()
}

func panicText(r interface{}) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", r)
}

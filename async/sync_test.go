package async

import (
	"testing"

	"github.com/linchenxuan/uvbus/codes"
	"github.com/linchenxuan/uvbus/loop"
)

// Waiters must be granted strictly in acquisition order.
func TestSemaphoreFIFO(t *testing.T) {
	lp := loop.New()
	sem, err := NewSemaphore(lp, 1)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	var order []int
	acquire := func(id int) *Promise {
		p := NewPromise(lp)
		p.SetCallback(func(*Promise) { order = append(order, id) })
		if err := sem.AcquireAsync(p); err != nil {
			t.Fatalf("acquire %d: %v", id, err)
		}
		return p
	}

	acquire(1) // takes the single permit
	acquire(2)
	acquire(3)
	acquire(4)

	if sem.WaitingCount() != 3 {
		t.Fatalf("waiting %d, want 3", sem.WaitingCount())
	}

	lp.Post(func() { sem.Release() })
	lp.Post(func() { sem.Release() })
	lp.Post(func() { sem.Release() })
	lp.RunUntil(func() bool { return len(order) == 4 })

	for i, id := range order {
		if id != i+1 {
			t.Fatalf("grant order %v, want FIFO", order)
		}
	}
}

func TestSemaphoreTryAcquire(t *testing.T) {
	lp := loop.New()
	sem, _ := NewSemaphore(lp, 1)
	if !sem.TryAcquire() {
		t.Fatal("first try should succeed")
	}
	if sem.TryAcquire() {
		t.Fatal("second try should fail")
	}
	sem.Release()
	if sem.Available() != 1 {
		t.Fatalf("available %d, want 1", sem.Available())
	}
}

func TestSemaphoreCleanupRejectsWaiters(t *testing.T) {
	lp := loop.New()
	sem, _ := NewSemaphore(lp, 0)
	p := NewPromise(lp)
	sem.AcquireAsync(p)

	sem.Cleanup()
	_ = p.Await()
	if p.ErrCode() != codes.ErrCancelled {
		t.Fatalf("waiter code %d, want cancelled", p.ErrCode())
	}
}

func TestSemaphoreNegativePermits(t *testing.T) {
	lp := loop.New()
	if _, err := NewSemaphore(lp, -1); codes.CodeOf(err) != codes.ErrInvalidParam {
		t.Fatalf("got %v", err)
	}
}

func TestWaitGroupZeroTransition(t *testing.T) {
	lp := loop.New()
	wg := NewWaitGroup(lp)
	wg.Add(2)

	p := NewPromise(lp)
	if err := wg.GetPromise(p); err != nil {
		t.Fatalf("get promise: %v", err)
	}

	lp.Post(func() { wg.Done() })
	lp.Post(func() { wg.Done() })
	if err := p.Await(); err != nil {
		t.Fatalf("await: %v", err)
	}
	if wg.Count() != 0 {
		t.Fatalf("count %d", wg.Count())
	}
}

func TestWaitGroupAlreadyZero(t *testing.T) {
	lp := loop.New()
	wg := NewWaitGroup(lp)
	p := NewPromise(lp)
	wg.GetPromise(p)
	if !p.IsFulfilled() {
		t.Fatal("promise on a zero wait-group must resolve at once")
	}
}

func TestWaitGroupNegativeGuard(t *testing.T) {
	lp := loop.New()
	wg := NewWaitGroup(lp)
	if err := wg.Done(); codes.CodeOf(err) != codes.ErrInvalidParam {
		t.Fatalf("got %v", err)
	}
	if wg.Count() != 0 {
		t.Fatalf("count %d after failed done", wg.Count())
	}
}

func TestBarrierFiresOnceWithErrCount(t *testing.T) {
	fired := 0
	gotErrs := -1
	b, err := NewBarrier(3, func(errCount int) {
		fired++
		gotErrs = errCount
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	b.Wait(false)
	b.Wait(true)
	if fired != 0 {
		t.Fatal("fired before all arrivals")
	}
	b.Wait(true)
	if fired != 1 || gotErrs != 2 {
		t.Fatalf("fired %d errs %d", fired, gotErrs)
	}

	if err := b.Wait(false); codes.CodeOf(err) != codes.ErrInvalidState {
		t.Fatalf("extra arrival: got %v", err)
	}
}

func TestBarrierReset(t *testing.T) {
	fired := 0
	b, _ := NewBarrier(2, func(int) { fired++ })
	b.Wait(false)
	b.Wait(false)
	b.Reset()
	if b.Remaining() != 2 || b.ErrCount() != 0 {
		t.Fatalf("reset state: remaining %d errs %d", b.Remaining(), b.ErrCount())
	}
	b.Wait(true)
	b.Wait(false)
	if fired != 2 || b.ErrCount() != 1 {
		t.Fatalf("second cycle: fired %d errs %d", fired, b.ErrCount())
	}
}

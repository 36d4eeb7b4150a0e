package bus

import (
	"testing"

	"github.com/linchenxuan/uvbus/codes"
)

func TestHandlerDispatch(t *testing.T) {
	b := New()
	var got *Request
	if err := b.RegisterHandler("math.add", func(req *Request) { got = req }); err != nil {
		t.Fatalf("register: %v", err)
	}

	req := &Request{Method: "math.add", MsgID: 7, Params: []byte{1, 2}}
	if st := b.DispatchRequest(req); st != codes.OK {
		t.Fatalf("dispatch status %d", st)
	}
	if got == nil || got.MsgID != 7 {
		t.Fatalf("handler not invoked with request: %+v", got)
	}
}

func TestHandlerNotFound(t *testing.T) {
	b := New()
	if st := b.DispatchRequest(&Request{Method: "nope"}); st != codes.ErrNotFound {
		t.Fatalf("status %d, want %d", st, codes.ErrNotFound)
	}
}

func TestHandlerReRegisterOverwrites(t *testing.T) {
	b := New()
	var which int
	b.RegisterHandler("m", func(*Request) { which = 1 })
	b.RegisterHandler("m", func(*Request) { which = 2 })
	b.DispatchRequest(&Request{Method: "m"})
	if which != 2 {
		t.Fatalf("old handler still installed")
	}
	if n := b.Stats().TotalHandlers; n != 1 {
		t.Fatalf("handler count %d, want 1", n)
	}
}

func TestCallbackOneShot(t *testing.T) {
	b := New()
	calls := 0
	if err := b.RegisterCallback(42, func(*Response) { calls++ }); err != nil {
		t.Fatalf("register: %v", err)
	}

	if st := b.DispatchResponse(&Response{MsgID: 42}); st != codes.OK {
		t.Fatalf("first dispatch status %d", st)
	}
	if st := b.DispatchResponse(&Response{MsgID: 42}); st != codes.ErrNotFound {
		t.Fatalf("second dispatch status %d, want not-found", st)
	}
	if calls != 1 {
		t.Fatalf("callback ran %d times", calls)
	}
}

func TestCallbackDuplicateID(t *testing.T) {
	b := New()
	b.RegisterCallback(1, func(*Response) {})
	if err := b.RegisterCallback(1, func(*Response) {}); codes.CodeOf(err) != codes.ErrAlreadyExists {
		t.Fatalf("duplicate id: got %v", err)
	}
}

func TestCallbackZeroIDRejected(t *testing.T) {
	b := New()
	if err := b.RegisterCallback(0, func(*Response) {}); codes.CodeOf(err) != codes.ErrInvalidParam {
		t.Fatalf("zero id: got %v", err)
	}
}

// An exact subscription shadows every wildcard: only the exact subscriber
// fires for its topic, while other topics still reach the wildcards.
func TestSubscriptionExactBeatsWildcard(t *testing.T) {
	b := New()
	var fired []string
	b.Subscribe("sensor.*", func(topic string, _ []byte) { fired = append(fired, "wild:"+topic) })
	b.Subscribe("sensor.temp", func(topic string, _ []byte) { fired = append(fired, "exact:"+topic) })

	if n := b.DispatchMessage("sensor.temp", nil); n != 1 {
		t.Fatalf("exact dispatch notified %d, want 1", n)
	}
	if len(fired) != 1 || fired[0] != "exact:sensor.temp" {
		t.Fatalf("fired = %v", fired)
	}

	fired = nil
	if n := b.DispatchMessage("sensor.humidity", nil); n != 1 {
		t.Fatalf("wildcard dispatch notified %d, want 1", n)
	}
	if len(fired) != 1 || fired[0] != "wild:sensor.humidity" {
		t.Fatalf("fired = %v", fired)
	}
}

// Two subscribers sharing one wildcard pattern both fire on a wildcard
// match, while an exact match still fires only the exact subscriber.
func TestSubscriptionSharedPatternFanOut(t *testing.T) {
	b := New()
	var fired []string
	b.Subscribe("sensor.*", func(topic string, _ []byte) { fired = append(fired, "A") })
	b.Subscribe("sensor.*", func(topic string, _ []byte) { fired = append(fired, "B") })
	b.Subscribe("sensor.temp", func(topic string, _ []byte) { fired = append(fired, "C") })

	if n := b.DispatchMessage("sensor.temp", []byte{1, 2, 3}); n != 1 {
		t.Fatalf("exact dispatch notified %d, want 1", n)
	}
	if len(fired) != 1 || fired[0] != "C" {
		t.Fatalf("fired = %v, want [C]", fired)
	}

	fired = nil
	if n := b.DispatchMessage("sensor.humid", []byte{4}); n != 2 {
		t.Fatalf("wildcard dispatch notified %d, want 2", n)
	}
	if len(fired) != 2 || fired[0] != "A" || fired[1] != "B" {
		t.Fatalf("fired = %v, want [A B] in registration order", fired)
	}
}

func TestSubscriptionMultipleWildcards(t *testing.T) {
	b := New()
	n1, n2 := 0, 0
	b.Subscribe("a.*", func(string, []byte) { n1++ })
	b.Subscribe("a.b.*", func(string, []byte) { n2++ })

	if n := b.DispatchMessage("a.b.c", nil); n != 2 {
		t.Fatalf("notified %d, want 2", n)
	}
	if n1 != 1 || n2 != 1 {
		t.Fatalf("wildcards fired %d/%d", n1, n2)
	}
}

func TestSubscriptionMissIsZero(t *testing.T) {
	b := New()
	if n := b.DispatchMessage("unrouted.topic", nil); n != 0 {
		t.Fatalf("notified %d, want 0", n)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	b.Subscribe("t", func(string, []byte) {})
	if err := b.Unsubscribe("t"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if err := b.Unsubscribe("t"); codes.CodeOf(err) != codes.ErrNotFound {
		t.Fatalf("second unsubscribe: got %v", err)
	}
}

func TestStatsSnapshotAndReset(t *testing.T) {
	b := New()
	b.RegisterHandler("m", func(*Request) {})
	b.RegisterCallback(5, func(*Response) {})
	b.Subscribe("s", func(string, []byte) {})

	b.DispatchRequest(&Request{Method: "m"})
	b.DispatchResponse(&Response{MsgID: 5})
	b.DispatchMessage("s", nil)
	b.DispatchMessage("miss", nil)

	st := b.Stats()
	if st.TotalRouted != 4 {
		t.Errorf("TotalRouted = %d, want 4", st.TotalRouted)
	}
	if st.HandlerHits != 1 || st.CallbackHits != 1 || st.SubscriptionHits != 1 {
		t.Errorf("hits = %d/%d/%d, want 1/1/1", st.HandlerHits, st.CallbackHits, st.SubscriptionHits)
	}
	if st.TotalHandlers != 1 || st.TotalCallbacks != 0 || st.TotalSubscriptions != 1 {
		t.Errorf("sizes = %d/%d/%d", st.TotalHandlers, st.TotalCallbacks, st.TotalSubscriptions)
	}

	b.ResetStats()
	st = b.Stats()
	if st.TotalRouted != 0 || st.HandlerHits != 0 {
		t.Errorf("counters not reset: %+v", st)
	}
	if st.TotalHandlers != 1 {
		t.Errorf("reset must not drop registrations")
	}
}

package sched

import "testing"

func TestOnceFiresAfterDelay(t *testing.T) {
	s := New()
	fired := false
	s.Once(s.Delay(10), func() { fired = true })

	s.Advance(s.Delay(5))
	if fired {
		t.Fatal("fired before delay elapsed")
	}
	s.Advance(s.Delay(5))
	if !fired {
		t.Fatal("did not fire after delay elapsed")
	}
}

func TestCancelPreventsFire(t *testing.T) {
	s := New()
	fired := false
	sub := s.Once(s.Delay(10), func() { fired = true })
	sub.Cancel()

	s.Advance(s.Delay(100))
	if fired {
		t.Fatal("cancelled subscription fired")
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	s := New()
	sub := s.Once(s.Delay(1), func() {})
	sub.Cancel()
	sub.Cancel() // must not panic
}

func TestRepeatFiresUntilCancelled(t *testing.T) {
	s := New()
	count := 0
	var sub *Subscription
	sub = s.Repeat(s.Delay(1), func() {
		count++
		if count == 3 {
			sub.Cancel()
		}
	})

	s.Advance(s.Delay(10))
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}

func TestTieBreakByInsertionOrder(t *testing.T) {
	s := New()
	var order []int
	s.Once(0, func() { order = append(order, 1) })
	s.Once(0, func() { order = append(order, 2) })
	s.Once(0, func() { order = append(order, 3) })

	s.Advance(0)
	want := []int{1, 2, 3}
	for i, v := range want {
		if order[i] != v {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestReentrantScheduleFromCallback(t *testing.T) {
	s := New()
	inner := false
	s.Once(0, func() {
		s.Once(0, func() { inner = true })
	})
	s.Advance(0)
	if !inner {
		t.Fatal("reentrant zero-delay subscription did not fire in the same Advance")
	}
}

func TestDeterministicAcrossIdenticalRuns(t *testing.T) {
	run := func() []int {
		s := New()
		var events []int
		for i := 0; i < 5; i++ {
			i := i
			s.Once(s.Delay(float64(i)), func() { events = append(events, i) })
		}
		s.Advance(s.Delay(10))
		return events
	}

	a := run()
	b := run()
	if len(a) != len(b) {
		t.Fatalf("length mismatch: %v vs %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("mismatch at %d: %v vs %v", i, a, b)
		}
	}
}

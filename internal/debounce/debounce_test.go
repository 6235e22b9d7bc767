package debounce

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
	at    []time.Time
	ch    chan string
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan string, 16)}
}

func (r *recorder) fn(v string) {
	r.mu.Lock()
	r.calls = append(r.calls, v)
	r.at = append(r.at, time.Now())
	r.mu.Unlock()
	r.ch <- v
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// TestDebouncer_CollapsesBurst verifies that N calls inside the window produce
// exactly one execution carrying the last value, roughly delay after the last call.
func TestDebouncer_CollapsesBurst(t *testing.T) {
	const delay = 50 * time.Millisecond
	rec := newRecorder()
	var collapsed atomic.Int32
	d := New(delay, rec.fn)
	d.OnCollapse = func() { collapsed.Add(1) }

	for _, v := range []string{"S", "Se", "Sea", "Seat", "Seattle"} {
		d.Call(v)
		time.Sleep(5 * time.Millisecond)
	}
	last := time.Now()

	select {
	case got := <-rec.ch:
		if got != "Seattle" {
			t.Errorf("executed with %q, want last value Seattle", got)
		}
	case <-time.After(time.Second):
		t.Fatal("debounced call never fired")
	}

	// Wait past another window to catch stray executions.
	time.Sleep(2 * delay)
	if n := rec.count(); n != 1 {
		t.Fatalf("executions = %d, want 1", n)
	}
	rec.mu.Lock()
	elapsed := rec.at[0].Sub(last)
	rec.mu.Unlock()
	if elapsed < delay-10*time.Millisecond {
		t.Errorf("fired %v after last call, want about %v", elapsed, delay)
	}
	if got := collapsed.Load(); got != 4 {
		t.Errorf("collapsed = %d, want 4", got)
	}
	if d.Pending() {
		t.Error("Pending() = true after execution, want false")
	}
}

func TestDebouncer_SeparateWindowsRunSeparately(t *testing.T) {
	const delay = 20 * time.Millisecond
	rec := newRecorder()
	d := New(delay, rec.fn)

	d.Call("a")
	<-rec.ch
	d.Call("b")
	<-rec.ch

	if n := rec.count(); n != 2 {
		t.Errorf("executions = %d, want 2", n)
	}
}

func TestDebouncer_Flush(t *testing.T) {
	rec := newRecorder()
	d := New(time.Hour, rec.fn)

	if d.Flush() {
		t.Error("Flush() with nothing pending = true, want false")
	}

	d.Call("x")
	d.Call("y")
	if !d.Pending() {
		t.Fatal("Pending() = false after Call, want true")
	}
	if !d.Flush() {
		t.Fatal("Flush() = false, want true")
	}
	if n := rec.count(); n != 1 || rec.calls[0] != "y" {
		t.Errorf("calls = %v, want [y]", rec.calls)
	}
	if d.Pending() {
		t.Error("Pending() = true after Flush, want false")
	}
}

func TestDebouncer_Cancel(t *testing.T) {
	const delay = 20 * time.Millisecond
	rec := newRecorder()
	d := New(delay, rec.fn)

	if d.Cancel() {
		t.Error("Cancel() with nothing pending = true, want false")
	}
	d.Call("x")
	if !d.Cancel() {
		t.Fatal("Cancel() = false, want true")
	}

	time.Sleep(3 * delay)
	if n := rec.count(); n != 0 {
		t.Errorf("executions after Cancel = %d, want 0", n)
	}
}

// TestDebouncer_DoesNotWaitForSlowFn verifies that a running execution does
// not block new calls from being scheduled.
func TestDebouncer_DoesNotWaitForSlowFn(t *testing.T) {
	const delay = 10 * time.Millisecond
	release := make(chan struct{})
	started := make(chan string, 4)
	d := New(delay, func(v string) {
		started <- v
		<-release
	})
	defer close(release)

	d.Call("first")
	if got := <-started; got != "first" {
		t.Fatalf("started %q, want first", got)
	}

	d.Call("second")
	select {
	case got := <-started:
		if got != "second" {
			t.Errorf("started %q, want second", got)
		}
	case <-time.After(time.Second):
		t.Fatal("second call blocked behind running first call")
	}
}

func TestDebouncer_Delay(t *testing.T) {
	d := New(500*time.Millisecond, func(int) {})
	if d.Delay() != 500*time.Millisecond {
		t.Errorf("Delay() = %v, want 500ms", d.Delay())
	}
}

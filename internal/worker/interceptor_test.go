package worker

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chokewatch/internal/notify"
	"chokewatch/internal/prefs"
	"chokewatch/internal/push"
	"chokewatch/internal/quiet"

	logtest "github.com/sirupsen/logrus/hooks/test"
)

type shown struct {
	title   string
	options json.RawMessage
}

type fakeDisplay struct {
	mu    sync.Mutex
	calls []shown
	err   error
}

func (f *fakeDisplay) ShowNotification(ctx context.Context, title string, options json.RawMessage) (notify.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, shown{title: title, options: options})
	if f.err != nil {
		return nil, f.err
	}
	return nopHandle{}, nil
}

func (f *fakeDisplay) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type nopHandle struct{}

func (nopHandle) Close() error { return nil }

type fakePrefs struct {
	w     quiet.Window
	ok    bool
	block bool
	hold  chan struct{}
	reads atomic.Int32
}

func (f *fakePrefs) Get(ctx context.Context) (quiet.Window, bool) {
	f.reads.Add(1)
	if f.hold != nil {
		<-f.hold
		return quiet.Window{}, false
	}
	if f.block {
		<-ctx.Done()
		return quiet.Window{}, false
	}
	return f.w, f.ok
}

func at(hour int) func() time.Time {
	return func() time.Time {
		return time.Date(2024, 3, 14, hour, 30, 0, 0, time.Local)
	}
}

func dispatch(t *testing.T, i *Interceptor, display push.Display, n *push.Notification) *push.Event {
	t.Helper()
	d := push.NewDispatcher(i, display, nil, nil)
	ev := push.NewEvent(n)
	if err := d.Dispatch(context.Background(), ev); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	return ev
}

func TestInterceptorScenarios(t *testing.T) {
	tests := []struct {
		name     string
		window   quiet.Window
		stored   bool
		hour     int
		wantShow bool
	}{
		{"overnight inside", quiet.Window{Start: 22, End: 7}, true, 23, false},
		{"overnight outside", quiet.Window{Start: 22, End: 7}, true, 12, true},
		{"daytime lower bound", quiet.Window{Start: 9, End: 18}, true, 9, false},
		{"daytime upper bound", quiet.Window{Start: 9, End: 18}, true, 18, true},
		{"nothing stored", quiet.Window{}, false, 3, true},
		{"equal bounds", quiet.Window{Start: 5, End: 5}, true, 14, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			display := &fakeDisplay{}
			prefs := &fakePrefs{w: tt.window, ok: tt.stored}
			i := NewInterceptor(prefs, display, WithClock(at(tt.hour)))

			ev := dispatch(t, i, display, &push.Notification{Title: "Chokepoint alert"})

			if !ev.DefaultPrevented() {
				t.Error("default display was not prevented")
			}
			if got := display.count() == 1; got != tt.wantShow {
				t.Errorf("shown = %v, want %v (%d calls)", got, tt.wantShow, display.count())
			}
			if prefs.reads.Load() != 1 {
				t.Errorf("reads = %d, want 1", prefs.reads.Load())
			}
		})
	}
}

func TestInterceptorPassesPayloadThrough(t *testing.T) {
	display := &fakeDisplay{}
	i := NewInterceptor(&fakePrefs{}, display)

	opts := json.RawMessage(`{"body":"Suez: heavy","data":{"url":"/suez"},"vibrate":[100]}`)
	dispatch(t, i, display, &push.Notification{Title: "Suez Canal", Options: opts})

	if display.count() != 1 {
		t.Fatalf("calls = %d, want 1", display.count())
	}
	got := display.calls[0]
	if got.title != "Suez Canal" {
		t.Errorf("title = %q", got.title)
	}
	if string(got.options) != string(opts) {
		t.Errorf("options = %s, want %s", got.options, opts)
	}
}

func TestInterceptorMissingNotification(t *testing.T) {
	display := &fakeDisplay{}
	prefs := &fakePrefs{w: quiet.Window{Start: 0, End: 23}, ok: true}
	i := NewInterceptor(prefs, display)

	ev := dispatch(t, i, display, nil)

	if !ev.DefaultPrevented() {
		t.Error("default display was not prevented")
	}
	if prefs.reads.Load() != 0 {
		t.Errorf("store read %d times", prefs.reads.Load())
	}
	if display.count() != 0 {
		t.Errorf("display called %d times", display.count())
	}
	if c := i.Counts(); c.Ignored != 1 || c.Shown != 0 || c.Suppressed != 0 {
		t.Errorf("counts = %+v", c)
	}
}

func TestInterceptorLookupTimeoutShows(t *testing.T) {
	display := &fakeDisplay{}
	prefs := &fakePrefs{block: true}
	i := NewInterceptor(prefs, display,
		WithLookupTimeout(20*time.Millisecond),
		WithClock(at(23)),
	)

	start := time.Now()
	dispatch(t, i, display, &push.Notification{Title: "late"})

	if display.count() != 1 {
		t.Errorf("display calls = %d, want 1", display.count())
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("dispatch took %v", elapsed)
	}
}

func TestInterceptorDisplayErrorSurfaces(t *testing.T) {
	boom := errors.New("no display")
	display := &fakeDisplay{err: boom}
	i := NewInterceptor(&fakePrefs{}, display)

	d := push.NewDispatcher(i, display, nil, nil)
	err := d.Dispatch(context.Background(), push.NewEvent(&push.Notification{Title: "x"}))
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	if d.Stats().AutoDisplayed != 0 {
		t.Error("dispatcher fell back to its own display")
	}
}

func TestInterceptorCounts(t *testing.T) {
	display := &fakeDisplay{}
	prefs := &fakePrefs{w: quiet.Window{Start: 22, End: 7}, ok: true}
	hour := 23
	i := NewInterceptor(prefs, display, WithClock(func() time.Time { return at(hour)() }))

	dispatch(t, i, display, &push.Notification{Title: "a"})
	hour = 12
	dispatch(t, i, display, &push.Notification{Title: "b"})
	dispatch(t, i, display, nil)

	want := Counts{Shown: 1, Suppressed: 1, Ignored: 1}
	if got := i.Counts(); got != want {
		t.Errorf("counts = %+v, want %+v", got, want)
	}
}

func TestDecisionString(t *testing.T) {
	for d, want := range map[Decision]string{
		DecisionShow:     "show",
		DecisionSuppress: "suppress",
		DecisionIgnore:   "ignore",
		Decision(9):      "Decision(9)",
	} {
		if got := d.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(d), got, want)
		}
	}
}

func TestInterceptorUnsetShowsAtEveryHour(t *testing.T) {
	for hour := 0; hour < quiet.HoursPerDay; hour++ {
		display := &fakeDisplay{}
		i := NewInterceptor(&fakePrefs{}, display, WithClock(at(hour)))

		dispatch(t, i, display, &push.Notification{Title: "alert"})

		if display.count() != 1 {
			t.Errorf("hour %d: display calls = %d, want 1", hour, display.count())
		}
	}
}

func TestInterceptorReadsWhatSettingsWrote(t *testing.T) {
	path := prefs.Path(filepath.Join(t.TempDir(), "data"))
	ctx := context.Background()

	reader := prefs.New(path, prefs.RoleReadOnly)
	defer reader.Close()

	tests := []struct {
		name     string
		window   *quiet.Window
		hour     int
		wantShow bool
	}{
		{"before anything is saved", nil, 23, true},
		{"inside saved window", &quiet.Window{Start: 22, End: 7}, 23, false},
		{"outside saved window", &quiet.Window{Start: 22, End: 7}, 8, true},
		{"after window changed", &quiet.Window{Start: 8, End: 9}, 8, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.window != nil {
				owner := prefs.New(path, prefs.RoleOwner)
				if err := owner.Put(ctx, *tt.window); err != nil {
					t.Fatalf("Put: %v", err)
				}
				if err := owner.Close(); err != nil {
					t.Fatal(err)
				}
			}

			display := &fakeDisplay{}
			i := NewInterceptor(reader, display, WithClock(at(tt.hour)))
			dispatch(t, i, display, &push.Notification{Title: "Strait of Hormuz"})

			if got := display.count() == 1; got != tt.wantShow {
				t.Errorf("shown = %v, want %v", got, tt.wantShow)
			}
		})
	}
}

func holdingPrefs(t *testing.T) *fakePrefs {
	hold := make(chan struct{})
	t.Cleanup(func() { close(hold) })
	return &fakePrefs{hold: hold}
}

func TestInterceptorLookupLogsTimeoutAndCancel(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		logger, hook := logtest.NewNullLogger()
		display := &fakeDisplay{}
		i := NewInterceptor(holdingPrefs(t), display,
			WithLookupTimeout(10*time.Millisecond),
			WithLogger(logger),
		)

		ev := push.NewEvent(&push.Notification{Title: "x"})
		if d, _ := i.Decide(context.Background(), ev); d != DecisionShow {
			t.Errorf("decision = %s, want show", d)
		}
		if !hasMessage(hook, "timed out") || hasMessage(hook, "cancelled") {
			t.Errorf("log = %v", messages(hook))
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		logger, hook := logtest.NewNullLogger()
		display := &fakeDisplay{}
		i := NewInterceptor(holdingPrefs(t), display,
			WithLookupTimeout(time.Minute),
			WithLogger(logger),
		)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		ev := push.NewEvent(&push.Notification{Title: "x"})
		if d, _ := i.Decide(ctx, ev); d != DecisionShow {
			t.Errorf("decision = %s, want show", d)
		}
		if !hasMessage(hook, "cancelled") || hasMessage(hook, "timed out") {
			t.Errorf("log = %v", messages(hook))
		}
	})
}

func messages(hook *logtest.Hook) []string {
	var out []string
	for _, e := range hook.AllEntries() {
		out = append(out, e.Message)
	}
	return out
}

func hasMessage(hook *logtest.Hook, substr string) bool {
	for _, m := range messages(hook) {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kjstillabower/weather-fetcher/internal/cache"
	"github.com/kjstillabower/weather-fetcher/internal/engine"
	"github.com/kjstillabower/weather-fetcher/internal/models"
	"github.com/kjstillabower/weather-fetcher/internal/state"
)

const londonJSON = `{"name":"London","sys":{"country":"GB"},"main":{"temp":11.2,"humidity":81},"weather":[{"description":"light rain"}],"wind":{"speed":4.1}}`

type fakeEngine struct {
	mu           sync.Mutex
	location     string
	setCalls     []string
	flushes      int
	pending      bool
	refreshErr   error
	refreshCalls int
	clearErr     error
	clearCalls   int
	unsubscribed bool
	updates      chan state.FetchState
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{updates: make(chan state.FetchState, 1)}
}

func (f *fakeEngine) SetLocation(location string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls = append(f.setCalls, location)
	f.location = location
	f.pending = true
	return nil
}

func (f *fakeEngine) FlushPending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	was := f.pending
	f.pending = false
	return was
}

func (f *fakeEngine) Refresh(ctx context.Context) (models.WeatherRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	return nil, f.refreshErr
}

func (f *fakeEngine) ClearCache(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearCalls++
	return f.clearErr
}

func (f *fakeEngine) Subscribe() (<-chan state.FetchState, func()) {
	return f.updates, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unsubscribed = true
	}
}

func (f *fakeEngine) State() state.FetchState { return state.FetchState{} }

func (f *fakeEngine) Location() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.location
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	for _, r := range text {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(Model)
	}
	return m
}

func press(m Model, kt tea.KeyType) (Model, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: kt})
	return next.(Model), cmd
}

func TestModel_TypingFeedsSetLocation(t *testing.T) {
	fe := newFakeEngine()
	m := typeText(t, New(Options{Engine: fe}), "Oslo")

	want := []string{"O", "Os", "Osl", "Oslo"}
	if strings.Join(fe.setCalls, "|") != strings.Join(want, "|") {
		t.Fatalf("SetLocation calls = %v, want %v", fe.setCalls, want)
	}
	if m.hint != "" {
		t.Errorf("hint = %q, want empty", m.hint)
	}
}

func TestModel_InvalidInputShowsHint(t *testing.T) {
	fe := newFakeEngine()
	m := typeText(t, New(Options{Engine: fe}), "Oslo<")

	if m.hint == "" {
		t.Fatal("hint empty for invalid characters")
	}
	if !strings.Contains(m.View(), m.hint) {
		t.Errorf("View() missing hint %q", m.hint)
	}
}

func TestModel_EnterFlushesPending(t *testing.T) {
	fe := newFakeEngine()
	m := typeText(t, New(Options{Engine: fe}), "Rome")

	m, cmd := press(m, tea.KeyEnter)
	if cmd == nil {
		t.Fatal("enter returned nil command")
	}
	if fe.flushes != 0 {
		t.Fatal("FlushPending ran inside Update")
	}
	cmd()

	if fe.flushes != 1 {
		t.Errorf("FlushPending calls = %d, want 1", fe.flushes)
	}
	if len(fe.setCalls) != 4 {
		t.Errorf("SetLocation calls = %d, want 4", len(fe.setCalls))
	}
}

// blockingClient holds every call until release is closed.
type blockingClient struct {
	started chan string
	release chan struct{}
}

func (b *blockingClient) GetCurrentWeather(ctx context.Context, location string) (models.WeatherRecord, error) {
	b.started <- location
	select {
	case <-b.release:
		return models.WeatherRecord(londonJSON), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestModel_EnterDoesNotBlockOnProvider(t *testing.T) {
	bc := &blockingClient{started: make(chan string, 1), release: make(chan struct{})}
	eng := engine.New(bc, cache.NewInMemoryStore(), engine.WithDebounceDelay(time.Hour))
	defer eng.Close()

	m := typeText(t, New(Options{Engine: eng}), "Paris")

	type update struct {
		m   Model
		cmd tea.Cmd
	}
	done := make(chan update, 1)
	go func() {
		next, cmd := press(m, tea.KeyEnter)
		done <- update{next, cmd}
	}()
	var u update
	select {
	case u = <-done:
	case <-time.After(500 * time.Millisecond):
		close(bc.release)
		t.Fatal("Update(Enter) blocked waiting on the provider")
	}
	if u.cmd == nil {
		t.Fatal("enter returned nil command")
	}

	flushed := make(chan struct{})
	go func() {
		u.cmd()
		close(flushed)
	}()
	select {
	case loc := <-bc.started:
		if loc != "Paris" {
			t.Errorf("provider called with %q, want Paris", loc)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("flush command did not reach the provider")
	}
	if !eng.State().Loading {
		t.Error("state not loading while the provider call is open")
	}

	close(bc.release)
	select {
	case <-flushed:
	case <-time.After(2 * time.Second):
		t.Fatal("flush command did not return after the provider answered")
	}
	if got := eng.State(); got.Loading || len(got.Data) == 0 {
		t.Errorf("state after flush = %+v, want data loaded", got)
	}
}

func TestModel_RefreshRunsAsCommand(t *testing.T) {
	fe := newFakeEngine()
	m := New(Options{Engine: fe})

	m, cmd := press(m, tea.KeyCtrlR)
	if cmd == nil {
		t.Fatal("ctrl+r returned nil command")
	}
	if fe.refreshCalls != 0 {
		t.Fatal("Refresh ran before the command executed")
	}
	msg := cmd()
	if fe.refreshCalls != 1 {
		t.Errorf("Refresh calls = %d, want 1", fe.refreshCalls)
	}
	next, _ := m.Update(msg)
	if got := next.(Model).status; got != "" {
		t.Errorf("status = %q, want empty on success", got)
	}
}

func TestModel_ActionStatus(t *testing.T) {
	tests := []struct {
		name string
		msg  actionMsg
		want string
	}{
		{"cleared", actionMsg{action: "clear"}, "Cache cleared"},
		{"clear failed", actionMsg{action: "clear", err: errors.New("dial tcp: refused")}, "Could not clear cache"},
		{"refresh failure", actionMsg{action: "refresh", err: errors.New("fetch weather for oslo: server error")}, ""},
		{"superseded", actionMsg{action: "refresh", err: engine.ErrSuperseded}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(Options{Engine: newFakeEngine()})
			next, _ := m.Update(tt.msg)
			if got := next.(Model).status; got != tt.want {
				t.Errorf("status = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestModel_ClearCache(t *testing.T) {
	fe := newFakeEngine()
	m, cmd := press(New(Options{Engine: fe}), tea.KeyCtrlL)
	if cmd == nil {
		t.Fatal("ctrl+l returned nil command")
	}
	next, _ := m.Update(cmd())
	if fe.clearCalls != 1 {
		t.Errorf("ClearCache calls = %d, want 1", fe.clearCalls)
	}
	if !strings.Contains(next.View(), "Cache cleared") {
		t.Error("View() missing cache cleared status")
	}
}

func TestModel_QuitUnsubscribes(t *testing.T) {
	fe := newFakeEngine()
	_, cmd := press(New(Options{Engine: fe}), tea.KeyEsc)
	if cmd == nil {
		t.Fatal("esc returned nil command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("esc command is not tea.Quit")
	}
	if !fe.unsubscribed {
		t.Error("quit did not unsubscribe")
	}
}

func TestModel_RendersState(t *testing.T) {
	record := models.WeatherRecord(londonJSON)
	tests := []struct {
		name  string
		state state.FetchState
		want  []string
		not   []string
	}{
		{"idle", state.FetchState{}, []string{"Type a location"}, nil},
		{"loading", state.FetchState{Loading: true, Data: record}, []string{"Loading..."}, []string{"London"}},
		{"success", state.FetchState{Data: record}, []string{"London, GB", "11.2°C", "light rain", "81%", "4.1 m/s"}, nil},
		{"error keeps data", state.FetchState{Data: record, Error: "Server error"}, []string{"Error: Server error", "London, GB"}, nil},
		{"fallback", state.FetchState{Data: record, Fallback: true}, []string{"trouble reaching the weather service"}, []string{"Error:"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := newFakeEngine()
			m := New(Options{Engine: fe})
			next, cmd := m.Update(stateMsg(tt.state))
			if cmd == nil {
				t.Error("state update did not re-arm the subscription")
			}
			view := next.View()
			for _, w := range tt.want {
				if !strings.Contains(view, w) {
					t.Errorf("View() missing %q:\n%s", w, view)
				}
			}
			for _, n := range tt.not {
				if strings.Contains(view, n) {
					t.Errorf("View() contains %q:\n%s", n, view)
				}
			}
		})
	}
}

func TestWaitForState(t *testing.T) {
	ch := make(chan state.FetchState, 1)
	ch <- state.FetchState{Loading: true}
	if msg, ok := waitForState(ch)().(stateMsg); !ok || !msg.Loading {
		t.Errorf("waitForState() = %v, want loading stateMsg", msg)
	}
	close(ch)
	if msg := waitForState(ch)(); msg != nil {
		t.Errorf("waitForState() on closed channel = %v, want nil", msg)
	}
}

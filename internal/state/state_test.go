package state

import (
	"testing"

	"github.com/kjstillabower/weather-fetcher/internal/models"
)

var (
	oldData = models.WeatherRecord(`{"name":"Old"}`)
	newData = models.WeatherRecord(`{"name":"New"}`)
)

func sameState(a, b FetchState) bool {
	return string(a.Data) == string(b.Data) && a.Loading == b.Loading && a.Error == b.Error && a.Fallback == b.Fallback
}

// TestReduce_Transitions checks every event kind from a spread of starting states.
func TestReduce_Transitions(t *testing.T) {
	starts := map[string]FetchState{
		"idle":     {},
		"loading":  {Loading: true},
		"success":  {Data: oldData},
		"failed":   {Data: oldData, Error: "Location not found"},
		"fallback": {Data: oldData, Fallback: true},
	}

	for name, s := range starts {
		t.Run(name+"/start", func(t *testing.T) {
			got := Reduce(s, FetchStart())
			want := FetchState{Data: s.Data, Loading: true}
			if !sameState(got, want) {
				t.Errorf("Reduce(FETCH_START) = %+v, want %+v", got, want)
			}
		})
		t.Run(name+"/success", func(t *testing.T) {
			got := Reduce(s, FetchSuccess(newData))
			want := FetchState{Data: newData}
			if !sameState(got, want) {
				t.Errorf("Reduce(FETCH_SUCCESS) = %+v, want %+v", got, want)
			}
		})
		t.Run(name+"/error", func(t *testing.T) {
			got := Reduce(s, FetchError("Server error"))
			want := FetchState{Data: s.Data, Error: "Server error", Fallback: s.Fallback}
			if !sameState(got, want) {
				t.Errorf("Reduce(FETCH_ERROR) = %+v, want %+v", got, want)
			}
		})
		t.Run(name+"/fallback", func(t *testing.T) {
			got := Reduce(s, FetchFallback())
			want := FetchState{Data: s.Data, Fallback: true}
			if !sameState(got, want) {
				t.Errorf("Reduce(FETCH_FALLBACK) = %+v, want %+v", got, want)
			}
		})
		t.Run(name+"/unknown", func(t *testing.T) {
			for _, e := range []Event{{}, {Kind: EventKind(99), Message: "x"}} {
				if got := Reduce(s, e); !sameState(got, s) {
					t.Errorf("Reduce(unknown %v) = %+v, want unchanged %+v", e.Kind, got, s)
				}
			}
		})
	}
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	s := FetchState{Data: oldData, Error: "x"}
	_ = Reduce(s, FetchSuccess(newData))
	if s.Error != "x" || string(s.Data) != string(oldData) {
		t.Errorf("input mutated: %+v", s)
	}
}

func TestFetchState_Phase(t *testing.T) {
	tests := []struct {
		name string
		s    FetchState
		want Phase
	}{
		{"idle", FetchState{}, PhaseIdle},
		{"loading", FetchState{Loading: true, Data: oldData}, PhaseLoading},
		{"success", FetchState{Data: oldData}, PhaseSuccess},
		{"failed with stale data", FetchState{Data: oldData, Error: "e"}, PhaseFailed},
		{"fallback", FetchState{Fallback: true}, PhaseFallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.Phase(); got != tt.want {
				t.Errorf("Phase() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEventKind_String(t *testing.T) {
	tests := map[EventKind]string{
		KindFetchStart:    "FETCH_START",
		KindFetchSuccess:  "FETCH_SUCCESS",
		KindFetchError:    "FETCH_ERROR",
		KindFetchFallback: "FETCH_FALLBACK",
		EventKind(0):      "UNKNOWN",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("EventKind(%d).String() = %q, want %q", int(k), got, want)
		}
	}
	if PhaseFallback.String() != "fallback" || Phase(42).String() != "unknown" {
		t.Error("Phase.String() mismatch")
	}
}

// Package state holds the externally observable fetch state and the pure
// reducer that is its only mutator.
package state

import "github.com/kjstillabower/weather-fetcher/internal/models"

// FetchState is what consumers render.
type FetchState struct {
	Data     models.WeatherRecord `json:"data"`
	Loading  bool                 `json:"loading"`
	Error    string               `json:"error,omitempty"`
	Fallback bool                 `json:"fallback"`
}

// Phase is the engine state-machine position derived from a FetchState.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseSuccess
	PhaseFailed
	PhaseFallback
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseSuccess:
		return "success"
	case PhaseFailed:
		return "failed"
	case PhaseFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Phase derives the state-machine position. An error outranks stale data.
func (s FetchState) Phase() Phase {
	switch {
	case s.Loading:
		return PhaseLoading
	case s.Fallback:
		return PhaseFallback
	case s.Error != "":
		return PhaseFailed
	case len(s.Data) > 0:
		return PhaseSuccess
	default:
		return PhaseIdle
	}
}

// EventKind names a state transition.
type EventKind int

const (
	KindFetchStart EventKind = iota + 1
	KindFetchSuccess
	KindFetchError
	KindFetchFallback
)

func (k EventKind) String() string {
	switch k {
	case KindFetchStart:
		return "FETCH_START"
	case KindFetchSuccess:
		return "FETCH_SUCCESS"
	case KindFetchError:
		return "FETCH_ERROR"
	case KindFetchFallback:
		return "FETCH_FALLBACK"
	default:
		return "UNKNOWN"
	}
}

// Event drives one transition. Payload is set for FETCH_SUCCESS, Message for FETCH_ERROR.
type Event struct {
	Kind    EventKind
	Payload models.WeatherRecord
	Message string
}

// FetchStart returns a FETCH_START event.
func FetchStart() Event { return Event{Kind: KindFetchStart} }

// FetchSuccess returns a FETCH_SUCCESS event carrying payload.
func FetchSuccess(payload models.WeatherRecord) Event {
	return Event{Kind: KindFetchSuccess, Payload: payload}
}

// FetchError returns a FETCH_ERROR event carrying a user-visible message.
func FetchError(message string) Event {
	return Event{Kind: KindFetchError, Message: message}
}

// FetchFallback returns a FETCH_FALLBACK event.
func FetchFallback() Event { return Event{Kind: KindFetchFallback} }

// Reduce applies e to s and returns the new state. It is pure and total;
// unknown event kinds return s unchanged.
func Reduce(s FetchState, e Event) FetchState {
	switch e.Kind {
	case KindFetchStart:
		s.Loading = true
		s.Error = ""
		s.Fallback = false
	case KindFetchSuccess:
		s.Loading = false
		s.Error = ""
		s.Fallback = false
		s.Data = e.Payload
	case KindFetchError:
		s.Loading = false
		s.Error = e.Message
	case KindFetchFallback:
		s.Loading = false
		s.Error = ""
		s.Fallback = true
	}
	return s
}

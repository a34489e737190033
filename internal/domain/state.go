package domain

// State is the pipeline lifecycle state.
type State string

const (
	StateIdle        State = "idle"
	StateNormalizing State = "normalizing"
	StateUploading   State = "uploading"
	StateGenerating  State = "generating"
	StateSucceeded   State = "succeeded"
	StateFailed      State = "failed"
)

// Running reports whether a run is in flight.
func (s State) Running() bool {
	switch s {
	case StateNormalizing, StateUploading, StateGenerating:
		return true
	default:
		return false
	}
}

// Terminal reports whether a run has finished.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Result is the outcome of a run: exactly one of Success or Failure is set.
type Result struct {
	Success *Success `json:"success,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}

// Success carries the generated poster location.
type Success struct {
	PosterURL string `json:"poster_url"`
}

// Failure carries a classified, user-displayable message.
type Failure struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Remote  bool      `json:"remote,omitempty"`
}

// Succeeded builds a success result.
func Succeeded(url string) Result {
	return Result{Success: &Success{PosterURL: url}}
}

// Failed builds a failure result from a classified error. Unclassified errors
// are treated as transport failures.
func Failed(err error) Result {
	if de, ok := AsError(err); ok {
		return Result{Failure: &Failure{Kind: de.Kind, Message: de.Message, Remote: de.Remote}}
	}
	return Result{Failure: &Failure{Kind: KindTransport, Message: "request failed"}}
}

// OK reports whether the result is a success.
func (r Result) OK() bool { return r.Success != nil }

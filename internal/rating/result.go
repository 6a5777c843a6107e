package rating

// Result is what the rating site knows about a title.
type Result struct {
	Title       string
	Rating      float64
	Genre       string
	AvailableOn []string
	DetailURL   string
}

// State is where a lookup ended up.
//
//	Searching -> Resolving -> Fetched | NotFound
//	any       -> Failed (the run was cancelled)
type State int

const (
	StateSearching State = iota
	StateResolving
	StateFetched
	StateNotFound
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSearching:
		return "searching"
	case StateResolving:
		return "resolving"
	case StateFetched:
		return "fetched"
	case StateNotFound:
		return "not_found"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Lookup is the outcome of one Search call.
type Lookup struct {
	State State
	// Result is set only in StateFetched.
	Result *Result
	// Attempts counts search requests, not detail page requests.
	Attempts int
	// Err explains NotFound and Failed outcomes. It is informational: a
	// NotFound lookup is a normal result, not an error to propagate.
	Err error
}

func (l Lookup) Found() bool {
	return l.State == StateFetched && l.Result != nil
}

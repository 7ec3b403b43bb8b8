package document

// State is the lifecycle phase of the managed store.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// terminal reports whether the open sequence has finished.
func (s State) terminal() bool {
	return s == StateOpen || s == StateFailed
}

// Result is delivered to every completion handler.
type Result struct {
	State State
	Err   error // nil iff the store opened
}

// OK reports whether the store is open.
func (r Result) OK() bool {
	return r.Err == nil && r.State == StateOpen
}

package session

import "fmt"

// State is the lifecycle state of a Session.
type State int

const (
	Uninitialized State = iota
	Binding
	Subscribed
	Failed
	Disposed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Binding:
		return "binding"
	case Subscribed:
		return "subscribed"
	case Failed:
		return "failed"
	case Disposed:
		return "disposed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// canBind reports whether Bind may start from s. Failed allows a caller-driven retry.
func (s State) canBind() bool {
	return s == Uninitialized || s == Failed
}

package medium

// State is the lifecycle stage of a radio's engine.
type State int32

const (
	Initializing State = iota
	Running
	Terminating
	Stopped
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Terminating:
		return "terminating"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

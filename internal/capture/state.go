package capture

// State is the capture loop lifecycle position.
type State int32

const (
	Idle State = iota
	Joining
	Active
	Stopping
	Stopped
)

var stateNames = map[State]string{
	Idle:     "idle",
	Joining:  "joining",
	Active:   "active",
	Stopping: "stopping",
	Stopped:  "stopped",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

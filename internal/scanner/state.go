package scanner

// State is the pipeline stage a scan is in.
type State int

const (
	Idle State = iota
	Sampling
	Extracting
	Matching
	Accumulating
	Finalize
	Done
)

var stateNames = [...]string{"idle", "sampling", "extracting", "matching", "accumulating", "finalize", "done"}

func (s State) String() string {
	if s < Idle || s > Done {
		return "unknown"
	}
	return stateNames[s]
}

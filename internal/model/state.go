package model

import "fmt"

// State is the lifecycle stage of data collection the application has
// reached. States are strictly ordered: each setter on Model requires a
// minimum state and advancing never skips the data a later stage needs.
type State int

const (
	Started State = iota
	KeySet
	StartSnapshotSet
	EndSnapshotSet
	ReportSet
)

func (s State) String() string {
	switch s {
	case Started:
		return "started"
	case KeySet:
		return "key set"
	case StartSnapshotSet:
		return "start snapshot set"
	case EndSnapshotSet:
		return "end snapshot set"
	case ReportSet:
		return "report set"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

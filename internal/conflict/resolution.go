package conflict

import "fmt"

// Resolution is the user's decision for a raised conflict: one of
// Overwrite, Merge or Cancel
type Resolution interface {
	resolution()
	String() string
}

// Overwrite resubmits the local changes with a fresh version stamp
type Overwrite struct{}

// Merge lays the local changes over the latest server copy and keeps the
// server's version stamp
type Merge struct{}

// Cancel drops the local changes and reloads the server copy
type Cancel struct{}

func (Overwrite) resolution() {}
func (Merge) resolution()     {}
func (Cancel) resolution()    {}

func (Overwrite) String() string { return "overwrite" }
func (Merge) String() string     { return "merge" }
func (Cancel) String() string    { return "cancel" }

// ParseResolution maps the action names used by the console UI
func ParseResolution(action string) (Resolution, error) {
	switch action {
	case "overwrite":
		return Overwrite{}, nil
	case "merge":
		return Merge{}, nil
	case "cancel":
		return Cancel{}, nil
	default:
		return nil, fmt.Errorf("unknown conflict resolution %q", action)
	}
}

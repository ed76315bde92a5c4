package session

import (
	"fmt"
	"strings"
)

// State is the session gate state.
type State int

const (
	// Idle waits for a start command.
	Idle State = iota
	// Exercising is entered on start and left on stop.
	Exercising
	// Finished follows a stop; a new start resumes Exercising.
	Finished
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Exercising:
		return "exercising"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ExerciseType identifies the exercise being captured. It is metadata only;
// capture logic never branches on it.
type ExerciseType int

const (
	// ShoulderMobility is the shoulder range-of-motion test.
	ShoulderMobility ExerciseType = iota
	// Lunge is the lunge test.
	Lunge
)

// Key returns the stable identifier used in config files and storage.
func (e ExerciseType) Key() string {
	switch e {
	case ShoulderMobility:
		return "shoulder_mobility"
	case Lunge:
		return "lunge"
	default:
		return fmt.Sprintf("exercise_%d", int(e))
	}
}

// String returns a human-readable exercise name.
func (e ExerciseType) String() string {
	switch e {
	case ShoulderMobility:
		return "Shoulder mobility"
	case Lunge:
		return "Lunge"
	default:
		return e.Key()
	}
}

// ParseExerciseType accepts a Key value or one of its short aliases.
func ParseExerciseType(s string) (ExerciseType, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	switch norm {
	case "shoulder_mobility", "shoulder", "shoulders":
		return ShoulderMobility, nil
	case "lunge", "lunges":
		return Lunge, nil
	default:
		return 0, fmt.Errorf("unknown exercise %q: expected shoulder_mobility or lunge", s)
	}
}

package session

import (
	"strings"
	"sync"
)

// TransitionFunc observes a state change caused by a command or a reset.
// command is empty for resets.
type TransitionFunc func(from, to State, command string)

// StateMachine gates an exercise session. It is safe for concurrent use: the
// command source updates it while the capture loop queries it.
type StateMachine struct {
	mu       sync.Mutex
	state    State
	exercise ExerciseType
	observer TransitionFunc
}

// NewStateMachine returns a StateMachine in Idle for the given exercise.
func NewStateMachine(exercise ExerciseType) *StateMachine {
	return &StateMachine{state: Idle, exercise: exercise}
}

// OnTransition installs fn to be called after every state change. The
// callback runs with the machine unlocked.
func (m *StateMachine) OnTransition(fn TransitionFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = fn
}

// next is the transition table. Only the substring relevant to the current
// state is examined.
func next(current State, command string) State {
	switch current {
	case Idle:
		if strings.Contains(command, "start") {
			return Exercising
		}
	case Exercising:
		if strings.Contains(command, "stop") {
			return Finished
		}
	case Finished:
		if strings.Contains(command, "start") {
			return Exercising
		}
	}
	return current
}

// Update applies a free-form command. Empty commands are ignored.
func (m *StateMachine) Update(command string) {
	if command == "" {
		return
	}
	lowered := strings.ToLower(command)

	m.mu.Lock()
	from := m.state
	to := next(from, lowered)
	m.state = to
	observer := m.observer
	m.mu.Unlock()

	if observer != nil && from != to {
		observer(from, to, command)
	}
}

// Reset forces the machine back to Idle regardless of the current state.
func (m *StateMachine) Reset() {
	m.mu.Lock()
	from := m.state
	m.state = Idle
	observer := m.observer
	m.mu.Unlock()

	if observer != nil && from != Idle {
		observer(from, Idle, "")
	}
}

// State returns the current state.
func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsIdle reports whether the machine is in Idle.
func (m *StateMachine) IsIdle() bool { return m.State() == Idle }

// IsExercising reports whether the machine is in Exercising.
func (m *StateMachine) IsExercising() bool { return m.State() == Exercising }

// IsFinished reports whether the machine is in Finished.
func (m *StateMachine) IsFinished() bool { return m.State() == Finished }

// Exercise returns the exercise type fixed at construction.
func (m *StateMachine) Exercise() ExerciseType { return m.exercise }

// IsShoulderTest reports whether the session captures ShoulderMobility.
func (m *StateMachine) IsShoulderTest() bool { return m.exercise == ShoulderMobility }

// IsLungeTest reports whether the session captures Lunge.
func (m *StateMachine) IsLungeTest() bool { return m.exercise == Lunge }

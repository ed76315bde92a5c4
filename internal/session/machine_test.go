package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func machineIn(t *testing.T, s State) *StateMachine {
	t.Helper()
	m := NewStateMachine(ShoulderMobility)
	switch s {
	case Exercising:
		m.Update("start")
	case Finished:
		m.Update("start")
		m.Update("stop")
	}
	require.Equal(t, s, m.State())
	return m
}

func TestStateMachine_TransitionTable(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		command string
		want    State
	}{
		{"idle start", Idle, "start", Exercising},
		{"idle uppercase start", Idle, "START now", Exercising},
		{"idle stop ignored", Idle, "stop", Idle},
		{"idle unrelated", Idle, "hello", Idle},
		{"idle restart is a start", Idle, "restart", Exercising},
		{"idle both substrings", Idle, "stop then start", Exercising},

		{"exercising stop", Exercising, "please stop", Finished},
		{"exercising mixed case stop", Exercising, "StOp", Finished},
		{"exercising start ignored", Exercising, "start", Exercising},
		{"exercising restart ignored", Exercising, "restart", Exercising},
		{"exercising both substrings", Exercising, "start stop", Finished},
		{"exercising unstoppable contains stop", Exercising, "unstoppable", Finished},

		{"finished start", Finished, "start again", Exercising},
		{"finished restart", Finished, "restart", Exercising},
		{"finished stop ignored", Finished, "stop", Finished},
		{"finished unrelated", Finished, "done", Finished},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := machineIn(t, tt.from)
			m.Update(tt.command)
			assert.Equal(t, tt.want, m.State())
		})
	}
}

func TestStateMachine_EmptyCommandIsNoop(t *testing.T) {
	for _, s := range []State{Idle, Exercising, Finished} {
		m := machineIn(t, s)
		m.Update("")
		assert.Equal(t, s, m.State())
	}
}

func TestStateMachine_Reset(t *testing.T) {
	for _, s := range []State{Idle, Exercising, Finished} {
		t.Run(s.String(), func(t *testing.T) {
			m := machineIn(t, s)
			m.Reset()
			assert.True(t, m.IsIdle())
			assert.False(t, m.IsExercising())
			assert.False(t, m.IsFinished())
		})
	}
}

func TestStateMachine_Queries(t *testing.T) {
	m := NewStateMachine(Lunge)
	assert.True(t, m.IsIdle())

	m.Update("start")
	assert.True(t, m.IsExercising())
	assert.False(t, m.IsIdle())

	m.Update("stop")
	assert.True(t, m.IsFinished())
	assert.False(t, m.IsExercising())
}

func TestStateMachine_ExerciseIsImmutable(t *testing.T) {
	m := NewStateMachine(Lunge)
	for _, cmd := range []string{"start", "stop", "start", "lunge shoulder"} {
		m.Update(cmd)
	}
	m.Reset()

	assert.Equal(t, Lunge, m.Exercise())
	assert.True(t, m.IsLungeTest())
	assert.False(t, m.IsShoulderTest())
}

func TestStateMachine_OnTransition(t *testing.T) {
	type change struct {
		from, to State
		command  string
	}
	var got []change

	m := NewStateMachine(ShoulderMobility)
	m.OnTransition(func(from, to State, command string) {
		got = append(got, change{from, to, command})
	})

	m.Update("Start")
	m.Update("start") // no-op while exercising
	m.Update("stop")
	m.Reset()
	m.Reset() // already idle

	want := []change{
		{Idle, Exercising, "Start"},
		{Exercising, Finished, "stop"},
		{Finished, Idle, ""},
	}
	assert.Equal(t, want, got)
}

func TestStateMachine_ConcurrentUpdates(t *testing.T) {
	m := NewStateMachine(ShoulderMobility)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if (i+j)%2 == 0 {
					m.Update("start")
				} else {
					m.Update("stop")
				}
				_ = m.IsExercising()
			}
		}(i)
	}
	wg.Wait()

	assert.Contains(t, []State{Exercising, Finished}, m.State())
}

func TestParseExerciseType(t *testing.T) {
	tests := []struct {
		in      string
		want    ExerciseType
		wantErr bool
	}{
		{"shoulder_mobility", ShoulderMobility, false},
		{"Shoulder-Mobility", ShoulderMobility, false},
		{"shoulder", ShoulderMobility, false},
		{" LUNGE ", Lunge, false},
		{"squat", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseExerciseType(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, e := range []ExerciseType{ShoulderMobility, Lunge} {
		got, err := ParseExerciseType(e.Key())
		require.NoError(t, err)
		assert.Equal(t, e, got)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "exercising", Exercising.String())
	assert.Equal(t, "finished", Finished.String())
	assert.Equal(t, "state(9)", State(9).String())
}

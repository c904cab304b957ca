package state

import (
	"fmt"
	"pneumatic/bizerror"
)

type StateMachineTraits interface {
	AvailableTransitions(fromState string, toState string) []Transition
	Check(fromState string, toState string) error
}

// stateless object, just used for state computing
type StateMachine struct {
	Name        string       `json:"name"`
	States      []State      `json:"states"`
	Transitions []Transition `json:"transitions"`
}

type Category uint

const (
	InBacklog Category = iota
	InProcess
	Done
)

type State struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
}

type Transition struct {
	Name string `json:"name"`
	From State  `json:"from"`
	To   State  `json:"to"`
}

func NewStateMachine(name string, states []State, transitions []Transition) *StateMachine {
	return &StateMachine{Name: name, States: states, Transitions: transitions}
}

func (sm *StateMachine) AvailableTransitions(fromState string, toState string) []Transition {
	r := []Transition{}
	for _, transition := range sm.Transitions {
		if (fromState == "" || fromState == transition.From.Name) && (toState == "" || toState == transition.To.Name) {
			r = append(r, transition)
		}
	}
	return r
}

// Check accepts staying in the same known state and any declared transition.
func (sm *StateMachine) Check(fromState string, toState string) error {
	if fromState == toState {
		if _, found := sm.State(fromState); found {
			return nil
		}
	} else if fromState != "" && toState != "" && len(sm.AvailableTransitions(fromState, toState)) > 0 {
		return nil
	}
	return fmt.Errorf("%s %s -> %s: %w", sm.Name, fromState, toState, bizerror.ErrInvalidTransition)
}

func (sm *StateMachine) State(name string) (State, bool) {
	for _, s := range sm.States {
		if s.Name == name {
			return s, true
		}
	}
	return State{}, false
}

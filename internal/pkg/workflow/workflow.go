package workflow

import (
	"fmt"
	"time"
)

// Machine is an explicit transition table for a record lifecycle.
// S is the state type of the owning domain (a string enum).
type Machine[S ~string] struct {
	entity      string
	transitions map[S][]S
}

// NewMachine builds a machine for the named entity from its transition table.
func NewMachine[S ~string](entity string, transitions map[S][]S) Machine[S] {
	return Machine[S]{entity: entity, transitions: transitions}
}

// CanTransition reports whether from -> to is listed in the table.
func (m Machine[S]) CanTransition(from, to S) bool {
	for _, next := range m.transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to and returns the new state.
func (m Machine[S]) Transition(from, to S) (S, error) {
	if !m.CanTransition(from, to) {
		return from, &InvalidTransitionError{Entity: m.entity, From: string(from), To: string(to)}
	}
	return to, nil
}

// IsTerminal reports whether no transition leaves state s.
func (m Machine[S]) IsTerminal(s S) bool {
	return len(m.transitions[s]) == 0
}

// InvalidTransitionError is returned when a state change is not in the transition table.
// The record is left unchanged.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition from %q to %q", e.Entity, e.From, e.To)
}

// ReconciliationConflict reports a recompute that hit a frozen record.
// It is collected into result structures and is never fatal.
type ReconciliationConflict struct {
	Entity     string    `json:"entity"`
	RecordID   string    `json:"record_id"`
	EmployeeID string    `json:"employee_id"`
	Date       time.Time `json:"date"`
	State      string    `json:"state"`
}

func (c *ReconciliationConflict) Error() string {
	return fmt.Sprintf("%s %s for %s on %s is frozen in state %q",
		c.Entity, c.RecordID, c.EmployeeID, c.Date.Format("2006-01-02"), c.State)
}

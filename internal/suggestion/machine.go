// internal/suggestion/machine.go
// Lifecycle statechart. The machine owns which events each status accepts
// and which automatic moves follow them; Transition turns the statuses it
// enters into steps with reasons and side effects.

package suggestion

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

const lifecycleID = "suggestion"

const (
	eventAdvance statekit.EventType = "ADVANCE"
	eventExpire  statekit.EventType = "EXPIRE"
)

const (
	guardHandoff      statekit.GuardType = "firstPartyHandoff"
	guardBothApproved statekit.GuardType = "bothApproved"
	guardParty        statekit.GuardType = "isParty"
	guardMatchmaker   statekit.GuardType = "isMatchmaker"
	guardForced       statekit.GuardType = "forcedByMatchmaker"
	guardSystem       statekit.GuardType = "isSystem"

	actionMarkApproval statekit.ActionType = "markFirstPartyApproval"
)

// machineContext is what the guards see while one action is evaluated
type machineContext struct {
	Role               Role
	Force              bool
	FirstPartyApproved bool
}

func responseEvent(role Role, action Action) statekit.EventType {
	return statekit.EventType(fmt.Sprintf("RESPOND:%s:%s", role, action))
}

func feedbackEvent(outcome FeedbackOutcome) statekit.EventType {
	return statekit.EventType("FEEDBACK:" + string(outcome))
}

func overrideEvent(target Status) statekit.EventType {
	return statekit.EventType("OVERRIDE:" + string(target))
}

var lifecycle = mustBuildLifecycle()

func mustBuildLifecycle() *statekit.MachineConfig[machineContext] {
	m, err := buildLifecycle()
	if err != nil {
		panic(fmt.Sprintf("suggestion lifecycle: %v", err))
	}
	return m
}

func buildLifecycle() (*statekit.MachineConfig[machineContext], error) {
	b := statekit.NewMachine[machineContext](lifecycleID).
		WithInitial(statekit.StateID(StatusDraft)).
		WithContext(machineContext{}).
		WithAction(actionMarkApproval, func(c *machineContext, _ statekit.Event) {
			c.FirstPartyApproved = true
		}).
		WithGuard(guardHandoff, func(c machineContext, _ statekit.Event) bool {
			return c.Role == RoleFirstParty
		}).
		WithGuard(guardBothApproved, func(c machineContext, _ statekit.Event) bool {
			return c.FirstPartyApproved
		}).
		WithGuard(guardParty, func(c machineContext, _ statekit.Event) bool {
			return c.Role.IsParty()
		}).
		WithGuard(guardMatchmaker, func(c machineContext, _ statekit.Event) bool {
			return c.Role == RoleMatchmaker
		}).
		WithGuard(guardForced, func(c machineContext, _ statekit.Event) bool {
			return c.Role == RoleMatchmaker && c.Force
		}).
		WithGuard(guardSystem, func(c machineContext, _ statekit.Event) bool {
			return c.Role == RoleSystem
		})

	for _, from := range allStatuses {
		st := &stateEdges{sb: b.State(statekit.StateID(from))}

		for _, role := range []Role{RoleFirstParty, RoleSecondParty} {
			for _, action := range []Action{ActionApprove, ActionDecline, ActionInterested} {
				if to, ok := partyMoves[ruleKey{from, role, action}]; ok {
					st.on(responseEvent(role, action), "", to)
				}
			}
		}

		if feedbackSources[from] {
			for outcome, to := range feedbackTargets {
				if to != from {
					st.on(feedbackEvent(outcome), guardParty, to)
				}
			}
		}

		if expirable[from] {
			st.on(eventExpire, guardSystem, StatusExpired)
		}

		// leaving a final status needs force
		guard := guardMatchmaker
		if from.IsTerminal() {
			guard = guardForced
		}
		for _, to := range allStatuses {
			if to == from || to == StatusFirstPartyInterested {
				continue
			}
			st.on(overrideEvent(to), guard, to)
		}

		switch from {
		case StatusFirstPartyApproved:
			st.on(eventAdvance, guardHandoff, StatusPendingSecondParty)
		case StatusSecondPartyApproved:
			st.on(eventAdvance, guardBothApproved, StatusContactDetailsShared)
		}

		st.done()
	}

	return b.Build()
}

// stateEdges chains the transitions of one state the way the builder
// expects: each On hangs off the previous transition and Done closes it.
type stateEdges struct {
	sb *statekit.StateBuilder[machineContext]
	tb *statekit.TransitionBuilder[machineContext]
}

func (e *stateEdges) on(ev statekit.EventType, guard statekit.GuardType, to Status) {
	if e.tb == nil {
		e.tb = e.sb.On(ev)
	} else {
		e.tb = e.tb.On(ev)
	}
	e.tb = e.tb.Target(statekit.StateID(to))
	if guard != "" {
		e.tb = e.tb.Guard(guard)
	}
	if to == StatusFirstPartyApproved {
		e.tb = e.tb.Do(actionMarkApproval)
	}
}

func (e *stateEdges) done() {
	if e.tb != nil {
		e.tb.Done()
		return
	}
	e.sb.Done()
}

// walk restores the machine at from, sends ev and follows the automatic
// moves that come after it. It returns the statuses entered in order, or
// false when from does not accept ev.
func walk(from Status, ev statekit.EventType, mc machineContext) ([]Status, bool) {
	interp := statekit.NewInterpreter(lifecycle)
	err := interp.Restore(statekit.Snapshot[machineContext]{
		MachineID:    lifecycleID,
		CurrentState: statekit.StateID(from),
		Context:      mc,
	})
	if err != nil {
		return nil, false
	}

	var path []Status
	cur := from
	for i := 0; i <= len(allStatuses); i++ {
		event := eventAdvance
		if i == 0 {
			event = ev
		}
		interp.Send(statekit.Event{Type: event})

		next := Status(interp.State().Value)
		if next == cur {
			break
		}
		path = append(path, next)
		cur = next
	}

	return path, len(path) > 0
}

// accepts reports whether from takes ev under mc
func accepts(from Status, ev statekit.EventType, mc machineContext) bool {
	_, ok := walk(from, ev, mc)
	return ok
}

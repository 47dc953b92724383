// Package shell contains render faults so that one broken view shows a recovery
// screen instead of taking its connection down
package shell

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"cio-chat/backend/pkg/logger"
)

// State of a Boundary
type State int

const (
	Healthy State = iota
	Faulted
)

func (s State) String() string {
	if s == Faulted {
		return "faulted"
	}
	return "healthy"
}

// Recovery screen copy
const (
	RecoveryTitle  = "Something went wrong"
	RecoveryAction = "reload"
)

// RecoveryScreen replaces the view tree once a fault has been caught
type RecoveryScreen struct {
	Screen string `json:"screen"`
	Title  string `json:"title"`
	Action string `json:"action"`
	Fault  string `json:"fault"`
}

// Fault marks a render error as fatal to the view
type Fault struct {
	Err error
}

func (f *Fault) Error() string {
	return f.Err.Error()
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Boundary wraps the render of one view. Once faulted it stays faulted; a new view
// gets a new Boundary.
type Boundary struct {
	viewID string
	log    *logger.Logger

	mu     sync.Mutex
	state  State
	screen RecoveryScreen
}

// NewBoundary creates a healthy boundary for viewID
func NewBoundary(viewID string, log *logger.Logger) *Boundary {
	return &Boundary{
		viewID: viewID,
		log:    log.WithComponent("shell"),
	}
}

// State reports whether the boundary has caught a fault
func (b *Boundary) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Render runs fn unless the boundary is faulted. A panic in fn, or an error wrapping
// *Fault, faults the boundary and yields the RecoveryScreen. Other errors are returned
// unchanged.
func (b *Boundary) Render(fn func() (any, error)) (out any, err error) {
	b.mu.Lock()
	if b.state == Faulted {
		screen := b.screen
		b.mu.Unlock()
		return screen, nil
	}
	b.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			out, err = b.fault(fmt.Sprintf("%v", r), string(debug.Stack())), nil
		}
	}()

	out, err = fn()
	var f *Fault
	if errors.As(err, &f) {
		return b.fault(f.Error(), string(debug.Stack())), nil
	}
	return out, err
}

func (b *Boundary) fault(text, stack string) RecoveryScreen {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Faulted {
		return b.screen
	}

	b.log.Error("View fault caught",
		"view_id", b.viewID,
		"fault", text,
		"stack", stack,
	)

	b.state = Faulted
	b.screen = RecoveryScreen{
		Screen: "error",
		Title:  RecoveryTitle,
		Action: RecoveryAction,
		Fault:  text,
	}
	return b.screen
}

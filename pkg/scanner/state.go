package scanner

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// Lifecycle states of a Scanner.
const (
	StateUninitialized     = "uninitialized"
	StateConfiguringInput  = "configuring_input"
	StateConfiguringOutput = "configuring_output"
	StateReady             = "ready"
	StateRunning           = "running"
	StateStopped           = "stopped"
	StateTornDown          = "torn_down"
)

const (
	evConfigure       = "configure"
	evConfigureOutput = "configure_output"
	evSetupDone       = "setup_done"
	evStart           = "start"
	evStop            = "stop"
	evTeardown        = "teardown"
)

type lifecycle struct {
	fsm *fsm.FSM
}

func newLifecycle(logger *zap.SugaredLogger) *lifecycle {
	return &lifecycle{
		fsm: fsm.NewFSM(
			StateUninitialized,
			fsm.Events{
				{Name: evConfigure, Src: []string{StateUninitialized, StateReady, StateRunning, StateStopped}, Dst: StateConfiguringInput},
				{Name: evConfigureOutput, Src: []string{StateConfiguringInput}, Dst: StateConfiguringOutput},
				{Name: evSetupDone, Src: []string{StateConfiguringOutput}, Dst: StateReady},
				{Name: evStart, Src: []string{StateReady, StateStopped}, Dst: StateRunning},
				{Name: evStop, Src: []string{StateReady, StateRunning}, Dst: StateStopped},
				{Name: evTeardown, Src: []string{
					StateUninitialized, StateConfiguringInput, StateConfiguringOutput,
					StateReady, StateRunning, StateStopped,
				}, Dst: StateTornDown},
			},
			fsm.Callbacks{
				"enter_state": func(_ context.Context, e *fsm.Event) {
					logger.Infof("scanner: %s -> %s (%s)", e.Src, e.Dst, e.Event)
				},
			},
		),
	}
}

func (l *lifecycle) current() string {
	return l.fsm.Current()
}

func (l *lifecycle) can(event string) bool {
	return l.fsm.Can(event)
}

// fire applies event. Staying in the same state is not an error.
func (l *lifecycle) fire(event string) error {
	err := l.fsm.Event(context.Background(), event)
	var same fsm.NoTransitionError
	if err != nil && !errors.As(err, &same) {
		return err
	}
	return nil
}

// restore puts the machine back into a state recorded before a failed sequence.
func (l *lifecycle) restore(state string) {
	l.fsm.SetState(state)
}

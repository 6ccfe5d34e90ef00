package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/opbridge/opbridge/op-service/eth"
)

// Direction is the direction of a transfer.
type Direction string

const (
	DirectionDeposit    Direction = "deposit"
	DirectionWithdrawal Direction = "withdrawal"
)

// Stage is the state of a transfer.
type Stage string

// Transition performs the work of the current stage and returns the next one.
type Transition func(ctx context.Context) (Stage, error)

// Metricer is the subset of the op-bridge metrics the orchestrators record into.
type Metricer interface {
	RecordBalance(chain string, balance eth.ETH)
	RecordStage(direction string, stage string)
	RecordStageDuration(direction string, stage string, d time.Duration)
	RecordOutcome(direction string, outcome string)
}

// Machine drives a transfer through its transition table until a terminal stage is reached.
type Machine struct {
	direction Direction
	log       log.Logger
	metr      Metricer
	now       func() time.Time

	stage       Stage
	entered     time.Time
	history     []Stage
	terminal    map[Stage]struct{}
	transitions map[Stage]Transition
}

func NewMachine(direction Direction, l log.Logger, m Metricer, initial Stage, terminal ...Stage) *Machine {
	terminalSet := make(map[Stage]struct{}, len(terminal))
	for _, s := range terminal {
		terminalSet[s] = struct{}{}
	}
	return &Machine{
		direction:   direction,
		log:         l,
		metr:        m,
		now:         time.Now,
		stage:       initial,
		terminal:    terminalSet,
		transitions: make(map[Stage]Transition),
	}
}

// On registers the transition taken out of stage.
func (m *Machine) On(stage Stage, t Transition) *Machine {
	m.transitions[stage] = t
	return m
}

// Stage returns the last reached stage.
func (m *Machine) Stage() Stage {
	return m.stage
}

// History returns every stage reached so far, in order.
func (m *Machine) History() []Stage {
	return append([]Stage(nil), m.history...)
}

func (m *Machine) IsTerminal(s Stage) bool {
	_, ok := m.terminal[s]
	return ok
}

// Run executes transitions until the current stage is terminal.
// On error the machine stays at the last reached stage.
func (m *Machine) Run(ctx context.Context) error {
	m.enter(m.stage)
	for !m.IsTerminal(m.stage) {
		t, ok := m.transitions[m.stage]
		if !ok {
			return fmt.Errorf("%w %s", ErrNoTransition, m.stage)
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("interrupted at stage %s: %w", m.stage, err)
		}
		next, err := t(ctx)
		if err != nil {
			m.log.Error("Stage failed", "stage", m.stage, "err", err)
			return fmt.Errorf("stage %s: %w", m.stage, err)
		}
		m.metr.RecordStageDuration(string(m.direction), string(m.stage), m.now().Sub(m.entered))
		m.log.Info("Stage transition", "from", m.stage, "to", next)
		m.enter(next)
	}
	m.log.Info("Reached terminal stage", "stage", m.stage)
	return nil
}

func (m *Machine) enter(s Stage) {
	m.stage = s
	m.entered = m.now()
	m.history = append(m.history, s)
	m.metr.RecordStage(string(m.direction), string(s))
}

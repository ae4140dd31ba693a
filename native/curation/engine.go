package curation

import (
	"errors"
	"fmt"

	ledgererrors "labledger/core/errors"
	"labledger/core/events"
	"labledger/core/types"
	"labledger/native/common"
)

const (
	// EventTypeLabCurated is emitted whenever the DAO admin adds a lab.
	EventTypeLabCurated = "curation.lab_curated"
	// EventTypeLabUncurated is emitted whenever the DAO admin removes a lab.
	EventTypeLabUncurated = "curation.lab_uncurated"
)

var errNilState = errors.New("curation engine: state not configured")

type engineState interface {
	CuratedLabPut(lab [20]byte, curated bool) error
	CuratedLabGet(lab [20]byte) (bool, error)
}

// Engine maintains the allowlist of labs permitted to claim requests.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	pauses   common.PauseView
	daoAdmin [20]byte
}

// NewEngine creates a curation engine administered by daoAdmin.
func NewEngine(daoAdmin [20]byte) *Engine {
	return &Engine{daoAdmin: daoAdmin, emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses configures the pause view consulted before mutating calls.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Admin returns the DAO administrator.
func (e *Engine) Admin() [20]byte { return e.daoAdmin }

// CurateLab adds lab to the allowlist. Curating an already curated lab is a
// no-op apart from the event.
func (e *Engine) CurateLab(caller, lab [20]byte) error {
	return e.set(caller, lab, true)
}

// UncurateLab removes lab from the allowlist.
func (e *Engine) UncurateLab(caller, lab [20]byte) error {
	return e.set(caller, lab, false)
}

// IsCurated reports whether lab may claim requests.
func (e *Engine) IsCurated(lab [20]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	return e.state.CuratedLabGet(lab)
}

func (e *Engine) set(caller, lab [20]byte, curated bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.Guard(e.pauses, common.ModuleCuration); err != nil {
		return err
	}
	if caller != e.daoAdmin {
		return fmt.Errorf("curation: %w", ledgererrors.ErrNotAuthorized)
	}
	if err := e.state.CuratedLabPut(lab, curated); err != nil {
		return err
	}
	eventType := EventTypeLabCurated
	if !curated {
		eventType = EventTypeLabUncurated
	}
	e.emitter.Emit(labEvent{evt: &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"lab":   events.FormatAddress(lab),
			"actor": events.FormatAddress(caller),
		},
	}})
	return nil
}

type labEvent struct {
	evt *types.Event
}

func (e labEvent) EventType() string { return e.evt.Type }

func (e labEvent) Event() *types.Event { return e.evt }

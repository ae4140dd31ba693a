package curation

import (
	"errors"
	"testing"

	ledgererrors "labledger/core/errors"
	"labledger/core/events"
	"labledger/native/common"
)

type mockState struct {
	labs map[[20]byte]bool
}

func (m *mockState) CuratedLabPut(lab [20]byte, curated bool) error {
	if curated {
		m.labs[lab] = true
	} else {
		delete(m.labs, lab)
	}
	return nil
}

func (m *mockState) CuratedLabGet(lab [20]byte) (bool, error) { return m.labs[lab], nil }

func newTestEngine() (*Engine, *mockState, *events.Recorder, [20]byte) {
	admin := [20]byte{0xDA, 0x0}
	state := &mockState{labs: make(map[[20]byte]bool)}
	rec := &events.Recorder{}
	engine := NewEngine(admin)
	engine.SetState(state)
	engine.SetEmitter(rec)
	return engine, state, rec, admin
}

func TestCurateAndUncurate(t *testing.T) {
	engine, _, rec, admin := newTestEngine()
	lab := [20]byte{0x1A}

	if err := engine.CurateLab(admin, lab); err != nil {
		t.Fatalf("curate: %v", err)
	}
	ok, err := engine.IsCurated(lab)
	if err != nil || !ok {
		t.Fatalf("expected lab curated, got %v %v", ok, err)
	}
	if err := engine.UncurateLab(admin, lab); err != nil {
		t.Fatalf("uncurate: %v", err)
	}
	if ok, _ := engine.IsCurated(lab); ok {
		t.Fatalf("expected lab removed")
	}
	if got := len(rec.Filter(EventTypeLabCurated)); got != 1 {
		t.Fatalf("curated events = %d, want 1", got)
	}
	if got := len(rec.Filter(EventTypeLabUncurated)); got != 1 {
		t.Fatalf("uncurated events = %d, want 1", got)
	}
}

func TestCurationIsIdempotent(t *testing.T) {
	engine, _, rec, admin := newTestEngine()
	lab := [20]byte{0x1B}
	for i := 0; i < 2; i++ {
		if err := engine.CurateLab(admin, lab); err != nil {
			t.Fatalf("curate #%d: %v", i, err)
		}
	}
	if got := len(rec.Filter(EventTypeLabCurated)); got != 2 {
		t.Fatalf("curated events = %d, want 2", got)
	}
	if err := engine.UncurateLab(admin, [20]byte{0x77}); err != nil {
		t.Fatalf("uncurate unknown lab: %v", err)
	}
}

func TestOnlyAdminMutates(t *testing.T) {
	engine, state, rec, admin := newTestEngine()
	lab := [20]byte{0x1C}
	if err := engine.CurateLab(admin, lab); err != nil {
		t.Fatalf("curate: %v", err)
	}
	rec.Reset()

	intruder := [20]byte{0xEE}
	if err := engine.UncurateLab(intruder, lab); !errors.Is(err, ledgererrors.ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
	if err := engine.CurateLab(intruder, intruder); !errors.Is(err, ledgererrors.ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
	if !state.labs[lab] || state.labs[intruder] {
		t.Fatalf("allowlist changed by unauthorized caller: %v", state.labs)
	}
	if len(rec.Events()) != 0 {
		t.Fatalf("unauthorized calls must not emit")
	}
}

func TestPausedCuration(t *testing.T) {
	engine, _, _, admin := newTestEngine()
	engine.SetPauses(common.StaticPauses{common.ModuleCuration: true})
	if err := engine.CurateLab(admin, [20]byte{0x1D}); !errors.Is(err, ledgererrors.ErrModulePaused) {
		t.Fatalf("expected paused, got %v", err)
	}
}

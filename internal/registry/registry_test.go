package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/defuse-core/internal/protocol"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func addr(t *testing.T, typ protocol.ModuleType, inst uint8) protocol.Address {
	t.Helper()
	a, err := protocol.NewAddress(typ, inst)
	if err != nil {
		t.Fatalf("NewAddress() error = %v", err)
	}
	return a
}

func mustUpsert(t *testing.T, r *Registry, a protocol.Address, now time.Time) {
	t.Helper()
	if _, _, err := r.Upsert(a, now); err != nil {
		t.Fatalf("Upsert(%s) error = %v", a, err)
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	r := New(0)
	wires := addr(t, protocol.TypeWires, 1)

	created, _, err := r.Upsert(wires, t0)
	if err != nil || !created {
		t.Fatalf("first Upsert() = %v, %v; want created", created, err)
	}
	if _, err := r.MarkSolved(wires, t0); err != nil {
		t.Fatalf("MarkSolved() error = %v", err)
	}

	created, _, err = r.Upsert(wires, t0.Add(time.Second))
	if err != nil || created {
		t.Fatalf("second Upsert() = %v, %v; want existing", created, err)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
	rec, _ := r.Get(wires)
	if !rec.Solved {
		t.Error("second registration reset Solved")
	}
	if !rec.LastSeenAt.Equal(t0.Add(time.Second)) || !rec.FirstSeenAt.Equal(t0) {
		t.Errorf("FirstSeenAt = %v, LastSeenAt = %v", rec.FirstSeenAt, rec.LastSeenAt)
	}
	if rec.Category != protocol.CategoryRegular || rec.Type != protocol.TypeWires || rec.Instance != 1 {
		t.Errorf("record identity = %+v", rec)
	}
}

func TestUpsertRejectsNonModules(t *testing.T) {
	r := New(0)
	for _, a := range []protocol.Address{
		protocol.BroadcastAddress,
		protocol.SubChannel(protocol.TypeWires),
		protocol.TimerAddress,
	} {
		if _, _, err := r.Upsert(a, t0); !errors.Is(err, ErrInvalidModule) {
			t.Errorf("Upsert(%s) error = %v, want ErrInvalidModule", a, err)
		}
	}
	if _, _, err := r.Upsert(protocol.AudioAddress, t0); err != nil {
		t.Errorf("Upsert(audio) error = %v", err)
	}
}

func TestMarkSolved(t *testing.T) {
	r := New(0)
	wires := addr(t, protocol.TypeWires, 1)
	mustUpsert(t, r, wires, t0)

	if changed, _ := r.MarkSolved(wires, t0); !changed {
		t.Error("first MarkSolved() = false, want true")
	}
	if changed, _ := r.MarkSolved(wires, t0); changed {
		t.Error("second MarkSolved() = true, want no-op")
	}
	if _, err := r.MarkSolved(addr(t, protocol.TypeMaze, 1), t0); !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("MarkSolved(unknown) error = %v", err)
	}

	mustUpsert(t, r, protocol.AudioAddress, t0)
	if changed, _ := r.MarkSolved(protocol.AudioAddress, t0); changed {
		t.Error("MarkSolved(audio) changed an ignored module")
	}
}

func TestApplyReportNeverDisarmsNeedy(t *testing.T) {
	r := New(0)
	gas := addr(t, protocol.TypeVentingGas, 1)
	mustUpsert(t, r, gas, t0)
	r.FreezeRoster()
	r.ScheduleNeedy(t0)
	r.ActivateDueNeedy(t0.Add(protocol.TypeVentingGas.NeedyInterval()))

	changed, err := r.ApplyReport(gas, protocol.ModuleReport{State: protocol.ModuleSolved, Solved: true}, nil, t0)
	if err != nil || changed {
		t.Fatalf("ApplyReport(solved) = %v, %v; want no change", changed, err)
	}
	if rec, _ := r.Get(gas); !rec.Active {
		t.Error("solved report disarmed an active needy module")
	}
}

func TestApplyReportOnlyFlipsToSolved(t *testing.T) {
	r := New(0)
	keypad := addr(t, protocol.TypeKeypad, 2)
	mustUpsert(t, r, keypad, t0)

	strikes := uint8(1)
	changed, err := r.ApplyReport(keypad, protocol.ModuleReport{State: protocol.ModuleSolved, Solved: true, Progress: 100}, &strikes, t0)
	if err != nil || !changed {
		t.Fatalf("ApplyReport(solved) = %v, %v", changed, err)
	}
	changed, _ = r.ApplyReport(keypad, protocol.ModuleReport{State: protocol.ModuleArmed, Solved: false}, nil, t0)
	if changed {
		t.Error("ApplyReport(unsolved) reported a change")
	}
	rec, _ := r.Get(keypad)
	if !rec.Solved {
		t.Error("unsolved report cleared Solved")
	}
	if rec.Report == nil || rec.Report.State != protocol.ModuleArmed || rec.ModuleStrikes != 1 {
		t.Errorf("stored report = %+v, strikes = %d", rec.Report, rec.ModuleStrikes)
	}
}

func TestSweepLivenessMarksOfflineWithoutRemoving(t *testing.T) {
	r := New(5 * time.Second)
	wires := addr(t, protocol.TypeWires, 1)
	gas := addr(t, protocol.TypeVentingGas, 1)
	mustUpsert(t, r, wires, t0)
	mustUpsert(t, r, gas, t0)
	r.ActivateDueNeedy(t0.Add(30 * time.Second))
	mustUpsert(t, r, wires, t0.Add(30*time.Second))

	stale := r.SweepLiveness(t0.Add(31 * time.Second))
	if len(stale) != 1 || stale[0] != gas {
		t.Fatalf("SweepLiveness() = %v, want [%s]", stale, gas)
	}
	rec, ok := r.Get(gas)
	if !ok || rec.Online || rec.Active {
		t.Errorf("stale needy record = %+v, want kept, offline and inactive", rec)
	}
	if r.Counts().ActiveNeedy != 0 {
		t.Error("offline needy still counted as active")
	}

	_, revived, _ := r.Upsert(gas, t0.Add(40*time.Second))
	if !revived {
		t.Error("Upsert() after timeout did not revive")
	}
}

func TestNeedyActivationSchedule(t *testing.T) {
	r := New(time.Hour)
	knob := addr(t, protocol.TypeKnob, 1)
	mustUpsert(t, r, knob, t0)
	r.ScheduleNeedy(t0)

	if armed := r.ActivateDueNeedy(t0.Add(59 * time.Second)); len(armed) != 0 {
		t.Fatalf("armed before interval: %v", armed)
	}
	at := t0.Add(60 * time.Second)
	armed := r.ActivateDueNeedy(at)
	if len(armed) != 1 || !armed[0].Active || !armed[0].NextActivationAt.Equal(at.Add(60*time.Second)) {
		t.Fatalf("ActivateDueNeedy() = %+v", armed)
	}
	if c := r.Counts(); c.ActiveNeedy != 1 || c.NeedyTotal != 1 {
		t.Errorf("Counts() = %+v", c)
	}

	// Deadline passes while still active: rescheduled, not re-armed.
	later := at.Add(61 * time.Second)
	if armed := r.ActivateDueNeedy(later); len(armed) != 0 {
		t.Errorf("re-armed an active module: %v", armed)
	}
	rec, _ := r.Get(knob)
	if !rec.NextActivationAt.After(later) {
		t.Errorf("NextActivationAt = %v, want after %v", rec.NextActivationAt, later)
	}

	// Solving disarms and keeps the next activation at least one interval out.
	if changed, _ := r.MarkSolved(knob, later); !changed {
		t.Error("MarkSolved(active needy) = false")
	}
	rec, _ = r.Get(knob)
	if rec.Active || rec.NextActivationAt.Before(later.Add(60*time.Second)) || rec.Solved {
		t.Errorf("after solve = %+v", rec)
	}
	if rec.Activations != 1 {
		t.Errorf("Activations = %d, want 1", rec.Activations)
	}
}

func TestPostponeNeedy(t *testing.T) {
	r := New(time.Hour)
	gas := addr(t, protocol.TypeVentingGas, 1)
	mustUpsert(t, r, gas, t0)
	r.ScheduleNeedy(t0)
	r.PostponeNeedy(10 * time.Second)

	if armed := r.ActivateDueNeedy(t0.Add(35 * time.Second)); len(armed) != 0 {
		t.Error("activated before postponed time")
	}
	if armed := r.ActivateDueNeedy(t0.Add(40 * time.Second)); len(armed) != 1 {
		t.Error("not activated at postponed time")
	}
}

func TestRosterFreeze(t *testing.T) {
	r := New(0)
	a := addr(t, protocol.TypeWires, 1)
	b := addr(t, protocol.TypeButton, 1)
	late := addr(t, protocol.TypeMaze, 1)
	mustUpsert(t, r, a, t0)
	mustUpsert(t, r, b, t0)
	mustUpsert(t, r, protocol.AudioAddress, t0)

	if n := r.FreezeRoster(); n != 3 {
		t.Errorf("FreezeRoster() = %d, want 3", n)
	}
	mustUpsert(t, r, late, t0)

	c := r.Counts()
	if c.RegularTotal != 2 || c.Total != 4 {
		t.Errorf("Counts() = %+v, want 2 regular of 4 total", c)
	}
	r.MarkSolved(a, t0) //nolint:errcheck
	r.MarkSolved(b, t0) //nolint:errcheck
	if !r.Counts().AllRegularSolved() {
		t.Error("AllRegularSolved() = false with roster solved and a late unsolved module")
	}

	r.Clear()
	if r.Len() != 0 || r.RosterFrozen() {
		t.Errorf("Clear() left %d records, frozen = %v", r.Len(), r.RosterFrozen())
	}
}

func TestAllRegularSolvedNeedsModules(t *testing.T) {
	if (Counts{}).AllRegularSolved() {
		t.Error("AllRegularSolved() = true with no modules")
	}
}

func TestListIsSortedCopy(t *testing.T) {
	r := New(0)
	mustUpsert(t, r, addr(t, protocol.TypeMaze, 2), t0)
	mustUpsert(t, r, addr(t, protocol.TypeWires, 1), t0)

	list := r.List()
	if len(list) != 2 || list[0].Type != protocol.TypeWires {
		t.Fatalf("List() = %+v", list)
	}
	list[0].Solved = true
	if rec, _ := r.Get(list[0].Address); rec.Solved {
		t.Error("List() returned shared memory")
	}
}

package services_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/audit"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/data/repos"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/data/repos/testutil"
	types "github.com/mirrorpanel/mirrorpanel-backend/internal/domain/research"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/services"
)

// The weight table service opens its own transactions, so these tests run
// against committed rows keyed by fresh UUIDs instead of a rolled-back tx.
func newWeightTable(t *testing.T) services.WeightTableService {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	return services.NewWeightTableService(
		gdb,
		repos.NewStudyRepo(gdb, log),
		repos.NewPersonaRepo(gdb, log),
		repos.NewPersonaWeightRepo(gdb, log),
		repos.NewGuardrailEventRepo(gdb, log),
		audit.NewNoopBus(),
		log,
	)
}

func TestWeightTableSetRejectsOutOfRange(t *testing.T) {
	svc := newWeightTable(t)
	ctx := context.Background()

	for _, w := range []float64{-1.0, -0.1, 5.0001, 5.1, 100} {
		_, err := svc.Set(ctx, uuid.New(), uuid.New(), w, "tester")
		if services.CodeOf(err) != services.ErrCodeValidation {
			t.Fatalf("weight %v should fail validation, got %v", w, err)
		}
	}
}

func TestWeightTableSetAcceptsBoundaryWeights(t *testing.T) {
	gdb := testutil.DB(t)
	svc := newWeightTable(t)
	ctx := context.Background()

	study := testutil.SeedStudy(t, ctx, gdb, "boundary weights")
	persona := testutil.SeedPersona(t, ctx, gdb, "Boundary Bea")

	for _, w := range []float64{0.0, 5.0} {
		row, err := svc.Set(ctx, study.ID, persona.ID, w, "tester")
		if err != nil {
			t.Fatalf("weight %v should be accepted: %v", w, err)
		}
		if row.Weight != w {
			t.Fatalf("weight %v round-trip: got %v", w, row.Weight)
		}
	}
}

func TestWeightTableSetUnknownStudyIsNotFound(t *testing.T) {
	svc := newWeightTable(t)

	_, err := svc.Set(context.Background(), uuid.New(), uuid.New(), 2.0, "tester")
	if services.CodeOf(err) != services.ErrCodeNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestWeightTableSetPersistsAndAudits(t *testing.T) {
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	svc := newWeightTable(t)
	ctx := context.Background()

	study := testutil.SeedStudy(t, ctx, gdb, "weight table")
	persona := testutil.SeedPersona(t, ctx, gdb, "Weighted Wendy")

	row, err := svc.Set(ctx, study.ID, persona.ID, 2.0, "researcher@example.com")
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if row.Weight != 2.0 || row.Version != 1 {
		t.Fatalf("unexpected row: %+v", row)
	}

	got, err := svc.Get(ctx, study.ID, persona.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Weight != 2.0 {
		t.Fatalf("get after set: %+v", got)
	}

	events, err := repos.NewGuardrailEventRepo(gdb, log).ListByStudy(ctx, nil, study.ID, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].Type != types.GuardrailEventWeightChange {
		t.Fatalf("expected one weight_change event, got %+v", events)
	}
}

func TestWeightTableGetAbsentReadsDefault(t *testing.T) {
	gdb := testutil.DB(t)
	svc := newWeightTable(t)
	ctx := context.Background()

	study := testutil.SeedStudy(t, ctx, gdb, "defaults")
	persona := testutil.SeedPersona(t, ctx, gdb, "Unweighted Umar")

	got, err := svc.Get(ctx, study.ID, persona.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Weight != types.WeightDefault {
		t.Fatalf("absent override should read as default, got %v", got.Weight)
	}
}

func TestWeightTableSnapshotIsImmutable(t *testing.T) {
	gdb := testutil.DB(t)
	svc := newWeightTable(t)
	ctx := context.Background()

	study := testutil.SeedStudy(t, ctx, gdb, "snapshot")
	persona := testutil.SeedPersona(t, ctx, gdb, "Frozen Fiona")

	if _, err := svc.Set(ctx, study.ID, persona.ID, 3.0, "tester"); err != nil {
		t.Fatalf("set: %v", err)
	}

	snap, err := svc.Snapshot(ctx, study.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Get(persona.ID) != 3.0 {
		t.Fatalf("snapshot weight: %v", snap.Get(persona.ID))
	}

	// Edits after the snapshot must not leak into it.
	if _, err := svc.Set(ctx, study.ID, persona.ID, 0.5, "tester"); err != nil {
		t.Fatalf("second set: %v", err)
	}
	if snap.Get(persona.ID) != 3.0 {
		t.Fatalf("snapshot mutated after later write: %v", snap.Get(persona.ID))
	}

	fresh, err := svc.Snapshot(ctx, study.ID)
	if err != nil {
		t.Fatalf("fresh snapshot: %v", err)
	}
	if fresh.Get(persona.ID) != 0.5 {
		t.Fatalf("fresh snapshot should see the new weight, got %v", fresh.Get(persona.ID))
	}
	if fresh.Version <= snap.Version {
		t.Fatalf("version should advance: %d -> %d", snap.Version, fresh.Version)
	}
}

func TestWeightTableSetPrimaryICPSwitches(t *testing.T) {
	gdb := testutil.DB(t)
	svc := newWeightTable(t)
	ctx := context.Background()

	study := testutil.SeedStudy(t, ctx, gdb, "primary icp")
	a := testutil.SeedPersona(t, ctx, gdb, "ICP Alpha")
	b := testutil.SeedPersona(t, ctx, gdb, "ICP Beta")

	if err := svc.SetPrimaryICP(ctx, study.ID, a.ID, "tester"); err != nil {
		t.Fatalf("set a: %v", err)
	}
	if err := svc.SetPrimaryICP(ctx, study.ID, b.ID, "tester"); err != nil {
		t.Fatalf("set b: %v", err)
	}

	snap, err := svc.Snapshot(ctx, study.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.PrimaryICP == nil || *snap.PrimaryICP != b.ID {
		t.Fatalf("primary ICP should be b, got %v", snap.PrimaryICP)
	}
}

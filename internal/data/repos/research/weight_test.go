package research_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	repo "github.com/mirrorpanel/mirrorpanel-backend/internal/data/repos/research"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/data/repos/testutil"
	types "github.com/mirrorpanel/mirrorpanel-backend/internal/domain/research"
)

func TestPersonaWeightUpsertBumpsVersion(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	log := testutil.Logger(t)

	study := testutil.SeedStudy(t, ctx, tx, "weights")
	persona := testutil.SeedPersona(t, ctx, tx, "Ops Olivia")

	r := repo.NewPersonaWeightRepo(gdb, log)

	first, err := r.Upsert(ctx, tx, &types.PersonaWeight{
		StudyID:   study.ID,
		PersonaID: persona.ID,
		Weight:    2.5,
		Version:   1,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if first.Weight != 2.5 || first.Version != 1 {
		t.Fatalf("first row: weight=%v version=%d", first.Weight, first.Version)
	}

	second, err := r.Upsert(ctx, tx, &types.PersonaWeight{
		StudyID:   study.ID,
		PersonaID: persona.ID,
		Weight:    0.5,
		Version:   1,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.Weight != 0.5 {
		t.Fatalf("second row weight: %v", second.Weight)
	}
	if second.Version != 2 {
		t.Fatalf("version should increment on conflict, got %d", second.Version)
	}
}

func TestPersonaWeightGetAbsentReturnsNil(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	log := testutil.Logger(t)

	study := testutil.SeedStudy(t, ctx, tx, "absent")

	r := repo.NewPersonaWeightRepo(gdb, log)
	row, err := r.Get(ctx, tx, study.ID, uuid.New())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if row != nil {
		t.Fatalf("expected nil for absent override, got %+v", row)
	}
}

func TestSetPrimaryICPIsExclusive(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	log := testutil.Logger(t)

	study := testutil.SeedStudy(t, ctx, tx, "icp")
	a := testutil.SeedPersona(t, ctx, tx, "A")
	b := testutil.SeedPersona(t, ctx, tx, "B")

	r := repo.NewPersonaWeightRepo(gdb, log)

	if err := r.SetPrimaryICP(ctx, tx, study.ID, a.ID); err != nil {
		t.Fatalf("set primary a: %v", err)
	}
	if err := r.SetPrimaryICP(ctx, tx, study.ID, b.ID); err != nil {
		t.Fatalf("set primary b: %v", err)
	}

	primary, err := r.GetPrimaryICP(ctx, tx, study.ID)
	if err != nil {
		t.Fatalf("get primary: %v", err)
	}
	if primary == nil || primary.PersonaID != b.ID {
		t.Fatalf("primary should be b, got %+v", primary)
	}

	rows, err := r.ListByStudy(ctx, tx, study.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	flagged := 0
	for _, row := range rows {
		if row.IsPrimaryICP {
			flagged++
		}
	}
	if flagged != 1 {
		t.Fatalf("exactly one primary ICP expected, got %d", flagged)
	}
}

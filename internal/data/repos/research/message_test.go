package research_test

import (
	"context"
	"testing"

	repo "github.com/mirrorpanel/mirrorpanel-backend/internal/data/repos/research"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/data/repos/testutil"
)

func TestMessageListByStudyIsStable(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	log := testutil.Logger(t)

	study := testutil.SeedStudy(t, ctx, tx, "ordering")
	s1 := testutil.SeedSession(t, ctx, tx, study.ID)
	s2 := testutil.SeedSession(t, ctx, tx, study.ID)
	p := testutil.SeedPersona(t, ctx, tx, "P")

	// Insert out of seq order within each session.
	testutil.SeedMessage(t, ctx, tx, s1.ID, testutil.PtrUUID(p.ID), 2, "s1 second")
	testutil.SeedMessage(t, ctx, tx, s1.ID, testutil.PtrUUID(p.ID), 1, "s1 first")
	testutil.SeedMessage(t, ctx, tx, s2.ID, testutil.PtrUUID(p.ID), 1, "s2 first")

	r := repo.NewMessageRepo(gdb, log)

	first, err := r.ListByStudy(ctx, tx, study.ID)
	if err != nil {
		t.Fatalf("list by study: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(first))
	}
	for i := 1; i < len(first); i++ {
		prev, cur := first[i-1], first[i]
		if prev.SessionID == cur.SessionID && prev.Seq > cur.Seq {
			t.Fatalf("seq order violated at %d: %d after %d", i, cur.Seq, prev.Seq)
		}
	}

	second, err := r.ListByStudy(ctx, tx, study.ID)
	if err != nil {
		t.Fatalf("second list: %v", err)
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("ordering not stable across reads at index %d", i)
		}
	}
}

func TestMessageGetMaxSeq(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	log := testutil.Logger(t)

	study := testutil.SeedStudy(t, ctx, tx, "seq")
	sess := testutil.SeedSession(t, ctx, tx, study.ID)

	r := repo.NewMessageRepo(gdb, log)

	maxSeq, err := r.GetMaxSeq(ctx, tx, sess.ID)
	if err != nil {
		t.Fatalf("max seq empty: %v", err)
	}
	if maxSeq != 0 {
		t.Fatalf("empty session max seq: %d", maxSeq)
	}

	testutil.SeedMessage(t, ctx, tx, sess.ID, nil, 1, "one")
	testutil.SeedMessage(t, ctx, tx, sess.ID, nil, 2, "two")

	maxSeq, err = r.GetMaxSeq(ctx, tx, sess.ID)
	if err != nil {
		t.Fatalf("max seq: %v", err)
	}
	if maxSeq != 2 {
		t.Fatalf("max seq: want=2 got=%d", maxSeq)
	}
}

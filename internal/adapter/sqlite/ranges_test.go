package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anees-mohamed-ar/logistic/internal/adapter/sqlite"
	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

func mustCreateRange(t *testing.T, store *sqlite.Store, owner, start, count int64, status domain.RangeStatus, at time.Time) domain.NumberRange {
	t.Helper()
	r, err := domain.NewNumberRange(owner, tenant5, start, count, status, at)
	if err != nil {
		t.Fatalf("NewNumberRange: %v", err)
	}
	r, err = store.CreateRange(context.Background(), r)
	if err != nil {
		t.Fatalf("mustCreateRange failed: %v", err)
	}
	return r
}

func TestCreateRange_OneActivePerOwner(t *testing.T) {
	store := newTestStore(t)
	mustCreateRange(t, store, 9, 100, 3, domain.RangeActive, t0)

	r, _ := domain.NewNumberRange(9, tenant5, 200, 3, domain.RangeActive, t0)
	_, err := store.CreateRange(context.Background(), r)
	var rangeErr *domain.InvalidRangeError
	if !errors.As(err, &rangeErr) {
		t.Errorf("error = %v, want InvalidRangeError", err)
	}
}

func TestAdvanceCursor_ExpiresAtEnd(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	r := mustCreateRange(t, store, 9, 100, 2, domain.RangeActive, t0)

	if ok, _ := store.AdvanceCursor(ctx, r.ID, 101, t0); ok {
		t.Error("advanced from a stale expected cursor")
	}
	if ok, err := store.AdvanceCursor(ctx, r.ID, 100, t0); err != nil || !ok {
		t.Fatalf("AdvanceCursor(100) = %v, %v", ok, err)
	}
	if ok, err := store.AdvanceCursor(ctx, r.ID, 101, t0); err != nil || !ok {
		t.Fatalf("AdvanceCursor(101) = %v, %v", ok, err)
	}

	got, err := store.LatestRange(ctx, 9, 5)
	if err != nil {
		t.Fatalf("LatestRange failed: %v", err)
	}
	if got.Cursor != 102 || got.Status != domain.RangeExpired {
		t.Errorf("range = cursor %d status %q, want 102 expired", got.Cursor, got.Status)
	}
	if ok, _ := store.AdvanceCursor(ctx, r.ID, 102, t0); ok {
		t.Error("advanced past the end")
	}
	if _, err := store.ActiveRange(ctx, 9, 5); !errors.Is(err, domain.ErrRangeNotFound) {
		t.Errorf("ActiveRange error = %v, want ErrRangeNotFound", err)
	}
}

func TestPromoteQueued(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.PromoteQueued(ctx, 9, 5, t0); !errors.Is(err, domain.ErrRangeNotFound) {
		t.Errorf("PromoteQueued on empty error = %v, want ErrRangeNotFound", err)
	}

	second := mustCreateRange(t, store, 9, 300, 5, domain.RangeQueued, t0.Add(time.Minute))
	first := mustCreateRange(t, store, 9, 200, 5, domain.RangeQueued, t0)

	got, err := store.PromoteQueued(ctx, 9, 5, t0)
	if err != nil {
		t.Fatalf("PromoteQueued failed: %v", err)
	}
	if got.ID != first.ID || got.Status != domain.RangeActive {
		t.Errorf("promoted %+v, want earliest queued range %d", got, first.ID)
	}

	// While a range is active nothing else is promoted.
	again, err := store.PromoteQueued(ctx, 9, 5, t0)
	if err != nil {
		t.Fatalf("second PromoteQueued failed: %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("second promote returned %d, want the active range %d", again.ID, first.ID)
	}

	queued := domain.RangeQueued
	n, _ := store.CountRanges(ctx, 9, 5, &queued)
	if n != 1 {
		t.Errorf("queued count = %d, want 1 (range %d)", n, second.ID)
	}
}

func TestOverlaps(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	mustCreateRange(t, store, 9, 100, 10, domain.RangeQueued, t0)

	cases := []struct {
		start, end int64
		want       bool
	}{
		{90, 100, false},
		{110, 120, false},
		{95, 101, true},
		{105, 106, true},
		{109, 200, true},
	}
	for _, tc := range cases {
		got, err := store.Overlaps(ctx, 5, tc.start, tc.end)
		if err != nil {
			t.Fatalf("Overlaps failed: %v", err)
		}
		if got != tc.want {
			t.Errorf("Overlaps([%d, %d)) = %v, want %v", tc.start, tc.end, got, tc.want)
		}
	}

	if got, _ := store.Overlaps(ctx, 6, 100, 110); got {
		t.Error("ranges of another company should not overlap")
	}
}

func TestListRanges_Filters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	mustCreateRange(t, store, 9, 100, 10, domain.RangeActive, t0)
	mustCreateRange(t, store, 9, 200, 10, domain.RangeQueued, t0.Add(time.Minute))
	mustCreateRange(t, store, 8, 300, 10, domain.RangeQueued, t0.Add(2*time.Minute))

	all, err := store.ListRanges(ctx, domain.RangeFilter{TenantID: 5})
	if err != nil {
		t.Fatalf("ListRanges failed: %v", err)
	}
	if len(all) != 3 || all[0].Start != 300 {
		t.Errorf("ListRanges = %d ranges starting %d, want 3 newest first", len(all), all[0].Start)
	}

	owner := int64(9)
	queued := domain.RangeQueued
	got, _ := store.ListRanges(ctx, domain.RangeFilter{TenantID: 5, OwnerID: &owner, Status: &queued})
	if len(got) != 1 || got[0].Start != 200 {
		t.Errorf("filtered ranges = %+v, want only [200, 210)", got)
	}

	page, _ := store.ListRanges(ctx, domain.RangeFilter{TenantID: 5, Limit: 1, Offset: 1})
	if len(page) != 1 || page[0].Start != 200 {
		t.Errorf("page = %+v, want the second newest range", page)
	}

	tail, _ := store.ListRanges(ctx, domain.RangeFilter{TenantID: 5, Offset: 2})
	if len(tail) != 1 || tail[0].Start != 100 {
		t.Errorf("offset without limit = %+v, want the oldest range", tail)
	}
}

func TestRecordConsumption_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	c := domain.Consumption{TenantID: 5, OwnerID: 9, Number: "100", DraftID: "a", ConsumedAt: t0}

	for i := 0; i < 2; i++ {
		if err := store.RecordConsumption(ctx, c); err != nil {
			t.Fatalf("RecordConsumption #%d failed: %v", i+1, err)
		}
	}

	n, err := store.CountConsumptions(ctx, 9, 5)
	if err != nil {
		t.Fatalf("CountConsumptions failed: %v", err)
	}
	if n != 1 {
		t.Errorf("consumptions = %d, want 1", n)
	}
}

package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

func TestCreate_Success(t *testing.T) {
	h := newHarness(t)

	draft, err := h.drafts.Create(context.Background(), caller(admin), domain.ShipmentFields{TruckNumber: "KA01"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !strings.HasPrefix(draft.ID, "TEMP-") || strings.ToUpper(draft.ID) != draft.ID {
		t.Errorf("ID = %q, want upper-case TEMP- prefix", draft.ID)
	}
	if draft.CreatedBy != admin || draft.TenantID != company {
		t.Errorf("draft = %+v, want created by %d in company %d", draft, admin, company)
	}

	created := h.notes.ofType(domain.NotifyCreated)
	if len(created) != 1 || created[0].DraftID != draft.ID {
		t.Errorf("created notifications = %+v, want one for %s", created, draft.ID)
	}
	if created[0].ID == "" || created[0].At.IsZero() {
		t.Error("notification should carry an id and a timestamp")
	}
}

func TestCreate_RequiresPrivilege(t *testing.T) {
	h := newHarness(t)

	_, err := h.drafts.Create(context.Background(), caller(userA), domain.ShipmentFields{})
	if !errors.Is(err, domain.ErrPrivilegeRequired) {
		t.Errorf("error = %v, want ErrPrivilegeRequired", err)
	}
}

func TestLock_ContentionThenTakeover(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedDraft(t, "TEMP-ABC-001", domain.ShipmentFields{})

	h.mustLock(t, "TEMP-ABC-001", userA)

	h.clock.Advance(9 * time.Minute)
	_, err := h.drafts.Lock(ctx, caller(userB), "TEMP-ABC-001")
	var locked *domain.AlreadyLockedError
	if !errors.As(err, &locked) {
		t.Fatalf("error = %v, want AlreadyLockedError", err)
	}
	if locked.Holder != userA || !locked.LockedAt.Equal(t0) {
		t.Errorf("AlreadyLocked = %+v, want holder %d since %v", locked, userA, t0)
	}

	h.clock.Advance(time.Minute)
	draft, err := h.drafts.Lock(ctx, caller(userB), "TEMP-ABC-001")
	if err != nil {
		t.Fatalf("takeover after TTL failed: %v", err)
	}
	if !draft.HeldBy(userB) {
		t.Errorf("holder = %v, want %d", draft.LockedBy, userB)
	}
	if n := len(h.notes.ofType(domain.NotifyLocked)); n != 2 {
		t.Errorf("locked notifications = %d, want 2", n)
	}
}

func TestLock_SameHolderRefreshes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedDraft(t, "TEMP-ABC-001", domain.ShipmentFields{})

	h.mustLock(t, "TEMP-ABC-001", userA)
	h.clock.Advance(8 * time.Minute)
	h.mustLock(t, "TEMP-ABC-001", userA)

	// The refreshed lease is measured from the second lock.
	h.clock.Advance(8 * time.Minute)
	if _, err := h.drafts.Lock(ctx, caller(userB), "TEMP-ABC-001"); domain.KindOf(err) != domain.KindAlreadyLocked {
		t.Errorf("error = %v, want AlreadyLocked", err)
	}
}

func TestLock_NotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.drafts.Lock(context.Background(), caller(userA), "TEMP-MISSING")
	if !errors.Is(err, domain.ErrDraftNotFound) {
		t.Errorf("error = %v, want ErrDraftNotFound", err)
	}
}

func TestUnlock_NonHolder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedDraft(t, "TEMP-ABC-001", domain.ShipmentFields{})
	h.mustLock(t, "TEMP-ABC-001", userA)

	err := h.drafts.Unlock(ctx, caller(userB), "TEMP-ABC-001")
	var notHolder *domain.NotHolderError
	if !errors.As(err, &notHolder) {
		t.Fatalf("error = %v, want NotHolderError", err)
	}
	if notHolder.Holder == nil || *notHolder.Holder != userA {
		t.Errorf("Holder = %v, want %d", notHolder.Holder, userA)
	}

	draft, _ := h.drafts.Get(ctx, caller(userA), "TEMP-ABC-001")
	if !draft.HeldBy(userA) {
		t.Error("lease should be unchanged after a rejected unlock")
	}

	if err := h.drafts.Unlock(ctx, caller(userA), "TEMP-ABC-001"); err != nil {
		t.Fatalf("Unlock by holder failed: %v", err)
	}
	// Unlocking a free draft is rejected rather than ignored.
	wantKind(t, h.drafts.Unlock(ctx, caller(userA), "TEMP-ABC-001"), domain.KindNotHolder)
}

func TestForceUnlock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedDraft(t, "TEMP-ABC-001", domain.ShipmentFields{})
	h.mustLock(t, "TEMP-ABC-001", userA)

	if err := h.drafts.ForceUnlock(ctx, caller(userB), "TEMP-ABC-001"); !errors.Is(err, domain.ErrPrivilegeRequired) {
		t.Errorf("non-admin error = %v, want ErrPrivilegeRequired", err)
	}
	if err := h.drafts.ForceUnlock(ctx, caller(admin), "TEMP-ABC-001"); err != nil {
		t.Fatalf("ForceUnlock failed: %v", err)
	}

	unlocked := h.notes.ofType(domain.NotifyUnlocked)
	if len(unlocked) != 1 || !unlocked[0].Forced || unlocked[0].Actor != admin {
		t.Errorf("unlocked notifications = %+v, want one forced by admin", unlocked)
	}

	if err := h.drafts.ForceUnlock(ctx, caller(admin), "TEMP-ABC-001"); !errors.Is(err, domain.ErrNotLocked) {
		t.Errorf("second ForceUnlock error = %v, want ErrNotLocked", err)
	}
}

func TestCheckLock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedDraft(t, "TEMP-ABC-001", domain.ShipmentFields{})

	status, err := h.drafts.CheckLock(ctx, caller(userB), "TEMP-ABC-001")
	if err != nil {
		t.Fatalf("CheckLock failed: %v", err)
	}
	if status.IsLocked || status.WasLocked {
		t.Errorf("status = %+v, want free", status)
	}

	h.mustLock(t, "TEMP-ABC-001", userA)
	h.clock.Advance(3 * time.Minute)

	status, _ = h.drafts.CheckLock(ctx, caller(userB), "TEMP-ABC-001")
	if !status.IsLocked || status.Holder == nil || *status.Holder != userA {
		t.Errorf("status = %+v, want held by %d", status, userA)
	}
	if status.LockedAgo != 3*time.Minute {
		t.Errorf("LockedAgo = %v, want 3m", status.LockedAgo)
	}
}

func TestCheckLock_ClearsStaleLease(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedDraft(t, "TEMP-ABC-001", domain.ShipmentFields{})
	h.mustLock(t, "TEMP-ABC-001", userA)

	h.clock.Advance(11 * time.Minute)
	status, err := h.drafts.CheckLock(ctx, caller(userB), "TEMP-ABC-001")
	if err != nil {
		t.Fatalf("CheckLock failed: %v", err)
	}
	if status.IsLocked || !status.WasLocked {
		t.Errorf("status = %+v, want cleared with WasLocked", status)
	}

	auto := h.notes.ofType(domain.NotifyAutoUnlocked)
	if len(auto) != 1 || auto[0].Count != 1 || auto[0].DraftIDs[0] != "TEMP-ABC-001" {
		t.Errorf("autoUnlocked notifications = %+v, want one for the draft", auto)
	}

	draft, _ := h.drafts.Get(ctx, caller(userB), "TEMP-ABC-001")
	if draft.Locked {
		t.Error("stale lease should be cleared in the store")
	}
}

func TestList_Visibility(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedDraft(t, "TEMP-FREE", domain.ShipmentFields{})
	h.seedDraft(t, "TEMP-MINE", domain.ShipmentFields{})
	h.seedDraft(t, "TEMP-THEIRS", domain.ShipmentFields{})
	h.mustLock(t, "TEMP-MINE", userA)
	h.mustLock(t, "TEMP-THEIRS", userB)

	got, err := h.drafts.List(ctx, caller(userA))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	ids := map[string]bool{}
	for _, d := range got {
		ids[d.ID] = true
	}
	if len(got) != 2 || !ids["TEMP-FREE"] || !ids["TEMP-MINE"] {
		t.Errorf("List = %v, want TEMP-FREE and TEMP-MINE", ids)
	}

	h.clock.Advance(10 * time.Minute)
	got, _ = h.drafts.List(ctx, caller(userA))
	if len(got) != 3 {
		t.Errorf("after TTL List returned %d drafts, want 3", len(got))
	}
}

func TestUpdate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedDraft(t, "TEMP-ABC-001", domain.ShipmentFields{TruckNumber: "OLD"})
	h.mustLock(t, "TEMP-ABC-001", userA)

	_, err := h.drafts.Update(ctx, caller(admin), "TEMP-ABC-001", domain.ShipmentFields{TruckNumber: "NEW"})
	wantKind(t, err, domain.KindAlreadyLocked)

	if err := h.drafts.Unlock(ctx, caller(userA), "TEMP-ABC-001"); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	draft, err := h.drafts.Update(ctx, caller(admin), "TEMP-ABC-001", domain.ShipmentFields{TruckNumber: "NEW"})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if draft.Fields.TruckNumber != "NEW" {
		t.Errorf("TruckNumber = %q, want NEW", draft.Fields.TruckNumber)
	}
	if n := len(h.notes.ofType(domain.NotifyUpdated)); n != 1 {
		t.Errorf("updated notifications = %d, want 1", n)
	}
}

func TestDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedDraft(t, "TEMP-ABC-001", domain.ShipmentFields{})
	h.mustLock(t, "TEMP-ABC-001", userA)

	if err := h.drafts.Delete(ctx, caller(userA), "TEMP-ABC-001"); !errors.Is(err, domain.ErrPrivilegeRequired) {
		t.Errorf("non-admin error = %v, want ErrPrivilegeRequired", err)
	}
	if err := h.drafts.Delete(ctx, caller(admin), "TEMP-ABC-001"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := h.drafts.Get(ctx, caller(admin), "TEMP-ABC-001"); !errors.Is(err, domain.ErrDraftNotFound) {
		t.Errorf("Get after delete error = %v, want ErrDraftNotFound", err)
	}
	if n := len(h.notes.ofType(domain.NotifyDeleted)); n != 1 {
		t.Errorf("deleted notifications = %d, want 1", n)
	}
}

func TestSubscribe_SnapshotHidesLiveLeases(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedDraft(t, "TEMP-FREE", domain.ShipmentFields{})
	h.seedDraft(t, "TEMP-HELD", domain.ShipmentFields{})
	h.mustLock(t, "TEMP-HELD", userA)

	sub, err := h.drafts.Subscribe(ctx, caller(userA))
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	snap := <-sub.Events()
	if snap.Type != domain.NotifySnapshot || h.subs.tenantID != company {
		t.Fatalf("first event = %+v, want a snapshot for company %d", snap, company)
	}
	if len(snap.Drafts) != 1 || snap.Drafts[0].ID != "TEMP-FREE" {
		t.Errorf("snapshot drafts = %+v, want only TEMP-FREE", snap.Drafts)
	}
}

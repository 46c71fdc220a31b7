package river_test

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goriver "github.com/riverqueue/river"

	_ "modernc.org/sqlite"

	riveradapter "github.com/anees-mohamed-ar/logistic/internal/adapter/river"
	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

// --- Fakes ---

type fakeRecorder struct {
	mu       sync.Mutex
	consumed []domain.Consumption
}

func (f *fakeRecorder) RecordConsumption(_ context.Context, c domain.Consumption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumed = append(f.consumed, c)
	return nil
}

type fakeRecords struct {
	records map[string]domain.PermanentRecord
}

func (f *fakeRecords) CreateRecord(_ context.Context, r domain.PermanentRecord) error {
	f.records[r.Number] = r
	return nil
}

func (f *fakeRecords) GetRecord(_ context.Context, _ int64, number string) (domain.PermanentRecord, error) {
	r, ok := f.records[number]
	if !ok {
		return domain.PermanentRecord{}, domain.ErrRecordNotFound
	}
	return r, nil
}

func (f *fakeRecords) RecordExists(_ context.Context, _ int64, number string) (bool, error) {
	_, ok := f.records[number]
	return ok, nil
}

type fakeSink struct {
	mu   sync.Mutex
	sent []domain.PermanentRecord
}

func (f *fakeSink) Send(_ context.Context, r domain.PermanentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, r)
	return nil
}

type countingTicker struct {
	ticks atomic.Int32
}

func (c *countingTicker) Tick(context.Context) { c.ticks.Add(1) }

// --- Helpers ---

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := t.TempDir() + "/river_test.db"
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		t.Fatalf("setting WAL: %v", err)
	}

	return db
}

func startClient(t *testing.T, cfg riveradapter.Config, kinds ...goriver.EventKind) (*riveradapter.Client, <-chan *goriver.Event) {
	t.Helper()
	ctx := context.Background()

	client, err := riveradapter.Setup(ctx, setupTestDB(t), cfg)
	if err != nil {
		t.Fatalf("river setup: %v", err)
	}

	// Subscribe before starting so we don't miss events.
	events, cancel := client.Subscribe(kinds...)
	t.Cleanup(cancel)

	if err := client.Start(ctx); err != nil {
		t.Fatalf("river start: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Stop(stopCtx); err != nil {
			t.Errorf("river stop: %v", err)
		}
	})
	return client, events
}

func waitForJob(t *testing.T, events <-chan *goriver.Event, kind string) *goriver.Event {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case event := <-events:
			if event.Job.Kind == kind {
				return event
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s job", kind)
			return nil
		}
	}
}

// --- Tests ---

func TestPublisher_NumberConsumed_RecordsAndExports(t *testing.T) {
	recorder := &fakeRecorder{}
	sink := &fakeSink{}
	records := &fakeRecords{records: map[string]domain.PermanentRecord{
		"100": {Number: "100", TenantID: 5, DraftID: "TEMP-A"},
	}}
	client, events := startClient(t, riveradapter.Config{
		Recorder: recorder,
		Records:  records,
		Sink:     sink,
	}, goriver.EventKindJobCompleted)

	pub := riveradapter.NewPublisher(client)
	consumed := domain.Consumption{TenantID: 5, OwnerID: 2, Number: "100", DraftID: "TEMP-A", ConsumedAt: time.Now().UTC()}
	if err := pub.NumberConsumed(context.Background(), consumed); err != nil {
		t.Fatalf("NumberConsumed failed: %v", err)
	}

	event := waitForJob(t, events, "number.consumed")

	// The args are stored as JSON; verify key fields are present.
	args := string(event.Job.EncodedArgs)
	for _, want := range []string{`"tenant_id":5`, `"owner_id":2`, `"number":"100"`, `"draft_id":"TEMP-A"`} {
		if !strings.Contains(args, want) {
			t.Errorf("encoded args missing %s, got: %s", want, args)
		}
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.consumed) != 1 || recorder.consumed[0].Number != "100" {
		t.Errorf("recorded = %+v, want number 100", recorder.consumed)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.sent) != 1 || sink.sent[0].DraftID != "TEMP-A" {
		t.Errorf("exported = %+v, want the record of TEMP-A", sink.sent)
	}
}

func TestPublisher_NumberConsumed_MissingRecordCancels(t *testing.T) {
	client, events := startClient(t, riveradapter.Config{
		Recorder: &fakeRecorder{},
		Records:  &fakeRecords{records: map[string]domain.PermanentRecord{}},
		Sink:     &fakeSink{},
	}, goriver.EventKindJobCancelled)

	pub := riveradapter.NewPublisher(client)
	if err := pub.NumberConsumed(context.Background(), domain.Consumption{TenantID: 5, Number: "404"}); err != nil {
		t.Fatalf("NumberConsumed failed: %v", err)
	}

	waitForJob(t, events, "number.consumed")
}

func TestSetup_SchedulesSweep(t *testing.T) {
	ticker := &countingTicker{}
	_, events := startClient(t, riveradapter.Config{
		Recorder:      &fakeRecorder{},
		Records:       &fakeRecords{records: map[string]domain.PermanentRecord{}},
		Sweeper:       ticker,
		SweepInterval: time.Hour,
	}, goriver.EventKindJobCompleted)

	waitForJob(t, events, "lease.sweep")

	if got := ticker.ticks.Load(); got < 1 {
		t.Errorf("ticks = %d, want at least 1", got)
	}
}

package database

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func TestStore_ServiceStateRoundTrip(t *testing.T) {
	store := NewStore(setupTestDB(t))
	now := time.Now().UTC().Truncate(time.Second)

	state := &ServiceState{
		ServiceID:            "api",
		State:                "down",
		ConsecutiveFailures:  3,
		ConsecutiveSuccesses: 0,
		LastTransition:       &now,
		LastDetail:           "connection refused",
		LatenciesMs:          Int64List{12, 15, 900},
		IncidentUUID:         "11111111-1111-1111-1111-111111111111",
		IncidentAttempts:     2,
		RestartWindow:        TimeList{now.Add(-30 * time.Minute), now.Add(-5 * time.Minute)},
		RateLimitAlerted:     true,
	}
	if err := store.SaveServiceState(state); err != nil {
		t.Fatalf("SaveServiceState failed: %v", err)
	}

	loaded, err := store.GetServiceState("api")
	if err != nil {
		t.Fatalf("GetServiceState failed: %v", err)
	}
	if loaded.State != "down" || loaded.ConsecutiveFailures != 3 {
		t.Errorf("status fields mismatch: %+v", loaded)
	}
	if loaded.IncidentAttempts != 2 {
		t.Errorf("expected restart counter 2, got %d", loaded.IncidentAttempts)
	}
	if len(loaded.RestartWindow) != 2 ||
		!loaded.RestartWindow[0].Equal(state.RestartWindow[0]) ||
		!loaded.RestartWindow[1].Equal(state.RestartWindow[1]) {
		t.Errorf("failure window mismatch: %v", loaded.RestartWindow)
	}
	if len(loaded.LatenciesMs) != 3 || loaded.LatenciesMs[2] != 900 {
		t.Errorf("latency samples mismatch: %v", loaded.LatenciesMs)
	}
	if !loaded.RateLimitAlerted {
		t.Error("expected rate-limit episode flag to persist")
	}
}

func TestStore_SaveServiceStateUpserts(t *testing.T) {
	store := NewStore(setupTestDB(t))

	if err := store.SaveServiceState(&ServiceState{ServiceID: "api", State: "operational"}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveServiceState(&ServiceState{ServiceID: "api", State: "down"}); err != nil {
		t.Fatal(err)
	}

	states, err := store.GetServiceStates()
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 1 {
		t.Fatalf("expected 1 row after upsert, got %d", len(states))
	}
	if states[0].State != "down" {
		t.Errorf("expected updated state down, got %q", states[0].State)
	}
}

func TestStore_RestartAttempts(t *testing.T) {
	store := NewStore(setupTestDB(t))
	now := time.Now()

	for i, outcome := range []AttemptOutcome{AttemptOutcomeFailure, AttemptOutcomeFailure, AttemptOutcomeSuccess} {
		executed := now.Add(time.Duration(i) * time.Minute)
		if err := store.RecordRestartAttempt(&RestartAttempt{
			ServiceID:    "api",
			IncidentUUID: "inc-1",
			AttemptIndex: i + 1,
			ScheduledAt:  now,
			ExecutedAt:   &executed,
			Outcome:      outcome,
		}); err != nil {
			t.Fatal(err)
		}
	}

	attempts, err := store.GetIncidentAttempts("inc-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(attempts))
	}
	if attempts[0].AttemptIndex != 1 || attempts[2].Outcome != AttemptOutcomeSuccess {
		t.Errorf("attempt ordering or outcomes wrong: %+v", attempts)
	}

	recent, err := store.GetRestartAttempts("api", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].AttemptIndex != 3 {
		t.Errorf("expected newest-first limited list, got %+v", recent)
	}
}

func TestStore_AlertGroupLifecycle(t *testing.T) {
	store := NewStore(setupTestDB(t))
	now := time.Now().UTC().Truncate(time.Second)

	g := &AlertGroup{
		UUID:          "22222222-2222-2222-2222-222222222222",
		RootServiceID: "db",
		Members:       StringList{"db", "api", "web"},
		Status:        AlertGroupStatusOpen,
		FirstSeen:     now,
		LastSeen:      now,
	}
	if err := store.SaveAlertGroup(g); err != nil {
		t.Fatal(err)
	}

	open, err := store.GetOpenAlertGroups()
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 || open[0].RootServiceID != "db" {
		t.Fatalf("expected one open group rooted at db, got %+v", open)
	}
	if len(open[0].Members) != 3 {
		t.Errorf("member set did not round-trip: %v", open[0].Members)
	}

	acked, err := store.AcknowledgeAlertGroup(g.UUID, "oncall", now)
	if err != nil {
		t.Fatal(err)
	}
	if !acked.Acknowledged() || acked.AckedBy != "oncall" {
		t.Errorf("acknowledgment did not persist: %+v", acked)
	}

	// Archive and confirm it leaves the open set but is never deleted.
	closed := now.Add(time.Minute)
	acked.Status = AlertGroupStatusArchived
	acked.ClosedAt = &closed
	if err := store.SaveAlertGroup(acked); err != nil {
		t.Fatal(err)
	}

	open, err = store.GetOpenAlertGroups()
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 0 {
		t.Errorf("archived group still reported open: %+v", open)
	}

	all, err := store.ListAlertGroups(true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("archived group must remain stored, got %d rows", len(all))
	}
}

func TestStore_MaintenanceWindows(t *testing.T) {
	store := NewStore(setupTestDB(t))
	now := time.Now()

	w := &MaintenanceWindow{
		Scope:           StringList{"db"},
		StartsAt:        now.Add(-time.Minute),
		DurationSeconds: 3600,
		CreatedBy:       "oncall",
	}
	if err := store.CreateMaintenanceWindow(w); err != nil {
		t.Fatal(err)
	}

	windows, err := store.GetMaintenanceWindows()
	if err != nil {
		t.Fatal(err)
	}
	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}
	if !windows[0].ActiveAt(now) || !windows[0].Covers("db") {
		t.Error("stored window should be active for db now")
	}

	ended := now
	windows[0].EndedAt = &ended
	if err := store.SaveMaintenanceWindow(&windows[0]); err != nil {
		t.Fatal(err)
	}
	windows, _ = store.GetMaintenanceWindows()
	if windows[0].ActiveAt(now.Add(time.Second)) {
		t.Error("ended window must not be active")
	}
}

func TestGetOrCreateMonitorSettings_Singleton(t *testing.T) {
	db := setupTestDB(t)

	first, err := GetOrCreateMonitorSettings(db)
	if err != nil {
		t.Fatal(err)
	}
	if !first.AutoRestartEnabled {
		t.Error("expected default AutoRestartEnabled true")
	}

	first.AutoRestartEnabled = false
	if err := UpdateMonitorSettings(db, first); err != nil {
		t.Fatal(err)
	}

	second, err := GetOrCreateMonitorSettings(db)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Error("expected singleton row")
	}
	if second.AutoRestartEnabled {
		t.Error("expected persisted AutoRestartEnabled false")
	}
}

func TestVerifyWritable(t *testing.T) {
	db := setupTestDB(t)
	if err := VerifyWritable(db); err != nil {
		t.Errorf("in-memory store should be writable: %v", err)
	}
}

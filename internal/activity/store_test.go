package activity

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "activity.db")
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&CommunityConfig{}, &WeeklyCount{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	store, err := NewStore(StoreConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestNewStoreRequiresDatabase(t *testing.T) {
	_, err := NewStore(StoreConfig{})
	var storeErr *StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if storeErr.Code() != "activity.store.new.missing_database" {
		t.Fatalf("unexpected code %s", storeErr.Code())
	}
}

func TestGetConfigReturnsNilWhenAbsent(t *testing.T) {
	store := newTestStore(t)
	cfg, err := store.GetConfig(context.Background(), "guild-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Fatalf("expected nil config, got %+v", cfg)
	}
}

func TestEnsureConfigCreatesDefaultsOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	defaults := Defaults{Threshold: 10, Timezone: "UTC", WeekStart: "MONDAY"}

	created, err := store.EnsureConfig(ctx, "guild-1", defaults)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if created.Threshold != 10 || created.Timezone != "UTC" || created.WeekStart != "MONDAY" || created.HasRole() {
		t.Fatalf("unexpected defaults %+v", created)
	}

	role := "role-9"
	if err := store.UpsertConfig(ctx, CommunityConfig{
		CommunityID: "guild-1",
		RoleID:      &role,
		Threshold:   3,
		Timezone:    "Asia/Kolkata",
		WeekStart:   "SUNDAY",
	}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	again, err := store.EnsureConfig(ctx, "guild-1", defaults)
	if err != nil {
		t.Fatalf("second ensure failed: %v", err)
	}
	if again.Role() != "role-9" || again.Threshold != 3 || again.WeekStart != "SUNDAY" {
		t.Fatalf("ensure must not overwrite an existing config, got %+v", again)
	}
}

func TestEnsureConfigFillsEmptyDefaults(t *testing.T) {
	store := newTestStore(t)

	created, err := store.EnsureConfig(context.Background(), "guild-1", Defaults{Timezone: "  "})
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if created.Timezone != "UTC" || created.WeekStart != "MONDAY" || created.Threshold != DefaultThreshold {
		t.Fatalf("unexpected defaults %+v", created)
	}
}

func TestUpsertConfigOverwritesEveryField(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	role := "role-1"
	if err := store.UpsertConfig(ctx, CommunityConfig{
		CommunityID: "guild-1",
		RoleID:      &role,
		Threshold:   25,
		Timezone:    "Europe/Berlin",
		WeekStart:   "SUNDAY",
	}); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if err := store.UpsertConfig(ctx, CommunityConfig{
		CommunityID: "guild-1",
		Threshold:   5,
		Timezone:    "UTC",
		WeekStart:   "MONDAY",
	}); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	stored, err := store.GetConfig(ctx, "guild-1")
	if err != nil || stored == nil {
		t.Fatalf("expected stored config, got %v / %v", stored, err)
	}
	if stored.HasRole() {
		t.Fatalf("expected role to be cleared by full overwrite, got %q", stored.Role())
	}
	if stored.Threshold != 5 || stored.Timezone != "UTC" || stored.WeekStart != "MONDAY" {
		t.Fatalf("unexpected stored config %+v", stored)
	}

	configs, err := store.ListConfigs(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(configs) != 1 {
		t.Fatalf("expected exactly one config row, got %d", len(configs))
	}
}

func TestIncrementCountCreatesThenIncrements(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := store.IncrementCount(ctx, "guild-1", "member-a", "2025-08-11"); err != nil {
			t.Fatalf("increment failed: %v", err)
		}
	}
	if err := store.IncrementCount(ctx, "guild-1", "member-a", "2025-08-04"); err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if err := store.IncrementCount(ctx, "guild-2", "member-a", "2025-08-11"); err != nil {
		t.Fatalf("increment failed: %v", err)
	}

	counts, err := store.GetCounts(ctx, "guild-1", "2025-08-11")
	if err != nil {
		t.Fatalf("get counts failed: %v", err)
	}
	if len(counts) != 1 || counts[0].MemberID != "member-a" || counts[0].Count != 3 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

func TestIncrementCountRejectsEmptyMember(t *testing.T) {
	store := newTestStore(t)
	err := store.IncrementCount(context.Background(), "guild-1", " ", "2025-08-11")
	if !errors.Is(err, ErrInvalidMemberID) {
		t.Fatalf("expected ErrInvalidMemberID, got %v", err)
	}
}

func TestIncrementCountConcurrentBurstLosesNothing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	const increments = 64

	var wg sync.WaitGroup
	errs := make(chan error, increments)
	for i := 0; i < increments; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.IncrementCount(ctx, "guild-1", "member-a", "2025-08-11")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent increment failed: %v", err)
		}
	}

	counts, err := store.GetCounts(ctx, "guild-1", "2025-08-11")
	if err != nil {
		t.Fatalf("get counts failed: %v", err)
	}
	if len(counts) != 1 || counts[0].Count != increments {
		t.Fatalf("expected %d, got %+v", increments, counts)
	}
}

func TestGetTopNOrdersDeterministically(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tallies := map[string]int{
		"member-c": 5,
		"member-a": 5,
		"member-b": 9,
		"member-d": 1,
	}
	for member, count := range tallies {
		for i := 0; i < count; i++ {
			if err := store.IncrementCount(ctx, "guild-1", member, "2025-08-11"); err != nil {
				t.Fatalf("increment failed: %v", err)
			}
		}
	}

	top, err := store.GetTopN(ctx, "guild-1", "2025-08-11", 3)
	if err != nil {
		t.Fatalf("top n failed: %v", err)
	}
	got := fmt.Sprint(top)
	expected := "[{member-b 9} {member-a 5} {member-c 5}]"
	if got != expected {
		t.Fatalf("expected %s, got %s", expected, got)
	}

	repeat, err := store.GetTopN(ctx, "guild-1", "2025-08-11", 3)
	if err != nil {
		t.Fatalf("repeat top n failed: %v", err)
	}
	if fmt.Sprint(repeat) != expected {
		t.Fatalf("expected stable order, got %v", repeat)
	}

	empty, err := store.GetTopN(ctx, "guild-1", "2025-08-11", 0)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty result for n=0, got %v / %v", empty, err)
	}
}

package cache

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"punchcard-labs/timeclock/internal/models"
)

func TestMemberCache_FirstPunchCreatesMember(t *testing.T) {
	db := setupTestDB(t)
	mc := NewMemberCache(db, nil)

	member, err := mc.AddPunchEvent(context.Background(), "G1", "M1", 100)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if !member.OnDuty {
		t.Error("Expected member on duty after the first punch")
	}
	if len(member.Times) != 1 {
		t.Fatalf("Expected one interval, got %d", len(member.Times))
	}
	if member.Times[0].PunchIn != 100 || member.Times[0].PunchOut != nil {
		t.Errorf("Expected an open interval at 100, got %+v", member.Times[0])
	}
	if member.GuildID != "G1" {
		t.Errorf("Expected guild id G1, got %s", member.GuildID)
	}
}

func TestMemberCache_PunchScenario(t *testing.T) {
	db := setupTestDB(t)
	mc := NewMemberCache(db, nil)
	ctx := context.Background()

	// Punch in at 100, out at 160, back in at 200.
	if _, err := mc.AddPunchEvent(ctx, "G1", "M1", 100); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	member, err := mc.AddPunchEvent(ctx, "G1", "M1", 160)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if member.OnDuty {
		t.Error("Expected member off duty after the second punch")
	}
	if len(member.Times) != 1 {
		t.Fatalf("Expected one interval, got %d", len(member.Times))
	}
	if member.Times[0].PunchOut == nil || *member.Times[0].PunchOut != 160 {
		t.Errorf("Expected the interval closed at 160, got %+v", member.Times[0])
	}
	if got := member.Times[0].Duration().Seconds(); got != 60 {
		t.Errorf("Expected a 60s interval, got %v", got)
	}

	member, err = mc.AddPunchEvent(ctx, "G1", "M1", 200)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !member.OnDuty {
		t.Error("Expected member on duty after the third punch")
	}
	if len(member.Times) != 2 {
		t.Fatalf("Expected two intervals, got %d", len(member.Times))
	}
	if member.Times[0].PunchOut == nil || *member.Times[0].PunchOut != 160 {
		t.Errorf("Expected the first interval untouched, got %+v", member.Times[0])
	}
	if member.Times[1].PunchIn != 200 || member.Times[1].PunchOut != nil {
		t.Errorf("Expected a new open interval at 200, got %+v", member.Times[1])
	}
}

func TestMemberCache_PunchAlternation(t *testing.T) {
	db := setupTestDB(t)
	mc := NewMemberCache(db, nil)
	ctx := context.Background()

	// Duty flag and open-interval count stay in lock-step across any run of
	// punches; N punches produce ceil(N/2) intervals.
	const punches = 7
	var member *models.Member
	for n := 1; n <= punches; n++ {
		var err error
		member, err = mc.AddPunchEvent(ctx, "G1", "M1", float64(n*100))
		if err != nil {
			t.Fatalf("Punch %d: expected no error, got %v", n, err)
		}

		open := 0
		for i := range member.Times {
			if member.Times[i].Open() {
				open++
			}
		}
		if open > 1 {
			t.Fatalf("Punch %d: expected at most one open interval, got %d", n, open)
		}
		if member.OnDuty != (open == 1) {
			t.Fatalf("Punch %d: duty flag %t disagrees with %d open intervals", n, member.OnDuty, open)
		}

		want := (n + 1) / 2
		if len(member.Times) != want {
			t.Fatalf("Punch %d: expected %d intervals, got %d", n, want, len(member.Times))
		}
	}
}

func TestMemberCache_PunchAfterOverrideOpensNewInterval(t *testing.T) {
	db := setupTestDB(t)
	mc := NewMemberCache(db, nil)
	ctx := context.Background()

	// Close out a normal shift, then force the flag back on. The next punch
	// must open a fresh interval instead of re-closing history.
	if _, err := mc.AddPunchEvent(ctx, "G1", "M1", 100); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := mc.AddPunchEvent(ctx, "G1", "M1", 160); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := mc.UpdateMember(ctx, "M1", boolPtr(true)); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	member, err := mc.AddPunchEvent(ctx, "G1", "M1", 200)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(member.Times) != 2 {
		t.Fatalf("Expected a second interval, got %d", len(member.Times))
	}
	if member.Times[0].PunchOut == nil || *member.Times[0].PunchOut != 160 {
		t.Errorf("Expected the closed interval untouched, got %+v", member.Times[0])
	}
	if !member.Times[1].Open() || member.Times[1].PunchIn != 200 {
		t.Errorf("Expected a new open interval at 200, got %+v", member.Times[1])
	}
}

func TestMemberCache_UpdateMember(t *testing.T) {
	db := setupTestDB(t)
	mc := NewMemberCache(db, nil)
	ctx := context.Background()

	err := mc.UpdateMember(ctx, "M1", boolPtr(true))
	if !IsNotFound(err) {
		t.Fatalf("Expected NotFoundError for a missing member, got %v", err)
	}

	if _, err := mc.AddPunchEvent(ctx, "G1", "M1", 100); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := mc.UpdateMember(ctx, "M1", boolPtr(false)); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	member, err := mc.GetMember(ctx, "M1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if member.OnDuty {
		t.Error("Expected the override to clear the duty flag")
	}
	// Override touches only the flag; the open interval survives.
	if member.OpenTime() == nil {
		t.Error("Expected the open interval untouched by the override")
	}
}

func TestMemberCache_RemoveTime(t *testing.T) {
	db := setupTestDB(t)
	mc := NewMemberCache(db, nil)
	ctx := context.Background()

	// Missing member is a no-op.
	if err := mc.RemoveTime(ctx, "M1", 42); err != nil {
		t.Fatalf("Expected no-op for a missing member, got %v", err)
	}

	if _, err := mc.AddPunchEvent(ctx, "G1", "M1", 100); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	member, err := mc.AddPunchEvent(ctx, "G1", "M1", 160)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	timeID := member.Times[0].ID

	// Missing interval is a no-op.
	if err := mc.RemoveTime(ctx, "M1", timeID+999); err != nil {
		t.Fatalf("Expected no-op for a missing interval, got %v", err)
	}

	if err := mc.RemoveTime(ctx, "M1", timeID); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	member, err = mc.GetMember(ctx, "M1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(member.Times) != 0 {
		t.Errorf("Expected the interval deleted, got %+v", member.Times)
	}

	var count int64
	db.Model(&models.Time{}).Count(&count)
	if count != 0 {
		t.Errorf("Expected no interval rows, got %d", count)
	}
}

func TestMemberCache_GetMembersByGuild(t *testing.T) {
	db := setupTestDB(t)
	mc := NewMemberCache(db, nil)
	ctx := context.Background()

	if _, err := mc.AddPunchEvent(ctx, "G1", "M1", 100); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := mc.AddPunchEvent(ctx, "G1", "M2", 110); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := mc.AddPunchEvent(ctx, "G2", "M3", 120); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	members, err := mc.GetMembers(ctx, "G1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("Expected two members in G1, got %d", len(members))
	}
	if members[0].ID != "M1" || members[1].ID != "M2" {
		t.Errorf("Expected [M1 M2] ordered by id, got %+v", members)
	}

	all, err := mc.GetMembers(ctx, "")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected three members overall, got %d", len(all))
	}
}

func TestMemberCache_GetMembersFallsBackToStore(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seed := models.Member{ID: "M1", GuildID: "G1", Times: []models.Time{{PunchIn: 100}}}
	if err := db.Create(&seed).Error; err != nil {
		t.Fatalf("Failed to seed member: %v", err)
	}

	// A cold cache must still answer from the store.
	mc := NewMemberCache(db, nil)
	members, err := mc.GetMembers(ctx, "G1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(members) != 1 || len(members[0].Times) != 1 {
		t.Fatalf("Expected the seeded member with its interval, got %+v", members)
	}
}

func TestMemberCache_GetMemberAbsent(t *testing.T) {
	db := setupTestDB(t)
	mc := NewMemberCache(db, nil)

	member, err := mc.GetMember(context.Background(), "M1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if member != nil {
		t.Fatalf("Expected absent member, got %+v", member)
	}
}

func TestMemberCache_RemoveMember(t *testing.T) {
	db := setupTestDB(t)
	mc := NewMemberCache(db, nil)
	ctx := context.Background()

	if _, err := mc.AddPunchEvent(ctx, "G1", "M1", 100); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if err := mc.RemoveMember(ctx, "M1"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var members, times int64
	db.Model(&models.Member{}).Count(&members)
	db.Model(&models.Time{}).Count(&times)
	if members != 0 || times != 0 {
		t.Errorf("Expected member and intervals deleted, got %d members, %d times", members, times)
	}

	member, err := mc.GetMember(ctx, "M1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if member != nil {
		t.Errorf("Expected no cached member after removal, got %+v", member)
	}

	if err := mc.RemoveMember(ctx, "M1"); err != nil {
		t.Errorf("Expected no-op for a missing member, got %v", err)
	}
}

func TestMemberCache_ConcurrentPunchesKeepInvariant(t *testing.T) {
	// A file-backed store shared across connections, so the two punches
	// really run in parallel transactions.
	path := filepath.Join(t.TempDir(), "timeclock.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	err = db.AutoMigrate(&models.Guild{}, &models.Role{}, &models.Member{}, &models.Time{})
	if err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	mc := NewMemberCache(db, nil)
	ctx := context.Background()

	// An existing off-duty member, so both racers take the locked read path.
	if _, err := mc.AddPunchEvent(ctx, "G1", "M1", 50); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := mc.AddPunchEvent(ctx, "G1", "M1", 60); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for n := range errs {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = mc.AddPunchEvent(ctx, "G1", "M1", float64(100+n))
		}(n)
	}
	wg.Wait()

	// A loser may back out with a busy error; what must never happen is both
	// committing an open interval.
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	if succeeded == 0 {
		t.Fatal("Expected at least one punch to commit")
	}

	var member models.Member
	err = db.
		Preload("Times", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&member, "id = ?", "M1").Error
	if err != nil {
		t.Fatalf("Failed to reload member: %v", err)
	}

	open := 0
	for i := range member.Times {
		if member.Times[i].Open() {
			open++
		}
	}
	if open > 1 {
		t.Fatalf("Expected at most one open interval, got %d", open)
	}
	if member.OnDuty != (open == 1) {
		t.Errorf("Duty flag %t disagrees with %d open intervals", member.OnDuty, open)
	}
}

func TestMemberCache_WriteBeforeCache(t *testing.T) {
	db := setupTestDB(t)
	mc := NewMemberCache(db, nil)
	ctx := context.Background()

	before, err := mc.AddPunchEvent(ctx, "G1", "M1", 100)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get raw connection: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		t.Fatalf("Failed to close connection: %v", err)
	}

	if _, err := mc.AddPunchEvent(ctx, "G1", "M1", 160); err == nil {
		t.Fatal("Expected the punch to fail on a closed store")
	}

	after, err := mc.GetMember(ctx, "M1")
	if err != nil {
		t.Fatalf("Expected a cached read, got %v", err)
	}
	if after != before {
		t.Error("Expected the index unchanged after a failed commit")
	}
	if !after.OnDuty || after.OpenTime() == nil {
		t.Errorf("Expected the pre-failure state (on duty, open interval), got %+v", after)
	}
}

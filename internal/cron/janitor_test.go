package cron

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tunnelbot/internal/config"
	"tunnelbot/internal/models"
	"tunnelbot/internal/repository"
)

func newJanitorFixture(t *testing.T) (*Janitor, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Account{}, &models.Server{}))

	cfg := config.NewStoreWith(&config.Config{
		Janitor: config.JanitorConfig{Grace: 72 * time.Hour},
	})
	j := NewJanitor(
		repository.NewAccountRepository(db),
		repository.NewServerRepository(db),
		cfg,
		zap.NewNop(),
	)
	return j, db
}

func TestPurgeExpired(t *testing.T) {
	j, db := newJanitorFixture(t)

	now := time.Now()
	rows := []models.Account{
		// Expired four days ago: past the 3-day grace window.
		{UserID: "1", Protocol: models.ProtocolSSH, Username: "gone", ExpiresAt: now.Add(-4 * 24 * time.Hour).UnixMilli()},
		// Expired yesterday: inside the grace window.
		{UserID: "1", Protocol: models.ProtocolSSH, Username: "grace", ExpiresAt: now.Add(-24 * time.Hour).UnixMilli()},
		// Still live.
		{UserID: "1", Protocol: models.ProtocolSSH, Username: "live", ExpiresAt: now.Add(24 * time.Hour).UnixMilli()},
		// No tracked expiry: never purged.
		{UserID: "1", Protocol: models.ProtocolSSH, Username: "forever"},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}

	removed, err := j.PurgeExpired()
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	// Idempotent.
	removed, err = j.PurgeExpired()
	require.NoError(t, err)
	assert.Zero(t, removed)

	var usernames []string
	require.NoError(t, db.Model(&models.Account{}).Order("id").Pluck("username", &usernames).Error)
	assert.Equal(t, []string{"grace", "live", "forever"}, usernames)
}

func TestBackfillServerLinks(t *testing.T) {
	j, db := newJanitorFixture(t)

	require.NoError(t, db.Create(&models.Server{Domain: "sg1.example.com", Name: "Singapore 1"}).Error)
	require.NoError(t, db.Create(&models.Server{Domain: "nl1.example.com"}).Error)

	rows := []models.Account{
		// Legacy row whose domain matches a named server.
		{UserID: "1", Protocol: models.ProtocolSSH, Username: "a", Domain: "SG1.Example.com"},
		// Legacy row matching the unnamed server: name falls back to domain.
		{UserID: "1", Protocol: models.ProtocolSSH, Username: "b", Domain: "nl1.example.com"},
		// Legacy row with no matching server: left untouched.
		{UserID: "1", Protocol: models.ProtocolSSH, Username: "c", Domain: "gone.example.com"},
		// Already linked: not a candidate, never downgraded.
		{UserID: "1", Protocol: models.ProtocolSSH, Username: "d", ServerID: 42, ServerName: "Kept", Domain: "sg1.example.com"},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}

	stats, err := j.BackfillServerLinks()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Candidates)
	assert.Equal(t, 2, stats.Updated)
	assert.Equal(t, 0, stats.Failed)

	var got []models.Account
	require.NoError(t, db.Order("id").Find(&got).Error)
	assert.EqualValues(t, 1, got[0].ServerID)
	assert.Equal(t, "Singapore 1", got[0].ServerName)
	assert.EqualValues(t, 2, got[1].ServerID)
	assert.Equal(t, "nl1.example.com", got[1].ServerName)
	assert.Zero(t, got[2].ServerID)
	assert.EqualValues(t, 42, got[3].ServerID)
	assert.Equal(t, "Kept", got[3].ServerName)

	// Running it again changes nothing.
	stats, err = j.BackfillServerLinks()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Candidates)
	assert.Equal(t, 0, stats.Updated)

	var again []models.Account
	require.NoError(t, db.Order("id").Find(&again).Error)
	assert.Equal(t, got, again)
}

func TestBackfillKeepsExistingServerName(t *testing.T) {
	j, db := newJanitorFixture(t)

	require.NoError(t, db.Create(&models.Server{Domain: "sg1.example.com", Name: "Singapore 1"}).Error)
	require.NoError(t, db.Create(&models.Account{
		UserID: "1", Protocol: models.ProtocolSSH, Username: "a",
		Domain: "sg1.example.com", ServerName: "My Label",
	}).Error)

	stats, err := j.BackfillServerLinks()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updated)

	var row models.Account
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, "My Label", row.ServerName)
	assert.EqualValues(t, 1, row.ServerID)
}

func TestSweepsAreSingleFlight(t *testing.T) {
	j, _ := newJanitorFixture(t)

	// Hold the purge flag as if a sweep were still running; a tick must
	// return immediately without sweeping.
	require.True(t, j.purgeActive.CompareAndSwap(false, true))

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		j.RunPurge()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("overlapping purge tick did not return promptly")
	}
	wg.Wait()

	// Flag is still held by the "running" sweep.
	assert.True(t, j.purgeActive.Load())
	j.purgeActive.Store(false)
}

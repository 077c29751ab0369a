package snapshot

import (
	"listing-tracker/internal/models"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestDecide(t *testing.T) {
	last := &models.HistoryEntry{Price: "500 000 €", OpenHouse: "Su 12.5. klo 13:00"}

	tests := []struct {
		name          string
		last          *models.HistoryEntry
		candidate     models.HistoryEntry
		wantAppend    bool
		wantPriceFlag bool
	}{
		{"empty timeline", nil, models.HistoryEntry{Price: "500 000 €"}, true, false},
		{"unchanged", last, models.HistoryEntry{Price: "500 000 €", OpenHouse: "Su 12.5. klo 13:00"}, false, false},
		{"price changed", last, models.HistoryEntry{Price: "480 000 €", OpenHouse: "Su 12.5. klo 13:00"}, true, true},
		{"generic label after specific", last, models.HistoryEntry{Price: "500 000 €", OpenHouse: "Esittely"}, false, false},
		{"new viewing", last, models.HistoryEntry{Price: "500 000 €", OpenHouse: "Su 19.5. klo 13:00"}, true, false},
		{"image only", last, models.HistoryEntry{Price: "500 000 €", OpenHouse: "Su 12.5. klo 13:00", Image: "new.jpg"}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appendEntry, priceChanged := Decide(tt.last, tt.candidate)
			assert.Equal(t, tt.wantAppend, appendEntry)
			assert.Equal(t, tt.wantPriceFlag, priceChanged)
		})
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "snapshot.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.HistoryEntry{}, &models.PriceChange{}))
	return NewService(db)
}

func TestRecordLogsPriceChanges(t *testing.T) {
	svc := newTestService(t)
	l := &models.Listing{ID: "42", Address: "Kettutie 3", Price: "300 000 €", Size: "50 m²"}
	at := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	out, err := svc.Record(l, at)
	require.NoError(t, err)
	assert.True(t, out.Appended)
	assert.Nil(t, out.Change)
	assert.Equal(t, int64(1), out.Entries)

	l.Price = "316 500 €"
	out, err = svc.Record(l, at.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, out.Appended)
	require.NotNil(t, out.Change)
	assert.Equal(t, "16 500 €", out.Change.PriceDifference)
	assert.Equal(t, "5.5%", out.Change.PriceDifferencePct)
	require.NotNil(t, out.First)
	assert.Equal(t, "300 000 €", out.First.Price)

	// open house change appends without a ledger event
	l.OpenHouse = "La 6.1. klo 12:00"
	out, err = svc.Record(l, at.Add(48*time.Hour))
	require.NoError(t, err)
	assert.True(t, out.Appended)
	assert.Nil(t, out.Change)

	n, err := svc.CountChanges()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	history, err := svc.History("42")
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestHistoryUnknownID(t *testing.T) {
	svc := newTestService(t)

	history, err := svc.History("nope")
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)

	all, err := svc.Histories([]string{"nope"})
	require.NoError(t, err)
	assert.Empty(t, all["nope"])
}

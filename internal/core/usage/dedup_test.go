package usage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseflow/courseflow/internal/core"
)

func TestComputeDedupStatsExample(t *testing.T) {
	now := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	t0 := now.AddDate(0, 0, -3)
	files := []core.FileRecord{
		{ID: "f1", ContentHash: "A", SizeBytes: 100, CreatedAt: t0},
		{ID: "f2", ContentHash: "A", SizeBytes: 100, CreatedAt: t0.Add(time.Hour)},
		{ID: "f3", ContentHash: "B", SizeBytes: 50, CreatedAt: t0.Add(2 * time.Hour)},
	}

	stats := ComputeDedupStats(files, now)
	assert.Equal(t, int64(100), stats.TotalSaved)
	assert.Equal(t, 1, stats.DuplicatesPreventedCount)
	require.Len(t, stats.TopDuplicates, 1)
	assert.Equal(t, core.DuplicateGroup{
		Hash:        "A",
		CanonicalID: "f1",
		Count:       2,
		SizeBytes:   100,
		SpaceSaved:  100,
	}, stats.TopDuplicates[0])

	assert.Equal(t, int64(100), stats.LastMonthSaved)
	assert.Equal(t, 1, stats.LastMonthPrevented)
}

func TestComputeDedupStatsCanonicalIsEarliest(t *testing.T) {
	now := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	files := []core.FileRecord{
		{ID: "late", ContentHash: "A", SizeBytes: 300, CreatedAt: now.Add(-time.Hour)},
		{ID: "early", ContentHash: "A", SizeBytes: 200, CreatedAt: now.Add(-2 * time.Hour)},
	}

	stats := ComputeDedupStats(files, now)
	require.Len(t, stats.TopDuplicates, 1)
	assert.Equal(t, "early", stats.TopDuplicates[0].CanonicalID)
	assert.Equal(t, int64(200), stats.TotalSaved)
}

func TestComputeDedupStatsTieKeepsInputOrder(t *testing.T) {
	now := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	ts := now.Add(-time.Hour)
	files := []core.FileRecord{
		{ID: "first", ContentHash: "A", SizeBytes: 10, CreatedAt: ts},
		{ID: "second", ContentHash: "A", SizeBytes: 10, CreatedAt: ts},
		{ID: "third", ContentHash: "A", SizeBytes: 10, CreatedAt: ts},
	}

	stats := ComputeDedupStats(files, now)
	require.Len(t, stats.TopDuplicates, 1)
	assert.Equal(t, "first", stats.TopDuplicates[0].CanonicalID)
	assert.Equal(t, 2, stats.DuplicatesPreventedCount)
	assert.Equal(t, int64(20), stats.TotalSaved)
}

func TestComputeDedupStatsLastMonth(t *testing.T) {
	now := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	old := now.AddDate(0, -2, 0)
	files := []core.FileRecord{
		{ID: "o1", ContentHash: "A", SizeBytes: 100, CreatedAt: old},
		{ID: "o2", ContentHash: "A", SizeBytes: 100, CreatedAt: old.Add(time.Hour)},
		{ID: "n1", ContentHash: "A", SizeBytes: 100, CreatedAt: now.AddDate(0, 0, -5)},
		{ID: "n2", ContentHash: "B", SizeBytes: 40, CreatedAt: now.AddDate(0, 0, -4)},
		{ID: "n3", ContentHash: "B", SizeBytes: 40, CreatedAt: now.AddDate(0, 0, -3)},
	}

	stats := ComputeDedupStats(files, now)
	assert.Equal(t, int64(240), stats.TotalSaved)
	assert.Equal(t, 3, stats.DuplicatesPreventedCount)
	assert.Equal(t, int64(40), stats.LastMonthSaved)
	assert.Equal(t, 1, stats.LastMonthPrevented)
}

func TestComputeDedupStatsTopLimitAndOrder(t *testing.T) {
	now := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	var files []core.FileRecord
	for i := 0; i < 12; i++ {
		hash := fmt.Sprintf("h%02d", i)
		size := int64(10 * (i + 1))
		files = append(files,
			core.FileRecord{ID: hash + "-a", ContentHash: hash, SizeBytes: size, CreatedAt: now.Add(-time.Hour)},
			core.FileRecord{ID: hash + "-b", ContentHash: hash, SizeBytes: size, CreatedAt: now.Add(-time.Minute)},
		)
	}
	files = append(files, core.FileRecord{ID: "nohash", SizeBytes: 999, CreatedAt: now})

	stats := ComputeDedupStats(files, now)
	require.Len(t, stats.TopDuplicates, TopDuplicatesLimit)
	assert.Equal(t, "h11", stats.TopDuplicates[0].Hash)
	assert.Equal(t, "h02", stats.TopDuplicates[TopDuplicatesLimit-1].Hash)
	assert.Equal(t, 12, stats.DuplicatesPreventedCount)
}

func TestComputeDedupStatsEmpty(t *testing.T) {
	stats := ComputeDedupStats(nil, time.Now())
	assert.Zero(t, stats.TotalSaved)
	assert.NotNil(t, stats.TopDuplicates)
	assert.Empty(t, stats.TopDuplicates)
}

func TestHashHistogram(t *testing.T) {
	files := []core.FileRecord{{ContentHash: "A"}, {ContentHash: "A"}, {ContentHash: "B"}, {}}
	assert.Equal(t, map[string]int{"A": 2, "B": 1}, HashHistogram(files))
}

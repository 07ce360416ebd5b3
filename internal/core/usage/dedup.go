package usage

import (
	"sort"
	"time"

	"github.com/courseflow/courseflow/internal/core"
)

// TopDuplicatesLimit caps the number of groups returned in DedupStats.
const TopDuplicatesLimit = 10

// ComputeDedupStats groups files by content hash. Within a group the
// earliest record (ties keep input order) is canonical and every other copy
// counts as saved space of the canonical size. The last-month figures apply
// the same computation to records created after now minus one month.
func ComputeDedupStats(files []core.FileRecord, now time.Time) core.DedupStats {
	groups := groupByHash(files)

	stats := core.DedupStats{TopDuplicates: []core.DuplicateGroup{}}
	for _, g := range groups {
		if g.Count < 2 {
			continue
		}
		stats.TotalSaved += g.SpaceSaved
		stats.DuplicatesPreventedCount += g.Count - 1
		stats.TopDuplicates = append(stats.TopDuplicates, g)
	}

	sort.SliceStable(stats.TopDuplicates, func(i, j int) bool {
		return stats.TopDuplicates[i].SpaceSaved > stats.TopDuplicates[j].SpaceSaved
	})
	if len(stats.TopDuplicates) > TopDuplicatesLimit {
		stats.TopDuplicates = stats.TopDuplicates[:TopDuplicatesLimit]
	}

	cutoff := now.AddDate(0, -1, 0)
	recent := make([]core.FileRecord, 0, len(files))
	for _, f := range files {
		if f.CreatedAt.After(cutoff) {
			recent = append(recent, f)
		}
	}
	for _, g := range groupByHash(recent) {
		if g.Count < 2 {
			continue
		}
		stats.LastMonthSaved += g.SpaceSaved
		stats.LastMonthPrevented += g.Count - 1
	}

	return stats
}

// HashHistogram counts files per content hash.
func HashHistogram(files []core.FileRecord) map[string]int {
	histogram := make(map[string]int, len(files))
	for _, f := range files {
		if f.ContentHash == "" {
			continue
		}
		histogram[f.ContentHash]++
	}
	return histogram
}

// groupByHash returns one group per hash in first-seen order.
func groupByHash(files []core.FileRecord) []core.DuplicateGroup {
	order := make([]string, 0)
	byHash := make(map[string][]core.FileRecord)
	for _, f := range files {
		if f.ContentHash == "" {
			continue
		}
		if _, ok := byHash[f.ContentHash]; !ok {
			order = append(order, f.ContentHash)
		}
		byHash[f.ContentHash] = append(byHash[f.ContentHash], f)
	}

	groups := make([]core.DuplicateGroup, 0, len(order))
	for _, hash := range order {
		members := byHash[hash]
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].CreatedAt.Before(members[j].CreatedAt)
		})
		canonical := members[0]
		groups = append(groups, core.DuplicateGroup{
			Hash:        hash,
			CanonicalID: canonical.ID,
			Count:       len(members),
			SizeBytes:   canonical.SizeBytes,
			SpaceSaved:  int64(len(members)-1) * canonical.SizeBytes,
		})
	}
	return groups
}

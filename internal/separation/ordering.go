package separation

import (
	"sort"

	"separation-service/internal/models"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortItems returns a new slice with the items in display order:
// unresolved work first, finished or delegated work last. Buckets
// ascend pending < not_sent < sent_to_purchase < separated; within a
// bucket items sort by product name under Brazilian Portuguese
// collation, case-insensitive, with diacritics folded to their base
// letter. The sort is stable and must be re-run after every mutation,
// whether optimistic, broadcast or authoritative.
func SortItems(items []models.OrderItem) []models.OrderItem {
	sorted := make([]models.OrderItem, len(items))
	copy(sorted, items)

	// Collators keep internal buffers and are not safe for concurrent
	// use, so build one per call.
	c := collate.New(language.BrazilianPortuguese, collate.IgnoreCase, collate.IgnoreDiacritics)

	sort.SliceStable(sorted, func(i, j int) bool {
		bi, bj := sorted[i].State(), sorted[j].State()
		if bi != bj {
			return bi < bj
		}
		return c.CompareString(sorted[i].ProductName, sorted[j].ProductName) < 0
	})
	return sorted
}

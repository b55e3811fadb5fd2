// Package pagination implements the cursor-resumable ordering shared by
// the transcript listings.
//
// The whole collection is sorted on every call. Collections are held in
// memory and bounded by the relay's history window, so O(n log n) per
// page is acceptable here.
package pagination

import (
	"slices"

	"github.com/capitalize-ai/ai-twin/internal/model"
)

// DefaultLimit is used when a caller passes a non-positive limit.
const DefaultLimit = 20

// Paginate sorts rows with compare (reversed for descending order), resumes
// right after the element whose cursor equals after, and returns at most
// limit elements.
//
// compare must be a total order; callers break ties on a unique key so that
// pages are stable. cursor must return a value unique per element. An after
// value that matches nothing restarts from the first element.
func Paginate[T any](rows []T, after string, limit int, order model.Order, compare func(a, b T) int, cursor func(T) string) model.Page[T] {
	if limit <= 0 {
		limit = DefaultLimit
	}

	sorted := slices.Clone(rows)
	if order == model.OrderDesc {
		slices.SortStableFunc(sorted, func(a, b T) int { return compare(b, a) })
	} else {
		slices.SortStableFunc(sorted, compare)
	}

	start := 0
	if after != "" {
		for i, row := range sorted {
			if cursor(row) == after {
				start = i + 1
				break
			}
		}
	}

	end := min(start+limit, len(sorted))
	data := sorted[start:end]
	if data == nil {
		data = []T{}
	}

	page := model.Page[T]{
		Data:    data,
		HasMore: end < len(sorted),
	}
	if page.HasMore && len(data) > 0 {
		page.After = cursor(data[len(data)-1])
	}
	return page
}

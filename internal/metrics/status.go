package metrics

import "sort"

// ErrorBucket is one row of the sample error breakdown.
type ErrorBucket struct {
	Name  string
	Count int
}

// FlattenErrors converts an error-name->count map into rows sorted by
// descending count, then by name for stability.
func FlattenErrors(errs map[string]int) []ErrorBucket {
	if len(errs) == 0 {
		return nil
	}
	rows := make([]ErrorBucket, 0, len(errs))
	for name, count := range errs {
		rows = append(rows, ErrorBucket{Name: name, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}

// Package query derives the displayed task view and statistics from a task
// collection. Everything here is pure: inputs are never modified.
package query

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"taskd/app/models"
)

// ErrInvalidFilter is returned by Filters.Validate for unknown values.
var ErrInvalidFilter = errors.New("invalid filter")

// All disables the status or priority filter.
const All = "all"

// SortKey selects the comparator.
type SortKey string

const (
	SortByCreatedAt SortKey = "createdAt"
	SortByDueDate   SortKey = "dueDate"
	SortByPriority  SortKey = "priority"
	SortByTitle     SortKey = "title"
)

// SortOrder is the sort direction.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Filters describes which tasks to show and in what order.
type Filters struct {
	Status    string    `json:"status"`
	Priority  string    `json:"priority"`
	Search    string    `json:"searchTerm"`
	SortBy    SortKey   `json:"sortBy"`
	SortOrder SortOrder `json:"sortOrder"`
}

// DefaultFilters shows every task, newest first.
func DefaultFilters() Filters {
	return Filters{
		Status:    All,
		Priority:  All,
		SortBy:    SortByCreatedAt,
		SortOrder: Desc,
	}
}

// Validate checks every field holds a known value.
func (f Filters) Validate() error {
	if f.Status != All && !models.Status(f.Status).IsValid() {
		return fmt.Errorf("%w: status %q", ErrInvalidFilter, f.Status)
	}
	if f.Priority != All && !models.Priority(f.Priority).IsValid() {
		return fmt.Errorf("%w: priority %q", ErrInvalidFilter, f.Priority)
	}
	switch f.SortBy {
	case SortByCreatedAt, SortByDueDate, SortByPriority, SortByTitle:
	default:
		return fmt.Errorf("%w: sortBy %q", ErrInvalidFilter, f.SortBy)
	}
	if f.SortOrder != Asc && f.SortOrder != Desc {
		return fmt.Errorf("%w: sortOrder %q", ErrInvalidFilter, f.SortOrder)
	}
	return nil
}

// FromValues reads filters from URL query parameters on top of the
// defaults. Empty parameters keep the default.
func FromValues(v url.Values) (Filters, error) {
	f := DefaultFilters()
	if s := v.Get("status"); s != "" {
		f.Status = s
	}
	if p := v.Get("priority"); p != "" {
		f.Priority = p
	}
	f.Search = v.Get("search")
	if s := v.Get("sortBy"); s != "" {
		f.SortBy = SortKey(s)
	}
	if o := v.Get("sortOrder"); o != "" {
		f.SortOrder = SortOrder(o)
	}
	return f, f.Validate()
}

// Apply filters and sorts tasks. The result is a new slice.
func Apply(tasks []models.Task, f Filters) []models.Task {
	search := strings.ToLower(f.Search)

	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Status != "" && f.Status != All && string(t.Status) != f.Status {
			continue
		}
		if f.Priority != "" && f.Priority != All && string(t.Priority) != f.Priority {
			continue
		}
		if search != "" && !matchesSearch(t, search) {
			continue
		}
		out = append(out, t)
	}

	compare := comparator(f.SortBy)
	asc := f.SortOrder == Asc
	slices.SortStableFunc(out, func(a, b models.Task) int {
		// Comparators put the "first" element first in descending order.
		c := compare(a, b)
		if asc {
			return -c
		}
		return c
	})
	return out
}

// Stats counts the whole collection, ignoring any filter.
func Stats(tasks []models.Task, now time.Time) models.TaskStats {
	var s models.TaskStats
	s.Total = len(tasks)
	for i := range tasks {
		if tasks[i].Status == models.StatusCompleted {
			s.Completed++
		}
		if tasks[i].IsOverdue(now) {
			s.Overdue++
		}
	}
	s.Pending = s.Total - s.Completed
	return s
}

func matchesSearch(t models.Task, needle string) bool {
	if strings.Contains(strings.ToLower(t.Title), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(t.Description), needle) {
		return true
	}
	for _, tag := range t.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

func comparator(key SortKey) func(a, b models.Task) int {
	switch key {
	case SortByTitle:
		col := collate.New(language.Und)
		return func(a, b models.Task) int {
			return col.CompareString(b.Title, a.Title)
		}
	case SortByDueDate:
		return func(a, b models.Task) int {
			return cmp.Compare(dueValue(b), dueValue(a))
		}
	case SortByPriority:
		return func(a, b models.Task) int {
			return b.Priority.Rank() - a.Priority.Rank()
		}
	default:
		return func(a, b models.Task) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		}
	}
}

// dueValue places tasks without a due date infinitely far in the future.
func dueValue(t models.Task) float64 {
	if t.DueDate == nil {
		return math.Inf(1)
	}
	return float64(t.DueDate.UnixMilli())
}

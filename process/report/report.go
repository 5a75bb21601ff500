// Package report prints a month-bounded summary of a user's label analyses.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"labelscan/models"
	"labelscan/pkg/category"
	"labelscan/pkg/store"
)

// Source is satisfied by *store.Store.
type Source interface {
	Stats(ctx context.Context, f store.Filter) (*store.Stats, error)
	ListAnalyses(ctx context.Context, f store.Filter) ([]models.Analysis, error)
}

// MonthFilter bounds f to month (YYYY-MM, UTC).
func MonthFilter(userID uint, month string) (store.Filter, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return store.Filter{}, fmt.Errorf("invalid month format, expected YYYY-MM: %w", err)
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return store.Filter{UserID: userID, Since: start, Until: start.AddDate(0, 1, 0)}, nil
}

// Write prints the stats for username in month and, when list is set, one
// line per analysis: id|product|source|health|weighted|created.
func Write(ctx context.Context, w io.Writer, src Source, userID uint, username, month string, list bool) error {
	f, err := MonthFilter(userID, month)
	if err != nil {
		return err
	}
	st, err := src.Stats(ctx, f)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Report for user=%s month=%s (UTC):\n", username, month)
	fmt.Fprintf(w, "  analyses=%d average_health_score=%.1f\n", st.TotalAnalyses, st.AverageHealthScore)
	for _, c := range category.All {
		fmt.Fprintf(w, "  %-18s %5.1f%%\n", c, st.CategoryAverages[c])
	}

	if !list {
		return nil
	}
	f.Limit = st.TotalAnalyses
	rows, err := src.ListAnalyses(ctx, f)
	if err != nil {
		return err
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%s|%s|%s|%.1f|%.1f|%s\n", r.PublicID, r.ProductName, r.Source, r.HealthScore, r.WeightedScore, r.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

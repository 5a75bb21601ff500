// Package sanitize empties application tables, e.g. to reset a staging
// database. It is destructive and refuses to run without confirmation.
package sanitize

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// DefaultTables are the tables written by the service and batch tools.
const DefaultTables = "analyses,refresh_tokens,users,roles"

var ErrNotConfirmed = errors.New("destructive operation: confirmation required")

var tableNameRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseTables splits a comma separated list into valid identifiers and the
// entries that were rejected.
func ParseTables(list string) (valid, rejected []string) {
	seen := map[string]bool{}
	for _, p := range strings.Split(list, ",") {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		if !tableNameRE.MatchString(p) {
			rejected = append(rejected, p)
			continue
		}
		valid = append(valid, p)
	}
	return valid, rejected
}

// TruncateStatement builds the TRUNCATE for already validated names.
func TruncateStatement(tables []string) string {
	quoted := make([]string, len(tables))
	for i, t := range tables {
		quoted[i] = `"` + t + `"`
	}
	return fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(quoted, ", "))
}

// ExistingTables keeps the names present in the public schema.
func ExistingTables(ctx context.Context, db *gorm.DB, tables []string) ([]string, error) {
	var out []string
	for _, t := range tables {
		var cnt int64
		err := db.WithContext(ctx).Raw("SELECT count(*) FROM pg_tables WHERE schemaname = 'public' AND tablename = ?", t).Scan(&cnt).Error
		if err != nil {
			return nil, fmt.Errorf("query pg_tables for %s: %w", t, err)
		}
		if cnt > 0 {
			out = append(out, t)
		}
	}
	return out, nil
}

type Options struct {
	Tables  string
	DryRun  bool
	Confirm bool
}

// Run truncates the existing tables named in opts. With DryRun it only
// reports what would be truncated; without Confirm it returns
// ErrNotConfirmed.
func Run(ctx context.Context, db *gorm.DB, opts Options, logger zerolog.Logger) ([]string, error) {
	wanted, rejected := ParseTables(opts.Tables)
	for _, r := range rejected {
		logger.Warn().Str("table", r).Msg("skipping invalid table name")
	}
	existing, err := ExistingTables(ctx, db, wanted)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 || opts.DryRun {
		return existing, nil
	}
	if !opts.Confirm {
		return existing, ErrNotConfirmed
	}
	stmt := TruncateStatement(existing)
	logger.Info().Str("statement", stmt).Msg("truncating")
	if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
		return existing, fmt.Errorf("truncate: %w", err)
	}
	return existing, nil
}

// Package store persists analyses with gorm on postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"labelscan/models"
	"labelscan/pkg/analyzer"
	"labelscan/pkg/category"
	"labelscan/pkg/score"
)

var ErrNotFound = errors.New("analysis not found")

// DefaultListLimit matches the API's "latest 100" listing.
const DefaultListLimit = 100

type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// Open connects to postgres. gorm's own logger is limited to warnings.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("DB_DSN is not set")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return gdb, nil
}

func New(db *gorm.DB, logger zerolog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) DB() *gorm.DB { return s.db }

// Migrate creates the roles table first and seeds it so the users FK can be
// applied, then migrates the remaining tables one by one. A failing table is
// logged and does not block the others.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&models.Role{}); err != nil {
		return fmt.Errorf("migrate roles: %w", err)
	}
	if err := s.SeedRoles(ctx); err != nil {
		return err
	}
	for _, m := range []any{&models.User{}, &models.Analysis{}, &models.RefreshToken{}} {
		if err := db.AutoMigrate(m); err != nil {
			s.logger.Warn().Err(err).Str("model", fmt.Sprintf("%T", m)).Msg("migration warning")
		}
	}
	return nil
}

// SeedRoles inserts the administrator and user roles when missing.
func (s *Store) SeedRoles(ctx context.Context) error {
	roles := []models.Role{
		{Name: models.RoleAdministrator, Description: "full access"},
		{Name: models.RoleUser, Description: "regular user"},
	}
	for _, r := range roles {
		r := r
		if err := s.db.WithContext(ctx).Where("name = ?", r.Name).FirstOrCreate(&r).Error; err != nil {
			return fmt.Errorf("seed role %s: %w", r.Name, err)
		}
	}
	return nil
}

// SaveAnalysis stores res for userID and returns its public id. text is the
// caller's original input.
func (s *Store) SaveAnalysis(ctx context.Context, userID uint, text string, res *analyzer.Result) (string, error) {
	a := NewAnalysis(userID, text, res)
	if err := s.db.WithContext(ctx).Create(&a).Error; err != nil {
		return "", fmt.Errorf("insert analysis: %w", err)
	}
	return a.PublicID, nil
}

// SaveFileAnalysis is SaveAnalysis for a photo analyzed from disk; file is
// recorded so the batch analyzer skips it next time.
func (s *Store) SaveFileAnalysis(ctx context.Context, userID uint, file string, res *analyzer.Result) (string, error) {
	a := NewAnalysis(userID, file, res)
	a.SourceFile = &file
	if err := s.db.WithContext(ctx).Create(&a).Error; err != nil {
		return "", fmt.Errorf("insert analysis for %s: %w", file, err)
	}
	return a.PublicID, nil
}

// NewAnalysis maps a result onto a row with a fresh public id.
func NewAnalysis(userID uint, text string, res *analyzer.Result) models.Analysis {
	a := models.Analysis{
		PublicID:              uuid.NewString(),
		UserID:                userID,
		ProductName:           res.ProductName,
		Source:                res.Source,
		InputText:             text,
		ExtractedText:         res.ExtractedText,
		Tokens:                res.Tokens,
		Ingredients:           res.Ingredients,
		ClassificationSummary: res.ClassificationSummary,
		IngredientPercentages: res.IngredientPercentages,
		HealthScore:           res.HealthScore,
		WeightedScore:         res.WeightedScore,
	}
	if res.OCR != nil {
		conf := res.OCR.Confidence
		a.OCRConfidence = &conf
	}
	return a
}

// Filter selects analyses. All ignores UserID. Zero times are unbounded.
type Filter struct {
	UserID uint
	All    bool
	Since  time.Time
	Until  time.Time
	Limit  int
	// BelowScore keeps analyses whose health score is under it; 0 disables.
	BelowScore float64
}

func (s *Store) scoped(ctx context.Context, f Filter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.Analysis{})
	if !f.All {
		q = q.Where("user_id = ?", f.UserID)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	if !f.Until.IsZero() {
		q = q.Where("created_at < ?", f.Until)
	}
	if f.BelowScore > 0 {
		q = q.Where("health_score < ?", f.BelowScore)
	}
	return q
}

// ListAnalyses returns the newest analyses first.
func (s *Store) ListAnalyses(ctx context.Context, f Filter) ([]models.Analysis, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var rows []models.Analysis
	if err := s.scoped(ctx, f).Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	return rows, nil
}

func (s *Store) GetAnalysis(ctx context.Context, publicID string) (*models.Analysis, error) {
	var a models.Analysis
	err := s.db.WithContext(ctx).Where("public_id = ?", publicID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return &a, nil
}

func (s *Store) DeleteAnalysis(ctx context.Context, publicID string) error {
	res := s.db.WithContext(ctx).Where("public_id = ?", publicID).Delete(&models.Analysis{})
	if res.Error != nil {
		return fmt.Errorf("delete analysis: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// classificationColumns are rewritten when an analysis is classified again.
var classificationColumns = []string{
	"tokens", "ingredients", "classification_summary", "ingredient_percentages", "health_score", "weighted_score",
}

// UpdateClassification replaces the classification of an existing analysis
// with res, leaving its input and OCR data untouched.
func (s *Store) UpdateClassification(ctx context.Context, publicID string, res *analyzer.Result) error {
	a := models.Analysis{
		Tokens:                res.Tokens,
		Ingredients:           res.Ingredients,
		ClassificationSummary: res.ClassificationSummary,
		IngredientPercentages: res.IngredientPercentages,
		HealthScore:           res.HealthScore,
		WeightedScore:         res.WeightedScore,
	}
	q := s.db.WithContext(ctx).Model(&models.Analysis{}).Where("public_id = ?", publicID).
		Select(classificationColumns).Updates(&a)
	if q.Error != nil {
		return fmt.Errorf("update analysis %s: %w", publicID, q.Error)
	}
	if q.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AnalyzedFiles lists the source files already analyzed for userID.
func (s *Store) AnalyzedFiles(ctx context.Context, userID uint) ([]string, error) {
	var files []string
	err := s.db.WithContext(ctx).Model(&models.Analysis{}).
		Where("user_id = ? AND source_file IS NOT NULL", userID).
		Pluck("source_file", &files).Error
	if err != nil {
		return nil, fmt.Errorf("list analyzed files: %w", err)
	}
	return files, nil
}

// Stats summarizes a set of analyses.
type Stats struct {
	TotalAnalyses      int                           `json:"total_analyses"`
	AverageHealthScore float64                       `json:"average_health_score"`
	CategoryAverages   map[category.Category]float64 `json:"category_averages"`
}

// Stats aggregates every analysis matched by f, ignoring its Limit.
func (s *Store) Stats(ctx context.Context, f Filter) (*Stats, error) {
	var rows []models.Analysis
	err := s.scoped(ctx, f).Select("health_score", "ingredient_percentages").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("analysis stats: %w", err)
	}
	st := ComputeStats(rows)
	return &st, nil
}

// ComputeStats averages health scores and category percentages, rounded to
// one decimal. An empty set gives zero averages for every category.
func ComputeStats(rows []models.Analysis) Stats {
	st := Stats{TotalAnalyses: len(rows), CategoryAverages: make(map[category.Category]float64, len(category.All))}
	for _, c := range category.All {
		st.CategoryAverages[c] = 0
	}
	if len(rows) == 0 {
		return st
	}
	var total float64
	sums := make(map[category.Category]float64, len(category.All))
	for _, r := range rows {
		total += r.HealthScore
		for _, c := range category.All {
			sums[c] += r.IngredientPercentages[c]
		}
	}
	n := float64(len(rows))
	st.AverageHealthScore = score.Round1(total / n)
	for _, c := range category.All {
		st.CategoryAverages[c] = score.Round1(sums[c] / n)
	}
	return st
}

package models

import (
	"time"

	"labelscan/pkg/category"
	"labelscan/pkg/classify"
)

// Analysis is one stored label analysis owned by a user. PublicID is the id
// exposed by the API.
type Analysis struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`
	PublicID  string    `gorm:"size:36;uniqueIndex;not null" json:"id"`
	UserID    uint      `gorm:"index;not null;uniqueIndex:idx_user_source_file" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	// SourceFile is set by the batch analyzer so a photo is only analyzed once per user.
	SourceFile    *string  `gorm:"size:255;uniqueIndex:idx_user_source_file" json:"source_file,omitempty"`
	ProductName   string   `gorm:"size:255;not null" json:"product_name"`
	Source        string   `gorm:"size:16;not null" json:"source"`
	InputText     string   `gorm:"type:text" json:"input_text,omitempty"`
	ExtractedText string   `gorm:"type:text" json:"extracted_text"`
	OCRConfidence *float64 `json:"ocr_confidence,omitempty"`

	Tokens                []string                       `gorm:"type:jsonb;serializer:json" json:"tokens"`
	Ingredients           []classify.Ingredient          `gorm:"type:jsonb;serializer:json" json:"ingredients"`
	ClassificationSummary map[category.Category][]string `gorm:"type:jsonb;serializer:json" json:"classification_summary"`
	IngredientPercentages map[category.Category]float64  `gorm:"type:jsonb;serializer:json" json:"ingredient_percentages"`
	HealthScore           float64                        `gorm:"not null;index" json:"health_score"`
	WeightedScore         float64                        `gorm:"not null" json:"weighted_score"`
}

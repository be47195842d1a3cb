package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"image-discerner/internal/domain/discern"
)

type AnalysisRepository struct {
	db *gorm.DB
}

func NewAnalysisRepository(db *gorm.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

type Identifier struct {
	ID         int64     `gorm:"primaryKey"`
	Kind       string    `gorm:"not null"`
	Value      string    `gorm:"not null"`
	Normalized string    `gorm:"not null"`
	CreatedAt  time.Time
}

type Analysis struct {
	ID                     uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ImageKey               *string
	ImageFormat            *string
	OverallConfidence      float64        `gorm:"not null"`
	EntityType             *string
	Operator               *string
	ClassificationProvider *string
	TextProvider           *string
	ProcessingTimeMs       int64
	Result                 datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt              time.Time
}

func (Analysis) TableName() string { return "analyses" }

type AnalysisIdentifier struct {
	AnalysisID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	IdentifierID int64     `gorm:"primaryKey"`
}

func (AnalysisIdentifier) TableName() string { return "analysis_identifiers" }

type List struct {
	ID          int64     `gorm:"primaryKey"`
	Name        string    `gorm:"not null;uniqueIndex"`
	Type        string    `gorm:"not null"`
	Description *string
	CreatedAt   time.Time
}

type ListItem struct {
	ListID       int64     `gorm:"primaryKey"`
	IdentifierID int64     `gorm:"primaryKey"`
	Note         *string
	CreatedAt    time.Time
}

// GetOrCreateIdentifier returns the id of the identifier with the given kind
// and normalized value, inserting it if needed. Concurrent callers racing on
// the same new identifier all receive the one stored row.
func (r *AnalysisRepository) GetOrCreateIdentifier(ctx context.Context, kind discern.IdentifierKind, value, normalized string) (int64, error) {
	if id, err := r.findIdentifierID(ctx, kind, normalized); err == nil {
		return id, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	ident := Identifier{
		Kind:       string(kind),
		Value:      value,
		Normalized: normalized,
		CreatedAt:  time.Now(),
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "kind"}, {Name: "normalized"}},
			DoNothing: true,
		}).
		Create(&ident).Error
	if err != nil {
		return 0, err
	}
	if ident.ID != 0 {
		return ident.ID, nil
	}

	// Another writer inserted the row first.
	return r.findIdentifierID(ctx, kind, normalized)
}

func (r *AnalysisRepository) findIdentifierID(ctx context.Context, kind discern.IdentifierKind, normalized string) (int64, error) {
	var ident Identifier
	err := r.db.WithContext(ctx).
		Where("kind = ? AND normalized = ?", string(kind), normalized).
		First(&ident).Error
	if err != nil {
		return 0, err
	}
	return ident.ID, nil
}

// CreateAnalysis stores the analysis and its identifier links in one
// transaction. A zero ID is replaced with a fresh UUID.
func (r *AnalysisRepository) CreateAnalysis(ctx context.Context, a *Analysis, identifierIDs []int64) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(a).Error; err != nil {
			return err
		}
		if len(identifierIDs) == 0 {
			return nil
		}
		links := make([]AnalysisIdentifier, 0, len(identifierIDs))
		for _, id := range identifierIDs {
			links = append(links, AnalysisIdentifier{AnalysisID: a.ID, IdentifierID: id})
		}
		return tx.Create(&links).Error
	})
}

func (r *AnalysisRepository) FindListsForIdentifier(ctx context.Context, identifierID int64) ([]discern.ListHit, error) {
	var hits []discern.ListHit

	err := r.db.WithContext(ctx).
		Table("list_items").
		Select("lists.id as list_id, lists.name as list_name, lists.type as list_type, " +
			"identifiers.kind as identifier_kind, identifiers.value as identifier_value").
		Joins("JOIN lists ON list_items.list_id = lists.id").
		Joins("JOIN identifiers ON list_items.identifier_id = identifiers.id").
		Where("list_items.identifier_id = ?", identifierID).
		Scan(&hits).Error

	if err != nil {
		return nil, err
	}

	return hits, nil
}

func (r *AnalysisRepository) FindIdentifiersByNormalized(ctx context.Context, normalized string, kind *discern.IdentifierKind) ([]Identifier, error) {
	query := r.db.WithContext(ctx).Where("normalized = ?", normalized)
	if kind != nil {
		query = query.Where("kind = ?", string(*kind))
	}

	var idents []Identifier
	err := query.Order("id").Find(&idents).Error
	return idents, err
}

func (r *AnalysisRepository) FindAnalyses(ctx context.Context, normalizedIdentifier *string, from, to *time.Time, limit, offset int) ([]Analysis, error) {
	query := r.db.WithContext(ctx).Model(&Analysis{})

	if normalizedIdentifier != nil {
		linked := r.db.Table("analysis_identifiers").
			Select("analysis_identifiers.analysis_id").
			Joins("JOIN identifiers ON analysis_identifiers.identifier_id = identifiers.id").
			Where("identifiers.normalized = ?", *normalizedIdentifier)
		query = query.Where("id IN (?)", linked)
	}
	if from != nil {
		query = query.Where("created_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("created_at <= ?", *to)
	}

	query = query.Order("created_at DESC")

	if limit > 0 {
		query = query.Limit(min(limit, 100))
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var analyses []Analysis
	err := query.Find(&analyses).Error
	return analyses, err
}

// GetAnalysis returns nil without an error when no analysis has the id.
func (r *AnalysisRepository) GetAnalysis(ctx context.Context, id uuid.UUID) (*Analysis, error) {
	var a Analysis
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AnalysisRepository) GetLastAnalysisTimeForIdentifier(ctx context.Context, identifierID int64) (*time.Time, error) {
	var a Analysis
	err := r.db.WithContext(ctx).
		Joins("JOIN analysis_identifiers ON analysis_identifiers.analysis_id = analyses.id").
		Where("analysis_identifiers.identifier_id = ?", identifierID).
		Order("analyses.created_at DESC").
		First(&a).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &a.CreatedAt, nil
}

// DeleteOldAnalyses removes analyses created more than days ago. Identifier
// links go with them through the cascading foreign key.
func (r *AnalysisRepository) DeleteOldAnalyses(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&Analysis{})
	return res.RowsAffected, res.Error
}

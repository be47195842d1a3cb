package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"image-discerner/internal/domain/discern"
	"image-discerner/internal/fusion"
	"image-discerner/internal/repository"
	"image-discerner/internal/utils"
	"image-discerner/internal/vision"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("not found")
	ErrProvider        = errors.New("vision provider failed")
	ErrStorageDisabled = errors.New("storage is disabled")
)

// Store is the persistence the service needs. It is satisfied by
// *repository.AnalysisRepository.
type Store interface {
	GetOrCreateIdentifier(ctx context.Context, kind discern.IdentifierKind, value, normalized string) (int64, error)
	CreateAnalysis(ctx context.Context, a *repository.Analysis, identifierIDs []int64) error
	FindListsForIdentifier(ctx context.Context, identifierID int64) ([]discern.ListHit, error)
	FindIdentifiersByNormalized(ctx context.Context, normalized string, kind *discern.IdentifierKind) ([]repository.Identifier, error)
	FindAnalyses(ctx context.Context, normalizedIdentifier *string, from, to *time.Time, limit, offset int) ([]repository.Analysis, error)
	GetAnalysis(ctx context.Context, id uuid.UUID) (*repository.Analysis, error)
	GetLastAnalysisTimeForIdentifier(ctx context.Context, identifierID int64) (*time.Time, error)
	DeleteOldAnalyses(ctx context.Context, days int) (int64, error)
}

type DiscernService struct {
	store      Store
	classifier vision.Classifier
	extractor  vision.TextExtractor
	engine     *fusion.Engine
	timeout    time.Duration
	log        zerolog.Logger
}

// NewDiscernService wires the providers and the fusion engine. store may be
// nil, in which case analyses are not persisted and lookups fail with
// ErrStorageDisabled.
func NewDiscernService(
	store Store,
	classifier vision.Classifier,
	extractor vision.TextExtractor,
	engine *fusion.Engine,
	timeout time.Duration,
	log zerolog.Logger,
) *DiscernService {
	if engine == nil {
		engine = fusion.Default()
	}
	return &DiscernService{
		store:      store,
		classifier: classifier,
		extractor:  extractor,
		engine:     engine,
		timeout:    timeout,
		log:        log,
	}
}

type AnalyzeRequest struct {
	ImageKey string
	Data     []byte
}

type AnalysisResult struct {
	ID        string                    `json:"id"`
	Persisted bool                      `json:"persisted"`
	Result    *discern.AggregatedResult `json:"result"`
	Hits      []discern.ListHit         `json:"hits"`
}

// Analyze runs both vision branches over the image, fuses them and stores
// the outcome when storage is enabled.
func (s *DiscernService) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalysisResult, error) {
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: image is required", ErrInvalidInput)
	}
	img, err := vision.DecodeImage(req.ImageKey, req.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	cls, txt, err := s.runBranches(ctx, img)
	if err != nil {
		s.log.Error().Err(err).Str("image_key", img.Key).Msg("vision branch failed")
		return nil, err
	}

	result, err := s.engine.Aggregate(cls, txt)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate branches: %w", err)
	}
	if result.ProcessingMetadata.ImageKey == "" {
		result.ProcessingMetadata.ImageKey = img.Key
	}

	out := &AnalysisResult{
		ID:     uuid.NewString(),
		Result: result,
		Hits:   []discern.ListHit{},
	}

	s.log.Info().
		Str("analysis_id", out.ID).
		Str("image_key", img.Key).
		Str("format", img.Format).
		Int("identifiers", len(result.TextAnalysis.StructuredIdentifiers)).
		Int("entities", len(result.Entities)).
		Float64("confidence", result.ConfidenceScore).
		Msg("image analyzed")

	if s.store == nil {
		return out, nil
	}
	if err := s.persist(ctx, img, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *DiscernService) runBranches(ctx context.Context, img vision.Image) (*discern.ClassificationBranch, *discern.TextBranch, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var (
		cls *discern.ClassificationBranch
		txt *discern.TextBranch
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		branch, err := s.classifier.Classify(gctx, img)
		if err != nil {
			return fmt.Errorf("%w: %s classification: %w", ErrProvider, s.classifier.Name(), err)
		}
		cls = branch
		return nil
	})
	g.Go(func() error {
		branch, err := s.extractor.ExtractText(gctx, img)
		if err != nil {
			return fmt.Errorf("%w: %s text extraction: %w", ErrProvider, s.extractor.Name(), err)
		}
		txt = branch
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return cls, txt, nil
}

func (s *DiscernService) persist(ctx context.Context, img vision.Image, out *AnalysisResult) error {
	result := out.Result

	identifierIDs := make([]int64, 0, len(result.TextAnalysis.StructuredIdentifiers))
	for _, ident := range result.TextAnalysis.StructuredIdentifiers {
		normalized := utils.NormalizeIdentifier(ident.Value)
		if normalized == "" {
			continue
		}
		id, err := s.store.GetOrCreateIdentifier(ctx, ident.Kind, ident.Value, normalized)
		if err != nil {
			s.log.Error().Err(err).Str("identifier", normalized).Msg("failed to get or create identifier")
			return fmt.Errorf("failed to get or create identifier: %w", err)
		}
		identifierIDs = append(identifierIDs, id)

		hits, err := s.store.FindListsForIdentifier(ctx, id)
		if err != nil {
			s.log.Error().Err(err).Int64("identifier_id", id).Msg("failed to find lists for identifier")
			return fmt.Errorf("failed to find lists for identifier: %w", err)
		}
		for _, hit := range hits {
			s.log.Info().
				Str("identifier", normalized).
				Str("kind", string(ident.Kind)).
				Str("list_name", hit.ListName).
				Str("list_type", hit.ListType).
				Msg("identifier found in list")
		}
		out.Hits = append(out.Hits, hits...)
	}

	doc, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	id, err := uuid.Parse(out.ID)
	if err != nil {
		return err
	}

	record := &repository.Analysis{
		ID:                     id,
		ImageKey:               optional(img.Key),
		ImageFormat:            optional(img.Format),
		OverallConfidence:      result.ConfidenceScore,
		ClassificationProvider: optional(result.ProcessingMetadata.ClassificationProvider),
		TextProvider:           optional(result.ProcessingMetadata.TextProvider),
		ProcessingTimeMs:       result.ProcessingMetadata.TotalProcessingTimeMs,
		Result:                 doc,
		CreatedAt:              result.Timestamp,
	}
	if len(result.Entities) > 0 {
		record.EntityType = optional(result.Entities[0].Type)
		record.Operator = optional(result.Entities[0].Operator)
	}

	if err := s.store.CreateAnalysis(ctx, record, dedupeIDs(identifierIDs)); err != nil {
		s.log.Error().Err(err).Str("analysis_id", out.ID).Msg("failed to create analysis")
		return fmt.Errorf("failed to create analysis: %w", err)
	}
	out.Persisted = true

	s.log.Debug().
		Str("analysis_id", out.ID).
		Int("identifiers", len(identifierIDs)).
		Int("hits_count", len(out.Hits)).
		Msg("saved analysis to database")
	return nil
}

// AggregateBranches fuses branch results produced elsewhere. Nothing is
// persisted.
func (s *DiscernService) AggregateBranches(_ context.Context, bodies []json.RawMessage) (*discern.AggregatedResult, error) {
	cls, txt, err := fusion.DecodeBranches(bodies...)
	if err != nil {
		if errors.Is(err, discern.ErrValidation) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return nil, err
	}
	result, err := s.engine.Aggregate(cls, txt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return result, nil
}

func (s *DiscernService) FindIdentifiers(ctx context.Context, query, kind string) ([]IdentifierInfo, error) {
	if s.store == nil {
		return nil, ErrStorageDisabled
	}
	normalized := utils.NormalizeIdentifier(query)
	if normalized == "" {
		return nil, fmt.Errorf("%w: identifier query cannot be empty", ErrInvalidInput)
	}
	kindFilter, err := parseKind(kind)
	if err != nil {
		return nil, err
	}

	idents, err := s.store.FindIdentifiersByNormalized(ctx, normalized, kindFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to find identifiers: %w", err)
	}

	result := make([]IdentifierInfo, 0, len(idents))
	for _, ident := range idents {
		last, err := s.store.GetLastAnalysisTimeForIdentifier(ctx, ident.ID)
		if err != nil {
			s.log.Warn().Err(err).Int64("identifier_id", ident.ID).Msg("failed to get last analysis time")
		}
		result = append(result, IdentifierInfo{
			ID:               ident.ID,
			Kind:             discern.IdentifierKind(ident.Kind),
			Value:            ident.Value,
			Normalized:       ident.Normalized,
			LastAnalysisTime: last,
		})
	}
	return result, nil
}

func (s *DiscernService) FindAnalyses(ctx context.Context, identifierQuery *string, from, to *string, limit, offset int) ([]AnalysisInfo, error) {
	if s.store == nil {
		return nil, ErrStorageDisabled
	}

	var normalized *string
	if identifierQuery != nil {
		if n := utils.NormalizeIdentifier(*identifierQuery); n != "" {
			normalized = &n
		}
	}

	fromTime, err := parseTime("from", from)
	if err != nil {
		return nil, err
	}
	toTime, err := parseTime("to", to)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	analyses, err := s.store.FindAnalyses(ctx, normalized, fromTime, toTime, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to find analyses: %w", err)
	}

	result := make([]AnalysisInfo, 0, len(analyses))
	for _, a := range analyses {
		result = append(result, toAnalysisInfo(a))
	}
	return result, nil
}

func (s *DiscernService) GetAnalysis(ctx context.Context, id string) (*AnalysisInfo, error) {
	if s.store == nil {
		return nil, ErrStorageDisabled
	}
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid analysis id", ErrInvalidInput)
	}

	a, err := s.store.GetAnalysis(ctx, parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	if a == nil {
		return nil, fmt.Errorf("%w: analysis %s", ErrNotFound, parsed)
	}

	info := toAnalysisInfo(*a)
	info.Result = json.RawMessage(a.Result)
	return &info, nil
}

// CleanupOldAnalyses deletes analyses older than the given number of days.
func (s *DiscernService) CleanupOldAnalyses(ctx context.Context, days int) (int64, error) {
	if s.store == nil {
		return 0, ErrStorageDisabled
	}
	if days < 1 {
		return 0, fmt.Errorf("%w: days must be positive", ErrInvalidInput)
	}
	deleted, err := s.store.DeleteOldAnalyses(ctx, days)
	if err != nil {
		s.log.Error().Err(err).Int("days", days).Msg("failed to cleanup old analyses")
		return 0, err
	}
	if deleted > 0 {
		s.log.Info().Int64("deleted_count", deleted).Int("days", days).Msg("cleaned up old analyses")
	}
	return deleted, nil
}

func parseKind(kind string) (*discern.IdentifierKind, error) {
	kind = strings.TrimSpace(strings.ToLower(kind))
	if kind == "" {
		return nil, nil
	}
	k := discern.IdentifierKind(kind)
	switch k {
	case discern.KindLicensePlate, discern.KindFleetNumber, discern.KindContainerID:
		return &k, nil
	default:
		return nil, fmt.Errorf("%w: unknown identifier kind %q", ErrInvalidInput, kind)
	}
}

func parseTime(field string, value *string) (*time.Time, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *value)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s time format", ErrInvalidInput, field)
	}
	return &t, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func toAnalysisInfo(a repository.Analysis) AnalysisInfo {
	return AnalysisInfo{
		ID:                     a.ID.String(),
		ImageKey:               a.ImageKey,
		ImageFormat:            a.ImageFormat,
		OverallConfidence:      a.OverallConfidence,
		EntityType:             a.EntityType,
		Operator:               a.Operator,
		ClassificationProvider: a.ClassificationProvider,
		TextProvider:           a.TextProvider,
		ProcessingTimeMs:       a.ProcessingTimeMs,
		CreatedAt:              a.CreatedAt,
	}
}

type IdentifierInfo struct {
	ID               int64                  `json:"id"`
	Kind             discern.IdentifierKind `json:"kind"`
	Value            string                 `json:"value"`
	Normalized       string                 `json:"normalized"`
	LastAnalysisTime *time.Time             `json:"last_analysis_time,omitempty"`
}

type AnalysisInfo struct {
	ID                     string          `json:"id"`
	ImageKey               *string         `json:"image_key,omitempty"`
	ImageFormat            *string         `json:"image_format,omitempty"`
	OverallConfidence      float64         `json:"overall_confidence"`
	EntityType             *string         `json:"entity_type,omitempty"`
	Operator               *string         `json:"operator,omitempty"`
	ClassificationProvider *string         `json:"classification_provider,omitempty"`
	TextProvider           *string         `json:"text_provider,omitempty"`
	ProcessingTimeMs       int64           `json:"processing_time_ms"`
	CreatedAt              time.Time       `json:"created_at"`
	Result                 json.RawMessage `json:"result,omitempty"`
}

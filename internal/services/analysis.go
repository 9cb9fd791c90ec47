package services

import (
	"context"
	"fmt"
	"math/rand"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/models"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxPhotoSize = 10 << 20

	AnalysisCompleted = "completed"
	AnalysisFailed    = "failed"
)

// PhotoInput is an uploaded crop photo.
type PhotoInput struct {
	CultureType string
	ContentType string
	Filename    string
	Data        []byte
}

// Diagnosis is what an Analyzer concludes about a photo.
type Diagnosis struct {
	HealthScore     float64
	Summary         string
	Recommendations []string
}

// Analyzer diagnoses crop photos.
type Analyzer interface {
	Analyze(ctx context.Context, in PhotoInput) (Diagnosis, error)
}

var simulatedDiagnoses = []Diagnosis{
	{HealthScore: 92, Summary: "Culture saine, croissance homogène", Recommendations: []string{
		"Maintenir l'arrosage actuel", "Récolter d'ici 2 à 3 jours",
	}},
	{HealthScore: 74, Summary: "Léger jaunissement des pointes", Recommendations: []string{
		"Vérifier le pH de la solution nutritive", "Augmenter légèrement l'éclairage",
	}},
	{HealthScore: 58, Summary: "Début de moisissure détecté", Recommendations: []string{
		"Réduire l'humidité ambiante", "Améliorer la ventilation", "Retirer les plateaux atteints",
	}},
	{HealthScore: 81, Summary: "Densité de semis irrégulière", Recommendations: []string{
		"Répartir les graines plus uniformément", "Contrôler le trempage des graines",
	}},
}

// SimulatedAnalyzer returns a canned diagnosis after a delay. It stands in for a real
// image model.
type SimulatedAnalyzer struct {
	mu    sync.Mutex
	rng   *rand.Rand
	delay time.Duration
}

// NewSimulatedAnalyzer creates a new SimulatedAnalyzer drawing from rng.
func NewSimulatedAnalyzer(rng *rand.Rand, delay time.Duration) *SimulatedAnalyzer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &SimulatedAnalyzer{rng: rng, delay: delay}
}

// Analyze implements Analyzer.
func (a *SimulatedAnalyzer) Analyze(ctx context.Context, _ PhotoInput) (Diagnosis, error) {
	if a.delay > 0 {
		timer := time.NewTimer(a.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Diagnosis{}, ctx.Err()
		}
	}
	a.mu.Lock()
	d := simulatedDiagnoses[a.rng.Intn(len(simulatedDiagnoses))]
	a.mu.Unlock()
	return d, nil
}

// PhotoAnalysisService stores photos, runs the analyzer and records the outcome.
type PhotoAnalysisService struct {
	store    PhotoStore
	analyzer Analyzer
	table    repositories.Table[models.PhotoAnalysis]
	notifier *NotificationService
	logger   *zap.Logger
}

// NewPhotoAnalysisService creates a new PhotoAnalysisService. notifier may be nil.
func NewPhotoAnalysisService(store PhotoStore, analyzer Analyzer, table repositories.Table[models.PhotoAnalysis], notifier *NotificationService, logger *zap.Logger) *PhotoAnalysisService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PhotoAnalysisService{store: store, analyzer: analyzer, table: table, notifier: notifier, logger: logger}
}

// Submit stores the photo of userID and records its diagnosis. An analyzer failure is
// recorded as a failed analysis rather than returned.
func (s *PhotoAnalysisService) Submit(ctx context.Context, userID string, in PhotoInput) (*models.PhotoAnalysis, error) {
	if len(in.Data) == 0 || len(in.Data) > maxPhotoSize {
		return nil, validationError("La photo doit faire entre 1 octet et 10 Mo")
	}
	if !strings.HasPrefix(in.ContentType, "image/") {
		return nil, validationError("Seules les images sont acceptées")
	}

	key := fmt.Sprintf("photos/%s/%s%s", userID, uuid.New().String(), strings.ToLower(path.Ext(in.Filename)))
	if err := s.store.Put(ctx, key, in.ContentType, in.Data); err != nil {
		return nil, fmt.Errorf("failed to store photo: %w", err)
	}

	row := &models.PhotoAnalysis{StorageKey: key, CultureType: in.CultureType}
	row.SetOwner(userID)

	d, err := s.analyzer.Analyze(ctx, in)
	if err != nil {
		s.logger.Warn("photo analysis failed", zap.String("key", key), zap.Error(err))
		row.Status = AnalysisFailed
	} else {
		row.Status = AnalysisCompleted
		row.HealthScore = d.HealthScore
		row.Diagnosis = d.Summary
		row.Recommendations = strings.Join(d.Recommendations, "\n")
	}

	if err := s.table.Insert(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to record analysis: %w", err)
	}
	if err := s.ResolveURL(ctx, row); err != nil {
		return nil, err
	}

	if s.notifier != nil && row.Status == AnalysisCompleted {
		_ = s.notifier.Publish(NotificationEvent{
			UserID: userID,
			Kind:   NotifyAnalysisReady,
			Title:  "Analyse terminée",
			Body:   fmt.Sprintf("%s (score %.0f/100)", row.Diagnosis, row.HealthScore),
		})
	}
	return row, nil
}

// ResolveURL fills the ImageURL of row with a fresh link to its stored photo.
func (s *PhotoAnalysisService) ResolveURL(ctx context.Context, row *models.PhotoAnalysis) error {
	if row.StorageKey == "" {
		return nil
	}
	url, err := s.store.URL(ctx, row.StorageKey)
	if err != nil {
		return fmt.Errorf("failed to resolve photo url: %w", err)
	}
	row.ImageURL = url
	return nil
}

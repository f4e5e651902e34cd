package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/platewise-api/internal/analysis"
	"github.com/phrazzld/platewise-api/internal/redact"
	"github.com/phrazzld/platewise-api/internal/task"
	"golang.org/x/sync/errgroup"
)

// Task names recorded on submitted records
const (
	MealAnalysisTask  = "meal_analysis"
	BatchAnalysisTask = "batch_meal_analysis"
	WeeklyInsightTask = "weekly_insight"
)

// MaxBatchSize bounds the number of photos accepted in one batch request
const MaxBatchSize = 50

// Submitter defines the interface for queueing background work
type Submitter interface {
	// Submit adds work to the processing queue and returns the task ID
	Submit(ctx context.Context, name string, work task.Work, opts ...task.SubmitOption) (uuid.UUID, error)
}

// Config holds the tunables of the workflows
type Config struct {
	// AnalysisTimeout bounds one meal analysis attempt
	AnalysisTimeout time.Duration

	// BatchConcurrency limits parallel analyses inside a batch task
	BatchConcurrency int
}

// BatchItem is the outcome of one photo within a batch
type BatchItem struct {
	MealID   uuid.UUID              `json:"meal_id"`
	Feedback *analysis.MealFeedback `json:"feedback,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// BatchResult is the task result of a batch analysis
type BatchResult struct {
	Items     []BatchItem `json:"items"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

// Service submits meal analysis workflows to the task processor
type Service struct {
	submitter Submitter
	analyzer  analysis.Analyzer
	config    Config
	logger    *slog.Logger
}

// NewService creates a new workflow service
func NewService(submitter Submitter, analyzer analysis.Analyzer, config Config, logger *slog.Logger) (*Service, error) {
	if submitter == nil {
		return nil, errors.New("submitter cannot be nil")
	}
	if analyzer == nil {
		return nil, errors.New("analyzer cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if config.BatchConcurrency <= 0 {
		logger.Warn("invalid batch concurrency specified, using default",
			"specified_count", config.BatchConcurrency,
			"default_count", 1)
		config.BatchConcurrency = 1
	}

	return &Service{
		submitter: submitter,
		analyzer:  analyzer,
		config:    config,
		logger:    logger.With("component", "workflow_service"),
	}, nil
}

// SubmitMealAnalysis queues a high priority analysis of one meal photo
func (s *Service) SubmitMealAnalysis(ctx context.Context, photo analysis.MealPhoto) (uuid.UUID, error) {
	if err := photo.Validate(); err != nil {
		return uuid.Nil, err
	}

	work := func(ctx context.Context) (any, error) {
		return s.analyzer.AnalyzeMeal(ctx, photo)
	}

	id, err := s.submitter.Submit(ctx, MealAnalysisTask, work,
		task.WithPriority(task.PriorityHigh),
		task.WithTimeout(s.config.AnalysisTimeout),
	)
	if err != nil {
		return uuid.Nil, &SubmitError{Workflow: MealAnalysisTask, Err: err}
	}

	s.logger.InfoContext(ctx, "meal analysis submitted",
		"task_id", id,
		"meal_id", photo.MealID)
	return id, nil
}

// SubmitBatchAnalysis queues one task that analyzes every photo of the batch
// with bounded concurrency. The task succeeds if at least one photo could be
// analyzed; per-photo failures are reported in the BatchResult.
func (s *Service) SubmitBatchAnalysis(ctx context.Context, photos []analysis.MealPhoto) (uuid.UUID, error) {
	if len(photos) == 0 {
		return uuid.Nil, ErrEmptyBatch
	}
	if len(photos) > MaxBatchSize {
		return uuid.Nil, fmt.Errorf("%w: %d photos, limit %d", ErrBatchTooLarge, len(photos), MaxBatchSize)
	}
	for i, photo := range photos {
		if err := photo.Validate(); err != nil {
			return uuid.Nil, fmt.Errorf("photo %d: %w", i, err)
		}
	}

	// the closure must not observe later changes to the caller's slice
	batch := append([]analysis.MealPhoto(nil), photos...)

	work := func(ctx context.Context) (any, error) {
		return s.analyzeBatch(ctx, batch)
	}

	id, err := s.submitter.Submit(ctx, BatchAnalysisTask, work,
		task.WithPriority(task.PriorityNormal),
	)
	if err != nil {
		return uuid.Nil, &SubmitError{Workflow: BatchAnalysisTask, Err: err}
	}

	s.logger.InfoContext(ctx, "batch analysis submitted",
		"task_id", id,
		"photo_count", len(batch))
	return id, nil
}

// SubmitWeeklyInsight queues a low priority weekly summary. Failures back off
// exponentially since the summary is never urgent.
func (s *Service) SubmitWeeklyInsight(ctx context.Context, req analysis.WeekRequest) (uuid.UUID, error) {
	if err := req.Validate(); err != nil {
		return uuid.Nil, err
	}

	work := func(ctx context.Context) (any, error) {
		return s.analyzer.SummarizeWeek(ctx, req)
	}

	id, err := s.submitter.Submit(ctx, WeeklyInsightTask, work,
		task.WithPriority(task.PriorityLow),
		task.WithExponentialBackoff(),
	)
	if err != nil {
		return uuid.Nil, &SubmitError{Workflow: WeeklyInsightTask, Err: err}
	}

	s.logger.InfoContext(ctx, "weekly insight submitted",
		"task_id", id,
		"user_id", req.UserID,
		"meal_count", len(req.Meals))
	return id, nil
}

// analyzeBatch runs the analyses of a batch, at most BatchConcurrency at a time
func (s *Service) analyzeBatch(ctx context.Context, photos []analysis.MealPhoto) (*BatchResult, error) {
	items := make([]BatchItem, len(photos))

	var g errgroup.Group
	g.SetLimit(s.config.BatchConcurrency)

	for i, photo := range photos {
		g.Go(func() error {
			items[i] = s.analyzeItem(ctx, photo)
			return nil
		})
	}
	_ = g.Wait()

	result := &BatchResult{Items: items}
	for _, item := range items {
		if item.Error == "" {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	s.logger.InfoContext(ctx, "batch analysis finished",
		"succeeded", result.Succeeded,
		"failed", result.Failed)

	if result.Succeeded == 0 {
		return nil, fmt.Errorf("%w: %d of %d", ErrBatchFailed, result.Failed, len(photos))
	}
	return result, nil
}

// analyzeItem analyzes one photo of a batch under its own timeout
func (s *Service) analyzeItem(ctx context.Context, photo analysis.MealPhoto) BatchItem {
	item := BatchItem{MealID: photo.MealID}

	if err := ctx.Err(); err != nil {
		item.Error = redact.Error(err)
		return item
	}

	if s.config.AnalysisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.AnalysisTimeout)
		defer cancel()
	}

	feedback, err := s.analyzer.AnalyzeMeal(ctx, photo)
	if err != nil {
		s.logger.WarnContext(ctx, "batch item analysis failed",
			"meal_id", photo.MealID,
			"error", redact.Error(err))
		item.Error = redact.Error(err)
		return item
	}

	item.Feedback = feedback
	return item
}

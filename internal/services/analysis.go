package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/apperr"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/models"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/progress"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const errNoIndividualAnalyses = "no individual analyses found"

var errSessionArchived = errors.New("session is archived")

// AnalysisService runs the two-phase insight pipeline. Phase 1 analyzes every
// non-empty discussion of the requested population; phase 2 synthesizes the
// individual results into one report. Each execution is an AnalysisRun job.
type AnalysisService struct {
	db          *gorm.DB
	completer   Completer
	notifier    progress.Notifier
	concurrency int
	model       ModelConfig

	wg sync.WaitGroup
}

func NewAnalysisService(db *gorm.DB, completer Completer, notifier progress.Notifier, concurrency int, model ModelConfig) *AnalysisService {
	if notifier == nil {
		notifier = progress.Discard{}
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &AnalysisService{
		db:          db,
		completer:   completer,
		notifier:    notifier,
		concurrency: concurrency,
		model:       model,
	}
}

// Enqueue reserves the session for a new run. Only one run per session may be
// queued or processing at a time.
func (s *AnalysisService) Enqueue(ctx context.Context, sc SessionContext, analysisType string) (*models.AnalysisRun, error) {
	if !models.ValidAnalysisType(analysisType) {
		return nil, apperr.WithMetadata(apperr.CodeValidation,
			"analysis_type must be one of nuggets, lightbulbs, overall",
			map[string]string{"analysis_type": analysisType})
	}

	now := sc.now()
	run := models.AnalysisRun{
		ID:           uuid.NewString(),
		SessionID:    sc.SessionID,
		AnalysisType: analysisType,
		Status:       models.AnalysisStatusQueued,
		QueuedAt:     now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("id = ?", sc.SessionID)
		if !sc.System {
			q = q.Where("host_id = ?", sc.HostID)
		}
		var session models.Session
		if err := q.First(&session).Error; err != nil {
			return lookupErr(err, "session not found")
		}
		if session.Status != models.SessionStatusAIDiscussion {
			return invalidTransition("start analysis", session.Status, models.SessionStatusAIDiscussion)
		}

		res := tx.Model(&models.Session{}).
			Where("id = ? AND status = ? AND analysis_status NOT IN ?", session.ID,
				models.SessionStatusAIDiscussion,
				[]string{models.AnalysisStatusQueued, models.AnalysisStatusProcessing}).
			Updates(map[string]any{
				"analysis_status":   models.AnalysisStatusQueued,
				"analysis_type":     analysisType,
				"analysis_progress": 0,
				"analysis_run_id":   run.ID,
				"analysis_error":    "",
			})
		if res.Error != nil {
			return fmt.Errorf("queue analysis: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var current models.Session
			if err := tx.First(&current, session.ID).Error; err != nil {
				return lookupErr(err, "session not found")
			}
			if current.Status != models.SessionStatusAIDiscussion {
				return invalidTransition("start analysis", current.Status, models.SessionStatusAIDiscussion)
			}
			return apperr.WithMetadata(apperr.CodeConcurrencyConflict,
				"an analysis is already running for this session",
				map[string]string{"run_id": current.AnalysisRunID, "analysis_status": current.AnalysisStatus})
		}

		if err := tx.Create(&run).Error; err != nil {
			return fmt.Errorf("create analysis run: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("analysis: session %d queued %s run %s", run.SessionID, analysisType, run.ID)
	s.notify(ctx, &run, models.AnalysisStatusQueued, 0, "")
	return &run, nil
}

// Start enqueues a run and executes it in the background.
func (s *AnalysisService) Start(ctx context.Context, sc SessionContext, analysisType string) (*models.AnalysisRun, error) {
	run, err := s.Enqueue(ctx, sc, analysisType)
	if err != nil {
		return nil, err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.Execute(context.Background(), run.ID); err != nil {
			log.Printf("analysis: run %s: %v", run.ID, err)
		}
	}()
	return run, nil
}

// StartSequence runs the given analysis types one after another in the
// background. A type whose run cannot be queued or fails is logged and the
// sequence moves on.
func (s *AnalysisService) StartSequence(sessionID uint, analysisTypes ...string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx := context.Background()
		for _, t := range analysisTypes {
			run, err := s.Enqueue(ctx, SystemContext(sessionID, time.Time{}), t)
			if err != nil {
				log.Printf("analysis: session %d: queue %s: %v", sessionID, t, err)
				continue
			}
			if _, err := s.Execute(ctx, run.ID); err != nil {
				log.Printf("analysis: run %s: %v", run.ID, err)
			}
		}
	}()
}

// Wait blocks until background runs have finished.
func (s *AnalysisService) Wait() {
	s.wg.Wait()
}

// Execute runs a queued job to completion. Pipeline failures are recorded on
// the run and the session; the returned error is reserved for runs that could
// not be started or whose bookkeeping failed.
func (s *AnalysisService) Execute(ctx context.Context, runID string) (*models.AnalysisRun, error) {
	db := s.db.WithContext(ctx)

	var run models.AnalysisRun
	if err := db.First(&run, "id = ?", runID).Error; err != nil {
		return nil, lookupErr(err, "analysis run not found")
	}
	if run.Status != models.AnalysisStatusQueued {
		return nil, apperr.WithMetadata(apperr.CodeInvalidState,
			fmt.Sprintf("analysis run is %s, expected queued", run.Status),
			map[string]string{"run_id": run.ID, "status": run.Status})
	}

	if err := s.begin(ctx, &run); err != nil {
		if errors.Is(err, errSessionArchived) {
			return s.fail(ctx, &run, err.Error(), false)
		}
		return nil, err
	}
	s.notify(ctx, &run, models.AnalysisStatusProcessing, 0, "")

	discussions, names, err := s.population(db, &run)
	if err != nil {
		return s.fail(ctx, &run, err.Error(), true)
	}

	run.TotalDiscussions = len(discussions)
	if err := db.Model(&models.AnalysisRun{}).Where("id = ?", run.ID).
		Update("total_discussions", run.TotalDiscussions).Error; err != nil {
		log.Printf("analysis: run %s: store total: %v", run.ID, err)
	}

	// Phase 1. Workers never abort the group on a per-discussion failure;
	// only an archived session stops the run.
	var (
		mu        sync.Mutex
		processed int
		failed    int
		published int
		lastErr   error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range discussions {
		d := &discussions[i]
		g.Go(func() error {
			err := s.analyzeDiscussion(gctx, &run, d, names[d.ParticipantID])

			mu.Lock()
			defer mu.Unlock()
			processed++
			if err != nil {
				failed++
				lastErr = err
				log.Printf("analysis: run %s: discussion %d: %v", run.ID, d.ID, err)
			}
			if p := phaseOneProgress(processed, len(discussions)); p > published {
				published = p
				s.reportProgress(ctx, &run, p)
			}
			if errors.Is(err, errSessionArchived) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return s.fail(ctx, &run, err.Error(), false)
	}

	run.ProcessedDiscussions = processed - failed
	run.FailedDiscussions = failed
	if err := db.Model(&models.AnalysisRun{}).Where("id = ?", run.ID).
		Updates(map[string]any{
			"processed_discussions": run.ProcessedDiscussions,
			"failed_discussions":    run.FailedDiscussions,
		}).Error; err != nil {
		log.Printf("analysis: run %s: store counters: %v", run.ID, err)
	}

	// Phase 2.
	var analyses []models.DiscussionAnalysis
	if err := db.Where("session_id = ? AND analysis_type = ? AND run_id = ? AND status = ?",
		run.SessionID, run.AnalysisType, run.ID, models.DiscussionAnalysisCompleted).
		Order("discussion_id ASC").
		Find(&analyses).Error; err != nil {
		return s.fail(ctx, &run, fmt.Sprintf("load individual analyses: %v", err), true)
	}
	if len(analyses) == 0 {
		return s.fail(ctx, &run, errNoIndividualAnalyses, lastErr != nil && apperr.IsRetryable(lastErr))
	}

	text, err := s.completer.Complete(ctx, synthesisPromptFor(run.AnalysisType, analyses), s.model)
	if err != nil {
		return s.fail(ctx, &run, "synthesis failed: "+err.Error(), apperr.IsRetryable(err))
	}
	content := cleanJSONContent(text)
	if !json.Valid([]byte(content)) {
		return s.fail(ctx, &run, "synthesis returned malformed JSON", true)
	}

	err = s.guardedWrite(ctx, &run, func(tx *gorm.DB) error {
		global := models.GlobalAnalysis{
			SessionID:    run.SessionID,
			AnalysisType: run.AnalysisType,
			RunID:        run.ID,
			SourceCount:  len(analyses),
			Content:      datatypes.JSON(content),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "analysis_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"run_id", "source_count", "content", "updated_at"}),
		}).Create(&global).Error; err != nil {
			return err
		}
		// Earlier results of the type stay current until this point, so a
		// failed rerun leaves the last committed run intact.
		return tx.Model(&models.DiscussionAnalysis{}).
			Where("session_id = ? AND analysis_type = ? AND run_id <> ?", run.SessionID, run.AnalysisType, run.ID).
			Update("status", models.DiscussionAnalysisSuperseded).Error
	})
	if err != nil {
		return s.fail(ctx, &run, "store synthesis: "+err.Error(), !errors.Is(err, errSessionArchived))
	}

	return s.complete(ctx, &run)
}

func phaseOneProgress(processed, total int) int {
	if total == 0 {
		return 0
	}
	p := int(math.Round(100 * float64(processed) / float64(total)))
	if p > 99 {
		p = 99
	}
	return p
}

// begin moves the session and the run from queued to processing.
func (s *AnalysisService) begin(ctx context.Context, run *models.AnalysisRun) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Session{}).
			Where("id = ? AND analysis_run_id = ? AND analysis_status = ? AND status = ?",
				run.SessionID, run.ID, models.AnalysisStatusQueued, models.SessionStatusAIDiscussion).
			Updates(map[string]any{"analysis_status": models.AnalysisStatusProcessing})
		if res.Error != nil {
			return fmt.Errorf("start analysis: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var current models.Session
			if err := tx.First(&current, run.SessionID).Error; err != nil {
				return lookupErr(err, "session not found")
			}
			if current.Status == models.SessionStatusArchived {
				return errSessionArchived
			}
			return apperr.WithMetadata(apperr.CodeConcurrencyConflict,
				"analysis run is no longer current for this session",
				map[string]string{"run_id": run.ID, "current_run_id": current.AnalysisRunID})
		}

		if err := tx.Model(&models.AnalysisRun{}).Where("id = ?", run.ID).
			Updates(map[string]any{"status": models.AnalysisStatusProcessing, "started_at": now}).Error; err != nil {
			return fmt.Errorf("start analysis run: %w", err)
		}
		run.Status = models.AnalysisStatusProcessing
		run.StartedAt = &now
		return nil
	})
}

// population loads the non-deleted, non-empty discussions the analysis type
// covers, with participant names.
func (s *AnalysisService) population(db *gorm.DB, run *models.AnalysisRun) ([]models.Discussion, map[uint]string, error) {
	q := db.Where("session_id = ?", run.SessionID)
	switch run.AnalysisType {
	case models.AnalysisTypeNuggets:
		q = q.Where("agent_type = ?", models.AgentTypeNugget)
	case models.AnalysisTypeLightbulbs:
		q = q.Where("agent_type = ?", models.AgentTypeLightbulb)
	}

	var all []models.Discussion
	if err := q.Preload("Messages", orderedMessages).
		Order("id ASC").
		Find(&all).Error; err != nil {
		return nil, nil, fmt.Errorf("load discussions: %w", err)
	}

	discussions := all[:0]
	for _, d := range all {
		if len(d.Messages) > 0 {
			discussions = append(discussions, d)
		}
	}

	names, err := displayNames(db, run.SessionID)
	if err != nil {
		return nil, nil, err
	}
	return discussions, names, nil
}

func (s *AnalysisService) analyzeDiscussion(ctx context.Context, run *models.AnalysisRun, d *models.Discussion, displayName string) error {
	text, err := s.completer.Complete(ctx, discussionAnalysisPrompt(run.AnalysisType, d, displayName), s.model)
	if err != nil {
		return err
	}
	content := cleanJSONContent(text)
	if !json.Valid([]byte(content)) {
		return apperr.External("completion returned malformed JSON", nil, true)
	}

	return s.guardedWrite(ctx, run, func(tx *gorm.DB) error {
		row := models.DiscussionAnalysis{
			SessionID:    run.SessionID,
			DiscussionID: d.ID,
			AnalysisType: run.AnalysisType,
			RunID:        run.ID,
			Status:       models.DiscussionAnalysisCompleted,
			Content:      datatypes.JSON(content),
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "discussion_id"}, {Name: "analysis_type"}, {Name: "run_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "content", "updated_at"}),
		}).Create(&row).Error
	})
}

// guardedWrite runs fn in a transaction after checking that the session is
// not archived and run is still its current run.
func (s *AnalysisService) guardedWrite(ctx context.Context, run *models.AnalysisRun, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "SHARE"})
		}
		var session models.Session
		if err := q.First(&session, run.SessionID).Error; err != nil {
			return lookupErr(err, "session not found")
		}
		if session.Status == models.SessionStatusArchived {
			return errSessionArchived
		}
		if session.AnalysisRunID != run.ID {
			return apperr.New(apperr.CodeConcurrencyConflict, "analysis run was superseded")
		}
		return fn(tx)
	})
}

// reportProgress writes p only when it does not lower the stored value for
// this run, then publishes it. Callers serialize calls per run.
func (s *AnalysisService) reportProgress(ctx context.Context, run *models.AnalysisRun, p int) {
	db := s.db.WithContext(ctx)
	res := db.Model(&models.Session{}).
		Where("id = ? AND analysis_run_id = ? AND analysis_status = ? AND status = ? AND analysis_progress <= ?",
			run.SessionID, run.ID, models.AnalysisStatusProcessing, models.SessionStatusAIDiscussion, p).
		Update("analysis_progress", p)
	if res.Error != nil {
		log.Printf("analysis: run %s: store progress: %v", run.ID, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		return
	}
	if err := db.Model(&models.AnalysisRun{}).Where("id = ? AND progress <= ?", run.ID, p).
		Update("progress", p).Error; err != nil {
		log.Printf("analysis: run %s: store run progress: %v", run.ID, err)
	}
	run.Progress = p
	s.notify(ctx, run, models.AnalysisStatusProcessing, p, "")
}

func (s *AnalysisService) complete(ctx context.Context, run *models.AnalysisRun) (*models.AnalysisRun, error) {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Session{}).
			Where("id = ? AND analysis_run_id = ? AND analysis_status = ? AND status = ?",
				run.SessionID, run.ID, models.AnalysisStatusProcessing, models.SessionStatusAIDiscussion).
			Updates(map[string]any{
				"analysis_status":   models.AnalysisStatusCompleted,
				"analysis_progress": 100,
				"analysis_error":    "",
			})
		if res.Error != nil {
			return fmt.Errorf("complete analysis: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errSessionArchived
		}
		return tx.Model(&models.AnalysisRun{}).Where("id = ?", run.ID).
			Updates(map[string]any{
				"status":      models.AnalysisStatusCompleted,
				"progress":    100,
				"finished_at": now,
			}).Error
	})
	if errors.Is(err, errSessionArchived) {
		return s.fail(ctx, run, err.Error(), false)
	}
	if err != nil {
		return nil, err
	}

	run.Status = models.AnalysisStatusCompleted
	run.Progress = 100
	run.FinishedAt = &now
	log.Printf("analysis: run %s completed (%d ok, %d failed)", run.ID, run.ProcessedDiscussions, run.FailedDiscussions)
	s.notify(ctx, run, models.AnalysisStatusCompleted, 100, "")
	return run, nil
}

// fail records a terminal failure and publishes it. An archived session keeps
// its analysis fields; only the run record is updated.
func (s *AnalysisService) fail(ctx context.Context, run *models.AnalysisRun, reason string, retryable bool) (*models.AnalysisRun, error) {
	now := time.Now().UTC()
	db := s.db.WithContext(ctx)

	res := db.Model(&models.Session{}).
		Where("id = ? AND analysis_run_id = ? AND analysis_status IN ? AND status != ?",
			run.SessionID, run.ID,
			[]string{models.AnalysisStatusQueued, models.AnalysisStatusProcessing},
			models.SessionStatusArchived).
		Updates(map[string]any{
			"analysis_status": models.AnalysisStatusFailed,
			"analysis_error":  reason,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("fail analysis: %w", res.Error)
	}
	if err := db.Model(&models.AnalysisRun{}).Where("id = ?", run.ID).
		Updates(map[string]any{
			"status":      models.AnalysisStatusFailed,
			"error":       reason,
			"retryable":   retryable,
			"finished_at": now,
		}).Error; err != nil {
		return nil, fmt.Errorf("fail analysis run: %w", err)
	}

	run.Status = models.AnalysisStatusFailed
	run.Error = reason
	run.Retryable = retryable
	run.FinishedAt = &now
	log.Printf("analysis: run %s failed: %s", run.ID, reason)

	// Observers of a session whose row was left untouched still learn how
	// the run ended.
	sessionStatus := models.SessionStatusAIDiscussion
	if res.RowsAffected == 0 {
		var current models.Session
		if err := db.Select("status").First(&current, run.SessionID).Error; err != nil {
			log.Printf("analysis: run %s: load session status: %v", run.ID, err)
		} else {
			sessionStatus = current.Status
		}
	}
	s.publish(ctx, run, sessionStatus, models.AnalysisStatusFailed, run.Progress, reason)
	return run, nil
}

func (s *AnalysisService) notify(ctx context.Context, run *models.AnalysisRun, status string, p int, reason string) {
	s.publish(ctx, run, models.SessionStatusAIDiscussion, status, p, reason)
}

func (s *AnalysisService) publish(ctx context.Context, run *models.AnalysisRun, sessionStatus, status string, p int, reason string) {
	err := s.notifier.Notify(ctx, progress.Update{
		SessionID:        run.SessionID,
		Kind:             progress.KindAnalysis,
		SessionStatus:    sessionStatus,
		AnalysisStatus:   status,
		AnalysisType:     run.AnalysisType,
		AnalysisProgress: p,
		RunID:            run.ID,
		Error:            reason,
		At:               time.Now().UTC(),
	})
	if err != nil {
		log.Printf("analysis: run %s: notify %s: %v", run.ID, status, err)
	}
}

// FailInterrupted marks runs left queued or processing by a previous process
// as failed and retryable, so their sessions can be analyzed again.
func (s *AnalysisService) FailInterrupted(ctx context.Context) (int, error) {
	var runs []models.AnalysisRun
	if err := s.db.WithContext(ctx).
		Where("status IN ?", []string{models.AnalysisStatusQueued, models.AnalysisStatusProcessing}).
		Find(&runs).Error; err != nil {
		return 0, fmt.Errorf("list interrupted runs: %w", err)
	}
	for i := range runs {
		if _, err := s.fail(ctx, &runs[i], "analysis was interrupted by a restart", true); err != nil {
			return i, err
		}
	}
	return len(runs), nil
}

func (s *AnalysisService) GetRun(ctx context.Context, sc SessionContext, runID string) (*models.AnalysisRun, error) {
	var run models.AnalysisRun
	if err := s.db.WithContext(ctx).
		Where("id = ? AND session_id = ?", runID, sc.SessionID).
		First(&run).Error; err != nil {
		return nil, lookupErr(err, "analysis run not found")
	}
	return &run, nil
}

func (s *AnalysisService) ListRuns(ctx context.Context, sessionID uint) ([]models.AnalysisRun, error) {
	var runs []models.AnalysisRun
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).
		Order("queued_at DESC").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list analysis runs: %w", err)
	}
	return runs, nil
}

type AnalysisResults struct {
	AnalysisType string                      `json:"analysis_type"`
	Global       *models.GlobalAnalysis      `json:"global,omitempty"`
	Individual   []models.DiscussionAnalysis `json:"individual"`
}

// Results returns the analyses of the last run of a type that committed its
// synthesis. Rows of a later run that failed are not included.
func (s *AnalysisService) Results(ctx context.Context, sessionID uint, analysisType string) (*AnalysisResults, error) {
	if !models.ValidAnalysisType(analysisType) {
		return nil, apperr.New(apperr.CodeValidation, "unknown analysis type")
	}
	db := s.db.WithContext(ctx)

	result := &AnalysisResults{AnalysisType: analysisType, Individual: []models.DiscussionAnalysis{}}
	var global models.GlobalAnalysis
	err := db.Where("session_id = ? AND analysis_type = ?", sessionID, analysisType).First(&global).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return result, nil
	case err != nil:
		return nil, fmt.Errorf("load synthesis: %w", err)
	}
	result.Global = &global

	if err := db.Where("session_id = ? AND analysis_type = ? AND run_id = ? AND status = ?",
		sessionID, analysisType, global.RunID, models.DiscussionAnalysisCompleted).
		Order("discussion_id ASC").
		Find(&result.Individual).Error; err != nil {
		return nil, fmt.Errorf("load analyses: %w", err)
	}
	return result, nil
}

package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/apperr"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/models"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/progress"
)

func TestPhaseOneProgress(t *testing.T) {
	tests := []struct {
		processed, total, want int
	}{
		{0, 0, 0},
		{0, 3, 0},
		{1, 3, 33},
		{2, 3, 67},
		{3, 3, 99},
		{199, 200, 99},
	}
	for _, tt := range tests {
		if got := phaseOneProgress(tt.processed, tt.total); got != tt.want {
			t.Errorf("phaseOneProgress(%d, %d) = %d, want %d", tt.processed, tt.total, got, tt.want)
		}
	}
}

func TestAnalysisSkipsEmptyAndToleratesFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, ps := env.newSession(t, "Alice", "Bob", "Cara")
	env.startVoting(t, session.ID, 3, 1)
	env.toDiscussionPhase(t, session.ID)

	env.seedDiscussion(t, session.ID, ps[0].ID, models.AgentTypeNugget, 5)
	env.seedDiscussion(t, session.ID, ps[1].ID, models.AgentTypeLightbulb, 0)
	env.seedDiscussion(t, session.ID, ps[2].ID, models.AgentTypeLightbulb, 3)

	env.completer.respond = func(p Prompt) (string, error) {
		if promptMentions(p, "Participant: Cara\n") {
			return "", apperr.External("completion service returned status 503", nil, true)
		}
		return "```json\n{\"summary\":\"ok\"}\n```", nil
	}

	run, err := env.analysis.Enqueue(ctx, env.hostCtx(session.ID), models.AnalysisTypeOverall)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	run, err = env.analysis.Execute(ctx, run.ID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if run.Status != models.AnalysisStatusCompleted || run.Progress != 100 {
		t.Fatalf("expected completed at 100, got %s at %d (%s)", run.Status, run.Progress, run.Error)
	}
	if run.TotalDiscussions != 2 || run.ProcessedDiscussions != 1 || run.FailedDiscussions != 1 {
		t.Fatalf("unexpected counters: total=%d ok=%d failed=%d",
			run.TotalDiscussions, run.ProcessedDiscussions, run.FailedDiscussions)
	}
	// Two transcripts plus one synthesis; the empty discussion is never sent.
	if n := env.completer.calls(); n != 3 {
		t.Fatalf("expected 3 completion calls, got %d", n)
	}

	stored := env.reloadSession(t, session.ID)
	if stored.AnalysisStatus != models.AnalysisStatusCompleted || stored.AnalysisProgress != 100 {
		t.Fatalf("unexpected session analysis state: %s at %d", stored.AnalysisStatus, stored.AnalysisProgress)
	}

	results, err := env.analysis.Results(ctx, session.ID, models.AnalysisTypeOverall)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(results.Individual) != 1 {
		t.Fatalf("expected 1 individual analysis, got %d", len(results.Individual))
	}
	if string(results.Individual[0].Content) != `{"summary":"ok"}` {
		t.Fatalf("expected fenced JSON to be cleaned, got %s", results.Individual[0].Content)
	}
	if results.Global == nil || results.Global.SourceCount != 1 || results.Global.RunID != run.ID {
		t.Fatalf("unexpected synthesis: %+v", results.Global)
	}

	assertMonotonicProgress(t, env.notes.all(), run.ID)
}

func TestAnalysisFailsWithoutIndividualResults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, ps := env.newSession(t, "Alice", "Bob")
	env.startVoting(t, session.ID, 3, 1)
	env.toDiscussionPhase(t, session.ID)
	env.seedDiscussion(t, session.ID, ps[0].ID, models.AgentTypeNugget, 0)
	env.seedDiscussion(t, session.ID, ps[1].ID, models.AgentTypeLightbulb, 0)

	run, err := env.analysis.Enqueue(ctx, env.hostCtx(session.ID), models.AnalysisTypeOverall)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	run, err = env.analysis.Execute(ctx, run.ID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if run.Status != models.AnalysisStatusFailed || run.Error != errNoIndividualAnalyses {
		t.Fatalf("expected failure %q, got %s (%s)", errNoIndividualAnalyses, run.Status, run.Error)
	}
	if env.completer.calls() != 0 {
		t.Fatalf("expected no completion calls, got %d", env.completer.calls())
	}
	stored := env.reloadSession(t, session.ID)
	if stored.AnalysisStatus != models.AnalysisStatusFailed || stored.AnalysisError != errNoIndividualAnalyses {
		t.Fatalf("unexpected session analysis state: %s (%s)", stored.AnalysisStatus, stored.AnalysisError)
	}

	// A failed run frees the session for another attempt.
	if _, err := env.analysis.Enqueue(ctx, env.hostCtx(session.ID), models.AnalysisTypeOverall); err != nil {
		t.Fatalf("expected a retry to be accepted, got %v", err)
	}
}

func TestAnalysisRetryableWhenEveryCallFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, ps := env.newSession(t, "Alice", "Bob")
	env.startVoting(t, session.ID, 3, 1)
	env.toDiscussionPhase(t, session.ID)
	env.seedDiscussion(t, session.ID, ps[0].ID, models.AgentTypeNugget, 2)

	env.completer.respond = func(Prompt) (string, error) {
		return "", apperr.External("completion request timed out", nil, true)
	}

	run, err := env.analysis.Enqueue(ctx, env.hostCtx(session.ID), models.AnalysisTypeNuggets)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	run, err = env.analysis.Execute(ctx, run.ID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if run.Status != models.AnalysisStatusFailed || !run.Retryable {
		t.Fatalf("expected a retryable failure, got %s retryable=%v", run.Status, run.Retryable)
	}
}

func TestEnqueueGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, _ := env.newSession(t, "Alice", "Bob")
	sc := env.hostCtx(session.ID)

	if _, err := env.analysis.Enqueue(ctx, sc, "everything"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected VALIDATION for an unknown type, got %v", err)
	}
	if _, err := env.analysis.Enqueue(ctx, sc, models.AnalysisTypeNuggets); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected INVALID_STATE outside ai_discussion, got %v", err)
	}

	env.startVoting(t, session.ID, 3, 1)
	env.toDiscussionPhase(t, session.ID)

	other := HostContext(session.ID, env.host.ID+1)
	if _, err := env.analysis.Enqueue(ctx, other, models.AnalysisTypeNuggets); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected NOT_FOUND for another host, got %v", err)
	}

	first, err := env.analysis.Enqueue(ctx, sc, models.AnalysisTypeNuggets)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	_, err = env.analysis.Enqueue(ctx, sc, models.AnalysisTypeLightbulbs)
	if !errors.Is(err, apperr.ErrConcurrencyConflict) {
		t.Fatalf("expected CONCURRENCY_CONFLICT while a run is queued, got %v", err)
	}

	stored := env.reloadSession(t, session.ID)
	if stored.AnalysisRunID != first.ID || stored.AnalysisType != models.AnalysisTypeNuggets {
		t.Fatalf("expected the first run to keep the session, got %s/%s", stored.AnalysisRunID, stored.AnalysisType)
	}

	if _, err := env.analysis.Execute(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected NOT_FOUND for an unknown run, got %v", err)
	}
}

func TestConcurrentEnqueueQueuesOneRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, _ := env.newSession(t, "Alice", "Bob")
	env.startVoting(t, session.ID, 3, 1)
	env.toDiscussionPhase(t, session.ID)

	types := []string{models.AnalysisTypeNuggets, models.AnalysisTypeLightbulbs, models.AnalysisTypeOverall}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		queued   []string
		conflict int
	)
	for i := 0; i < 9; i++ {
		wg.Add(1)
		go func(analysisType string) {
			defer wg.Done()
			run, err := env.analysis.Enqueue(ctx, env.hostCtx(session.ID), analysisType)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				queued = append(queued, run.ID)
			case errors.Is(err, apperr.ErrConcurrencyConflict):
				conflict++
			default:
				t.Errorf("enqueue %s: %v", analysisType, err)
			}
		}(types[i%len(types)])
	}
	wg.Wait()

	if len(queued) != 1 || conflict != 8 {
		t.Fatalf("expected one queued run and 8 conflicts, got %d and %d", len(queued), conflict)
	}
	runs, err := env.analysis.ListRuns(ctx, session.ID)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != queued[0] || runs[0].Status != models.AnalysisStatusQueued {
		t.Fatalf("expected the single queued run to be stored, got %+v", runs)
	}
	if stored := env.reloadSession(t, session.ID); stored.AnalysisRunID != queued[0] {
		t.Fatalf("expected the session to point at %s, got %s", queued[0], stored.AnalysisRunID)
	}
}

func TestRerunSupersedesPreviousResults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, ps := env.newSession(t, "Alice", "Bob")
	env.startVoting(t, session.ID, 3, 1)
	env.toDiscussionPhase(t, session.ID)
	env.seedDiscussion(t, session.ID, ps[0].ID, models.AgentTypeNugget, 2)
	env.seedDiscussion(t, session.ID, ps[1].ID, models.AgentTypeLightbulb, 2)

	runOnce := func(answer string) *models.AnalysisRun {
		t.Helper()
		env.completer.respond = func(Prompt) (string, error) { return answer, nil }
		run, err := env.analysis.Enqueue(ctx, env.hostCtx(session.ID), models.AnalysisTypeOverall)
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		run, err = env.analysis.Execute(ctx, run.ID)
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if run.Status != models.AnalysisStatusCompleted {
			t.Fatalf("expected completed, got %s (%s)", run.Status, run.Error)
		}
		return run
	}

	first := runOnce(`{"v":1}`)
	second := runOnce(`{"v":2}`)

	var rows []models.DiscussionAnalysis
	if err := env.db.Where("session_id = ?", session.ID).Find(&rows).Error; err != nil {
		t.Fatalf("load analyses: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected one row per discussion and run, got %d", len(rows))
	}
	for _, r := range rows {
		want := models.DiscussionAnalysisCompleted
		if r.RunID == first.ID {
			want = models.DiscussionAnalysisSuperseded
		}
		if r.Status != want {
			t.Fatalf("row of run %s: expected %s, got %s", r.RunID, want, r.Status)
		}
	}

	results, err := env.analysis.Results(ctx, session.ID, models.AnalysisTypeOverall)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(results.Individual) != 2 || results.Global == nil || results.Global.RunID != second.ID {
		t.Fatalf("expected the second run's results, got %d individual, global %+v", len(results.Individual), results.Global)
	}
	for _, r := range results.Individual {
		if r.RunID != second.ID || string(r.Content) != `{"v":2}` {
			t.Fatalf("expected rows of the second run, got run=%s content=%s", r.RunID, r.Content)
		}
	}

	runs, err := env.analysis.ListRuns(ctx, session.ID)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
}

func TestFailedRerunKeepsLastCompletedResults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, ps := env.newSession(t, "Alice", "Bob")
	env.startVoting(t, session.ID, 3, 1)
	env.toDiscussionPhase(t, session.ID)
	env.seedDiscussion(t, session.ID, ps[0].ID, models.AgentTypeNugget, 2)
	env.seedDiscussion(t, session.ID, ps[1].ID, models.AgentTypeLightbulb, 2)

	first, err := env.analysis.Enqueue(ctx, env.hostCtx(session.ID), models.AnalysisTypeOverall)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if first, err = env.analysis.Execute(ctx, first.ID); err != nil || first.Status != models.AnalysisStatusCompleted {
		t.Fatalf("first run: %v %+v", err, first)
	}

	// The rerun analyzes Alice, fails on Bob and then fails the synthesis.
	env.completer.respond = func(p Prompt) (string, error) {
		if promptMentions(p, "Participant: Alice\n") {
			return `{"v":2}`, nil
		}
		return "", apperr.External("completion service returned status 503", nil, true)
	}
	second, err := env.analysis.Enqueue(ctx, env.hostCtx(session.ID), models.AnalysisTypeOverall)
	if err != nil {
		t.Fatalf("enqueue rerun: %v", err)
	}
	if second, err = env.analysis.Execute(ctx, second.ID); err != nil || second.Status != models.AnalysisStatusFailed {
		t.Fatalf("second run: %v %+v", err, second)
	}

	results, err := env.analysis.Results(ctx, session.ID, models.AnalysisTypeOverall)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if results.Global == nil || results.Global.RunID != first.ID {
		t.Fatalf("expected the first run's synthesis, got %+v", results.Global)
	}
	if len(results.Individual) != 2 {
		t.Fatalf("expected the first run's 2 individual analyses, got %d", len(results.Individual))
	}
	for _, r := range results.Individual {
		if r.RunID != first.ID || r.Status != models.DiscussionAnalysisCompleted {
			t.Fatalf("expected a current row of the first run, got run=%s status=%s", r.RunID, r.Status)
		}
	}
}

func TestArchiveStopsRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, ps := env.newSession(t, "Alice", "Bob")
	env.startVoting(t, session.ID, 3, 1)
	env.toDiscussionPhase(t, session.ID)
	env.seedDiscussion(t, session.ID, ps[0].ID, models.AgentTypeNugget, 2)

	run, err := env.analysis.Enqueue(ctx, env.hostCtx(session.ID), models.AnalysisTypeOverall)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	// The session is archived while the first transcript is being analyzed.
	env.completer.respond = func(Prompt) (string, error) {
		if _, err := env.sessions.Archive(ctx, env.hostCtx(session.ID)); err != nil {
			t.Errorf("archive: %v", err)
		}
		return `{"summary":"late"}`, nil
	}

	run, err = env.analysis.Execute(ctx, run.ID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if run.Status != models.AnalysisStatusFailed || run.Retryable {
		t.Fatalf("expected a permanent failure, got %s retryable=%v", run.Status, run.Retryable)
	}

	var count int64
	env.db.Model(&models.DiscussionAnalysis{}).Where("session_id = ?", session.ID).Count(&count)
	if count != 0 {
		t.Fatalf("expected no analysis written after archive, got %d", count)
	}

	stored := env.reloadSession(t, session.ID)
	if stored.Status != models.SessionStatusArchived || stored.AnalysisStatus != models.AnalysisStatusProcessing {
		t.Fatalf("expected the archived session to be left untouched, got %s/%s", stored.Status, stored.AnalysisStatus)
	}

	// Observers still learn that the run ended.
	var published *progress.Update
	for _, u := range env.notes.all() {
		if u.Kind == progress.KindAnalysis && u.RunID == run.ID && u.AnalysisStatus == models.AnalysisStatusFailed {
			published = &u
		}
	}
	if published == nil {
		t.Fatal("expected the failed run to be published")
	}
	if published.SessionStatus != models.SessionStatusArchived {
		t.Fatalf("expected the failure to carry the archived status, got %s", published.SessionStatus)
	}
}

func TestFailInterrupted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, _ := env.newSession(t, "Alice", "Bob")
	env.startVoting(t, session.ID, 3, 1)
	env.toDiscussionPhase(t, session.ID)

	run, err := env.analysis.Enqueue(ctx, env.hostCtx(session.ID), models.AnalysisTypeNuggets)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	n, err := env.analysis.FailInterrupted(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 interrupted run, got %d (%v)", n, err)
	}
	got, err := env.analysis.GetRun(ctx, env.hostCtx(session.ID), run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Status != models.AnalysisStatusFailed || !got.Retryable {
		t.Fatalf("expected failed and retryable, got %s retryable=%v", got.Status, got.Retryable)
	}
	if _, err := env.analysis.Execute(ctx, run.ID); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected INVALID_STATE executing a failed run, got %v", err)
	}
}

func TestStartSequenceRunsEachType(t *testing.T) {
	env := newTestEnv(t)
	session, ps := env.newSession(t, "Alice", "Bob")
	env.startVoting(t, session.ID, 3, 1)
	env.toDiscussionPhase(t, session.ID)
	env.seedDiscussion(t, session.ID, ps[0].ID, models.AgentTypeNugget, 2)
	env.seedDiscussion(t, session.ID, ps[1].ID, models.AgentTypeLightbulb, 2)

	env.analysis.StartSequence(session.ID, models.AnalysisTypeNuggets, models.AnalysisTypeLightbulbs)
	env.analysis.Wait()

	runs, err := env.analysis.ListRuns(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	for _, r := range runs {
		if r.Status != models.AnalysisStatusCompleted {
			t.Fatalf("run %s (%s): expected completed, got %s (%s)", r.ID, r.AnalysisType, r.Status, r.Error)
		}
	}
	if stored := env.reloadSession(t, session.ID); stored.AnalysisType != models.AnalysisTypeLightbulbs {
		t.Fatalf("expected the last type to own the session, got %s", stored.AnalysisType)
	}
}

func assertMonotonicProgress(t *testing.T, updates []progress.Update, runID string) {
	t.Helper()
	last := -1
	var statuses []string
	for _, u := range updates {
		if u.Kind != progress.KindAnalysis || u.RunID != runID {
			continue
		}
		if u.AnalysisProgress < last {
			t.Fatalf("progress went backwards: %d after %d", u.AnalysisProgress, last)
		}
		last = u.AnalysisProgress
		statuses = append(statuses, u.AnalysisStatus)
	}
	if len(statuses) < 3 {
		t.Fatalf("expected queued, processing and completed updates, got %v", statuses)
	}
	if statuses[0] != models.AnalysisStatusQueued || statuses[len(statuses)-1] != models.AnalysisStatusCompleted {
		t.Fatalf("unexpected update sequence %v", statuses)
	}
	if last != 100 {
		t.Fatalf("expected final progress 100, got %d", last)
	}
}

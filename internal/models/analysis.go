package models

import (
	"time"

	"gorm.io/datatypes"
)

// DiscussionAnalysis is one run's result for one discussion. Rows of older
// runs are marked superseded once a newer run of the type commits its
// synthesis.
type DiscussionAnalysis struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	SessionID    uint           `gorm:"not null;index" json:"session_id"`
	DiscussionID uint           `gorm:"not null;uniqueIndex:idx_discussion_analysis_run" json:"discussion_id"`
	AnalysisType string         `gorm:"size:20;not null;uniqueIndex:idx_discussion_analysis_run" json:"analysis_type"`
	RunID        string         `gorm:"size:36;not null;uniqueIndex:idx_discussion_analysis_run;index" json:"run_id"`
	Status       string         `gorm:"size:20;not null" json:"status"`
	Content      datatypes.JSON `json:"content"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type GlobalAnalysis struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	SessionID    uint           `gorm:"not null;uniqueIndex:idx_global_analysis" json:"session_id"`
	AnalysisType string         `gorm:"size:20;not null;uniqueIndex:idx_global_analysis" json:"analysis_type"`
	RunID        string         `gorm:"size:36;not null" json:"run_id"`
	SourceCount  int            `gorm:"not null;default:0" json:"source_count"`
	Content      datatypes.JSON `json:"content"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// AnalysisRun is the job record for one execution of the pipeline.
type AnalysisRun struct {
	ID                   string     `gorm:"primaryKey;size:36" json:"id"`
	SessionID            uint       `gorm:"not null;index" json:"session_id"`
	AnalysisType         string     `gorm:"size:20;not null" json:"analysis_type"`
	Status               string     `gorm:"size:20;not null" json:"status"`
	Progress             int        `gorm:"not null;default:0" json:"progress"`
	TotalDiscussions     int        `gorm:"not null;default:0" json:"total_discussions"`
	ProcessedDiscussions int        `gorm:"not null;default:0" json:"processed_discussions"`
	FailedDiscussions    int        `gorm:"not null;default:0" json:"failed_discussions"`
	Error                string     `gorm:"type:text" json:"error,omitempty"`
	Retryable            bool       `gorm:"not null;default:false" json:"retryable"`
	QueuedAt             time.Time  `json:"queued_at"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	FinishedAt           *time.Time `json:"finished_at,omitempty"`
}

const (
	AnalysisTypeNuggets    = "nuggets"
	AnalysisTypeLightbulbs = "lightbulbs"
	AnalysisTypeOverall    = "overall"

	AnalysisStatusIdle       = ""
	AnalysisStatusQueued     = "queued"
	AnalysisStatusProcessing = "processing"
	AnalysisStatusCompleted  = "completed"
	AnalysisStatusFailed     = "failed"

	DiscussionAnalysisCompleted  = "completed"
	DiscussionAnalysisSuperseded = "superseded"
)

func ValidAnalysisType(t string) bool {
	return t == AnalysisTypeNuggets || t == AnalysisTypeLightbulbs || t == AnalysisTypeOverall
}

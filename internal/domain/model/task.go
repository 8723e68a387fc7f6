package model

import (
	"fmt"
	"strings"

	"mbti-report-console/internal/domain"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

func ParseTaskStatus(s string) (TaskStatus, error) {
	st := TaskStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownStatus, s)
}

// Terminal reports whether the status ends a poll loop.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Severity maps a task status onto the status display tag.
func (s TaskStatus) Severity() Severity {
	switch s {
	case TaskStatusFailed:
		return SeverityError
	case TaskStatusCompleted:
		return SeveritySuccess
	default:
		return SeverityProcessing
	}
}

// Icon is the glyph prefixed to report task status lines.
func (s TaskStatus) Icon() string {
	switch s {
	case TaskStatusPending:
		return "⏳"
	case TaskStatusCompleted:
		return "✅"
	case TaskStatusFailed:
		return "❌"
	default:
		return "🔄"
	}
}

// Snapshot is one read of a task's state from the status endpoint.
type Snapshot struct {
	TaskID             string
	Status             TaskStatus
	Message            string
	Progress           int // 0 means "no data"
	DownloadURL        string
	InsightPDFURL      string
	InsightPDFFilename string
}

// Task is a server-side job the console is tracking.
type Task struct {
	ID       string
	Workflow Workflow
	Kind     PollKind
}

type PollKind string

const (
	PollKindReport       PollKind = "report"
	PollKindInsight      PollKind = "insight"
	PollKindGroupInsight PollKind = "group_insight"
)

// PollOutcome is the single reason a poll loop stopped.
type PollOutcome string

const (
	OutcomeCompleted      PollOutcome = "completed"
	OutcomeFailed         PollOutcome = "failed"
	OutcomeTimeout        PollOutcome = "timeout"
	OutcomeTransportError PollOutcome = "transport_error"
	OutcomeCanceled       PollOutcome = "canceled"
)

// PollResult summarizes a finished loop.
type PollResult struct {
	LoopID     string
	Task       Task
	Outcome    PollOutcome
	Attempts   int
	Last       *Snapshot
	Err        error
	Superseded bool
}

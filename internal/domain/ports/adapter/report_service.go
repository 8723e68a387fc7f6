package adapter

import (
	"context"
	"io"

	"mbti-report-console/internal/domain/model"
)

// InsightRequest asks the service for an insight on a previously generated report.
type InsightRequest struct {
	DownloadURL       string
	RelationshipType  string
	RelationshipGoals string
}

// GroupInsightRequest carries the group insight form; GroupTaskID links it to the uploaded group report.
type GroupInsightRequest struct {
	GroupTaskID        string `json:"group_task_id"`
	GroupName          string `json:"group_name"`
	Industry           string `json:"industry"`
	TeamType           string `json:"team_type"`
	AnalysisGoal       string `json:"analysis_goal"`
	NumberOfMembers    string `json:"number_of_members,omitempty"`
	DurationTogether   string `json:"duration_together,omitempty"`
	Roles              string `json:"roles,omitempty"`
	ExistingChallenges string `json:"existing_challenges,omitempty"`
	CommunicationStyle string `json:"communication_style,omitempty"`
	UpcomingContext    string `json:"upcoming_context,omitempty"`
}

// Health is the liveness reply of the service.
type Health struct {
	Status      string `json:"status"`
	ActiveTasks int    `json:"active_tasks"`
}

// ReportService is the port for the remote report/insight API.
type ReportService interface {
	CreatePersonalReport(ctx context.Context, file model.Upload) (taskID string, err error)
	CreateDualReport(ctx context.Context, file1, file2 model.Upload) (taskID string, err error)
	UploadGroupZip(ctx context.Context, file model.Upload) (taskID string, err error)
	Translate(ctx context.Context, file model.Upload) (taskID string, err error)

	Status(ctx context.Context, taskID string) (*model.Snapshot, error)

	InsightByDownloadURL(ctx context.Context, req InsightRequest) (taskID string, err error)
	GroupInsight(ctx context.Context, req GroupInsightRequest) (taskID string, err error)

	// Fetch reads a file the service produced; ref is relative to the API base or absolute.
	Fetch(ctx context.Context, ref string) (io.ReadCloser, error)
	Health(ctx context.Context) (*Health, error)
}

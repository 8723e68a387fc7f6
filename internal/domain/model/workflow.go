package model

import (
	"fmt"
	"strings"

	"mbti-report-console/internal/domain"
)

// Workflow is one of the four report tabs of the console.
type Workflow string

const (
	WorkflowPersonal  Workflow = "personal"
	WorkflowDual      Workflow = "dual"
	WorkflowGroup     Workflow = "group"
	WorkflowTranslate Workflow = "translate"
)

// Workflows lists every tab in display order.
var Workflows = []Workflow{WorkflowPersonal, WorkflowDual, WorkflowGroup, WorkflowTranslate}

func ParseWorkflow(s string) (Workflow, error) {
	w := Workflow(strings.ToLower(strings.TrimSpace(s)))
	switch w {
	case WorkflowPersonal, WorkflowDual, WorkflowGroup, WorkflowTranslate:
		return w, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownWorkflow, s)
}

func (w Workflow) String() string { return string(w) }

// StatusSlot is the status region owned by the workflow's form.
func (w Workflow) StatusSlot() SlotID { return SlotID(string(w) + "Status") }

// PreviewSlot is the region insight HTML is rendered into.
func (w Workflow) PreviewSlot() SlotID { return SlotID(string(w) + "InsightPreview") }

// Anchor is where a missing status slot gets synthesized.
func (w Workflow) Anchor() string { return string(w) + "Form" }

// InsightControl is the "Get Insight" / "Show Insight" button of the workflow.
// The group tab has a single aggregate control instead.
func (w Workflow) InsightControl() ControlID {
	if w == WorkflowGroup {
		return ControlGroupShowInsight
	}
	return ControlID(string(w) + "InsightBtn")
}

// DefaultReportName is used when a completed task does not expose a usable filename.
func (w Workflow) DefaultReportName() string {
	switch w {
	case WorkflowPersonal:
		return "personal_report.pdf"
	case WorkflowDual:
		return "dual_report.pdf"
	case WorkflowGroup:
		return "group_report.xlsx"
	case WorkflowTranslate:
		return "translated_report.pdf"
	}
	return "report"
}

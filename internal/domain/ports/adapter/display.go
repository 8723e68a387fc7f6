package adapter

import (
	"context"

	"mbti-report-console/internal/domain/model"
)

// Action runs when a control is triggered. Fields carry any form input sent with the click.
type Action func(ctx context.Context, fields map[string]string) error

// Control describes the state of a button-like control.
type Control struct {
	Label   string
	Enabled bool
	Style   string
	Action  Action
	// Once unbinds the action after its first trigger.
	Once bool
}

// Display is the page capability used by pollers and the tab coordinator.
// Implementations create missing slots on demand rather than failing.
type Display interface {
	Show(slot model.SlotID, message string, severity model.Severity)
	Hide(slot model.SlotID)
	SetProgress(slot model.SlotID, percent int)

	// BindAction replaces whatever was bound to the control; never both.
	BindAction(id model.ControlID, c Control)

	ShowDownload(w model.Workflow, ref model.ResultRef)
	ResetForm(w model.Workflow)
	ActivateTab(w model.Workflow)

	ShowPreview(w model.Workflow, html, pdfRef string)
	ClearPreview(w model.Workflow)

	ShowOverlay(text, tip string)
	HideOverlay()
}

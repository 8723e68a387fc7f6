package model

import (
	"path"
	"strings"
)

type SlotID string

type ControlID string

const ControlGroupShowInsight ControlID = "groupShowInsightBtn"

type Severity string

const (
	SeverityProcessing Severity = "processing"
	SeveritySuccess    Severity = "success"
	SeverityError      Severity = "error"
)

// ResultRef points at a file produced by the service, relative to the API base (e.g. /output/r.pdf).
type ResultRef struct {
	URL      string
	Filename string
}

// NewResultRef takes the filename from the last path segment, falling back to def.
func NewResultRef(url, def string) ResultRef {
	name := path.Base(strings.TrimRight(url, "/"))
	if name == "." || name == "/" || name == "" {
		name = def
	}
	return ResultRef{URL: url, Filename: name}
}

// IsPDF reports whether the document is eligible for insight generation.
func (r ResultRef) IsPDF() bool { return strings.HasSuffix(strings.ToLower(r.URL), ".pdf") }

// IsHTML reports whether the document is a rendered insight page.
func (r ResultRef) IsHTML() bool { return strings.HasSuffix(strings.ToLower(r.URL), ".html") }

// InsightEntry is the tab cache record for one workflow.
type InsightEntry struct {
	HTML   string
	PDFRef string
}

// Upload is one file attached to a report request.
type Upload struct {
	Filename string
	Path     string
}

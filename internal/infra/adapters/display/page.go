package display

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"mbti-report-console/internal/domain"
	"mbti-report-console/internal/domain/model"
	"mbti-report-console/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.Display = (*Page)(nil)

type slot struct {
	message     string
	severity    model.Severity
	visible     bool
	progress    int
	anchor      string
	synthesized bool
}

type preview struct {
	html   string
	pdfRef string
}

type overlay struct {
	visible bool
	text    string
	tip     string
}

// Page is the in-memory page the console serves. All methods are safe for concurrent use.
type Page struct {
	mu        sync.Mutex
	active    model.Workflow
	slots     map[model.SlotID]*slot
	controls  map[model.ControlID]*adapter.Control
	downloads map[model.Workflow]model.ResultRef
	previews  map[model.Workflow]preview
	overlay   overlay
	log       *zerolog.Logger
}

func NewPage(logger *zerolog.Logger) *Page {
	l := logger.With().Str("component", "page").Logger()
	p := &Page{
		active:    model.WorkflowPersonal,
		slots:     make(map[model.SlotID]*slot),
		controls:  make(map[model.ControlID]*adapter.Control),
		downloads: make(map[model.Workflow]model.ResultRef),
		previews:  make(map[model.Workflow]preview),
		log:       &l,
	}
	for _, w := range model.Workflows {
		p.slots[w.StatusSlot()] = &slot{anchor: w.Anchor()}
	}
	return p
}

// slotLocked returns the slot, synthesizing it next to the owning form when absent.
func (p *Page) slotLocked(id model.SlotID) *slot {
	if s, ok := p.slots[id]; ok {
		return s
	}
	s := &slot{anchor: anchorFor(id), synthesized: true}
	p.slots[id] = s
	p.log.Debug().Str("slot", string(id)).Str("anchor", s.anchor).Msg("status slot created")
	return s
}

func anchorFor(id model.SlotID) string {
	for _, w := range model.Workflows {
		if strings.HasPrefix(string(id), string(w)) {
			return w.Anchor()
		}
	}
	return "page"
}

func (p *Page) Show(id model.SlotID, message string, severity model.Severity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.slotLocked(id)
	s.message = message
	s.severity = severity
	s.visible = true
}

func (p *Page) Hide(id model.SlotID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.slots[id]; ok {
		s.visible = false
	}
}

func (p *Page) SetProgress(id model.SlotID, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slotLocked(id).progress = percent
}

func (p *Page) BindAction(id model.ControlID, c adapter.Control) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.controls[id] = &c
	p.log.Debug().Str("control", string(id)).Str("label", c.Label).Bool("bound", c.Action != nil).Msg("control bound")
}

// Trigger runs the action bound to the control, as a click would.
// One-shot actions are unbound before they run.
func (p *Page) Trigger(ctx context.Context, id model.ControlID, fields map[string]string) error {
	p.mu.Lock()
	c, ok := p.controls[id]
	if !ok || c.Action == nil || !c.Enabled {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrNoActionBound, id)
	}
	action := c.Action
	if c.Once {
		c.Action = nil
	}
	p.mu.Unlock()

	if fields == nil {
		fields = map[string]string{}
	}
	return action(ctx, fields)
}

func (p *Page) ShowDownload(w model.Workflow, ref model.ResultRef) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.downloads[w] = ref
}

// ResetForm puts the workflow's form back into its generate state.
func (p *Page) ResetForm(w model.Workflow) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.downloads, w)
}

func (p *Page) ActivateTab(w model.Workflow) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = w
}

func (p *Page) ShowPreview(w model.Workflow, html, pdfRef string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.previews[w] = preview{html: html, pdfRef: pdfRef}
}

func (p *Page) ClearPreview(w model.Workflow) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.previews, w)
}

func (p *Page) ShowOverlay(text, tip string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overlay = overlay{visible: true, text: text, tip: tip}
}

func (p *Page) HideOverlay() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overlay = overlay{}
}

// Snapshot types are the JSON view of the page.
type (
	SlotView struct {
		ID          string `json:"id"`
		Message     string `json:"message"`
		Severity    string `json:"severity,omitempty"`
		Visible     bool   `json:"visible"`
		Progress    int    `json:"progress,omitempty"`
		Anchor      string `json:"anchor"`
		Synthesized bool   `json:"synthesized,omitempty"`
	}
	ControlView struct {
		ID      string `json:"id"`
		Label   string `json:"label"`
		Enabled bool   `json:"enabled"`
		Style   string `json:"style,omitempty"`
		Bound   bool   `json:"bound"`
	}
	DownloadView struct {
		Workflow string `json:"workflow"`
		URL      string `json:"url"`
		Filename string `json:"filename"`
	}
	PreviewView struct {
		Workflow string `json:"workflow"`
		HTML     string `json:"html"`
		PDFRef   string `json:"pdf_ref,omitempty"`
	}
	OverlayView struct {
		Visible bool   `json:"visible"`
		Text    string `json:"text,omitempty"`
		Tip     string `json:"tip,omitempty"`
	}
	Snapshot struct {
		ActiveTab string         `json:"active_tab"`
		Slots     []SlotView     `json:"slots"`
		Controls  []ControlView  `json:"controls"`
		Downloads []DownloadView `json:"downloads"`
		Previews  []PreviewView  `json:"previews"`
		Overlay   OverlayView    `json:"overlay"`
	}
)

// Snapshot returns a consistent copy of the page, sorted by id.
func (p *Page) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := Snapshot{
		ActiveTab: p.active.String(),
		Slots:     make([]SlotView, 0, len(p.slots)),
		Controls:  make([]ControlView, 0, len(p.controls)),
		Downloads: make([]DownloadView, 0, len(p.downloads)),
		Previews:  make([]PreviewView, 0, len(p.previews)),
		Overlay:   OverlayView{Visible: p.overlay.visible, Text: p.overlay.text, Tip: p.overlay.tip},
	}
	for id, s := range p.slots {
		out.Slots = append(out.Slots, SlotView{
			ID: string(id), Message: s.message, Severity: string(s.severity), Visible: s.visible,
			Progress: s.progress, Anchor: s.anchor, Synthesized: s.synthesized,
		})
	}
	for id, c := range p.controls {
		out.Controls = append(out.Controls, ControlView{
			ID: string(id), Label: c.Label, Enabled: c.Enabled, Style: c.Style, Bound: c.Action != nil,
		})
	}
	for w, d := range p.downloads {
		out.Downloads = append(out.Downloads, DownloadView{Workflow: w.String(), URL: d.URL, Filename: d.Filename})
	}
	for w, pv := range p.previews {
		out.Previews = append(out.Previews, PreviewView{Workflow: w.String(), HTML: pv.html, PDFRef: pv.pdfRef})
	}
	sort.Slice(out.Slots, func(i, j int) bool { return out.Slots[i].ID < out.Slots[j].ID })
	sort.Slice(out.Controls, func(i, j int) bool { return out.Controls[i].ID < out.Controls[j].ID })
	sort.Slice(out.Downloads, func(i, j int) bool { return out.Downloads[i].Workflow < out.Downloads[j].Workflow })
	sort.Slice(out.Previews, func(i, j int) bool { return out.Previews[i].Workflow < out.Previews[j].Workflow })
	return out
}

// Slot returns the current state of one slot and whether it exists.
func (p *Page) Slot(id model.SlotID) (SlotView, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[id]
	if !ok {
		return SlotView{}, false
	}
	return SlotView{
		ID: string(id), Message: s.message, Severity: string(s.severity), Visible: s.visible,
		Progress: s.progress, Anchor: s.anchor, Synthesized: s.synthesized,
	}, true
}

// Control returns the current state of one control and whether it was ever bound.
func (p *Page) Control(id model.ControlID) (ControlView, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.controls[id]
	if !ok {
		return ControlView{}, false
	}
	return ControlView{ID: string(id), Label: c.Label, Enabled: c.Enabled, Style: c.Style, Bound: c.Action != nil}, true
}

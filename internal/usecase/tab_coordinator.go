package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"mbti-report-console/internal/domain"
	"mbti-report-console/internal/domain/model"
	"mbti-report-console/internal/domain/ports/adapter"
	"mbti-report-console/internal/domain/ports/repository"
	"mbti-report-console/internal/infra/metrics"
)

const (
	LabelGetInsight           = "Get Insight"
	LabelShowInsight          = "Show Insight"
	LabelShowGeneratedInsight = "Show Generated Insight"
	LabelGenerating           = "Generating..."

	StyleReady    = "ready"
	StyleGenerate = "generate"
	StyleDisabled = "disabled"
)

// TabCoordinator owns tab activation and the per-tab insight cache.
type TabCoordinator struct {
	disp        adapter.Display
	state       *AppState
	store       repository.GroupTaskStore
	groupAction adapter.Action
	log         *zerolog.Logger
}

func NewTabCoordinator(disp adapter.Display, state *AppState, store repository.GroupTaskStore, logger *zerolog.Logger) *TabCoordinator {
	l := logger.With().Str("component", "tab_coordinator").Logger()
	return &TabCoordinator{disp: disp, state: state, store: store, log: &l}
}

// SetGroupAction sets what the group show-insight control runs.
func (c *TabCoordinator) SetGroupAction(a adapter.Action) { c.groupAction = a }

// Restore binds every insight control to its initial state and reloads the persisted group task id.
func (c *TabCoordinator) Restore(ctx context.Context) {
	for _, w := range model.Workflows {
		c.disp.BindAction(w.InsightControl(), c.initialControl(w))
	}
	id, err := c.store.Get(ctx)
	switch {
	case err == nil:
		c.state.setGroupTask(id)
		c.log.Info().Str("group_task_id", id).Msg("restored group task id")
	case errors.Is(err, domain.ErrNotFound):
	default:
		c.log.Warn().Err(err).Msg("failed to load group task id")
	}
}

// Begin starts a new generation for w. Poll loops started with an older
// generation stop writing to the page, and loops bound with Bind are canceled.
func (c *TabCoordinator) Begin(w model.Workflow) uint64 { return c.state.nextGeneration(w) }

// Bind ties a poll loop's context to generation gen of w.
func (c *TabCoordinator) Bind(ctx context.Context, w model.Workflow, gen uint64) (context.Context, context.CancelFunc) {
	return c.state.bind(ctx, w, gen)
}

// Current reports whether gen is still the latest generation of w.
func (c *TabCoordinator) Current(w model.Workflow, gen uint64) bool { return c.state.isCurrent(w, gen) }

// Activate switches to tab w. Every other preview region is emptied and
// the cached insight of w, if any, is shown again without a fetch.
func (c *TabCoordinator) Activate(w model.Workflow) bool {
	c.disp.ActivateTab(w)
	c.disp.ResetForm(w)
	c.clearOtherPreviews(w)
	if w == model.WorkflowGroup {
		c.syncGroupControl()
	}

	e, ok := c.state.entry(w)
	if !ok {
		return false
	}
	c.disp.ShowPreview(w, e.HTML, e.PDFRef)
	c.disp.Show(w.StatusSlot(), restoredMessage(w), model.SeveritySuccess)
	c.log.Debug().Str("workflow", w.String()).Msg("restored cached insight")
	return true
}

// Store records the latest insight for w, overwriting the previous one.
func (c *TabCoordinator) Store(w model.Workflow, html, pdfRef string) {
	n := c.state.put(w, model.InsightEntry{HTML: html, PDFRef: pdfRef})
	metrics.SetInsightCacheEntries(n)
	if w == model.WorkflowGroup {
		c.syncGroupControl()
	}
}

// Show renders the cached insight of w into its preview region. Only one
// preview holds content at a time, so every other region is emptied first.
func (c *TabCoordinator) Show(w model.Workflow) bool {
	e, ok := c.state.entry(w)
	if !ok {
		return false
	}
	c.clearOtherPreviews(w)
	c.disp.ShowPreview(w, e.HTML, e.PDFRef)
	return true
}

func (c *TabCoordinator) clearOtherPreviews(w model.Workflow) {
	for _, other := range model.Workflows {
		if other != w {
			c.disp.ClearPreview(other)
		}
	}
}

// Reset drops the cached insight of w and reverts its insight control.
func (c *TabCoordinator) Reset(w model.Workflow) {
	n := c.state.drop(w)
	metrics.SetInsightCacheEntries(n)
	c.disp.ClearPreview(w)
	c.disp.BindAction(w.InsightControl(), c.initialControl(w))
}

// OpenGroupInsight redisplays a generated group insight. It reports false
// when there is none yet and the insight form has to be filled in.
func (c *TabCoordinator) OpenGroupInsight() bool {
	if !c.Show(model.WorkflowGroup) {
		return false
	}
	c.syncGroupControl()
	c.disp.Show(model.WorkflowGroup.StatusSlot(), restoredMessage(model.WorkflowGroup), model.SeveritySuccess)
	return true
}

// SetGroupTask remembers the task id of the latest group upload, in memory and in the store.
func (c *TabCoordinator) SetGroupTask(ctx context.Context, id string) error {
	c.state.setGroupTask(id)
	if err := c.store.Save(ctx, id); err != nil {
		c.log.Error().Err(err).Str("group_task_id", id).Msg("failed to persist group task id")
		return err
	}
	return nil
}

// GroupTask returns the task id a group insight attaches to.
func (c *TabCoordinator) GroupTask(ctx context.Context) (string, error) {
	if id := c.state.groupTask(); id != "" {
		return id, nil
	}
	id, err := c.store.Get(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("%w: please upload a group ZIP file first", domain.ErrMissingPrecondition)
	}
	if err != nil {
		return "", err
	}
	c.state.setGroupTask(id)
	return id, nil
}

// ClearGroupTask forgets the group task id in memory and in the store.
func (c *TabCoordinator) ClearGroupTask(ctx context.Context) error {
	c.state.setGroupTask("")
	if err := c.store.Clear(ctx); err != nil {
		c.log.Error().Err(err).Msg("failed to clear persisted group task id")
		return err
	}
	c.syncGroupControl()
	return nil
}

// Close tears the state down at shutdown.
func (c *TabCoordinator) Close() {
	c.state.Close()
	metrics.SetInsightCacheEntries(0)
}

func (c *TabCoordinator) initialControl(w model.Workflow) adapter.Control {
	if w == model.WorkflowGroup {
		return c.groupControl()
	}
	return adapter.Control{Label: LabelGetInsight, Enabled: false, Style: StyleDisabled}
}

func (c *TabCoordinator) groupControl() adapter.Control {
	ctl := adapter.Control{Label: LabelShowInsight, Enabled: c.groupAction != nil, Action: c.groupAction}
	if c.state.isGenerated(model.WorkflowGroup) {
		ctl.Label = LabelShowGeneratedInsight
		ctl.Style = StyleReady
	}
	return ctl
}

func (c *TabCoordinator) syncGroupControl() {
	c.disp.BindAction(model.ControlGroupShowInsight, c.groupControl())
}

func restoredMessage(w model.Workflow) string {
	if w == model.WorkflowGroup {
		return "SUCCESS: Group insight is displayed below."
	}
	return "SUCCESS: Insight is displayed below."
}

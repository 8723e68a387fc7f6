package usecase

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"mbti-report-console/internal/domain"
	"mbti-report-console/internal/domain/model"
	"mbti-report-console/internal/domain/ports/adapter"
	"mbti-report-console/internal/infra/logging"
	"mbti-report-console/internal/infra/metrics"
)

const (
	msgInsightReady       = `SUCCESS: Insight ready! Click "Show Insight" to view.`
	msgGroupInsightShown  = "SUCCESS: Group insight generated! Insight is displayed below."
	msgNoInsightContent   = "ERROR: No insight content received."
	msgInsightLoadFailed  = "ERROR: Could not load insight content."
	relationshipTypeOther = "other"
)

// InsightPoller follows insight tasks. It has no attempt cap.
type InsightPoller struct {
	svc    adapter.ReportService
	disp   adapter.Display
	coord  *TabCoordinator
	runner Runner
	cfg    PollerConfig
	log    *zerolog.Logger
}

func NewInsightPoller(svc adapter.ReportService, disp adapter.Display, coord *TabCoordinator, runner Runner,
	cfg PollerConfig, logger *zerolog.Logger) *InsightPoller {
	return &InsightPoller{
		svc: svc, disp: disp, coord: coord, runner: runner, cfg: cfg.withDefaults(),
		log: logging.Component(logger, "insight_poller"),
	}
}

// ArmGetInsight binds the one-shot "Get Insight" action of w for the report at downloadURL.
func (p *InsightPoller) ArmGetInsight(w model.Workflow, downloadURL string) {
	p.disp.BindAction(w.InsightControl(), adapter.Control{
		Label:   LabelGetInsight,
		Enabled: true,
		Style:   StyleGenerate,
		Action:  p.getInsightAction(w, downloadURL),
		Once:    true,
	})
}

func (p *InsightPoller) getInsightAction(w model.Workflow, downloadURL string) adapter.Action {
	return func(ctx context.Context, fields map[string]string) error {
		req, text, tip, err := insightRequest(w, downloadURL, fields)
		if err != nil {
			p.ArmGetInsight(w, downloadURL)
			return err
		}

		gen := p.coord.Begin(w)
		p.disp.ShowOverlay(text, tip)
		p.disp.BindAction(w.InsightControl(), adapter.Control{Label: LabelGenerating, Enabled: false, Style: StyleDisabled})

		taskID, err := p.svc.InsightByDownloadURL(ctx, req)
		if err != nil {
			p.log.Error().Err(err).Str("workflow", w.String()).Msg("insight request failed")
			p.disp.HideOverlay()
			p.disp.Show(w.StatusSlot(), errorLine(err), model.SeverityError)
			p.ArmGetInsight(w, downloadURL)
			return err
		}

		task := model.Task{ID: taskID, Workflow: w, Kind: model.PollKindInsight}
		if err := p.Start(task, gen, downloadURL); err != nil {
			p.disp.HideOverlay()
			p.disp.Show(w.StatusSlot(), "ERROR: "+err.Error(), model.SeverityError)
			p.ArmGetInsight(w, downloadURL)
			return err
		}
		return nil
	}
}

// insightRequest builds the request and overlay texts for a "Get Insight" click.
// Dual reports take optional relationship fields; without them the insight is generic.
func insightRequest(w model.Workflow, downloadURL string, fields map[string]string) (adapter.InsightRequest, string, string, error) {
	req := adapter.InsightRequest{DownloadURL: downloadURL}
	if w != model.WorkflowDual {
		return req, "Generating your personal MBTI Insight...", "Hang tight, this may take up to a minute.", nil
	}

	rt := strings.TrimSpace(fields["relationship_type"])
	if strings.EqualFold(rt, relationshipTypeOther) {
		rt = strings.TrimSpace(fields["relationship_type_other"])
		if rt == "" {
			return req, "", "", fmt.Errorf("%w: relationship_type_other is required when relationship_type is other", domain.ErrValidation)
		}
	}
	req.RelationshipType = rt
	req.RelationshipGoals = strings.TrimSpace(fields["relationship_goals"])
	if req.RelationshipType == "" && req.RelationshipGoals == "" {
		return req, "Generating Generic Insight...", "Hang tight, this may take up to a minute.", nil
	}
	return req, "Generating your specific MBTI Insight...", "This can take up to a minute.", nil
}

// Start runs Poll in the background. source is the report the insight was
// requested for; it re-arms "Get Insight" when the insight fails.
func (p *InsightPoller) Start(task model.Task, gen uint64, source string) error {
	return p.runner.Submit(func(ctx context.Context) error {
		ctx, cancel := p.coord.Bind(ctx, task.Workflow, gen)
		defer cancel()
		res := p.Poll(ctx, task, gen, source)
		if res.Outcome == model.OutcomeCanceled && !res.Superseded {
			return ctx.Err()
		}
		return nil
	})
}

// Poll queries the insight task every InsightInterval until it completes, fails or errors.
func (p *InsightPoller) Poll(ctx context.Context, task model.Task, gen uint64, source string) model.PollResult {
	loopID := ulid.Make().String()
	ctx = logging.WithLoopID(ctx, loopID)
	log := logging.With(ctx, p.log)
	l := log.With().Str("task_id", task.ID).Str("workflow", task.Workflow.String()).Logger()
	log = &l

	kind := string(task.Kind)
	metrics.IncPollStarted(kind, task.Workflow.String())
	v := &loopView{disp: p.disp, coord: p.coord, w: task.Workflow, gen: gen, log: log}

	res := model.PollResult{LoopID: loopID, Task: task}
	finish := func(o model.PollOutcome) model.PollResult {
		res.Outcome = o
		res.Superseded = !p.coord.Current(task.Workflow, gen)
		metrics.IncPollOutcome(kind, string(o))
		log.Info().Str("outcome", string(o)).Int("attempts", res.Attempts).Bool("superseded", res.Superseded).
			Msg("insight poll finished")
		return res
	}

	for {
		res.Attempts++
		metrics.IncPollAttempt(kind)
		snap, err := p.svc.Status(ctx, task.ID)
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return finish(model.OutcomeCanceled)
		}
		if err != nil {
			log.Error().Err(err).Int("attempt", res.Attempts).Msg("status request failed")
			res.Err = err
			v.hideOverlay()
			v.show(pollErrorLine(err), model.SeverityError)
			p.revert(v, source)
			return finish(model.OutcomeTransportError)
		}
		res.Last = snap
		log.Debug().Int("attempt", res.Attempts).Str("status", string(snap.Status)).Msg("status")

		v.show(fmt.Sprintf("%s: %s", strings.ToUpper(string(snap.Status)), snap.Message), snap.Status.Severity())

		switch snap.Status {
		case model.TaskStatusCompleted:
			v.hideOverlay()
			p.complete(ctx, v, task, snap, source)
			return finish(model.OutcomeCompleted)
		case model.TaskStatusFailed:
			v.hideOverlay()
			p.revert(v, source)
			return finish(model.OutcomeFailed)
		case model.TaskStatusPending, model.TaskStatusProcessing:
		}

		if err := p.cfg.Sleep(ctx, p.cfg.InsightInterval); err != nil {
			res.Err = err
			return finish(model.OutcomeCanceled)
		}
	}
}

func (p *InsightPoller) complete(ctx context.Context, v *loopView, task model.Task, snap *model.Snapshot, source string) {
	htmlRef := ""
	if model.NewResultRef(snap.DownloadURL, "").IsHTML() {
		htmlRef = snap.DownloadURL
	}
	pdfRef := InsightPDFRef(snap)

	if htmlRef == "" {
		v.show(msgNoInsightContent, model.SeverityError)
		p.revert(v, source)
		return
	}

	if task.Workflow == model.WorkflowGroup {
		body, err := p.fetchBody(ctx, htmlRef)
		if err != nil {
			v.log.Error().Err(err).Str("ref", htmlRef).Msg("failed to load group insight")
			v.show(msgInsightLoadFailed, model.SeverityError)
			return
		}
		if !v.live() {
			return
		}
		p.coord.Store(model.WorkflowGroup, body, pdfRef)
		p.coord.Show(model.WorkflowGroup)
		v.show(msgGroupInsightShown, model.SeveritySuccess)
		return
	}

	if !v.live() {
		return
	}
	p.disp.BindAction(task.Workflow.InsightControl(), adapter.Control{
		Label:   LabelShowInsight,
		Enabled: true,
		Style:   StyleReady,
		Action:  p.showInsightAction(task.Workflow, htmlRef, pdfRef),
	})
	v.show(msgInsightReady, model.SeveritySuccess)
}

// showInsightAction fetches the insight on demand and shows it in its tab.
func (p *InsightPoller) showInsightAction(w model.Workflow, htmlRef, pdfRef string) adapter.Action {
	return func(ctx context.Context, _ map[string]string) error {
		body, err := p.fetchBody(ctx, htmlRef)
		if err != nil {
			p.log.Error().Err(err).Str("workflow", w.String()).Str("ref", htmlRef).Msg("failed to load insight")
			p.disp.Show(w.StatusSlot(), msgInsightLoadFailed, model.SeverityError)
			return err
		}
		p.coord.Store(w, body, pdfRef)
		p.coord.Show(w)
		return nil
	}
}

// revert puts the control that started the insight back into its re-invokable state.
func (p *InsightPoller) revert(v *loopView, source string) {
	if !v.live() {
		return
	}
	switch {
	case v.w == model.WorkflowGroup:
		p.coord.syncGroupControl()
	case source != "":
		p.ArmGetInsight(v.w, source)
	}
}

func (p *InsightPoller) fetchBody(ctx context.Context, ref string) (string, error) {
	rc, err := p.svc.Fetch(ctx, ref)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return ExtractBody(rc)
}

// InsightPDFRef picks the PDF of a finished insight: the explicit URL, else
// the named file under /output, else the HTML name with a .pdf extension.
func InsightPDFRef(s *model.Snapshot) string {
	switch {
	case s.InsightPDFURL != "":
		return s.InsightPDFURL
	case s.InsightPDFFilename != "":
		return "/output/" + s.InsightPDFFilename
	}
	ref := model.NewResultRef(s.DownloadURL, "")
	if !ref.IsHTML() {
		return ""
	}
	return "/output/" + strings.TrimSuffix(ref.Filename, path.Ext(ref.Filename)) + ".pdf"
}

// ExtractBody returns the inner HTML of <body>, so a full document can be embedded in a preview.
func ExtractBody(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse insight html: %w", err)
	}
	body := findElement(doc, atom.Body)
	if body == nil {
		return "", fmt.Errorf("parse insight html: no body")
	}
	var b strings.Builder
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&b, c); err != nil {
			return "", fmt.Errorf("render insight html: %w", err)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

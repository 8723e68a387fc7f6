package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"mbti-report-console/internal/domain/model"
	"mbti-report-console/internal/domain/ports/adapter"
	"mbti-report-console/internal/infra/logging"
	"mbti-report-console/internal/infra/metrics"
)

const timeoutMessage = "TIMEOUT: Task took too long to complete. Please try again."

// TaskPoller follows report tasks until they finish, fail or run out of attempts.
type TaskPoller struct {
	svc     adapter.ReportService
	disp    adapter.Display
	coord   *TabCoordinator
	insight *InsightPoller
	runner  Runner
	cfg     PollerConfig
	quiet   map[model.SlotID]bool
	log     *zerolog.Logger
}

func NewTaskPoller(svc adapter.ReportService, disp adapter.Display, coord *TabCoordinator, insight *InsightPoller,
	runner Runner, cfg PollerConfig, logger *zerolog.Logger) *TaskPoller {
	cfg = cfg.withDefaults()
	quiet := make(map[model.SlotID]bool, len(cfg.QuietSlots))
	for _, s := range cfg.QuietSlots {
		quiet[s] = true
	}
	return &TaskPoller{
		svc: svc, disp: disp, coord: coord, insight: insight, runner: runner, cfg: cfg, quiet: quiet,
		log: logging.Component(logger, "task_poller"),
	}
}

// Start runs Poll in the background. The loop is canceled once a newer
// generation of the workflow begins.
func (p *TaskPoller) Start(task model.Task, gen uint64) error {
	return p.runner.Submit(func(ctx context.Context) error {
		ctx, cancel := p.coord.Bind(ctx, task.Workflow, gen)
		defer cancel()
		res := p.Poll(ctx, task, gen)
		if res.Outcome == model.OutcomeCanceled && !res.Superseded {
			return ctx.Err()
		}
		return nil
	})
}

// Poll queries the task status every TaskInterval until a terminal status,
// an error or TaskMaxAttempts non-terminal replies.
func (p *TaskPoller) Poll(ctx context.Context, task model.Task, gen uint64) model.PollResult {
	loopID := ulid.Make().String()
	ctx = logging.WithLoopID(ctx, loopID)
	log := logging.With(ctx, p.log)
	l := log.With().Str("task_id", task.ID).Str("workflow", task.Workflow.String()).Logger()
	log = &l

	kind := string(model.PollKindReport)
	metrics.IncPollStarted(kind, task.Workflow.String())
	v := &loopView{disp: p.disp, coord: p.coord, w: task.Workflow, gen: gen, log: log}
	slot := task.Workflow.StatusSlot()

	res := model.PollResult{LoopID: loopID, Task: task}
	finish := func(o model.PollOutcome) model.PollResult {
		res.Outcome = o
		res.Superseded = !p.coord.Current(task.Workflow, gen)
		metrics.IncPollOutcome(kind, string(o))
		log.Info().Str("outcome", string(o)).Int("attempts", res.Attempts).Bool("superseded", res.Superseded).
			Msg("report poll finished")
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
			return finish(model.OutcomeTransportError)
		}
		res.Last = snap
		log.Debug().Int("attempt", res.Attempts).Str("status", string(snap.Status)).Int("progress", snap.Progress).
			Msg("status")

		if snap.Progress > 0 {
			v.progress(snap.Progress)
		}
		if !p.quiet[slot] || snap.Status.Terminal() {
			v.show(reportStatusLine(snap), snap.Status.Severity())
		}

		switch snap.Status {
		case model.TaskStatusCompleted:
			v.hideOverlay()
			p.complete(v, task, snap)
			return finish(model.OutcomeCompleted)
		case model.TaskStatusFailed:
			v.hideOverlay()
			return finish(model.OutcomeFailed)
		case model.TaskStatusPending, model.TaskStatusProcessing:
		}

		if res.Attempts >= p.cfg.TaskMaxAttempts {
			v.hideOverlay()
			v.show(timeoutMessage, model.SeverityError)
			return finish(model.OutcomeTimeout)
		}
		if err := p.cfg.Sleep(ctx, p.cfg.TaskInterval); err != nil {
			res.Err = err
			return finish(model.OutcomeCanceled)
		}
	}
}

// complete surfaces the download and, for PDF results, arms "Get Insight".
func (p *TaskPoller) complete(v *loopView, task model.Task, snap *model.Snapshot) {
	if snap.DownloadURL == "" || !v.live() {
		return
	}
	ref := model.NewResultRef(snap.DownloadURL, task.Workflow.DefaultReportName())
	p.disp.ShowDownload(task.Workflow, ref)
	if ref.IsPDF() && task.Workflow != model.WorkflowGroup {
		p.insight.ArmGetInsight(task.Workflow, snap.DownloadURL)
	}
}

func reportStatusLine(s *model.Snapshot) string {
	return fmt.Sprintf("%s %s: %s", s.Status.Icon(), strings.ToUpper(string(s.Status)), s.Message)
}

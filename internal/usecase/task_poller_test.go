package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"mbti-report-console/internal/domain/model"
)

func TestTaskPoller_ProcessingThenCompleted(t *testing.T) {
	h := newHarness(t)
	processing := snap(model.TaskStatusProcessing, "Working")
	processing.snap.Progress = 30
	done := snap(model.TaskStatusCompleted, "Report ready")
	done.snap.DownloadURL = "/output/r.pdf"
	h.svc.script("t1", processing, done)

	w := model.WorkflowPersonal
	res := h.tasks.Poll(context.Background(), model.Task{ID: "t1", Workflow: w, Kind: model.PollKindReport}, h.coord.Begin(w))

	if res.Outcome != model.OutcomeCompleted || res.Attempts != 2 {
		t.Fatalf("expected completed after 2 attempts, got %s after %d", res.Outcome, res.Attempts)
	}
	if h.sleeps != 1 {
		t.Fatalf("expected one wait between attempts, got %d", h.sleeps)
	}
	st := h.disp.status(w)
	if st.progress != 30 {
		t.Fatalf("expected progress 30, got %d", st.progress)
	}
	if st.severity != model.SeveritySuccess || !strings.Contains(st.message, "COMPLETED: Report ready") {
		t.Fatalf("unexpected status %+v", st)
	}
	ref, ok := h.disp.download(w)
	if !ok || ref.URL != "/output/r.pdf" || ref.Filename != "r.pdf" {
		t.Fatalf("expected download affordance for r.pdf, got %+v (%v)", ref, ok)
	}
	ctl, _ := h.disp.control(w.InsightControl())
	if ctl.Label != LabelGetInsight || !ctl.Enabled || ctl.Action == nil || !ctl.Once {
		t.Fatalf("expected enabled one-shot Get Insight, got %+v", ctl)
	}
}

func TestTaskPoller_Failed(t *testing.T) {
	h := newHarness(t)
	h.svc.script("t1", snap(model.TaskStatusFailed, "bad file"))

	w := model.WorkflowTranslate
	res := h.tasks.Poll(context.Background(), model.Task{ID: "t1", Workflow: w}, h.coord.Begin(w))

	if res.Outcome != model.OutcomeFailed {
		t.Fatalf("expected failed, got %s", res.Outcome)
	}
	if n := h.svc.calls("t1"); n != 1 {
		t.Fatalf("expected no polling after failure, got %d calls", n)
	}
	st := h.disp.status(w)
	if st.severity != model.SeverityError || !strings.Contains(st.message, "FAILED: bad file") {
		t.Fatalf("unexpected status %+v", st)
	}
	if _, ok := h.disp.download(w); ok {
		t.Fatalf("failed task must not surface a download")
	}
}

func TestTaskPoller_TimeoutAfterBudget(t *testing.T) {
	h := newHarness(t)
	h.svc.script("t1", snap(model.TaskStatusPending, "Queued"))

	w := model.WorkflowPersonal
	res := h.tasks.Poll(context.Background(), model.Task{ID: "t1", Workflow: w}, h.coord.Begin(w))

	if res.Outcome != model.OutcomeTimeout {
		t.Fatalf("expected timeout, got %s", res.Outcome)
	}
	if n := h.svc.calls("t1"); n != 60 {
		t.Fatalf("expected exactly 60 status requests, got %d", n)
	}
	if h.sleeps != 59 {
		t.Fatalf("expected 59 waits, got %d", h.sleeps)
	}
	st := h.disp.status(w)
	if st.message != timeoutMessage || st.severity != model.SeverityError {
		t.Fatalf("expected timeout message, got %+v", st)
	}
	if strings.Contains(st.message, "FAILED") {
		t.Fatalf("timeout must be distinct from failure")
	}
}

func TestTaskPoller_TransportErrorStops(t *testing.T) {
	h := newHarness(t)
	h.svc.script("t1", snap(model.TaskStatusProcessing, "Working"), statusReply{err: errConnRefused})
	h.disp.ShowOverlay("Creating your personal report...", "")

	w := model.WorkflowPersonal
	res := h.tasks.Poll(context.Background(), model.Task{ID: "t1", Workflow: w}, h.coord.Begin(w))

	if res.Outcome != model.OutcomeTransportError || res.Err == nil {
		t.Fatalf("expected transport error, got %s (%v)", res.Outcome, res.Err)
	}
	if n := h.svc.calls("t1"); n != 2 {
		t.Fatalf("expected polling to stop at the error, got %d calls", n)
	}
	st := h.disp.status(w)
	if !strings.HasPrefix(st.message, "ERROR: ") || st.severity != model.SeverityError {
		t.Fatalf("unexpected status %+v", st)
	}
	if h.disp.overlayVisible() {
		t.Fatalf("overlay should be hidden on error")
	}
}

func TestTaskPoller_ZeroProgressLeavesIndicator(t *testing.T) {
	h := newHarness(t)
	first := snap(model.TaskStatusProcessing, "Working")
	first.snap.Progress = 42
	h.svc.script("t1", first, snap(model.TaskStatusProcessing, "Still working"), snap(model.TaskStatusFailed, "stop"))

	w := model.WorkflowPersonal
	h.tasks.Poll(context.Background(), model.Task{ID: "t1", Workflow: w}, h.coord.Begin(w))

	if got := h.disp.status(w).progress; got != 42 {
		t.Fatalf("expected progress to stay at 42, got %d", got)
	}
}

func TestTaskPoller_QuietSlotOnlyShowsTerminal(t *testing.T) {
	w := model.WorkflowDual
	h := newHarness(t, w.StatusSlot())
	done := snap(model.TaskStatusCompleted, "Dual ready")
	done.snap.DownloadURL = "/output/d.pdf"
	h.svc.script("t1", snap(model.TaskStatusPending, "a"), snap(model.TaskStatusProcessing, "b"), done)

	h.tasks.Poll(context.Background(), model.Task{ID: "t1", Workflow: w}, h.coord.Begin(w))

	st := h.disp.status(w)
	if st.shows != 1 {
		t.Fatalf("expected only the terminal update on a quiet slot, got %d", st.shows)
	}
	if !strings.Contains(st.message, "COMPLETED") {
		t.Fatalf("unexpected status %+v", st)
	}
	if ctl, _ := h.disp.control(w.InsightControl()); !ctl.Enabled {
		t.Fatalf("dual Get Insight should be enabled for a PDF result")
	}
}

func TestTaskPoller_GroupResultHasNoGetInsight(t *testing.T) {
	h := newHarness(t)
	done := snap(model.TaskStatusCompleted, "Group ready")
	done.snap.DownloadURL = "/output/team.xlsx"
	h.svc.script("t1", done)

	w := model.WorkflowGroup
	h.tasks.Poll(context.Background(), model.Task{ID: "t1", Workflow: w}, h.coord.Begin(w))

	ref, ok := h.disp.download(w)
	if !ok || ref.Filename != "team.xlsx" {
		t.Fatalf("expected group download, got %+v", ref)
	}
	ctl, _ := h.disp.control(model.ControlGroupShowInsight)
	if ctl.Label != LabelShowInsight {
		t.Fatalf("group control should keep its own label, got %q", ctl.Label)
	}
}

func TestTaskPoller_NonPDFResultKeepsGetInsightDisabled(t *testing.T) {
	h := newHarness(t)
	done := snap(model.TaskStatusCompleted, "ok")
	done.snap.DownloadURL = "/output/r.html"
	h.svc.script("t1", done)

	w := model.WorkflowPersonal
	h.tasks.Poll(context.Background(), model.Task{ID: "t1", Workflow: w}, h.coord.Begin(w))

	if ctl, _ := h.disp.control(w.InsightControl()); ctl.Enabled {
		t.Fatalf("Get Insight must stay disabled for non-PDF results")
	}
}

func TestTaskPoller_StaleGenerationDiscarded(t *testing.T) {
	h := newHarness(t)
	done := snap(model.TaskStatusCompleted, "old report")
	done.snap.DownloadURL = "/output/old.pdf"
	h.svc.script("old", done)

	w := model.WorkflowPersonal
	oldGen := h.coord.Begin(w)
	h.coord.Begin(w) // a newer submission
	h.disp.Show(w.StatusSlot(), "PROCESSING: new", model.SeverityProcessing)

	res := h.tasks.Poll(context.Background(), model.Task{ID: "old", Workflow: w}, oldGen)

	if res.Outcome != model.OutcomeCompleted || !res.Superseded {
		t.Fatalf("expected superseded completion, got %+v", res)
	}
	if st := h.disp.status(w); st.message != "PROCESSING: new" {
		t.Fatalf("stale loop overwrote the slot: %+v", st)
	}
	if _, ok := h.disp.download(w); ok {
		t.Fatalf("stale loop surfaced a download")
	}
}

func TestTaskPoller_CanceledWhileWaiting(t *testing.T) {
	h := newHarness(t)
	h.svc.script("t1", snap(model.TaskStatusProcessing, "Working"))
	ctx, cancel := context.WithCancel(context.Background())
	h.tasks.cfg.Sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	w := model.WorkflowPersonal
	res := h.tasks.Poll(ctx, model.Task{ID: "t1", Workflow: w}, h.coord.Begin(w))
	if res.Outcome != model.OutcomeCanceled {
		t.Fatalf("expected canceled, got %s", res.Outcome)
	}
}

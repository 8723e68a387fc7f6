package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"mbti-report-console/internal/domain/model"
	"mbti-report-console/internal/infra/worker"
)

// newPooledHarness runs loops on a real worker pool with a 1ms poll interval.
func newPooledHarness(t *testing.T) (*harness, *worker.Pool) {
	t.Helper()
	h := newHarness(t)
	pool := worker.NewPool(0, nopLogger())
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	cfg := PollerConfig{
		TaskInterval:    time.Millisecond,
		TaskMaxAttempts: 1000,
		InsightInterval: time.Millisecond,
	}
	log := nopLogger()
	h.insight = NewInsightPoller(h.svc, h.disp, h.coord, pool, cfg, log)
	h.tasks = NewTaskPoller(h.svc, h.disp, h.coord, h.insight, pool, cfg, log)
	return h, pool
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestPollLoops_SlowInsightsDoNotStarveReports(t *testing.T) {
	h, _ := newPooledHarness(t)

	busy := []model.Workflow{model.WorkflowPersonal, model.WorkflowDual, model.WorkflowGroup}
	gens := map[model.Workflow]uint64{}
	for _, w := range busy {
		gens[w] = h.coord.Begin(w)
	}
	for i := 0; i < 8; i++ {
		w := busy[i%len(busy)]
		id := fmt.Sprintf("i%d", i)
		h.svc.script(id, snap(model.TaskStatusProcessing, "Thinking"))
		if err := h.insight.Start(model.Task{ID: id, Workflow: w, Kind: model.PollKindInsight}, gens[w], ""); err != nil {
			t.Fatalf("start insight %s: %v", id, err)
		}
	}
	eventually(t, "insight loops to poll", func() bool { return h.svc.calls("i7") > 1 })

	done := snap(model.TaskStatusCompleted, "Report ready")
	done.snap.DownloadURL = "/output/translated.pdf"
	h.svc.script("t9", done)
	w := model.WorkflowTranslate
	if err := h.tasks.Start(model.Task{ID: "t9", Workflow: w, Kind: model.PollKindReport}, h.coord.Begin(w)); err != nil {
		t.Fatalf("start report: %v", err)
	}

	eventually(t, "report loop to poll", func() bool { return h.svc.calls("t9") > 0 })
	eventually(t, "report download", func() bool {
		_, ok := h.disp.download(w)
		return ok
	})
}

func TestPollLoops_NewGenerationCancelsStaleLoop(t *testing.T) {
	h, pool := newPooledHarness(t)
	w := model.WorkflowPersonal
	h.svc.script("old", snap(model.TaskStatusProcessing, "Thinking"))

	if err := h.insight.Start(model.Task{ID: "old", Workflow: w, Kind: model.PollKindInsight}, h.coord.Begin(w), "/output/r.pdf"); err != nil {
		t.Fatalf("start: %v", err)
	}
	eventually(t, "stale loop to poll", func() bool { return h.svc.calls("old") > 0 })

	h.coord.Begin(w)
	eventually(t, "stale loop to exit", func() bool { return pool.Running() == 0 && h.coord.state.liveLoops(w) == 0 })
	h.disp.Show(w.StatusSlot(), "PROCESSING: new", model.SeverityProcessing)
	calls := h.svc.calls("old")
	time.Sleep(20 * time.Millisecond)
	if got := h.svc.calls("old"); got != calls {
		t.Fatalf("stale loop kept polling: %d -> %d", calls, got)
	}
	if st := h.disp.status(w); st.message != "PROCESSING: new" {
		t.Fatalf("stale loop wrote to the slot: %+v", st)
	}
}

func TestPollLoops_BindAfterNewerGenerationIsCanceled(t *testing.T) {
	state := NewAppState()
	w := model.WorkflowDual
	old := state.nextGeneration(w)
	state.nextGeneration(w)

	ctx, cancel := state.bind(context.Background(), w, old)
	defer cancel()
	if ctx.Err() == nil {
		t.Fatalf("loop bound to a superseded generation must start canceled")
	}

	cur, release := state.bind(context.Background(), w, state.nextGeneration(w))
	if state.liveLoops(w) != 1 {
		t.Fatalf("expected one live loop, got %d", state.liveLoops(w))
	}
	state.Close()
	if cur.Err() == nil {
		t.Fatalf("Close must cancel bound loops")
	}
	release()
	if state.liveLoops(w) != 0 {
		t.Fatalf("released loop still tracked")
	}
}

package usecase

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mbti-report-console/internal/domain"
	"mbti-report-console/internal/domain/model"
	"mbti-report-console/internal/domain/ports/adapter"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// --- report service ---

type statusReply struct {
	snap *model.Snapshot
	err  error
}

// fakeService replays scripted status replies per task id; the last reply repeats.
type fakeService struct {
	mu          sync.Mutex
	statuses    map[string][]statusReply
	statusCalls map[string]int
	files       map[string]string
	fetches     []string

	nextTaskID string
	submitErr  error
	insightErr error
	uploads    map[string][]model.Upload

	insightReqs []adapter.InsightRequest
	groupReqs   []adapter.GroupInsightRequest
}

func newFakeService() *fakeService {
	return &fakeService{
		statuses:    make(map[string][]statusReply),
		statusCalls: make(map[string]int),
		files:       make(map[string]string),
		uploads:     make(map[string][]model.Upload),
		nextTaskID:  "t1",
	}
}

func (f *fakeService) script(taskID string, replies ...statusReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[taskID] = replies
}

func snap(status model.TaskStatus, msg string) statusReply {
	return statusReply{snap: &model.Snapshot{Status: status, Message: msg}}
}

func (f *fakeService) calls(taskID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls[taskID]
}

func (f *fakeService) upload(endpoint string, files ...model.Upload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[endpoint] = files
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.nextTaskID, nil
}

func (f *fakeService) CreatePersonalReport(ctx context.Context, file model.Upload) (string, error) {
	return f.upload("personal", file)
}

func (f *fakeService) CreateDualReport(ctx context.Context, file1, file2 model.Upload) (string, error) {
	return f.upload("dual", file1, file2)
}

func (f *fakeService) UploadGroupZip(ctx context.Context, file model.Upload) (string, error) {
	return f.upload("group", file)
}

func (f *fakeService) Translate(ctx context.Context, file model.Upload) (string, error) {
	return f.upload("translate", file)
}

func (f *fakeService) Status(ctx context.Context, taskID string) (*model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	replies, ok := f.statuses[taskID]
	if !ok || len(replies) == 0 {
		return nil, &domain.ServiceError{StatusCode: 404, Detail: "Task not found"}
	}
	i := f.statusCalls[taskID]
	f.statusCalls[taskID]++
	if i >= len(replies) {
		i = len(replies) - 1
	}
	r := replies[i]
	if r.err != nil {
		return nil, r.err
	}
	cp := *r.snap
	cp.TaskID = taskID
	return &cp, nil
}

func (f *fakeService) InsightByDownloadURL(ctx context.Context, req adapter.InsightRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insightReqs = append(f.insightReqs, req)
	if f.insightErr != nil {
		return "", f.insightErr
	}
	return "i1", nil
}

func (f *fakeService) GroupInsight(ctx context.Context, req adapter.GroupInsightRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groupReqs = append(f.groupReqs, req)
	if f.insightErr != nil {
		return "", f.insightErr
	}
	return "gi1", nil
}

func (f *fakeService) Fetch(ctx context.Context, ref string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, ref)
	body, ok := f.files[ref]
	if !ok {
		return nil, &domain.ServiceError{StatusCode: 404, Detail: "File not found"}
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeService) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches)
}

func (f *fakeService) Health(ctx context.Context) (*adapter.Health, error) {
	return &adapter.Health{Status: "healthy"}, nil
}

// --- display ---

type slotState struct {
	message  string
	severity model.Severity
	visible  bool
	progress int
	shows    int
}

type previewState struct {
	html   string
	pdfRef string
}

// fakeDisplay records what the page would show.
type fakeDisplay struct {
	mu        sync.Mutex
	slots     map[model.SlotID]*slotState
	controls  map[model.ControlID]adapter.Control
	binds     map[model.ControlID]int
	downloads map[model.Workflow]model.ResultRef
	previews  map[model.Workflow]previewState
	active    model.Workflow
	overlay   bool
	overlayTx string
}

func newFakeDisplay() *fakeDisplay {
	return &fakeDisplay{
		slots:     make(map[model.SlotID]*slotState),
		controls:  make(map[model.ControlID]adapter.Control),
		binds:     make(map[model.ControlID]int),
		downloads: make(map[model.Workflow]model.ResultRef),
		previews:  make(map[model.Workflow]previewState),
	}
}

func (d *fakeDisplay) slot(id model.SlotID) *slotState {
	s, ok := d.slots[id]
	if !ok {
		s = &slotState{}
		d.slots[id] = s
	}
	return s
}

func (d *fakeDisplay) Show(id model.SlotID, message string, severity model.Severity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.slot(id)
	s.message, s.severity, s.visible = message, severity, true
	s.shows++
}

func (d *fakeDisplay) Hide(id model.SlotID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slot(id).visible = false
}

func (d *fakeDisplay) SetProgress(id model.SlotID, percent int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slot(id).progress = percent
}

func (d *fakeDisplay) BindAction(id model.ControlID, c adapter.Control) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.controls[id] = c
	d.binds[id]++
}

func (d *fakeDisplay) ShowDownload(w model.Workflow, ref model.ResultRef) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.downloads[w] = ref
}

func (d *fakeDisplay) ResetForm(w model.Workflow) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.downloads, w)
}

func (d *fakeDisplay) ActivateTab(w model.Workflow) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = w
}

func (d *fakeDisplay) ShowPreview(w model.Workflow, html, pdfRef string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.previews[w] = previewState{html: html, pdfRef: pdfRef}
}

func (d *fakeDisplay) ClearPreview(w model.Workflow) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.previews, w)
}

func (d *fakeDisplay) ShowOverlay(text, tip string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.overlay, d.overlayTx = true, text
}

func (d *fakeDisplay) HideOverlay() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.overlay, d.overlayTx = false, ""
}

func (d *fakeDisplay) status(w model.Workflow) slotState {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.slots[w.StatusSlot()]; ok {
		return *s
	}
	return slotState{}
}

func (d *fakeDisplay) control(id model.ControlID) (adapter.Control, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.controls[id]
	return c, ok
}

func (d *fakeDisplay) preview(w model.Workflow) (previewState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.previews[w]
	return p, ok
}

func (d *fakeDisplay) download(w model.Workflow) (model.ResultRef, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.downloads[w]
	return r, ok
}

func (d *fakeDisplay) overlayVisible() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.overlay
}

// click runs the bound action the way the page does, unbinding one-shot actions first.
func (d *fakeDisplay) click(ctx context.Context, id model.ControlID, fields map[string]string) error {
	d.mu.Lock()
	c, ok := d.controls[id]
	if !ok || c.Action == nil || !c.Enabled {
		d.mu.Unlock()
		return domain.ErrNoActionBound
	}
	action := c.Action
	if c.Once {
		c.Action = nil
		d.controls[id] = c
	}
	d.mu.Unlock()
	if fields == nil {
		fields = map[string]string{}
	}
	return action(ctx, fields)
}

// --- runner / store ---

// inlineRunner runs loops synchronously so tests observe their effects on return.
type inlineRunner struct {
	err error
}

func (r *inlineRunner) Submit(task func(ctx context.Context) error) error {
	if r.err != nil {
		return r.err
	}
	_ = task(context.Background())
	return nil
}

type memGroupStore struct {
	mu      sync.Mutex
	id      string
	saveErr error
}

func (m *memGroupStore) Save(ctx context.Context, id string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	m.id = id
	m.mu.Unlock()
	return nil
}

func (m *memGroupStore) Get(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.id == "" {
		return "", domain.ErrNotFound
	}
	return m.id, nil
}

func (m *memGroupStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.id = ""
	m.mu.Unlock()
	return nil
}

// --- harness ---

type harness struct {
	svc     *fakeService
	disp    *fakeDisplay
	store   *memGroupStore
	runner  *inlineRunner
	coord   *TabCoordinator
	insight *InsightPoller
	tasks   *TaskPoller
	uc      *reportUC
	sleeps  int
}

func newHarness(t *testing.T, quiet ...model.SlotID) *harness {
	t.Helper()
	h := &harness{
		svc:    newFakeService(),
		disp:   newFakeDisplay(),
		store:  &memGroupStore{},
		runner: &inlineRunner{},
	}
	cfg := PollerConfig{
		TaskInterval:    5 * time.Second,
		TaskMaxAttempts: 60,
		InsightInterval: 2 * time.Second,
		QuietSlots:      quiet,
		Sleep: func(ctx context.Context, d time.Duration) error {
			h.sleeps++
			return ctx.Err()
		},
	}
	log := nopLogger()
	h.coord = NewTabCoordinator(h.disp, NewAppState(), h.store, log)
	h.insight = NewInsightPoller(h.svc, h.disp, h.coord, h.runner, cfg, log)
	h.tasks = NewTaskPoller(h.svc, h.disp, h.coord, h.insight, h.runner, cfg, log)
	h.uc = NewReportUseCase(h.svc, h.disp, h.coord, h.tasks, h.insight, log)
	h.coord.Restore(context.Background())
	return h
}

func tempUpload(t *testing.T, name string) model.Upload {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte("data"), 0o600); err != nil {
		t.Fatalf("write upload: %v", err)
	}
	return model.Upload{Path: p}
}

var errConnRefused = errors.New("dial tcp 127.0.0.1:3000: connect: connection refused")

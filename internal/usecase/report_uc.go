package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"mbti-report-console/internal/domain"
	"mbti-report-console/internal/domain/model"
	"mbti-report-console/internal/domain/ports/adapter"
	"mbti-report-console/internal/infra/logging"
)

// Compile-time check
var _ ReportUseCase = (*reportUC)(nil)

// ReportUseCase is what the console's forms and buttons call into.
type ReportUseCase interface {
	// Submit dispatches to the workflow's submission.
	Submit(ctx context.Context, w model.Workflow, files []model.Upload) (string, error)
	SubmitPersonal(ctx context.Context, file model.Upload) (string, error)
	SubmitDual(ctx context.Context, file1, file2 model.Upload) (string, error)
	SubmitGroup(ctx context.Context, zip model.Upload) (string, error)
	SubmitTranslate(ctx context.Context, file model.Upload) (string, error)

	ActivateTab(w model.Workflow) bool
	RequestGroupInsight(ctx context.Context, form adapter.GroupInsightRequest) (string, error)
	OpenGroupInsight() bool

	Download(ctx context.Context, filename string) (io.ReadCloser, error)
	Health(ctx context.Context) (*adapter.Health, error)
}

type reportUC struct {
	svc     adapter.ReportService
	disp    adapter.Display
	coord   *TabCoordinator
	tasks   *TaskPoller
	insight *InsightPoller
	log     *zerolog.Logger
}

func NewReportUseCase(svc adapter.ReportService, disp adapter.Display, coord *TabCoordinator, tasks *TaskPoller,
	insight *InsightPoller, logger *zerolog.Logger) *reportUC {
	uc := &reportUC{
		svc: svc, disp: disp, coord: coord, tasks: tasks, insight: insight,
		log: logging.Component(logger, "report_uc"),
	}
	coord.SetGroupAction(uc.groupControlAction)
	return uc
}

type submission struct {
	w       model.Workflow
	status  string
	overlay string
	tip     string
	send    func(ctx context.Context) (string, error)
}

func (uc *reportUC) Submit(ctx context.Context, w model.Workflow, files []model.Upload) (string, error) {
	switch w {
	case model.WorkflowPersonal:
		if len(files) != 1 {
			return "", fmt.Errorf("%w: please select a PDF file", domain.ErrValidation)
		}
		return uc.SubmitPersonal(ctx, files[0])
	case model.WorkflowDual:
		if len(files) != 2 {
			return "", fmt.Errorf("%w: please select both PDF files", domain.ErrValidation)
		}
		return uc.SubmitDual(ctx, files[0], files[1])
	case model.WorkflowGroup:
		if len(files) != 1 {
			return "", fmt.Errorf("%w: please select a ZIP file", domain.ErrValidation)
		}
		return uc.SubmitGroup(ctx, files[0])
	case model.WorkflowTranslate:
		if len(files) != 1 {
			return "", fmt.Errorf("%w: please select a PDF file", domain.ErrValidation)
		}
		return uc.SubmitTranslate(ctx, files[0])
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownWorkflow, w)
}

func (uc *reportUC) SubmitPersonal(ctx context.Context, file model.Upload) (string, error) {
	if err := checkUpload(file, "please select a PDF file"); err != nil {
		return "", err
	}
	return uc.submit(ctx, submission{
		w:       model.WorkflowPersonal,
		status:  "PROCESSING: Creating personal report...",
		overlay: "Creating your personal report...",
		tip:     "Hang tight, this may take a moment.",
		send:    func(ctx context.Context) (string, error) { return uc.svc.CreatePersonalReport(ctx, file) },
	})
}

func (uc *reportUC) SubmitDual(ctx context.Context, file1, file2 model.Upload) (string, error) {
	for _, f := range []model.Upload{file1, file2} {
		if err := checkUpload(f, "please select both PDF files"); err != nil {
			return "", err
		}
	}
	return uc.submit(ctx, submission{
		w:       model.WorkflowDual,
		status:  "PROCESSING: Creating dual report...",
		overlay: "Creating your dual report...",
		tip:     "Hang tight, this may take a moment.",
		send:    func(ctx context.Context) (string, error) { return uc.svc.CreateDualReport(ctx, file1, file2) },
	})
}

// SubmitGroup uploads a new group ZIP. Any previous group insight is dropped
// and the new task id becomes the one group insights attach to.
func (uc *reportUC) SubmitGroup(ctx context.Context, zip model.Upload) (string, error) {
	if err := checkUpload(zip, "please select a ZIP file"); err != nil {
		return "", err
	}
	return uc.submit(ctx, submission{
		w:       model.WorkflowGroup,
		status:  "PROCESSING: Uploading and extracting ZIP file...",
		overlay: "Processing group ZIP...",
		tip:     "Large teams may take up to a minute.",
		send:    func(ctx context.Context) (string, error) { return uc.svc.UploadGroupZip(ctx, zip) },
	})
}

func (uc *reportUC) SubmitTranslate(ctx context.Context, file model.Upload) (string, error) {
	if err := checkUpload(file, "please select a PDF file"); err != nil {
		return "", err
	}
	return uc.submit(ctx, submission{
		w:       model.WorkflowTranslate,
		status:  "PROCESSING: Processing translation request...",
		overlay: "Creating your translated report...",
		tip:     "Hang tight, this may take a moment.",
		send:    func(ctx context.Context) (string, error) { return uc.svc.Translate(ctx, file) },
	})
}

func (uc *reportUC) submit(ctx context.Context, s submission) (string, error) {
	defer logging.TraceDuration(uc.log, "ReportUseCase.Submit")()
	log := logging.With(ctx, uc.log)

	gen := uc.coord.Begin(s.w)
	uc.coord.Reset(s.w)
	uc.disp.ResetForm(s.w)
	v := &loopView{disp: uc.disp, coord: uc.coord, w: s.w, gen: gen, log: log}

	v.show(s.status, model.SeverityProcessing)
	uc.disp.ShowOverlay(s.overlay, s.tip)

	taskID, err := s.send(ctx)
	if err != nil {
		log.Error().Err(err).Str("workflow", s.w.String()).Msg("submission failed")
		v.hideOverlay()
		v.show(errorLine(err), model.SeverityError)
		return "", err
	}

	if s.w == model.WorkflowGroup {
		// kept in memory even if persisting fails
		_ = uc.coord.SetGroupTask(ctx, taskID)
	}

	task := model.Task{ID: taskID, Workflow: s.w, Kind: model.PollKindReport}
	if err := uc.tasks.Start(task, gen); err != nil {
		log.Error().Err(err).Str("task_id", taskID).Msg("failed to start poll loop")
		v.hideOverlay()
		v.show("ERROR: "+err.Error(), model.SeverityError)
		return taskID, err
	}
	log.Info().Str("workflow", s.w.String()).Str("task_id", taskID).Uint64("generation", gen).Msg("report submitted")
	return taskID, nil
}

func (uc *reportUC) ActivateTab(w model.Workflow) bool { return uc.coord.Activate(w) }

func (uc *reportUC) OpenGroupInsight() bool { return uc.coord.OpenGroupInsight() }

// RequestGroupInsight validates the form and asks for an insight on the latest group report.
func (uc *reportUC) RequestGroupInsight(ctx context.Context, form adapter.GroupInsightRequest) (string, error) {
	form = trimGroupForm(form)
	if err := ValidateGroupInsight(form); err != nil {
		return "", err
	}
	groupTaskID, err := uc.coord.GroupTask(ctx)
	if err != nil {
		return "", err
	}
	form.GroupTaskID = groupTaskID

	w := model.WorkflowGroup
	log := logging.With(ctx, uc.log)
	gen := uc.coord.Begin(w)
	v := &loopView{disp: uc.disp, coord: uc.coord, w: w, gen: gen, log: log}
	uc.disp.ShowOverlay("Generating group insight...", "This might take up to a minute for large teams.")
	v.show("PROCESSING: Generating group insight...", model.SeverityProcessing)

	taskID, err := uc.svc.GroupInsight(ctx, form)
	if err != nil {
		log.Error().Err(err).Str("group_task_id", groupTaskID).Msg("group insight request failed")
		v.hideOverlay()
		v.show(errorLine(err), model.SeverityError)
		if unknownGroupTask(err) {
			// the service no longer knows this upload; a new ZIP is required
			_ = uc.coord.ClearGroupTask(ctx)
		}
		return "", err
	}

	task := model.Task{ID: taskID, Workflow: w, Kind: model.PollKindGroupInsight}
	if err := uc.insight.Start(task, gen, ""); err != nil {
		v.hideOverlay()
		v.show("ERROR: "+err.Error(), model.SeverityError)
		return taskID, err
	}
	log.Info().Str("task_id", taskID).Str("group_task_id", groupTaskID).Msg("group insight requested")
	return taskID, nil
}

// groupControlAction shows an existing group insight, or requests one when the form is supplied.
func (uc *reportUC) groupControlAction(ctx context.Context, fields map[string]string) error {
	if uc.coord.OpenGroupInsight() {
		return nil
	}
	if len(fields) == 0 {
		return fmt.Errorf("%w: fill in the group insight form", domain.ErrValidation)
	}
	_, err := uc.RequestGroupInsight(ctx, GroupInsightForm(fields))
	return err
}

// Download streams a produced file by name.
func (uc *reportUC) Download(ctx context.Context, filename string) (io.ReadCloser, error) {
	if filename == "" || filename != path.Base(filename) || filename == ".." || strings.ContainsAny(filename, `/\`) {
		return nil, fmt.Errorf("%w: invalid filename %q", domain.ErrValidation, filename)
	}
	return uc.svc.Fetch(ctx, "/output/"+url.PathEscape(filename))
}

func (uc *reportUC) Health(ctx context.Context) (*adapter.Health, error) {
	return uc.svc.Health(ctx)
}

// unknownGroupTask reports whether the service rejected the group task id as unknown.
func unknownGroupTask(err error) bool {
	var se *domain.ServiceError
	return errors.As(err, &se) && se.StatusCode == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(se.Detail), "unknown group report task")
}

func checkUpload(f model.Upload, msg string) error {
	if strings.TrimSpace(f.Path) == "" {
		return fmt.Errorf("%w: %s", domain.ErrValidation, msg)
	}
	fi, err := os.Stat(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s: %s not found", domain.ErrValidation, msg, f.Path)
		}
		return fmt.Errorf("%w: %s: %v", domain.ErrValidation, msg, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%w: %s: %s is a directory", domain.ErrValidation, msg, f.Path)
	}
	return nil
}

const groupInsightSchemaJSON = `{
  "type": "object",
  "required": ["group_name", "industry", "team_type", "analysis_goal"],
  "properties": {
    "group_name":          {"type": "string", "minLength": 1},
    "industry":            {"type": "string", "minLength": 1},
    "team_type":           {"type": "string", "minLength": 1},
    "analysis_goal":       {"type": "string", "minLength": 1},
    "number_of_members":   {"type": "string"},
    "duration_together":   {"type": "string"},
    "roles":               {"type": "string"},
    "existing_challenges": {"type": "string"},
    "communication_style": {"type": "string"},
    "upcoming_context":    {"type": "string"}
  }
}`

var groupInsightSchema = mustSchema(groupInsightSchemaJSON)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("group insight schema: %v", err))
	}
	return schema
}

// ValidateGroupInsight checks the required group insight fields and names the missing ones.
func ValidateGroupInsight(form adapter.GroupInsightRequest) error {
	result, err := groupInsightSchema.Validate(gojsonschema.NewGoLoader(form))
	if err != nil {
		return fmt.Errorf("failed to validate: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var missing []string
	for _, desc := range result.Errors() {
		field := desc.Field()
		if p, ok := desc.Details()["property"].(string); ok && desc.Type() == "required" {
			field = p
		}
		missing = append(missing, field)
	}
	return fmt.Errorf("%w: please fill in the following required fields: %s", domain.ErrValidation, strings.Join(missing, ", "))
}

// GroupInsightForm reads the group insight form from control fields.
func GroupInsightForm(fields map[string]string) adapter.GroupInsightRequest {
	return adapter.GroupInsightRequest{
		GroupName:          fields["group_name"],
		Industry:           fields["industry"],
		TeamType:           fields["team_type"],
		AnalysisGoal:       fields["analysis_goal"],
		NumberOfMembers:    fields["number_of_members"],
		DurationTogether:   fields["duration_together"],
		Roles:              fields["roles"],
		ExistingChallenges: fields["existing_challenges"],
		CommunicationStyle: fields["communication_style"],
		UpcomingContext:    fields["upcoming_context"],
	}
}

func trimGroupForm(f adapter.GroupInsightRequest) adapter.GroupInsightRequest {
	for _, p := range []*string{
		&f.GroupName, &f.Industry, &f.TeamType, &f.AnalysisGoal, &f.NumberOfMembers, &f.DurationTogether,
		&f.Roles, &f.ExistingChallenges, &f.CommunicationStyle, &f.UpcomingContext,
	} {
		*p = strings.TrimSpace(*p)
	}
	return f
}

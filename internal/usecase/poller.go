package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"mbti-report-console/internal/domain"
	"mbti-report-console/internal/domain/model"
	"mbti-report-console/internal/domain/ports/adapter"
)

// Runner schedules poll loops in the background (see worker.Pool).
type Runner interface {
	Submit(task func(ctx context.Context) error) error
}

// SleepFunc waits d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type PollerConfig struct {
	TaskInterval    time.Duration
	TaskMaxAttempts int
	InsightInterval time.Duration
	// QuietSlots only receive terminal updates from the report poller.
	QuietSlots []model.SlotID
	Sleep      SleepFunc
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.TaskInterval <= 0 {
		c.TaskInterval = 5 * time.Second
	}
	if c.TaskMaxAttempts <= 0 {
		c.TaskMaxAttempts = 60
	}
	if c.InsightInterval <= 0 {
		c.InsightInterval = 2 * time.Second
	}
	if c.Sleep == nil {
		c.Sleep = sleepCtx
	}
	return c
}

// loopView is the page as seen by one poll loop. Once a newer generation of
// the workflow has begun every write is dropped.
type loopView struct {
	disp   adapter.Display
	coord  *TabCoordinator
	w      model.Workflow
	gen    uint64
	log    *zerolog.Logger
	warned bool
}

func (v *loopView) live() bool {
	if v.coord.Current(v.w, v.gen) {
		return true
	}
	if !v.warned {
		v.warned = true
		v.log.Warn().Uint64("generation", v.gen).Msg("poll loop superseded, discarding page updates")
	}
	return false
}

func (v *loopView) show(msg string, sev model.Severity) {
	if v.live() {
		v.disp.Show(v.w.StatusSlot(), msg, sev)
	}
}

func (v *loopView) progress(p int) {
	if v.live() {
		v.disp.SetProgress(v.w.StatusSlot(), p)
	}
}

func (v *loopView) hideOverlay() {
	if v.live() {
		v.disp.HideOverlay()
	}
}

// errorLine formats a failed request for a status slot.
func errorLine(err error) string {
	var se *domain.ServiceError
	if errors.As(err, &se) {
		return "ERROR: " + se.Detail
	}
	return "CONNECTION ERROR: " + err.Error()
}

// pollErrorLine formats an error raised while polling.
func pollErrorLine(err error) string {
	var se *domain.ServiceError
	if errors.As(err, &se) {
		return "ERROR: " + se.Detail
	}
	return "ERROR: " + err.Error()
}

package commandlog

import (
	"context"
	"time"

	"github.com/ETC11111/app-serial-sub001/internal/dispatch"
)

const recordTimeout = 2 * time.Second

// Logger is the subset of logging.Logger the recorder needs.
type Logger interface {
	Warn(msg string, args ...any)
}

// Recorder writes dispatch outcomes to a Repository.
type Recorder struct {
	repo   Repository
	logger Logger
}

// NewRecorder returns a dispatch.Observer backed by repo.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// CommandDispatched implements dispatch.Observer. Write failures are logged.
func (r *Recorder) CommandDispatched(ctx context.Context, o dispatch.Outcome) {
	response := o.Response
	if !o.Result.Success {
		response = o.Result.Error
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	e := &Entry{
		DeviceID:   o.DeviceID,
		Command:    o.Command,
		Success:    o.Result.Success,
		Response:   response,
		Duration:   o.Duration,
		ExecutedAt: o.At,
	}
	if err := r.repo.Create(ctx, e); err != nil && r.logger != nil {
		r.logger.Warn("recording command failed", "device_id", o.DeviceID, "error", err)
	}
}

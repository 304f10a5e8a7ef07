package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ETC11111/app-serial-sub001/internal/directory"
	"github.com/ETC11111/app-serial-sub001/internal/frame"
)

// DefaultTimeout bounds a device request when none is configured.
const DefaultTimeout = 5 * time.Second

// Device endpoints.
const (
	PathText   = "/modbus-command"
	PathBinary = "/modbus-binary"
)

// Result messages.
const (
	MsgTextSent        = "Command sent immediately"
	MsgBinarySent      = "Binary command sent immediately"
	MsgInvalidType     = "Invalid command type"
	MsgDeviceNotFound  = "Device not found"
	maxResponseCapture = 4 << 10
)

// Result is the outcome reported to the caller.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Outcome describes one completed Send for observers.
type Outcome struct {
	DeviceID   string
	Command    frame.Command
	Result     Result
	StatusCode int
	Response   string
	// ReadErr is set when the device's response body could not be read in
	// full. The status code still decides the result.
	ReadErr    error
	Duration   time.Duration
	At         time.Time
}

// Observer is notified after every Send.
type Observer interface {
	CommandDispatched(ctx context.Context, o Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, o Outcome)

// CommandDispatched implements Observer.
func (f ObserverFunc) CommandDispatched(ctx context.Context, o Outcome) { f(ctx, o) }

// Logger is the subset of logging.Logger the dispatcher needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Dispatcher sends commands to devices. It is safe for concurrent use once
// configured.
type Dispatcher struct {
	dir       directory.Directory
	client    *http.Client
	timeout   time.Duration
	observers []Observer
	logger    Logger
}

// New returns a dispatcher resolving endpoints through dir. A non-positive
// timeout selects DefaultTimeout.
func New(dir directory.Directory, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		dir:     dir,
		client:  &http.Client{},
		timeout: timeout,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger. Call before first use.
func (d *Dispatcher) SetLogger(logger Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// SetHTTPClient replaces the HTTP client. Call before first use.
func (d *Dispatcher) SetHTTPClient(c *http.Client) {
	d.client = c
}

// AddObserver registers o. Call before first use.
func (d *Dispatcher) AddObserver(o Observer) {
	d.observers = append(d.observers, o)
}

// Timeout returns the per-request deadline.
func (d *Dispatcher) Timeout() time.Duration {
	return d.timeout
}

// Send delivers cmd to deviceID and classifies the outcome.
func (d *Dispatcher) Send(ctx context.Context, deviceID string, cmd frame.Command) Result {
	start := time.Now()
	out := Outcome{DeviceID: deviceID, Command: cmd, At: start.UTC()}

	out.Result = d.send(ctx, deviceID, cmd, &out)
	out.Duration = time.Since(start)

	if out.ReadErr != nil {
		d.logger.Warn("reading device response",
			"device_id", deviceID,
			"status", out.StatusCode,
			"error", out.ReadErr,
		)
	}

	if out.Result.Success {
		d.logger.Info("command dispatched",
			"device_id", deviceID,
			"type", cmd.Type,
			"duration", out.Duration,
		)
	} else {
		d.logger.Warn("command dispatch failed",
			"device_id", deviceID,
			"type", cmd.Type,
			"error", out.Result.Error,
			"duration", out.Duration,
		)
	}

	for _, o := range d.observers {
		o.CommandDispatched(ctx, out)
	}
	return out.Result
}

// send performs the request and records the status and body on out.
func (d *Dispatcher) send(ctx context.Context, deviceID string, cmd frame.Command, out *Outcome) Result {
	var (
		path        string
		contentType string
		body        []byte
		okMessage   string
	)
	if err := cmd.Validate(); err != nil {
		return failure(MsgInvalidType)
	}
	switch cmd.Type {
	case frame.TypeText:
		path, contentType, okMessage = PathText, "text/plain", MsgTextSent
		body = []byte(frame.CommandText(cmd))
	case frame.TypeBinary:
		path, contentType, okMessage = PathBinary, "application/octet-stream", MsgBinarySent
		body = frame.EncodeCommand(cmd)
	}

	ep, err := d.dir.Lookup(ctx, deviceID)
	if errors.Is(err, directory.ErrDeviceNotFound) {
		return failure(MsgDeviceNotFound)
	}
	if err != nil {
		return failure(networkError(err))
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	target := "http://" + ep.HostPort() + path
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return failure(networkError(err))
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return failure(timeoutMessage(d.timeout))
		}
		return failure(networkError(err))
	}
	defer resp.Body.Close()

	captured, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseCapture))
	if err == nil {
		_, err = io.Copy(io.Discard, resp.Body)
	}
	out.StatusCode = resp.StatusCode
	out.Response = string(captured)
	out.ReadErr = err

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failure(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, statusText(resp)))
	}
	return Result{Success: true, Message: okMessage}
}

// timeoutMessage names the configured deadline, "Request timeout (5s)" by
// default.
func timeoutMessage(timeout time.Duration) string {
	return fmt.Sprintf("Request timeout (%s)", timeout)
}

func failure(msg string) Result {
	return Result{Success: false, Error: msg}
}

// networkError strips the method and URL that net/http prepends.
func networkError(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}
	return "Network error: " + err.Error()
}

// statusText returns the reason phrase the device sent, or the standard one.
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

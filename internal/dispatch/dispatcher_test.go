package dispatch

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ETC11111/app-serial-sub001/internal/directory"
	"github.com/ETC11111/app-serial-sub001/internal/frame"
)

type capturedRequest struct {
	Path        string
	ContentType string
	Body        []byte
}

// deviceServer starts a fake device and returns a directory pointing at it.
func deviceServer(t *testing.T, handler http.HandlerFunc) (directory.Static, *[]capturedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, capturedRequest{Path: r.URL.Path, ContentType: r.Header.Get("Content-Type"), Body: body})
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("SplitHostPort() error = %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return directory.Static{"dev-1": {IPAddress: host, Port: port}}, &seen
}

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

var testCommand = frame.Command{SlaveID: 1, FunctionCode: 6, Address: 2, Value: 100, Type: frame.TypeText}

func TestSend_TextCommand(t *testing.T) {
	dir, seen := deviceServer(t, okHandler)
	d := New(dir, time.Second)

	res := d.Send(context.Background(), "dev-1", testCommand)
	if !res.Success || res.Message != MsgTextSent || res.Error != "" {
		t.Fatalf("Send() = %+v", res)
	}

	if len(*seen) != 1 {
		t.Fatalf("device received %d requests, want 1", len(*seen))
	}
	req := (*seen)[0]
	if req.Path != PathText {
		t.Errorf("path = %q, want %q", req.Path, PathText)
	}
	if req.ContentType != "text/plain" {
		t.Errorf("content type = %q", req.ContentType)
	}
	if string(req.Body) != "MODBUS:1,6,2,100" {
		t.Errorf("body = %q", req.Body)
	}
}

func TestSend_BinaryCommand(t *testing.T) {
	dir, seen := deviceServer(t, okHandler)
	d := New(dir, time.Second)

	cmd := frame.Command{SlaveID: 1, FunctionCode: 3, Address: 0, Value: 10, Type: frame.TypeBinary}
	res := d.Send(context.Background(), "dev-1", cmd)
	if !res.Success || res.Message != MsgBinarySent {
		t.Fatalf("Send() = %+v", res)
	}

	req := (*seen)[0]
	if req.Path != PathBinary {
		t.Errorf("path = %q, want %q", req.Path, PathBinary)
	}
	if req.ContentType != "application/octet-stream" {
		t.Errorf("content type = %q", req.ContentType)
	}
	want := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A, 0xC5, 0xCD}
	if !bytes.Equal(req.Body, want) {
		t.Errorf("body = % X, want % X", req.Body, want)
	}
}

func TestSend_InvalidTypeMakesNoLookup(t *testing.T) {
	lookups := 0
	dir := lookupFunc(func(context.Context, string) (directory.Endpoint, error) {
		lookups++
		return directory.Endpoint{}, nil
	})
	d := New(dir, time.Second)

	cmd := testCommand
	cmd.Type = "hex"
	res := d.Send(context.Background(), "dev-1", cmd)
	if res.Success || res.Error != MsgInvalidType {
		t.Errorf("Send() = %+v, want error %q", res, MsgInvalidType)
	}
	if lookups != 0 {
		t.Errorf("directory consulted %d times, want 0", lookups)
	}
}

func TestSend_DeviceNotFound(t *testing.T) {
	d := New(directory.Static{}, time.Second)

	res := d.Send(context.Background(), "ghost", testCommand)
	if res.Success || res.Error != MsgDeviceNotFound {
		t.Errorf("Send() = %+v, want error %q", res, MsgDeviceNotFound)
	}
}

func TestSend_HTTPErrorStatus(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusInternalServerError, "HTTP 500: Internal Server Error"},
		{http.StatusNotFound, "HTTP 404: Not Found"},
		{http.StatusServiceUnavailable, "HTTP 503: Service Unavailable"},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.status), func(t *testing.T) {
			dir, _ := deviceServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			})
			res := New(dir, time.Second).Send(context.Background(), "dev-1", testCommand)
			if res.Success || res.Error != tt.want {
				t.Errorf("Send() = %+v, want error %q", res, tt.want)
			}
		})
	}
}

func TestSend_Timeout(t *testing.T) {
	release := make(chan struct{})
	dir, _ := deviceServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	d := New(dir, 100*time.Millisecond)
	start := time.Now()
	res := d.Send(context.Background(), "dev-1", testCommand)
	elapsed := time.Since(start)

	if res.Success || res.Error != "Request timeout (100ms)" {
		t.Errorf("Send() = %+v", res)
	}
	if elapsed < d.Timeout() {
		t.Errorf("Send() returned after %v, before the %v deadline", elapsed, d.Timeout())
	}
	if elapsed > 2*time.Second {
		t.Errorf("Send() took %v, deadline not enforced", elapsed)
	}
}

func TestTimeoutMessage(t *testing.T) {
	if got := timeoutMessage(DefaultTimeout); got != "Request timeout (5s)" {
		t.Errorf("timeoutMessage(DefaultTimeout) = %q", got)
	}
}

func TestSend_StalledBodyRecordsReadError(t *testing.T) {
	dir, _ := deviceServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})

	d := New(dir, 100*time.Millisecond)
	var got Outcome
	d.AddObserver(ObserverFunc(func(_ context.Context, o Outcome) { got = o }))

	res := d.Send(context.Background(), "dev-1", testCommand)

	if !res.Success {
		t.Fatalf("Send() = %+v, want success from the 2xx status", res)
	}
	if got.ReadErr == nil {
		t.Error("ReadErr = nil, want the interrupted body read")
	}
	if got.StatusCode != http.StatusOK || got.Response != "partial" {
		t.Errorf("outcome = %+v", got)
	}
}

func TestNew_DefaultTimeout(t *testing.T) {
	d := New(directory.Static{}, 0)
	if d.Timeout() != DefaultTimeout {
		t.Fatalf("Timeout() = %v, want %v", d.Timeout(), DefaultTimeout)
	}
	if got := DefaultTimeout.String(); got != "5s" {
		t.Errorf("DefaultTimeout.String() = %q, want 5s", got)
	}
}

func TestSend_NetworkError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	dir := directory.Static{"dev-1": {IPAddress: "127.0.0.1", Port: addr.Port}}
	res := New(dir, time.Second).Send(context.Background(), "dev-1", testCommand)

	if res.Success {
		t.Fatal("Send() succeeded against a closed port")
	}
	if !strings.HasPrefix(res.Error, "Network error: ") {
		t.Errorf("Error = %q, want Network error prefix", res.Error)
	}
	if strings.Contains(res.Error, "http://") {
		t.Errorf("Error = %q, should not carry the request URL", res.Error)
	}
}

func TestSend_NotifiesObservers(t *testing.T) {
	dir, _ := deviceServer(t, okHandler)
	d := New(dir, time.Second)

	var got []Outcome
	d.AddObserver(ObserverFunc(func(_ context.Context, o Outcome) {
		got = append(got, o)
	}))

	d.Send(context.Background(), "dev-1", testCommand)
	d.Send(context.Background(), "ghost", testCommand)

	if len(got) != 2 {
		t.Fatalf("observer called %d times, want 2", len(got))
	}
	if !got[0].Result.Success || got[0].StatusCode != http.StatusOK || got[0].Response != "OK" || got[0].ReadErr != nil {
		t.Errorf("first outcome = %+v", got[0])
	}
	if got[1].Result.Error != MsgDeviceNotFound || got[1].DeviceID != "ghost" {
		t.Errorf("second outcome = %+v", got[1])
	}
}

type lookupFunc func(ctx context.Context, id string) (directory.Endpoint, error)

func (f lookupFunc) Lookup(ctx context.Context, id string) (directory.Endpoint, error) {
	return f(ctx, id)
}

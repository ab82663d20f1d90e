package upload

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pario-ai/costdesk/pkg/apperr"
	"github.com/pario-ai/costdesk/pkg/config"
	"github.com/pario-ai/costdesk/pkg/models"
)

// fakeGateway is an in-memory bucket.
type fakeGateway struct {
	mu      sync.Mutex
	objects []models.ObjectInfo
	puts    []string
	lists   int
	putErr  error
	listErr error
	signErr error

	// block, when set, holds the next List call until closed.
	block   chan struct{}
	entered chan struct{}
}

func (g *fakeGateway) Put(_ context.Context, key string, data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.putErr != nil {
		return g.putErr
	}
	g.puts = append(g.puts, key)
	g.objects = append(g.objects, models.ObjectInfo{Key: key, Size: int64(len(data)), LastModified: time.Now()})
	return nil
}

func (g *fakeGateway) List(ctx context.Context) ([]models.ObjectInfo, error) {
	g.mu.Lock()
	block, entered := g.block, g.entered
	g.block = nil
	g.mu.Unlock()
	if block != nil {
		entered <- struct{}{}
		<-block
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.lists++
	if g.listErr != nil {
		return nil, g.listErr
	}
	out := make([]models.ObjectInfo, len(g.objects))
	copy(out, g.objects)
	return out, nil
}

func (g *fakeGateway) SignedURL(_ context.Context, key string) (string, error) {
	if g.signErr != nil {
		return "", g.signErr
	}
	return "https://signed.example/" + key + "?sig=1", nil
}

func (g *fakeGateway) add(key string, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.objects = append(g.objects, models.ObjectInfo{Key: key, LastModified: at})
}

func (g *fakeGateway) counts() (puts, lists int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.puts), g.lists
}

// fakeTimers collects scheduled callbacks until fire is called.
type fakeTimers struct {
	mu      sync.Mutex
	pending []*fakeTimer
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (ft *fakeTimers) after(d time.Duration, f func()) func() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	ft.pending = append(ft.pending, t)
	return func() bool {
		ft.mu.Lock()
		defer ft.mu.Unlock()
		was := !t.stopped
		t.stopped = true
		return was
	}
}

func (ft *fakeTimers) fire() {
	ft.mu.Lock()
	due := ft.pending
	ft.pending = nil
	ft.mu.Unlock()
	for _, t := range due {
		if !t.stopped {
			t.f()
		}
	}
}

func newSession(t *testing.T) (*Session, *fakeGateway, *fakeTimers) {
	t.Helper()
	gw := &fakeGateway{}
	timers := &fakeTimers{}
	s := New(gw, config.Default().Upload, nil, WithAfterFunc(timers.after))
	return s, gw, timers
}

func xlsx(name string, size int) File {
	return File{Name: name, Size: int64(size), Body: bytes.NewReader(make([]byte, size))}
}

func TestStartRejectsBeforeStoreCall(t *testing.T) {
	tests := []struct {
		name string
		file File
		want string
	}{
		{"wrong type", xlsx("report.pdf", 10), "Invalid file type"},
		{"declared too large", xlsx("report.xlsx", 6<<20), "too large"},
		{"actual bytes too large", File{Name: "report.xlsx", Size: 0, Body: bytes.NewReader(make([]byte, 6<<20))}, "too large"},
		{"no file", File{}, MsgSelectFile},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, gw, _ := newSession(t)
			st, err := s.Start(context.Background(), tc.file)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q error, got %v", tc.want, err)
			}
			if !apperr.Is(err, apperr.KindUserInput) {
				t.Errorf("expected user_input kind, got %s", apperr.KindOf(err))
			}
			if st.Status != models.UploadIdle {
				t.Errorf("expected idle, got %s", st.Status)
			}
			if puts, lists := gw.counts(); puts != 0 || lists != 0 {
				t.Errorf("expected no store calls, got puts=%d lists=%d", puts, lists)
			}
		})
	}
}

func TestExtensionCaseInsensitive(t *testing.T) {
	s, gw, _ := newSession(t)
	if _, err := s.Start(context.Background(), xlsx("REPORT.XLSM", 100)); err != nil {
		t.Fatal(err)
	}
	if puts, _ := gw.counts(); puts != 1 {
		t.Errorf("expected 1 put, got %d", puts)
	}
}

func TestUploadToComplete(t *testing.T) {
	s, gw, timers := newSession(t)
	ctx := context.Background()

	st, err := s.Start(ctx, xlsx("report.xlsx", 1024))
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != models.UploadUploaded || st.Message != MsgUploaded || st.OriginalFilename != "report.xlsx" {
		t.Fatalf("unexpected state after upload %+v", st)
	}
	if st.ID == "" {
		t.Error("expected a session id")
	}

	timers.fire()
	if got := s.Snapshot(); got.Status != models.UploadProcessing || got.Message != MsgProcessing {
		t.Fatalf("expected processing, got %+v", got)
	}

	res, err := s.Poll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Completed {
		t.Fatal("no result yet")
	}

	gw.add("Error_other_20240101_115900.json", time.Now())
	gw.add("Price_report_20240101_120000.csv", time.Now())

	res, err = s.Poll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Completed || res.ResultKey != "Price_report_20240101_120000.csv" {
		t.Fatalf("expected completion, got %+v", res)
	}
	if len(res.Relevant) != 2 {
		t.Errorf("expected original and result in relevant set, got %v", res.Relevant)
	}

	got := s.Snapshot()
	if got.Status != models.UploadComplete || got.SelectedKey != res.ResultKey || got.Message != MsgReady {
		t.Fatalf("unexpected complete state %+v", got)
	}

	timers.fire()
	if got := s.Snapshot(); got.Message != MsgDownloadPrompt {
		t.Errorf("expected download prompt, got %q", got.Message)
	}

	// Complete is terminal.
	res, _ = s.Poll(ctx)
	if res.Completed {
		t.Error("completion must fire once")
	}
}

func TestIdenticalPollsNoTransition(t *testing.T) {
	s, gw, timers := newSession(t)
	ctx := context.Background()

	// A result from an earlier run of the same file is part of the baseline.
	gw.add("Price_report_20231231_090000.csv", time.Now().Add(-time.Hour))

	if _, err := s.Start(ctx, xlsx("report.xlsx", 10)); err != nil {
		t.Fatal(err)
	}
	timers.fire()

	for i := range 2 {
		res, err := s.Poll(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if res.Completed {
			t.Fatalf("poll %d: identical listing must not complete", i)
		}
		if got := s.Snapshot(); got.Status != models.UploadProcessing {
			t.Fatalf("poll %d: expected processing, got %s", i, got.Status)
		}
	}
}

func TestResultBeforeProcessingIsDetected(t *testing.T) {
	s, gw, timers := newSession(t)
	ctx := context.Background()

	if _, err := s.Start(ctx, xlsx("report.xlsx", 10)); err != nil {
		t.Fatal(err)
	}
	gw.add("Price_report_20240101_120000.csv", time.Now())

	// Still uploaded: nothing completes and the result is not absorbed.
	if res, _ := s.Poll(ctx); res.Completed {
		t.Fatal("must not complete before processing")
	}

	timers.fire()
	res, err := s.Poll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Completed {
		t.Error("expected completion once processing started")
	}
}

func TestPutFailureReturnsToIdle(t *testing.T) {
	s, gw, _ := newSession(t)
	gw.putErr = errors.New("AccessDenied")

	st, err := s.Start(context.Background(), xlsx("report.csv", 10))
	if !apperr.Is(err, apperr.KindStoreOperation) {
		t.Fatalf("expected store error, got %v", err)
	}
	if err.Error() != "Upload failed: AccessDenied" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if st.Status != models.UploadIdle || st.OriginalFilename != "" {
		t.Errorf("expected idle, got %+v", st)
	}
}

func TestStaleTickDiscarded(t *testing.T) {
	s, gw, timers := newSession(t)
	ctx := context.Background()

	if _, err := s.Start(ctx, xlsx("report.xlsx", 10)); err != nil {
		t.Fatal(err)
	}
	timers.fire()
	gw.add("Price_report_20240101_120000.csv", time.Now())

	block := make(chan struct{})
	entered := make(chan struct{}, 1)
	gw.mu.Lock()
	gw.block, gw.entered = block, entered
	gw.mu.Unlock()

	type pollOut struct {
		res models.PollResult
		err error
	}
	done := make(chan pollOut, 1)
	go func() {
		res, err := s.Poll(ctx)
		done <- pollOut{res, err}
	}()

	<-entered
	if _, err := s.Start(ctx, xlsx("other.csv", 10)); err != nil {
		t.Fatal(err)
	}
	close(block)

	out := <-done
	if out.err != nil {
		t.Fatal(out.err)
	}
	if !out.res.Stale || out.res.Completed {
		t.Errorf("expected stale, non-completing tick, got %+v", out.res)
	}
	got := s.Snapshot()
	if got.OriginalFilename != "other.csv" || got.Status != models.UploadUploaded {
		t.Errorf("new upload state was overwritten: %+v", got)
	}
}

func TestOverlappingPollsShareListing(t *testing.T) {
	s, gw, timers := newSession(t)
	ctx := context.Background()

	if _, err := s.Start(ctx, xlsx("report.xlsx", 10)); err != nil {
		t.Fatal(err)
	}
	timers.fire()
	gw.add("Price_report_20240101_120000.csv", time.Now())
	_, listsBefore := gw.counts()

	block := make(chan struct{})
	entered := make(chan struct{}, 1)
	gw.mu.Lock()
	gw.block, gw.entered = block, entered
	gw.mu.Unlock()

	firstCtx, cancelFirst := context.WithCancel(ctx)
	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Poll(firstCtx)
		firstErr <- err
	}()
	<-entered

	gone, cancelGone := context.WithCancel(ctx)
	cancelGone()
	if _, err := s.Poll(gone); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled caller to return, got %v", err)
	}

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected first caller to return on cancel, got %v", err)
	}
	close(block)

	deadline := time.Now().Add(2 * time.Second)
	for s.Snapshot().Status != models.UploadComplete {
		if time.Now().After(deadline) {
			t.Fatalf("shared tick did not complete the upload: %+v", s.Snapshot())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, lists := gw.counts(); lists != listsBefore+1 {
		t.Errorf("expected one shared listing, got %d", lists-listsBefore)
	}
}

func TestNewStartCancelsTimers(t *testing.T) {
	s, _, timers := newSession(t)
	ctx := context.Background()

	if _, err := s.Start(ctx, xlsx("first.xlsx", 10)); err != nil {
		t.Fatal(err)
	}
	s.Reset()
	timers.fire()
	if got := s.Snapshot(); got.Status != models.UploadIdle {
		t.Errorf("superseded timer moved state to %s", got.Status)
	}
}

func TestRecoveryPicksNewestResult(t *testing.T) {
	s, gw, _ := newSession(t)
	now := time.Now()
	gw.add("Price_old_20240101_100000.csv", now.Add(-2*time.Hour))
	gw.add("Price_my_report_20240102_110000.csv", now.Add(-time.Hour))
	gw.add("Error_newest_20240103_120000.json", now)
	gw.add("notes.txt", now)

	if _, err := s.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := s.Snapshot()
	if got.BaseName != "my_report" || got.SelectedKey != "Price_my_report_20240102_110000.csv" {
		t.Errorf("unexpected recovery %+v", got)
	}
}

func TestRecoveryWithoutResults(t *testing.T) {
	s, gw, _ := newSession(t)
	gw.add("report.xlsx", time.Now())

	if _, err := s.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := s.Snapshot(); got.SelectedKey != "" || got.BaseName != "" {
		t.Errorf("expected no selection, got %+v", got)
	}
}

func TestPollListError(t *testing.T) {
	s, gw, _ := newSession(t)
	gw.listErr = errors.New("timeout")
	_, err := s.Poll(context.Background())
	if err == nil || err.Error() != "Error fetching files: timeout" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestSelectAndDownload(t *testing.T) {
	s, gw, _ := newSession(t)
	ctx := context.Background()

	if _, err := s.Download(ctx, ""); err == nil || err.Error() != MsgSelectDownload {
		t.Fatalf("expected select prompt, got %v", err)
	}

	s.Select("Price_report_20240101_120000.csv")
	if got := s.Snapshot(); got.Message != "" {
		t.Errorf("select should clear the message, got %q", got.Message)
	}

	url, err := s.Download(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(url, "Price_report_20240101_120000.csv") {
		t.Errorf("unexpected url %s", url)
	}

	gw.signErr = errors.New("expired token")
	_, err = s.Download(ctx, "x.csv")
	if err == nil || err.Error() != "Error generating download link: expired token" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestFiles(t *testing.T) {
	s, gw, _ := newSession(t)
	gw.add("a.csv", time.Now())
	gw.add("b.xlsx", time.Now())
	files, err := s.Files(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || files[0].Key != "a.csv" {
		t.Errorf("unexpected files %+v", files)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	gw := &fakeGateway{}
	cfg := config.Default().Upload
	cfg.PollInterval = 5 * time.Millisecond
	s := New(gw, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
	if _, lists := gw.counts(); lists == 0 {
		t.Error("expected at least one poll")
	}
}

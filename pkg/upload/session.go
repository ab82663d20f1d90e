// Package upload drives a spreadsheet through upload, backend processing and
// download of the generated price sheet.
package upload

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pario-ai/costdesk/pkg/apperr"
	"github.com/pario-ai/costdesk/pkg/config"
	"github.com/pario-ai/costdesk/pkg/logging"
	"github.com/pario-ai/costdesk/pkg/metrics"
	"github.com/pario-ai/costdesk/pkg/models"
	"github.com/pario-ai/costdesk/pkg/objectstore"
)

// Status messages shown to the user.
const (
	MsgSelectFile     = "Please select a file first!"
	MsgUploading      = "Uploading..."
	MsgUploaded       = "Upload Successful!"
	MsgProcessing     = "Processing..."
	MsgReady          = "File processed! Ready for download."
	MsgDownloadPrompt = "Your processed file is available. Select it from the list to download."
	MsgSelectDownload = "Please select a file to download!"
)

// listTimeout bounds a shared poll listing.
const listTimeout = 30 * time.Second

// ErrSuperseded is returned when another Start replaced this upload before it
// reached the store.
var ErrSuperseded = errors.New("upload superseded by a newer upload")

// File is an upload candidate. Size is the declared size; the limit is also
// enforced on the bytes read from Body.
type File struct {
	Name string
	Size int64
	Body io.Reader
}

// Recorder persists activity entries.
type Recorder interface {
	Log(ctx context.Context, entry models.ActivityEntry) error
}

// AfterFunc schedules f after d and returns a function that cancels it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

func realAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Session is a single upload/poll state machine. Starting a new upload
// supersedes the current one.
type Session struct {
	gw       objectstore.Gateway
	cfg      config.UploadConfig
	allowed  map[string]bool
	recorder Recorder
	log      *zap.Logger
	after    AfterFunc
	polls    singleflight.Group

	mu        sync.Mutex
	gen       uint64
	id        string
	status    models.UploadStatus
	filename  string
	base      string
	selected  string
	message   string
	previous  map[string]struct{}
	startedAt time.Time
	timers    []func() bool
}

// Option configures a Session.
type Option func(*Session)

// WithAfterFunc replaces time.AfterFunc, mainly for tests.
func WithAfterFunc(f AfterFunc) Option {
	return func(s *Session) { s.after = f }
}

// WithRecorder enables activity recording.
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// New creates an idle Session.
func New(gw objectstore.Gateway, cfg config.UploadConfig, log *zap.Logger, opts ...Option) *Session {
	allowed := make(map[string]bool, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	s := &Session{
		gw:       gw,
		cfg:      cfg,
		allowed:  allowed,
		log:      logging.OrNop(log),
		after:    realAfterFunc,
		status:   models.UploadIdle,
		previous: map[string]struct{}{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start validates and uploads f. Validation failures leave the session idle
// and never reach the store.
func (s *Session) Start(ctx context.Context, f File) (models.UploadState, error) {
	s.mu.Lock()
	s.resetLocked()
	gen := s.gen
	s.mu.Unlock()

	start := time.Now()
	name := filepath.Base(f.Name)
	data, err := s.validate(f)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		s.record(ctx, models.ActivityUpload, name, string(apperr.KindOf(err)), err.Error(), start)
		return s.Snapshot(), err
	}

	s.mu.Lock()
	if s.gen != gen {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrSuperseded
	}
	s.id = uuid.NewString()
	s.status = models.UploadUploading
	s.filename = name
	s.base = BaseName(name)
	s.message = MsgUploading
	s.startedAt = time.Now().UTC()
	base := s.base
	id := s.id
	s.mu.Unlock()

	s.log.Info("upload started", zap.String("id", id), zap.String("file", name), zap.Int("bytes", len(data)))

	baseline, err := s.gw.List(ctx)
	if err != nil {
		s.log.Warn("baseline listing failed", zap.String("id", id), zap.Error(err))
	}

	if err := s.gw.Put(ctx, name, data); err != nil {
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		storeErr := apperr.Store("Upload failed", err)
		s.mu.Lock()
		if s.gen == gen {
			s.status = models.UploadIdle
			s.filename = ""
			s.base = ""
			s.message = storeErr.Message
		}
		s.mu.Unlock()
		s.log.Warn("upload failed", zap.String("id", id), zap.Error(err))
		s.record(ctx, models.ActivityUpload, name, string(apperr.KindStoreOperation), storeErr.Message, start)
		return s.Snapshot(), storeErr
	}

	metrics.UploadsTotal.WithLabelValues("ok").Inc()
	s.record(ctx, models.ActivityUpload, name, "ok", "", start)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return s.snapshotLocked(), nil
	}
	s.previous = relevantSet(baseline, "", base)
	s.status = models.UploadUploaded
	s.message = MsgUploaded
	s.timers = append(s.timers, s.after(s.cfg.ProcessingDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen == gen && s.status == models.UploadUploaded {
			s.status = models.UploadProcessing
			s.message = MsgProcessing
		}
	}))
	return s.snapshotLocked(), nil
}

func (s *Session) validate(f File) ([]byte, error) {
	if f.Name == "" || f.Body == nil {
		return nil, apperr.UserInput(MsgSelectFile)
	}
	if !s.allowed[Extension(f.Name)] {
		return nil, apperr.Newf(apperr.KindUserInput,
			"Invalid file type. Please upload one of: %s.", strings.Join(s.cfg.AllowedExtensions, ", "))
	}
	tooLarge := apperr.Newf(apperr.KindUserInput,
		"File is too large. The maximum size is %s.", humanize.IBytes(uint64(s.cfg.MaxBytes)))
	if f.Size > s.cfg.MaxBytes {
		return nil, tooLarge
	}
	data, err := io.ReadAll(io.LimitReader(f.Body, s.cfg.MaxBytes+1))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUserInput, "Could not read file", err)
	}
	if int64(len(data)) > s.cfg.MaxBytes {
		return nil, tooLarge
	}
	return data, nil
}

// Poll lists the bucket once and advances processing to complete when a new
// result object for the current upload appears. Concurrent calls share one
// listing.
//
// The shared listing does not inherit the caller's cancellation: a caller
// that gives up returns ctx.Err() while the tick finishes for the others.
func (s *Session) Poll(ctx context.Context) (models.PollResult, error) {
	ch := s.polls.DoChan("poll", func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), listTimeout)
		defer cancel()
		return s.poll(lctx)
	})
	select {
	case <-ctx.Done():
		return models.PollResult{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return models.PollResult{}, r.Err
		}
		return r.Val.(models.PollResult), nil
	}
}

func (s *Session) poll(ctx context.Context) (models.PollResult, error) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	objs, err := s.gw.List(ctx)
	if err != nil {
		metrics.PollsTotal.WithLabelValues("error").Inc()
		return models.PollResult{}, apperr.Store("Error fetching files", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		metrics.PollsTotal.WithLabelValues("stale").Inc()
		return models.PollResult{Objects: objs, Stale: true}, nil
	}

	if s.base == "" {
		if key, base, ok := recoverResult(objs); ok {
			s.base = base
			if s.selected == "" {
				s.selected = key
			}
			s.log.Info("recovered result for unknown upload", zap.String("key", key), zap.String("base", base))
		}
	}

	res := models.PollResult{Objects: objs}
	current := relevantSet(objs, s.filename, s.base)
	for k := range current {
		res.Relevant = append(res.Relevant, k)
	}
	sort.Strings(res.Relevant)

	if s.base != "" {
		if obj, ok := newestResult(objs, s.base); ok {
			res.ResultKey = obj.Key
		}
	}

	if s.status == models.UploadProcessing && res.ResultKey != "" {
		if _, seen := s.previous[res.ResultKey]; !seen {
			s.status = models.UploadComplete
			s.selected = res.ResultKey
			s.message = MsgReady
			res.Completed = true
			s.log.Info("result ready", zap.String("id", s.id), zap.String("key", res.ResultKey),
				zap.Duration("elapsed", time.Since(s.startedAt)))
			s.timers = append(s.timers, s.after(s.cfg.ReadyMessageDelay, func() {
				s.mu.Lock()
				defer s.mu.Unlock()
				if s.gen == gen && s.status == models.UploadComplete && s.message == MsgReady {
					s.message = MsgDownloadPrompt
				}
			}))
		}
	}

	// A result that lands before processing starts must stay novel.
	if s.status != models.UploadUploading && s.status != models.UploadUploaded {
		s.previous = current
	}

	if res.Completed {
		metrics.PollsTotal.WithLabelValues("complete").Inc()
	} else {
		metrics.PollsTotal.WithLabelValues("ok").Inc()
	}
	return res, nil
}

// Run polls every PollInterval until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Poll(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("poll failed", zap.Error(err))
			}
		}
	}
}

// Select chooses key for download and clears the status message.
func (s *Session) Select(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = key
	s.message = ""
}

// Download returns a signed URL for key, or for the current selection when
// key is empty.
func (s *Session) Download(ctx context.Context, key string) (string, error) {
	start := time.Now()
	if key == "" {
		s.mu.Lock()
		key = s.selected
		s.mu.Unlock()
	}
	if key == "" {
		return "", apperr.UserInput(MsgSelectDownload)
	}

	url, err := s.gw.SignedURL(ctx, key)
	if err != nil {
		metrics.SignedURLsTotal.WithLabelValues("error").Inc()
		storeErr := apperr.Store("Error generating download link", err)
		s.record(ctx, models.ActivityDownload, key, string(apperr.KindStoreOperation), storeErr.Message, start)
		return "", storeErr
	}
	metrics.SignedURLsTotal.WithLabelValues("ok").Inc()
	s.record(ctx, models.ActivityDownload, key, "ok", "", start)
	return url, nil
}

// Files lists the bucket for the file picker.
func (s *Session) Files(ctx context.Context) ([]models.ObjectInfo, error) {
	objs, err := s.gw.List(ctx)
	if err != nil {
		return nil, apperr.Store("Error fetching files", err)
	}
	return objs, nil
}

// Snapshot returns the current state.
func (s *Session) Snapshot() models.UploadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Reset returns the session to idle and cancels pending timers.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Session) resetLocked() {
	s.gen++
	for _, stop := range s.timers {
		stop()
	}
	s.timers = nil
	s.id = ""
	s.status = models.UploadIdle
	s.filename = ""
	s.base = ""
	s.selected = ""
	s.message = ""
	s.previous = map[string]struct{}{}
	s.startedAt = time.Time{}
}

func (s *Session) snapshotLocked() models.UploadState {
	known := make([]string, 0, len(s.previous))
	for k := range s.previous {
		known = append(known, k)
	}
	sort.Strings(known)
	return models.UploadState{
		ID:               s.id,
		Status:           s.status,
		OriginalFilename: s.filename,
		BaseName:         s.base,
		SelectedKey:      s.selected,
		Message:          s.message,
		Known:            known,
		StartedAt:        s.startedAt,
	}
}

func (s *Session) record(ctx context.Context, kind models.ActivityKind, subject, outcome, detail string, start time.Time) {
	if s.recorder == nil {
		return
	}
	entry := models.ActivityEntry{
		ID:        uuid.NewString(),
		Kind:      kind,
		Subject:   subject,
		Outcome:   outcome,
		Detail:    detail,
		LatencyMs: time.Since(start).Milliseconds(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.recorder.Log(context.WithoutCancel(ctx), entry); err != nil {
		s.log.Warn("activity log error", zap.Error(err))
	}
}

// relevantSet is {filename if listed, newest result for base if listed}.
func relevantSet(objs []models.ObjectInfo, filename, base string) map[string]struct{} {
	set := map[string]struct{}{}
	if filename != "" {
		for _, o := range objs {
			if o.Key == filename {
				set[o.Key] = struct{}{}
				break
			}
		}
	}
	if base != "" {
		if obj, ok := newestResult(objs, base); ok {
			set[obj.Key] = struct{}{}
		}
	}
	return set
}


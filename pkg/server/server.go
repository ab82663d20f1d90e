// Package server exposes the chat, quota and file actions over local HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pario-ai/costdesk/pkg/apperr"
	"github.com/pario-ai/costdesk/pkg/chat"
	"github.com/pario-ai/costdesk/pkg/logging"
	"github.com/pario-ai/costdesk/pkg/models"
	"github.com/pario-ai/costdesk/pkg/quota"
	"github.com/pario-ai/costdesk/pkg/upload"
)

// Server is the costdesk HTTP front.
type Server struct {
	listen    string
	maxUpload int64
	assistant *chat.Assistant
	quota     *quota.Session
	uploads   *upload.Session
	log       *zap.Logger
	mux       *http.ServeMux
}

// New creates a Server wired with all components.
func New(listen string, maxUpload int64, a *chat.Assistant, q *quota.Session, u *upload.Session, log *zap.Logger) *Server {
	s := &Server{
		listen:    listen,
		maxUpload: maxUpload,
		assistant: a,
		quota:     q,
		uploads:   u,
		log:       logging.OrNop(log),
		mux:       http.NewServeMux(),
	}
	s.mux.HandleFunc("/api/chat", s.handleChat)
	s.mux.HandleFunc("/api/transcript", s.handleTranscript)
	s.mux.HandleFunc("/api/quota", s.handleQuota)
	s.mux.HandleFunc("/api/quota/tier", s.handleTier)
	s.mux.HandleFunc("/api/upload", s.handleUpload)
	s.mux.HandleFunc("/api/upload/poll", s.handlePoll)
	s.mux.HandleFunc("/api/files", s.handleFiles)
	s.mux.HandleFunc("/api/files/select", s.handleSelect)
	s.mux.HandleFunc("/api/download", s.handleDownload)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	s.mux.Handle("/metrics", promhttp.Handler())
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe runs the HTTP server and the upload poll loop until ctx is
// cancelled or either fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("costdesk listening", zap.String("addr", s.listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return s.uploads.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	return g.Wait()
}

type chatRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, apperr.KindUserInput, "method not allowed")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, apperr.KindUserInput, "invalid request body")
		return
	}

	reply, err := s.assistant.Ask(r.Context(), req.Query)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, apperr.KindUserInput, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"turns": s.assistant.Pipeline().Transcript().Turns(),
	})
}

type quotaResponse struct {
	Tier      models.Tier `json:"tier"`
	Count     int         `json:"count"`
	Limit     int         `json:"limit"`
	Remaining int         `json:"remaining"`
}

func toQuotaResponse(st models.QuotaState) quotaResponse {
	return quotaResponse{Tier: st.Tier, Count: st.Count, Limit: st.Limit, Remaining: st.Remaining()}
}

// handleQuota runs the page-load subscription check.
func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, apperr.KindUserInput, "method not allowed")
		return
	}
	st, err := s.quota.Observe(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuotaResponse(st))
}

type tierRequest struct {
	Tier string `json:"tier"`
}

func (s *Server) handleTier(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, apperr.KindUserInput, "method not allowed")
		return
	}
	var req tierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, apperr.KindUserInput, "invalid request body")
		return
	}
	tier, err := models.ParseTier(req.Tier)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, apperr.KindUserInput, err.Error())
		return
	}
	if err := s.quota.SetTier(r.Context(), tier); err != nil {
		s.writeErr(w, err)
		return
	}
	st, err := s.quota.Observe(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuotaResponse(st))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.uploads.Snapshot())
		return
	case http.MethodPost:
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, apperr.KindUserInput, "method not allowed")
		return
	}

	// Leave room for multipart framing; the session enforces the real limit.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+1<<20)

	var f upload.File
	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		f = upload.File{Name: header.Filename, Size: header.Size, Body: file}
	case errors.Is(err, http.ErrMissingFile):
	default:
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, apperr.KindUserInput, "File is too large.")
			return
		}
		writeJSONError(w, http.StatusBadRequest, apperr.KindUserInput, "invalid multipart body")
		return
	}

	st, err := s.uploads.Start(r.Context(), f)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, apperr.KindUserInput, "method not allowed")
		return
	}
	res, err := s.uploads.Poll(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"poll":  res,
		"state": s.uploads.Snapshot(),
	})
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, apperr.KindUserInput, "method not allowed")
		return
	}
	files, err := s.uploads.Files(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if files == nil {
		files = []models.ObjectInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"files":    files,
		"selected": s.uploads.Snapshot().SelectedKey,
	})
}

type selectRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, apperr.KindUserInput, "method not allowed")
		return
	}
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, apperr.KindUserInput, "invalid request body")
		return
	}
	s.uploads.Select(req.Key)
	writeJSON(w, http.StatusOK, s.uploads.Snapshot())
}

// handleDownload redirects to a signed URL for ?key= or the current selection.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, apperr.KindUserInput, "method not allowed")
		return
	}
	url, err := s.uploads.Download(r.Context(), r.URL.Query().Get("key"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	code := statusFor(kind)
	if code >= 500 {
		s.log.Warn("request failed", zap.String("kind", string(kind)), zap.Error(err))
	}
	writeJSONError(w, code, kind, err.Error())
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindUserInput:
		return http.StatusBadRequest
	case apperr.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case apperr.KindStoreOperation, apperr.KindTransport, apperr.KindUpstreamShape:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string      `json:"message"`
	Kind    apperr.Kind `json:"kind"`
	Code    int         `json:"code"`
}

func writeJSONError(w http.ResponseWriter, code int, kind apperr.Kind, message string) {
	writeJSON(w, code, errorBody{Error: errorDetail{Message: message, Kind: kind, Code: code}})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

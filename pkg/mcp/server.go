// Package mcp exposes cost estimation, quota and result files as MCP tools
// over a line-delimited JSON-RPC stdio transport.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/pario-ai/costdesk/pkg/chat"
	"github.com/pario-ai/costdesk/pkg/logging"
	"github.com/pario-ai/costdesk/pkg/models"
	"github.com/pario-ai/costdesk/pkg/quota"
	"github.com/pario-ai/costdesk/pkg/upload"
)

// ActivitySearcher queries the activity log without tying the server to SQLite.
type ActivitySearcher interface {
	Query(ctx context.Context, opts models.ActivityQueryOpts) ([]models.ActivityEntry, error)
}

// Server answers MCP requests. Nil components make their tools report that
// the feature is not configured.
type Server struct {
	assistant *chat.Assistant
	quota     *quota.Session
	uploads   *upload.Session
	activity  ActivitySearcher
	version   string
	log       *zap.Logger
}

// Option configures optional Server components.
type Option func(*Server)

// WithUploads enables the result file tools.
func WithUploads(u *upload.Session) Option {
	return func(s *Server) { s.uploads = u }
}

// WithActivity enables costdesk_activity.
func WithActivity(a ActivitySearcher) Option {
	return func(s *Server) { s.activity = a }
}

// New creates a Server.
func New(a *chat.Assistant, q *quota.Session, version string, log *zap.Logger, opts ...Option) *Server {
	s := &Server{
		assistant: a,
		quota:     q,
		version:   version,
		log:       logging.OrNop(log),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run reads one request per line from r and writes responses to w until r is
// exhausted or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(w, rpcError(nil, CodeParseError, "parse error"))
			continue
		}
		if resp := s.dispatch(ctx, &req); resp != nil {
			s.write(w, resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return result(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ServerInfo{Name: "costdesk", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "notifications/initialized":
		return nil
	case "ping":
		return result(req.ID, map[string]any{})
	case "tools/list":
		return result(req.ID, ToolsListResult{Tools: allTools})
	case "tools/call":
		return s.callTool(ctx, req)
	default:
		return rpcError(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) callTool(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return rpcError(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return result(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}

	s.log.Debug("tool call", zap.String("tool", params.Name))
	return result(req.ID, handler(ctx, s, params.Arguments))
}

func (s *Server) write(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("mcp marshal", zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.log.Error("mcp write", zap.Error(err))
	}
}

package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pario-ai/costdesk/pkg/chat"
	"github.com/pario-ai/costdesk/pkg/models"
)

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"costdesk_estimate":    handleEstimate,
	"costdesk_quota":       handleQuota,
	"costdesk_results":     handleResults,
	"costdesk_result_link": handleResultLink,
	"costdesk_activity":    handleActivity,
}

var allTools = []ToolDefinition{
	{
		Name:        "costdesk_estimate",
		Description: "Ask the cost estimator for monthly server, storage and database pricing. Consumes one query from the quota.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"query"},
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Natural-language description of the servers to price",
				},
			},
		},
	},
	{
		Name:        "costdesk_quota",
		Description: "Show the current tier, queries used and queries remaining.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "costdesk_results",
		Description: "List the files in the pricing bucket, including processed Price_ results.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "costdesk_result_link",
		Description: "Create a time-limited download link for a file in the pricing bucket.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"key"},
			"properties": map[string]any{
				"key": map[string]any{
					"type":        "string",
					"description": "Object key as shown by costdesk_results",
				},
			},
		},
	},
	{
		Name:        "costdesk_activity",
		Description: "Search recent chat, upload and download activity.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"kind": map[string]any{
					"type":        "string",
					"enum":        []string{"chat", "upload", "download"},
					"description": "Filter by activity kind (optional)",
				},
				"outcome": map[string]any{
					"type":        "string",
					"description": "Filter by outcome, e.g. ok or quota_exceeded (optional)",
				},
				"since": map[string]any{
					"type":        "string",
					"description": "Start date in YYYY-MM-DD format (optional)",
				},
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}, IsError: true}
}

type estimateArgs struct {
	Query string `json:"query"`
}

func handleEstimate(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args estimateArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	reply, err := s.assistant.Ask(ctx, args.Query)
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(chat.RenderReply(reply))
}

func handleQuota(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	st, err := s.quota.Status(ctx)
	if err != nil {
		return errorResult("Error reading quota: " + err.Error())
	}
	return textResult(formatQuota(st))
}

func handleResults(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.uploads == nil {
		return textResult("The pricing bucket is not configured.")
	}
	files, err := s.uploads.Files(ctx)
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(formatObjects(files, time.Now()))
}

type resultLinkArgs struct {
	Key string `json:"key"`
}

func handleResultLink(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.uploads == nil {
		return textResult("The pricing bucket is not configured.")
	}
	var args resultLinkArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.Key == "" {
		return errorResult("key is required")
	}
	url, err := s.uploads.Download(ctx, args.Key)
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(url)
}

type activityArgs struct {
	Kind    string `json:"kind"`
	Outcome string `json:"outcome"`
	Since   string `json:"since"`
}

func handleActivity(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.activity == nil {
		return textResult("Activity logging is not enabled.")
	}
	var args activityArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}

	opts := models.ActivityQueryOpts{
		Kind:    models.ActivityKind(args.Kind),
		Outcome: args.Outcome,
		Limit:   50,
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	entries, err := s.activity.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching activity: " + err.Error())
	}
	return textResult(formatActivity(entries))
}

// Package chat sends queries to the cost-estimation endpoint and turns the
// nested response into transcript turns.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/costdesk/pkg/apperr"
	"github.com/pario-ai/costdesk/pkg/logging"
	"github.com/pario-ai/costdesk/pkg/metrics"
	"github.com/pario-ai/costdesk/pkg/models"
)

// Fallback texts shown in place of estimate rows.
const (
	MsgRequestFailed   = "Request failed."
	MsgInvalidResponse = "Invalid response from server."
	MsgEstimateFailed  = "Error processing cost estimate."
)

// ErrEmptyQuery is returned for empty or whitespace-only input.
var ErrEmptyQuery = apperr.UserInput("Please enter a query.")

// Pipeline posts queries to the estimation endpoint.
type Pipeline struct {
	endpoint   string
	client     *http.Client
	transcript *Transcript
	log        *zap.Logger
}

// NewPipeline creates a Pipeline. A nil client uses one with the given timeout.
func NewPipeline(endpoint string, timeout time.Duration, client *http.Client, log *zap.Logger) *Pipeline {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Pipeline{
		endpoint:   endpoint,
		client:     client,
		transcript: NewTranscript(),
		log:        logging.OrNop(log),
	}
}

// Transcript returns the pipeline's conversation log.
func (p *Pipeline) Transcript() *Transcript {
	return p.transcript
}

// exchange is the outcome of one round trip.
type exchange struct {
	turns   []models.ChatTurn
	outcome string
	rows    int
	latency time.Duration
}

// Send posts query and returns the assistant turns. Transport and parse
// failures come back as a single fallback turn, never as an error.
func (p *Pipeline) Send(ctx context.Context, query string) ([]models.ChatTurn, error) {
	ex, err := p.send(ctx, query)
	if err != nil {
		return nil, err
	}
	return ex.turns, nil
}

func (p *Pipeline) send(ctx context.Context, query string) (exchange, error) {
	if strings.TrimSpace(query) == "" {
		return exchange{}, ErrEmptyQuery
	}

	p.transcript.Append(models.ChatTurn{Role: models.RoleUser, Text: query})

	start := time.Now()
	turns, outcome := p.roundTrip(ctx, query)
	latency := time.Since(start)

	metrics.ChatRequestDuration.Observe(latency.Seconds())
	metrics.ChatRequestsTotal.WithLabelValues(outcome).Inc()

	rows := 0
	for _, t := range turns {
		if t.Row != nil {
			rows++
		}
	}
	metrics.EstimateRowsTotal.Add(float64(rows))

	p.transcript.Append(turns...)
	return exchange{turns: turns, outcome: outcome, rows: rows, latency: latency}, nil
}

// roundTrip returns the assistant turns and an outcome label.
func (p *Pipeline) roundTrip(ctx context.Context, query string) ([]models.ChatTurn, string) {
	payload, err := encodeQuery(query)
	if err != nil {
		p.log.Error("encode query", zap.Error(err))
		return textTurns(MsgRequestFailed), string(apperr.KindInternal)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		p.log.Error("create request", zap.Error(err))
		return textTurns(MsgRequestFailed), string(apperr.KindTransport)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Warn("estimation request failed", zap.Error(err))
		return textTurns(MsgRequestFailed), string(apperr.KindTransport)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.log.Warn("read estimation response", zap.Error(err))
		return textTurns(MsgRequestFailed), string(apperr.KindTransport)
	}

	p.log.Debug("estimation response",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
	)

	rows, err := parseResponse(body)
	if err != nil {
		p.log.Warn("estimation response rejected", zap.Int("status", resp.StatusCode), zap.Error(err))
		return textTurns(err.Error()), string(apperr.KindOf(err))
	}

	turns := make([]models.ChatTurn, 0, len(rows))
	for i := range rows {
		turns = append(turns, models.ChatTurn{
			Role:  models.RoleAssistant,
			Row:   &rows[i],
			Index: i + 1,
		})
	}
	return turns, "ok"
}

// encodeQuery builds {"body": "{\"query\": \"...\"}"}.
func encodeQuery(query string) ([]byte, error) {
	inner, err := json.Marshal(models.QueryPayload{Query: query})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}
	outer, err := json.Marshal(map[string]string{"body": string(inner)})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return outer, nil
}

// parseResponse decodes the envelope and returns the estimate rows. The
// returned error's message is the fallback text to show.
func parseResponse(data []byte) ([]models.CostEstimateRow, error) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &apperr.Error{Kind: apperr.KindTransport, Message: MsgRequestFailed, Cause: err}
	}

	inner, err := bodyText(env.Body)
	if err != nil {
		return nil, err
	}

	var doc models.EstimateBody
	if err := json.Unmarshal(inner, &doc); err != nil {
		return nil, &apperr.Error{Kind: apperr.KindUpstreamShape, Message: MsgEstimateFailed, Cause: err}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(doc.CostEstimate, &items); err != nil || len(items) == 0 {
		return nil, &apperr.Error{Kind: apperr.KindUpstreamShape, Message: MsgEstimateFailed, Cause: err}
	}

	rows := make([]models.CostEstimateRow, 0, len(items))
	for _, item := range items {
		rows = append(rows, decodeRow(item))
	}
	return rows, nil
}

// bodyText returns the JSON text held by the body field. A string body is
// unquoted; an object body is used as-is.
func bodyText(raw json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, apperr.New(apperr.KindUpstreamShape, MsgInvalidResponse)
	}

	if trimmed[0] != '"' {
		return trimmed, nil
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil, &apperr.Error{Kind: apperr.KindUpstreamShape, Message: MsgEstimateFailed, Cause: err}
	}
	if s == "" {
		return nil, apperr.New(apperr.KindUpstreamShape, MsgInvalidResponse)
	}
	return []byte(s), nil
}

// decodeRow reads one estimate using the endpoint's field names, some of
// which contain spaces.
func decodeRow(item json.RawMessage) models.CostEstimateRow {
	var fields map[string]json.RawMessage
	_ = json.Unmarshal(item, &fields)

	row := models.CostEstimateRow{
		InstanceType:        fieldText(fields, "InstanceType"),
		Storage:             fieldText(fields, "Storage"),
		Database:            fieldText(fields, "Database"),
		MonthlyServerCost:   fieldText(fields, "Monthly Server Cost"),
		MonthlyStorageCost:  fieldText(fields, "Monthly Storage Cost"),
		MonthlyDatabaseCost: fieldText(fields, "Monthly Database Cost"),
		TotalPricing:        fieldText(fields, "Total Pricing"),
	}
	if row.Database == "No" {
		row.Database = "No Database"
	}
	return row
}

// fieldText renders a value for display: strings unquoted, null or missing
// as empty, anything else as its JSON text.
func fieldText(fields map[string]json.RawMessage, name string) string {
	raw, ok := fields[name]
	if !ok {
		return ""
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

func textTurns(text string) []models.ChatTurn {
	return []models.ChatTurn{{Role: models.RoleAssistant, Text: text}}
}

package models

import "encoding/json"

// Role identifies who authored a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatTurn is one entry of the rendered transcript. Assistant turns carry
// either Text or a Row; Index is the 1-based position of the row within the
// response it came from.
type ChatTurn struct {
	Role  Role             `json:"role"`
	Text  string           `json:"text,omitempty"`
	Row   *CostEstimateRow `json:"row,omitempty"`
	Index int              `json:"index,omitempty"`
}

// CostEstimateRow is one server estimate. All values are display strings
// passed through unchanged. The json tags describe costdesk's own output; the
// endpoint's names ("InstanceType", "Total Pricing", ...) are read by the chat
// pipeline.
type CostEstimateRow struct {
	InstanceType        string `json:"instance_type"`
	Storage             string `json:"storage"`
	Database            string `json:"database"`
	MonthlyServerCost   string `json:"monthly_server_cost"`
	MonthlyStorageCost  string `json:"monthly_storage_cost"`
	MonthlyDatabaseCost string `json:"monthly_database_cost"`
	TotalPricing        string `json:"total_pricing"`
}

// QueryPayload is the inner request object.
type QueryPayload struct {
	Query string `json:"query"`
}

// Envelope is the outer request and response object. Body holds JSON text on
// requests; on responses it is kept raw because the endpoint may return
// either a string or an object.
type Envelope struct {
	Body json.RawMessage `json:"body,omitempty"`
}

// EstimateBody is the decoded inner response document.
type EstimateBody struct {
	CostEstimate json.RawMessage `json:"cost_estimate"`
}

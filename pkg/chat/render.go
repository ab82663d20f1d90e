package chat

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/pario-ai/costdesk/pkg/models"
)

// RenderTurn formats a turn for a terminal or a plain-text tool result.
func RenderTurn(t models.ChatTurn) string {
	if t.Role == models.RoleUser {
		return "You: " + t.Text + "\n"
	}
	if t.Row == nil {
		return t.Text + "\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Server %d Estimate:\n", t.Index)
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "  Instance Type\t%s\n", t.Row.InstanceType)
	fmt.Fprintf(w, "  Storage\t%s\n", t.Row.Storage)
	fmt.Fprintf(w, "  Database\t%s\n", t.Row.Database)
	fmt.Fprintf(w, "  Monthly Server Cost\t%s\n", t.Row.MonthlyServerCost)
	fmt.Fprintf(w, "  Monthly Storage Cost\t%s\n", t.Row.MonthlyStorageCost)
	fmt.Fprintf(w, "  Monthly Database Cost\t%s\n", t.Row.MonthlyDatabaseCost)
	fmt.Fprintf(w, "  Total Pricing\t%s\n", t.Row.TotalPricing)
	w.Flush()
	return b.String()
}

// RenderTurns formats turns in order, separated by blank lines.
func RenderTurns(turns []models.ChatTurn) string {
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		parts = append(parts, RenderTurn(t))
	}
	return strings.Join(parts, "\n")
}

// SumTotals adds the Total Pricing of every row turn. ok is false when there
// are no rows or any value is not a plain amount.
func SumTotals(turns []models.ChatTurn) (decimal.Decimal, bool) {
	sum := decimal.Zero
	rows := 0
	for _, t := range turns {
		if t.Row == nil {
			continue
		}
		rows++
		amount, err := parseAmount(t.Row.TotalPricing)
		if err != nil {
			return decimal.Zero, false
		}
		sum = sum.Add(amount)
	}
	return sum, rows > 0
}

// parseAmount accepts values like "$1,234.50", "1234.5 USD" or "12".
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "USD")
	s = strings.TrimSuffix(s, "/month")
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	return decimal.NewFromString(s)
}

// RenderReply formats the assistant turns of r followed by the summed total
// when every row has a plain amount, and the quota warning if any.
func RenderReply(r Reply) string {
	var b strings.Builder
	b.WriteString(RenderTurns(r.Turns))
	if sum, ok := SumTotals(r.Turns); ok && len(r.Turns) > 1 {
		fmt.Fprintf(&b, "\nEstimated monthly total: $%s\n", sum.StringFixed(2))
	}
	if r.Note != "" {
		b.WriteString("\n" + r.Note + "\n")
	}
	return b.String()
}

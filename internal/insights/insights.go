// Package insights talks to a generative model for spending advice and
// receipt reading. Text goes in and comes back unparsed.
package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"spendsync/internal/core"
)

const DefaultModelName = "gemini-2.5-flash"

const advisorPreamble = "You are a personal finance assistant. " +
	"Answer briefly and concretely, using Markdown. " +
	"Base every statement on the figures you are given and do not invent numbers.\n\n"

const receiptPrompt = "Read the attached receipt. " +
	"Report the merchant, the date, the total amount with its currency and the purchased items. " +
	"If a field cannot be read, say so instead of guessing."

var ErrEmptyResponse = errors.New("empty response from model")

// Generator is the part of the genai client used here. *genai.Models
// satisfies it.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

var _ Generator = (*genai.Models)(nil)

type Client struct {
	models Generator
	model  string
}

// New wraps an existing generator. An empty model selects DefaultModelName.
func New(models Generator, model string) *Client {
	if model == "" {
		model = DefaultModelName
	}
	return &Client{models: models, model: model}
}

// NewFromAPIKey creates a Gemini API client. With an empty key the genai
// library falls back to GOOGLE_API_KEY / GEMINI_API_KEY and the Vertex
// variables.
func NewFromAPIKey(ctx context.Context, apiKey, model string) (*Client, error) {
	cfg := &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
		cfg.Backend = genai.BackendGeminiAPI
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return New(client.Models, model), nil
}

// Generate sends prompt after the advisor preamble and returns the model text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: advisorPreamble + prompt}},
		},
	}
	return c.generate(ctx, "generate", contents)
}

// AnalyzeReceipt sends a receipt image and returns the model's reading of it.
func (c *Client) AnalyzeReceipt(ctx context.Context, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", core.NewRemoteError("analyze receipt", errors.New("empty image"))
	}
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: receiptPrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     image,
					},
				},
			},
		},
	}
	return c.generate(ctx, "analyze receipt", contents)
}

// SummaryPrompt embeds the summary as JSON ahead of the caller's question,
// followed by one line per budget with what remains of it this period.
func SummaryPrompt(s core.FinancialSummary, budgets []core.BudgetStatus, question string) (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	question = strings.TrimSpace(question)
	if question == "" {
		question = "How am I doing this month, and where could I spend less?"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "My financial summary for %s:\n```json\n%s\n```\n\n", s.Period, data)
	if len(budgets) > 0 {
		b.WriteString("My budgets:\n")
		for _, st := range budgets {
			fmt.Fprintf(&b, "- %s, %s: spent %s of %s, remaining %s (%.0f%% used)",
				st.Budget.Label(), strings.ToLower(string(st.Budget.Period)),
				st.Spent.StringFixed(2), st.Budget.Amount.StringFixed(2), st.Remaining.StringFixed(2),
				st.UsedRatio*100)
			switch {
			case st.Exceeded:
				b.WriteString(" OVER BUDGET")
			case st.Alert:
				b.WriteString(" ALERT")
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(question)
	return b.String(), nil
}

func (c *Client) generate(ctx context.Context, op string, contents []*genai.Content) (string, error) {
	resp, err := c.models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		slog.WarnContext(ctx, "Model request failed", "op", op, "model", c.model, "error", err)
		return "", core.NewRemoteError(op, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", core.NewRemoteError(op, ErrEmptyResponse)
	}

	slog.DebugContext(ctx, "Model response received", "op", op, "model", c.model, "chars", len(text))
	return text, nil
}

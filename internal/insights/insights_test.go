package insights

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"spendsync/internal/core"
)

type fakeModels struct {
	reply    string
	err      error
	model    string
	contents []*genai.Content
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model, f.contents = model, contents
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: f.reply}}}},
		},
	}, nil
}

func TestGenerate(t *testing.T) {
	f := &fakeModels{reply: "  Spend less on food.  "}
	c := New(f, "")

	got, err := c.Generate(context.Background(), "How am I doing?")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "Spend less on food." {
		t.Errorf("Generate() = %q", got)
	}
	if f.model != DefaultModelName {
		t.Errorf("model = %q, want default", f.model)
	}
	text := f.contents[0].Parts[0].Text
	if !strings.HasPrefix(text, advisorPreamble) || !strings.HasSuffix(text, "How am I doing?") {
		t.Errorf("prompt = %q", text)
	}
}

func TestGenerateFailuresAreRemoteErrors(t *testing.T) {
	tests := []struct {
		name string
		f    *fakeModels
	}{
		{"transport error", &fakeModels{err: errors.New("quota exceeded")}},
		{"empty reply", &fakeModels{reply: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.f, "m").Generate(context.Background(), "x")
			if !core.IsRemote(err) {
				t.Fatalf("expected RemoteError, got %v", err)
			}
		})
	}
}

func TestAnalyzeReceipt(t *testing.T) {
	f := &fakeModels{reply: "Total: 12.30 EUR"}
	c := New(f, "vision")

	got, err := c.AnalyzeReceipt(context.Background(), []byte{0xff, 0xd8}, "image/jpeg")
	if err != nil {
		t.Fatalf("AnalyzeReceipt() error = %v", err)
	}
	if got != "Total: 12.30 EUR" {
		t.Errorf("AnalyzeReceipt() = %q", got)
	}
	parts := f.contents[0].Parts
	if len(parts) != 2 || parts[1].InlineData == nil || parts[1].InlineData.MIMEType != "image/jpeg" {
		t.Errorf("unexpected parts %+v", parts)
	}

	if _, err := c.AnalyzeReceipt(context.Background(), nil, "image/png"); !core.IsRemote(err) {
		t.Errorf("empty image should fail as remote error, got %v", err)
	}
}

func TestSummaryPrompt(t *testing.T) {
	s := core.FinancialSummary{Period: "March 2025", TotalIncome: decimal.NewFromInt(500)}

	p, err := SummaryPrompt(s, nil, "")
	if err != nil {
		t.Fatalf("SummaryPrompt() error = %v", err)
	}
	if !strings.Contains(p, "March 2025") || !strings.Contains(p, `"totalIncome": "500"`) {
		t.Errorf("prompt missing summary data: %s", p)
	}
	if !strings.HasSuffix(p, "where could I spend less?") {
		t.Errorf("prompt missing default question: %s", p)
	}

	p, _ = SummaryPrompt(s, nil, " Can I afford a trip? ")
	if !strings.HasSuffix(p, "Can I afford a trip?") {
		t.Errorf("prompt should end with the question: %s", p)
	}
}

func TestSummaryPromptIncludesBudgets(t *testing.T) {
	s := core.FinancialSummary{Period: "March 2025"}
	budgets := []core.BudgetStatus{
		{
			Budget:    core.Budget{Category: core.Food, Amount: decimal.NewFromInt(100), Period: core.BudgetMonthly},
			Spent:     decimal.NewFromInt(85),
			Remaining: decimal.NewFromInt(15),
			UsedRatio: 0.85,
			Alert:     true,
		},
		{
			Budget:    core.Budget{Amount: decimal.NewFromInt(200), Period: core.BudgetWeekly},
			Spent:     decimal.NewFromInt(250),
			Remaining: decimal.NewFromInt(-50),
			UsedRatio: 1.25,
			Alert:     true,
			Exceeded:  true,
		},
	}

	p, err := SummaryPrompt(s, budgets, "")
	if err != nil {
		t.Fatalf("SummaryPrompt() error = %v", err)
	}
	for _, want := range []string{
		"- Food & Dining, monthly: spent 85.00 of 100.00, remaining 15.00 (85% used) ALERT\n",
		"- Overall, weekly: spent 250.00 of 200.00, remaining -50.00 (125% used) OVER BUDGET\n",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}
	if !strings.HasSuffix(p, "where could I spend less?") {
		t.Errorf("question must stay last: %s", p)
	}
}

package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type llmCall struct {
	system string
	user   string
}

type stubLLM struct {
	calls   []llmCall
	replies []string
	errAt   int // 1-based call index that fails; 0 never fails
	err     error
}

func (s *stubLLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.calls = append(s.calls, llmCall{system: systemPrompt, user: userPrompt})
	n := len(s.calls)
	if s.errAt != 0 && n == s.errAt {
		if s.err != nil {
			return "", s.err
		}
		return "", errors.New("llm boom")
	}
	if len(s.replies) >= n {
		return s.replies[n-1], nil
	}
	return fmt.Sprintf("output %d", n), nil
}

type stubSearcher struct {
	text  string
	err   error
	calls int
}

func (s *stubSearcher) Search(ctx context.Context, query string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

func TestStagesCrewOrder(t *testing.T) {
	stages := Stages()
	if len(stages) != 4 {
		t.Fatalf("stages = %d, want 4", len(stages))
	}
	wantNames := []string{"verifier", "financial_analyst", "investment_advisor", "risk_assessor"}
	for i, stage := range stages {
		if stage.Name != wantNames[i] {
			t.Fatalf("stage %d = %q, want %q", i, stage.Name, wantNames[i])
		}
		if strings.TrimSpace(stage.Task) == "" {
			t.Fatalf("stage %q has empty task template", stage.Name)
		}
	}
	if stages[0].UsesSearch {
		t.Fatalf("verifier should not use search")
	}
}

func TestRunSequentialStages(t *testing.T) {
	llmStub := &stubLLM{}
	search := &stubSearcher{text: "- Market rally continues (https://example.com/a)"}
	p := NewPipeline(llmStub, search)

	report, err := p.Run(context.Background(), "DOCUMENT BODY", "what is the outlook?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.StagesCompleted != 4 {
		t.Fatalf("stages completed = %d, want 4", report.StagesCompleted)
	}
	if len(llmStub.calls) != 4 {
		t.Fatalf("llm calls = %d, want 4", len(llmStub.calls))
	}
	if search.calls != 1 {
		t.Fatalf("search calls = %d, want one shared lookup", search.calls)
	}

	wantAgents := []string{
		"Document Verifier - Validated document authenticity",
		"Financial Analyst - Analyzed financial metrics and trends",
		"Investment Advisor - Provided investment recommendations",
		"Risk Assessor - Conducted comprehensive risk analysis",
	}
	if len(report.AgentsUsed) != len(wantAgents) {
		t.Fatalf("agents used = %v", report.AgentsUsed)
	}
	for i, want := range wantAgents {
		if report.AgentsUsed[i] != want {
			t.Fatalf("agents used[%d] = %q, want %q", i, report.AgentsUsed[i], want)
		}
	}

	if !strings.Contains(report.Text, "## Financial Document Verifier") {
		t.Fatalf("report text missing verifier section: %q", report.Text)
	}
	if !strings.Contains(report.Text, "## Risk Assessment Specialist") {
		t.Fatalf("report text missing risk section: %q", report.Text)
	}

	verifier := llmStub.calls[0]
	if !strings.Contains(verifier.system, "Financial Document Verifier") {
		t.Fatalf("verifier system prompt = %q", verifier.system)
	}
	if !strings.Contains(verifier.user, "DOCUMENT BODY") {
		t.Fatalf("verifier user prompt missing document text")
	}
	if strings.Contains(verifier.user, "Current Market Context") {
		t.Fatalf("verifier should not receive market context")
	}
	if strings.Contains(verifier.user, "Prior Stage Findings") {
		t.Fatalf("first stage should have no prior findings")
	}

	analyst := llmStub.calls[1]
	if !strings.Contains(analyst.user, "what is the outlook?") {
		t.Fatalf("analyst user prompt missing interpolated query")
	}
	if !strings.Contains(analyst.user, "Current Market Context") {
		t.Fatalf("analyst user prompt missing market context")
	}
	if !strings.Contains(analyst.user, "output 1") {
		t.Fatalf("analyst user prompt missing prior stage output")
	}

	risk := llmStub.calls[3]
	if !strings.Contains(risk.user, "output 1") || !strings.Contains(risk.user, "output 3") {
		t.Fatalf("risk stage should see all prior outputs")
	}
}

func TestRunAbortsOnStageError(t *testing.T) {
	llmStub := &stubLLM{errAt: 2}
	p := NewPipeline(llmStub, nil)

	report, err := p.Run(context.Background(), "doc", "query")
	if err == nil || !strings.Contains(err.Error(), "stage financial_analyst") {
		t.Fatalf("Run error = %v, want stage financial_analyst failure", err)
	}
	if report.StagesCompleted != 1 {
		t.Fatalf("stages completed = %d, want 1", report.StagesCompleted)
	}
	if len(llmStub.calls) != 2 {
		t.Fatalf("llm calls = %d, want abort after second", len(llmStub.calls))
	}
}

func TestRunSearchFailureDegrades(t *testing.T) {
	llmStub := &stubLLM{}
	search := &stubSearcher{err: errors.New("serper status 503")}
	p := NewPipeline(llmStub, search)

	report, err := p.Run(context.Background(), "doc", "query")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.StagesCompleted != 4 {
		t.Fatalf("stages completed = %d, want 4", report.StagesCompleted)
	}
	for i, call := range llmStub.calls {
		if strings.Contains(call.user, "Current Market Context") {
			t.Fatalf("call %d carries market context after search failure", i)
		}
	}
}

func TestRunEmptyStageResponse(t *testing.T) {
	llmStub := &stubLLM{replies: []string{"ok", "   "}}
	p := NewPipeline(llmStub, nil)

	_, err := p.Run(context.Background(), "doc", "query")
	if err == nil || !strings.Contains(err.Error(), "empty response") {
		t.Fatalf("Run error = %v, want empty response failure", err)
	}
}

func TestRunWithoutLLM(t *testing.T) {
	p := &Pipeline{}
	if _, err := p.Run(context.Background(), "doc", "query"); err == nil {
		t.Fatalf("expected error without llm client")
	}
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	llmStub := &stubLLM{}
	p := NewPipeline(llmStub, nil)

	_, err := p.Run(ctx, "doc", "query")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if len(llmStub.calls) != 0 {
		t.Fatalf("llm calls = %d, want none after cancellation", len(llmStub.calls))
	}
}

func TestTruncateDocument(t *testing.T) {
	long := strings.Repeat("a", maxDocumentChars+10)
	got := truncateDocument(long)
	if !strings.HasSuffix(got, "[document truncated]") {
		t.Fatalf("expected truncation marker")
	}
	if truncateDocument("short") != "short" {
		t.Fatalf("short document should pass through")
	}
}

package agents

import (
	"context"
	"fmt"
	"strings"

	"findoc-backend/internal/llm"
	"findoc-backend/internal/shared/telemetry"
)

// maxDocumentChars caps how much extracted text is sent to the model so a
// large filing cannot blow the request size.
const maxDocumentChars = 120000

// Searcher provides market context for stages that request it.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Report is the combined output of a pipeline run.
type Report struct {
	Text            string
	AgentsUsed      []string
	StagesCompleted int
}

// Pipeline runs the analysis crew sequentially over an extracted document.
type Pipeline struct {
	LLM    llm.Client
	Search Searcher // optional; nil skips market context
	Stages []StageSpec
}

// NewPipeline wires the default crew.
func NewPipeline(client llm.Client, search Searcher) *Pipeline {
	return &Pipeline{LLM: client, Search: search, Stages: Stages()}
}

// Run executes every stage in order, feeding each stage the outputs of the
// stages before it. Any stage error aborts the run.
func (p *Pipeline) Run(ctx context.Context, documentText, query string) (Report, error) {
	if p.LLM == nil {
		return Report{}, fmt.Errorf("agents: no llm client configured")
	}
	stages := p.Stages
	if len(stages) == 0 {
		stages = Stages()
	}

	market := p.marketContext(ctx, query, stages)

	var (
		sections   []string
		prior      []string
		agentsUsed []string
	)
	for i, stage := range stages {
		if err := ctx.Err(); err != nil {
			return Report{StagesCompleted: i}, err
		}
		out, err := p.LLM.Complete(ctx, systemPrompt(stage), userPrompt(stage, documentText, query, prior, market))
		if err != nil {
			return Report{StagesCompleted: i}, fmt.Errorf("stage %s: %w", stage.Name, err)
		}
		out = strings.TrimSpace(out)
		if out == "" {
			return Report{StagesCompleted: i}, fmt.Errorf("stage %s: empty response", stage.Name)
		}
		sections = append(sections, fmt.Sprintf("## %s\n\n%s", stage.Role, out))
		prior = append(prior, fmt.Sprintf("%s:\n%s", stage.Role, out))
		agentsUsed = append(agentsUsed, stage.Label)
	}

	return Report{
		Text:            strings.Join(sections, "\n\n"),
		AgentsUsed:      agentsUsed,
		StagesCompleted: len(stages),
	}, nil
}

// marketContext runs one web search for the whole pipeline. Search failures
// degrade to analysis without market context.
func (p *Pipeline) marketContext(ctx context.Context, query string, stages []StageSpec) string {
	if p.Search == nil {
		return ""
	}
	wanted := false
	for _, stage := range stages {
		if stage.UsesSearch {
			wanted = true
			break
		}
	}
	if !wanted {
		return ""
	}
	text, err := p.Search.Search(ctx, query)
	if err != nil {
		telemetry.Warn("agents.search_failed", map[string]any{
			"error": err.Error(),
		})
		return ""
	}
	return text
}

func systemPrompt(stage StageSpec) string {
	return fmt.Sprintf("Role: %s\n\n%s\n\nGoal: %s", stage.Role, stage.Backstory, stage.Goal)
}

func userPrompt(stage StageSpec, documentText, query string, prior []string, market string) string {
	var b strings.Builder
	b.WriteString(strings.ReplaceAll(stage.Task, "{{QUERY}}", query))
	b.WriteString("\n\nFinancial Document:\n")
	b.WriteString(truncateDocument(documentText))
	if len(prior) > 0 {
		b.WriteString("\n\nPrior Stage Findings:\n")
		b.WriteString(strings.Join(prior, "\n\n"))
	}
	if stage.UsesSearch && market != "" {
		b.WriteString("\n\nCurrent Market Context (web search):\n")
		b.WriteString(market)
	}
	return b.String()
}

func truncateDocument(text string) string {
	if len(text) <= maxDocumentChars {
		return text
	}
	return text[:maxDocumentChars] + "\n\n[document truncated]"
}

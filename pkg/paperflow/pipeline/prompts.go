package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/randalmurphal/paperflow/pkg/paperflow/docstore"
)

// System prompts. Stages pass them as CompletionRequest.SystemPrompt; test
// doubles route on them.
const (
	searchSystemPrompt = `You turn a research request into arXiv search queries.
Reply with a JSON object {"querys": [...], "start_date": "YYYY-MM-DD", "end_date": "YYYY-MM-DD"}.
Use short English keyword queries. Leave a date empty when the request does not constrain it.`

	readSystemPrompt = `You extract the key facts of a research paper from its title and abstract.
Reply with a single JSON object matching the schema.`

	clusterSystemPrompt = `You group research papers into themes.
Reply with a JSON object {"clusters": [{"name": "...", "paper_ids": ["..."]}]}. Every paper belongs to exactly one cluster.`

	deepAnalysisSystemPrompt = `You analyse a cluster of related papers: shared problems, competing methods, datasets, results and open issues.`

	globalAnalysisSystemPrompt = `You synthesise per-theme analyses into a global analysis of a research field: trends, comparisons, gaps and future directions.`

	directorSystemPrompt = `You plan a survey report. Reply with an outline only.
Number every section and subsection ("1 Introduction", "1.1 Scope", "2 Methods") and put one heading per line, optionally followed by a short note on what the section covers.`

	writerSystemPrompt = `You write one section of a survey report in markdown.
When the material is sufficient, end your reply with the line %s.
When it is not, explain what is missing instead.`

	reportSystemPrompt = `You assemble written sections into a complete, polished markdown survey report with a title, the sections in order, and a short conclusion.`
)

var extractedPaperSchema = json.RawMessage(`{
  "type": "object",
  "required": ["paper_id", "core_problem", "key_methodology", "main_results"],
  "properties": {
    "paper_id": {"type": "string"},
    "core_problem": {"type": "string"},
    "key_methodology": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "principle": {"type": "string"},
        "novelty": {"type": "string"}
      }
    },
    "datasets_used": {"type": "array", "items": {"type": "string"}},
    "evaluation_metrics": {"type": "array", "items": {"type": "string"}},
    "main_results": {"type": "string"},
    "limitations": {"type": "string"},
    "contributions": {"type": "array", "items": {"type": "string"}}
  }
}`)

func searchPrompt(request string) string {
	return "Research request: " + request
}

func readPrompt(p PaperRef) string {
	return fmt.Sprintf("paper_id: %s\ntitle: %s\nauthors: %s\n\nabstract:\n%s",
		p.ID, p.Title, strings.Join(p.Authors, ", "), p.Summary)
}

func clusterPrompt(papers []ExtractedPaper) string {
	data, _ := json.Marshal(papers)
	return "Papers:\n" + string(data)
}

func deepAnalysisPrompt(request string, c Cluster, papers []ExtractedPaper) string {
	data, _ := json.Marshal(papers)
	return fmt.Sprintf("Research request: %s\nTheme: %s\nPapers:\n%s", request, c.Name, data)
}

func globalAnalysisPrompt(request string, analyses []ClusterAnalysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research request: %s\n", request)
	for _, a := range analyses {
		fmt.Fprintf(&b, "\n## %s\n%s\n", a.Cluster.Name, a.Analysis)
	}
	return b.String()
}

func directorPrompt(request, analysis string) string {
	return fmt.Sprintf("Research request: %s\n\nGlobal analysis:\n%s", request, analysis)
}

func writerPrompt(section SectionSpec, analysis string, docs []docstore.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Section to write: %s\n", section)
	if section.Body != "" {
		fmt.Fprintf(&b, "Section notes: %s\n", section.Body)
	}
	fmt.Fprintf(&b, "\nGlobal analysis:\n%s\n", analysis)
	if len(docs) > 0 {
		b.WriteString("\nMaterial:\n")
		for _, d := range docs {
			fmt.Fprintf(&b, "- [%s] %s\n", d.ID, d.Text)
		}
	}
	return b.String()
}

func reportPrompt(request string, sections []SectionSpec, written []SectionState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research request: %s\n", request)
	for i, s := range written {
		heading := fmt.Sprintf("Section %d", i+1)
		if i < len(sections) {
			heading = sections[i].String()
		}
		fmt.Fprintf(&b, "\n## %s\n%s\n", heading, s.Content)
	}
	return b.String()
}

package generators

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"
)

type ResearchConfig struct {
	Topic     string   `json:"topic"`
	Questions []string `json:"questions,omitempty"`
	Language  string   `json:"language,omitempty"`
}

// ResearchGenerator produces a structured research report outline plus a
// sources sheet. The report body is assembled from the configured topic and
// questions; a production deployment plugs an LLM backend in behind the same
// interface.
type ResearchGenerator struct{}

var reportTemplate = template.Must(template.New("report").Parse(`# Research Report: {{.Topic}}

Generated {{.Date}}

## Scope
{{range .Questions}}- {{.}}
{{end}}
## Findings
{{range $i, $q := .Questions}}### {{$q}}

(section {{$i}} pending analyst review)

{{end}}`))

func (g *ResearchGenerator) Generate(ctx context.Context, cfg json.RawMessage, workDir string) ([]string, error) {
	var rc ResearchConfig
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &rc); err != nil {
			return nil, fmt.Errorf("invalid research config: %w", err)
		}
	}
	if rc.Topic == "" {
		return nil, fmt.Errorf("research config requires a topic")
	}
	if len(rc.Questions) == 0 {
		rc.Questions = []string{"Overview of " + rc.Topic}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var report strings.Builder
	err := reportTemplate.Execute(&report, struct {
		Topic     string
		Date      string
		Questions []string
	}{rc.Topic, time.Now().Format("2006-01-02"), rc.Questions})
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(workDir, "report.md"), []byte(report.String()), 0644); err != nil {
		return nil, err
	}

	sources := "# Sources\n\n(populated during research)\n"
	if err := os.WriteFile(filepath.Join(workDir, "sources.md"), []byte(sources), 0644); err != nil {
		return nil, err
	}

	return []string{"report.md", "sources.md"}, nil
}

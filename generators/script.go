package generators

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type ScriptConfig struct {
	Description string `json:"description"`
	Language    string `json:"language,omitempty"`
}

// ScriptGenerator produces a runnable script scaffold for the requested
// automation task.
type ScriptGenerator struct{}

func (g *ScriptGenerator) Generate(ctx context.Context, cfg json.RawMessage, workDir string) ([]string, error) {
	var sc ScriptConfig
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &sc); err != nil {
			return nil, fmt.Errorf("invalid script config: %w", err)
		}
	}
	if sc.Description == "" {
		return nil, fmt.Errorf("script config requires a description")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := "script.py"
	var body strings.Builder
	switch strings.ToLower(sc.Language) {
	case "bash", "sh", "shell":
		name = "script.sh"
		body.WriteString("#!/usr/bin/env bash\nset -euo pipefail\n\n")
		body.WriteString("# " + sc.Description + "\n\nmain() {\n\techo \"not implemented\" >&2\n\texit 1\n}\n\nmain \"$@\"\n")
	default:
		body.WriteString("#!/usr/bin/env python3\n\"\"\"" + sc.Description + "\"\"\"\n\n\ndef main():\n    raise NotImplementedError\n\n\nif __name__ == \"__main__\":\n    main()\n")
	}

	if err := os.WriteFile(filepath.Join(workDir, name), []byte(body.String()), 0755); err != nil {
		return nil, err
	}
	return []string{name}, nil
}

package generators

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type LogoConfig struct {
	BrandName string `json:"brand_name"`
	Color     string `json:"color,omitempty"`
}

// LogoGenerator renders a monogram SVG for the brand. Image-model backends
// replace this implementation behind the same interface.
type LogoGenerator struct{}

func (g *LogoGenerator) Generate(ctx context.Context, cfg json.RawMessage, workDir string) ([]string, error) {
	var lc LogoConfig
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &lc); err != nil {
			return nil, fmt.Errorf("invalid logo config: %w", err)
		}
	}
	if lc.BrandName == "" {
		return nil, fmt.Errorf("logo config requires a brand_name")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	color := lc.Color
	if color == "" {
		color = "#1a1a2e"
	}

	initial := string([]rune(lc.BrandName)[0])
	svg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 120 120">
  <rect width="120" height="120" rx="24" fill="%s"/>
  <text x="60" y="78" font-family="Helvetica, sans-serif" font-size="56" font-weight="bold" fill="#ffffff" text-anchor="middle">%s</text>
</svg>
`, color, initial)

	if err := os.WriteFile(filepath.Join(workDir, "logo.svg"), []byte(svg), 0644); err != nil {
		return nil, err
	}
	return []string{"logo.svg"}, nil
}

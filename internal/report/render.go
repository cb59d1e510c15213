package report

import (
	"context"
	"path/filepath"
	"strings"

	"soulbench/internal/artifacts"
)

// RenderHTML renders the report page into a string.
func RenderHTML(ctx context.Context, page Page) (string, error) {
	var builder strings.Builder
	if err := RunPage(page).Render(ctx, &builder); err != nil {
		return "", err
	}
	return builder.String(), nil
}

// WriteRunReport renders report.html inside a run directory and returns its
// path.
func WriteRunReport(ctx context.Context, dir string) (string, error) {
	run, err := LoadRun(dir)
	if err != nil {
		return "", err
	}
	html, err := RenderHTML(ctx, BuildPage(run))
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, artifacts.ReportFile)
	if err := artifacts.WriteFile(path, []byte(html)); err != nil {
		return "", err
	}
	return path, nil
}

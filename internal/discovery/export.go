// File: internal/discovery/export.go
package discovery

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json "github.com/json-iterator/go"
)

// File names written by Export.
const (
	CatalogJSONFile     = "features.json"
	CatalogMarkdownFile = "features.md"
)

// WriteJSON serialises the catalog as indented JSON.
func (c Catalog) WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode feature catalog: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write feature catalog: %w", err)
	}
	return nil
}

// WriteMarkdown renders the catalog as one table per page.
func (c Catalog) WriteMarkdown(w io.Writer) error {
	var b strings.Builder
	b.WriteString("# Feature Catalog\n\n")
	fmt.Fprintf(&b, "- Generated: %s\n", c.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "- Duration: %s\n", c.Duration)
	fmt.Fprintf(&b, "- Pages: %d\n", c.TotalPages)
	fmt.Fprintf(&b, "- Features: %d (%d unique)\n\n", c.TotalFeatures, c.UniqueFeatures)

	if len(c.ByCategory) > 0 {
		b.WriteString("| Category | Count |\n|---|---|\n")
		for _, cat := range Categories {
			if n := c.ByCategory[cat]; n > 0 {
				fmt.Fprintf(&b, "| %s | %d |\n", cat, n)
			}
		}
		b.WriteString("\n")
	}

	for _, p := range c.Pages {
		title := p.Title
		if title == "" {
			title = "untitled"
		}
		fmt.Fprintf(&b, "## %s (%s)\n\n", p.Path, escapeCell(title))
		fmt.Fprintf(&b, "Visits: %d\n\n", p.Visits)
		if len(p.Features) == 0 {
			b.WriteString("_No labelled features._\n\n")
			continue
		}
		b.WriteString("| Text | Category | Tag | Selector | Seen | Used |\n|---|---|---|---|---|---|\n")
		for _, f := range p.Features {
			fmt.Fprintf(&b, "| %s | %s | %s | `%s` | %d | %d |\n",
				escapeCell(f.Text), f.Category, f.Tag, escapeCell(f.Selector), f.TimesSeen, f.Interactions)
		}
		b.WriteString("\n")
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("failed to write feature table: %w", err)
	}
	return nil
}

// Export writes features.json and features.md into dir.
func (c Catalog) Export(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create catalog directory %s: %w", dir, err)
	}
	if err := writeFile(filepath.Join(dir, CatalogJSONFile), c.WriteJSON); err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, CatalogMarkdownFile), c.WriteMarkdown)
}

func writeFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

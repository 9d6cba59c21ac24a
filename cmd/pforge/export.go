package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"promptforge/internal/batch"
)

var (
	exportMarkdown bool
	exportOut      string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export queue results",
	Long: `Dumps every item's outputs as markdown. By default the raw markdown
goes to stdout; --markdown renders it for the terminal, --out writes
it to a file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		doc := renderResults(a.queue.Items())

		if exportOut != "" {
			if err := os.WriteFile(exportOut, []byte(doc), 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", exportOut, err)
			}
			fmt.Printf("wrote %s\n", exportOut)
			return nil
		}

		if exportMarkdown {
			r, err := glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(100),
			)
			if err != nil {
				return fmt.Errorf("failed to build renderer: %w", err)
			}
			rendered, err := r.Render(doc)
			if err != nil {
				return fmt.Errorf("failed to render markdown: %w", err)
			}
			fmt.Print(rendered)
			return nil
		}

		fmt.Print(doc)
		return nil
	},
}

// renderResults formats the queue as a markdown document: one section
// per item, one numbered entry per output.
func renderResults(items []batch.WorkItem) string {
	var b strings.Builder
	b.WriteString("# promptforge results\n\n")

	for _, item := range items {
		b.WriteString(fmt.Sprintf("## %s\n\n", firstLine(item.SourceText)))
		b.WriteString(fmt.Sprintf("- status: %s\n", item.Status))
		b.WriteString(fmt.Sprintf("- rounds completed: %d\n", item.RoundsCompleted))
		if item.Error != "" {
			b.WriteString(fmt.Sprintf("- error: %s\n", item.Error))
		}
		b.WriteString("\n")

		for i, out := range item.Outputs {
			b.WriteString(fmt.Sprintf("%d. %s\n", i+1, out.Primary))
			if out.Secondary != "" {
				b.WriteString(fmt.Sprintf("   - %s\n", out.Secondary))
			}
		}
		if len(item.Outputs) > 0 {
			b.WriteString("\n")
		}
	}

	return b.String()
}

func init() {
	exportCmd.Flags().BoolVar(&exportMarkdown, "markdown", false, "render for the terminal")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "write raw markdown to a file")
}

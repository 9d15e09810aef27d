// Package templates renders the HTMX fragments returned by the import API.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/kitstash/internal/core"
)

// maxListedErrors caps the row errors shown inline; the JSON result has all of them.
const maxListedErrors = 20

// ErrorAlert renders a dismissible error box with an optional action hint.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<div class="alert alert-error" role="alert">`)
		fmt.Fprintf(&b, `<p class="alert-message">%s</p>`, templ.EscapeString(message))
		if action != "" {
			fmt.Fprintf(&b, `<p class="alert-action">%s</p>`, templ.EscapeString(action))
		}
		if code != "" {
			fmt.Fprintf(&b, `<p class="alert-code">Error code: %s</p>`, templ.EscapeString(code))
		}
		b.WriteString(`</div>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// ImportSummary renders the outcome of a finished import.
func ImportSummary(result *core.ImportResult) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		fmt.Fprintf(&b, `<section class="import-summary outcome-%s">`, templ.EscapeString(string(result.Outcome)))
		fmt.Fprintf(&b, `<h3>%s</h3>`, templ.EscapeString(headline(result)))

		b.WriteString(`<dl class="import-stats">`)
		stat(&b, "Created", result.Stats.Successful)
		stat(&b, "Failed", result.Stats.Failed)
		stat(&b, "Rows", result.Stats.Total)
		if result.SkippedRows > 0 {
			stat(&b, "Skipped (no title)", result.SkippedRows)
		}
		if result.TagsCreated > 0 {
			stat(&b, "New tags", result.TagsCreated)
		}
		b.WriteString(`</dl>`)

		list(&b, "import-errors", "Rows that failed", result.Stats.Errors)
		list(&b, "import-warnings", "Tag warnings", result.Stats.TagWarnings)
		list(&b, "parse-warnings", "File warnings", result.ParseWarnings)

		b.WriteString(`</section>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func headline(result *core.ImportResult) string {
	name := result.FileName
	switch {
	case result.Cancelled:
		return fmt.Sprintf("Import of %s was cancelled", name)
	case result.Outcome == core.OutcomeEmpty:
		return fmt.Sprintf("%s has no projects to import", name)
	case result.Outcome == core.OutcomeFailed:
		return fmt.Sprintf("No projects from %s were imported", name)
	case result.Outcome == core.OutcomePartial:
		return fmt.Sprintf("Imported %d of %d projects from %s", result.Stats.Successful, result.Stats.Total, name)
	case result.Outcome == core.OutcomeSuccessWithWarnings:
		return fmt.Sprintf("Imported %d projects from %s with warnings", result.Stats.Successful, name)
	default:
		return fmt.Sprintf("Imported %d projects from %s", result.Stats.Successful, name)
	}
}

func stat(b *strings.Builder, label string, n int) {
	fmt.Fprintf(b, `<div><dt>%s</dt><dd>%d</dd></div>`, templ.EscapeString(label), n)
}

func list(b *strings.Builder, class, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, `<details class="%s"><summary>%s (%d)</summary><ul>`, class, templ.EscapeString(title), len(items))
	for i, item := range items {
		if i == maxListedErrors {
			fmt.Fprintf(b, `<li>and %d more</li>`, len(items)-maxListedErrors)
			break
		}
		fmt.Fprintf(b, `<li>%s</li>`, templ.EscapeString(item))
	}
	b.WriteString(`</ul></details>`)
}

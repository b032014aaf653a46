// Package templates renders the HTMX fragments served by the web package.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/colmap/internal/core"
)

// ErrorAlert renders a dismissible error box with the support code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<div class="alert alert-error" role="alert">`)
		fmt.Fprintf(&b, `<p class="alert-message">%s</p>`, templ.EscapeString(message))
		if action != "" {
			fmt.Fprintf(&b, `<p class="alert-action">%s</p>`, templ.EscapeString(action))
		}
		if code != "" {
			fmt.Fprintf(&b, `<p class="alert-code">Code: %s</p>`, templ.EscapeString(code))
		}
		b.WriteString(`</div>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// PreviewTable renders mapped preview rows as an HTML table. Empty cells are
// shown as a muted dash.
func PreviewTable(p core.Preview) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<table class="preview-table"><thead><tr>`)
		for _, h := range p.Headers {
			fmt.Fprintf(&b, `<th>%s</th>`, templ.EscapeString(h))
		}
		b.WriteString(`</tr></thead><tbody>`)
		if len(p.Rows) == 0 {
			fmt.Fprintf(&b, `<tr><td class="empty" colspan="%d">No rows</td></tr>`, max(len(p.Headers), 1))
		}
		for _, row := range p.Rows {
			b.WriteString(`<tr>`)
			for _, h := range p.Headers {
				v := row[h]
				if v == "" {
					b.WriteString(`<td class="muted">-</td>`)
					continue
				}
				fmt.Fprintf(&b, `<td>%s</td>`, templ.EscapeString(v))
			}
			b.WriteString(`</tr>`)
		}
		b.WriteString(`</tbody></table>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// ColumnList renders a parsed file's columns with their detected types.
func ColumnList(t *core.Table) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		fmt.Fprintf(&b, `<div class="column-list" data-filename="%s">`, templ.EscapeString(t.Filename))
		fmt.Fprintf(&b, `<p class="summary">%d columns, %d rows</p><ul>`, len(t.Columns), t.RowCount)
		for _, c := range t.Columns {
			fmt.Fprintf(&b, `<li><span class="name">%s</span> <span class="type type-%s">%s</span>`,
				templ.EscapeString(c.Name), templ.EscapeString(string(c.Type)), templ.EscapeString(c.Type.Label()))
			if c.EmptyPercent > 0 {
				fmt.Fprintf(&b, ` <span class="empty">%.0f%% empty</span>`, c.EmptyPercent)
			}
			b.WriteString(`</li>`)
		}
		b.WriteString(`</ul></div>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

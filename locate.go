package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"voxfill/internal/dom"
	"voxfill/internal/sites"
)

// writeLocateReport prints what dictation would target on doc: the field,
// the chosen send button and every ranked candidate.
func writeLocateReport(w io.Writer, registry *sites.Registry, doc *dom.Document) error {
	res := registry.Resolve(doc)
	host := doc.Hostname()
	if host == "" {
		host = "(none)"
	}
	fmt.Fprintf(w, "host:     %s\n", host)
	fmt.Fprintf(w, "platform: %s\n", res.Handler.Platform())
	if res.PaperPlane != nil {
		fmt.Fprintf(w, "icon:     %s\n", res.PaperPlane)
	}

	field := registry.FindBestInputField(doc, doc.ActiveElement())
	if field == nil {
		fmt.Fprintln(w, "field:    none")
		return nil
	}
	fmt.Fprintf(w, "field:    %s\n", field)

	chosen := registry.FindSubmitButtonForInput(doc, field)
	if chosen != nil {
		fmt.Fprintf(w, "submit:   %s\n", chosen)
	} else {
		fmt.Fprintln(w, "submit:   none")
	}

	ranked := registry.Locator().RankSubmitButtons(doc, field)
	if len(ranked) == 0 {
		return nil
	}
	fmt.Fprintln(w)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Button", "Score", "Disabled", "Chosen", "Reasons"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	for i, c := range ranked {
		mark := ""
		if c.Element == chosen {
			mark = "*"
		}
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			c.Element.String(),
			fmt.Sprintf("%.1f", c.Score),
			fmt.Sprintf("%t", c.Disabled),
			mark,
			strings.Join(c.Reasons, ", "),
		})
	}
	table.Render()
	return nil
}

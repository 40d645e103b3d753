package report

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/ampscan/ampscan/internal/scan"
)

// RenderValidityTable writes a per-type validity breakdown. Types appear in
// sorted order so output is stable.
func RenderValidityTable(w io.Writer, c *scan.Counters) error {
	types := make([]string, 0, len(c.ValidityByType))
	for t := range c.ValidityByType {
		types = append(types, t)
	}
	sort.Strings(types)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tVALID\tTOTAL\tRATE")
	for _, t := range types {
		v := c.ValidityByType[t]
		rate := "-"
		if v.Total > 0 {
			rate = fmt.Sprintf("%d%%", 100*v.Valid/v.Total)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", t, v.Valid, v.Total, rate)
	}
	return tw.Flush()
}

// RenderSummary writes the closing lines of a scan run.
func RenderSummary(w io.Writer, c *scan.Counters) {
	fmt.Fprintf(w, "Crawled %d URLs.\n", c.NumberCrawled)
	if c.TotalErrors == 0 {
		fmt.Fprintln(w, "All URLs are valid.")
		return
	}
	fmt.Fprintf(w, "%d URLs have validation errors (%d with unaccepted errors).\n", c.TotalErrors, c.UnacceptedErrors)
}

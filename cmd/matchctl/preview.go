package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/civicnet/weeklymatch/internal/cycle"
)

func printPreview(w io.Writer, s *cycle.Summary) {
	if !s.Success {
		fmt.Fprintf(w, "preview failed: %s\n", s.Reason)
		return
	}
	if s.Skipped {
		fmt.Fprintf(w, "cycle would be skipped: %s\n", s.Reason)
		return
	}
	if len(s.Pairs) == 0 {
		fmt.Fprintln(w, "no pairs: fewer than two eligible members")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tMEMBER A\tMEMBER B\tREASONS")
	for _, p := range s.Pairs {
		fmt.Fprintf(tw, "%.0f\t%s\t%s\t%s\n", p.Score, label(p.NameA, p.UserA), label(p.NameB, p.UserB),
			strings.Join(p.Reasons, "; "))
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\n%d pairs\n", len(s.Pairs))
}

func label(name, id string) string {
	if name == "" {
		return id
	}
	return fmt.Sprintf("%s (%s)", name, id)
}

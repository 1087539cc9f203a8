package pipeline

import (
	"fmt"
	"io"
	"time"
)

// WriteReport prints a human-readable summary: one totals line followed by
// one line per reject reason with its samples.
func (s Summary) WriteReport(w io.Writer) error {
	_, err := fmt.Fprintf(w,
		"summary: run=%s rows=%d accepted=%d rejected=%d groups=%d batches=%d elapsed=%s peak_rss_mb=%.1f\n",
		s.RunID, s.Rows, s.Accepted, s.Rejected, s.Groups, s.Batches,
		s.Elapsed.Round(time.Millisecond), float64(s.PeakRSSBytes)/(1<<20),
	)
	if err != nil {
		return err
	}
	for _, r := range sortedReasons(s.RejectsByReason) {
		if _, err := fmt.Fprintf(w, "rejected %s=%d\n", r, s.RejectsByReason[r]); err != nil {
			return err
		}
		for i, msg := range s.Samples[r] {
			if _, err := fmt.Fprintf(w, "  #%03d: %s\n", i+1, msg); err != nil {
				return err
			}
		}
	}
	return nil
}

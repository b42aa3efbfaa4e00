package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/banshee-data/agreement.report/internal/agreement"
	"github.com/banshee-data/agreement.report/internal/annotations"
	"github.com/banshee-data/agreement.report/internal/db"
)

// WriteRunsTable lists archived runs in the order given.
func WriteRunsTable(w io.Writer, runs []db.Run) error {
	fmt.Fprintf(w, "\n## Archived runs\n\n")
	table := newTable([]string{"Run", "Computed at", "Duration", "Weighting", "Scale"}, w)
	for _, r := range runs {
		row := []string{
			r.RunID.String(),
			r.ComputedAt.UTC().Format(time.RFC3339),
			r.Duration.String(),
			r.Weighting,
			strconv.Itoa(r.ScaleMin) + "-" + strconv.Itoa(r.ScaleMax),
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to append run row: %w", err)
		}
	}
	return table.Render()
}

// WriteArchivedKappas prints the kappa table of one archived run. Categories
// are taken from the rows in the order they first appear.
func WriteArchivedKappas(w io.Writer, run db.Run, rows []agreement.KappaRow) error {
	weighting, err := agreement.ParseWeighting(run.Weighting)
	if err != nil {
		return fmt.Errorf("run %s: %w", run.RunID, err)
	}
	var categories []string
	seen := make(map[string]bool)
	for _, row := range rows {
		if !seen[row.Category] {
			seen[row.Category] = true
			categories = append(categories, row.Category)
		}
	}
	fmt.Fprintf(w, "\nRun %s computed %s\n", run.RunID, run.ComputedAt.UTC().Format(time.RFC3339))
	return WriteKappaTable(w, &agreement.Result{
		Scheme:    annotations.Scheme{Categories: categories, ScaleMin: run.ScaleMin, ScaleMax: run.ScaleMax},
		Weighting: weighting,
		Kappas:    rows,
	})
}

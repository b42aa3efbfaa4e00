// Package report renders a pipeline Result for the terminal and as PNG plots.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/banshee-data/agreement.report/internal/agreement"
)

// newTable returns a markdown-style table writer shared by every section.
func newTable(headers []string, w io.Writer) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		MaxWidth: 120,
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{
				Left:   tw.On,
				Top:    tw.Off,
				Right:  tw.On,
				Bottom: tw.Off,
			},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

// WriteText prints the kappa, summary and skipped sections.
func WriteText(w io.Writer, res *agreement.Result) error {
	if err := WriteKappaTable(w, res); err != nil {
		return err
	}
	if err := WriteSummaryTable(w, res); err != nil {
		return err
	}
	if len(res.Skipped) > 0 {
		return WriteSkippedTable(w, res)
	}
	return nil
}

// WriteKappaTable prints one row per round and group with a kappa column per
// category.
func WriteKappaTable(w io.Writer, res *agreement.Result) error {
	fmt.Fprintf(w, "\n## Pairwise kappa (%s weighting)\n\n", res.Weighting)

	type rg struct{ round, group int }
	byRow := make(map[rg]map[string]agreement.Score)
	var order []rg
	for _, row := range res.Kappas {
		k := rg{row.Round, row.Group}
		if byRow[k] == nil {
			byRow[k] = make(map[string]agreement.Score)
			order = append(order, k)
		}
		byRow[k][row.Category] = row.Kappa
	}

	headers := append([]string{"Round", "Group"}, res.Scheme.Categories...)
	table := newTable(headers, w)
	for _, k := range order {
		row := []string{strconv.Itoa(k.round), strconv.Itoa(k.group)}
		for _, c := range res.Scheme.Categories {
			row = append(row, byRow[k][c].String())
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to append kappa row: %w", err)
		}
	}
	return table.Render()
}

// WriteSummaryTable prints mean within-group and between-group kappa for each
// round and category.
func WriteSummaryTable(w io.Writer, res *agreement.Result) error {
	fmt.Fprintf(w, "\n## Within vs between groups\n\n")
	table := newTable([]string{"Round", "Category", "Within", "Pairs", "Between", "Pairs"}, w)
	for _, s := range res.Summaries {
		row := []string{
			strconv.Itoa(s.Round),
			s.Category,
			s.Within.String(),
			strconv.Itoa(s.WithinPairs),
			s.Between.String(),
			strconv.Itoa(s.BetweenPairs),
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to append summary row: %w", err)
		}
	}
	return table.Render()
}

// WriteSkippedTable lists triples left out of the pairwise tables.
func WriteSkippedTable(w io.Writer, res *agreement.Result) error {
	fmt.Fprintf(w, "\n## Skipped\n\n")
	table := newTable([]string{"Round", "Group", "Category", "Raters", "Reason"}, w)
	for _, s := range res.Skipped {
		row := []string{strconv.Itoa(s.Round), strconv.Itoa(s.Group), s.Category, strconv.Itoa(s.Raters), s.Reason}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to append skipped row: %w", err)
		}
	}
	return table.Render()
}

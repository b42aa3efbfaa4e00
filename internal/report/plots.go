package report

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/agreement.report/internal/agreement"
	"github.com/banshee-data/agreement.report/internal/monitoring"
	"github.com/banshee-data/agreement.report/internal/security"
)

const (
	plotWidth  = 10 * vg.Inch
	plotHeight = 5 * vg.Inch
)

// Plotter writes PNG charts of a Result into OutputDir.
type Plotter struct {
	OutputDir string
}

// NewPlotter returns a plotter writing into dir, creating it if needed.
func NewPlotter(dir string) (*Plotter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create plot directory: %w", err)
	}
	return &Plotter{OutputDir: dir}, nil
}

// plotsPerCategory is the number of charts WriteAll renders for each category.
const plotsPerCategory = 3

// WriteAll renders kappa, within/between and difference plots per category
// and returns the written paths in category order.
func (p *Plotter) WriteAll(res *agreement.Result) ([]string, error) {
	categories := res.Scheme.Categories
	paths := make([]string, plotsPerCategory*len(categories))
	writers := [plotsPerCategory]func(*agreement.Result, string) (string, error){
		p.writeKappa, p.writeSummary, p.writeDifferences,
	}

	var g errgroup.Group
	for i, category := range categories {
		for j, write := range writers {
			g.Go(func() error {
				path, err := write(res, category)
				paths[plotsPerCategory*i+j] = path
				return err
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	monitoring.Logf("wrote %d plots to %s", len(paths), p.OutputDir)
	return paths, nil
}

// writeKappa plots kappa over rounds with one line per group. Undefined
// scores are left out of the line.
func (p *Plotter) writeKappa(res *agreement.Result, category string) (string, error) {
	series := make(map[int]plotter.XYs)
	for _, row := range res.KappasFor(agreement.Filter{Category: category}) {
		if row.Kappa.Defined {
			series[row.Group] = append(series[row.Group], plotter.XY{X: float64(row.Round), Y: row.Kappa.Value})
		}
	}
	groups := make([]int, 0, len(series))
	for g := range series {
		groups = append(groups, g)
	}
	sort.Ints(groups)

	pl := newKappaPlot(fmt.Sprintf("%s: pairwise kappa (%s)", category, res.Weighting))
	for i, g := range groups {
		if err := addLine(pl, fmt.Sprintf("group %d", g), series[g], i); err != nil {
			return "", err
		}
	}
	return p.save(pl, "kappa_"+category+".png")
}

// writeSummary plots mean within-group and between-group kappa over rounds.
func (p *Plotter) writeSummary(res *agreement.Result, category string) (string, error) {
	var within, between plotter.XYs
	for _, s := range res.SummariesFor(agreement.Filter{Category: category}) {
		if s.Within.Defined {
			within = append(within, plotter.XY{X: float64(s.Round), Y: s.Within.Value})
		}
		if s.Between.Defined {
			between = append(between, plotter.XY{X: float64(s.Round), Y: s.Between.Value})
		}
	}

	pl := newKappaPlot(category + ": within vs between groups")
	if err := addLine(pl, "within", within, 0); err != nil {
		return "", err
	}
	if err := addLine(pl, "between", between, 1); err != nil {
		return "", err
	}
	return p.save(pl, "summary_"+category+".png")
}

// writeDifferences draws the |a-b| histogram of a category as grouped bars,
// one bar series per round with counts summed over groups.
func (p *Plotter) writeDifferences(res *agreement.Result, category string) (string, error) {
	buckets := res.Scheme.MaxDifference() + 1
	byRound := make(map[int]plotter.Values)
	for _, row := range res.DifferencesFor(agreement.Filter{Category: category}) {
		if byRound[row.Round] == nil {
			byRound[row.Round] = make(plotter.Values, buckets)
		}
		if row.Difference >= 0 && row.Difference < buckets {
			byRound[row.Round][row.Difference] += float64(row.Count)
		}
	}
	rounds := make([]int, 0, len(byRound))
	for r := range byRound {
		rounds = append(rounds, r)
	}
	sort.Ints(rounds)

	pl := plot.New()
	pl.Title.Text = category + ": rating differences"
	pl.X.Label.Text = "|a - b|"
	pl.Y.Label.Text = "items"
	pl.Add(plotter.NewGrid())
	pl.Legend.Top = true

	labels := make([]string, buckets)
	for d := range labels {
		labels[d] = strconv.Itoa(d)
	}
	pl.NominalX(labels...)

	width := vg.Points(40) / vg.Length(max(len(rounds), 1))
	for i, r := range rounds {
		bars, err := plotter.NewBarChart(byRound[r], width)
		if err != nil {
			return "", fmt.Errorf("plot round %d: %w", r, err)
		}
		bars.LineStyle.Width = vg.Length(0)
		bars.Color = plotutil.Color(i)
		bars.Offset = width * vg.Length(2*i-len(rounds)+1) / 2
		pl.Add(bars)
		pl.Legend.Add(fmt.Sprintf("round %d", r), bars)
	}
	return p.save(pl, "differences_"+category+".png")
}

func newKappaPlot(title string) *plot.Plot {
	pl := plot.New()
	pl.Title.Text = title
	pl.X.Label.Text = "round"
	pl.Y.Label.Text = "kappa"
	pl.Y.Min = -1
	pl.Y.Max = 1
	pl.Add(plotter.NewGrid())
	pl.Legend.Top = true
	pl.Legend.Left = false
	pl.Legend.XOffs = -10
	pl.Legend.YOffs = -10
	return pl
}

func addLine(pl *plot.Plot, label string, pts plotter.XYs, i int) error {
	if len(pts) == 0 {
		return nil
	}
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return fmt.Errorf("plot %s: %w", label, err)
	}
	line.Color = plotutil.Color(i)
	line.Width = vg.Points(1.5)
	points.Color = plotutil.Color(i)
	points.Shape = plotutil.Shape(i)
	pl.Add(line, points)
	pl.Legend.Add(label, line, points)
	return nil
}

func (p *Plotter) save(pl *plot.Plot, name string) (string, error) {
	path, err := security.JoinWithin(p.OutputDir, name)
	if err != nil {
		return "", err
	}
	if err := pl.Save(plotWidth, plotHeight, path); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	return path, nil
}

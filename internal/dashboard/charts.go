package dashboard

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/agreement.report/internal/agreement"
	"github.com/banshee-data/agreement.report/internal/httputil"
)

// Viridis, low to high.
var heatColors = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// chart is any go-echarts chart or page.
type chart interface {
	Render(w io.Writer) error
}

func (s *Server) initOpts(title string) charts.GlobalOpts {
	return charts.WithInitializationOpts(opts.Initialization{
		PageTitle:  title,
		Width:      "1100px",
		Height:     "640px",
		AssetsHost: s.assetsHost,
	})
}

func roundLabels(rounds []int) []string {
	out := make([]string, len(rounds))
	for i, r := range rounds {
		out[i] = "Round " + strconv.Itoa(r)
	}
	return out
}

// resultRounds lists rounds with at least one count row, ascending.
func resultRounds(res *agreement.Result) []int {
	seen := make(map[int]bool)
	var out []int
	for _, row := range res.Counts {
		if !seen[row.Round] {
			seen[row.Round] = true
			out = append(out, row.Round)
		}
	}
	sort.Ints(out)
	return out
}

// handleDifferencesChart renders a grouped bar chart of |a-b| buckets per
// round for one group and category.
func (s *Server) handleDifferencesChart(w http.ResponseWriter, r *http.Request) {
	f, err := s.filterWithDefaults(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	res := snap.Result
	f.Round = 0
	rows := res.DifferencesFor(f)
	rounds := resultRounds(res)

	counts := make(map[[2]int]int)
	for _, row := range rows {
		counts[[2]int{row.Round, row.Difference}] = row.Count
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		s.initOpts("Rating differences"),
		charts.WithTitleOpts(opts.Title{
			Title:    "Absolute rating differences",
			Subtitle: fmt.Sprintf("group=%d category=%s run=%s", f.Group, f.Category, snap.RunID),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "items"}),
	)
	bar.SetXAxis(roundLabels(rounds))
	for d := 0; d <= res.Scheme.MaxDifference(); d++ {
		data := make([]opts.BarData, len(rounds))
		for i, round := range rounds {
			data[i] = opts.BarData{Value: counts[[2]int{round, d}]}
		}
		bar.AddSeries("difference "+strconv.Itoa(d), data)
	}
	s.render(w, bar)
}

// handleKappaChart renders pairwise kappa per group and category over rounds.
// Undefined kappa leaves a gap in the line.
func (s *Server) handleKappaChart(w http.ResponseWriter, r *http.Request) {
	f, err := s.filter(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	res := snap.Result
	rounds := resultRounds(res)

	type series struct {
		group    int
		category string
	}
	values := make(map[series]map[int]agreement.Score)
	var order []series
	for _, row := range res.KappasFor(agreement.Filter{Group: f.Group, Category: f.Category}) {
		k := series{row.Group, row.Category}
		if values[k] == nil {
			values[k] = make(map[int]agreement.Score)
			order = append(order, k)
		}
		values[k][row.Round] = row.Kappa
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		s.initOpts("Pairwise kappa"),
		charts.WithTitleOpts(opts.Title{
			Title:    "Weighted Cohen's kappa per group",
			Subtitle: fmt.Sprintf("weighting=%s run=%s", res.Weighting, snap.RunID),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "kappa", Min: -1, Max: 1}),
	)
	line.SetXAxis(roundLabels(rounds))
	for _, k := range order {
		data := make([]opts.LineData, len(rounds))
		for i, round := range rounds {
			// A nil value renders as a gap.
			data[i] = opts.LineData{Value: values[k][round].Ptr()}
		}
		line.AddSeries(fmt.Sprintf("G%d %s", k.group, k.category), data)
	}
	s.render(w, line)
}

// handleCountsChart renders the rating-value histogram of every round for one
// category.
func (s *Server) handleCountsChart(w http.ResponseWriter, r *http.Request) {
	f, err := s.filterWithDefaults(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	res := snap.Result
	rounds := resultRounds(res)
	labels := res.Scheme.Labels()

	hist := make(map[[2]int]int)
	for _, row := range res.CountsFor(agreement.Filter{Category: f.Category}) {
		hist[[2]int{row.Round, row.Rating}]++
	}

	x := make([]string, len(labels))
	for i, v := range labels {
		x[i] = strconv.Itoa(v)
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		s.initOpts("Rating counts"),
		charts.WithTitleOpts(opts.Title{
			Title:    "Rating distribution",
			Subtitle: fmt.Sprintf("category=%s run=%s", f.Category, snap.RunID),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "rating"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "observations"}),
	)
	bar.SetXAxis(x)
	for _, round := range rounds {
		data := make([]opts.BarData, len(labels))
		for i, v := range labels {
			data[i] = opts.BarData{Value: hist[[2]int{round, v}]}
		}
		bar.AddSeries("Round "+strconv.Itoa(round), data)
	}
	s.render(w, bar)
}

// handlePooledChart renders a round's pooled kappa matrix as a heatmap. The
// subtitle carries the within/between means.
func (s *Server) handlePooledChart(w http.ResponseWriter, r *http.Request) {
	f, err := s.filterWithDefaults(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	matrices := snap.Result.PooledFor(f)
	if len(matrices) == 0 {
		httputil.NotFound(w, fmt.Sprintf("no pooled matrix for round %d category %q", f.Round, f.Category))
		return
	}
	m := matrices[0]
	subtitle := fmt.Sprintf("round=%d category=%s", m.Round, m.Category)
	if sums := snap.Result.SummariesFor(f); len(sums) > 0 {
		subtitle += fmt.Sprintf(" within=%s between=%s", sums[0].Within, sums[0].Between)
	}

	labels := make([]string, len(m.Raters))
	for i, id := range m.Raters {
		labels[i] = id.String()
	}
	var data []opts.HeatMapData
	for i := range m.Cells {
		for j, c := range m.Cells[i] {
			var v interface{} = "-"
			if c.Kind != agreement.Self && c.Score.Defined {
				v = c.Score.Value
			}
			data = append(data, opts.HeatMapData{Value: [3]interface{}{j, i, v}})
		}
	}
	s.render(w, s.heatmap("Pooled kappa", subtitle, labels, labels, data, -1, 1))
}

// handleContingencyChart renders one triple's contingency table as a heatmap
// with its kappa in the subtitle.
func (s *Server) handleContingencyChart(w http.ResponseWriter, r *http.Request) {
	f, err := s.filterWithDefaults(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	tables := snap.Result.ContingenciesFor(f)
	if len(tables) == 0 {
		httputil.NotFound(w, fmt.Sprintf("no contingency table for round %d group %d category %q", f.Round, f.Group, f.Category))
		return
	}
	t := tables[0]
	labels := make([]string, len(t.Cells))
	for i := range labels {
		labels[i] = strconv.Itoa(t.ScaleMin + i)
	}
	maxCount := 1
	var data []opts.HeatMapData
	for i, row := range t.Cells {
		for j, v := range row {
			if v > maxCount {
				maxCount = v
			}
			data = append(data, opts.HeatMapData{Value: [3]interface{}{j, i, v}})
		}
	}
	subtitle := fmt.Sprintf("round=%d group=%d category=%s kappa=%s", t.Round, t.Group, t.Category, t.Kappa)
	s.render(w, s.heatmap("Contingency table", subtitle, labels, labels, data, 0, float32(maxCount)))
}

// heatmap builds a category-axis heatmap. x is rater 1 / column, y is rater 0
// / row.
func (s *Server) heatmap(title, subtitle string, x, y []string, data []opts.HeatMapData, min, max float32) *charts.HeatMap {
	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		s.initOpts(title),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: x, SplitArea: &opts.SplitArea{Show: opts.Bool(true)}}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: y, SplitArea: &opts.SplitArea{Show: opts.Bool(true)}}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Calculable: opts.Bool(true),
			Min:        min,
			Max:        max,
			InRange:    &opts.VisualMapInRange{Color: heatColors},
		}),
	)
	hm.SetXAxis(x).AddSeries(title, data, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true)}))
	return hm
}

func (s *Server) render(w http.ResponseWriter, c chart) {
	var buf bytes.Buffer
	if err := c.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	httputil.WriteHTML(w, buf.Bytes())
}

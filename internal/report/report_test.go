package report

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/agreement.report/internal/agreement"
	"github.com/banshee-data/agreement.report/internal/annotations"
	"github.com/banshee-data/agreement.report/internal/db"
	"github.com/banshee-data/agreement.report/internal/monitoring"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func testResult(t *testing.T) *agreement.Result {
	t.Helper()
	s := annotations.DefaultScheme()
	s.Rounds = 2
	s.Groups = 2
	c := annotations.NewCorpus(s)
	add := func(round, group int, series ...[]int) {
		for _, category := range s.Categories {
			raters := make([]annotations.RaterSeries, len(series))
			for i, r := range series {
				raters[i] = annotations.RaterSeries{Rater: annotations.RaterID{Group: group, Index: i}, Ratings: r}
			}
			m, err := annotations.NewRatingMatrix(raters)
			require.NoError(t, err)
			require.NoError(t, c.Add(annotations.Key{Round: round, Group: group, Category: category}, m))
		}
	}
	add(1, 1, []int{1, 2, 3, 4, 5}, []int{1, 2, 3, 4, 5})
	add(1, 2, []int{3, 3, 3, 3, 3}, []int{1, 2, 3, 4, 5})
	add(2, 1, []int{1, 2, 3, 4, 5}, []int{1, 2, 3, 4, 4})
	add(2, 2, []int{1, 2, 3}, []int{1, 2, 3}, []int{2, 2, 3})

	res, err := agreement.NewAggregator(agreement.Linear).Run(c)
	require.NoError(t, err)
	return res
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, testResult(t)))
	out := buf.String()

	assert.Contains(t, out, "## Pairwise kappa (linear weighting)")
	assert.Contains(t, out, "Information content of outputs")
	assert.Contains(t, out, "1.000")
	assert.Contains(t, out, "0.865")
	assert.Contains(t, out, "n/a", "undefined kappa prints n/a")
	assert.NotContains(t, out, "NaN")
	assert.Contains(t, out, "## Within vs between groups")
	assert.Contains(t, out, "## Skipped")
	assert.Contains(t, out, "need 2 raters, found 3")
}

func TestWriteKappaTable_OneRowPerRoundGroup(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteKappaTable(&buf, testResult(t)))

	var dataRows int
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.HasPrefix(line, "|") && !strings.Contains(line, "Round") && !strings.Contains(line, "---") {
			dataRows++
		}
	}
	// Round 2 group 2 has three raters and is skipped.
	assert.Equal(t, 3, dataRows)
}

func TestWriteText_NoSkippedSection(t *testing.T) {
	res := testResult(t)
	res.Skipped = nil
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, res))
	assert.NotContains(t, buf.String(), "## Skipped")
}

func TestPlotter_WriteAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plots")
	p, err := NewPlotter(dir)
	require.NoError(t, err)

	paths, err := p.WriteAll(testResult(t))
	require.NoError(t, err)
	require.Len(t, paths, 9)

	assert.Equal(t, filepath.Join(dir, "kappa_appropriateness.png"), paths[0])
	assert.Equal(t, filepath.Join(dir, "differences_appropriateness.png"), paths[2])
	assert.Equal(t, filepath.Join(dir, "summary_information_content_of_outputs.png"), paths[4])
	for _, path := range paths {
		f, err := os.Open(path)
		require.NoError(t, err, path)
		_, err = png.DecodeConfig(f)
		f.Close()
		assert.NoError(t, err, "%s is a PNG", path)
	}
}

func TestWriteRunsTable(t *testing.T) {
	id := uuid.MustParse("6f1c2b1e-0d7a-4a53-9a3e-2f6e7f1d9c01")
	runs := []db.Run{{
		RunID:      id,
		ComputedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		Duration:   1500 * time.Millisecond,
		Weighting:  "linear",
		ScaleMin:   1,
		ScaleMax:   5,
	}}
	var buf bytes.Buffer
	require.NoError(t, WriteRunsTable(&buf, runs))
	out := buf.String()

	assert.Contains(t, out, "## Archived runs")
	assert.Contains(t, out, id.String())
	assert.Contains(t, out, "2024-05-01T09:00:00Z")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "1-5")
}

func TestWriteArchivedKappas(t *testing.T) {
	run := db.Run{RunID: uuid.New(), Weighting: "quadratic", ScaleMin: 1, ScaleMax: 5}
	rows := []agreement.KappaRow{
		{Key: annotations.Key{Round: 1, Group: 1, Category: "Clarity"}, Kappa: agreement.DefinedScore(0.25)},
		{Key: annotations.Key{Round: 1, Group: 1, Category: "Fluency"}, Kappa: agreement.UndefinedScore()},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteArchivedKappas(&buf, run, rows))
	out := buf.String()

	assert.Contains(t, out, "## Pairwise kappa (quadratic weighting)")
	assert.Contains(t, out, "Clarity")
	assert.Contains(t, out, "Fluency")
	assert.Contains(t, out, "0.250")
	assert.Contains(t, out, "n/a")

	run.Weighting = "cubic"
	assert.Error(t, WriteArchivedKappas(&bytes.Buffer{}, run, rows))
}

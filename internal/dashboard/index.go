package dashboard

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/banshee-data/agreement.report/internal/httputil"
	"github.com/banshee-data/agreement.report/internal/version"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Inter-annotator agreement</title>
<style>
body { font-family: sans-serif; margin: 2em; }
form { margin: 1em 0; padding: 0.5em 1em; border: 1px solid #ccc; }
label { margin-right: 1em; }
</style>
</head>
<body>
<h1>Inter-annotator agreement</h1>
<p>Version {{.Version}}</p>

<form action="/charts/differences">
<h2>Rating differences</h2>
<label>Group <select name="group">{{range .Groups}}<option>{{.}}</option>{{end}}</select></label>
<label>Category <select name="category">{{range .Categories}}<option>{{.}}</option>{{end}}</select></label>
<button type="submit">Show</button>
</form>

<form action="/charts/kappa">
<h2>Pairwise kappa</h2>
<label>Category <select name="category"><option value="">all</option>{{range .Categories}}<option>{{.}}</option>{{end}}</select></label>
<button type="submit">Show</button>
</form>

<form action="/charts/counts">
<h2>Rating distribution</h2>
<label>Category <select name="category">{{range .Categories}}<option>{{.}}</option>{{end}}</select></label>
<button type="submit">Show</button>
</form>

<form action="/charts/pooled">
<h2>Pooled kappa matrix</h2>
<label>Round <select name="round">{{range .Rounds}}<option>{{.}}</option>{{end}}</select></label>
<label>Category <select name="category">{{range .Categories}}<option>{{.}}</option>{{end}}</select></label>
<button type="submit">Show</button>
</form>

<form action="/charts/contingency">
<h2>Contingency table</h2>
<label>Round <select name="round">{{range .Rounds}}<option>{{.}}</option>{{end}}</select></label>
<label>Group <select name="group">{{range .Groups}}<option>{{.}}</option>{{end}}</select></label>
<label>Category <select name="category">{{range .Categories}}<option>{{.}}</option>{{end}}</select></label>
<button type="submit">Show</button>
</form>

<p>JSON: <a href="/api/kappa">kappa</a> · <a href="/api/summary">summary</a> · <a href="/api/skipped">skipped</a></p>
</body>
</html>
`))

type indexData struct {
	Version    string
	Rounds     []int
	Groups     []int
	Categories []string
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// handleIndex renders the selector page. It does not run the pipeline.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httputil.NotFound(w, "not found")
		return
	}
	var buf bytes.Buffer
	err := indexTemplate.Execute(&buf, indexData{
		Version:    version.Version,
		Rounds:     seq(s.scheme.Rounds),
		Groups:     seq(s.scheme.Groups),
		Categories: s.scheme.Categories,
	})
	if err != nil {
		httputil.InternalServerError(w, "failed to render index")
		return
	}
	httputil.WriteHTML(w, buf.Bytes())
}

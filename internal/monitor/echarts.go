package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/inscenium-media/scene.render/internal/render"
)

// handleDecisionChart renders a quick scatter (HTML) of recent decisions
// using go-echarts: epoch time against final PRS, coloured by the delivered
// opacity. Debugging-only endpoint, no auth.
// Query params:
//   - placement_id (optional) to narrow to one placement
//   - limit (optional; default 500)
func (ws *WebServer) handleDecisionChart(w http.ResponseWriter, r *http.Request) {
	if ws.store == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no audit store configured")
		return
	}

	limit := 500
	if lp := r.URL.Query().Get("limit"); lp != "" {
		if v, err := strconv.Atoi(lp); err == nil && v > 0 && v <= 5000 {
			limit = v
		}
	}

	placementID := r.URL.Query().Get("placement_id")
	var (
		decisions []render.DecisionRecord
		err       error
	)
	if placementID != "" {
		decisions, err = ws.store.PlacementDecisions(r.Context(), placementID, limit)
	} else {
		decisions, err = ws.store.RecentDecisions(r.Context(), limit)
	}
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("query failed: %v", err))
		return
	}
	if len(decisions) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no decisions recorded")
		return
	}

	data := make([]opts.ScatterData, 0, len(decisions))
	for _, d := range decisions {
		data = append(data, opts.ScatterData{
			Value: []interface{}{d.EpochTime.UnixMilli(), d.FinalPRS, d.Opacity},
		})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Render Decisions", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Placement decisions", Subtitle: fmt.Sprintf("placement=%s points=%d", placementID, len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "epoch (ms)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100, Name: "final PRS", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        1,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#31688e", "#35b779", "#fde725"}},
		}),
	)
	scatter.AddSeries("decisions", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

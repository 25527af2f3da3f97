package graphing

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const (
	defaultWidth  = 12 * vg.Inch
	defaultHeight = 4 * vg.Inch
)

// createBarChart creates a per-launch bar chart for one counter.
func createBarChart(s *Series) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: formatName(s.Name)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "launch"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "400px"}),
	)

	labels := make([]string, len(s.Ordinals))
	data := make([]opts.BarData, len(s.Values))
	for i, o := range s.Ordinals {
		labels[i] = strconv.FormatUint(o, 10)
		data[i] = opts.BarData{Value: s.Values[i]}
	}
	bar.SetXAxis(labels).AddSeries(s.Name, data)
	return bar
}

// createLineChart creates the running-total chart.
func createLineChart(s *Series) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: formatName(s.Name)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "launch"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value"}),
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "400px"}),
	)

	labels := make([]string, len(s.Ordinals))
	data := make([]opts.LineData, len(s.Values))
	for i, o := range s.Ordinals {
		labels[i] = strconv.FormatUint(o, 10)
		data[i] = opts.LineData{Value: s.Values[i]}
	}
	line.SetXAxis(labels).AddSeries(s.Name, data,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false), ShowSymbol: opts.Bool(false)}),
		charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(0.2)}),
	)
	return line
}

func renderHTML(pageTitle string, series []*Series, path string) error {
	page := components.NewPage()
	page.PageTitle = pageTitle
	for _, s := range series {
		if s.Name == "total_instructions" {
			page.AddCharts(createLineChart(s))
			continue
		}
		page.AddCharts(createBarChart(s))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}
	return nil
}

func renderPNG(s *Series, path string) error {
	p := plot.New()
	p.Title.Text = formatName(s.Name)
	p.X.Label.Text = "Launch"
	p.Y.Label.Text = "Count"

	pts := make(plotter.XYs, len(s.Values))
	for i, v := range s.Values {
		pts[i] = plotter.XY{X: float64(s.Ordinals[i]), Y: v}
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to build line: %w", err)
	}
	p.Add(line, plotter.NewGrid())

	if err := p.Save(defaultWidth, defaultHeight, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

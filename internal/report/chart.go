package report

import (
	"errors"
	"math"
	"strings"

	"github.com/vicanso/go-charts/v2"

	"portfolio-metrics/internal/indicator"
)

// RenderChart 绘制收盘价及均线叠加的 PNG 图。
// 均线预热期没有值，以当期收盘价填充使线段从价格线上起步。
func RenderChart(ticker string, payload TickerPayload, overlays []indicator.Overlay) ([]byte, error) {
	n := len(payload.PriceSeries)
	if n < 2 {
		return nil, errors.New("report: 数据点不足，无法绘图")
	}

	labels := make([]string, n)
	closes := make([]float64, n)
	yMin, yMax := math.Inf(1), math.Inf(-1)
	for i, p := range payload.PriceSeries {
		labels[i] = p.Date
		closes[i] = p.Close
		yMin = math.Min(yMin, p.Close)
		yMax = math.Max(yMax, p.Close)
	}

	values := [][]float64{closes}
	names := []string{"Close"}
	for _, o := range overlays {
		if len(o.Values) != n {
			continue
		}
		line := make([]float64, n)
		for i, v := range o.Values {
			if math.IsNaN(v) {
				v = closes[i]
			}
			line[i] = v
			yMin = math.Min(yMin, v)
			yMax = math.Max(yMax, v)
		}
		values = append(values, line)
		names = append(names, o.Name)
	}

	pad := (yMax - yMin) * 0.05
	if pad < yMax*0.002 {
		pad = yMax * 0.002
	}
	yMin -= pad
	if yMin < 0 {
		yMin = 0
	}
	yMax += pad

	title := strings.ToUpper(ticker)
	if len(payload.AsOf) >= len(dateLayout) {
		title += " • " + payload.AsOf[:len(dateLayout)]
	}

	painter, err := charts.LineRender(values,
		charts.TitleTextOptionFunc(title),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: labels, BoundaryGap: charts.FalseFlag(), SplitNumber: 12}),
		charts.YAxisOptionFunc(charts.YAxisOption{Min: &yMin, Max: &yMax, DivideCount: 5}),
		charts.LegendOptionFunc(charts.LegendOption{Data: names, Top: charts.PositionTop}),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(960),
		charts.HeightOptionFunc(480),
	)
	if err != nil {
		return nil, err
	}
	return painter.Bytes()
}

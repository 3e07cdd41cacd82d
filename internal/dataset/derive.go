package dataset

import (
	"fmt"
	"sort"

	"github.com/montanaflynn/stats"
)

// temperatureSeriesMax bounds the short temperature series on the dashboard.
const temperatureSeriesMax = 10

// Point is one labelled value in a chart series.
type Point struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// TypeShare is one equipment type with its count and percentage share.
type TypeShare struct {
	Label   string  `json:"label"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Breakdowns carries every derived series the dashboard view renders.
type Breakdowns struct {
	PressureTrend     []Point     `json:"pressure_trend"`
	TemperatureSeries []Point     `json:"temperature_series"`
	TypeShares        []TypeShare `json:"type_shares"`
}

// DeriveBreakdowns computes the dashboard chart series from server-side
// statistics. Preview entries are charted in list order, not by time.
func DeriveBreakdowns(st Statistics) Breakdowns {
	out := Breakdowns{
		PressureTrend:     make([]Point, 0, len(st.RecentEntries)),
		TemperatureSeries: make([]Point, 0, temperatureSeriesMax),
		TypeShares:        TypeShares(st.Types),
	}

	for i, e := range st.RecentEntries {
		label := fmt.Sprintf("Reading %d", i+1)
		out.PressureTrend = append(out.PressureTrend, Point{Label: label, Value: e.Pressure})
		if i < temperatureSeriesMax {
			out.TemperatureSeries = append(out.TemperatureSeries, Point{Label: label, Value: e.Temperature})
		}
	}
	return out
}

// TypeShares turns the type-count mapping into a stable, sorted slice with
// percentage shares rounded to one decimal. An empty mapping yields 0%
// shares and never divides by zero.
func TypeShares(types map[string]int) []TypeShare {
	labels := make([]string, 0, len(types))
	total := 0
	for label, count := range types {
		labels = append(labels, label)
		total += count
	}
	sort.Slice(labels, func(i, j int) bool {
		if types[labels[i]] != types[labels[j]] {
			return types[labels[i]] > types[labels[j]]
		}
		return labels[i] < labels[j]
	})

	out := make([]TypeShare, 0, len(labels))
	for _, label := range labels {
		share := TypeShare{Label: label, Count: types[label]}
		if total > 0 {
			pct, err := stats.Round(float64(share.Count)/float64(total)*100, 1)
			if err == nil {
				share.Percent = pct
			}
		}
		out = append(out, share)
	}
	return out
}

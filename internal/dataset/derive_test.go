package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeSharesSumToRoughlyHundred(t *testing.T) {
	types := map[string]int{"Pump": 3, "Valve": 3, "Compressor": 1}

	shares := TypeShares(types)
	require.Len(t, shares, 3)

	sum := 0.0
	for _, s := range shares {
		sum += s.Percent
	}
	assert.InDelta(t, 100.0, sum, 0.1)
}

func TestTypeSharesRoundedToOneDecimal(t *testing.T) {
	shares := TypeShares(map[string]int{"Pump": 1, "Valve": 2})
	require.Len(t, shares, 2)

	assert.Equal(t, 66.7, shares[0].Percent)
	assert.Equal(t, 33.3, shares[1].Percent)
}

func TestTypeSharesEmptyMap(t *testing.T) {
	assert.Empty(t, TypeShares(nil))
	assert.Empty(t, TypeShares(map[string]int{}))
}

func TestTypeSharesZeroTotalDoesNotDivide(t *testing.T) {
	shares := TypeShares(map[string]int{"Pump": 0})
	require.Len(t, shares, 1)
	assert.Equal(t, 0.0, shares[0].Percent)
}

func TestTypeSharesOrderedByCountThenLabel(t *testing.T) {
	shares := TypeShares(map[string]int{"Valve": 2, "Pump": 2, "Mixer": 5})
	require.Len(t, shares, 3)
	assert.Equal(t, "Mixer", shares[0].Label)
	assert.Equal(t, "Pump", shares[1].Label)
	assert.Equal(t, "Valve", shares[2].Label)
}

func TestDeriveBreakdownsChartsEntriesInListOrder(t *testing.T) {
	st := Statistics{
		RecentEntries: []Entry{
			{EquipmentName: "P-1", Pressure: 4.2, Temperature: 88},
			{EquipmentName: "P-2", Pressure: 5.0, Temperature: 91},
		},
		Types: map[string]int{"Pump": 2},
	}

	b := DeriveBreakdowns(st)
	require.Len(t, b.PressureTrend, 2)
	assert.Equal(t, "Reading 1", b.PressureTrend[0].Label)
	assert.Equal(t, 4.2, b.PressureTrend[0].Value)
	assert.Equal(t, "Reading 2", b.PressureTrend[1].Label)
	require.Len(t, b.TemperatureSeries, 2)
	assert.Equal(t, 91.0, b.TemperatureSeries[1].Value)
}

func TestDeriveBreakdownsCapsTemperatureSeries(t *testing.T) {
	entries := make([]Entry, 25)
	st := Statistics{RecentEntries: entries}

	b := DeriveBreakdowns(st)
	assert.Len(t, b.PressureTrend, 25)
	assert.Len(t, b.TemperatureSeries, temperatureSeriesMax)
}

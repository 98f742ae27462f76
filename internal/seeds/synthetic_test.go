package seeds

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Stays = 2_000
	return cfg
}

func TestGenerate_RespectsBounds(t *testing.T) {
	cfg := smallConfig()
	records := Generate(cfg)
	require.Len(t, records, cfg.Stays)

	for _, r := range records {
		require.NoError(t, r.Validate())
		assert.False(t, r.BeginOfStay.Before(cfg.From))
		assert.False(t, r.BeginOfStay.After(cfg.To))

		nights := r.Nights()
		assert.GreaterOrEqual(t, nights, 1)
		assert.LessOrEqual(t, nights, cfg.MaxNights)

		bands, ok := cfg.BasePrices[r.RoomType]
		require.True(t, ok, r.RoomType)
		_, ok = bands[r.Persons]
		assert.True(t, ok, "%s for %d persons", r.RoomType, r.Persons)
		assert.True(t, r.TotalPrice.GreaterThan(decimal.Zero))
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	cfg := smallConfig()
	cfg.Stays = 200
	a := Generate(cfg)
	b := Generate(cfg)
	require.Equal(t, len(a), len(b))
	for i := range a {
		a[i].CreatedAt, b[i].CreatedAt = time.Time{}, time.Time{}
	}
	assert.Equal(t, a, b)

	cfg.Seed++
	c := Generate(cfg)
	assert.NotEqual(t, a[0].ID, c[0].ID)
}

func TestGenerate_SummerCostsMoreThanWinter(t *testing.T) {
	cfg := smallConfig()
	cfg.Events = nil
	cfg.Inflation = 0

	var summer, winter []float64
	for _, r := range Generate(cfg) {
		perNight, _ := r.PerNightPrice().Float64()
		switch r.BeginOfStay.Month() {
		case time.July:
			summer = append(summer, perNight)
		case time.January:
			winter = append(winter, perNight)
		}
	}
	require.NotEmpty(t, summer)
	require.NotEmpty(t, winter)
	assert.Greater(t, mean(summer), mean(winter))
}

func TestGenerate_Empty(t *testing.T) {
	cfg := smallConfig()
	cfg.Stays = 0
	assert.Empty(t, Generate(cfg))

	cfg = smallConfig()
	cfg.To = cfg.From.AddDate(0, 0, -1)
	assert.Empty(t, Generate(cfg))
}

func mean(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

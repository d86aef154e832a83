package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricing-history/models"
)

func TestMinerExplicitUnits(t *testing.T) {
	obs := NewMiner().Mine("Digital access $99/month or save with $199/year")

	require.Len(t, obs, 2)
	assert.Equal(t, "99", obs[0].Amount.String())
	assert.Equal(t, "USD", obs[0].Currency)
	assert.Equal(t, models.PeriodMonthly, obs[0].Period)
	assert.Equal(t, models.ConfidenceExplicit, obs[0].Confidence)
	assert.Equal(t, "$99/month", obs[0].Shown)

	assert.Equal(t, "199", obs[1].Amount.String())
	assert.Equal(t, models.PeriodAnnual, obs[1].Period)
	assert.Equal(t, models.ConfidenceExplicit, obs[1].Confidence)
	assert.Equal(t, "$199/year", obs[1].Shown)
}

func TestMinerUnitTokens(t *testing.T) {
	tests := []struct {
		text   string
		period models.Period
		shown  string
	}{
		{"now £4.99/mo.", models.PeriodMonthly, "£4.99/month"},
		{"€50 / yr", models.PeriodAnnual, "€50/year"},
		{"only $2/wk", models.PeriodWeekly, "$2/week"},
		{"$1/WEEK", models.PeriodWeekly, "$1/week"},
		{"US$0.99/day", models.PeriodDaily, "$0.99/day"},
	}

	m := NewMiner()
	for _, tt := range tests {
		obs := m.Mine(tt.text)
		require.Len(t, obs, 1, tt.text)
		assert.Equal(t, tt.period, obs[0].Period, tt.text)
		assert.Equal(t, tt.shown, obs[0].Shown, tt.text)
		assert.Equal(t, models.ConfidenceExplicit, obs[0].Confidence, tt.text)
	}
}

func TestMinerInfersAnnualFromNearbyCue(t *testing.T) {
	obs := NewMiner().Mine("Get unlimited access for just $49. Billed annually.")

	require.Len(t, obs, 1)
	assert.Equal(t, "49", obs[0].Amount.String())
	assert.Equal(t, "USD", obs[0].Currency)
	assert.Equal(t, models.PeriodAnnual, obs[0].Period)
	assert.Equal(t, models.ConfidenceInferred, obs[0].Confidence)
	assert.Equal(t, "$49", obs[0].Shown)
}

func TestMinerTieBetweenPeriodsIsUnknown(t *testing.T) {
	filler := strings.Repeat("-", 50)
	text := "annual" + filler + "$10" + filler + "monthly"

	obs := NewMiner().Mine(text)

	require.Len(t, obs, 1)
	assert.Equal(t, models.PeriodUnknown, obs[0].Period)
	assert.Equal(t, models.ConfidenceInferred, obs[0].Confidence)
}

func TestMinerNearestCueWins(t *testing.T) {
	text := "Pay monthly " + strings.Repeat(".", 30) + " $12 " + strings.Repeat(".", 60) + " per year"

	obs := NewMiner().Mine(text)

	require.Len(t, obs, 1)
	assert.Equal(t, models.PeriodMonthly, obs[0].Period)
}

func TestMinerSameGroupTieKeepsPeriod(t *testing.T) {
	filler := strings.Repeat("-", 20)
	text := "weekly" + filler + "$3" + filler + "per week"

	obs := NewMiner().Mine(text)

	require.Len(t, obs, 1)
	assert.Equal(t, models.PeriodWeekly, obs[0].Period)
}

func TestMinerNoCueIsUnknown(t *testing.T) {
	obs := NewMiner().Mine("Premium plan $15 includes everything")

	require.Len(t, obs, 1)
	assert.Equal(t, models.PeriodUnknown, obs[0].Period)
	assert.Equal(t, models.ConfidenceInferred, obs[0].Confidence)
}

func TestMinerAnnualCueCutoff(t *testing.T) {
	// 130 characters is inside the 140 window but past the annual cutoff.
	far := strings.Repeat("x", 130)

	obs := NewMiner().Mine("$20" + far + "year")
	require.Len(t, obs, 1)
	assert.Equal(t, models.PeriodUnknown, obs[0].Period, "distant annual cue must be ignored")

	obs = NewMiner().Mine("$20" + far + "daily")
	require.Len(t, obs, 1)
	assert.Equal(t, models.PeriodDaily, obs[0].Period, "other periods use the full window")

	obs = NewMiner().Mine("$20" + far + "year" + " " + strings.Repeat("x", 10))
	require.Len(t, obs, 1)
	assert.Equal(t, models.PeriodUnknown, obs[0].Period)
}

func TestMinerCueOutsideWindowIgnored(t *testing.T) {
	obs := NewMiner().Mine("$20" + strings.Repeat("x", 150) + "monthly")

	require.Len(t, obs, 1)
	assert.Equal(t, models.PeriodUnknown, obs[0].Period)
}

func TestMinerWindowCountsCharactersNotBytes(t *testing.T) {
	// 100 three-byte runes: 300 bytes but only 100 characters.
	filler := strings.Repeat("€", 100)
	obs := NewMiner().Mine("$8" + filler + "monthly")

	require.Len(t, obs, 1)
	assert.Equal(t, models.PeriodMonthly, obs[0].Period)
}

func TestMinerStageBSkipsStageAPrices(t *testing.T) {
	text := "Basic $5/mo, billed monthly. Pro $50 per year."
	obs := NewMiner().Mine(text)

	require.Len(t, obs, 2)
	assert.Equal(t, "$5/month", obs[0].Shown)
	assert.Equal(t, models.ConfidenceExplicit, obs[0].Confidence)
	assert.Equal(t, "$50", obs[1].Shown)
	assert.Equal(t, models.ConfidenceInferred, obs[1].Confidence)
	assert.Equal(t, models.PeriodAnnual, obs[1].Period)

	for _, o := range obs {
		if o.Confidence == models.ConfidenceInferred {
			assert.NotEqual(t, "5", o.Amount.String(), "Stage A price reconsidered by Stage B")
		}
	}
}

func TestMinerRejectsLongNumbers(t *testing.T) {
	obs := NewMiner().Mine("Revenue $123456 and $1,299 and $9.999")
	assert.Empty(t, obs)
}

func TestMinerCurrencies(t *testing.T) {
	obs := NewMiner().Mine("₹499 and ₨200 monthly")

	require.Len(t, obs, 2)
	assert.Equal(t, "INR", obs[0].Currency)
	assert.Equal(t, "₨", obs[1].Currency, "ambiguous symbols are kept verbatim")
	assert.Equal(t, models.PeriodMonthly, obs[1].Period)
}

func TestMinerDeduplicatesIdenticalPrices(t *testing.T) {
	obs := NewMiner().Mine("$9/mo today. Still $9/mo tomorrow.")
	require.Len(t, obs, 1)
}

func TestMinerIsIdempotent(t *testing.T) {
	text := "Monthly $9.99. Annual plan $99 per year, or $2/week. Copyright 2023."
	m := NewMiner()

	first := m.Mine(text)
	second := m.Mine(text)

	assert.Equal(t, first, second)
	assert.Equal(t, first, NewMiner().Mine(text))
}

func TestMinerMalformedInput(t *testing.T) {
	m := NewMiner()
	inputs := []string{"", "$", "$/mo", "\xff\xfe$5\xff", strings.Repeat("$", 1000), "US$"}

	for _, in := range inputs {
		assert.NotPanics(t, func() { m.Mine(in) }, "%q", in)
		assert.NotNil(t, m.Mine(in), "%q", in)
	}
}

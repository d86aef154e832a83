package services

import "pricing-history/models"

// contextWindow is how many characters on each side of a standalone price
// are scanned for billing-period cues.
const contextWindow = 140

// cueGroup maps a set of cue phrases to the period they signal. MaxDistance
// is the furthest (edge to edge, in characters) a cue may sit from the price
// and still count.
type cueGroup struct {
	Period      models.Period
	Phrases     []string
	MaxDistance int
}

// cueGroups is the cue taxonomy used by Stage B. Phrases are lower case.
// Annual cues are held to 120 characters: "year" shows up in copyright
// footers far more often than next to a price.
var cueGroups = []cueGroup{
	{
		Period:      models.PeriodAnnual,
		Phrases:     []string{"annual rates", "annual rate", "annual", "year"},
		MaxDistance: 120,
	},
	{
		Period:      models.PeriodMonthly,
		Phrases:     []string{"/mo", "/month", "per month", "a month", "monthly", "billed monthly"},
		MaxDistance: contextWindow,
	},
	{
		Period:      models.PeriodWeekly,
		Phrases:     []string{"/wk", "/week", "per week", "weekly"},
		MaxDistance: contextWindow,
	},
	{
		Period:      models.PeriodDaily,
		Phrases:     []string{"/day", "per day", "daily"},
		MaxDistance: contextWindow,
	},
}

// unitPeriods maps the explicit unit tokens of Stage A to a period.
var unitPeriods = map[string]models.Period{
	"mo":    models.PeriodMonthly,
	"month": models.PeriodMonthly,
	"yr":    models.PeriodAnnual,
	"year":  models.PeriodAnnual,
	"wk":    models.PeriodWeekly,
	"week":  models.PeriodWeekly,
	"day":   models.PeriodDaily,
}

// unitShown is the spelling used in price_shown for abbreviated units.
var unitShown = map[string]string{
	"mo": "month",
	"yr": "year",
	"wk": "week",
}

// currencySymbols lists every symbol the Miner recognises as a price prefix.
const currencySymbols = `$€£¥₹₩₽₺₪₫฿₱₦₡₲₴₭₮₼₾₨`

// currencyCodes maps a symbol to its ISO 4217 code where the symbol is not
// shared by several currencies in practice. Unmapped symbols are reported
// verbatim.
var currencyCodes = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"¥": "JPY",
	"₹": "INR",
	"₩": "KRW",
	"₽": "RUB",
	"₺": "TRY",
	"₪": "ILS",
	"₫": "VND",
	"฿": "THB",
	"₱": "PHP",
	"₦": "NGN",
	"₡": "CRC",
	"₲": "PYG",
	"₴": "UAH",
	"₭": "LAK",
	"₮": "MNT",
	"₼": "AZN",
	"₾": "GEL",
}

func currencyCode(symbol string) string {
	if code, ok := currencyCodes[symbol]; ok {
		return code
	}
	return symbol
}

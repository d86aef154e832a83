package services

import (
	"regexp"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"github.com/shopspring/decimal"

	"pricing-history/models"
)

var (
	// unitPriceRegexp is Stage A: symbol, amount, slash, explicit unit.
	unitPriceRegexp = regexp.MustCompile(
		`(?i)(?:US)?([` + currencySymbols + `])\s*(\d{1,5}(?:\.\d{2})?)\s*/\s*(mo|month|yr|year|wk|week|day)\b`)
	// priceRegexp is a standalone price: symbol and amount only.
	priceRegexp = regexp.MustCompile(
		`(?i)(?:US)?([` + currencySymbols + `])\s*(\d{1,5}(?:\.\d{2})?)`)
)

type cuePhrase struct {
	text  string
	group int
}

// Miner extracts price observations from visible page text. It holds only
// immutable lookup tables, so one Miner may be shared by every worker.
type Miner struct {
	matcher *ahocorasick.Matcher
	phrases []cuePhrase
}

// NewMiner builds a Miner over the cue taxonomy in cueGroups.
func NewMiner() *Miner {
	var phrases []cuePhrase
	var dict []string
	for gi, g := range cueGroups {
		for _, p := range g.Phrases {
			phrases = append(phrases, cuePhrase{text: p, group: gi})
			dict = append(dict, p)
		}
	}
	return &Miner{
		matcher: ahocorasick.NewStringMatcher(dict),
		phrases: phrases,
	}
}

// Mine runs Stage A (explicit unit) and then Stage B (context inference) over
// text and returns their observations concatenated, in text order within each
// stage. Prices consumed by Stage A are never reconsidered by Stage B.
// Identical (period, shown) pairs are reported once.
func (m *Miner) Mine(text string) []models.PriceObservation {
	out := make([]models.PriceObservation, 0)
	if text == "" {
		return out
	}

	idx := newRuneIndex(text)
	seen := make(map[string]struct{})
	add := func(o models.PriceObservation) {
		key := string(o.Period) + "|" + o.Shown
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, o)
	}

	var consumed [][2]int
	for _, loc := range unitPriceRegexp.FindAllStringSubmatchIndex(text, -1) {
		consumed = append(consumed, [2]int{loc[0], loc[1]})

		symbol := text[loc[2]:loc[3]]
		amountText := text[loc[4]:loc[5]]
		unit := strings.ToLower(text[loc[6]:loc[7]])
		amount, err := decimal.NewFromString(amountText)
		if err != nil {
			continue
		}

		shownUnit := unit
		if s, ok := unitShown[unit]; ok {
			shownUnit = s
		}
		add(models.PriceObservation{
			Amount:     amount,
			Currency:   currencyCode(symbol),
			Symbol:     symbol,
			Period:     unitPeriods[unit],
			Confidence: models.ConfidenceExplicit,
			Shown:      symbol + amountText + "/" + shownUnit,
			Start:      idx.runeAt(loc[0]),
			End:        idx.runeAt(loc[1]),
		})
	}

	lower := asciiLower(text)
	for _, loc := range priceRegexp.FindAllStringSubmatchIndex(text, -1) {
		if overlapsAny(loc[0], loc[1], consumed) || continuesNumber(text, loc[1]) {
			continue
		}

		symbol := text[loc[2]:loc[3]]
		amountText := text[loc[4]:loc[5]]
		amount, err := decimal.NewFromString(amountText)
		if err != nil {
			continue
		}

		start, end := idx.runeAt(loc[0]), idx.runeAt(loc[1])
		add(models.PriceObservation{
			Amount:     amount,
			Currency:   currencyCode(symbol),
			Symbol:     symbol,
			Period:     m.inferPeriod(lower, idx, start, end),
			Confidence: models.ConfidenceInferred,
			Shown:      symbol + amountText,
			Start:      start,
			End:        end,
		})
	}

	return out
}

// inferPeriod picks the period of the nearest cue around the price span
// [start, end). Equidistant cues from different periods, or no cue at all,
// give PeriodUnknown.
func (m *Miner) inferPeriod(lower string, idx runeIndex, start, end int) models.Period {
	ws := max(0, start-contextWindow)
	we := min(idx.len(), end+contextWindow)
	wsByte, weByte := idx.byteAt(ws), idx.byteAt(we)
	window := lower[wsByte:weByte]

	best := -1
	nearest := make(map[models.Period]struct{})

	for _, hit := range m.matcher.MatchThreadSafe([]byte(window)) {
		cue := m.phrases[hit]
		group := cueGroups[cue.group]

		for off := 0; off < len(window); {
			i := strings.Index(window[off:], cue.text)
			if i < 0 {
				break
			}
			at := wsByte + off + i
			d := spanDistance(start, end, idx.runeAt(at), idx.runeAt(at+len(cue.text)))
			off += i + 1

			if d > group.MaxDistance {
				continue
			}
			switch {
			case best < 0 || d < best:
				best = d
				nearest = map[models.Period]struct{}{group.Period: {}}
			case d == best:
				nearest[group.Period] = struct{}{}
			}
		}
	}

	if best < 0 || len(nearest) != 1 {
		return models.PeriodUnknown
	}
	for p := range nearest {
		return p
	}
	return models.PeriodUnknown
}

// spanDistance is the gap between two half-open spans, nearest edge to
// nearest edge. Overlapping spans are at distance zero.
func spanDistance(aStart, aEnd, bStart, bEnd int) int {
	switch {
	case bEnd <= aStart:
		return aStart - bEnd
	case bStart >= aEnd:
		return bStart - aEnd
	default:
		return 0
	}
}

func overlapsAny(start, end int, spans [][2]int) bool {
	for _, s := range spans {
		if start < s[1] && s[0] < end {
			return true
		}
	}
	return false
}

// continuesNumber reports whether the amount ending at byte i is really the
// prefix of a longer number ("$123456", "$1,299", "$9.999").
func continuesNumber(text string, i int) bool {
	if i >= len(text) {
		return false
	}
	if isDigit(text[i]) {
		return true
	}
	if (text[i] == ',' || text[i] == '.') && i+1 < len(text) && isDigit(text[i+1]) {
		return true
	}
	return false
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// asciiLower lower-cases ASCII letters only, so byte offsets are preserved.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// runeIndex converts between byte offsets and character (rune) offsets.
type runeIndex struct {
	byteToRune []int
	runeToByte []int
}

func newRuneIndex(s string) runeIndex {
	runeToByte := make([]int, 0, len(s)+1)
	for i := range s {
		runeToByte = append(runeToByte, i)
	}
	runeToByte = append(runeToByte, len(s))

	byteToRune := make([]int, len(s)+1)
	for r := 0; r < len(runeToByte)-1; r++ {
		for b := runeToByte[r]; b < runeToByte[r+1]; b++ {
			byteToRune[b] = r
		}
	}
	byteToRune[len(s)] = len(runeToByte) - 1

	return runeIndex{byteToRune: byteToRune, runeToByte: runeToByte}
}

func (x runeIndex) runeAt(b int) int { return x.byteToRune[b] }
func (x runeIndex) byteAt(r int) int { return x.runeToByte[r] }
func (x runeIndex) len() int         { return len(x.runeToByte) - 1 }

package temporal

import (
	"strconv"
	"strings"
	"time"
)

// clock is a wall-clock time of day.
type clock struct {
	hour   int
	minute int
}

var weekdayStems = map[string]time.Weekday{
	"понедельник": time.Monday,
	"вторник":     time.Tuesday,
	"сред":        time.Wednesday,
	"четверг":     time.Thursday,
	"пятниц":      time.Friday,
	"суббот":      time.Saturday,
	"воскресень":  time.Sunday,
	"monday":      time.Monday,
	"tuesday":     time.Tuesday,
	"wednesday":   time.Wednesday,
	"thursday":    time.Thursday,
	"friday":      time.Friday,
	"saturday":    time.Saturday,
	"sunday":      time.Sunday,
}

// parseWeekday matches a weekday name in Russian (any case form) or English.
func parseWeekday(tok string) (time.Weekday, bool) {
	for stem, wd := range weekdayStems {
		if strings.HasPrefix(tok, stem) {
			return wd, true
		}
	}
	return 0, false
}

func isNextMarker(tok string) bool {
	return tok == "next" || strings.HasPrefix(tok, "следующ")
}

// dayWordOffset matches relative day words, returning the day delta.
func dayWordOffset(tok string) (int, bool) {
	switch tok {
	case "сегодня", "today":
		return 0, true
	case "завтра", "tomorrow":
		return 1, true
	case "послезавтра":
		return 2, true
	}
	return 0, false
}

var numberWords = map[string]int{
	"один": 1, "одну": 1, "одна": 1, "one": 1,
	"два": 2, "две": 2, "two": 2,
	"три": 3, "three": 3,
	"четыре": 4, "four": 4,
	"пять": 5, "five": 5,
	"шесть": 6, "six": 6,
	"семь": 7, "seven": 7,
	"восемь": 8, "eight": 8,
	"девять": 9, "nine": 9,
	"десять": 10, "ten": 10,
}

func parseNumber(tok string) (int, bool) {
	if n, ok := numberWords[tok]; ok {
		return n, true
	}
	n, err := strconv.Atoi(tok)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// parseUnit matches an offset unit (hours, minutes, days).
func parseUnit(tok string) (time.Duration, bool) {
	switch {
	case tok == "час" || strings.HasPrefix(tok, "часа") || strings.HasPrefix(tok, "часов") ||
		tok == "hour" || tok == "hours":
		return time.Hour, true
	case strings.HasPrefix(tok, "минут") || tok == "мин" || tok == "мин." ||
		tok == "minute" || tok == "minutes" || tok == "min" || tok == "mins":
		return time.Minute, true
	case tok == "день" || tok == "дня" || tok == "дней" ||
		tok == "day" || tok == "days":
		return 24 * time.Hour, true
	}
	return 0, false
}

func isOffsetMarker(tok string) bool {
	return tok == "через" || tok == "in"
}

func isAtMarker(tok string) bool {
	return tok == "в" || tok == "во" || tok == "at"
}

// parseClock parses "14:00", "9:30", "2pm" and "11am" forms.
func parseClock(tok string) (clock, bool) {
	if h, ok := parseMeridiem(tok); ok {
		return h, true
	}
	hh, mm, found := strings.Cut(tok, ":")
	if !found {
		return clock{}, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return clock{}, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return clock{}, false
	}
	return clock{hour: h, minute: m}, true
}

func parseMeridiem(tok string) (clock, bool) {
	var suffix string
	switch {
	case strings.HasSuffix(tok, "am"):
		suffix = "am"
	case strings.HasSuffix(tok, "pm"):
		suffix = "pm"
	default:
		return clock{}, false
	}
	h, err := strconv.Atoi(strings.TrimSuffix(tok, suffix))
	if err != nil || h < 1 || h > 12 {
		return clock{}, false
	}
	if h == 12 {
		h = 0
	}
	if suffix == "pm" {
		h += 12
	}
	return clock{hour: h}, true
}

// parseBareHour parses a lone hour number following an at-marker ("в 11").
func parseBareHour(tok string) (clock, bool) {
	h, err := strconv.Atoi(tok)
	if err != nil || h < 0 || h > 23 {
		return clock{}, false
	}
	return clock{hour: h}, true
}

// parseClockRange parses "15:00-16:00" style tokens. Either side may be a
// bare hour ("14-16"). Both hyphen and en dash separate the sides.
func parseClockRange(tok string) (clock, clock, bool) {
	var sep string
	switch {
	case strings.Contains(tok, "–"):
		sep = "–"
	case strings.Contains(tok, "-"):
		sep = "-"
	default:
		return clock{}, clock{}, false
	}
	left, right, _ := strings.Cut(tok, sep)
	from, ok := parseClockPart(left)
	if !ok {
		return clock{}, clock{}, false
	}
	to, ok := parseClockPart(right)
	if !ok {
		return clock{}, clock{}, false
	}
	return from, to, true
}

func parseClockPart(tok string) (clock, bool) {
	if c, ok := parseClock(tok); ok {
		return c, true
	}
	return parseBareHour(tok)
}

// parseNumericDate parses "15.08" and "15.08.2026" tokens.
func parseNumericDate(tok string) (day, month, year int, ok bool) {
	parts := strings.Split(tok, ".")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, 0, 0, false
	}
	day, err := strconv.Atoi(parts[0])
	if err != nil || day < 1 || day > 31 {
		return 0, 0, 0, false
	}
	month, err = strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return 0, 0, 0, false
	}
	if len(parts) == 3 {
		year, err = strconv.Atoi(parts[2])
		if err != nil || year < 2000 || year > 2200 {
			return 0, 0, 0, false
		}
	}
	return day, month, year, true
}

// consumeTemporal reports how many tokens starting at i form one temporal
// element, or 0 if tokens[i] starts none.
func consumeTemporal(tokens []string, i int) int {
	tok := tokens[i]

	if isOffsetMarker(tok) {
		// "через 2 часа", "in 2 hours", "через час"
		if i+2 < len(tokens) {
			if _, okN := parseNumber(tokens[i+1]); okN {
				if _, okU := parseUnit(tokens[i+2]); okU {
					return 3
				}
			}
		}
		if i+1 < len(tokens) {
			if _, ok := parseUnit(tokens[i+1]); ok {
				return 2
			}
		}
		return 0
	}
	if isNextMarker(tok) {
		if i+1 < len(tokens) {
			if _, ok := parseWeekday(tokens[i+1]); ok {
				return 2
			}
		}
		return 0
	}
	if isAtMarker(tok) {
		// "в 11", "в 11:30", "at 2pm", "в пятницу"
		if i+1 < len(tokens) {
			if _, ok := parseClockPart(tokens[i+1]); ok {
				return 2
			}
			if _, ok := parseWeekday(tokens[i+1]); ok {
				return 2
			}
		}
		return 0
	}
	if _, ok := parseWeekday(tok); ok {
		return 1
	}
	if _, ok := dayWordOffset(tok); ok {
		return 1
	}
	if _, ok := parseClock(tok); ok {
		return 1
	}
	if _, _, ok := parseClockRange(tok); ok {
		return 1
	}
	if _, _, _, ok := parseNumericDate(tok); ok {
		return 1
	}
	return 0
}

// ExtractRange finds the longest contiguous run of temporal tokens in the
// lowercased token list, returned as a half-open [start, end) index pair.
// (-1, -1) means no run was found. The run may sit anywhere: prefix, suffix
// or embedded in the middle.
func ExtractRange(tokens []string) (start, end int) {
	bestStart, bestLen := -1, 0

	for i := 0; i < len(tokens); {
		n := consumeTemporal(tokens, i)
		if n == 0 {
			i++
			continue
		}
		runStart := i
		for i < len(tokens) {
			step := consumeTemporal(tokens, i)
			if step == 0 {
				break
			}
			i += step
		}
		if i-runStart > bestLen {
			bestStart, bestLen = runStart, i-runStart
		}
	}

	if bestStart < 0 {
		return -1, -1
	}
	return bestStart, bestStart + bestLen
}

// Extract is the slice form of ExtractRange: it returns the temporal run
// plus the remaining tokens in original order.
func Extract(tokens []string) (expr []string, rest []string) {
	start, end := ExtractRange(tokens)
	if start < 0 {
		return nil, tokens
	}
	expr = tokens[start:end]
	rest = append(rest, tokens[:start]...)
	rest = append(rest, tokens[end:]...)
	return expr, rest
}

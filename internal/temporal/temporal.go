// Package temporal resolves raw date/time expressions into absolute spans.
//
// Resolution is a pure function of (expression, now, timezone): the wall
// clock is never consulted, so identical inputs always produce identical
// spans. Supported expression classes:
//
//   - relative offsets: "через 2 часа", "in 30 minutes"
//   - relative day names: "пятница", "next monday", "следующий вторник"
//   - relative day words: "сегодня", "завтра", "tomorrow"
//   - absolute clock times: "14:00", "2pm", "в 11"
//   - ranges: "15:00-16:00", "14-16"
//   - numeric dates: "15.08", "15.08.2026"
//   - combinations of a date token with a time or range token
package temporal

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"napomni/internal/domain"
)

var (
	// ErrUnparsable means no token matched any supported expression class.
	ErrUnparsable = errors.New("unparsable time expression")
	// ErrAmbiguous means two mutually exclusive interpretations apply and
	// no policy is configured to break the tie.
	ErrAmbiguous = errors.New("ambiguous time expression")
)

// Policy pins down the one genuinely ambiguous case in the grammar: a bare
// weekday name that names today's weekday.
type Policy struct {
	// SameDayCutoff is the local time of day (offset from midnight) before
	// which a bare weekday naming today resolves to today. At or after the
	// cutoff it resolves to the next occurrence, seven days out. A zero
	// cutoff means the policy is not configured and such expressions fail
	// with ErrAmbiguous.
	SameDayCutoff time.Duration
}

func (p Policy) configured() bool { return p.SameDayCutoff > 0 }

type Config struct {
	// DefaultDuration is applied when the expression specifies only a start.
	DefaultDuration time.Duration
	Policy          Policy
}

type Resolver struct {
	config Config
}

func New(config Config) *Resolver {
	if config.DefaultDuration <= 0 {
		config.DefaultDuration = time.Hour
	}
	return &Resolver{config: config}
}

// components is the classified form of an expression: at most one date
// element, at most one time element, or a single relative offset.
type components struct {
	hasOffset bool
	offset    time.Duration

	hasDate  bool
	dateKind dateKind
	weekday  time.Weekday
	next     bool
	dayDelta int
	day      int
	month    int
	year     int

	hasTime  bool
	from     clock
	to       clock
	hasRange bool
}

type dateKind int

const (
	dateNone dateKind = iota
	dateWeekday
	dateDayWord
	dateNumeric
)

// Resolve converts a raw expression into a Span anchored to now, resolved
// against loc and returned in UTC.
func (r *Resolver) Resolve(expr string, now time.Time, loc *time.Location) (domain.Span, error) {
	if loc == nil {
		loc = time.UTC
	}
	tokens := strings.Fields(strings.ToLower(strings.TrimSpace(expr)))
	if len(tokens) == 0 {
		return domain.Span{}, fmt.Errorf("%w: empty expression", ErrUnparsable)
	}

	comp, err := classify(tokens)
	if err != nil {
		return domain.Span{}, err
	}

	if comp.hasOffset {
		start := now.Add(comp.offset)
		return r.span(start, start.Add(r.config.DefaultDuration), loc), nil
	}

	nowLoc := now.In(loc)

	date, err := r.resolveDate(comp, nowLoc)
	if err != nil {
		return domain.Span{}, err
	}

	if !comp.hasTime {
		// Date-only expression: keep now's local time of day on the
		// resolved date ("завтра" alone means this time tomorrow).
		start := time.Date(date.Year(), date.Month(), date.Day(),
			nowLoc.Hour(), nowLoc.Minute(), 0, 0, loc)
		return r.span(start, start.Add(r.config.DefaultDuration), loc), nil
	}

	start := time.Date(date.Year(), date.Month(), date.Day(),
		comp.from.hour, comp.from.minute, 0, 0, loc)

	if !comp.hasDate && !start.After(nowLoc) {
		// Bare clock time already passed today: next calendar day.
		start = start.AddDate(0, 0, 1)
	}

	end := start.Add(r.config.DefaultDuration)
	if comp.hasRange {
		end = time.Date(start.Year(), start.Month(), start.Day(),
			comp.to.hour, comp.to.minute, 0, 0, loc)
		if !end.After(start) {
			// Range crossing midnight ends on the next day.
			end = end.AddDate(0, 0, 1)
		}
	}

	return r.span(start, end, loc), nil
}

func (r *Resolver) span(start, end time.Time, loc *time.Location) domain.Span {
	return domain.Span{
		Start:    start.UTC().Truncate(time.Minute),
		End:      end.UTC().Truncate(time.Minute),
		Timezone: loc.String(),
	}
}

// resolveDate produces the calendar date the time component applies to.
func (r *Resolver) resolveDate(comp components, nowLoc time.Time) (time.Time, error) {
	switch comp.dateKind {
	case dateNone:
		return nowLoc, nil

	case dateDayWord:
		return nowLoc.AddDate(0, 0, comp.dayDelta), nil

	case dateWeekday:
		delta := (int(comp.weekday) - int(nowLoc.Weekday()) + 7) % 7
		if delta == 0 {
			switch {
			case comp.next:
				delta = 7
			case !r.config.Policy.configured():
				return time.Time{}, fmt.Errorf("%w: weekday names today and no same-day policy is set", ErrAmbiguous)
			default:
				sinceMidnight := time.Duration(nowLoc.Hour())*time.Hour + time.Duration(nowLoc.Minute())*time.Minute
				if sinceMidnight >= r.config.Policy.SameDayCutoff {
					delta = 7
				}
			}
		}
		return nowLoc.AddDate(0, 0, delta), nil

	case dateNumeric:
		year := comp.year
		if year == 0 {
			year = nowLoc.Year()
			candidate := time.Date(year, time.Month(comp.month), comp.day, 23, 59, 0, 0, nowLoc.Location())
			if candidate.Before(nowLoc) {
				// A passed day-and-month without a year means next year.
				year++
			}
		}
		return time.Date(year, time.Month(comp.month), comp.day, 0, 0, 0, 0, nowLoc.Location()), nil
	}
	return time.Time{}, fmt.Errorf("%w: no date component", ErrUnparsable)
}

// classify walks the token list and fills in the expression components.
// Every token must belong to some element; a leftover token or a repeated
// element class makes the expression unparsable.
func classify(tokens []string) (components, error) {
	var comp components

	setDate := func(kind dateKind) error {
		if comp.hasDate || comp.hasOffset {
			return fmt.Errorf("%w: conflicting date elements", ErrUnparsable)
		}
		comp.hasDate = true
		comp.dateKind = kind
		return nil
	}
	setTime := func(from, to clock, isRange bool) error {
		if comp.hasTime || comp.hasOffset {
			return fmt.Errorf("%w: conflicting time elements", ErrUnparsable)
		}
		comp.hasTime = true
		comp.from = from
		comp.to = to
		comp.hasRange = isRange
		return nil
	}

	for i := 0; i < len(tokens); {
		tok := tokens[i]
		n := consumeTemporal(tokens, i)
		if n == 0 {
			return components{}, fmt.Errorf("%w: unrecognized token %q", ErrUnparsable, tok)
		}

		switch {
		case isOffsetMarker(tok):
			if comp.hasOffset || comp.hasDate || comp.hasTime {
				return components{}, fmt.Errorf("%w: offset mixed with other elements", ErrUnparsable)
			}
			amount := 1
			unitTok := tokens[i+1]
			if n == 3 {
				amount, _ = parseNumber(tokens[i+1])
				unitTok = tokens[i+2]
			}
			unit, _ := parseUnit(unitTok)
			comp.hasOffset = true
			comp.offset = time.Duration(amount) * unit

		case isNextMarker(tok):
			if err := setDate(dateWeekday); err != nil {
				return components{}, err
			}
			comp.weekday, _ = parseWeekday(tokens[i+1])
			comp.next = true

		case isAtMarker(tok):
			if wd, ok := parseWeekday(tokens[i+1]); ok {
				if err := setDate(dateWeekday); err != nil {
					return components{}, err
				}
				comp.weekday = wd
				break
			}
			c, _ := parseClockPart(tokens[i+1])
			if err := setTime(c, clock{}, false); err != nil {
				return components{}, err
			}

		default:
			if wd, ok := parseWeekday(tok); ok {
				if err := setDate(dateWeekday); err != nil {
					return components{}, err
				}
				comp.weekday = wd
				break
			}
			if delta, ok := dayWordOffset(tok); ok {
				if err := setDate(dateDayWord); err != nil {
					return components{}, err
				}
				comp.dayDelta = delta
				break
			}
			if c, ok := parseClock(tok); ok {
				if err := setTime(c, clock{}, false); err != nil {
					return components{}, err
				}
				break
			}
			if from, to, ok := parseClockRange(tok); ok {
				if err := setTime(from, to, true); err != nil {
					return components{}, err
				}
				break
			}
			if day, month, year, ok := parseNumericDate(tok); ok {
				if err := setDate(dateNumeric); err != nil {
					return components{}, err
				}
				comp.day, comp.month, comp.year = day, month, year
				break
			}
			return components{}, fmt.Errorf("%w: unrecognized token %q", ErrUnparsable, tok)
		}

		i += n
	}

	if !comp.hasOffset && !comp.hasDate && !comp.hasTime {
		return components{}, fmt.Errorf("%w: no temporal elements", ErrUnparsable)
	}
	return comp, nil
}

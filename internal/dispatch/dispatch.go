// Package dispatch implements QueryDispatch (spec §4.7): it maps one query
// line onto NameTable/IntervalStore/OverlapQuery/SplitEngine/GapFill calls
// and formats the textual reply.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hausd/itd/internal/engine"
	"github.com/hausd/itd/internal/wire"
)

// store is the subset of *engine.Engine the dispatcher needs, so it can be
// unit-tested against a lightweight fake instead of a live engine.
type store interface {
	PresentAt(ctx context.Context, t engine.T) (map[engine.PersonID]struct{}, error)
	Splits(ctx context.Context, min, max engine.T) ([]engine.Split, error)
	NameOf(ctx context.Context, id engine.PersonID) (string, error)
}

// Dispatcher is QueryDispatch: stateless beyond the engine handle and a
// singleflight group that coalesces identical concurrent interval queries
// into one OverlapQuery+SplitEngine+GapFill pass.
type Dispatcher struct {
	eng store
	sf  singleflight.Group
}

// New binds a Dispatcher to eng.
func New(eng store) *Dispatcher {
	return &Dispatcher{eng: eng}
}

// modifier is the leading character of a query line.
type modifier byte

const (
	modDefault modifier = 0   // union of present usernames
	modSplits  modifier = '*' // each split as "<duration> <name...>"
	modAlways  modifier = '+' // usernames present in every split
)

// Dispatch runs one query line against the engine and returns the full
// reply, including the "# <query>\n" echo prefix spec §4.7 requires for
// round-trip debugging.
func (d *Dispatcher) Dispatch(ctx context.Context, line string, now time.Time) string {
	body, err := d.answer(ctx, line, now)
	if err != nil {
		body = "" // malformed queries produce empty answers (spec §4.7)
	}
	var sb strings.Builder
	sb.WriteString("# ")
	sb.WriteString(line)
	sb.WriteByte('\n')
	sb.WriteString(body)
	return sb.String()
}

func (d *Dispatcher) answer(ctx context.Context, line string, now time.Time) (string, error) {
	mod, rest := splitModifier(line)
	tokens := wire.Fields(rest)

	switch len(tokens) {
	case 1:
		return d.point(ctx, tokens[0], now)
	case 2:
		return d.interval(ctx, mod, tokens[0], tokens[1], now)
	default:
		return "", fmt.Errorf("dispatch: malformed query %q", line)
	}
}

func splitModifier(line string) (modifier, string) {
	if len(line) == 0 {
		return modDefault, line
	}
	switch line[0] {
	case byte(modSplits), byte(modAlways):
		return modifier(line[0]), strings.TrimSpace(line[1:])
	default:
		return modDefault, line
	}
}

// point answers a point query: every username present at the instant
// (spec §4.7), using the engine's half-open PresentAt rather than going
// through Splits — clipping a point query to [t,t] would collapse every
// match to a zero-width interval, which SplitEngine correctly treats as a
// cancelling OPEN/CLOSE pair that emits no split (spec §4.5's rule for
// interval queries, not what a point query needs).
func (d *Dispatcher) point(ctx context.Context, tok string, now time.Time) (string, error) {
	t, err := wire.ParseTimestamp(tok, now)
	if err != nil {
		return "", err
	}

	present, err := d.eng.PresentAt(ctx, t)
	if err != nil {
		return "", err
	}
	names, err := d.sortedNames(ctx, present)
	if err != nil {
		return "", err
	}
	return joinLines(names), nil
}

func (d *Dispatcher) interval(ctx context.Context, mod modifier, fromTok, toTok string, now time.Time) (string, error) {
	min, err := wire.ParseTimestamp(fromTok, now)
	if err != nil {
		return "", err
	}
	max, err := wire.ParseTimestamp(toTok, now)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("%c|%d|%d", mod, min, max)
	v, err, _ := d.sf.Do(key, func() (any, error) {
		return d.eng.Splits(ctx, min, max)
	})
	if err != nil {
		return "", err
	}
	splits := v.([]engine.Split)

	switch mod {
	case modSplits:
		return d.formatSplits(ctx, splits)
	case modAlways:
		return d.formatAlwaysPresent(ctx, splits)
	default:
		return d.formatUnion(ctx, splits)
	}
}

func (d *Dispatcher) formatSplits(ctx context.Context, splits []engine.Split) (string, error) {
	var lines []string
	for _, s := range splits {
		names, err := d.sortedNames(ctx, s.Present)
		if err != nil {
			return "", err
		}
		duration := int64(s.TMax - s.TMin)
		if len(names) == 0 {
			lines = append(lines, fmt.Sprintf("%d", duration))
			continue
		}
		lines = append(lines, fmt.Sprintf("%d %s", duration, strings.Join(names, " ")))
	}
	return joinLines(lines), nil
}

func (d *Dispatcher) formatUnion(ctx context.Context, splits []engine.Split) (string, error) {
	seen := make(map[engine.PersonID]struct{})
	for _, s := range splits {
		for p := range s.Present {
			seen[p] = struct{}{}
		}
	}
	names, err := d.sortedNames(ctx, seen)
	if err != nil {
		return "", err
	}
	return joinLines(names), nil
}

// formatAlwaysPresent intersects the presence sets of every split in the
// range; a person absent from even one split is excluded.
func (d *Dispatcher) formatAlwaysPresent(ctx context.Context, splits []engine.Split) (string, error) {
	if len(splits) == 0 {
		return "", nil
	}
	always := make(map[engine.PersonID]struct{}, len(splits[0].Present))
	for p := range splits[0].Present {
		always[p] = struct{}{}
	}
	for _, s := range splits[1:] {
		for p := range always {
			if _, ok := s.Present[p]; !ok {
				delete(always, p)
			}
		}
	}
	names, err := d.sortedNames(ctx, always)
	if err != nil {
		return "", err
	}
	return joinLines(names), nil
}

func (d *Dispatcher) sortedNames(ctx context.Context, ids map[engine.PersonID]struct{}) ([]string, error) {
	names := make([]string, 0, len(ids))
	for p := range ids {
		name, err := d.eng.NameOf(ctx, p)
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

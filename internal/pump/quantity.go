package pump

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Base units the pump reports quantities in.
const (
	UnitLitre          = "l"
	UnitLitrePerMinute = "l/min"
	UnitLitrePerHour   = "l/hr"
	UnitMetre          = "m"
)

var prefixScale = map[string]float64{
	"":  1,
	"m": 1e-3,
	"u": 1e-6,
	"n": 1e-9,
	"p": 1e-12,
}

// normalisation order, largest first
var prefixOrder = []string{"", "m", "u", "n", "p"}

var baseUnits = map[string]bool{
	UnitLitre:          true,
	UnitLitrePerMinute: true,
	UnitLitrePerHour:   true,
	UnitMetre:          true,
}

// Quantity is a number with the unit the pump printed or expects, such as
// 1.5 "ml/min" or 14.57 "mm".
type Quantity struct {
	Value float64
	Unit  string
}

// Q is shorthand for Quantity{Value: v, Unit: unit}.
func Q(v float64, unit string) Quantity {
	return Quantity{Value: v, Unit: unit}
}

// ParseQuantity parses "<number> <unit>" at the start of s, e.g. "1.5 ml/min".
func ParseQuantity(s string) (Quantity, error) {
	q, _, err := parseLeadingQuantity(s)
	return q, err
}

// parseLeadingQuantity parses the quantity at the start of line and returns
// the rest of the line after it.
func parseLeadingQuantity(line string) (Quantity, string, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Quantity{}, "", fmt.Errorf("could not extract quantity from %q", line)
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Quantity{}, "", fmt.Errorf("could not extract quantity from %q: %w", line, err)
	}
	unit := strings.ToLower(strings.Replace(fields[1], "µ", "u", 1))
	return Quantity{Value: v, Unit: unit}, strings.Join(fields[2:], " "), nil
}

// afterWord returns the text following the first occurrence of word in line.
func afterWord(line, word string) (string, error) {
	_, rest, ok := strings.Cut(line, word)
	if !ok {
		return "", fmt.Errorf("could not find %q in %q", word, line)
	}
	return strings.TrimSpace(rest), nil
}

// split separates the SI prefix from the base unit. ok is false for units
// without a known base.
func (q Quantity) split() (prefix, base string, ok bool) {
	if baseUnits[q.Unit] {
		return "", q.Unit, true
	}
	if len(q.Unit) > 1 {
		prefix, base = q.Unit[:1], q.Unit[1:]
		if _, known := prefixScale[prefix]; known && baseUnits[base] {
			return prefix, base, true
		}
	}
	return "", q.Unit, false
}

// BaseUnit returns the unit without its SI prefix, e.g. "l/min" for "ul/min".
func (q Quantity) BaseUnit() string {
	_, base, _ := q.split()
	return base
}

// Base converts q to its base unit.
func (q Quantity) Base() Quantity {
	prefix, base, ok := q.split()
	if !ok {
		return q
	}
	return Quantity{Value: q.Value * prefixScale[prefix], Unit: base}
}

// In converts q to unit, which must share q's base unit.
func (q Quantity) In(unit string) (float64, error) {
	target := Quantity{Value: 1, Unit: unit}
	if q.BaseUnit() != target.BaseUnit() {
		return 0, fmt.Errorf("cannot convert %s to %s", q.Unit, unit)
	}
	return q.Base().Value / target.Base().Value, nil
}

// Normalize rescales q to the largest prefix that keeps the value at or
// above 1, the form the pump accepts in commands.
func (q Quantity) Normalize() Quantity {
	_, base, ok := q.split()
	if !ok || base == UnitMetre || q.Value == 0 {
		return q
	}
	v := q.Base().Value
	for _, prefix := range prefixOrder {
		scaled := v / prefixScale[prefix]
		if math.Abs(scaled) >= 1 {
			return Quantity{Value: scaled, Unit: prefix + base}
		}
	}
	last := prefixOrder[len(prefixOrder)-1]
	return Quantity{Value: v / prefixScale[last], Unit: last + base}
}

// String formats q with four significant digits.
func (q Quantity) String() string {
	return formatNumber(q.Value) + " " + q.Unit
}

func formatNumber(v float64) string {
	rounded, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'g', 4, 64), 64)
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}

// Equal reports whether q and other denote the same amount.
func (q Quantity) Equal(other Quantity) bool {
	a, b := q.Base(), other.Base()
	if a.Unit != b.Unit {
		return false
	}
	return math.Abs(a.Value-b.Value) <= 1e-9*math.Max(math.Abs(a.Value), math.Abs(b.Value))
}

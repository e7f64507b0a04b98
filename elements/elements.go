// Package elements parses and validates two-line element sets.
//
// Sets are validated field by field before they are handed to the SGP4
// propagator, which aborts the process on fields it cannot parse.
package elements

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/satloc/model"
)

// LineLength is the fixed width of both element lines.
const LineLength = 69

var (
	// ErrEmpty is returned when the input holds no element set at all.
	ErrEmpty = errors.New("no element set found")
	// ErrMalformed covers structural and field-level format problems.
	ErrMalformed = errors.New("malformed element set")
	// ErrChecksum is returned when a line's modulo-10 checksum does not match.
	ErrChecksum = errors.New("element set checksum mismatch")
	// ErrCatalogMismatch is returned when the two lines name different objects.
	ErrCatalogMismatch = errors.New("element lines refer to different catalog numbers")
)

// Parse reads every element set in text. It accepts bare two-line sets and
// three-line sets with a title line, in any mix. Blank lines are skipped.
func Parse(text string) ([]model.ElementSet, error) {
	var (
		sets    []model.ElementSet
		pending []string
		title   string
	)

	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "1 ") && len(pending) == 0:
			pending = append(pending, line)
		case strings.HasPrefix(line, "2 ") && len(pending) == 1:
			set, err := ParseLines(title, pending[0], line)
			if err != nil {
				return nil, err
			}
			sets = append(sets, set)
			pending = pending[:0]
			title = ""
		case len(pending) == 1:
			return nil, fmt.Errorf("%w: line 1 for %q not followed by line 2", ErrMalformed, title)
		case strings.HasPrefix(line, "2 ") && len(line) == LineLength:
			return nil, fmt.Errorf("%w: line 2 without a preceding line 1", ErrMalformed)
		default:
			title = parseTitle(line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read element sets: %w", err)
	}
	if len(pending) != 0 {
		return nil, fmt.Errorf("%w: truncated element set", ErrMalformed)
	}
	if len(sets) == 0 {
		return nil, ErrEmpty
	}
	return sets, nil
}

// ParseLines validates one element set and decodes its identity and epoch.
func ParseLines(name, line1, line2 string) (model.ElementSet, error) {
	line1 = strings.TrimRight(line1, " \t\r")
	line2 = strings.TrimRight(line2, " \t\r")

	if err := checkLine(line1, '1'); err != nil {
		return model.ElementSet{}, err
	}
	if err := checkLine(line2, '2'); err != nil {
		return model.ElementSet{}, err
	}

	cat1, err := CatalogNumber(line1[2:7])
	if err != nil {
		return model.ElementSet{}, err
	}
	cat2, err := CatalogNumber(line2[2:7])
	if err != nil {
		return model.ElementSet{}, err
	}
	if cat1 != cat2 {
		return model.ElementSet{}, fmt.Errorf("%w: %d vs %d", ErrCatalogMismatch, cat1, cat2)
	}

	if err := checkFields(line1, line2); err != nil {
		return model.ElementSet{}, err
	}

	epoch, err := parseEpoch(line1[18:32])
	if err != nil {
		return model.ElementSet{}, err
	}

	return model.ElementSet{
		CatalogNumber: cat1,
		Name:          strings.TrimSpace(name),
		Line1:         line1,
		Line2:         line2,
		Epoch:         epoch,
	}, nil
}

// Checksum computes the modulo-10 checksum over the first 68 columns: digits
// count at face value, minus signs count as one, everything else is ignored.
func Checksum(line string) int {
	sum := 0
	for i := 0; i < len(line) && i < LineLength-1; i++ {
		switch c := line[i]; {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

// CatalogNumber decodes the five-column catalog field, including the Alpha-5
// scheme where a leading letter (I and O excluded) encodes 10..33.
func CatalogNumber(field string) (uint32, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return 0, fmt.Errorf("%w: empty catalog number", ErrMalformed)
	}
	var prefix uint32
	if c := field[0]; c >= 'A' && c <= 'Z' {
		v, ok := alpha5(c)
		if !ok {
			return 0, fmt.Errorf("%w: invalid Alpha-5 prefix %q", ErrMalformed, c)
		}
		prefix = v * 10000
		field = field[1:]
	}
	n, err := strconv.ParseUint(field, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: catalog number %q", ErrMalformed, field)
	}
	return prefix + uint32(n), nil
}

func alpha5(c byte) (uint32, bool) {
	switch {
	case c == 'I' || c == 'O':
		return 0, false
	case c < 'I':
		return uint32(c-'A') + 10, true
	case c < 'O':
		return uint32(c-'A') + 9, true
	default:
		return uint32(c-'A') + 8, true
	}
}

func parseTitle(line string) string {
	line = strings.TrimSpace(line)
	// 3LE files prefix the title with "0 ".
	if strings.HasPrefix(line, "0 ") {
		line = strings.TrimSpace(line[2:])
	}
	return line
}

func checkLine(line string, num byte) error {
	if len(line) != LineLength {
		return fmt.Errorf("%w: line %c is %d characters, want %d", ErrMalformed, num, len(line), LineLength)
	}
	if line[0] != num || line[1] != ' ' {
		return fmt.Errorf("%w: line %c has wrong line number", ErrMalformed, num)
	}
	want := line[LineLength-1]
	if want < '0' || want > '9' {
		return fmt.Errorf("%w: line %c checksum column is %q", ErrMalformed, num, want)
	}
	if got := Checksum(line); got != int(want-'0') {
		return fmt.Errorf("%w: line %c computed %d, recorded %c", ErrChecksum, num, got, want)
	}
	return nil
}

type field struct {
	name string
	text string
	raw  bool // parsed as is, without dropping any spaces
}

// checkFields parses every numeric field the propagator reads, exactly as it
// reads them: epoch and eccentricity verbatim, the other fields with at most
// two spaces removed.
func checkFields(line1, line2 string) error {
	fields := []field{
		{"epoch day", line1[20:32], true},
		{"mean motion derivative", line1[33:43], false},
		{"mean motion second derivative", line1[44:45] + "." + line1[45:50] + "e" + line1[50:52], false},
		{"bstar", line1[53:54] + "." + line1[54:59] + "e" + line1[59:61], false},
		{"inclination", line2[8:16], false},
		{"right ascension", line2[17:25], false},
		{"eccentricity", "." + line2[26:33], true},
		{"argument of perigee", line2[34:42], false},
		{"mean anomaly", line2[43:51], false},
		{"mean motion", line2[52:63], false},
	}
	if _, err := strconv.ParseInt(line1[18:20], 10, 0); err != nil {
		return fmt.Errorf("%w: epoch year %q", ErrMalformed, line1[18:20])
	}
	values := make(map[string]float64, len(fields))
	for _, f := range fields {
		text := f.text
		if !f.raw {
			text = strings.Replace(text, " ", "", 2)
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s %q", ErrMalformed, f.name, f.text)
		}
		values[f.name] = v
	}
	if values["mean motion"] <= 0 {
		return fmt.Errorf("%w: mean motion must be positive", ErrMalformed)
	}
	return nil
}

func parseEpoch(text string) (time.Time, error) {
	yy, err := strconv.Atoi(text[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: epoch year %q", ErrMalformed, text[:2])
	}
	day, err := strconv.ParseFloat(text[2:], 64)
	if err != nil || day < 1 || day >= 367 {
		return time.Time{}, fmt.Errorf("%w: epoch day %q", ErrMalformed, text[2:])
	}

	year := 1900 + yy
	if yy < 57 {
		year = 2000 + yy
	}
	whole := math.Floor(day)
	frac := time.Duration(math.Round((day - whole) * 86400 * float64(time.Second)))
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, int(whole)-1).
		Add(frac), nil
}

package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

type (
	RuleFailure struct {
		Field   string
		Rule    RuleMask
		Value   any
		Message string
	}

	// ValidationError aggregates every failing rule for a validation
	// pass; it never carries just the first failure.
	ValidationError struct {
		Failures []RuleFailure
	}
)

func (e *ValidationError) Error() string {
	messages := lo.Map(
		e.Failures,
		func(failure RuleFailure, _ int) string {
			return failure.Message
		},
	)
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// The date/time patterns are deliberately permissive: 1-2 digit month
// and day, 1-4 digit year, `-`, `/` or `\` separators, optional AM/PM.
// Calendar correctness is checked separately.
var (
	datePattern      = regexp.MustCompile(`^([0-9]{1,2})[-/\\]([0-9]{1,2})[-/\\]([0-9]{1,4})$`)
	timePattern      = regexp.MustCompile(`^([0-9]{1,2}):([0-9]{1,2})(?::([0-9]{1,2}))?(?: ?([AaPp][Mm]))?$`)
	timestampPattern = regexp.MustCompile(`^([0-9]{1,2})[-/\\]([0-9]{1,2})[-/\\]([0-9]{1,4}) ([0-9]{1,2}):([0-9]{1,2})(?::([0-9]{1,2}))?(?: ?([AaPp][Mm]))?$`)
	numericPattern   = regexp.MustCompile(`^[+-]?([0-9]+(\.[0-9]*)?|\.[0-9]+)([eE][+-]?[0-9]+)?$`)
)

// Validate evaluates every active pre-validation rule against value
// and returns a *ValidationError carrying all failures, or nil.
func (f *Field) Validate(value any) error {
	str, ok := stringifyValue(value)
	if !ok {
		return &ValidationError{Failures: []RuleFailure{{
			Field:   f.Name,
			Value:   value,
			Message: fmt.Sprintf(`field "%s": value is not a string, number, bool, or null`, f.Name),
		}}}
	}

	failures := make([]RuleFailure, 0)
	fail := func(rule RuleMask, message string) {
		failures = append(failures, RuleFailure{
			Field:   f.Name,
			Rule:    rule,
			Value:   value,
			Message: message,
		})
	}
	empty := isEmptyValue(value)

	if f.HasRule(RuleNotEmpty) && empty {
		fail(RuleNotEmpty, fmt.Sprintf(`field "%s" must not be empty`, f.Name))
	}
	// every other rule skips empty values
	if !empty {
		if f.HasRule(RuleNumericOnly) && !numericPattern.MatchString(strings.TrimSpace(str)) {
			fail(RuleNumericOnly, fmt.Sprintf(`field "%s" must be numeric, got "%s"`, f.Name, str))
		}
		if f.HasRule(RuleMaxCharacters) {
			bound := f.RuleBound(RuleMaxCharacters)
			if len([]rune(str)) > bound {
				fail(RuleMaxCharacters, fmt.Sprintf(`field "%s" exceeds %d characters`, f.Name, bound))
			}
		}
		if f.HasRule(RuleDateField) && !isValidDate(str) {
			fail(RuleDateField, fmt.Sprintf(`field "%s" is not a valid date: "%s"`, f.Name, str))
		}
		if f.HasRule(RuleTimeField) && !isValidTime(str, 24) {
			fail(RuleTimeField, fmt.Sprintf(`field "%s" is not a valid time: "%s"`, f.Name, str))
		}
		if f.HasRule(RuleTimestampField) && !isValidTimestamp(str, 24, false) {
			fail(RuleTimestampField, fmt.Sprintf(`field "%s" is not a valid timestamp: "%s"`, f.Name, str))
		}
		if f.HasRule(RuleFourDigitYear) && !hasFourDigitYear(str, f.Result) {
			fail(RuleFourDigitYear, fmt.Sprintf(`field "%s" requires a four digit year: "%s"`, f.Name, str))
		}
		if f.HasRule(RuleTimeOfDay) && !isValidTime(str, 12) {
			fail(RuleTimeOfDay, fmt.Sprintf(`field "%s" is not a valid time of day: "%s"`, f.Name, str))
		}
	}

	if len(failures) > 0 {
		return &ValidationError{Failures: failures}
	}
	return nil
}

func stringifyValue(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", true
	case string:
		return v, true
	case bool:
		if v {
			return "1", true
		}
		return "0", true
	case int:
		return strconv.Itoa(v), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}

// isEmptyValue treats only null and the empty string as empty;
// explicit false and 0 are values.
func isEmptyValue(value any) bool {
	if value == nil {
		return true
	}
	str, ok := value.(string)
	return ok && str == ""
}

// checkDate mirrors a calendar-correctness check: month 1-12, day
// within the month's length, leap years included.
func checkDate(year int, month int, day int) bool {
	if month < 1 || month > 12 {
		return false
	}
	if day < 1 {
		return false
	}
	daysInMonth := []int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}
	limit := daysInMonth[month-1]
	if month == 2 && isLeapYear(year) {
		limit = 29
	}
	return day <= limit
}

func isLeapYear(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}

func checkTime(hour int, minute int, second int, hourBound int) bool {
	if hour < 0 || hour > hourBound {
		return false
	}
	if minute < 0 || minute > 59 {
		return false
	}
	return second >= 0 && second <= 59
}

// normalizeYear adds 2000 to a year group that was matched with fewer
// than 4 digits.
func normalizeYear(group string) int {
	year, _ := strconv.Atoi(group)
	if len(group) != 4 {
		year += 2000
	}
	return year
}

func isValidDate(str string) bool {
	groups := datePattern.FindStringSubmatch(str)
	if groups == nil {
		return false
	}
	month, _ := strconv.Atoi(groups[1])
	day, _ := strconv.Atoi(groups[2])
	year := normalizeYear(groups[3])
	return checkDate(year, month, day)
}

func isValidTime(str string, hourBound int) bool {
	groups := timePattern.FindStringSubmatch(str)
	if groups == nil {
		return false
	}
	hour, _ := strconv.Atoi(groups[1])
	minute, _ := strconv.Atoi(groups[2])
	second := 0
	if groups[3] != "" {
		second, _ = strconv.Atoi(groups[3])
	}
	return checkTime(hour, minute, second, hourBound)
}

func isValidTimestamp(str string, hourBound int, requireFourDigitYear bool) bool {
	groups := timestampPattern.FindStringSubmatch(str)
	if groups == nil {
		return false
	}
	if requireFourDigitYear && len(groups[3]) != 4 {
		return false
	}
	month, _ := strconv.Atoi(groups[1])
	day, _ := strconv.Atoi(groups[2])
	year := normalizeYear(groups[3])
	if !checkDate(year, month, day) {
		return false
	}
	hour, _ := strconv.Atoi(groups[4])
	minute, _ := strconv.Atoi(groups[5])
	second := 0
	if groups[6] != "" {
		second, _ = strconv.Atoi(groups[6])
	}
	return checkTime(hour, minute, second, hourBound)
}

// hasFourDigitYear requires, for timestamp fields, a full timestamp
// with a 4-digit year, valid calendar date and valid 24-hour time;
// for every other result type, a date whose year group is exactly 4
// digits and calendar-valid.
func hasFourDigitYear(str string, result ResultType) bool {
	if result == ResultTimestamp {
		return isValidTimestamp(str, 24, true)
	}
	groups := datePattern.FindStringSubmatch(str)
	if groups == nil {
		return false
	}
	if len(groups[3]) != 4 {
		return false
	}
	month, _ := strconv.Atoi(groups[1])
	day, _ := strconv.Atoi(groups[2])
	year, _ := strconv.Atoi(groups[3])
	return checkDate(year, month, day)
}

package parser

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// PlausibilityThreshold is the smallest price accepted from a page. Anything at
// or below it is usually an item count or a rating picked up by a selector.
const PlausibilityThreshold = 100000

var (
	unavailableSentinels = map[string]struct{}{
		"Không có":       {},
		"Không hiển thị": {},
	}

	numericPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
	dotGrouping   = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)

	vndPrinter = message.NewPrinter(language.Vietnamese)
)

// ParsePrice turns a displayed price such as "10.710.000₫", "18,825,000₫" or
// "8.100,50đ" into a number. It returns false for empty text, the
// "not available" sentinels, unparseable text and non-positive values.
func ParsePrice(text string) (float64, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, false
	}
	if _, ok := unavailableSentinels[trimmed]; ok {
		return 0, false
	}

	clean := normalizeSeparators(stripCurrency(trimmed))

	match := numericPrefix.FindString(clean)
	if match == "" {
		slog.Debug("could not parse price", "text", text)
		return 0, false
	}

	price, err := strconv.ParseFloat(match, 64)
	if err != nil || price <= 0 {
		slog.Debug("could not parse price", "text", text)
		return 0, false
	}

	slog.Debug("price parsed", "text", text, "price", price)
	return price, true
}

// IsPlausible reports whether price clears PlausibilityThreshold.
func IsPlausible(price float64) bool {
	return price > PlausibilityThreshold
}

// PlausiblePrice parses text and drops results at or below the threshold.
func PlausiblePrice(text string) *float64 {
	price, ok := ParsePrice(text)
	if !ok || !IsPlausible(price) {
		return nil
	}
	return &price
}

// FormatVND renders price with Vietnamese digit grouping and the dong sign,
// e.g. 1710000 -> "1.710.000₫".
func FormatVND(price float64) string {
	return vndPrinter.Sprintf("%v", number.Decimal(price, number.MaxFractionDigits(3))) + "₫"
}

func stripCurrency(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '₫', r == 'đ', r == 'Đ':
			return -1
		case unicode.IsSpace(r):
			return -1
		}
		return r
	}, s)
}

// normalizeSeparators decides between thousands and decimal separators from
// the shape of the string alone.
func normalizeSeparators(s string) string {
	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")

	switch {
	case hasDot && hasComma:
		// 1.234,56
		s = strings.ReplaceAll(s, ".", "")
		return strings.Replace(s, ",", ".", 1)
	case hasDot:
		// 10.710.000. A lone dot that does not split off a group of three
		// digits is a decimal point, which keeps "8100.5" stable.
		if strings.Count(s, ".") == 1 && !dotGrouping.MatchString(leadingNumber(s)) {
			return s
		}
		return strings.ReplaceAll(s, ".", "")
	case hasComma:
		// 18,825,000
		return strings.ReplaceAll(s, ",", "")
	}
	return s
}

func leadingNumber(s string) string {
	end := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.'
	})
	if end < 0 {
		return s
	}
	return s[:end]
}

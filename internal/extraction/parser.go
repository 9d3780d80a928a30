// Package extraction turns OCR output into receipt fields.
package extraction

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mateo9804/gastoclaro/internal/models"
)

const (
	maxVendorLength = 50
	dateLayout      = "2006-01-02"
)

var (
	primaryKeywords   = []string{"TOTAL", "LS."}
	secondaryKeywords = []string{"IMPORTE", "AMOUNT", "A PAGAR", "NETO", "SUMA"}

	keywordLimit  = decimal.NewFromInt(100000)
	fallbackLimit = decimal.NewFromInt(50000)

	lineNumberRe   = regexp.MustCompile(`[\d.,]+`)
	anyNumberRe    = regexp.MustCompile(`\d+(?:[.,]\d{1,2})?\b`)
	cleanAmountRe  = regexp.MustCompile(`[^\d.,-]`)
	currencySignRe = regexp.MustCompile(`[€$]`)
	textDateRe     = regexp.MustCompile(`(?i)(\d{1,2})\s+de\s+([a-z]+)\s+de\s+(\d{4})`)
	numericDateRe  = regexp.MustCompile(`(\d{1,2})[/-](\d{1,2})[/-](\d{2,4})`)
	noiseLineRe    = regexp.MustCompile(`(?i)factura|recibo|ticket|nota|cliente|pago|tel|dirección|email`)

	spanishMonths = map[string]int{
		"enero": 1, "febrero": 2, "marzo": 3, "abril": 4, "mayo": 5, "junio": 6,
		"julio": 7, "agosto": 8, "septiembre": 9, "octubre": 10, "noviembre": 11, "diciembre": 12,
	}
)

// ParseText applies the receipt heuristics to raw recognized text. Fields that
// cannot be detected are left nil so callers can fall back to their defaults.
func ParseText(text, defaultCurrency string) models.ExtractionResult {
	raw := text
	result := models.ExtractionResult{RawText: &raw}

	if amount, ok := detectAmount(text); ok {
		result.TotalAmount = &amount
	}

	currency := defaultCurrency
	if strings.Contains(text, "$") {
		currency = "USD"
	}
	result.Currency = &currency

	if date, ok := detectDate(text); ok {
		result.Date = &date
	}
	if vendor, ok := detectVendor(text); ok {
		result.VendorName = &vendor
	}
	return result
}

// Complete fills the fields missing from a caller-supplied result by parsing
// its raw text.
func Complete(r models.ExtractionResult, defaultCurrency string) models.ExtractionResult {
	if r.RawText == nil || strings.TrimSpace(*r.RawText) == "" {
		return r
	}
	parsed := ParseText(*r.RawText, defaultCurrency)
	if r.VendorName == nil {
		r.VendorName = parsed.VendorName
	}
	if r.TotalAmount == nil {
		r.TotalAmount = parsed.TotalAmount
	}
	if r.Currency == nil {
		r.Currency = parsed.Currency
	}
	if r.Date == nil {
		r.Date = parsed.Date
	}
	return r
}

// ParseAmount normalizes European (1.234,56) and US (1,234.56) number
// notations. A lone comma followed by exactly two digits is a decimal mark; a
// lone dot followed by exactly three digits is a thousands separator.
func ParseAmount(s string) (decimal.Decimal, bool) {
	clean := cleanAmountRe.ReplaceAllString(s, "")
	if clean == "" {
		return decimal.Zero, false
	}

	hasDot := strings.Contains(clean, ".")
	hasComma := strings.Contains(clean, ",")
	switch {
	case hasDot && hasComma:
		if strings.LastIndex(clean, ".") < strings.LastIndex(clean, ",") {
			clean = strings.Replace(strings.ReplaceAll(clean, ".", ""), ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	case hasComma:
		parts := strings.Split(clean, ",")
		if len(parts[len(parts)-1]) == 2 {
			clean = strings.Replace(clean, ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	case hasDot:
		parts := strings.Split(clean, ".")
		if len(parts[len(parts)-1]) == 3 {
			clean = strings.ReplaceAll(clean, ".", "")
		}
	}

	clean = leadingNumber(clean)
	if clean == "" {
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}

// leadingNumber keeps the longest numeric prefix, the way a lenient float
// parser would ("12.5.3" -> "12.5").
func leadingNumber(s string) string {
	end := 0
	seenDot := false
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			end = i + 1
		case r == '-' && i == 0:
		case r == '.' && !seenDot:
			seenDot = true
		default:
			return strings.TrimSuffix(s[:end], ".")
		}
	}
	return strings.TrimSuffix(s[:end], ".")
}

func detectAmount(text string) (decimal.Decimal, bool) {
	lines := strings.Split(text, "\n")

	for i := len(lines) - 1; i >= 0; i-- {
		upper := strings.ToUpper(lines[i])
		if !containsAny(upper, primaryKeywords) {
			continue
		}
		if v, ok := lastAmountOnLine(currencySignRe.ReplaceAllString(lines[i], " ")); ok {
			return v, true
		}
	}

	for i := len(lines) - 1; i >= 0; i-- {
		upper := strings.ToUpper(lines[i])
		if !containsAny(upper, secondaryKeywords) {
			continue
		}
		if v, ok := lastAmountOnLine(lines[i]); ok {
			return v, true
		}
	}

	var best decimal.Decimal
	found := false
	for _, raw := range anyNumberRe.FindAllString(text, -1) {
		v, ok := ParseAmount(raw)
		if !ok || !plausibleFallback(raw, v) {
			continue
		}
		if !found || v.GreaterThan(best) {
			best = v
			found = true
		}
	}
	return best, found
}

func lastAmountOnLine(line string) (decimal.Decimal, bool) {
	numbers := lineNumberRe.FindAllString(line, -1)
	for j := len(numbers) - 1; j >= 0; j-- {
		v, ok := ParseAmount(numbers[j])
		if ok && v.IsPositive() && v.LessThan(keywordLimit) {
			return v, true
		}
	}
	return decimal.Zero, false
}

// plausibleFallback drops bare years and five-digit postcodes.
func plausibleFallback(raw string, v decimal.Decimal) bool {
	punctuated := strings.ContainsAny(raw, ".,")
	if !punctuated {
		if v.GreaterThanOrEqual(decimal.NewFromInt(2000)) && v.LessThanOrEqual(decimal.NewFromInt(2030)) {
			return false
		}
		if len(raw) == 5 {
			return false
		}
	}
	return v.IsPositive() && v.LessThan(fallbackLimit)
}

func detectDate(text string) (string, bool) {
	if m := textDateRe.FindStringSubmatch(text); m != nil {
		if month, ok := spanishMonths[strings.ToLower(m[2])]; ok {
			return formatDate(m[3], month, m[1])
		}
		return "", false
	}
	if m := numericDateRe.FindStringSubmatch(text); m != nil {
		year := m[3]
		if len(year) == 2 {
			year = "20" + year
		}
		var month int
		if _, err := fmt.Sscanf(m[2], "%d", &month); err != nil {
			return "", false
		}
		return formatDate(year, month, m[1])
	}
	return "", false
}

// formatDate returns a YYYY-MM-DD string, rejecting impossible calendar dates.
func formatDate(year string, month int, day string) (string, bool) {
	var y, d int
	if _, err := fmt.Sscanf(year, "%d", &y); err != nil {
		return "", false
	}
	if _, err := fmt.Sscanf(day, "%d", &d); err != nil {
		return "", false
	}
	s := fmt.Sprintf("%04d-%02d-%02d", y, month, d)
	if _, err := time.Parse(dateLayout, s); err != nil {
		return "", false
	}
	return s, true
}

func detectVendor(text string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len([]rune(line)) <= 3 || noiseLineRe.MatchString(line) {
			continue
		}
		runes := []rune(line)
		if len(runes) > maxVendorLength {
			runes = runes[:maxVendorLength]
		}
		return string(runes), true
	}
	return "", false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

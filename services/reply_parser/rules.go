package reply_parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Rule is one named heuristic. Rules for a field are tried in order and the
// first one that yields a value wins.
type Rule[T any] struct {
	Name  string
	Apply func(text string) (T, bool)
}

const (
	RuleMoneyToken       = "money_token"
	RuleFactorRateLabel  = "factor_rate_label"
	RuleFactorRateSuffix = "factor_rate_suffix"
	RuleTermWithLabel    = "term_with_label"
	RuleTermMonths       = "term_months"
	RuleApplicationID    = "application_id_label"
	RuleLenderID         = "lender_id_label"
)

const uuidPattern = `([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})\b`

var (
	moneyTokenRe       = regexp.MustCompile(`(?i)(\$\s?)?(\d{1,3}(?:,\d{3})+|\d+)(\.\d+)?(\s*(?:usd|dollars)\b)?`)
	factorRateLabelRe  = regexp.MustCompile(`(?i)factor\s*rate\s*(?:of|is|at|=)?\s*:?\s*(\d+(?:[.,]\d+)?)`)
	factorRateSuffixRe = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*x?\s*factor(?:\s*rate)?\b`)
	termWithLabelRe    = regexp.MustCompile(`(?i)\b(\d{1,3})[\s-]*months?[\s-]+term\b`)
	termMonthsRe       = regexp.MustCompile(`(?i)\b(\d{1,3})[\s-]*months?\b`)
	applicationIDRe    = regexp.MustCompile(`(?i)application[\s_-]*id\s*[:#]?\s*` + uuidPattern)
	lenderIDRe         = regexp.MustCompile(`(?i)lender[\s_-]*id\s*[:#]?\s*` + uuidPattern)
)

func DefaultAmountRules() []Rule[float64] {
	return []Rule[float64]{
		{Name: RuleMoneyToken, Apply: matchMoneyToken},
	}
}

func DefaultFactorRateRules() []Rule[float64] {
	return []Rule[float64]{
		{Name: RuleFactorRateLabel, Apply: decimalRule(factorRateLabelRe)},
		{Name: RuleFactorRateSuffix, Apply: decimalRule(factorRateSuffixRe)},
	}
}

func DefaultTermRules() []Rule[string] {
	return []Rule[string]{
		{Name: RuleTermWithLabel, Apply: monthsRule(termWithLabelRe)},
		{Name: RuleTermMonths, Apply: monthsRule(termMonthsRe)},
	}
}

func DefaultApplicationIDRules() []Rule[string] {
	return []Rule[string]{
		{Name: RuleApplicationID, Apply: uuidRule(applicationIDRe)},
	}
}

func DefaultLenderIDRules() []Rule[string] {
	return []Rule[string]{
		{Name: RuleLenderID, Apply: uuidRule(lenderIDRe)},
	}
}

// matchMoneyToken returns the first "$"-prefixed, comma-grouped or 4+ digit
// number. Numbers glued to letters or hyphens are UUID or reference fragments
// and are passed over. Only the first money token counts: a zero amount means
// no amount, not a search for a later one.
func matchMoneyToken(text string) (float64, bool) {
	for _, m := range moneyTokenRe.FindAllStringSubmatchIndex(text, -1) {
		hasDollar := m[2] >= 0
		intPart := text[m[4]:m[5]]
		grouped := strings.Contains(intPart, ",")

		if !hasDollar && !grouped && len(intPart) < 4 {
			continue
		}
		if !hasDollar && m[0] > 0 && gluedBefore(text[:m[0]]) {
			continue
		}
		if m[1] < len(text) && gluedAfter(text[m[1]:]) {
			continue
		}

		number := strings.ReplaceAll(intPart, ",", "")
		if m[6] >= 0 {
			number += text[m[6]:m[7]]
		}
		value, err := strconv.ParseFloat(number, 64)
		if err != nil || !validPositive(value) {
			return 0, false
		}
		return value, true
	}
	return 0, false
}

func gluedBefore(prefix string) bool {
	r := lastRune(prefix)
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '/' || r == '.' || r == ','
}

func gluedAfter(suffix string) bool {
	r := []rune(suffix[:min(len(suffix), 4)])
	if len(r) == 0 {
		return false
	}
	return unicode.IsLetter(r[0]) || r[0] == '-' || r[0] == '/'
}

func lastRune(s string) rune {
	runes := []rune(s)
	if len(runes) == 0 {
		return 0
	}
	return runes[len(runes)-1]
}

func decimalRule(re *regexp.Regexp) func(string) (float64, bool) {
	return func(text string) (float64, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return 0, false
		}
		value, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
		if err != nil || !validPositive(value) {
			return 0, false
		}
		return value, true
	}
}

func monthsRule(re *regexp.Regexp) func(string) (string, bool) {
	return func(text string) (string, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return "", false
		}
		return strconv.Itoa(n) + " months", true
	}
}

func uuidRule(re *regexp.Regexp) func(string) (string, bool) {
	return func(text string) (string, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		id, err := uuid.Parse(m[1])
		if err != nil {
			return "", false
		}
		return id.String(), true
	}
}

func validPositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

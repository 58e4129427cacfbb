package pipeline

import (
	"regexp"
	"sort"
	"strings"

	"chatcommerce/internal/catalog"
)

// Price anti-hallucination check: a reply that states an FCFA amount
// the catalog cannot justify misleads the customer. This is a
// heuristic classifier, permissive on purpose: a missed hallucination
// costs less than blocking a truthful reply. Issues are logged and
// counted, never alter the reply.

const (
	minPriceMention = 50
	issueSampleSize = 20
)

// commonQuantities are the order sizes whose multiples of a unit
// price are accepted as stated totals.
var commonQuantities = []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 12, 15, 20, 24, 25, 30, 36, 40, 50, 60, 70, 76, 80, 90, 100}

var pricePattern = regexp.MustCompile(`(?i)(?:^|[\s\-:;=×x*])([\d\s.]+)\s*(?:FCFA|CFA|francs?)`)

// PriceIssue is one unexplainable amount found in a reply, with a
// sample of the accepted prices for diagnostics.
type PriceIssue struct {
	MentionedPrice int
	ValidPrices    []int
}

type IntegrityReport struct {
	Valid  bool
	Issues []PriceIssue
}

// VerifyReplyIntegrity decides whether every currency amount in reply
// is explainable by the catalog: a base price, an option price, a
// base+supplement combination, a common-quantity multiple of any of
// those (exact or within a 5% band), or a running sum of subtotals
// already present in the same reply.
func VerifyReplyIntegrity(reply string, cat *catalog.Catalog) IntegrityReport {
	if reply == "" || cat == nil || len(cat.Items) == 0 {
		return IntegrityReport{Valid: true}
	}

	mentioned := extractAmounts(reply)
	if len(mentioned) == 0 {
		return IntegrityReport{Valid: true}
	}

	validSet := make(map[int]struct{})
	var unitPrices []int

	addValid := func(p int) {
		if p > 0 {
			validSet[p] = struct{}{}
		}
	}
	addUnit := func(p int) {
		if p > 0 {
			addValid(p)
			unitPrices = append(unitPrices, p)
		}
	}

	for _, it := range cat.Items {
		base := 0
		if it.BasePrice != nil {
			base = *it.BasePrice
		}
		addUnit(base)

		for _, g := range it.Groups {
			for _, opt := range g.Options {
				addUnit(opt.Price)
				if g.Kind == catalog.KindAdditive && base > 0 && opt.Price > 0 {
					addUnit(base + opt.Price)
				}
			}
		}
	}

	for _, unit := range unitPrices {
		for _, qty := range commonQuantities {
			addValid(unit * qty)
		}
	}

	// A displayed order total is the sum of line subtotals already in
	// the reply, so every cumulative running sum over the mentioned
	// amounts is accepted. Same extraction as the mentions themselves,
	// so grouped thousands ("19 000") sum correctly.
	if len(mentioned) > 1 {
		running := 0
		for _, st := range mentioned {
			running += st
			addValid(running)
		}
	}

	var issues []PriceIssue
	for _, price := range mentioned {
		if explainable(price, validSet) {
			continue
		}
		issues = append(issues, PriceIssue{
			MentionedPrice: price,
			ValidPrices:    sampleValid(validSet),
		})
	}

	return IntegrityReport{Valid: len(issues) == 0, Issues: issues}
}

func explainable(price int, validSet map[int]struct{}) bool {
	if _, ok := validSet[price]; ok {
		return true
	}
	// 5% of the stated amount, 10 FCFA floor, absorbs rounding in the
	// model's arithmetic.
	tolerance := price * 5 / 100
	if tolerance < 10 {
		tolerance = 10
	}
	for candidate := range validSet {
		if abs(price-candidate) <= tolerance {
			return true
		}
	}
	return false
}

// extractAmounts pulls integer amounts tagged with a currency token,
// dropping anything under the mention threshold (quantities, phone
// fragments).
func extractAmounts(text string) []int {
	var amounts []int
	for _, m := range pricePattern.FindAllStringSubmatch(text, -1) {
		if v, ok := parseAmount(m[1]); ok && v >= minPriceMention {
			amounts = append(amounts, v)
		}
	}
	return amounts
}

// parseAmount reads the leading digit run after stripping spaces, so
// "15 000" parses as 15000 while "15.000" parses as 15 and gets
// filtered by the threshold.
func parseAmount(s string) (int, bool) {
	s = strings.ReplaceAll(s, " ", "")
	n := 0
	digits := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
		digits++
		if digits > 12 {
			return 0, false
		}
	}
	return n, digits > 0
}

func sampleValid(validSet map[int]struct{}) []int {
	all := make([]int, 0, len(validSet))
	for p := range validSet {
		all = append(all, p)
	}
	sort.Ints(all)
	if len(all) > issueSampleSize {
		all = all[:issueSampleSize]
	}
	return all
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

package reconciliation

import (
	"fmt"
	"math"
	"sort"
	"strings"

	levenshtein "github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/fatflowers/rentpay/internal/models"
	"github.com/fatflowers/rentpay/internal/platform/mpesa"
)

const (
	scoreUnitExact      = 95
	scorePhone          = 85
	scoreCorroboration  = 5
	scoreNameMin        = 40
	scoreNameMax        = 60
	phoneCompareDigits  = 9
	defaultNameMinRatio = 0.6
)

// unit substitution cost keeps the distance within [0, longest]
var unitCostOptions = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

type MatchRule string

const (
	MatchRuleUnit  MatchRule = "unit"
	MatchRulePhone MatchRule = "phone"
	MatchRuleName  MatchRule = "name"
)

// Candidate is one tenant the payment may belong to.
type Candidate struct {
	Tenant     *models.TenantUnitView `json:"-"`
	TenantID   string                 `json:"tenant_id"`
	TenantName string                 `json:"tenant_name"`
	Confidence int                    `json:"confidence"`
	Rule       MatchRule              `json:"rule"`
	Reason     string                 `json:"reason"`
}

// Scorer ranks tenants for a payment. The amount never affects confidence.
type Scorer struct {
	// NameSimilarityMin is the lowest similarity counted as a name match.
	NameSimilarityMin float64
}

// Score returns candidates with confidence > 0, highest first. Ties keep
// tenant order.
func (s Scorer) Score(txn *models.PaymentTransaction, parts ReferenceParts, tenants []*models.TenantUnitView) []Candidate {
	minSim := s.NameSimilarityMin
	if minSim <= 0 || minSim >= 1 {
		minSim = defaultNameMinRatio
	}
	out := make([]Candidate, 0)
	for _, t := range tenants {
		c, ok := scoreTenant(txn, parts, t, minSim)
		if ok {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func scoreTenant(txn *models.PaymentTransaction, parts ReferenceParts, t *models.TenantUnitView, minSim float64) (Candidate, bool) {
	c := Candidate{Tenant: t, TenantID: t.ID, TenantName: t.FullName}
	phone := phoneMatches(txn.PhoneNumber, t.Phone)
	sim := nameSimilarity([]string{parts.TenantName, txn.PayerName}, t.FullName)
	nameHit := sim >= minSim

	switch {
	case unitMatches(parts.UnitNumber, t.UnitNumber):
		c.Rule, c.Confidence = MatchRuleUnit, scoreUnitExact
		c.Reason = fmt.Sprintf("unit %s", t.UnitNumber)
		if phone {
			c.Confidence += scoreCorroboration
			c.Reason += ", phone"
		}
	case phone:
		c.Rule, c.Confidence = MatchRulePhone, scorePhone
		c.Reason = "phone"
		if nameHit {
			c.Confidence += scoreCorroboration
			c.Reason += fmt.Sprintf(", name %.2f", sim)
		}
	case nameHit:
		c.Rule = MatchRuleName
		c.Confidence = nameScore(sim, minSim)
		c.Reason = fmt.Sprintf("name %.2f", sim)
	default:
		return c, false
	}
	if c.Confidence > 100 {
		c.Confidence = 100
	}
	return c, true
}

func unitMatches(fragment, unit string) bool {
	fragment, unit = strings.TrimSpace(fragment), strings.TrimSpace(unit)
	return fragment != "" && unit != "" && strings.EqualFold(fragment, unit)
}

func phoneMatches(a, b string) bool {
	sa, sb := mpesa.PhoneSuffix(a, phoneCompareDigits), mpesa.PhoneSuffix(b, phoneCompareDigits)
	return len(sa) == phoneCompareDigits && sa == sb
}

// nameScore maps similarity in [minSim, 1] linearly onto [40, 60].
func nameScore(sim, minSim float64) int {
	if sim >= 1 {
		return scoreNameMax
	}
	frac := (sim - minSim) / (1 - minSim)
	return scoreNameMin + int(math.Round(frac*float64(scoreNameMax-scoreNameMin)))
}

// nameSimilarity is the best normalized Levenshtein similarity between any
// fragment and either the full name or one of its tokens.
func nameSimilarity(fragments []string, fullName string) float64 {
	full := normalizeName(fullName)
	if full == "" {
		return 0
	}
	targets := append([]string{full}, strings.Fields(full)...)
	best := 0.0
	for _, f := range fragments {
		f = normalizeName(f)
		if len(f) < 2 {
			continue
		}
		for _, t := range targets {
			if sim := similarity(f, t); sim > best {
				best = sim
			}
		}
	}
	return best
}

func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 0
	}
	d := levenshtein.DistanceForStrings(ra, rb, unitCostOptions)
	return 1 - float64(d)/float64(longest)
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Ambiguous reports whether the top two candidates tie.
func Ambiguous(cands []Candidate) bool {
	return len(cands) > 1 && cands[0].Confidence == cands[1].Confidence
}

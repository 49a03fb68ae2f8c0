package core

import (
	"strings"
)

// defaultDomainTable maps well-known sending domains straight to a
// category, bypassing probabilistic scoring entirely.
var defaultDomainTable = map[string]Category{
	"amazon.com":       CategoryTransactional,
	"stripe.com":       CategoryTransactional,
	"paypal.com":       CategoryTransactional,
	"substack.com":     CategorySubscription,
	"medium.com":       CategorySubscription,
	"linkedin.com":     CategoryPromotion,
	"facebookmail.com": CategoryPromotion,
	"twitter.com":      CategoryPromotion,
}

var (
	transactionalKeywords = []string{"receipt", "invoice", "order", "confirmation", "otp", "bill", "statement"}
	promoKeywords         = []string{"sale", "discount", "off", "limited time", "price", "deal", "offer", "exclusive"}
)

// tieBreakOrder is the fixed enumeration order used to pick a winner
// among equal scores. Earlier entries win ties.
var tieBreakOrder = []Category{
	CategoryTransactional,
	CategoryPromotion,
	CategorySubscription,
	CategoryPersonal,
}

// RuleClassifier classifies a detection event without any I/O. Identical
// input always yields identical output.
type RuleClassifier struct {
	domainTable map[string]Category
}

// NewRuleClassifier creates a rule classifier. Entries in extraDomains
// are merged over the built-in domain table, so deployments can extend
// or override individual mappings through configuration.
func NewRuleClassifier(extraDomains map[string]Category) *RuleClassifier {
	table := make(map[string]Category, len(defaultDomainTable)+len(extraDomains))
	for d, c := range defaultDomainTable {
		table[d] = c
	}
	for d, c := range extraDomains {
		table[strings.ToLower(strings.TrimSpace(d))] = c
	}
	return &RuleClassifier{domainTable: table}
}

type features struct {
	hasUnsubscribe   bool
	hasPromo         bool
	hasTransactional bool
	contentLength    int
}

func extractFeatures(event *Event) features {
	content := strings.ToLower(event.Subject + " " + event.Body)
	return features{
		hasUnsubscribe:   strings.Contains(content, "unsubscribe") || strings.Contains(content, "opt out"),
		hasPromo:         containsAny(content, promoKeywords),
		hasTransactional: containsAny(content, transactionalKeywords),
		contentLength:    len(content),
	}
}

func containsAny(content string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(content, kw) {
			return true
		}
	}
	return false
}

// Classify determines the category of a detection event. Rules apply in
// priority order: domain table, unsubscribe header, probabilistic scoring.
func (c *RuleClassifier) Classify(event *Event) Category {
	if domain := strings.ToLower(DomainOf(event.Sender)); domain != "" {
		if category, ok := c.domainTable[domain]; ok {
			return category
		}
	}

	if hasListUnsubscribeHeader(event.Headers) {
		return CategorySubscription
	}

	return c.score(extractFeatures(event))
}

// hasListUnsubscribeHeader matches the List-Unsubscribe header name
// case-insensitively; header casing is not reliable across providers.
func hasListUnsubscribeHeader(headers map[string]string) bool {
	for name := range headers {
		if strings.EqualFold(name, "List-Unsubscribe") {
			return true
		}
	}
	return false
}

// score runs the probabilistic fallback: fixed priors plus additive
// feature adjustments, argmax resolved by tieBreakOrder.
func (c *RuleClassifier) score(f features) Category {
	scores := map[Category]float64{
		CategoryTransactional: 0.1,
		CategoryPromotion:     0.1,
		CategorySubscription:  0.1,
		CategoryPersonal:      0.7,
	}

	if f.hasUnsubscribe {
		scores[CategorySubscription] += 0.4
		scores[CategoryPromotion] += 0.2
		scores[CategoryPersonal] -= 0.3
	}
	if f.hasPromo {
		scores[CategoryPromotion] += 0.5
	}
	if f.hasTransactional {
		scores[CategoryTransactional] += 0.5
	}
	if f.contentLength > 500 {
		scores[CategorySubscription] += 0.2
	}

	winner := tieBreakOrder[0]
	for _, category := range tieBreakOrder[1:] {
		if scores[category] > scores[winner] {
			winner = category
		}
	}
	return winner
}

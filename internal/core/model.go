package core

import (
	"strings"
	"time"
)

// Category is the classification assigned to a message or sender.
type Category string

const (
	CategoryPersonal      Category = "Personal"
	CategoryWork          Category = "Work"
	CategoryTransactional Category = "Transactional"
	CategorySubscription  Category = "Subscription"
	CategoryPromotion     Category = "Promotion"
	CategorySpam          Category = "Spam"
)

// Categories lists every known category.
var Categories = []Category{
	CategoryPersonal,
	CategoryWork,
	CategoryTransactional,
	CategorySubscription,
	CategoryPromotion,
	CategorySpam,
}

// ParseCategory matches a string against the known categories,
// ignoring case. The second return value is false for unknown input.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return "", false
}

// Action is a user-initiated action on a sender.
type Action string

const (
	ActionUnsubscribe Action = "UNSUBSCRIBE"
	ActionDelete      Action = "DELETE"
)

// ParseAction matches a string against the known actions.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToUpper(s)) {
	case ActionUnsubscribe:
		return ActionUnsubscribe, true
	case ActionDelete:
		return ActionDelete, true
	}
	return "", false
}

// Event is one observed message: a detection event emitted by the
// scraping front end, one per message row.
type Event struct {
	Sender  string            `json:"sender"`
	Subject string            `json:"subject"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// RemoteResult is the parsed response of the remote classification service.
type RemoteResult struct {
	Purpose    Category `json:"purpose"`
	Topic      string   `json:"topic"`
	SenderType string   `json:"sender_type"`
	Confidence float64  `json:"confidence"`
}

// SenderProfile is the durable reputation record for one sender address.
// Email is the primary key. Counters never decrease; classification
// fields hold their zero values until the first event is processed.
type SenderProfile struct {
	Email           string    `json:"email"`
	Domain          string    `json:"domain"`
	TotalReceived   int64     `json:"totalReceived"`
	Opened          int64     `json:"opened"`
	Deleted         int64     `json:"deleted"`
	LastInteraction time.Time `json:"lastInteraction"`
	Classification  Category  `json:"classification,omitempty"`
	Purpose         string    `json:"purpose,omitempty"`
	Topic           string    `json:"topic,omitempty"`
	SenderType      string    `json:"sender_type,omitempty"`
	Confidence      float64   `json:"confidence"`
	UserOverride    Category  `json:"userOverride,omitempty"`
	LastAction      Action    `json:"lastAction,omitempty"`
	Unsubscribed    bool      `json:"unsubscribed,omitempty"`
}

// NewDefaultProfile materializes the implicit default profile for an
// address that has never been stored: all counters zero, classification
// fields unset. The domain is derived from the portion after "@"; a
// malformed address yields an empty domain.
func NewDefaultProfile(email string) *SenderProfile {
	return &SenderProfile{
		Email:  email,
		Domain: DomainOf(email),
	}
}

// DomainOf extracts the domain part of an address, or "" if there is none.
func DomainOf(email string) string {
	if i := strings.Index(email, "@"); i >= 0 && i < len(email)-1 {
		return email[i+1:]
	}
	return ""
}

// StatsSnapshot holds the process-wide usage counters. Both values are
// monotonically non-decreasing; SendersGrouped counts first sightings.
type StatsSnapshot struct {
	EmailsAnalyzed int64 `json:"emailsAnalyzed"`
	SendersGrouped int64 `json:"sendersGrouped"`
}

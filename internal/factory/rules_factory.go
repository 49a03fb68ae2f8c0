package factory

import (
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
	"go.uber.org/zap"
)

// RulesFactory creates the rule classifier
type RulesFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewRulesFactory creates a new rules factory
func NewRulesFactory(cfg *config.Config, logger *zap.Logger) *RulesFactory {
	return &RulesFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateRuleClassifier creates the rule classifier with any configured
// domain table extensions merged over the built-in mappings. Entries
// with an unknown category are skipped rather than failing startup.
func (f *RulesFactory) CreateRuleClassifier() *core.RuleClassifier {
	raw := f.cfg.GetStringMapString("rules.domain_table")
	extra := make(map[string]core.Category, len(raw))
	for domain, name := range raw {
		category, ok := core.ParseCategory(name)
		if !ok {
			f.logger.Warn("Skipping domain table entry with unknown category",
				zap.String("domain", domain),
				zap.String("category", name))
			continue
		}
		extra[domain] = category
	}

	if len(extra) > 0 {
		f.logger.Info("Extended domain table from configuration",
			zap.Int("entries", len(extra)))
	}
	return core.NewRuleClassifier(extra)
}

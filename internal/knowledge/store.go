package knowledge

import (
	"log"
	"strings"
	"sync/atomic"

	"github.com/AlexanderModestov/aiassistant/internal/store"
)

// Store is the in-memory cache of approved rules and aliases. The durable
// records live in SQLite; this cache is rebuilt from them on every Load.
//
// The whole snapshot is swapped atomically, so readers always see a
// consistent point-in-time rule set even while a reload is in flight.
type Store struct {
	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	rules   []store.Rule
	aliases []store.Alias
}

func NewStore() *Store {
	s := &Store{}
	s.snap.Store(&snapshot{})
	return s
}

// Load replaces the cached rules and aliases with fresh data.
func (s *Store) Load(rules []store.Rule, aliases []store.Alias) {
	s.snap.Store(&snapshot{rules: rules, aliases: aliases})
	log.Printf("KnowledgeStore loaded: %d rules, %d aliases", len(rules), len(aliases))
}

// FindRules returns every rule with at least one keyword occurring as a
// case-insensitive substring of the question, in load order. Substring
// matching can over-match (a keyword inside an unrelated word); that is the
// intended tradeoff, not something to paper over here.
func (s *Store) FindRules(question string) []store.Rule {
	questionLower := strings.ToLower(question)
	var matched []store.Rule
	for _, rule := range s.snap.Load().rules {
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(questionLower, strings.ToLower(kw)) {
				matched = append(matched, rule)
				break
			}
		}
	}
	return matched
}

// FindAlias returns the first alias (in load order) whose alias text occurs
// as a case-insensitive substring of the question, or nil. First match wins;
// this is not a best-match search.
func (s *Store) FindAlias(question string) *store.Alias {
	questionLower := strings.ToLower(question)
	for _, alias := range s.snap.Load().aliases {
		if strings.Contains(questionLower, strings.ToLower(alias.Alias)) {
			a := alias
			return &a
		}
	}
	return nil
}

// FormatRulesForPrompt renders matched rules as a prompt section.
func FormatRulesForPrompt(rules []store.Rule) string {
	if len(rules) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Правила из опыта")
	for _, rule := range rules {
		b.WriteString("\n- ")
		b.WriteString(rule.RuleText)
	}
	return b.String()
}

// FormatAliasHint renders an alias as a one-line prompt hint.
func FormatAliasHint(alias *store.Alias) string {
	return "Подсказка: \"" + alias.Alias + "\" = \"" + alias.CanonicalName + "\" в базе данных."
}

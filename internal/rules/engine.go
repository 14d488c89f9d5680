// Package rules implements the interaction rule engine: a catalog of
// multi-condition combination rules evaluated against the ingredient and
// additive tokens of one product.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/foodscan/foodscan/internal/additive"
	"github.com/foodscan/foodscan/internal/domain"
)

// Engine evaluates the loaded interaction rule catalog. Rules are compiled
// once at load time; evaluation never mutates shared state, so any number
// of requests may evaluate concurrently.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled []*CompiledRule
	logger   *slog.Logger
}

// CompiledRule pairs a rule with its compiled conditions. Catalog order is
// preserved for deterministic tie-breaking.
type CompiledRule struct {
	Rule       *domain.InteractionRule
	conditions []compiledCondition
}

// compiledCondition is one ready-to-evaluate condition. For pattern
// conditions exactly one of re/substr is used; for aggregate conditions
// program is non-nil unless the expression failed to compile, in which
// case the condition is unsatisfiable.
type compiledCondition struct {
	kind    domain.ConditionKind
	pattern string
	re      *regexp.Regexp
	substr  string
	program cel.Program
}

// NewEngine creates an engine with an empty catalog.
func NewEngine(logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	env, err := cel.NewEnv(
		cel.Variable("sweetener_count", cel.IntType),
		cel.Variable("sugar_count", cel.IntType),
		cel.Variable("fat_count", cel.IntType),
		cel.Variable("item_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:    env,
		logger: logger,
	}, nil
}

// NewCondition classifies a stored pattern string: the "group:" prefix
// marks a named aggregate predicate, anything else is a per-item pattern.
func NewCondition(pattern string) domain.RuleCondition {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(pattern)), "group:") {
		return domain.RuleCondition{Kind: domain.ConditionAggregate, Pattern: strings.TrimSpace(pattern)}
	}
	return domain.RuleCondition{Kind: domain.ConditionPattern, Pattern: pattern}
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(rule *domain.InteractionRule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}
	if rule.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	_, err := e.compileRuleStrict(rule, true)
	return err
}

// LoadRule compiles a rule and appends it to the catalog, replacing any
// previously loaded rule with the same id in place.
func (e *Engine) LoadRule(rule *domain.InteractionRule) error {
	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i, existing := range e.compiled {
		if existing.Rule.ID == rule.ID {
			e.compiled[i] = compiled
			return nil
		}
	}
	e.compiled = append(e.compiled, compiled)
	return nil
}

// LoadRules compiles and loads the enabled rules in catalog order.
func (e *Engine) LoadRules(rulesIn []*domain.InteractionRule) error {
	for _, rule := range rulesIn {
		if !rule.Enabled {
			continue
		}
		if err := e.LoadRule(rule); err != nil {
			return err
		}
	}
	return nil
}

// ReloadRules atomically replaces the whole catalog. Either every enabled
// rule compiles and the new catalog becomes visible, or the old catalog
// stays in place.
func (e *Engine) ReloadRules(rulesIn []*domain.InteractionRule) error {
	fresh := make([]*CompiledRule, 0, len(rulesIn))
	for _, rule := range rulesIn {
		if !rule.Enabled {
			continue
		}
		compiled, err := e.compileRule(rule)
		if err != nil {
			return err
		}
		fresh = append(fresh, compiled)
	}

	e.mu.Lock()
	e.compiled = fresh
	e.mu.Unlock()
	return nil
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// GetLoadedRules returns the loaded rules in catalog order.
func (e *Engine) GetLoadedRules() []*domain.InteractionRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.InteractionRule, 0, len(e.compiled))
	for _, c := range e.compiled {
		out = append(out, c.Rule)
	}
	return out
}

// Close clears the catalog.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = nil
	return nil
}

// Evaluate matches every loaded rule against the given item tokens and
// returns the fired matches sorted by severity, most severe first, with
// catalog order breaking ties. An empty catalog or empty item list yields
// an empty result, never an error.
func (e *Engine) Evaluate(ctx context.Context, items []string) []domain.Match {
	e.mu.RLock()
	catalog := e.compiled
	e.mu.RUnlock()

	deduped := dedupeItems(items)
	if len(catalog) == 0 || len(deduped) == 0 {
		return nil
	}

	tokens := make([][]string, len(deduped))
	for i, item := range deduped {
		tokens[i] = expandItem(item)
	}

	activation := countItems(deduped).activation()

	var matches []domain.Match
	for _, rule := range catalog {
		if ctx.Err() != nil {
			break
		}
		if m, ok := e.evaluateRule(rule, deduped, tokens, activation); ok {
			matches = append(matches, m)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return domain.SeverityRank(matches[i].Severity) > domain.SeverityRank(matches[j].Severity)
	})
	return matches
}

// evaluateRule checks whether every condition of one rule is satisfied.
// Pattern conditions are assigned distinct items; aggregate conditions are
// answered from the whole-list counts, before any per-item matching.
func (e *Engine) evaluateRule(rule *CompiledRule, items []string, tokens [][]string, activation map[string]any) (domain.Match, bool) {
	if len(rule.conditions) == 0 {
		return domain.Match{}, false
	}

	matchedOn := make(map[string]string, len(rule.conditions))

	var patterns []compiledCondition
	for _, cond := range rule.conditions {
		if cond.kind == domain.ConditionAggregate {
			if cond.program == nil {
				return domain.Match{}, false
			}
			out, _, err := cond.program.Eval(activation)
			if err != nil {
				return domain.Match{}, false
			}
			if b, ok := out.(types.Bool); !ok || !bool(b) {
				return domain.Match{}, false
			}
			matchedOn[cond.pattern] = aggregateEvidence(cond.pattern, activation)
			continue
		}
		patterns = append(patterns, cond)
	}

	// Per-condition candidate item indexes, input order.
	candidates := make([][]int, len(patterns))
	for ci, cond := range patterns {
		for ii, toks := range tokens {
			if cond.matchesAny(toks) {
				candidates[ci] = append(candidates[ci], ii)
			}
		}
		if len(candidates[ci]) == 0 {
			return domain.Match{}, false
		}
	}

	assignment := assignDistinct(candidates)
	if assignment == nil {
		return domain.Match{}, false
	}

	itemSet := make(map[int]struct{}, len(assignment))
	for ci, cond := range patterns {
		matchedOn[cond.pattern] = items[assignment[ci]]
		itemSet[assignment[ci]] = struct{}{}
	}

	matchedItems := make([]string, 0, len(itemSet))
	for ii := range tokens {
		if _, ok := itemSet[ii]; ok {
			matchedItems = append(matchedItems, items[ii])
		}
	}

	weight := rule.Rule.Weight
	if weight < 0 {
		weight = 0
	}

	severity := strings.ToLower(strings.TrimSpace(rule.Rule.Severity))
	switch severity {
	case domain.SeverityHigh, domain.SeverityMedium, domain.SeverityLow, domain.SeverityInfo:
	default:
		severity = domain.SeverityFromWeight(weight)
	}

	return domain.Match{
		RuleID:       rule.Rule.ID,
		Title:        rule.Rule.Title,
		Severity:     severity,
		Weight:       weight,
		MatchedItems: matchedItems,
		MatchedOn:    matchedOn,
		Rationale:    rule.Rule.Rationale,
		Guidance:     rule.Rule.Guidance,
		Sources:      dedupeSources(rule.Rule.Sources),
	}, true
}

// assignDistinct finds the first assignment of a distinct item index to
// every condition, trying candidates in input order. Returns nil when no
// such assignment exists, e.g. a single item matching both slots of a
// two-ingredient rule.
func assignDistinct(candidates [][]int) []int {
	assignment := make([]int, len(candidates))
	used := make(map[int]struct{}, len(candidates))

	var try func(ci int) bool
	try = func(ci int) bool {
		if ci == len(candidates) {
			return true
		}
		for _, ii := range candidates[ci] {
			if _, taken := used[ii]; taken {
				continue
			}
			used[ii] = struct{}{}
			assignment[ci] = ii
			if try(ci + 1) {
				return true
			}
			delete(used, ii)
		}
		return false
	}

	if !try(0) {
		return nil
	}
	return assignment
}

// compileRule tolerates bad aggregate expressions so one corrupt catalog
// row cannot block a reload; validation uses the strict variant instead.
func (e *Engine) compileRule(rule *domain.InteractionRule) (*CompiledRule, error) {
	return e.compileRuleStrict(rule, false)
}

func (e *Engine) compileRuleStrict(rule *domain.InteractionRule, strict bool) (*CompiledRule, error) {
	compiled := &CompiledRule{
		Rule:       rule,
		conditions: make([]compiledCondition, 0, len(rule.Conditions)),
	}

	for _, cond := range rule.Conditions {
		pattern := strings.TrimSpace(cond.Pattern)
		if pattern == "" {
			continue
		}

		cc := compiledCondition{kind: cond.Kind, pattern: pattern}
		switch cond.Kind {
		case domain.ConditionAggregate:
			expr, ok := aggregateExpressions[strings.ToLower(pattern)]
			if !ok {
				// Free-form aggregate expressions are compiled directly
				// over the count variables.
				expr = pattern
			}
			program, err := e.compileAggregate(rule.ID, expr)
			if err != nil {
				if strict {
					return nil, err
				}
				// One bad aggregate makes its rule inert, never the
				// whole catalog.
				e.logger.Warn("aggregate condition does not compile, rule will never fire",
					"rule_id", rule.ID, "pattern", pattern, "error", err)
			}
			cc.program = program
		default:
			re, err := regexp.Compile("(?i)" + pattern)
			if err != nil {
				cc.substr = strings.ToLower(pattern)
			} else {
				cc.re = re
			}
		}
		compiled.conditions = append(compiled.conditions, cc)
	}

	return compiled, nil
}

func (e *Engine) compileAggregate(ruleID, expr string) (cel.Program, error) {
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("rule %s: %w", ruleID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: aggregate expression must return bool, got %s", ruleID, ast.OutputType())
	}
	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", ruleID, err)
	}
	return program, nil
}

// matchesAny reports whether the condition matches any expanded token of
// one item.
func (c compiledCondition) matchesAny(tokens []string) bool {
	for _, tok := range tokens {
		if c.re != nil {
			if c.re.MatchString(tok) {
				return true
			}
			continue
		}
		if c.substr != "" && strings.Contains(strings.ToLower(tok), c.substr) {
			return true
		}
	}
	return false
}

// expandItem widens one item for pattern matching: an E-number variant
// also exposes its family base, so a pattern written as "E322" still
// matches an input of "E322I".
func expandItem(item string) []string {
	tokens := []string{item}
	canonical, ok := additive.Normalize(item)
	if !ok {
		return tokens
	}
	if canonical != item {
		tokens = append(tokens, canonical)
	}
	if base := "E" + additive.DigitsOf(canonical); base != canonical && base != "E" {
		tokens = append(tokens, base)
	}
	return tokens
}

// dedupeItems trims, drops empties, and deduplicates case-insensitively
// while preserving input order and original spelling.
func dedupeItems(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		s := strings.TrimSpace(item)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

func dedupeSources(sources []domain.EvidenceSource) []domain.EvidenceSource {
	if len(sources) == 0 {
		return nil
	}
	out := make([]domain.EvidenceSource, 0, len(sources))
	seen := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		key := src.ID
		if key == "" {
			key = src.URL
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, src)
	}
	return out
}

// aggregateEvidence renders the satisfied counts for MatchedOn, e.g.
// "sweetener_count=2".
func aggregateEvidence(pattern string, activation map[string]any) string {
	switch strings.ToLower(pattern) {
	case "group:intense_sweeteners":
		return fmt.Sprintf("sweetener_count=%d", activation["sweetener_count"])
	case "group:sugar_fat":
		return fmt.Sprintf("sugar_count=%d fat_count=%d", activation["sugar_count"], activation["fat_count"])
	default:
		return pattern
	}
}

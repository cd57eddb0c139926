// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package text2cypher

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/AleutianAI/text2cypher/services/schema"
)

// =============================================================================
// Patterns
// =============================================================================

var (
	stringLiteral = regexp.MustCompile(`'(?:[^'\\]|\\.)*'|"(?:[^"\\]|\\.)*"`)

	nodePatternRe = regexp.MustCompile("^\\(\\s*([A-Za-z_][A-Za-z0-9_]*)?\\s*((?::\\s*`?[A-Za-z_][A-Za-z0-9_]*`?\\s*)*)(\\{[^{}]*\\})?\\s*\\)")
	relPatternRe  = regexp.MustCompile(`(<)?-\s*\[([^\[\]]*)\]\s*-(>)?`)
	relInnerRe    = regexp.MustCompile(`(?s)^\s*([A-Za-z_][A-Za-z0-9_]*)?\s*(?::\s*([^{*]*?))?\s*(\*[^{]*)?\s*(\{.*\})?\s*$`)
	bareRelRe     = regexp.MustCompile(`\)\s*(<)?--(>)?\s*\(`)
	quantifiedRe  = regexp.MustCompile(`\)\s*\{\s*\d*\s*(?:,\s*\d*\s*)?\}`)
	mapKeyRe      = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\s*:`)

	writeClauseRe = regexp.MustCompile(`(?i)(?:^|[^\w.])(CREATE|MERGE|DELETE|DETACH|SET|REMOVE|DROP|FOREACH|LOAD\s+CSV)\b`)
	propRefRe     = regexp.MustCompile(`(?:^|[^\w.$])([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)`)
	whereRe       = regexp.MustCompile(`(?is)\bWHERE\b(.*?)(?:\bRETURN\b|\bWITH\b|\bOPTIONAL\s+MATCH\b|\bMATCH\b|\bORDER\s+BY\b|\bUNWIND\b|\bSKIP\b|\bLIMIT\b|$)`)
	returnRe      = regexp.MustCompile(`(?is)\bRETURN\b(.*?)(?:\bORDER\s+BY\b|\bSKIP\b|\bLIMIT\b|$)`)
	returnTokenRe = regexp.MustCompile(`(?:^|[^\w.])([A-Za-z_][A-Za-z0-9_]*)(\s*\.)?`)
	limitRe       = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)\s*;?\s*$`)
	hasLimitRe    = regexp.MustCompile(`(?i)\bLIMIT\b`)
	relFunctionRe = regexp.MustCompile(`(?i)\b(type|id|elementId|startNode|endNode)\s*\(\s*([A-Za-z_][A-Za-z0-9_]*)\s*\)`)
	labelTestRe   = regexp.MustCompile(`(?:^|[^\w.])([A-Za-z_][A-Za-z0-9_]*)\s*:\s*[A-Za-z_]`)
	relVarNameRe  = regexp.MustCompile(`^r[0-9]+$`)

	// STARTS WITH / ENDS WITH are joined first so WITH does not end a
	// WHERE segment.
	joinedOpRe   = regexp.MustCompile(`(?i)\b(STARTS|ENDS)\s+WITH\b`)
	compareOp    = `(=|<>|CONTAINS|STARTS_WITH|ENDS_WITH)`
	rawCompare   = regexp.MustCompile(`(?i)(?:^|[^\w.(])([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)\s*` + compareOp + `\s*(toLower\s*\(\s*)?__str(\d+)__`)
	lowerCompare = regexp.MustCompile(`(?i)toLower\s*\(\s*([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)\s*\)\s*` + compareOp + `\s*(toLower\s*\(\s*)?__str(\d+)__`)
	// Literal on the left: "lung cancer" = d.name.
	flippedCompare = regexp.MustCompile(`(?i)__str(\d+)__\s*\)?\s*` + compareOp + `\s*(toLower\s*\(\s*)?([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)`)
	listCompare    = regexp.MustCompile(`(?i)(?:^|[^\w.])(toLower\s*\(\s*)?([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)\s*\)?\s+IN\s*\[([^\[\]]*)\]`)
	strRef         = regexp.MustCompile(`__str(\d+)__`)
)

// keywords that may directly precede a node pattern without a space.
var patternKeywords = map[string]bool{
	"MATCH": true, "WHERE": true, "AND": true, "OR": true, "XOR": true,
	"NOT": true, "WITH": true, "RETURN": true, "EXISTS": true,
}

// =============================================================================
// Parsed query
// =============================================================================

type nodePattern struct {
	start, end int
	variable   string
	labels     []string
	props      string
}

type relPattern struct {
	start, end  int
	variable    string
	types       []string
	directed    bool
	quantifier  string
	props       string
	unparseable bool
}

type parsedQuery struct {
	// text is the query with every string literal replaced by __strN__.
	text     string
	literals []string

	nodes    []nodePattern
	rels     []relPattern
	bareRels int
	bareDir  bool

	nodeVars map[string]string
	relVars  map[string][]string
}

func parseQuery(query string) *parsedQuery {
	p := &parsedQuery{
		nodeVars: make(map[string]string),
		relVars:  make(map[string][]string),
	}
	p.text = stringLiteral.ReplaceAllStringFunc(query, func(lit string) string {
		p.literals = append(p.literals, lit[1:len(lit)-1])
		return fmt.Sprintf("__str%d__", len(p.literals)-1)
	})

	for i := 0; i < len(p.text); i++ {
		if p.text[i] != '(' || isFunctionCall(p.text, i) {
			continue
		}
		m := nodePatternRe.FindStringSubmatch(p.text[i:])
		if m == nil {
			continue
		}
		n := nodePattern{start: i, end: i + len(m[0]), variable: m[1], props: m[3]}
		for _, l := range strings.Split(m[2], ":") {
			if l = strings.Trim(strings.TrimSpace(l), "`"); l != "" {
				n.labels = append(n.labels, l)
			}
		}
		p.nodes = append(p.nodes, n)
		if n.variable != "" && (p.nodeVars[n.variable] == "" && len(n.labels) > 0) {
			p.nodeVars[n.variable] = n.labels[0]
		} else if n.variable != "" {
			if _, ok := p.nodeVars[n.variable]; !ok {
				p.nodeVars[n.variable] = ""
			}
		}
	}

	for _, idx := range relPatternRe.FindAllStringSubmatchIndex(p.text, -1) {
		r := relPattern{
			start:    idx[0],
			end:      idx[1],
			directed: idx[2] >= 0 || idx[6] >= 0,
		}
		inner := p.text[idx[4]:idx[5]]
		if m := relInnerRe.FindStringSubmatch(inner); m != nil {
			r.variable = m[1]
			for _, t := range strings.Split(m[2], "|") {
				if t = strings.Trim(strings.TrimSpace(t), ":` "); t != "" {
					r.types = append(r.types, t)
				}
			}
			r.quantifier = strings.TrimSpace(m[3])
			r.props = m[4]
		} else {
			r.unparseable = true
		}
		p.rels = append(p.rels, r)
		if r.variable != "" {
			if _, ok := p.relVars[r.variable]; !ok || len(r.types) > 0 {
				p.relVars[r.variable] = r.types
			}
		}
	}

	for _, m := range bareRelRe.FindAllStringSubmatch(p.text, -1) {
		p.bareRels++
		if m[1] != "" || m[2] != "" {
			p.bareDir = true
		}
	}
	return p
}

// isFunctionCall reports whether the parenthesis at i follows a function
// name rather than a clause keyword.
func isFunctionCall(text string, i int) bool {
	j := i
	for j > 0 && isIdentRune(rune(text[j-1])) {
		j--
	}
	if j == i {
		return false
	}
	return !patternKeywords[strings.ToUpper(text[j:i])]
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// labelOf resolves a node pattern's label through its variable binding.
func (p *parsedQuery) labelOf(n nodePattern) string {
	if len(n.labels) > 0 {
		return n.labels[0]
	}
	return p.nodeVars[n.variable]
}

func (p *parsedQuery) nodeEndingAt(pos int) (nodePattern, bool) {
	for pos > 0 && unicode.IsSpace(rune(p.text[pos-1])) {
		pos--
	}
	for _, n := range p.nodes {
		if n.end == pos {
			return n, true
		}
	}
	return nodePattern{}, false
}

func (p *parsedQuery) nodeStartingAt(pos int) (nodePattern, bool) {
	for pos < len(p.text) && unicode.IsSpace(rune(p.text[pos])) {
		pos++
	}
	for _, n := range p.nodes {
		if n.start == pos {
			return n, true
		}
	}
	return nodePattern{}, false
}

// =============================================================================
// Validator
// =============================================================================

// Validator statically checks generated queries against the query rules.
//
// # Description
//
// The check is lexical, not a full Cypher parse: string literals are
// masked, then node and relationship patterns, WHERE segments and the
// final RETURN are matched with regular expressions. It is meant to catch
// the ways a model typically drifts from the rules (directed arrows,
// unnamed or unreturned relationships, invented labels, missing LIMIT,
// prose around the query), not to prove a query correct.
//
// # Thread Safety
//
// Safe for concurrent use; a Validator is immutable.
type Validator struct {
	schema        *schema.NormalizedSchema
	caseSensitive map[string]struct{}
}

// NewValidator creates a Validator for s. caseSensitive lists
// "Label.property" pairs that must be compared exactly.
func NewValidator(s *schema.NormalizedSchema, caseSensitive []string) *Validator {
	v := &Validator{schema: s, caseSensitive: make(map[string]struct{}, len(caseSensitive))}
	for _, p := range caseSensitive {
		v.caseSensitive[p] = struct{}{}
	}
	return v
}

type violationList struct {
	items []Violation
	seen  map[Violation]bool
}

func (l *violationList) add(rule Rule, format string, args ...any) {
	v := Violation{Rule: rule, Detail: fmt.Sprintf(format, args...)}
	if l.seen == nil {
		l.seen = make(map[Violation]bool)
	}
	if l.seen[v] {
		return
	}
	l.seen[v] = true
	l.items = append(l.items, v)
}

// Validate returns the rules query breaks, in rule order. An empty result
// means no violation was detected.
func (v *Validator) Validate(query string) []Violation {
	var out violationList
	query = strings.TrimSpace(query)
	if query == "" {
		out.add(RuleBareQuery, "reply is empty")
		return out.items
	}

	p := parseQuery(query)
	v.checkSchema(p, &out)
	v.checkTraversal(p, &out)
	v.checkRelationshipVariables(p, &out)
	v.checkReturn(p, &out)
	v.checkWhere(p, &out)
	v.checkInlineLists(p, &out)
	v.checkQuantifiers(p, &out)
	v.checkReadOnly(p, &out)
	v.checkLimit(p, &out)
	v.checkBare(p, &out)
	return out.items
}

func (v *Validator) checkSchema(p *parsedQuery, out *violationList) {
	for _, n := range p.nodes {
		for _, l := range n.labels {
			if !v.schema.HasLabel(l) {
				out.add(RuleSchema, "unknown node label %s", l)
			}
		}
		label := p.labelOf(n)
		if n.props != "" && v.schema.HasLabel(label) {
			for _, m := range mapKeyRe.FindAllStringSubmatch(n.props, -1) {
				if !v.schema.HasProperty(label, m[1]) {
					out.add(RuleSchema, "unknown property %s.%s", label, m[1])
				}
			}
		}
	}

	for _, r := range p.rels {
		if r.unparseable {
			out.add(RuleSchema, "unreadable relationship pattern %s", p.text[r.start:r.end])
			continue
		}
		for _, t := range r.types {
			if !v.schema.HasRelationship(t) {
				out.add(RuleSchema, "unknown relationship type %s", t)
			}
		}
		v.checkEndpoints(p, r, out)
	}

	for _, m := range propRefRe.FindAllStringSubmatch(p.text, -1) {
		variable, prop := m[1], m[2]
		if label, ok := p.nodeVars[variable]; ok && v.schema.HasLabel(label) {
			if !v.schema.HasProperty(label, prop) {
				out.add(RuleSchema, "unknown property %s.%s", label, prop)
			}
			continue
		}
		if types, ok := p.relVars[variable]; ok && len(types) == 1 && v.schema.HasRelationship(types[0]) {
			if _, known := v.schema.RelationshipTypes[types[0]].Properties[prop]; !known {
				out.add(RuleSchema, "unknown property %s.%s", types[0], prop)
			}
		}
	}
}

// checkEndpoints verifies that a typed relationship connects the labels
// the schema declares for it, in either order.
func (v *Validator) checkEndpoints(p *parsedQuery, r relPattern, out *violationList) {
	if len(r.types) != 1 || !v.schema.HasRelationship(r.types[0]) {
		return
	}
	left, ok := p.nodeEndingAt(r.start)
	if !ok {
		return
	}
	right, ok := p.nodeStartingAt(r.end)
	if !ok {
		return
	}
	a, b := p.labelOf(left), p.labelOf(right)
	if a == "" || b == "" {
		return
	}
	rel := v.schema.RelationshipTypes[r.types[0]]
	if (a == rel.Start() && b == rel.End()) || (a == rel.End() && b == rel.Start()) {
		return
	}
	out.add(RuleSchema, "%s connects %s and %s, not %s and %s", r.types[0], rel.Start(), rel.End(), a, b)
}

func (v *Validator) checkTraversal(p *parsedQuery, out *violationList) {
	if len(p.rels)+p.bareRels == 0 {
		out.add(RuleTraversal, "query has no relationship pattern")
	}
	for _, r := range p.rels {
		if r.directed {
			out.add(RuleUndirected, "relationship %s uses a directed arrow", relName(r))
		}
	}
	if p.bareDir {
		out.add(RuleUndirected, "relationship pattern uses a directed arrow")
	}
}

func relName(r relPattern) string {
	if r.variable != "" {
		return r.variable
	}
	if len(r.types) > 0 {
		return ":" + strings.Join(r.types, "|")
	}
	return "pattern"
}

func (v *Validator) checkRelationshipVariables(p *parsedQuery, out *violationList) {
	total := len(p.rels) + p.bareRels
	if p.bareRels > 0 {
		out.add(RuleRelationshipVar, "relationship pattern -- has no variable")
	}
	seen := make(map[string]bool)
	for _, r := range p.rels {
		switch {
		case r.variable == "":
			out.add(RuleRelationshipVar, "relationship %s has no variable", relName(r))
			continue
		case total == 1 && r.variable != "r":
			out.add(RuleRelationshipVar, "single relationship variable must be r, got %s", r.variable)
		case total > 1 && !relVarNameRe.MatchString(r.variable):
			out.add(RuleRelationshipVar, "relationship variable %s must be r1, r2, ...", r.variable)
		}
		if seen[r.variable] {
			out.add(RuleRelationshipVar, "relationship variable %s is used more than once", r.variable)
		}
		seen[r.variable] = true
	}
}

func (v *Validator) checkReturn(p *parsedQuery, out *violationList) {
	matches := returnRe.FindAllStringSubmatch(p.text, -1)
	if len(matches) == 0 {
		out.add(RuleReturn, "query has no RETURN clause")
		return
	}
	projection := strings.TrimSpace(matches[len(matches)-1][1])
	upper := strings.ToUpper(projection)
	if strings.HasPrefix(upper, "*") || strings.HasPrefix(upper, "DISTINCT *") {
		return
	}

	returned := make(map[string]bool)
	for _, m := range returnTokenRe.FindAllStringSubmatch(projection, -1) {
		if m[2] == "" {
			returned[m[1]] = true
		}
	}
	for _, r := range p.rels {
		if r.variable != "" && !returned[r.variable] {
			out.add(RuleReturn, "relationship variable %s is not returned", r.variable)
		}
	}
	for _, n := range p.nodes {
		if n.variable != "" && !returned[n.variable] {
			out.add(RuleReturn, "node variable %s is not returned", n.variable)
		}
	}
}

func (v *Validator) checkWhere(p *parsedQuery, out *violationList) {
	text := joinedOpRe.ReplaceAllString(p.text, "${1}_WITH")
	for _, seg := range whereRe.FindAllStringSubmatch(text, -1) {
		where := seg[1]

		for _, m := range relFunctionRe.FindAllStringSubmatch(where, -1) {
			if _, isRel := p.relVars[m[2]]; isRel || strings.EqualFold(m[1], "type") {
				out.add(RuleNodeFilter, "WHERE filters on %s(%s)", m[1], m[2])
			}
		}
		for _, m := range propRefRe.FindAllStringSubmatch(where, -1) {
			if _, isRel := p.relVars[m[1]]; isRel {
				out.add(RuleNodeFilter, "WHERE filters on relationship property %s.%s", m[1], m[2])
			}
		}
		for _, m := range labelTestRe.FindAllStringSubmatch(where, -1) {
			if _, isRel := p.relVars[m[1]]; isRel {
				out.add(RuleNodeFilter, "WHERE tests the type of relationship %s", m[1])
			}
		}

		for _, m := range rawCompare.FindAllStringSubmatch(where, -1) {
			key := p.nodeVars[m[1]] + "." + m[2]
			if v.isCaseSensitive(key) {
				if m[4] != "" {
					out.add(RuleCaseInsensitive, "%s must be compared exactly, without toLower", key)
				}
				continue
			}
			out.add(RuleCaseInsensitive, "%s.%s is compared without toLower", m[1], m[2])
		}
		for _, m := range lowerCompare.FindAllStringSubmatch(where, -1) {
			key := p.nodeVars[m[1]] + "." + m[2]
			if v.isCaseSensitive(key) {
				out.add(RuleCaseInsensitive, "%s must be compared exactly, without toLower", key)
				continue
			}
			if m[4] != "" {
				continue
			}
			if lit := p.literal(m[5]); lit != strings.ToLower(lit) {
				out.add(RuleCaseInsensitive, "value %q compared with toLower(%s.%s) is not lowercase", lit, m[1], m[2])
			}
		}
		for _, m := range flippedCompare.FindAllStringSubmatch(where, -1) {
			v.checkTextMatch(p, out, m[4], m[5], m[3] != "", []string{m[1]})
		}
		for _, m := range listCompare.FindAllStringSubmatch(where, -1) {
			var refs []string
			for _, ref := range strRef.FindAllStringSubmatch(m[4], -1) {
				refs = append(refs, ref[1])
			}
			if len(refs) > 0 {
				v.checkTextMatch(p, out, m[2], m[3], m[1] != "", refs)
			}
		}
	}
}

// checkTextMatch applies the comparison rules to variable.prop matched
// against the literals at refs. lowered reports a toLower around the property.
func (v *Validator) checkTextMatch(p *parsedQuery, out *violationList, variable, prop string, lowered bool, refs []string) {
	key := p.nodeVars[variable] + "." + prop
	switch {
	case v.isCaseSensitive(key):
		if lowered {
			out.add(RuleCaseInsensitive, "%s must be compared exactly, without toLower", key)
		}
	case !lowered:
		out.add(RuleCaseInsensitive, "%s.%s is compared without toLower", variable, prop)
	default:
		for _, ref := range refs {
			if lit := p.literal(ref); lit != strings.ToLower(lit) {
				out.add(RuleCaseInsensitive, "value %q compared with toLower(%s.%s) is not lowercase", lit, variable, prop)
			}
		}
	}
}

func (v *Validator) isCaseSensitive(key string) bool {
	_, ok := v.caseSensitive[key]
	return ok
}

func (p *parsedQuery) literal(index string) string {
	i, err := strconv.Atoi(index)
	if err != nil || i < 0 || i >= len(p.literals) {
		return ""
	}
	return p.literals[i]
}

func (v *Validator) checkInlineLists(p *parsedQuery, out *violationList) {
	for _, n := range p.nodes {
		if strings.Contains(n.props, "[") {
			out.add(RuleInlineList, "node pattern %s holds an inline list", p.text[n.start:n.end])
		}
	}
	for _, r := range p.rels {
		if strings.Contains(r.props, "[") {
			out.add(RuleInlineList, "relationship %s holds an inline list", relName(r))
		}
	}
}

func (v *Validator) checkQuantifiers(p *parsedQuery, out *violationList) {
	for _, r := range p.rels {
		if r.quantifier != "" {
			out.add(RulePathQuantifier, "relationship %s has variable length %s", relName(r), r.quantifier)
		}
	}
	if loc := quantifiedRe.FindStringIndex(p.text); loc != nil {
		out.add(RulePathQuantifier, "quantified path pattern %s", strings.TrimSpace(p.text[loc[0]+1:loc[1]]))
	}
}

func (v *Validator) checkReadOnly(p *parsedQuery, out *violationList) {
	for _, m := range writeClauseRe.FindAllStringSubmatch(p.text, -1) {
		out.add(RuleReadOnly, "write clause %s", strings.ToUpper(strings.Join(strings.Fields(m[1]), " ")))
	}
}

func (v *Validator) checkLimit(p *parsedQuery, out *violationList) {
	m := limitRe.FindStringSubmatch(p.text)
	if m == nil {
		if hasLimitRe.MatchString(p.text) {
			out.add(RuleLimit, "LIMIT is not the final clause")
		} else {
			out.add(RuleLimit, "query has no LIMIT")
		}
		return
	}
	if n, err := strconv.Atoi(m[1]); err != nil || n <= 0 {
		out.add(RuleLimit, "LIMIT %s is not a positive count", m[1])
	}
}

func (v *Validator) checkBare(p *parsedQuery, out *violationList) {
	if strings.Contains(p.text, "```") {
		out.add(RuleBareQuery, "reply contains a markdown fence")
	}
	if !clauseStart.MatchString(p.text) {
		out.add(RuleBareQuery, "reply does not start with a Cypher clause")
	}
	if strings.Contains(p.text, "//") || strings.Contains(p.text, "/*") {
		out.add(RuleBareQuery, "reply contains a comment")
	}
}

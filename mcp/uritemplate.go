// Copyright 2025 The streammcp Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/yosida95/uritemplate/v3"
)

// compiledURITemplate matches URIs against the RFC 6570 subset this package
// supports: simple path expressions ("{name}") and one query expression
// ("{?a,b,c}"). Matching is first-registered-first-match: a resource
// registry tries templates in registration order and keeps the first hit.
type compiledURITemplate struct {
	raw       string
	tmpl      *uritemplate.Template
	pathRE    *regexp.Regexp
	pathVars  []string
	queryVars []string
}

// compileURITemplate parses raw, validating it against [uritemplate.New] for
// well-formedness and variable names, then builds a matching regexp for the
// path portion. It rejects expressions outside the supported subset so that
// a misregistered template fails fast at startup rather than silently never
// matching.
func compileURITemplate(raw string) (*compiledURITemplate, error) {
	tmpl, err := uritemplate.New(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid URI template %q: %w", raw, err)
	}

	pathPart, queryExpr, hasQuery := splitQueryExpression(raw)

	var queryVars []string
	if hasQuery {
		queryVars = strings.Split(strings.TrimSuffix(strings.TrimPrefix(queryExpr, "{?"), "}"), ",")
	}

	pathRE, pathVars, err := pathTemplateToRegexp(pathPart)
	if err != nil {
		return nil, fmt.Errorf("invalid URI template %q: %w", raw, err)
	}

	return &compiledURITemplate{
		raw:       raw,
		tmpl:      tmpl,
		pathRE:    pathRE,
		pathVars:  pathVars,
		queryVars: queryVars,
	}, nil
}

// splitQueryExpression splits off a single trailing "{?a,b,c}" expression,
// the only query-level form this package supports.
func splitQueryExpression(raw string) (path, queryExpr string, ok bool) {
	i := strings.Index(raw, "{?")
	if i < 0 {
		return raw, "", false
	}
	j := strings.IndexByte(raw[i:], '}')
	if j < 0 || i+j != len(raw)-1 {
		// Not a trailing query expression; treat the whole thing as path
		// and let pathTemplateToRegexp reject the unsupported '?' prefix.
		return raw, "", false
	}
	return raw[:i], raw[i:], true
}

// pathTemplateToRegexp compiles the path portion of a template into an
// anchored regexp with one capture group per "{name}" variable.
func pathTemplateToRegexp(pat string) (*regexp.Regexp, []string, error) {
	var b strings.Builder
	var vars []string
	seen := map[string]bool{}
	b.WriteByte('^')
	for len(pat) > 0 {
		literal, rest, ok := strings.Cut(pat, "{")
		b.WriteString(regexp.QuoteMeta(literal))
		if !ok {
			break
		}
		expr, rest, ok := strings.Cut(rest, "}")
		if !ok {
			return nil, nil, fmt.Errorf("missing '}'")
		}
		pat = rest

		if expr == "" {
			return nil, nil, fmt.Errorf("empty variable expression")
		}
		switch expr[0] {
		case '?', '#', '.', '/', ';', '&':
			return nil, nil, fmt.Errorf("unsupported expression prefix %q", string(expr[0]))
		}
		if strings.ContainsAny(expr, ",:*") {
			return nil, nil, fmt.Errorf("unsupported modifier in expression %q", expr)
		}
		if seen[expr] {
			return nil, nil, fmt.Errorf("duplicate variable %q", expr)
		}
		seen[expr] = true
		vars = append(vars, expr)
		b.WriteString(fmt.Sprintf("(?P<%s>[^/]+)", regexpGroupName(expr)))
	}
	b.WriteByte('$')
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, nil, err
	}
	return re, vars, nil
}

// regexpGroupName sanitizes a template variable name for use as a Go regexp
// named capture group, which permits only ASCII letters, digits, and
// underscore.
func regexpGroupName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Match reports whether uri matches the template, returning the matched path
// and query variables together in a single map. An unmatched query variable
// is simply absent from the result, since "{?a,b,c}" variables are all
// optional per RFC 6570.
func (c *compiledURITemplate) Match(uri string) (vars map[string]string, ok bool) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, false
	}

	m := c.pathRE.FindStringSubmatch(parsed.Path)
	if m == nil {
		// Templates that do not match the parsed path alone (e.g. ones that
		// include their scheme) are matched against the raw URI without the
		// query string.
		withoutQuery := uri
		if parsed.RawQuery != "" {
			withoutQuery = strings.TrimSuffix(uri, "?"+parsed.RawQuery)
		}
		m = c.pathRE.FindStringSubmatch(withoutQuery)
		if m == nil {
			return nil, false
		}
	}

	vars = make(map[string]string, len(c.pathVars)+len(c.queryVars))
	for i, name := range c.pathRE.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		for _, v := range c.pathVars {
			if regexpGroupName(v) == name {
				vars[v] = m[i]
			}
		}
	}

	if len(c.queryVars) > 0 {
		q := parsed.Query()
		for _, name := range c.queryVars {
			if q.Has(name) {
				vars[name] = q.Get(name)
			}
		}
	}

	return vars, true
}

// Varnames returns every variable this template declares, path and query
// combined, in the order yosida95/uritemplate parsed them.
func (c *compiledURITemplate) Varnames() []string {
	return c.tmpl.Varnames()
}

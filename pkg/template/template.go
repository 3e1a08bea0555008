// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package template expands {{name}} placeholders. Expansion never fails:
// placeholders without a value and malformed delimiters are kept verbatim,
// and "{{{{" is written as "{{".
package template

import (
	"regexp"
	"strings"
)

var pattern = regexp.MustCompile(`\{\{(?:(\{\{)|([_a-zA-Z][_a-zA-Z0-9]*)\}\})?`)

// Template is a parsed bracket template.
type Template struct {
	text string
}

// New returns a template for text.
func New(text string) *Template {
	return &Template{text: text}
}

// SafeSubstitute expands every placeholder found in vars and leaves the
// rest of the text untouched.
func (t *Template) SafeSubstitute(vars map[string]string) string {
	matches := pattern.FindAllStringSubmatchIndex(t.text, -1)
	if len(matches) == 0 {
		return t.text
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(t.text[last:m[0]])
		last = m[1]
		switch {
		case m[2] >= 0:
			b.WriteString("{{")
		case m[4] >= 0:
			name := t.text[m[4]:m[5]]
			if v, ok := vars[name]; ok {
				b.WriteString(v)
			} else {
				b.WriteString(t.text[m[0]:m[1]])
			}
		default:
			b.WriteString(t.text[m[0]:m[1]])
		}
	}
	b.WriteString(t.text[last:])
	return b.String()
}

// SafeSubstitute is a shorthand for New(text).SafeSubstitute(vars).
func SafeSubstitute(text string, vars map[string]string) string {
	return New(text).SafeSubstitute(vars)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package text2cypher

import (
	"regexp"
	"strings"
)

var (
	fencedBlock = regexp.MustCompile("(?s)```(?:([A-Za-z]+)[ \t]*\n)?(.*?)```")
	languageTag = regexp.MustCompile(`(?i)^cypher\s+`)
	clauseStart = regexp.MustCompile(`(?i)^(OPTIONAL\s+MATCH|MATCH|WITH|UNWIND|CALL|RETURN)\b`)
)

// Clean strips the wrapping a backend adds around a query: surrounding
// whitespace and backticks, a markdown fence, and a leading "cypher"
// language tag. The query text itself is not rewritten.
func Clean(reply string) string {
	s := strings.TrimSpace(reply)
	if m := fencedBlock.FindStringSubmatch(s); m != nil {
		s = m[2]
		// A word alone on the fence line is a language tag unless it opens
		// the query.
		if clauseStart.MatchString(m[1]) {
			s = m[1] + "\n" + s
		}
	}
	s = strings.Trim(s, "` \t\r\n")
	if loc := languageTag.FindStringIndex(s); loc != nil && clauseStart.MatchString(s[loc[1]:]) {
		s = s[loc[1]:]
	}
	return strings.TrimSpace(s)
}

package search

import "strings"

// compileMatch turns free text into a safe FTS5 MATCH expression: each
// whitespace-separated token becomes a quoted string (embedded quotes doubled),
// joined with implicit AND. User input can therefore never produce an FTS5
// syntax error or inject operators like NEAR/NOT.
func compileMatch(query string) string {
	terms := strings.Fields(query)
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ReplaceAll(term, `"`, `""`)
		out = append(out, `"`+term+`"`)
	}
	return strings.Join(out, " ")
}

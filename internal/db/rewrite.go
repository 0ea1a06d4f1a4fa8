package db

import (
	"regexp"
	"strings"
)

// Pure text rewrites from the canonical PostgreSQL dialect to SQLite.
// Applied to every statement before the embedded engine sees it.

var (
	placeholderRe = regexp.MustCompile(`\$\d+`)
	nowRe         = regexp.MustCompile(`(?i)NOW\(\)`)
	serialRe      = regexp.MustCompile(`(?i)SERIAL PRIMARY KEY`)
	varcharRe     = regexp.MustCompile(`(?i)VARCHAR\(\d+\)`)
	timestampRe   = regexp.MustCompile(`(?i)\bTIMESTAMP\b`)
)

// rewritePlaceholders converts numbered placeholders ($1, $2, ...) to
// SQLite's positional style. Parameter order is preserved: the domain
// store only ever numbers placeholders left to right.
func rewritePlaceholders(query string) string {
	return placeholderRe.ReplaceAllString(query, "?")
}

// rewriteDialect translates PostgreSQL constructs to their SQLite
// equivalents. NOW() becomes a parenthesized expression because SQLite
// only accepts non-constant column defaults in that form.
func rewriteDialect(query string) string {
	q := nowRe.ReplaceAllString(query, "(datetime('now'))")
	q = serialRe.ReplaceAllString(q, "INTEGER PRIMARY KEY AUTOINCREMENT")
	// Array columns are stored as JSON text; the empty-array default
	// follows the storage format.
	q = strings.ReplaceAll(q, "TEXT[]", "TEXT")
	q = strings.ReplaceAll(q, "DEFAULT '{}'", "DEFAULT '[]'")
	q = varcharRe.ReplaceAllString(q, "TEXT")
	q = timestampRe.ReplaceAllString(q, "TEXT")
	return q
}

// Statement classification for the embedded engine. PostgreSQL always
// returns the uniform rows shape natively, SQLite needs routing.

func isSelect(query string) bool {
	head := strings.ToUpper(strings.TrimSpace(query))
	return strings.HasPrefix(head, "SELECT") || strings.HasPrefix(head, "WITH")
}

func hasReturning(query string) bool {
	return strings.Contains(strings.ToUpper(query), "RETURNING")
}

// unsupportedBySQLite reports statements that have no SQLite translation
// and must be skipped during bulk migration runs rather than failing.
func unsupportedBySQLite(stmt string) bool {
	return strings.Contains(stmt, "information_schema") ||
		strings.Contains(strings.ToUpper(stmt), "ALTER TABLE")
}

// splitStatements breaks a multi-statement migration script on statement
// boundaries, trimming and dropping empty fragments and PostgreSQL
// procedural blocks (DO $$ ... $$) the embedded engine cannot parse.
// Splitting on ";" also slices through the inside of a DO block, so the
// $$ delimiters are tracked by parity and every fragment of an open
// block is dropped, not just the opener.
func splitStatements(script string) []string {
	parts := strings.Split(script, ";")
	out := make([]string, 0, len(parts))
	inBlock := false
	for _, p := range parts {
		if inBlock {
			if strings.Count(p, "$$")%2 == 1 {
				inBlock = false
			}
			continue
		}
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		switch strings.Count(s, "$$") % 2 {
		case 1:
			inBlock = true
			continue
		default:
			if strings.Contains(s, "$$") {
				// Block opened and closed within one fragment.
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

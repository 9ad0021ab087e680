package repository

import (
	"strconv"
	"strings"
)

// rebind rewrites ? placeholders to $1, $2, ... for postgres. Queries in
// this package never contain a literal question mark.
func rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

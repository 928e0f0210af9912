package cache

import (
	"strings"

	"github.com/mwantia/s3fs/data"
)

// Query filters records by URI prefix.
type Query struct {
	// Prefix every returned URI starts with
	Prefix string

	// Delimiter "/" restricts the result to direct children of Prefix.
	// Prefix must then end with the delimiter.
	Delimiter string

	// DirectoriesOnly skips file records
	DirectoriesOnly bool

	// Limit caps the number of results; 0 means no limit
	Limit int
}

// ChildrenOf returns a query for the direct children of the directory uri.
func ChildrenOf(uri string) *Query {
	return &Query{
		Prefix:    strings.TrimSuffix(uri, "/") + "/",
		Delimiter: "/",
	}
}

// DescendantsOf returns a query for everything below the directory uri.
func DescendantsOf(uri string) *Query {
	return &Query{
		Prefix: strings.TrimSuffix(uri, "/") + "/",
	}
}

// Matches reports whether record satisfies the query, ignoring Limit.
func (q *Query) Matches(record *data.Record) bool {
	if !strings.HasPrefix(record.URI, q.Prefix) || record.URI == q.Prefix {
		return false
	}
	if q.DirectoriesOnly && !record.IsDirectory {
		return false
	}
	if q.Delimiter != "" && strings.Contains(record.URI[len(q.Prefix):], q.Delimiter) {
		return false
	}
	return true
}

// UpperBound returns the smallest string greater than every string
// starting with prefix, for byte-ordered range scans. ok is false when
// no such bound exists.
func UpperBound(prefix string) (bound string, ok bool) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1]), true
		}
	}
	return "", false
}

package jobs

import (
	"strings"

	"findoc-backend/internal/shared/util"
)

// DefaultQuery is used when a submission omits the analysis question.
const DefaultQuery = "Provide a comprehensive analysis of this financial document including investment insights and risk assessment"

// NormalizeQuery trims and collapses internal whitespace; an empty query
// resolves to DefaultQuery so omitted-query and explicit-default submissions
// share a fingerprint.
func NormalizeQuery(query string) string {
	normalized := strings.Join(strings.Fields(query), " ")
	if normalized == "" {
		return DefaultQuery
	}
	return normalized
}

// Fingerprint computes the dedup/cache key over the document bytes and the
// normalized query. It never looks at the filename, upload order, or
// timestamps, so identical (bytes, query) pairs always collide.
func Fingerprint(data []byte, normalizedQuery string) string {
	return util.HashBytes(data, []byte(normalizedQuery))
}

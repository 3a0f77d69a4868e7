package facets

import (
	"strings"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
)

// IdentityKey derives the deterministic upsert key for a record from its
// natural identity: source site plus lowercased, whitespace-collapsed name
// and address. Duplicate summary rows for an already-seen identity update
// the existing record instead of inserting a second one.
func IdentityKey(hasher crawler.Hasher, site, name, address string) (string, error) {
	parts := []string{
		normalizeIdentityPart(site),
		normalizeIdentityPart(name),
		normalizeIdentityPart(address),
	}
	return hasher.Hash([]byte(strings.Join(parts, "|")))
}

func normalizeIdentityPart(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

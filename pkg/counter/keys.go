package counter

import "strings"

// Key prefixes for the two records kept per URL.
const (
	cachePrefix = "cache"
	countPrefix = "count"
)

// Keys builds the store keys for a URL.
//
// With an empty namespace the keys are exactly
//
//	cache:<url>
//	count:<url>
//
// and with namespace "web" they become web:cache:<url> and web:count:<url>.
type Keys struct {
	Namespace string
}

// Cache returns the key holding the cached body for url.
func (k Keys) Cache(url string) string {
	return k.join(cachePrefix, url)
}

// Count returns the key holding the call counter for url.
func (k Keys) Count(url string) string {
	return k.join(countPrefix, url)
}

func (k Keys) join(prefix, url string) string {
	ns := strings.Trim(k.Namespace, ":")
	if ns == "" {
		return prefix + ":" + url
	}
	return ns + ":" + prefix + ":" + url
}

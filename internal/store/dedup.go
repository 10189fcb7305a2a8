package store

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Dedup key precedence values. The application URL is the strongest signal;
// title+company+source is the fallback when the URL is absent or generic.
const (
	PreferURL        = "url"
	PreferTitleTuple = "title-company-source"
)

// DedupKey derives the value that decides whether two candidates refer to the
// same posting. prefer selects which signal wins when both are available.
func DedupKey(c JobCandidate, prefer string) string {
	urlKey := ""
	if u := CanonicalURL(c.URL); u != "" && !genericURL(u) {
		urlKey = "url:" + strings.ToLower(u)
	}
	tupleKey := ""
	if c.Title != "" && c.Company != "" {
		tupleKey = "tcs:" + strings.ToLower(c.Title) + "|" + strings.ToLower(c.Company) + "|" + strings.ToLower(c.Source)
	}

	base := ""
	switch prefer {
	case PreferTitleTuple:
		base = tupleKey
		if base == "" {
			base = urlKey
		}
	default: // PreferURL
		base = urlKey
		if base == "" {
			base = tupleKey
		}
	}
	if base == "" {
		return ""
	}
	sum := sha1.Sum([]byte(base))
	return hex.EncodeToString(sum[:])
}

// CanonicalURL lowercases scheme/host, drops the fragment and common tracking
// params, and sorts the remaining query for a deterministic string.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") ||
			lk == "gclid" || lk == "fbclid" || lk == "msclkid" ||
			lk == "mc_cid" || lk == "mc_eid" ||
			lk == "mkt_tok" || lk == "trk" || lk == "trkemail" {
			q.Del(k)
		}
	}
	for k := range q {
		vals := q[k]
		sort.Strings(vals)
		q[k] = vals
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// genericURL reports whether the URL carries no posting-specific path, e.g. a
// bare careers page. Such URLs cannot distinguish postings.
func genericURL(canonical string) bool {
	u, err := url.Parse(canonical)
	if err != nil {
		return true
	}
	p := strings.Trim(u.Path, "/")
	if p == "" && u.RawQuery == "" {
		return true
	}
	switch strings.ToLower(p) {
	case "jobs", "careers", "career", "join-us", "jobs/search":
		return u.RawQuery == ""
	}
	return false
}

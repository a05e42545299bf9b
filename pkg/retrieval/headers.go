package retrieval

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/crawlpoint/connector/pkg/acl"
	"github.com/crawlpoint/connector/pkg/adaptor"
	"github.com/crawlpoint/connector/pkg/docid"
	"github.com/crawlpoint/connector/pkg/metadata"
)

// Crawl-time headers recognized by the indexer.
const (
	headerExternalMetadata    = "X-Gsa-External-Metadata"
	headerExternalAnchor      = "X-Gsa-External-Anchor"
	headerServeSecurity       = "X-Gsa-Serve-Security"
	headerRobotsTag           = "X-Robots-Tag"
	headerDocControls         = "X-Gsa-Doc-Controls"
	headerSkipUpdatingContent = "X-Gsa-Skip-Updating-Content"
)

// percentEncode escapes every byte outside the RFC 3986 unreserved set, so
// values survive the comma- and equals-delimited header syntax.
func percentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z' || b >= '0' && b <= '9' ||
			b == '-' || b == '.' || b == '_' || b == '~' {
			sb.WriteByte(b)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(hex[b>>4])
		sb.WriteByte(hex[b&0xF])
	}
	return sb.String()
}

// metadataHeader renders the multimap as comma-separated
// percent(key)=percent(value) pairs, in the multimap's deterministic order.
func metadataHeader(md *metadata.Metadata, extra map[string][]string) string {
	var parts []string
	md.Each(func(key, value string) {
		parts = append(parts, percentEncode(key)+"="+percentEncode(value))
	})
	// Reserved keys (legacy ACL transport) follow the adaptor's metadata,
	// sorted for a stable header.
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range extra[k] {
			parts = append(parts, percentEncode(k)+"="+percentEncode(v))
		}
	}
	return strings.Join(parts, ",")
}

// anchorHeader renders anchors: bare percent(uri) without text, otherwise
// percent(text)=percent(uri).
func anchorHeader(anchors []adaptor.Anchor) string {
	parts := make([]string, 0, len(anchors))
	for _, a := range anchors {
		if a.Text == "" {
			parts = append(parts, percentEncode(a.URI))
			continue
		}
		parts = append(parts, percentEncode(a.Text)+"="+percentEncode(a.URI))
	}
	return strings.Join(parts, ",")
}

// robotsHeader renders the enabled robot directives.
func robotsHeader(noIndex, noFollow, noArchive bool) string {
	var parts []string
	if noIndex {
		parts = append(parts, "noindex")
	}
	if noFollow {
		parts = append(parts, "nofollow")
	}
	if noArchive {
		parts = append(parts, "noarchive")
	}
	return strings.Join(parts, ",")
}

// docControlsHeader renders the newer combined header: the JSON ACL plus
// display URL, crawl-once, lock and scoring entries.
func docControlsHeader(resp *adaptor.Response, a *acl.ACL, codec *docid.Codec, scoring string) (string, error) {
	var parts []string
	if a != nil && !a.IsEmpty() {
		js, err := a.MarshalDocControls(codec)
		if err != nil {
			return "", fmt.Errorf("retrieval: acl header: %w", err)
		}
		parts = append(parts, "acl="+percentEncode(js))
	}
	if u := resp.DisplayURL(); u != "" {
		parts = append(parts, "display_url="+percentEncode(u))
	}
	if resp.CrawlOnce() {
		parts = append(parts, "crawl_once=true")
	}
	if resp.Lock() {
		parts = append(parts, "lock=true")
	}
	if scoring != "" {
		parts = append(parts, "scoring="+scoring)
	}
	return strings.Join(parts, ","), nil
}

// lastModifiedValue formats the repository timestamp per RFC 1123.
func lastModifiedValue(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

// epochMillis renders a timestamp for the transform side channel.
func epochMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

package imagecache

import (
	"net/url"

	"github.com/illmade-knight/go-remoteimage/pkg/processor"
)

// Key returns the cache key for u rendered by p. Without a processor the key is
// the URL itself.
func Key(u *url.URL, p processor.Processor) string {
	if p == nil {
		return u.String()
	}
	return KeyForIdentity(u, p.Identifier())
}

// KeyForIdentity appends identity to u's path as one extra escaped segment,
// before any query or fragment. Opaque URLs (data:, mailto:) get the segment
// appended to their opaque part.
//
//	https://example.com/a.jpg + round_w30_h30_cR15_v1
//	=> https://example.com/a.jpg/round_w30_h30_cR15_v1
func KeyForIdentity(u *url.URL, identity string) string {
	if identity == "" {
		return u.String()
	}
	k := *u
	if u.Opaque != "" {
		k.Opaque = u.Opaque + "/" + url.PathEscape(identity)
		return k.String()
	}
	k.RawPath = u.EscapedPath() + "/" + url.PathEscape(identity)
	k.Path = u.Path + "/" + identity
	return k.String()
}

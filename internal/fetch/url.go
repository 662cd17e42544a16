package fetch

import (
	"fmt"
	"net/url"
)

// AbsoluteURL resolves a possibly-relative playlist URI against base.
func AbsoluteURL(base *url.URL, ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("parsing URI %q: %w", ref, err)
	}
	return base.ResolveReference(u), nil
}

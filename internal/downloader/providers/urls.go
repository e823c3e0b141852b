package providers

import (
	"net/url"
	"strings"
)

// AbsoluteURL resolves an image src found on pageURL. Protocol-relative
// sources are always fetched over https.
func AbsoluteURL(pageURL, src string) (string, error) {
	src = strings.TrimSpace(src)
	if strings.HasPrefix(src, "//") {
		return "https:" + src, nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(src)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

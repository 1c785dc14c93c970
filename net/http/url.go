package http

import (
	"net/url"
	"path"
	"strings"
)

// Base returns the base url of a given url.
// It works with url or path
func Base(u string) string {
	i := strings.LastIndexAny(u, `/\`)
	if i >= 0 {
		return u[:i+1]
	}
	return ""
}

func schema(u string) string {
	s := strings.ToLower(u)
	switch {
	case strings.HasPrefix(s, "https:"):
		return u[:len("https:")]
	case strings.HasPrefix(s, "http:"):
		return u[:len("http:")]
	}
	return ""
}

// Rel return the url of target relative to base.
// A target with a http or https scheme is returned as is.
func Rel(base, target string) string {
	if schema(target) != "" {
		return target
	}
	b, err := url.Parse(base)
	if err != nil {
		return Base(base) + target
	}
	t, err := url.Parse(target)
	if err != nil {
		return Base(base) + target
	}
	return b.ResolveReference(t).String()
}

// FileName gives the last element of the url path, without query nor fragment.
// It returns an empty string when the url path ends with a slash or with a dot segment.
func FileName(u string) string {
	p := u
	if pu, err := url.Parse(u); err == nil {
		p = pu.Path
	}
	if p == "" || strings.HasSuffix(p, "/") {
		return ""
	}
	switch name := path.Base(p); name {
	case ".", "..":
		return ""
	default:
		return name
	}
}

package auth

import (
	"path"
	"strings"
)

// Route is a request path classified into an area and a page within it.
type Route struct {
	Area  Area
	Page  string
	Known bool
}

var publicPages = map[string]struct{}{
	PathLogin:            {},
	PathAdminLogin:       {},
	PathSubAdminLogin:    {},
	PathRegister:         {},
	PathSubAdminRegister: {},
}

// Page patterns per area; "*" matches a single path segment.
var areaPages = map[Area][]string{
	AreaAdmin: {
		"dashboard",
		"company-management",
		"company/*",
		"company/*/team/*",
		"employees",
	},
	AreaSubAdmin: {
		"dashboard",
		"profile",
		"employees",
		"teams",
		"team/*",
	},
	AreaEmployee: {
		"dashboard",
		"questionnaire",
		"profile",
	},
}

// Classify maps a request path to a Route. Paths outside every area report
// Area "" and Known false.
func Classify(p string) Route {
	p = cleanPath(p)
	if _, ok := publicPages[p]; ok {
		return Route{Area: AreaPublic, Page: strings.TrimPrefix(p, "/"), Known: true}
	}

	head, rest, _ := strings.Cut(strings.TrimPrefix(p, "/"), "/")
	area := Area(head)
	patterns, ok := areaPages[area]
	if !ok {
		return Route{}
	}
	if rest == "api" || strings.HasPrefix(rest, "api/") {
		return Route{Area: area, Page: rest, Known: true}
	}
	for _, pattern := range patterns {
		if matchSegments(pattern, rest) {
			return Route{Area: area, Page: rest, Known: true}
		}
	}
	return Route{Area: area, Page: rest}
}

// IsAPI reports whether a path addresses an area's JSON API rather than a page.
func IsAPI(p string) bool {
	r := Classify(p)
	return r.Known && r.Area != AreaPublic && (r.Page == "api" || strings.HasPrefix(r.Page, "api/"))
}

// Navigate decides what happens when session requests path p. Guard decisions come
// first; allowed requests for pages the area does not have land on its dashboard.
func Navigate(s *Session, p string) Decision {
	r := Classify(p)
	switch {
	case r.Area == "":
		return Redirect(Home(s))
	case r.Area == AreaPublic:
		return Authorize(s, AreaPublic)
	}

	if d := Authorize(s, r.Area); !d.Allow {
		return d
	}
	if !r.Known {
		return Redirect(DashboardPath(r.Area))
	}
	return Allow()
}

func cleanPath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" || p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}

func matchSegments(pattern, p string) bool {
	if p == "" {
		return false
	}
	ps := strings.Split(pattern, "/")
	ss := strings.Split(p, "/")
	if len(ps) != len(ss) {
		return false
	}
	for i := range ps {
		if ss[i] == "" {
			return false
		}
		if ps[i] != "*" && ps[i] != ss[i] {
			return false
		}
	}
	return true
}

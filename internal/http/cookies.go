package httpx

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CookieOptions controls the attributes of cookies written by this package.
type CookieOptions struct {
	Domain string
	// Secure forces the Secure attribute. Requests arriving over TLS (directly or via a
	// proxy setting X-Forwarded-Proto) get it regardless.
	Secure bool
}

func (o CookieOptions) secure(r *http.Request) bool {
	return o.Secure || r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// set writes an HttpOnly, SameSite=Lax cookie. maxAge <= 0 makes it a browser-session cookie.
func (o CookieOptions) set(w http.ResponseWriter, r *http.Request, name, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   o.Domain,
		HttpOnly: true,
		Secure:   o.secure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})
}

// clear expires a cookie. It mirrors the attributes used when setting cookies so that
// browsers match and delete it.
func (o CookieOptions) clear(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   o.Domain,
		HttpOnly: true,
		Secure:   o.secure(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

// safeRedirectPath ensures the provided redirect is a same-origin relative path
// starting with "/" and not an absolute URL. Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(candidate, "//") {
		return "/"
	}
	return candidate
}

// withQuery appends a single query parameter to a relative path.
func withQuery(path, key, value string) string {
	q := url.Values{}
	q.Set(key, value)
	return path + "?" + q.Encode()
}

package models

import "net/http"

// Cookie is a single session cookie as read from the browser.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
}

// CredentialBundle is the authenticated session state attached to every
// request of a run. The zero value is an anonymous session.
type CredentialBundle struct {
	cookies []Cookie
}

// NewCredentialBundle copies cookies into a new bundle.
func NewCredentialBundle(cookies ...Cookie) CredentialBundle {
	out := make([]Cookie, len(cookies))
	copy(out, cookies)
	return CredentialBundle{cookies: out}
}

// Cookies returns a copy of the bundle's cookies.
func (b CredentialBundle) Cookies() []Cookie {
	out := make([]Cookie, len(b.cookies))
	copy(out, b.cookies)
	return out
}

// Len returns the number of cookies in the bundle.
func (b CredentialBundle) Len() int { return len(b.cookies) }

// HTTPCookies converts the bundle into request cookies.
func (b CredentialBundle) HTTPCookies() []*http.Cookie {
	out := make([]*http.Cookie, 0, len(b.cookies))
	for _, c := range b.cookies {
		out = append(out, &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   "/",
		})
	}
	return out
}

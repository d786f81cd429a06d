package model

import "strings"

// FrontdoorPath is Salesforce's session-bridging servlet.
const FrontdoorPath = "/secur/frontdoor.jsp?sid="

// FrontdoorURL builds the URL that turns an access token into a browser
// session on instanceURL.
func FrontdoorURL(instanceURL, accessToken string) string {
	return strings.TrimRight(instanceURL, "/") + FrontdoorPath + accessToken
}

// SelectorSet holds ordered CSS selector candidates for the login form. The
// injected routine uses the first candidate that matches on the page.
type SelectorSet struct {
	Username []string `json:"username"`
	Password []string `json:"password"`
	Submit   []string `json:"submit"`
}

// DefaultSelectors matches the standard Salesforce login page, falling back
// to generic email/password/submit inputs.
func DefaultSelectors() SelectorSet {
	return SelectorSet{
		Username: []string{"#username", `input[type="email"]`},
		Password: []string{"#password", `input[type="password"]`},
		Submit:   []string{"#Login", `button[type="submit"]`},
	}
}

// InjectionKind discriminates Injection payloads.
type InjectionKind string

const (
	InjectionFrontdoor    InjectionKind = "frontdoor"
	InjectionPasswordForm InjectionKind = "password_form"
)

// Injection is what the browser host runs inside a login tab: either a
// navigation to a frontdoor URL or a form fill with the given selectors.
type Injection struct {
	Kind      InjectionKind `json:"kind"`
	URL       string        `json:"url,omitempty"`
	Username  string        `json:"username,omitempty"`
	Password  string        `json:"password,omitempty"`
	Selectors *SelectorSet  `json:"selectors,omitempty"`
}

// FrontdoorInjection navigates the tab into an authenticated session.
func FrontdoorInjection(org Org) Injection {
	return Injection{
		Kind: InjectionFrontdoor,
		URL:  FrontdoorURL(org.InstanceURL, org.AccessToken),
	}
}

// PasswordInjection fills and submits the login form for org.
func PasswordInjection(org Org, selectors SelectorSet) Injection {
	return Injection{
		Kind:      InjectionPasswordForm,
		Username:  org.Username,
		Password:  org.SubmitPassword(),
		Selectors: &selectors,
	}
}

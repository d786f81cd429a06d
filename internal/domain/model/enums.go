package model

// LoginType selects the Salesforce login host and the OAuth config bucket
// an org belongs to.
type LoginType string

const (
	LoginTypeProduction LoginType = "prod"
	LoginTypeSandbox    LoginType = "sandbox"
)

// Login hosts for the two org types.
const (
	ProductionLoginURL = "https://login.salesforce.com"
	SandboxLoginURL    = "https://test.salesforce.com"
)

// Valid reports whether t is one of the known login types.
func (t LoginType) Valid() bool {
	return t == LoginTypeProduction || t == LoginTypeSandbox
}

// LoginURL returns the standard login host for the login type. Unknown
// types fall back to production.
func (t LoginType) LoginURL() string {
	if t == LoginTypeSandbox {
		return SandboxLoginURL
	}
	return ProductionLoginURL
}

// DisplayName is the human label used when naming freshly connected orgs.
func (t LoginType) DisplayName() string {
	if t == LoginTypeSandbox {
		return "Sandbox"
	}
	return "Production"
}

// AuthMethod selects which credential group of an Org is populated and
// which login strategy runs.
type AuthMethod string

const (
	AuthMethodOAuth    AuthMethod = "oauth"
	AuthMethodPassword AuthMethod = "password"
)

// Valid reports whether m is one of the known auth methods.
func (m AuthMethod) Valid() bool {
	return m == AuthMethodOAuth || m == AuthMethodPassword
}

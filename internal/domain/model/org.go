package model

import "time"

// Org is one connected Salesforce organization. Exactly one credential group
// is meaningful, selected by AuthMethod: the OAuth group (AccessToken,
// RefreshToken, TokenExpiry) or the password group (Username, Password,
// Token, LoginWithToken).
//
// JSON field names match the extension's storage format so existing vault
// blobs stay readable.
type Org struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	InstanceURL string     `json:"instanceUrl"`
	LoginType   LoginType  `json:"loginType"`
	Group       string     `json:"group,omitempty"`
	AuthMethod  AuthMethod `json:"authMethod"`

	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	TokenExpiry  int64  `json:"tokenExpiry,omitempty"` // epoch millis

	Username       string `json:"username,omitempty"`
	Password       string `json:"password,omitempty"`
	Token          string `json:"token,omitempty"`
	LoginWithToken bool   `json:"loginWithToken,omitempty"`

	LastUsed  time.Time `json:"lastUsed,omitzero"`
	CreatedAt time.Time `json:"createdAt"`
}

// Normalize clears the credential group that does not match AuthMethod.
func (o *Org) Normalize() {
	switch o.AuthMethod {
	case AuthMethodOAuth:
		o.Username = ""
		o.Password = ""
		o.Token = ""
		o.LoginWithToken = false
	case AuthMethodPassword:
		o.AccessToken = ""
		o.RefreshToken = ""
		o.TokenExpiry = 0
	}
}

// TokenExpiresAt returns TokenExpiry as a time. The zero time is returned
// when no expiry is recorded.
func (o Org) TokenExpiresAt() time.Time {
	if o.TokenExpiry == 0 {
		return time.Time{}
	}
	return time.UnixMilli(o.TokenExpiry).UTC()
}

// SubmitPassword is the value typed into the password field at login:
// the password with the security token appended when LoginWithToken is set.
func (o Org) SubmitPassword() string {
	if o.LoginWithToken {
		return o.Password + o.Token
	}
	return o.Password
}

// LoginEntryURL is the page a login tab opens on: the instance itself for
// OAuth orgs, the standard login host for password orgs.
func (o Org) LoginEntryURL() string {
	if o.AuthMethod == AuthMethodOAuth {
		return o.InstanceURL
	}
	return o.LoginType.LoginURL()
}

// FindOrg returns the index of the org with the given id, or -1.
func FindOrg(orgs []Org, id string) int {
	for i := range orgs {
		if orgs[i].ID == id {
			return i
		}
	}
	return -1
}

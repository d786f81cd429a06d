package model

// OAuthConfig is the connected-app configuration for one LoginType. It is
// shared by every org of that type and persisted unencrypted.
type OAuthConfig struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret,omitempty"`
	RedirectURI  string `json:"redirectUri"`
	LoginURL     string `json:"loginUrl"`
}

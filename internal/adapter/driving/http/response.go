package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/orgvault/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// UnlockRequest is the JSON body for the unlock endpoint.
type UnlockRequest struct {
	Password string `json:"password"`
}

// ChangePasswordRequest is the JSON body for the change password endpoint.
type ChangePasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

// SessionResponse reports the vault session state.
type SessionResponse struct {
	Unlocked bool `json:"unlocked"`
}

// SuccessResponse acknowledges an org operation, carrying the org when the
// operation produced or changed one.
type SuccessResponse struct {
	Success bool         `json:"success"`
	Org     *OrgResponse `json:"org,omitempty"`
}

// OrgRequest is the JSON body for creating or updating an org. Only the
// credential group matching authMethod is kept.
type OrgRequest struct {
	Name           string `json:"name"`
	InstanceURL    string `json:"instanceUrl"`
	LoginType      string `json:"loginType"`
	Group          string `json:"group"`
	AuthMethod     string `json:"authMethod"`
	AccessToken    string `json:"accessToken"`
	RefreshToken   string `json:"refreshToken"`
	TokenExpiry    int64  `json:"tokenExpiry"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	Token          string `json:"token"`
	LoginWithToken bool   `json:"loginWithToken"`
}

func (r OrgRequest) toModel(id string) model.Org {
	return model.Org{
		ID:             id,
		Name:           r.Name,
		InstanceURL:    r.InstanceURL,
		LoginType:      model.LoginType(r.LoginType),
		Group:          r.Group,
		AuthMethod:     model.AuthMethod(r.AuthMethod),
		AccessToken:    r.AccessToken,
		RefreshToken:   r.RefreshToken,
		TokenExpiry:    r.TokenExpiry,
		Username:       r.Username,
		Password:       r.Password,
		Token:          r.Token,
		LoginWithToken: r.LoginWithToken,
	}
}

// OrgResponse is the JSON representation of an org. Credentials are
// included: the API only listens on loopback and serves the extension that
// owns them.
type OrgResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	InstanceURL    string `json:"instanceUrl"`
	LoginType      string `json:"loginType"`
	Group          string `json:"group,omitempty"`
	AuthMethod     string `json:"authMethod"`
	AccessToken    string `json:"accessToken,omitempty"`
	RefreshToken   string `json:"refreshToken,omitempty"`
	TokenExpiry    int64  `json:"tokenExpiry,omitempty"`
	Username       string `json:"username,omitempty"`
	Password       string `json:"password,omitempty"`
	Token          string `json:"token,omitempty"`
	LoginWithToken bool   `json:"loginWithToken"`
	LastUsed       string `json:"lastUsed,omitempty"`
	CreatedAt      string `json:"createdAt"`
}

// OAuthConfigRequest is the JSON body for saving a connected-app config.
type OAuthConfigRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// OAuthConfigResponse is the JSON representation of a connected-app config.
// The secret itself is never returned.
type OAuthConfigResponse struct {
	LoginType       string `json:"loginType"`
	ClientID        string `json:"clientId"`
	HasClientSecret bool   `json:"hasClientSecret"`
	RedirectURI     string `json:"redirectUri"`
	LoginURL        string `json:"loginUrl"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Unlocked bool   `json:"unlocked"`
	Time     string `json:"time"`
}

// toOrgResponse converts a domain Org to its JSON response representation.
func toOrgResponse(org model.Org) OrgResponse {
	resp := OrgResponse{
		ID:             org.ID,
		Name:           org.Name,
		InstanceURL:    org.InstanceURL,
		LoginType:      string(org.LoginType),
		Group:          org.Group,
		AuthMethod:     string(org.AuthMethod),
		AccessToken:    org.AccessToken,
		RefreshToken:   org.RefreshToken,
		TokenExpiry:    org.TokenExpiry,
		Username:       org.Username,
		Password:       org.Password,
		Token:          org.Token,
		LoginWithToken: org.LoginWithToken,
		CreatedAt:      org.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !org.LastUsed.IsZero() {
		resp.LastUsed = org.LastUsed.UTC().Format(time.RFC3339)
	}
	return resp
}

// toOAuthConfigResponse converts a domain OAuthConfig to its JSON representation.
func toOAuthConfigResponse(lt model.LoginType, cfg model.OAuthConfig) OAuthConfigResponse {
	return OAuthConfigResponse{
		LoginType:       string(lt),
		ClientID:        cfg.ClientID,
		HasClientSecret: cfg.ClientSecret != "",
		RedirectURI:     cfg.RedirectURI,
		LoginURL:        cfg.LoginURL,
	}
}

package httphandler

import (
	"encoding/json"
	"net/http"

	"github.com/ericfisherdev/orgvault/internal/application"
	"github.com/ericfisherdev/orgvault/internal/domain/model"
)

// ListOrgs returns the stored orgs, optionally filtered by loginType and
// group query parameters.
func (h *Handler) ListOrgs(w http.ResponseWriter, r *http.Request) {
	filter := application.OrgFilter{
		LoginType: model.LoginType(r.URL.Query().Get("loginType")),
		Group:     r.URL.Query().Get("group"),
	}

	orgs, err := h.orgs.ListOrgs(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err, "failed to list orgs")
		return
	}

	resp := make([]OrgResponse, 0, len(orgs))
	for _, org := range orgs {
		resp = append(resp, toOrgResponse(org))
	}

	writeJSON(w, http.StatusOK, resp)
}

// CreateOrg stores a new org.
func (h *Handler) CreateOrg(w http.ResponseWriter, r *http.Request) {
	var req OrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	saved, err := h.orgs.SaveOrg(r.Context(), req.toModel(""))
	if err != nil {
		h.writeServiceError(w, err, "failed to create org")
		return
	}

	writeJSON(w, http.StatusCreated, toOrgResponse(saved))
}

// UpdateOrg replaces the org identified by the path.
func (h *Handler) UpdateOrg(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req OrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	saved, err := h.orgs.SaveOrg(r.Context(), req.toModel(id))
	if err != nil {
		h.writeServiceError(w, err, "failed to update org", "org_id", id)
		return
	}

	writeJSON(w, http.StatusOK, toOrgResponse(saved))
}

// DeleteOrg removes an org without contacting Salesforce.
func (h *Handler) DeleteOrg(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.orgs.DeleteOrg(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "failed to delete org", "org_id", id)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Login opens a tab for the org and logs it in. The org is looked up
// synchronously so that a locked vault or unknown id is reported; the login
// itself runs in the background.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, err := h.orgs.GetOrg(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "failed to look up org", "org_id", id)
		return
	}

	// The request context is cancelled once the response is sent.
	h.logins.Add(1)
	go func() {
		defer h.logins.Done()
		if err := h.orgs.OpenAndLogin(h.base, id); err != nil {
			h.logger.Error("async org login failed", "org_id", id, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, SuccessResponse{Success: true})
}

// RefreshToken refreshes the org's OAuth access token.
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	org, err := h.orgs.RefreshToken(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "failed to refresh token", "org_id", id)
		return
	}

	resp := toOrgResponse(org)
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Org: &resp})
}

// RevokeToken revokes the org's access token and removes the org.
func (h *Handler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.orgs.RevokeToken(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "failed to revoke token", "org_id", id)
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// ConnectOAuth runs the interactive OAuth flow and stores the new org. The
// request stays open until the user finishes or abandons the consent page.
func (h *Handler) ConnectOAuth(w http.ResponseWriter, r *http.Request) {
	loginType := model.LoginType(r.PathValue("loginType"))

	org, err := h.orgs.ConnectOAuth(r.Context(), loginType)
	if err != nil {
		h.writeServiceError(w, err, "oauth connect failed", "login_type", loginType)
		return
	}

	resp := toOrgResponse(org)
	writeJSON(w, http.StatusCreated, SuccessResponse{Success: true, Org: &resp})
}

// ListOAuthConfigs returns the stored connected-app configs without their
// client secrets.
func (h *Handler) ListOAuthConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.orgs.OAuthConfigs(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "failed to list oauth configs")
		return
	}

	resp := make([]OAuthConfigResponse, 0, len(configs))
	for _, lt := range []model.LoginType{model.LoginTypeProduction, model.LoginTypeSandbox} {
		if cfg, ok := configs[lt]; ok {
			resp = append(resp, toOAuthConfigResponse(lt, cfg))
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// SaveOAuthConfig stores the connected-app config for a login type.
func (h *Handler) SaveOAuthConfig(w http.ResponseWriter, r *http.Request) {
	loginType := model.LoginType(r.PathValue("loginType"))

	var req OAuthConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg, err := h.orgs.SaveOAuthConfig(r.Context(), loginType, req.ClientID, req.ClientSecret)
	if err != nil {
		h.writeServiceError(w, err, "failed to save oauth config", "login_type", loginType)
		return
	}

	writeJSON(w, http.StatusOK, toOAuthConfigResponse(loginType, cfg))
}

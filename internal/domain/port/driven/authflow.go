package driven

import "context"

// AuthFlow runs the interactive part of the authorization-code flow: it shows
// authURL to the user and returns the URL the authorization server
// redirected to. A user who abandons the flow yields model.ErrOAuthCancelled.
type AuthFlow interface {
	Authorize(ctx context.Context, authURL, redirectURI string) (string, error)
}

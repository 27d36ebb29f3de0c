package httphandler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/pesaplay/mpesa-sim/internal/credentials"
	"github.com/pesaplay/mpesa-sim/internal/httperror"
	"github.com/pesaplay/mpesa-sim/internal/simulator"
)

type oauthResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// OAuthHandler implements GET /oauth/v1/generate?grant_type=client_credentials:
// Basic auth carries the consumer_key/consumer_secret pair, and the minted
// token is scoped to whichever project the resolved api key belongs to.
func OAuthHandler(state *simulator.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		consumerKey, consumerSecret, ok := parseBasicAuth(r)
		if !ok {
			invalidAuthentication().Render(w)
			return
		}

		accessToken, err := state.Credentials.GenerateAccessToken(ctx, consumerKey, consumerSecret)
		if err != nil {
			if errors.Is(err, credentials.ErrTokenInvalid) {
				invalidAuthentication().Render(w)
				return
			}
			httperror.InternalError(ctx, "generating access token", err, nil).Render(w)
			return
		}

		if accessToken.ProjectID != state.ProjectID {
			invalidAuthentication().Render(w)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(oauthResponse{
			AccessToken: accessToken.Token,
			ExpiresIn:   "3600",
		})
	}
}

func invalidAuthentication() *httperror.HTTPError {
	return httperror.Unauthorized("Invalid authentication details provided.", "InvalidAuthenticationPassed", nil, nil)
}

// parseBasicAuth decodes "Authorization: Basic base64(consumer_key:consumer_secret)"
// without relying on http.Request.BasicAuth, which assumes a username never
// contains a colon — consumer keys here are opaque alphanumerics so that
// assumption holds, but decoding explicitly keeps the contract visible.
func parseBasicAuth(r *http.Request) (consumerKey, consumerSecret string, ok bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return "", "", false
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

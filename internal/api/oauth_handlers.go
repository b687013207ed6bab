package api

import (
	"net/http"
	"net/url"

	"github.com/fuomag9/paperdrive/internal/config"
	"github.com/fuomag9/paperdrive/internal/logger"
)

// HandleAuthorize starts the sign-in flow and redirects to the provider
func HandleAuthorize(lib Library, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth, err := lib.BeginAuthorization(r.Context(), r.URL.Query().Get("login_hint"))
		if err != nil {
			respondError(w, log, err)
			return
		}
		http.Redirect(w, r, auth.URL, http.StatusFound)
	}
}

// HandleOAuthCallback completes the sign-in and sends the browser back to the
// frontend with the signed-in identity and its workspace
func HandleOAuthCallback(cfg *config.Config, lib Library, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if providerErr := q.Get("error"); providerErr != "" {
			log.Warn("Provider denied authorization", "error", providerErr)
			respondJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "authorization was denied", Action: "reauthenticate"})
			return
		}

		callbackURL := cfg.OAuth.RedirectURL
		if r.URL.RawQuery != "" {
			callbackURL += "?" + r.URL.RawQuery
		}

		session, err := lib.CompleteAuthorization(r.Context(), q.Get("state"), q.Get("code"), callbackURL)
		if err != nil {
			respondError(w, log, err)
			return
		}

		target, err := url.Parse(cfg.FrontendURL)
		if err != nil {
			respondError(w, log, err)
			return
		}
		params := target.Query()
		params.Set("user_email", session.Identity)
		params.Set("folder_id", session.WorkspaceID)
		target.RawQuery = params.Encode()

		http.Redirect(w, r, target.String(), http.StatusFound)
	}
}

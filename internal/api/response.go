// Package api implements the HTTP front-end of SPEC_FULL §4.6/§12: account
// authentication, per-account rate limiting, and thin document-CRUD
// handlers over the asset store, wired on gorilla/mux the way the teacher's
// marble services register routes.
package api

import (
	"encoding/json"
	"net/http"

	apierr "github.com/h51assets/h51/infrastructure/errors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError renders err as the error_type/hint/arg_errors JSON body the
// external interface table promises, defaulting to a generic 500 for
// errors the handlers didn't wrap as an *errors.APIError.
func writeError(w http.ResponseWriter, err error) {
	apiErr := apierr.As(err)
	if apiErr == nil {
		apiErr = apierr.Internal("internal error", err)
	}
	writeJSON(w, apiErr.HTTPStatus, apiErr)
}

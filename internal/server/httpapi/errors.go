package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/gophauth/internal/common"
)

const msgInternal = "An unexpected error occurred"

type errorResponse struct {
	Error string `json:"error"`
}

type failure struct {
	status  int
	message string
}

// failures maps an error kind to what the client sees. An empty message
// means the error text itself is safe to return.
var failures = map[common.Kind]failure{
	common.KindInvalidCredentials:     {http.StatusUnauthorized, "Invalid email or password"},
	common.KindTokensRefresh:          {http.StatusUnauthorized, "Failed to refresh access token. Please try logging in again."},
	common.KindRefreshTokenNotFound:   {http.StatusUnauthorized, "Failed to refresh access token. Please try logging in again."},
	common.KindRefreshTokenExpired:    {http.StatusUnauthorized, "Failed to refresh access token. Please try logging in again."},
	common.KindUserNotAuthenticated:   {http.StatusUnauthorized, "User is not authenticated. Please log in."},
	common.KindInvalidSignature:       {http.StatusUnauthorized, "Invalid or expired token."},
	common.KindTokenMalformed:         {http.StatusUnauthorized, "Invalid or expired token."},
	common.KindTokenExpired:           {http.StatusUnauthorized, "Invalid or expired token."},
	common.KindTokenUnsupported:       {http.StatusUnauthorized, "Invalid or expired token."},
	common.KindEmailAlreadyRegistered: {http.StatusConflict, "Email is already registered"},
	common.KindPasswordMismatch:       {http.StatusBadRequest, "Password and confirmation do not match"},
	common.KindValidation:             {http.StatusBadRequest, ""},
}

// failureFor resolves err to a status code and public message.
func failureFor(err error) failure {
	f, ok := failures[common.KindOf(err)]
	if !ok {
		return failure{http.StatusInternalServerError, msgInternal}
	}
	if f.message == "" {
		f.message = err.Error()
	}
	return f
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	f := failureFor(err)
	writeJSON(w, f.status, errorResponse{Error: f.message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", common.ErrValidation)
	}
	return nil
}

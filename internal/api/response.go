package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/rxledger/internal/ledger"
)

type errorResponse struct {
	Error    string            `json:"error"`
	Code     ledger.Code       `json:"code,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("error encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, errorResponse{Error: message})
}

// ledgerError writes a rejected ledger command with its code and metadata.
// Anything that is not a ledger error is logged and reported as a 500.
func ledgerError(w http.ResponseWriter, err error) {
	var le *ledger.Error
	if !errors.As(err, &le) {
		slog.Error("ledger command failed", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	jsonResponse(w, statusForCode(le), errorResponse{
		Error:    le.Message,
		Code:     le.Code,
		Metadata: ledger.MetadataOf(le),
	})
}

// statusForCode maps a ledger error to an HTTP status. INVALID_ID is a 404
// when it names a missing entity and a 400 when the id was zero.
func statusForCode(e *ledger.Error) int {
	switch e.Code {
	case ledger.CodeInvalidID:
		if len(e.Metadata) > 0 {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case ledger.CodeNotRegistered, ledger.CodeUnauthorized:
		return http.StatusForbidden
	case ledger.CodeDuplicateRole, ledger.CodeExpired, ledger.CodeRevoked, ledger.CodeAlreadyRevoked,
		ledger.CodeInvalidTransition, ledger.CodeSameOwner:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// pathID parses the {id} path value.
func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// queryInt parses an optional integer query parameter, returning 0 if absent.
func queryInt(r *http.Request, name string) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

// Package handler serves the HTTP API. Write endpoints carry a
// personal-message signature in the body; the recovered signer address
// is the acting principal, so the server never holds user keys.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"parimarket/internal/domain"
)

// writeJSON marshals v and writes it with the given status. A marshal
// failure falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain sentinel errors onto HTTP statuses and
// reports whether it handled the error. Unmapped errors are left to the
// caller's 500 path.
func writeDomainError(w http.ResponseWriter, err error) bool {
	status := 0
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidEndTime),
		errors.Is(err, domain.ErrDescriptionTooLong),
		errors.Is(err, domain.ErrInvalidMinBet),
		errors.Is(err, domain.ErrBetTooSmall):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotAuthority),
		errors.Is(err, domain.ErrNotBettor):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrMarketExists),
		errors.Is(err, domain.ErrBetExists),
		errors.Is(err, domain.ErrMarketResolved),
		errors.Is(err, domain.ErrMarketNotResolved),
		errors.Is(err, domain.ErrMarketExpired),
		errors.Is(err, domain.ErrMarketNotExpired),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrLosingBet),
		errors.Is(err, domain.ErrInsufficientFunds):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrLockHeld):
		status = http.StatusTooManyRequests
	default:
		return false
	}

	writeError(w, status, rootCause(err).Error())
	return true
}

// rootCause unwraps to the innermost error so clients see the sentinel
// message without the service wrapping.
func rootCause(err error) error {
	for {
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return err
		}
		err = unwrapped
	}
}

// parseListOpts extracts pagination from the query string. Defaults:
// limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// marketIDParam parses the {id} path segment as a market id.
func marketIDParam(r *http.Request) (uint64, error) {
	raw := r.PathValue("id")
	if raw == "" {
		return 0, errors.New("missing market id")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New("market id must be an unsigned integer")
	}
	return id, nil
}

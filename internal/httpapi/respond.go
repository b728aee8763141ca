package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
)

const (
	msgInvalidJSON  = "JSON inválido"
	msgNotStrings   = "Campos devem ser strings"
	msgBodyTooLarge = "Corpo da requisição muito grande"
	msgNotReady     = "Bot não está conectado"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"erro": msg})
}

// writeFailure reports a downstream error with its detail.
func writeFailure(w http.ResponseWriter, msg string, err error) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"erro":     msg,
		"detalhes": err.Error(),
	})
}

// decodeJSON reads one JSON object into v. On failure it writes the 400
// (or 413) response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var maxErr *http.MaxBytesError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &maxErr):
		writeError(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
	case errors.As(err, &typeErr):
		writeError(w, http.StatusBadRequest, msgNotStrings)
	default:
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
	}
	return false
}

func required(field string) string {
	return `Campo "` + field + `" é obrigatório`
}

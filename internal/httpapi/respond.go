package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/ha1tch/rserv/internal/apierr"
)

// writeData encodes data as the standard success envelope.
func writeData(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apierr.NewEnvelope(data, r.URL.Path))
}

// writeErr encodes err as the standard error envelope, deriving the
// HTTP status from the error's apierr.Kind (or 500 for unrecognised
// errors).
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	envelope := apierr.NewErrorEnvelope(err, r.URL.Path)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(envelope.Error.StatusCode)
	_ = json.NewEncoder(w).Encode(envelope)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return apierr.Wrap(apierr.KindValidation, "malformed JSON body", err)
	}
	return nil
}

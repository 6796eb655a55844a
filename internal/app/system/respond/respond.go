// Package respond writes the JSON bodies every eventhub endpoint returns,
// including the error envelope {"error":{"code","category","message"}}.
package respond

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/dalemusser/eventhub/internal/app/system/apperr"
	"go.uber.org/zap"
)

// maxBodySize caps request bodies read by ReadJSON (1 MB).
const maxBodySize = 1 << 20

type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code     string `json:"code"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

// JSON writes data with the given status code.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// ReadJSON decodes the request body into v, enforcing a size limit and
// rejecting unknown fields.
func ReadJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Invalid("malformed request body: %v", err)
	}
	return nil
}

// ReadPatch decodes a JSON object body into a generic map.
func ReadPatch(r *http.Request) (map[string]interface{}, error) {
	var patch map[string]interface{}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&patch); err != nil {
		return nil, apperr.Invalid("malformed request body: %v", err)
	}
	if patch == nil {
		return nil, apperr.Invalid("request body must be a JSON object")
	}
	return patch, nil
}

// StatusFor maps an error's kind to an HTTP status.
func StatusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindAuthenticationRequired:
		return http.StatusUnauthorized
	case apperr.KindAuthorizationDenied:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConsistency:
		return http.StatusConflict
	}
	return http.StatusServiceUnavailable
}

// Error writes the envelope for err. Unclassified errors are logged and their
// message is not echoed to the client.
func Error(w http.ResponseWriter, log *zap.Logger, err error) {
	kind := apperr.KindOf(err)
	msg := err.Error()
	if kind == apperr.KindUnknown || kind == apperr.KindTransient {
		if log != nil {
			log.Error("request failed", zap.Error(err))
		}
		msg = "temporary problem, please try again"
		if err == apperr.ErrCreationInProgress {
			msg = err.Error()
		}
	}
	code := kind.String()
	if kind == apperr.KindUnknown {
		code = apperr.KindTransient.String()
	}
	JSON(w, StatusFor(err), errorEnvelope{Error: errorDetail{
		Code:     code,
		Category: apperr.Category(err),
		Message:  msg,
	}})
}

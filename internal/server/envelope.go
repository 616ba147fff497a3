package server

import (
	"encoding/json"
	"errors"
	"net/http"

	usecase "github.com/practice-sem-2/chat-service/internal/usecases"
	"github.com/sirupsen/logrus"
)

// envelope is the body of every API response.
type envelope struct {
	Success bool        `json:"success"`
	Status  int         `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respond(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, &envelope{
		Success: true,
		Status:  status,
		Data:    data,
	})
}

func respondMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, &envelope{
		Success: status < http.StatusBadRequest,
		Status:  status,
		Message: message,
	})
}

// errorStatus picks the HTTP status for err. Unexpected errors are reported
// as opaque 500s.
func errorStatus(err error) (int, string) {
	errorMapper := []struct {
		from   error
		status int
	}{
		{usecase.ErrAuthenticationRequired, http.StatusUnauthorized},
		{usecase.ErrPermissionDenied, http.StatusForbidden},
		{usecase.ErrInvalidArgument, http.StatusBadRequest},
		{usecase.ErrNotFound, http.StatusNotFound},
		{usecase.ErrStoreUnavailable, http.StatusServiceUnavailable},
	}

	for _, mapping := range errorMapper {
		if errors.Is(err, mapping.from) {
			if mapping.status == http.StatusServiceUnavailable {
				return mapping.status, "service temporarily unavailable"
			}
			return mapping.status, err.Error()
		}
	}
	return http.StatusInternalServerError, "internal server error"
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.
			WithError(err).
			WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).
			Error("request failed")
	}
	respondMessage(w, status, message)
}

func (s *Server) decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return invalidArgument("malformed request body")
	}
	if err := s.validate.Struct(dst); err != nil {
		return invalidArgument(err.Error())
	}
	return nil
}

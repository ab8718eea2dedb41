package api

import (
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/agrigate/core/apierror"
	"github.com/relabs-tech/agrigate/core/logger"
)

const maxBodySize = 16 << 20

// envelope builds the body of a failure answer from its client message
type envelope func(message string) interface{}

func messageEnvelope(message string) interface{} {
	return map[string]string{"message": message}
}

func loginEnvelope(message string) interface{} {
	return map[string]interface{}{"success": false, "message": message}
}

func errorEnvelope(message string) interface{} {
	return map[string]string{"error": message}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		logger.FromContext(r.Context()).WithError(err).Errorln("cannot encode response")
		http.Error(w, "Error 5700", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(body)
}

// fail logs e and answers with its status and client message in the given envelope.
// Causes of downstream errors are logged, never sent.
func fail(w http.ResponseWriter, r *http.Request, e *apierror.Error, env envelope) {
	rlog := logger.FromContext(r.Context())
	if e.Kind == apierror.KindDownstream {
		rlog.WithError(e.Err).Errorf("%s %s: %s", r.Method, r.URL.Path, e.Message)
	} else {
		rlog.Infof("%s %s rejected (%s): %s", r.Method, r.URL.Path, e.Kind, e.Message)
	}
	writeJSON(w, r, e.Status(), env(e.Message))
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
}

// Package handlers implements the HTTP surface of the voice gateway:
// session lifecycle, audio ingress, the event stream, and the admin
// guardrail endpoints.
package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/apierror"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/mw"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	apiErr, status := apierror.FromError(err, reqID)
	writeJSON(w, status, apierror.Envelope{Error: apiErr})
}

func writeAPIError(w http.ResponseWriter, r *http.Request, apiErr *apierror.Error) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if apiErr.RequestID == "" {
		apiErr.RequestID = reqID
	}
	writeJSON(w, apierror.StatusFromType(apiErr.Type), apierror.Envelope{Error: apiErr})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

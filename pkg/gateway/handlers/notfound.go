package handlers

import (
	"net/http"

	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/apierror"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeAPIError(w, r, apierror.NewNotFoundError("not found"))
}

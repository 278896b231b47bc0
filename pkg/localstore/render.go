package localstore

import (
	"net/http"

	"github.com/go-chi/render"
)

type statusResponse struct {
	HTTPStatusCode int    `json:"-"`
	Status         string `json:"status"`
}

func (sr *statusResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, sr.HTTPStatusCode)
	return nil
}

var okResponse = &statusResponse{Status: "OK", HTTPStatusCode: http.StatusOK}

type errResponse struct {
	HTTPStatusCode int    `json:"-"`
	ErrorType      string `json:"errorType,omitempty"`
	ErrorMessage   string `json:"errorMessage"`
}

func (e *errResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func renderError(w http.ResponseWriter, r *http.Request, code int, errorType string, err error) {
	render.Render(w, r, &errResponse{
		HTTPStatusCode: code,
		ErrorType:      errorType,
		ErrorMessage:   err.Error(),
	})
}

/*
Package resp renders the admin API's JSON response envelope.

Every response carries a business code and message; business failures ride
whatever HTTP status their error template sets, HTTP 200 by default.
*/
package resp

import (
	"encoding/json"
	"net/http"

	"chatwire/internal/pkg/errs"
	"chatwire/internal/pkg/logx"
)

// JSONResponse is the envelope returned by every admin API endpoint.
type JSONResponse struct {
	// Code is the business status code, 0 for success (see the errs package).
	Code int `json:"code"`

	// Message describes the outcome for the caller.
	Message string `json:"message"`

	// Data holds the endpoint's payload, if any.
	Data any `json:"data,omitempty"`
}

// RespondJSON writes the payload with the given HTTP status.
func RespondJSON(w http.ResponseWriter, r *http.Request, httpStatus int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	response, err := json.Marshal(payload)
	if err != nil {
		logx.Error(err, "Error encoding JSON response", "http_status", httpStatus)
		http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(httpStatus)
	w.Write(response)
}

// RespondSuccess writes a code-0 envelope with HTTP 200.
func RespondSuccess(w http.ResponseWriter, r *http.Request, data any) {
	RespondJSON(w, r, http.StatusOK, JSONResponse{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// RespondError writes the error's envelope. A nil error degrades to the
// unclassified internal error rather than panicking.
func RespondError(w http.ResponseWriter, r *http.Request, customErr *errs.CustomError) {
	if customErr == nil {
		customErr = errs.NewError(errs.ErrUnknown)
	}

	RespondJSON(w, r, customErr.Status, JSONResponse{
		Code:    customErr.Code,
		Message: customErr.Message,
	})
}

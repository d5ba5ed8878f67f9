package errors

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Response is the JSON body of every rejection:
//
//	{"code":"401","message":"Authorization header missing"}
//
// Code is the HTTP status rendered as a string.
type Response struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewResponse builds the body for err. Foreign errors collapse to a
// generic 500 so internal causes never reach a caller.
func NewResponse(err error) (int, Response) {
	e, ok := AsError(err)
	if !ok {
		return http.StatusInternalServerError, Response{
			Code:    strconv.Itoa(http.StatusInternalServerError),
			Message: "Internal Server Error",
		}
	}
	status := e.HTTPStatus()
	return status, Response{Code: strconv.Itoa(status), Message: e.Message}
}

// WriteJSON writes the rejection for err and returns the status used.
func WriteJSON(w http.ResponseWriter, err error) int {
	status, body := NewResponse(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
	return status
}

package handlers

import (
	"encoding/json"
	"net/http"

	"parley/pkg/apperr"
	"parley/pkg/utils"
)

// writeErr maps a service error onto the shared error envelope.
func writeErr(w http.ResponseWriter, err error) {
	utils.JSONError(w, apperr.HTTPStatus(err), err.Error())
}

// decode reads a JSON body into v. An empty body is allowed when v's
// fields are all optional; malformed JSON is a 400.
func decode(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("invalid json body")
	}
	return nil
}

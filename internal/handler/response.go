package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/northlane/livechat-server/internal/errors"
	"github.com/northlane/livechat-server/internal/httputil"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

// decodeBody decodes a JSON body into dst and validates its struct tags.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.ValidationError("Invalid JSON body")
	}
	if err := validate.Struct(dst); err != nil {
		return apperrors.ValidationError("Invalid request").WithDetails(validationDetails(err))
	}
	return nil
}

func validationDetails(err error) map[string]string {
	details := map[string]string{}
	if fieldErrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range fieldErrs {
			details[fe.Field()] = fe.Tag()
		}
	}
	return details
}

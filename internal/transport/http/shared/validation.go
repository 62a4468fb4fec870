package shared

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"hrportal/internal/transport/http/api"
	"hrportal/internal/transport/http/middleware"
)

type ValidationIssue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Issues flattens a validation error into per-field reasons sorted by field.
func Issues(err error) []ValidationIssue {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil
	}
	out := make([]ValidationIssue, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationIssue{Field: fe.Field(), Reason: reason(fe)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Field == out[j].Field {
			return out[i].Reason < out[j].Reason
		}
		return out[i].Field < out[j].Field
	})
	return out
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "numeric":
		return "must contain only digits"
	default:
		return "is invalid"
	}
}

// DecodeAndValidate reads a JSON body into dst and runs its validate tags. On
// failure it writes the 400 response itself and returns false.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	requestID := middleware.GetRequestID(r.Context())
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Fail(w, http.StatusRequestEntityTooLarge, api.ErrCodeBodyTooLarge, "request body too large", requestID)
			return false
		}
		api.Fail(w, http.StatusBadRequest, api.ErrCodeInvalidRequest, "invalid request payload", requestID)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		FailValidation(w, requestID, Issues(err))
		return false
	}
	return true
}

func FailValidation(w http.ResponseWriter, requestID string, issues []ValidationIssue) {
	api.FailWithDetails(
		w,
		http.StatusBadRequest,
		api.ErrCodeValidation,
		"payload validation failed",
		map[string]any{"fields": issues},
		requestID,
	)
}

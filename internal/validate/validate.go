// Package validate checks JSON request bodies against struct tags before they
// reach a handler.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

// FieldError is one failed field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

// Struct validates v and returns every failure in struct field order, using
// messages keyed by JSON field name. A nil result means v passed.
func Struct(v any, messages map[string]string) []FieldError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "body", Message: err.Error()}}
	}

	failures := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		failures = append(failures, FieldError{Field: fe.Field(), Message: message(fe.Field(), messages)})
	}
	return failures
}

func message(field string, messages map[string]string) string {
	if msg, ok := messages[field]; ok {
		return msg
	}
	return fmt.Sprintf("%s is required", field)
}

// Body builds middleware that decodes the request body into a T and validates
// it. On failure onFail writes the response and the next handler is skipped.
// The body is restored so the next handler can decode it again.
func Body[T any](onFail func(http.ResponseWriter, []FieldError), messages map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var raw []byte
			if r.Body != nil {
				data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
				_ = r.Body.Close()
				if err == nil {
					raw = data
				}
			}

			var req T
			if len(bytes.TrimSpace(raw)) > 0 {
				if err := json.Unmarshal(raw, &req); err != nil {
					var typeErr *json.UnmarshalTypeError
					if errors.As(err, &typeErr) && typeErr.Field != "" {
						onFail(w, []FieldError{{Field: typeErr.Field, Message: message(typeErr.Field, messages)}})
						return
					}
					// Anything else is treated as an empty body so that every
					// field reports.
					var zero T
					req = zero
				}
			}

			if failures := Struct(&req, messages); len(failures) > 0 {
				onFail(w, failures)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(raw))
			next.ServeHTTP(w, r)
		})
	}
}

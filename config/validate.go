package config

import (
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/kbukum/svckit/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is one failed field check.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their config key.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("mapstructure"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks s against its `validate` struct tags. Failures come back
// as one INVALID_INPUT AppError listing every field under Details["fields"].
func Validate(s any) error {
	err := structValidator().Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperrors.Validation("config validation failed").WithCause(err)
	}

	fields := make([]FieldError, 0, len(verrs))
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		path := fieldPath(fe.Namespace())
		msg := describe(fe)
		fields = append(fields, FieldError{Field: path, Message: msg})
		messages = append(messages, path+": "+msg)
	}
	return apperrors.Validation(strings.Join(messages, "; ")).WithDetail("fields", fields)
}

// fieldPath keeps the config keys of a namespace. Go field names left in
// it belong to the root struct or squashed embeddings.
func fieldPath(namespace string) string {
	var keys []string
	for i, p := range strings.Split(namespace, ".") {
		if i == 0 || p == "" || unicode.IsUpper(rune(p[0])) {
			continue
		}
		keys = append(keys, p)
	}
	return strings.Join(keys, ".")
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "hostname_port":
		return "must be host:port"
	case "url":
		return "must be a valid URL"
	case "required_if":
		return "is required when " + fe.Param()
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}

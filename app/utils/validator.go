package utils

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"provision-svc/app/domains"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		}
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
}

// ValidateStruct validates a struct using go-playground/validator
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		validationErrors, ok := err.(validator.ValidationErrors)
		if !ok {
			return fmt.Errorf("validation failed: %w", err)
		}
		fields := make([]string, 0, len(validationErrors))
		for _, fe := range validationErrors {
			fields = append(fields, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("validation failed: %s", strings.Join(fields, ", "))
	}
	return nil
}

// PayloadError is a status body rejection with the diagnostic returned to the machine
type PayloadError struct {
	Msg string
}

func (e *PayloadError) Error() string {
	return e.Msg
}

// ValidateStatusPayload checks a raw status body and decodes it.
// The body must be ASCII, a JSON object, and carry every required key.
func ValidateStatusPayload(body []byte) (*domains.StatusMessage, error) {
	for i, b := range body {
		if b > 0x7f {
			return nil, &PayloadError{Msg: fmt.Sprintf(
				"Status payload must be ASCII-only: 'ascii' codec can't decode byte 0x%02x in position %d: ordinal not in range(128)",
				b, i)}
		}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return nil, &PayloadError{Msg: fmt.Sprintf("Status payload is not valid JSON:\n%s\n\n", body)}
	}

	var missing []string
	for _, key := range domains.RequiredMessageKeys {
		if _, ok := fields[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, &PayloadError{Msg: fmt.Sprintf(
			"Missing parameter(s) %s in status message.", strings.Join(missing, " "))}
	}

	var msg domains.StatusMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, &PayloadError{Msg: fmt.Sprintf("Status payload has invalid fields: %v", err)}
	}
	return &msg, nil
}

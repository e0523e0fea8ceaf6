package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"ms-booking/internal/models"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeJSON decodes a strongly typed request body and validates its
// `validate` tags. Every failure is an ErrInvalidRequest.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.Is(err, io.EOF):
			return models.Invalidf("request body is empty")
		case errors.As(err, &typeErr):
			return models.Invalidf("field %q must be of type %s", typeErr.Field, typeErr.Type)
		default:
			return models.Invalidf("malformed JSON: %v", err)
		}
	}
	if dec.More() {
		return models.Invalidf("request body must contain a single JSON object")
	}
	return Validate(dst)
}

func Validate(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return models.Invalidf("%s", strings.Join(msgs, "; "))
		}
		return models.Invalidf("%v", err)
	}
	return nil
}

// ParseID parses a positive integer path or query parameter.
func ParseID(raw, name string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, models.Invalidf("%s must be a positive integer", name)
	}
	return id, nil
}

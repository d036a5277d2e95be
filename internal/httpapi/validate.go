package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Sumatoshi-tech/fiberplan/internal/apperr"
	"github.com/Sumatoshi-tech/fiberplan/internal/batch"
)

const computeRequestSchema = `{
	"type": "object",
	"required": ["longitude", "latitude"],
	"properties": {
		"longitude": {"type": "number", "minimum": -180, "maximum": 180},
		"latitude": {"type": "number", "minimum": -90, "maximum": 90}
	}
}`

// The structural ceiling on the coordinates array is deliberately loose; the
// hard operational cap is enforced after decoding.
const uploadRequestSchema = `{
	"type": "object",
	"required": ["coordinates"],
	"properties": {
		"coordinates": {
			"type": "array",
			"minItems": 1,
			"maxItems": 10000000,
			"items": {
				"type": "object",
				"required": ["id", "lat", "lon"],
				"properties": {
					"id": {"type": "integer"},
					"lat": {"type": "number", "minimum": -90, "maximum": 90},
					"lon": {"type": "number", "minimum": -180, "maximum": 180}
				}
			}
		}
	}
}`

var (
	computeSchema = gojsonschema.NewStringLoader(computeRequestSchema)
	uploadSchema  = gojsonschema.NewStringLoader(uploadRequestSchema)
)

var errMalformedJSON = apperr.New("malformed_json",
	"Malformed JSON request body.", http.StatusUnprocessableEntity)

type validationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func validationError(details []validationDetail) *apperr.Error {
	return apperr.New("validation_error",
		"Request payload validation failed.", http.StatusUnprocessableEntity).
		WithDetails(details)
}

// decodeValidated reads the request body, checks it against schema, and
// unmarshals it into v. Violations surface as 422 with per-field details.
func decodeValidated(r *http.Request, schema gojsonschema.JSONLoader, v any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return payloadTooLarge(maxBytesErr.Limit)
		}

		return fmt.Errorf("read request body: %w", err)
	}

	if !json.Valid(body) {
		return errMalformedJSON
	}

	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return errMalformedJSON
	}

	if !result.Valid() {
		details := make([]validationDetail, 0, len(result.Errors()))
		for _, schemaErr := range result.Errors() {
			details = append(details, validationDetail{
				Field:   schemaErr.Field(),
				Message: schemaErr.Description(),
			})
		}

		return validationError(details)
	}

	if unmarshalErr := json.Unmarshal(body, v); unmarshalErr != nil {
		return errMalformedJSON
	}

	return nil
}

type computeRequest struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

type uploadRequest struct {
	Coordinates []batch.Point `json:"coordinates"`
}

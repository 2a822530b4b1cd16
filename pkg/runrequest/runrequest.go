// Package runrequest defines the wire form of a pipeline run request and its
// validation. The web API and the queue trigger both accept this payload.
package runrequest

import (
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"

	"github.com/redflow/redflow/pkg/errs"
	"github.com/redflow/redflow/pkg/pipeline"
)

// Schema is the JSON schema every raw run payload must satisfy before it is
// bound and validated further.
const Schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["source_url"],
  "properties": {
    "source_url": {"type": "string", "minLength": 1},
    "annotation": {"type": "string"},
    "identity": {"type": "string"},
    "preview": {"type": "boolean"}
  },
  "additionalProperties": false
}`

// RunRequest is the accepted payload shape. SourceURL is passed through to
// the source parser verbatim; the parser owns the judgement of which forms
// are valid.
type RunRequest struct {
	SourceURL  string `json:"source_url"           validate:"required"`
	Annotation string `json:"annotation,omitempty"`
	Identity   string `json:"identity,omitempty"`
	Preview    bool   `json:"preview,omitempty"`
}

// Pipeline converts the wire request into the engine request.
func (r *RunRequest) Pipeline() pipeline.Request {
	return pipeline.Request{
		SourceURL:  r.SourceURL,
		Annotation: r.Annotation,
		Identity:   r.Identity,
	}
}

var (
	schema   = gojsonschema.NewStringLoader(Schema)
	validate = validator.New(validator.WithRequiredStructEnabled())
)

// Decode validates raw JSON against the schema, binds it and validates the
// field contents. All failures are invalid_input errors with the offending
// details attached.
func Decode(raw []byte) (*RunRequest, error) {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidInput, "run request is not valid JSON", err)
	}

	if !result.Valid() {
		violations := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			violations = append(violations, desc.String())
		}

		return nil, errs.New(errs.KindInvalidInput, "run request does not match the expected shape").
			WithDetail("violations", strings.Join(violations, "; "))
	}

	var req RunRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, errs.Wrap(errs.KindInvalidInput, "failed to bind run request", err)
	}

	if err := validate.Struct(&req); err != nil {
		return nil, errs.Wrap(errs.KindInvalidInput, "run request failed validation", err)
	}

	return &req, nil
}

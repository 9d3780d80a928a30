package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Mateo9804/gastoclaro/internal/models"
)

const resultSchemaURL = "https://gastoclaro.app/schemas/ocr_result.json"

const resultSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "vendor_name":  {"type": ["string", "null"], "maxLength": 255},
    "total_amount": {
      "oneOf": [
        {"type": "number", "minimum": 0},
        {"type": "string", "pattern": "^[0-9]+([.,][0-9]+)?$"},
        {"type": "null"}
      ]
    },
    "currency":     {"type": ["string", "null"], "maxLength": 10},
    "date":         {"oneOf": [{"type": "string", "format": "date"}, {"type": "null"}]},
    "raw_text":     {"type": ["string", "null"]}
  }
}`

var resultSchema = mustCompile(resultSchemaURL, resultSchemaJSON)

func mustCompile(url, src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource(url, strings.NewReader(src)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", url, err))
	}
	return compiler.MustCompile(url)
}

// Decode validates one ocr_results entry as received from the client.
// Bracketed form fields win over a JSON document for the same file.
func Decode(p models.ExtractionPayload) (*models.ExtractionResult, error) {
	if len(p.Fields) > 0 {
		return DecodeFields(p.Fields)
	}
	return DecodeResult(p.JSON)
}

// DecodeResult validates one ocr_results entry and decodes it. An empty
// document or JSON null means no extraction was supplied for that file.
func DecodeResult(data []byte) (*models.ExtractionResult, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("ocr result is not valid JSON: %w", err)
	}
	if err := resultSchema.Validate(doc); err != nil {
		return nil, describe(err)
	}

	// A comma decimal mark ("12,50") passes the schema; decimal wants a dot.
	fields := doc.(map[string]any)
	if amount, ok := fields["total_amount"].(string); ok {
		fields["total_amount"] = strings.Replace(amount, ",", ".", 1)
	}
	normalized, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal ocr result: %w", err)
	}

	var result models.ExtractionResult
	if err := json.Unmarshal(normalized, &result); err != nil {
		return nil, fmt.Errorf("decode ocr result: %w", err)
	}
	return &result, nil
}

// describe reduces a schema failure to "<field>: <reason>" of its first leaf.
func describe(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	field := strings.TrimPrefix(ve.InstanceLocation, "/")
	if field == "" {
		return errors.New(ve.Message)
	}
	return fmt.Errorf("%s: %s", field, ve.Message)
}

// DecodeFields builds an entry from flat form fields such as
// ocr_results[0][vendor_name] and validates it like a JSON document.
func DecodeFields(fields map[string]string) (*models.ExtractionResult, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	doc := make(map[string]any, len(fields))
	for k, v := range fields {
		if v == "" || v == "null" || v == "undefined" {
			continue
		}
		doc[k] = v
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal ocr fields: %w", err)
	}
	return DecodeResult(b)
}

package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// FieldError locates one schema violation by its JSON path.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// SchemaValidationError is returned when a payload does not match the
// declared shape. It is a client error.
type SchemaValidationError struct {
	Errors []FieldError
}

func (e *SchemaValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "schema validation failed: " + strings.Join(parts, "; ")
}

// Fields returns the offending field paths in report order.
func (e *SchemaValidationError) Fields() []string {
	fields := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		fields = append(fields, fe.Field)
	}
	return fields
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.SetTagName("binding")
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// DecodeAnalyzeIssueRequest parses and validates a request body. It has no
// side effects; on failure the error is a *SchemaValidationError.
func DecodeAnalyzeIssueRequest(data []byte) (*AnalyzeIssueRequest, error) {
	var req AnalyzeIssueRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, decodeError(data, err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// Validate checks the required fields of an already decoded request.
func (r *AnalyzeIssueRequest) Validate() error {
	return validateStruct(r)
}

// Validate checks the required fields of a single file entry.
func (f FileInfo) Validate() error {
	return validateStruct(f)
}

func validateStruct(v any) error {
	err := structValidator().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &SchemaValidationError{Errors: []FieldError{{Field: "body", Message: err.Error()}}}
	}

	out := &SchemaValidationError{Errors: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Errors = append(out.Errors, FieldError{
			Field:   fieldPath(fe.Namespace()),
			Message: tagMessage(fe),
		})
	}
	return out
}

// fieldPath drops the root type name from a validator namespace, turning
// "AnalyzeIssueRequest.filteredFiles[0].name" into "filteredFiles[0].name".
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field required"
	default:
		return fmt.Sprintf("failed %q constraint", fe.Tag())
	}
}

func decodeError(data []byte, err error) error {
	var labelErr *nullLabelError
	if errors.As(err, &labelErr) {
		return &SchemaValidationError{Errors: []FieldError{{
			Field:   fmt.Sprintf("issueDetails.labels[%d]", labelErr.index),
			Message: "expected string, got null",
		}}}
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "filteredFiles" || strings.HasPrefix(typeErr.Field, "filteredFiles.") {
			if located := locateFileError(data); located != nil {
				return located
			}
		}
		return typeError(typeErr.Field, typeErr)
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return &SchemaValidationError{Errors: []FieldError{{
			Field:   "body",
			Message: fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset),
		}}}
	}

	return &SchemaValidationError{Errors: []FieldError{{Field: "body", Message: err.Error()}}}
}

func typeError(field string, typeErr *json.UnmarshalTypeError) *SchemaValidationError {
	if field == "" {
		field = "body"
	}
	return &SchemaValidationError{Errors: []FieldError{{
		Field:   field,
		Message: fmt.Sprintf("expected %s, got %s", jsonKind(typeErr.Type), typeErr.Value),
	}}}
}

// locateFileError decodes filteredFiles one element at a time to find the
// index encoding/json leaves out of its error. It returns nil when no
// single element is at fault.
func locateFileError(data []byte) *SchemaValidationError {
	var outer struct {
		FilteredFiles []json.RawMessage `json:"filteredFiles"`
	}
	if err := json.Unmarshal(data, &outer); err != nil {
		return nil
	}

	for i, raw := range outer.FilteredFiles {
		var f FileInfo
		var typeErr *json.UnmarshalTypeError
		if err := json.Unmarshal(raw, &f); errors.As(err, &typeErr) {
			field := fmt.Sprintf("filteredFiles[%d]", i)
			if typeErr.Field != "" {
				field += "." + typeErr.Field
			}
			return typeError(field, typeErr)
		}
	}
	return nil
}

func jsonKind(t reflect.Type) string {
	if t == nil {
		return "value"
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Struct, reflect.Map, reflect.Pointer:
		return "object"
	case reflect.Bool:
		return "boolean"
	default:
		return "number"
	}
}

package validation

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Schema names an embedded request body schema.
type Schema string

// Request body schemas.
const (
	DeploySchema  Schema = "deploy.json"
	DestroySchema Schema = "destroy.json"
)

var (
	schemaMu sync.Mutex
	compiled = map[Schema]*jsonschema.Schema{}
)

func loadSchema(name Schema) (*jsonschema.Schema, error) {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	if sch, ok := compiled[name]; ok {
		return sch, nil
	}

	data, err := schemaFS.ReadFile("schemas/" + string(name))
	if err != nil {
		return nil, fmt.Errorf("reading schema %s: %w", name, err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	url := "mem://schemas/" + string(name)
	if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("adding schema %s: %w", name, err)
	}
	sch, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compiling schema %s: %w", name, err)
	}

	compiled[name] = sch
	return sch, nil
}

// ValidateDocument checks a raw JSON request body against the named schema.
// A non-nil error means the body is not JSON at all; schema violations are
// returned as FieldErrors.
func ValidateDocument(name Schema, body []byte) (FieldErrors, error) {
	sch, err := loadSchema(name)
	if err != nil {
		return nil, err
	}

	var document any
	if err := json.Unmarshal(body, &document); err != nil {
		return nil, fmt.Errorf("decoding request body: %w", err)
	}

	err = sch.Validate(document)
	if err == nil {
		return nil, nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return nil, err
	}

	var errs FieldErrors
	collectSchemaErrors(verr, &errs)
	if !errs.HasErrors() {
		errs.Add("body", "", verr.Message)
	}
	return errs, nil
}

// collectSchemaErrors flattens the leaves of a schema error tree into
// field-level validation errors.
func collectSchemaErrors(verr *jsonschema.ValidationError, errs *FieldErrors) {
	if len(verr.Causes) > 0 {
		for _, cause := range verr.Causes {
			collectSchemaErrors(cause, errs)
		}
		return
	}

	field := strings.TrimPrefix(verr.InstanceLocation, "/")
	if field != "" {
		errs.Add(field, "", verr.Message)
		return
	}

	// Missing required properties are reported against the document root
	// with the property names quoted in the message.
	if names := quoted(verr.Message); len(names) > 0 {
		for _, name := range names {
			errs.Add(name, "", name+" is required")
		}
		return
	}

	errs.Add("body", "", verr.Message)
}

// quoted returns the single-quoted substrings of s.
func quoted(s string) []string {
	var out []string
	for {
		start := strings.IndexByte(s, '\'')
		if start < 0 {
			return out
		}
		end := strings.IndexByte(s[start+1:], '\'')
		if end < 0 {
			return out
		}
		out = append(out, s[start+1:start+1+end])
		s = s[start+end+2:]
	}
}

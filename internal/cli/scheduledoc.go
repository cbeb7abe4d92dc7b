package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/h2non/filetype"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/neekly/neekly/internal/planner"
)

const scheduleSchemaURL = "inline://schedule"

// scheduleSchema describes one schedule document in an input file.
const scheduleSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["title", "startTime", "endTime"],
  "additionalProperties": false,
  "properties": {
    "scheduleUid": {"type": "string", "minLength": 1},
    "title": {"type": "string", "minLength": 1},
    "content": {"type": "string"},
    "startTime": {"type": "string", "format": "date-time"},
    "endTime": {"type": "string", "format": "date-time"}
  }
}`

var compiledScheduleSchema = mustCompileSchema(scheduleSchemaURL, scheduleSchema)

func mustCompileSchema(url, schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	compiler.LoadURL = func(u string) (io.ReadCloser, error) {
		if u == url {
			return io.NopCloser(strings.NewReader(schema)), nil
		}
		return nil, fmt.Errorf("unsupported schema ref: %s", u)
	}
	if err := compiler.AddResource(url, strings.NewReader(schema)); err != nil {
		panic(err)
	}
	return compiler.MustCompile(url)
}

// LoadSchedulesFromMultiYAMLFile reads schedule documents from a YAML file.
// Documents are separated by "---" and may reference {{ .ENV.NAME }}.
func LoadSchedulesFromMultiYAMLFile(filename string) ([]planner.ScheduleInput, error) {
	docs, err := ParseMultiYAML(filename)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%s: no schedules found", filename)
	}
	inputs := make([]planner.ScheduleInput, 0, len(docs))
	for _, doc := range docs {
		in, err := scheduleFromDocument(doc.Fields)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", filename, doc.Line, err)
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// scheduleFromDocument checks a decoded YAML document against the schedule
// schema and converts it.
func scheduleFromDocument(doc map[string]any) (planner.ScheduleInput, error) {
	var in planner.ScheduleInput
	data, err := json.Marshal(doc)
	if err != nil {
		return in, fmt.Errorf("unable to convert document: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return in, err
	}
	if err := compiledScheduleSchema.Validate(v); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return in, fmt.Errorf("invalid schedule: %s", leafMessage(verr))
		}
		return in, fmt.Errorf("invalid schedule: %w", err)
	}

	if err := json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("invalid schedule: %w", err)
	}
	return in, nil
}

// leafMessage returns the innermost cause, which names the failing field.
func leafMessage(verr *jsonschema.ValidationError) string {
	for len(verr.Causes) > 0 {
		verr = verr.Causes[0]
	}
	if verr.InstanceLocation == "" {
		return verr.Message
	}
	return fmt.Sprintf("%s: %s", strings.TrimPrefix(verr.InstanceLocation, "/"), verr.Message)
}

// readNotesFile reads free text notes. Binary files such as images or
// archives are refused.
func readNotesFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return "", fmt.Errorf("%s is empty", path)
	}
	header := data
	if len(header) > 261 {
		header = header[:261]
	}
	kind, err := filetype.Match(header)
	if err != nil {
		return "", err
	}
	if kind != filetype.Unknown {
		return "", fmt.Errorf("%s is a %s file, notes must be plain text", path, kind.MIME.Value)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s is not valid UTF-8 text", path)
	}
	return strings.TrimSpace(string(data)), nil
}

func replaceTabsWithSpaces(b []byte) []byte {
	return bytes.ReplaceAll(b, []byte("\t"), []byte("    "))
}

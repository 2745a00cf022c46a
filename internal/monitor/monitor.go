// Package monitor validates inbound submit-payment requests against a JSON
// schema before a session is created, so malformed submissions never reach
// the gateway.
package monitor

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ContractMonitor validates request bodies against a JSON schema.
type ContractMonitor struct {
	schemaLoader gojsonschema.JSONLoader
}

// NewContractMonitor loads and compiles a schema from a file path.
func NewContractMonitor(schemaPath string) (*ContractMonitor, error) {
	return newMonitor(gojsonschema.NewReferenceLoader("file://" + schemaPath))
}

// NewContractMonitorFromBytes compiles an embedded schema document.
func NewContractMonitorFromBytes(schema []byte) (*ContractMonitor, error) {
	return newMonitor(gojsonschema.NewBytesLoader(schema))
}

func newMonitor(loader gojsonschema.JSONLoader) (*ContractMonitor, error) {
	if _, err := gojsonschema.NewSchema(loader); err != nil {
		return nil, fmt.Errorf("monitor: loading or compiling schema: %w", err)
	}
	return &ContractMonitor{schemaLoader: loader}, nil
}

// Validate checks requestBody against the schema. It returns true if valid,
// or false and the validation messages if not.
func (cm *ContractMonitor) Validate(requestBody []byte) (bool, []string, error) {
	documentLoader := gojsonschema.NewBytesLoader(requestBody)
	result, err := gojsonschema.Validate(cm.schemaLoader, documentLoader)
	if err != nil {
		return false, nil, fmt.Errorf("monitor: validating request: %w", err)
	}
	if result.Valid() {
		return true, nil, nil
	}
	var errors []string
	for _, desc := range result.Errors() {
		errors = append(errors, desc.String())
	}
	return false, errors, nil
}

// FormatErrors joins validation messages into a single user-facing string.
func FormatErrors(validationErrors []string) string {
	if len(validationErrors) == 0 {
		return ""
	}
	return "Validation errors: " + strings.Join(validationErrors, "; ")
}

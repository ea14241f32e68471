package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/songzhibin97/workflow-steps/types"
)

// toJSON converts YAML, or JSON which is valid YAML, into JSON so that the
// step decoders see a single format.
func toJSON(data []byte) ([]byte, error) {
	var value interface{}
	if err := yaml.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("failed to parse input: %w", err)
	}
	return json.Marshal(value)
}

// loadSteps reads a YAML or JSON list of steps.
func loadSteps(path string) ([]types.Step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read steps: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return types.DecodeSteps(data)
	}
	converted, err := toJSON(data)
	if err != nil {
		return nil, err
	}
	return types.DecodeSteps(converted)
}

// parseRecord parses card data given inline or, with a leading @, read from
// a file.
func parseRecord(value string) (types.Updates, error) {
	if value == "" {
		return types.Updates{}, nil
	}
	data := []byte(value)
	if strings.HasPrefix(value, "@") {
		var err error
		if data, err = os.ReadFile(value[1:]); err != nil {
			return nil, fmt.Errorf("failed to read data: %w", err)
		}
	}
	converted, err := toJSON(data)
	if err != nil {
		return nil, err
	}
	var record types.Updates
	if err := json.Unmarshal(converted, &record); err != nil {
		return nil, fmt.Errorf("data must be an object: %w", err)
	}
	if record == nil {
		record = types.Updates{}
	}
	return record, nil
}

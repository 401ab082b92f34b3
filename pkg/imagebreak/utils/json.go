// Package utils holds small helpers shared across the provider and core
// layers, mostly around tolerating messy model output.
package utils

import (
	"encoding/json"
	"strings"
)

// CleanModelJSON strips markdown fences and surrounding prose from a model
// reply, keeping only the outermost JSON object. Models are asked for bare
// JSON but frequently wrap it anyway.
func CleanModelJSON(response string) string {
	response = strings.ReplaceAll(response, "```json", "")
	response = strings.ReplaceAll(response, "```", "")

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start >= 0 && end > start {
		response = response[start : end+1]
	}

	return strings.TrimSpace(response)
}

// ParseModelJSON cleans a model reply and unmarshals it into target.
func ParseModelJSON(response string, target any) error {
	return json.Unmarshal([]byte(CleanModelJSON(response)), target)
}

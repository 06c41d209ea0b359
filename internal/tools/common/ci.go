package common

import (
	"encoding/json"
	"io"
)

type CIResult struct {
	Name    string   `json:"name"`
	OK      bool     `json:"ok"`
	Details []string `json:"details,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// PrintCIResult writes one machine-readable result line.
func PrintCIResult(w io.Writer, ok bool, name string, details []string, err error) error {
	res := CIResult{Name: name, OK: ok, Details: details}
	if err != nil {
		res.Error = err.Error()
	}
	return json.NewEncoder(w).Encode(res)
}

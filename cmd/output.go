package main

import (
	"encoding/json"
	"fmt"
	"io"
)

// report prints a result either as a labelled line or, with -j, as one JSON object.
func report(w io.Writer, label string, key string, value any) error {
	if rootJSON {
		return json.NewEncoder(w).Encode(map[string]any{key: value})
	}
	_, err := fmt.Fprintf(w, "%s: %v\n", label, value)
	return err
}

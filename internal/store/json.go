package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nvandessel/gkmerge/internal/experiment"
	"github.com/nvandessel/gkmerge/internal/pathutil"
)

// jsonDocument is the on-disk layout of an exported result.
type jsonDocument struct {
	ID         string             `json:"id"`
	Kind       experiment.Kind    `json:"kind"`
	CreatedAt  string             `json:"created_at"`
	Attributes map[string]any     `json:"attributes"`
	Data       []experiment.Point `json:"data"`
}

// WriteJSON writes the result as an indented JSON document.
func WriteJSON(w io.Writer, res *experiment.Result) error {
	if err := validate(res); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(jsonDocument{
		ID:         res.ID,
		Kind:       res.Kind,
		CreatedAt:  res.CreatedAt.UTC().Format(timeFormat),
		Attributes: res.Attributes,
		Data:       res.Points,
	})
}

// WriteJSONFile writes the result to dir/name.json and returns the path.
// A trailing ".json" in name is not doubled. The name must be a plain file
// name; anything resolving outside dir is rejected.
func WriteJSONFile(dir, name string, res *experiment.Result) (string, error) {
	path, err := pathutil.JoinFile(dir, strings.TrimSuffix(name, ".json")+".json")
	if err != nil {
		return "", err
	}
	if err := EnsureDir(dir); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", pathutil.RedactPath(path), err)
	}
	if err := WriteJSON(f, res); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", pathutil.RedactPath(path), err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", pathutil.RedactPath(path), err)
	}
	return path, nil
}

// ReadJSON decodes a document written by WriteJSON.
func ReadJSON(r io.Reader) (*experiment.Result, error) {
	var doc jsonDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	res := &experiment.Result{
		ID:         doc.ID,
		Kind:       doc.Kind,
		Attributes: doc.Attributes,
		Points:     doc.Data,
	}
	if doc.CreatedAt != "" {
		t, err := parseTime(doc.CreatedAt)
		if err != nil {
			return nil, err
		}
		res.CreatedAt = t
	}
	return res, nil
}

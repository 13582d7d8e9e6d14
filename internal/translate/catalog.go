// Package translate looks up UI strings from a `key => text` catalog file.
package translate

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`%\{([A-Za-z0-9_]+)\}`)

// English strings used when the catalog has no entry and the caller passed no
// fallback.
var defaultStrings = map[string]string{
	"mainPrompt":                "What do you think \"%{word}\" means?",
	"writeDefinition":           "Write the definition in your own words here.",
	"writeNewDefinition":        "Write your new definition in your own words here.",
	"revise":                    "Revise",
	"submit":                    "Submit",
	"cancel":                    "Cancel",
	"iDontKnowYet":              "I don't know yet",
	"record":                    "Record",
	"recording":                 "Recording",
	"stopRecording":             "Stop recording",
	"playRecording":             "Play recording",
	"deleteRecording":           "Delete recording",
	"savingRecording":           "Saving recording",
	"audioDefinition":           "Audio definition %{index}",
	"recordingTimeLimitReached": "Recording time limit reached.",
}

// Catalog implements ports.Translator.
type Catalog struct {
	entries map[string]string
}

// NewCatalog loads a catalog file. An empty path or a missing file yields the
// built-in English strings.
func NewCatalog(path string) (*Catalog, error) {
	catalog := &Catalog{entries: map[string]string{}}
	if strings.TrimSpace(path) == "" {
		return catalog, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return catalog, nil
		}
		return nil, fmt.Errorf("failed to read translation catalog %q: %w", path, err)
	}

	entries, err := parseCatalog(string(contents))
	if err != nil {
		return nil, fmt.Errorf("failed to parse translation catalog %q: %w", path, err)
	}
	catalog.entries = entries
	return catalog, nil
}

// Translate resolves key through the catalog, then fallback, then the
// built-in strings, then the key itself, and fills %{name} placeholders from
// vars. Unknown placeholders are left in place.
func (c *Catalog) Translate(key string, fallback string, vars map[string]string) string {
	text, ok := c.entries[key]
	if !ok {
		switch {
		case fallback != "":
			text = fallback
		case defaultStrings[key] != "":
			text = defaultStrings[key]
		default:
			text = key
		}
	}
	if len(vars) == 0 {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}

func parseCatalog(contents string) (map[string]string, error) {
	entries := map[string]string{}
	for index, raw := range strings.Split(contents, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, text, ok := strings.Cut(line, "=>")
		if !ok {
			return nil, fmt.Errorf("line %d: expected `key => text`", index+1)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("line %d: empty key", index+1)
		}
		entries[key] = strings.TrimSpace(text)
	}
	return entries, nil
}

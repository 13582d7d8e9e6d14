package translate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCatalogLoadsEntriesAndInterpolates(t *testing.T) {
	t.Parallel()

	path := writeCatalog(t, strings.Join([]string{
		"# German",
		"submit => Absenden",
		"audioDefinition => Audiodefinition %{index}",
		"",
	}, "\n"))

	catalog, err := NewCatalog(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := catalog.Translate("submit", "", nil); got != "Absenden" {
		t.Fatalf("unexpected translation %q", got)
	}
	if got := catalog.Translate("audioDefinition", "Audio definition %{index}", map[string]string{"index": "3"}); got != "Audiodefinition 3" {
		t.Fatalf("unexpected interpolation %q", got)
	}
}

func TestCatalogFallbackOrder(t *testing.T) {
	t.Parallel()

	catalog, err := NewCatalog("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := catalog.Translate("iDontKnowYet", "", nil); got != "I don't know yet" {
		t.Fatalf("expected built-in string, got %q", got)
	}
	if got := catalog.Translate("iDontKnowYet", "Keine Ahnung", nil); got != "Keine Ahnung" {
		t.Fatalf("expected caller fallback, got %q", got)
	}
	if got := catalog.Translate("unknownKey", "", nil); got != "unknownKey" {
		t.Fatalf("expected key echo, got %q", got)
	}
}

func TestCatalogLeavesUnknownPlaceholders(t *testing.T) {
	t.Parallel()

	catalog, _ := NewCatalog("")
	got := catalog.Translate("x", "%{a} and %{b}", map[string]string{"a": "1"})
	if got != "1 and %{b}" {
		t.Fatalf("unexpected interpolation %q", got)
	}
}

func TestCatalogMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	catalog, err := NewCatalog(filepath.Join(t.TempDir(), "missing.catalog"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got := catalog.Translate("submit", "", nil); got != "Submit" {
		t.Fatalf("unexpected translation %q", got)
	}
}

func TestCatalogRejectsMalformedLine(t *testing.T) {
	t.Parallel()

	path := writeCatalog(t, "submit Absenden\n")
	if _, err := NewCatalog(path); err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("expected line error, got %v", err)
	}
}

func writeCatalog(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strings.catalog")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}
	return path
}

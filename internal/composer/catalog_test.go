package composer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	angles := DefaultCatalog()
	if len(angles) != 9 {
		t.Fatalf("default catalog has %d angles", len(angles))
	}
	if angles[1].Key != "low angle hero" || angles[1].Label != "Low Angle Hero" {
		t.Fatalf("angle = %+v", angles[1])
	}
	for _, a := range angles {
		if a.Clause == "" || a.Label == "" {
			t.Fatalf("incomplete angle %+v", a)
		}
	}
}

func catalogDoc(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "[[angle]]\nkey = \"angle %d\"\nclause = \"clause %d\"\n\n", i, i)
	}
	return b.String()
}

func TestParseCatalogBounds(t *testing.T) {
	for _, n := range []int{0, 5, 10} {
		if _, err := ParseCatalog(catalogDoc(n)); err == nil {
			t.Fatalf("%d angles should be rejected", n)
		}
	}
	for _, n := range []int{6, 9} {
		angles, err := ParseCatalog(catalogDoc(n))
		if err != nil {
			t.Fatalf("%d angles: %v", n, err)
		}
		if len(angles) != n {
			t.Fatalf("got %d angles", len(angles))
		}
	}
}

func TestParseCatalogRejectsDuplicatesAndBlanks(t *testing.T) {
	dup := catalogDoc(6) + "[[angle]]\nkey = \"Angle 0\"\nclause = \"again\"\n"
	if _, err := ParseCatalog(dup); err == nil {
		t.Fatalf("duplicate key should be rejected")
	}
	blank := catalogDoc(6) + "[[angle]]\nkey = \"x\"\nclause = \" \"\n"
	if _, err := ParseCatalog(blank); err == nil {
		t.Fatalf("blank clause should be rejected")
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	doc := catalogDoc(5) + "[[angle]]\nkey = \"custom\"\nlabel = \"My Custom\"\nclause = \"c\"\n"
	path := filepath.Join(t.TempDir(), "angles.toml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	angles, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if last := angles[len(angles)-1]; last.Label != "My Custom" {
		t.Fatalf("explicit label overwritten: %+v", last)
	}
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("missing file should fail")
	}
	def, err := LoadCatalog("")
	if err != nil || len(def) != 9 {
		t.Fatalf("LoadCatalog(\"\") = %d, %v", len(def), err)
	}
}

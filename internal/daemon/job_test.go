package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeJobFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write job file: %v", err)
	}
	return path
}

func TestParseJob(t *testing.T) {
	path := writeJobFile(t, `
namespace: rpms
branches: [master, f41]
spec: /srv/import/foo.spec
extra_content:
  - /srv/import/configs
sources:
  - /srv/import/foo-1.0.tar.gz
`)

	job, err := ParseJob(path)
	if err != nil {
		t.Fatalf("ParseJob() failed: %v", err)
	}
	if job.Namespace != "rpms" {
		t.Errorf("Namespace = %q", job.Namespace)
	}
	if len(job.Branches) != 2 || job.Branches[0] != "master" {
		t.Errorf("Branches = %v", job.Branches)
	}

	content := job.Content()
	if content.SpecPath != "/srv/import/foo.spec" {
		t.Errorf("SpecPath = %q", content.SpecPath)
	}
	if len(content.ExtraContent) != 1 || len(content.SourcePaths) != 1 {
		t.Errorf("content = %+v", content)
	}
}

func TestParseJobValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing namespace", "branches: [master]\nspec: /a.spec\n", "namespace"},
		{"missing branches", "namespace: rpms\nspec: /a.spec\n", "branch"},
		{"missing spec", "namespace: rpms\nbranches: [master]\n", "spec"},
		{"not yaml", "{{{", "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJob(writeJobFile(t, tt.body))
			if err == nil {
				t.Fatal("ParseJob() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParseJobMissingFile(t *testing.T) {
	if _, err := ParseJob(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("ParseJob() of a missing file succeeded")
	}
}

func TestIsJobFile(t *testing.T) {
	for name, want := range map[string]bool{
		"import.yaml":  true,
		"import.yml":   true,
		"import.json":  false,
		"import.yaml~": false,
		"README":       false,
	} {
		if got := isJobFile(name); got != want {
			t.Errorf("isJobFile(%q) = %v, want %v", name, got, want)
		}
	}
}

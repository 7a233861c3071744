package daemon

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/distbuild/importd/internal/importer"
)

// Job is one import request dropped into the spool directory as a YAML
// file.
type Job struct {
	// Namespace prefixes the repository name (e.g. "user/project").
	Namespace string `yaml:"namespace"`

	// Branches are processed in the given order; the first one seeds the
	// content.
	Branches []string `yaml:"branches"`

	// Spec is the package spec file path.
	Spec string `yaml:"spec"`

	// ExtraContent lists additional files or directories to commit.
	ExtraContent []string `yaml:"extra_content"`

	// Sources lists artifacts for the lookaside store.
	Sources []string `yaml:"sources"`
}

// ParseJob reads and validates a job file.
func ParseJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}

	var job Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse job file %s: %w", path, err)
	}

	if job.Namespace == "" {
		return nil, fmt.Errorf("job %s: namespace is required", path)
	}
	if len(job.Branches) == 0 {
		return nil, fmt.Errorf("job %s: at least one branch is required", path)
	}
	if job.Spec == "" {
		return nil, fmt.Errorf("job %s: spec is required", path)
	}
	return &job, nil
}

// Content returns the job's package content in the importer's shape.
func (j *Job) Content() importer.PackageContent {
	return importer.PackageContent{
		SpecPath:     j.Spec,
		ExtraContent: j.ExtraContent,
		SourcePaths:  j.Sources,
	}
}

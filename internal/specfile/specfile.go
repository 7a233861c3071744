// Package specfile extracts package metadata from RPM spec files.
//
// The importer only needs the package name and the envr string, so this is
// a deliberately small reader: it resolves the Name, Epoch, Version and
// Release tags, expanding %define/%global macros where they are simple
// substitutions and dropping conditional macros (such as %{?dist}) it
// cannot resolve.
package specfile

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// PackageInfo holds the metadata extracted from one spec file.
type PackageInfo struct {
	Name    string
	Epoch   string
	Version string
	Release string
}

// Envr returns the epoch:version-release identifier of the package, with
// the epoch prefix omitted when the spec declares none.
func (p *PackageInfo) Envr() string {
	if p.Epoch != "" {
		return fmt.Sprintf("%s:%s-%s", p.Epoch, p.Version, p.Release)
	}
	return fmt.Sprintf("%s-%s", p.Version, p.Release)
}

var (
	tagRe   = regexp.MustCompile(`(?i)^(Name|Epoch|Version|Release)\s*:\s*(\S.*?)\s*$`)
	macroRe = regexp.MustCompile(`%\{\??([A-Za-z0-9_]+)\}`)
	defRe   = regexp.MustCompile(`^%(?:define|global)\s+([A-Za-z0-9_]+)\s+(\S.*?)\s*$`)
)

// Parse reads the spec file at path and extracts its package metadata.
// It fails if the file cannot be read or if no package name can be
// determined after macro expansion.
func Parse(path string) (*PackageInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file: %w", err)
	}
	defer f.Close()

	macros := make(map[string]string)
	tags := make(map[string]string)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()

		if m := defRe.FindStringSubmatch(line); m != nil {
			macros[strings.ToLower(m[1])] = m[2]
			continue
		}

		if m := tagRe.FindStringSubmatch(line); m != nil {
			tag := strings.ToLower(m[1])
			if _, seen := tags[tag]; !seen {
				tags[tag] = m[2]
				// Tag values double as macros (%{name}, %{version}, ...).
				macros[tag] = m[2]
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read spec file: %w", err)
	}

	info := &PackageInfo{
		Name:    expand(tags["name"], macros),
		Epoch:   expand(tags["epoch"], macros),
		Version: expand(tags["version"], macros),
		Release: expand(tags["release"], macros),
	}
	if info.Name == "" {
		return nil, fmt.Errorf("could not determine package name from %s", path)
	}
	return info, nil
}

// expand substitutes %{macro} references. Unknown conditional macros
// (%{?foo}, e.g. the dist tag) expand to nothing; unknown plain macros are
// kept verbatim so broken specs stay visible in the result.
func expand(value string, macros map[string]string) string {
	for i := 0; i < 8; i++ { // bounded: macros may reference each other
		next := macroRe.ReplaceAllStringFunc(value, func(ref string) string {
			m := macroRe.FindStringSubmatch(ref)
			name := strings.ToLower(m[1])
			if v, ok := macros[name]; ok {
				return v
			}
			if strings.HasPrefix(ref, "%{?") {
				return ""
			}
			return ref
		})
		if next == value {
			break
		}
		value = next
	}
	return strings.TrimSpace(value)
}

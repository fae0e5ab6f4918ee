package suma

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// spNamePattern matches a service-pack descriptor. It is anchored at the very
// start of the content: a tag preceded by anything, a newline included, does
// not count.
var spNamePattern = regexp.MustCompile(`^<SP name="([0-9]{4}-[0-9]{2}-[0-9]{2}-[0-9]{4})">`)

// descriptorGlob returns the pattern of the descriptor files the metadata
// operation writes for level.
func descriptorGlob(metadataDir, level string) string {
	return filepath.Join(metadataDir, "installp", "ppc", level+"*.xml")
}

// ServicePackName returns the service-pack identifier a descriptor starts
// with. Invalid UTF-8 is dropped before matching.
func ServicePackName(content []byte) (string, bool) {
	text := strings.ToValidUTF8(string(content), "")
	m := spNamePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ExtractServicePacks reads every descriptor for level under metadataDir and
// returns the identifiers found, in file name order. Files that do not start
// with a service-pack tag are skipped. The result is never nil.
func ExtractServicePacks(metadataDir, level string) ([]string, error) {
	files, err := filepath.Glob(descriptorGlob(metadataDir, level))
	if err != nil {
		return nil, fmt.Errorf("list descriptors for %s: %w", level, err)
	}
	sort.Strings(files)

	sps := []string{}
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read descriptor: %w", err)
		}
		if sp, ok := ServicePackName(content); ok {
			sps = append(sps, sp)
			continue
		}
		log.Debug("descriptor has no service pack tag", "file", file)
	}
	return sps, nil
}

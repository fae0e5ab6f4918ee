// Package suma drives the AIX Service Update Management Assistant to discover,
// preview and download technical levels and service packs into lpp-sources.
package suma

import (
	"fmt"
	"strings"
)

// Kind is the request type passed to the tool as RqType.
type Kind string

const (
	KindTL     Kind = "TL"
	KindSP     Kind = "SP"
	KindLatest Kind = "Latest"
)

// ParseKind accepts the request type names case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tl":
		return KindTL, nil
	case "sp":
		return KindSP, nil
	case "latest":
		return KindLatest, nil
	default:
		return "", fmt.Errorf("unknown request type %q (use TL, SP or Latest)", s)
	}
}

// Action is the operation passed to the tool as Action.
type Action string

const (
	ActionMetadata Action = "Metadata"
	ActionPreview  Action = "Preview"
	ActionDownload Action = "Download"
)

const bytesPerGiB = 1024 * 1024 * 1024

// Counters summarises a preview or download run, as reported by the tool's
// closing summary lines.
type Counters struct {
	GiB        float64 `json:"gib" yaml:"gib"`
	Downloaded int     `json:"downloaded" yaml:"downloaded"`
	Failed     int     `json:"failed" yaml:"failed"`
	Skipped    int     `json:"skipped" yaml:"skipped"`
}

// Bytes returns the GiB total converted back to bytes.
func (c Counters) Bytes() uint64 {
	return uint64(c.GiB * bytesPerGiB)
}

// Missing reports whether the run found anything left to fetch.
func (c Counters) Missing() bool {
	return c.Downloaded != 0 || c.GiB != 0.0
}

// MetadataResult is the outcome of a metadata request that did not fail hard.
// Reason is set only when OK is false.
type MetadataResult struct {
	OK     bool
	Reason string
}

// PreviewResult is the outcome of a preview run.
type PreviewResult struct {
	Counters Counters
	Missing  bool
}

// DownloadResult is the outcome of a download run. Succeeded, Failed and
// Skipped are the per-line tallies; Counters holds the closing summary.
type DownloadResult struct {
	Counters  Counters
	Succeeded int
	Failed    int
	Skipped   int
}

package suma

import (
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
)

// Known diagnostics the tool writes to stderr (codes 0500-035, 0500-059 and
// 0500-012). Only the message text is matched.
const (
	diagNoFixes     = "No fixes match your query"
	diagEntitlement = "Entitlement is required to download"
	diagDownloadErr = "An error occurred attempting to download"
)

// metadataDiagnostics are the stderr messages that turn a metadata request into
// a soft failure.
var metadataDiagnostics = []string{diagNoFixes, diagEntitlement, diagDownloadErr}

// summaryRule updates one Counters field from a matching stdout line.
type summaryRule struct {
	field   string
	pattern *regexp.Regexp
	apply   func(c *Counters, value string)
}

// extract is the pure half of a rule: the captured value, if the line matches.
func (r summaryRule) extract(line string) (string, bool) {
	m := r.pattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

var summaryRules = []summaryRule{
	{
		field:   "gib",
		pattern: regexp.MustCompile(`Total bytes of updates downloaded: ([0-9]+)`),
		apply: func(c *Counters, v string) {
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				c.GiB = n / 1024 / 1024 / 1024
			}
		},
	},
	{
		field:   "downloaded",
		pattern: regexp.MustCompile(`([0-9]+) downloaded`),
		apply:   setInt(func(c *Counters) *int { return &c.Downloaded }),
	},
	{
		field:   "failed",
		pattern: regexp.MustCompile(`([0-9]+) failed`),
		apply:   setInt(func(c *Counters) *int { return &c.Failed }),
	},
	{
		field:   "skipped",
		pattern: regexp.MustCompile(`([0-9]+) skipped`),
		apply:   setInt(func(c *Counters) *int { return &c.Skipped }),
	},
}

func setInt(field func(*Counters) *int) func(*Counters, string) {
	return func(c *Counters, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			*field(c) = n
		}
	}
}

// OutputClassifier turns the tool's free-form stdout into Counters. Rules are
// applied to every line in order, so across a stream the last matching line
// wins for each field.
type OutputClassifier struct {
	rules []summaryRule
}

// NewOutputClassifier returns a classifier with the summary rules.
func NewOutputClassifier() *OutputClassifier {
	return &OutputClassifier{rules: summaryRules}
}

// Classify applies every matching rule for line to c and returns the names
// of the fields it updated.
func (oc *OutputClassifier) Classify(line string, c *Counters) []string {
	var updated []string
	for _, r := range oc.rules {
		if v, ok := r.extract(line); ok {
			r.apply(c, v)
			updated = append(updated, r.field)
		}
	}
	return updated
}

// Tally counts per-fix result lines while a download runs. It is written by
// the line reader and read by the progress reporter.
type Tally struct {
	succeeded atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
}

// Observe counts line if it is a per-fix result line.
func (t *Tally) Observe(line string) {
	switch {
	case strings.HasPrefix(line, "Download SUCCEEDED:"):
		t.succeeded.Add(1)
	case strings.HasPrefix(line, "Download FAILED:"):
		t.failed.Add(1)
	case strings.HasPrefix(line, "Download SKIPPED:"):
		t.skipped.Add(1)
	}
}

// Snapshot returns the current succeeded, failed and skipped counts.
func (t *Tally) Snapshot() (succeeded, failed, skipped int) {
	return int(t.succeeded.Load()), int(t.failed.Load()), int(t.skipped.Load())
}

// matchDiagnostic returns the first of diags contained in line.
func matchDiagnostic(line string, diags ...string) (string, bool) {
	for _, d := range diags {
		if strings.Contains(line, d) {
			return d, true
		}
	}
	return "", false
}

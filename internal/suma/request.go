package suma

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirEnsurer creates a directory (and parents) if needed.
type DirEnsurer func(path string) error

// EnsureDir is the default DirEnsurer.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

// RequestOptions are the inputs of NewRequest. ToLevel and LppSource may be
// empty; the other fields are mandatory.
type RequestOptions struct {
	Root      string
	FromLevel string
	ToLevel   string
	Kind      Kind
	LppSource string
}

// RequestConfig describes one operation target. It is immutable once built.
type RequestConfig struct {
	root          string
	fromLevel     string
	toLevel       string
	kind          Kind
	lppSource     string
	metadataDir   string
	lppSourcesDir string
}

// NewRequest validates opts, derives the directory layout
//
//	<root>/metadata/<from>
//	<root>/lpp_sources/<kind>/<from>[/<to>]
//
// and makes sure both directories exist. A relative root is resolved against
// the working directory. A nil ensure uses EnsureDir.
func NewRequest(opts RequestOptions, ensure DirEnsurer) (*RequestConfig, error) {
	if ensure == nil {
		ensure = EnsureDir
	}

	switch {
	case strings.TrimSpace(opts.Root) == "":
		return nil, &ConfigurationError{Field: "root", Message: "is required"}
	case strings.TrimSpace(opts.FromLevel) == "":
		return nil, &ConfigurationError{Field: "fromLevel", Message: "is required"}
	case opts.Kind == "":
		return nil, &ConfigurationError{Field: "kind", Message: "is required"}
	}
	kind, err := ParseKind(string(opts.Kind))
	if err != nil {
		return nil, &ConfigurationError{Field: "kind", Message: "is not supported", Err: err}
	}

	root := opts.Root
	if !filepath.IsAbs(root) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, &ConfigurationError{Field: "root", Message: "cannot resolve working directory", Err: err}
		}
		root = filepath.Join(wd, root)
	}

	r := &RequestConfig{
		root:        root,
		fromLevel:   opts.FromLevel,
		toLevel:     opts.ToLevel,
		kind:        kind,
		metadataDir: filepath.Join(root, "metadata", opts.FromLevel),
	}

	r.lppSourcesDir = filepath.Join(root, "lpp_sources", string(kind), opts.FromLevel)
	r.lppSource = "PAA_" + string(kind) + "_" + opts.FromLevel
	if opts.ToLevel != "" {
		r.lppSourcesDir = filepath.Join(r.lppSourcesDir, opts.ToLevel)
		r.lppSource += "_" + opts.ToLevel
	}
	if opts.LppSource != "" {
		r.lppSource = opts.LppSource
	}

	if err := ensure(r.metadataDir); err != nil {
		return nil, &ConfigurationError{Field: "metadataDir", Message: "cannot create " + r.metadataDir, Err: err}
	}
	log.Debug("metadata directory ready", "dir", r.metadataDir)

	if err := ensure(r.lppSourcesDir); err != nil {
		return nil, &ConfigurationError{Field: "lppSourcesDir", Message: "cannot create " + r.lppSourcesDir, Err: err}
	}
	log.Debug("lpp-source directory ready", "dir", r.lppSourcesDir)

	return r, nil
}

func (r *RequestConfig) Root() string          { return r.root }
func (r *RequestConfig) FromLevel() string     { return r.fromLevel }
func (r *RequestConfig) ToLevel() string       { return r.toLevel }
func (r *RequestConfig) Kind() Kind            { return r.kind }
func (r *RequestConfig) MetadataDir() string   { return r.metadataDir }
func (r *RequestConfig) LppSourcesDir() string { return r.lppSourcesDir }

// PackageSourceName is the lpp-source name, PAA_<kind>_<from>[_<to>] unless
// overridden.
func (r *RequestConfig) PackageSourceName() string { return r.lppSource }

// Target is the <kind>/<from>[/<to>] label used in display names and paths
// relative to the lpp_sources directory.
func (r *RequestConfig) Target() string {
	target := string(r.kind) + "/" + r.fromLevel
	if r.toLevel != "" {
		target += "/" + r.toLevel
	}
	return target
}

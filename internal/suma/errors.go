package suma

import "fmt"

// ConfigurationError indicates a request could not be built: a mandatory
// field is missing or one of its directories could not be created.
type ConfigurationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid request %s: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("invalid request %s: %s", e.Field, e.Message)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// LaunchError indicates the tool could not be started at all.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("cannot run %s: %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// MetadataError indicates a metadata operation failed outright. Known tool
// diagnostics are reported through MetadataResult instead.
type MetadataError struct {
	Command string
	Err     error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("metadata command %s failed: %v", e.Command, e.Err)
}

func (e *MetadataError) Unwrap() error { return e.Err }

// PreviewError indicates the tool reported that no fixes match the request.
type PreviewError struct {
	Command string
}

func (e *PreviewError) Error() string {
	return fmt.Sprintf("preview command %s: no fixes match the query", e.Command)
}

// DownloadError indicates the download run did not exit successfully.
type DownloadError struct {
	Command string
	Err     error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download command %s failed: %v", e.Command, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// PreflightError indicates a pre-flight check failed before downloading.
type PreflightError struct {
	Check   string
	Message string
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("preflight check %q failed: %s", e.Check, e.Message)
}

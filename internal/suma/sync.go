package suma

import "context"

// SyncOptions configures Sync.
type SyncOptions struct {
	// MinFreeDiskGiB is kept free on top of the previewed download size.
	// Zero disables the disk space check.
	MinFreeDiskGiB float64
}

// SyncResult is the outcome of Sync. Download is only set when Downloaded is
// true.
type SyncResult struct {
	Preview    PreviewResult
	Downloaded bool
	Download   DownloadResult
}

// Sync previews the request and downloads it only if the preview found
// something missing, using the preview counters as the progress baseline.
func Sync(ctx context.Context, s *Session, opts SyncOptions) (SyncResult, error) {
	var result SyncResult

	preview, err := s.Preview(ctx)
	if err != nil {
		return result, err
	}
	result.Preview = preview

	if !preview.Missing {
		log.Info("nothing to download", "lppSource", s.Request().PackageSourceName())
		return result, nil
	}

	if opts.MinFreeDiskGiB > 0 {
		if err := CheckDiskSpace(s.Request().LppSourcesDir(), preview.Counters.GiB, opts.MinFreeDiskGiB); err != nil {
			return result, err
		}
	}

	baseline := preview.Counters
	download, err := s.Download(ctx, &baseline)
	if err != nil {
		return result, err
	}
	result.Downloaded = true
	result.Download = download
	return result, nil
}

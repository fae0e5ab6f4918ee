package suma

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breeze-rmm/suma-sync/internal/audit"
)

const noFixesLine = "0500-035 No fixes match your query.\n"

func TestPreviewScenarioA(t *testing.T) {
	runner := scripted(fakeRun{stdout: "5 downloaded\nTotal bytes of updates downloaded: 1073741824\n"})
	s := newTestSession(t, runner)

	result, err := s.Preview(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, result.Counters.Downloaded)
	assert.InDelta(t, 1.0, result.Counters.GiB, 1e-9)
	assert.True(t, result.Missing)
	assert.Equal(t, result.Counters, s.Counters())
	require.Len(t, runner.Calls(), 1)
	assert.Equal(t, "Preview", argValue(runner.Calls()[0], "Action"))
}

func TestPreviewScenarioBNothingMissing(t *testing.T) {
	s := newTestSession(t, scripted(fakeRun{}))

	result, err := s.Preview(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Missing)
	assert.Equal(t, Counters{}, result.Counters)
}

func TestPreviewIgnoresExitStatus(t *testing.T) {
	s := newTestSession(t, scripted(fakeRun{
		stdout:  "0 downloaded\n3 failed\n",
		stderr:  "0500-013 Failed to retrieve list from fix server.\n",
		waitErr: &exitError{code: 1},
	}))

	result, err := s.Preview(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Missing)
	assert.Equal(t, 3, result.Counters.Failed)
}

func TestPreviewScenarioDNoFixes(t *testing.T) {
	s := newTestSession(t, scripted(fakeRun{stderr: noFixesLine, waitErr: &exitError{code: 1}}))

	_, err := s.Preview(context.Background())
	var previewErr *PreviewError
	require.ErrorAs(t, err, &previewErr)
	assert.Contains(t, previewErr.Command, "Action=Preview")
	assert.Equal(t, Counters{}, s.Counters())
}

func TestPreviewLaunchFailure(t *testing.T) {
	s := newTestSession(t, scripted(fakeRun{startErr: os.ErrNotExist}))

	_, err := s.Preview(context.Background())
	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMetadataScenarioDSoftFailure(t *testing.T) {
	s := newTestSession(t, scripted(fakeRun{stderr: noFixesLine, waitErr: &exitError{code: 1}}))

	result, err := s.Metadata(context.Background())
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, diagNoFixes, result.Reason)
}

func TestMetadataDiagnostics(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		ok     bool
	}{
		{"clean", "", true},
		{"unrelated stderr", "0500-004 Warning: something odd.\n", true},
		{"no fixes", noFixesLine, false},
		{"entitlement", "0500-059 Entitlement is required to download.\n", false},
		{"download error", "first line\n0500-012 An error occurred attempting to download.\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := scripted(fakeRun{stdout: "Retrieving metadata\n", stderr: tt.stderr})
			s := newTestSession(t, runner)

			result, err := s.Metadata(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.ok, result.OK)
			if tt.ok {
				assert.Empty(t, result.Reason)
			} else {
				assert.NotEmpty(t, result.Reason)
			}
			assert.Equal(t, "Metadata", argValue(runner.Calls()[0], "Action"))
		})
	}
}

func TestMetadataLaunchFailureIsHard(t *testing.T) {
	s := newTestSession(t, scripted(fakeRun{startErr: errors.New("exec format error")}))

	_, err := s.Metadata(context.Background())
	var metaErr *MetadataError
	require.ErrorAs(t, err, &metaErr)
	assert.Contains(t, metaErr.Command, "Action=Metadata")

	var launchErr *LaunchError
	assert.ErrorAs(t, err, &launchErr)
}

func TestMetadataExitStatusAloneIsNotAFailure(t *testing.T) {
	s := newTestSession(t, scripted(fakeRun{waitErr: &exitError{code: 2}}))

	result, err := s.Metadata(context.Background())
	require.NoError(t, err)
	assert.True(t, result.OK)
}

func TestMetadataWaitFailureIsHard(t *testing.T) {
	boom := errors.New("wait: no child processes")
	s := newTestSession(t, scripted(fakeRun{waitErr: boom}))

	_, err := s.Metadata(context.Background())
	var metaErr *MetadataError
	require.ErrorAs(t, err, &metaErr)
	assert.ErrorIs(t, err, boom)
}

const downloadOutput = `Download SUCCEEDED: /lpp/U834567.bff
Download SUCCEEDED: /lpp/U834568.bff
Download FAILED: /lpp/U834569.bff
Summary:
        2 downloaded
        1 failed
        0 skipped
Total bytes of updates downloaded: 2147483648
`

func TestDownloadSuccess(t *testing.T) {
	journal := &recorder{}
	s := newTestSession(t, scripted(fakeRun{stdout: downloadOutput}), WithRecorder(journal))

	baseline := Counters{GiB: 2, Downloaded: 3}
	result, err := s.Download(context.Background(), &baseline)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, Counters{GiB: 2, Downloaded: 2, Failed: 1}, result.Counters)
	assert.Equal(t, result.Counters, s.Counters())
	assert.Equal(t, []string{audit.EventOperationStarted, audit.EventOperationCompleted}, journal.Events())
}

func TestDownloadNonZeroExitIsError(t *testing.T) {
	journal := &recorder{}
	s := newTestSession(t, scripted(fakeRun{stdout: downloadOutput, waitErr: &exitError{code: 1}}), WithRecorder(journal))

	_, err := s.Download(context.Background(), nil)
	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Contains(t, dlErr.Command, "Action=Download")
	assert.Equal(t, Counters{}, s.Counters())
	assert.Equal(t, []string{audit.EventOperationStarted, audit.EventOperationFailed}, journal.Events())
}

func TestDownloadLaunchFailure(t *testing.T) {
	s := newTestSession(t, scripted(fakeRun{startErr: os.ErrPermission}))

	_, err := s.Download(context.Background(), nil)
	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
	var launchErr *LaunchError
	assert.ErrorAs(t, err, &launchErr)
	assert.ErrorIs(t, err, os.ErrPermission)
}

func TestDownloadStopsReporterBeforeReturning(t *testing.T) {
	useTerminal(t)
	out, err := os.Create(filepath.Join(t.TempDir(), "tty"))
	require.NoError(t, err)
	defer out.Close()

	s := newTestSession(t, scripted(fakeRun{stdout: downloadOutput}), WithProgress(out, 2*time.Millisecond))
	baseline := Counters{Downloaded: 3, Failed: 0, Skipped: 0}
	_, err = s.Download(context.Background(), &baseline)
	require.NoError(t, err)

	written, err := os.ReadFile(out.Name())
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	after, err := os.ReadFile(out.Name())
	require.NoError(t, err)

	assert.Equal(t, written, after, "progress reporter kept writing after Download returned")
	text := string(written)
	assert.True(t, strings.HasSuffix(text, "SUCCEEDED: 2/3\tFAILED: 1/0\tSKIPPED: 0/0. (Total time: 0s).\n"), "got %q", text)
}

func TestSessionJournalsMetadataOutcome(t *testing.T) {
	journal := &recorder{}
	s := newTestSession(t, scripted(fakeRun{stderr: noFixesLine}), WithRecorder(journal))

	_, err := s.Metadata(context.Background())
	require.NoError(t, err)

	require.Len(t, journal.entries, 2)
	failed := journal.entries[1]
	assert.Equal(t, audit.EventOperationFailed, failed.eventType)
	assert.Equal(t, s.Request().PackageSourceName(), failed.target)
	assert.Equal(t, "Metadata", failed.details["action"])
	assert.Equal(t, diagNoFixes, failed.details["reason"])
}

func TestConsumeTrimsCarriageReturns(t *testing.T) {
	var lines []string
	err := consume(strings.NewReader("a\r\nb\n\nc"), func(line string) { lines = append(lines, line) })
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "", "c"}, lines)
}

func TestConsumeKeepsReadingAfterOverlongLine(t *testing.T) {
	input := strings.Repeat("x", maxLineSize+4096) + "\nnext\r\nlast"

	var lines []string
	require.NoError(t, consume(strings.NewReader(input), func(line string) {
		lines = append(lines, line)
	}))

	require.Len(t, lines, 3)
	assert.Len(t, lines[0], maxLineSize)
	assert.Equal(t, []string{"next", "last"}, lines[1:])
}

func TestDownloadSucceedsWhenOutputReadFails(t *testing.T) {
	s := newTestSession(t, brokenStdoutRunner{})

	result, err := s.Download(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
}

package suma

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDescriptor(t *testing.T, metadataDir, name, content string) {
	t.Helper()
	dir := filepath.Join(metadataDir, "installp", "ppc")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestServicePackNameScenarioC(t *testing.T) {
	sp, ok := ServicePackName([]byte(`<SP name="7100-03-05-1524"><description/></SP>`))
	assert.True(t, ok)
	assert.Equal(t, "7100-03-05-1524", sp)

	_, ok = ServicePackName([]byte(`<header/><SP name="7100-03-05-1524">`))
	assert.False(t, ok)
}

func TestServicePackNameAnchoredAtContentStart(t *testing.T) {
	_, ok := ServicePackName([]byte("<?xml version=\"1.0\"?>\n<SP name=\"7100-03-05-1524\">"))
	assert.False(t, ok, "a tag on a later line must not match")

	_, ok = ServicePackName([]byte(`<SP name="7100-3-5-1524">`))
	assert.False(t, ok)
}

func TestServicePackNameDropsInvalidUTF8(t *testing.T) {
	sp, ok := ServicePackName([]byte("\xff\xfe<SP name=\"7100-03-06-1543\">"))
	assert.True(t, ok)
	assert.Equal(t, "7100-03-06-1543", sp)
}

func TestExtractServicePacks(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "7100-03-06-1543.xml", `<SP name="7100-03-06-1543">`)
	writeDescriptor(t, dir, "7100-03-05-1524.xml", `<SP name="7100-03-05-1524">`)
	writeDescriptor(t, dir, "7100-03-07-1614.xml", `<header/><SP name="7100-03-07-1614">`)
	writeDescriptor(t, dir, "7100-04-01-1543.xml", `<SP name="7100-04-01-1543">`)
	writeDescriptor(t, dir, "7100-03.txt", `<SP name="7100-03-08-1642">`)

	sps, err := ExtractServicePacks(dir, "7100-03")
	require.NoError(t, err)
	assert.Equal(t, []string{"7100-03-05-1524", "7100-03-06-1543"}, sps)
}

func TestExtractServicePacksNoFiles(t *testing.T) {
	sps, err := ExtractServicePacks(t.TempDir(), "7200-01")
	require.NoError(t, err)
	assert.NotNil(t, sps)
	assert.Empty(t, sps)
}

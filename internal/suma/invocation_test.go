package suma

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildInvocationPreview(t *testing.T) {
	req := newTestRequest(t, RequestOptions{FromLevel: "7100-03", ToLevel: "7100-03-05-1524", Kind: KindSP})
	inv := BuildInvocation("/usr/sbin/suma", req, ActionPreview)

	assert.Equal(t, "/usr/sbin/suma", inv.Path)
	assert.Equal(t, []string{
		"-x",
		"-a", "RqType=SP",
		"-a", "RqName=7100-03-05-1524",
		"-a", "FilterML=7100-03",
		"-a", "DisplayName=Downloading 'SP/7100-03/7100-03-05-1524' lppsources",
		"-a", "Action=Preview",
		"-a", "DLTarget=" + req.LppSourcesDir(),
		"-a", "FilterDir=" + req.LppSourcesDir(),
	}, inv.Args)
}

func TestBuildInvocationMetadata(t *testing.T) {
	req := newTestRequest(t, RequestOptions{FromLevel: "7200-01", Kind: KindLatest})
	inv := BuildInvocation("suma", req, ActionMetadata)

	assert.Empty(t, argValue(inv, "RqName"))
	assert.Equal(t, "Metadata", argValue(inv, "Action"))
	assert.Equal(t, "Latest", argValue(inv, "RqType"))
	assert.Equal(t, req.MetadataDir(), argValue(inv, "DLTarget"))
	assert.Equal(t, req.MetadataDir(), argValue(inv, "FilterDir"))
	assert.Equal(t, "Downloading 'Latest/7200-01' metadata", argValue(inv, "DisplayName"))
}

func TestBuildInvocationForcesCLocale(t *testing.T) {
	t.Setenv("LANG", "fr_FR.UTF-8")
	t.Setenv("LC_ALL", "fr_FR.UTF-8")

	inv := BuildInvocation("suma", newTestRequest(t, RequestOptions{}), ActionDownload)

	var lang, lcAll []string
	for _, kv := range inv.Env {
		switch {
		case len(kv) >= 5 && kv[:5] == "LANG=":
			lang = append(lang, kv)
		case len(kv) >= 7 && kv[:7] == "LC_ALL=":
			lcAll = append(lcAll, kv)
		}
	}
	assert.Equal(t, []string{"LANG=C"}, lang)
	assert.Equal(t, []string{"LC_ALL=C"}, lcAll)
}

func TestInvocationString(t *testing.T) {
	inv := Invocation{
		Path: "/usr/sbin/suma",
		Args: []string{"-x", "-a", "RqType=SP", "-a", "DisplayName=Downloading 'SP/7100-03' lppsources"},
	}
	assert.Equal(t,
		`/usr/sbin/suma -x -a RqType=SP -a DisplayName="Downloading 'SP/7100-03' lppsources"`,
		inv.String())
}

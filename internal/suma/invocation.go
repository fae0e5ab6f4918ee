package suma

import (
	"os"
	"strings"
)

// Invocation is a fully built tool command line. Args are passed to the tool
// as argv, no shell is involved.
type Invocation struct {
	Path string
	Args []string
	Env  []string
}

// BuildInvocation renders the tool arguments for one action on req:
//
//	-x -a RqType=<kind> [-a RqName=<to>] -a FilterML=<from>
//	-a DisplayName=<label> -a Action=<action> -a DLTarget=<dir> -a FilterDir=<dir>
//
// Metadata targets the metadata directory, Preview and Download the
// lpp-source directory.
func BuildInvocation(toolPath string, req *RequestConfig, action Action) Invocation {
	dir := req.LppSourcesDir()
	label := "Downloading '" + req.Target() + "' lppsources"
	if action == ActionMetadata {
		dir = req.MetadataDir()
		label = "Downloading '" + req.Target() + "' metadata"
	}

	args := []string{"-x", "-a", "RqType=" + string(req.Kind())}
	if req.ToLevel() != "" {
		args = append(args, "-a", "RqName="+req.ToLevel())
	}
	args = append(args,
		"-a", "FilterML="+req.FromLevel(),
		"-a", "DisplayName="+label,
		"-a", "Action="+string(action),
		"-a", "DLTarget="+dir,
		"-a", "FilterDir="+dir,
	)

	return Invocation{
		Path: toolPath,
		Args: args,
		Env:  cLocaleEnv(os.Environ()),
	}
}

// String renders the command line the way an operator would type it.
func (i Invocation) String() string {
	parts := make([]string, 0, len(i.Args)+1)
	parts = append(parts, i.Path)
	for _, arg := range i.Args {
		if !strings.ContainsAny(arg, " \t'\"") {
			parts = append(parts, arg)
			continue
		}
		if key, value, ok := strings.Cut(arg, "="); ok {
			parts = append(parts, key+`="`+value+`"`)
		} else {
			parts = append(parts, `"`+arg+`"`)
		}
	}
	return strings.Join(parts, " ")
}

// cLocaleEnv forces the C locale so tool messages match the known texts.
func cLocaleEnv(env []string) []string {
	env = setEnv(env, "LANG", "C")
	return setEnv(env, "LC_ALL", "C")
}

func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}
	return append(out, prefix+value)
}

package version

import "fmt"

const (
	major = 0
	minor = 3
	patch = 0
)

// gitCommit is set by the build via -ldflags.
var gitCommit = ""

// Get returns the semantic version string of the running binary.
func Get() string {
	v := fmt.Sprintf("%d.%d.%d", major, minor, patch)
	if gitCommit != "" {
		v = fmt.Sprintf("%s-%s", v, gitCommit)
	}

	return v
}

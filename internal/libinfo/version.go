/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package libinfo reports the version of go-admission the running binary is built with.
package libinfo

import (
	"debug/buildinfo"
	"regexp"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const libShortName = "go-admission"

const moduleName = "github.com/acronis/" + libShortName

const develVersion = "(devel)"

// PrometheusLibVersionLabel is the name of the constant label added to all metrics of the library.
const PrometheusLibVersionLabel = "go_admission_version"

// AddPrometheusLibVersionLabel returns a copy of labels with the library version label added.
func AddPrometheusLibVersionLabel(labels prometheus.Labels) prometheus.Labels {
	labelsCopy := make(prometheus.Labels, len(labels)+1)
	for k, v := range labels {
		labelsCopy[k] = v
	}
	labelsCopy[PrometheusLibVersionLabel] = GetLibVersion()
	return labelsCopy
}

var libVersion string
var libVersionOnce sync.Once

// GetLibVersion returns the version of the library, or "v0.0.0" if it is unknown.
func GetLibVersion() string {
	libVersionOnce.Do(initLibVersion)
	return libVersion
}

func initLibVersion() {
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		libVersion = extractLibVersion(buildInfo, moduleName)
	}
	if libVersion == "" {
		libVersion = "v0.0.0"
	}
}

// extractLibVersion extracts the version of the given module from the build info.
// The module is either a dependency or the main module (when admissionctl itself is built),
// its path may have a major version suffix ("/vX").
func extractLibVersion(buildInfo *buildinfo.BuildInfo, modName string) string {
	if buildInfo == nil {
		return ""
	}
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(modName) + `(/v[0-9]+)?$`)
	if re.MatchString(buildInfo.Main.Path) && buildInfo.Main.Version != develVersion {
		return buildInfo.Main.Version
	}
	for _, dep := range buildInfo.Deps {
		if re.MatchString(dep.Path) {
			return dep.Version
		}
	}
	return ""
}

// Package hostversion determines the macOS product version of the build node.
package hostversion

import (
	"context"
	"errors"
	"strings"

	"github.com/tyemirov/signkit/internal/execution"
	"github.com/tyemirov/signkit/pkg/logging"
)

const (
	logMessageHostVersion = "detected host version"

	logFieldVersion = "version"
	logFieldSource  = "source"

	sourceOverride = "override"
	sourceSysctl   = "sysctl"
	sourceSwVers   = "sw_vers"
)

var errNativeUnavailable = errors.New("native product version is unavailable on this platform")

// Detector reports the host product version. A configured override wins over
// the kern.osproductversion sysctl, which wins over sw_vers.
type Detector struct {
	override       string
	invoker        *execution.Invoker
	loggingService *logging.Service
	native         func() (string, error)
}

// NewDetector constructs a Detector. override may be empty.
func NewDetector(override string, invoker *execution.Invoker, loggingService *logging.Service) *Detector {
	return &Detector{
		override:       strings.TrimSpace(override),
		invoker:        invoker,
		loggingService: loggingService,
		native:         nativeProductVersion,
	}
}

// Detect returns the product version, for example "14.2.1".
func (detector *Detector) Detect(ctx context.Context) (string, error) {
	if detector.override != "" {
		return detector.report(detector.override, sourceOverride), nil
	}
	if version, err := detector.native(); err == nil && strings.TrimSpace(version) != "" {
		return detector.report(strings.TrimSpace(version), sourceSysctl), nil
	}
	result, err := detector.invoker.Require(ctx, execution.NewCommandLine("sw_vers", "-productVersion"), "failed to read host product version")
	if err != nil {
		return "", err
	}
	version := strings.TrimSpace(result.Output)
	if version == "" {
		return "", errors.New("sw_vers returned an empty product version")
	}
	return detector.report(version, sourceSwVers), nil
}

func (detector *Detector) report(version string, source string) string {
	detector.loggingService.Info(logMessageHostVersion, logging.String(logFieldVersion, version), logging.String(logFieldSource, source))
	return version
}

/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package version reports the gateway build: `gateway version` prints it and the gateway_build_info
// metric exposes it.
package version

import (
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Version may be set at link time: -ldflags "-X github.com/acronis/task-gateway/internal/version.Version=v1.2.3".
var Version = ""

const unknown = "unknown"

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Revision  string `json:"revision"`
	Modified  bool   `json:"modified"`
	GoVersion string `json:"goVersion"`
}

var (
	info     Info
	infoOnce sync.Once
)

// Get returns build information of the running binary.
func Get() Info {
	infoOnce.Do(func() {
		buildInfo, _ := debug.ReadBuildInfo()
		info = extractInfo(buildInfo, Version)
	})
	return info
}

// extractInfo prefers the link-time version, then the main module version, then VCS settings stamped by go build.
func extractInfo(buildInfo *debug.BuildInfo, linkVersion string) Info {
	res := Info{Version: linkVersion, Revision: unknown, GoVersion: unknown}
	if buildInfo == nil {
		if res.Version == "" {
			res.Version = unknown
		}
		return res
	}
	res.GoVersion = buildInfo.GoVersion
	if res.Version == "" && buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
		res.Version = buildInfo.Main.Version
	}
	for _, setting := range buildInfo.Settings {
		switch setting.Key {
		case "vcs.revision":
			res.Revision = setting.Value
		case "vcs.modified":
			res.Modified = setting.Value == "true"
		}
	}
	if res.Version == "" {
		res.Version = "devel"
	}
	return res
}

// NewBuildInfoCollector returns a constant gauge gateway_build_info{version,revision,goversion} = 1.
func NewBuildInfoCollector(namespace string) prometheus.Collector {
	buildInfo := Get()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "gateway_build_info",
		Help:      "Build information of the running gateway.",
		ConstLabels: prometheus.Labels{
			"version":   buildInfo.Version,
			"revision":  buildInfo.Revision,
			"goversion": buildInfo.GoVersion,
		},
	})
	gauge.Set(1)
	return gauge
}

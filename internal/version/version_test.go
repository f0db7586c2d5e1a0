/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package version

import (
	"runtime/debug"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestExtractInfo(t *testing.T) {
	tests := []struct {
		name        string
		buildInfo   *debug.BuildInfo
		linkVersion string
		want        Info
	}{
		{
			name: "link-time version wins",
			buildInfo: &debug.BuildInfo{
				GoVersion: "go1.23.2",
				Main:      debug.Module{Version: "v0.3.0"},
			},
			linkVersion: "v1.2.3",
			want:        Info{Version: "v1.2.3", Revision: unknown, GoVersion: "go1.23.2"},
		},
		{
			name: "module version and vcs settings",
			buildInfo: &debug.BuildInfo{
				GoVersion: "go1.23.2",
				Main:      debug.Module{Version: "v0.3.0"},
				Settings: []debug.BuildSetting{
					{Key: "vcs.revision", Value: "4f2a9c1"},
					{Key: "vcs.modified", Value: "true"},
				},
			},
			want: Info{Version: "v0.3.0", Revision: "4f2a9c1", Modified: true, GoVersion: "go1.23.2"},
		},
		{
			name:      "devel build",
			buildInfo: &debug.BuildInfo{GoVersion: "go1.23.2", Main: debug.Module{Version: "(devel)"}},
			want:      Info{Version: "devel", Revision: unknown, GoVersion: "go1.23.2"},
		},
		{
			name: "nil build info",
			want: Info{Version: unknown, Revision: unknown, GoVersion: unknown},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, extractInfo(tt.buildInfo, tt.linkVersion))
		})
	}
}

func TestNewBuildInfoCollector(t *testing.T) {
	collector := NewBuildInfoCollector("")
	require.Equal(t, 1.0, testutil.ToFloat64(collector))

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(collector))
	require.Equal(t, 1, testutil.CollectAndCount(collector, "gateway_build_info"))
}

package handlers

import (
	"net/http"
	"runtime"
	"sort"
	"sync"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/crucible"

	"github.com/courseflow/courseflow/internal/appid"
)

// Build metadata, injected from main via SetVersionInfo.
var (
	AppVersion   = "dev"
	AppCommit    = "unknown"
	AppBuildDate = "unknown"
)

var (
	versionMu   sync.RWMutex
	appIdentity *appidentity.Identity
	guardInfo   *GuardInfo
)

// SetVersionInfo sets the version information for the handler
func SetVersionInfo(version, commit, buildDate string) {
	versionMu.Lock()
	defer versionMu.Unlock()
	AppVersion = version
	AppCommit = commit
	AppBuildDate = buildDate
}

// SetAppIdentity overrides the identity reported by VersionHandler.
func SetAppIdentity(identity *appidentity.Identity) {
	versionMu.Lock()
	defer versionMu.Unlock()
	appIdentity = identity
}

// SetGuardInfo publishes the active guard configuration on /version.
// Passing nil hides the section.
func SetGuardInfo(info *GuardInfo) {
	versionMu.Lock()
	defer versionMu.Unlock()
	guardInfo = info
}

// VersionResponse represents the version information response
type VersionResponse struct {
	App          AppInfo     `json:"app"`
	Dependencies DepInfo     `json:"dependencies"`
	Runtime      RuntimeInfo `json:"runtime"`
	Guards       *GuardInfo  `json:"guards,omitempty"`
}

// AppInfo contains application version details
type AppInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// DepInfo contains dependency version information
type DepInfo struct {
	Gofulmen string `json:"gofulmen"`
	Crucible string `json:"crucible"`
}

// RuntimeInfo contains runtime environment information
type RuntimeInfo struct {
	Platform      string `json:"platform"`
	NumCPU        int    `json:"num_cpu"`
	NumGoroutines int    `json:"num_goroutines"`
}

// GuardInfo describes the limiter configuration without exposing counters.
type GuardInfo struct {
	KVBackend string       `json:"kv_backend"`
	Routes    []RouteLimit `json:"routes,omitempty"`
}

// RouteLimit is one route's effective fixed window.
type RouteLimit struct {
	Route  string `json:"route"`
	Limit  int    `json:"limit"`
	Window string `json:"window"`
}

// SortRoutes orders routes by name so the response is stable.
func (g *GuardInfo) SortRoutes() {
	sort.Slice(g.Routes, func(i, j int) bool { return g.Routes[i].Route < g.Routes[j].Route })
}

// VersionHandler handles version information requests
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	version := crucible.GetVersion()

	versionMu.RLock()
	name := appid.BinaryName
	if appIdentity != nil && appIdentity.BinaryName != "" {
		name = appIdentity.BinaryName
	}
	resp := VersionResponse{
		App: AppInfo{
			Name:      name,
			Version:   AppVersion,
			Commit:    AppCommit,
			BuildDate: AppBuildDate,
			GoVersion: runtime.Version(),
		},
		Guards: guardInfo,
	}
	versionMu.RUnlock()

	resp.Dependencies = DepInfo{
		Gofulmen: version.Gofulmen,
		Crucible: version.Crucible,
	}
	resp.Runtime = RuntimeInfo{
		Platform:      runtime.GOOS + "/" + runtime.GOARCH,
		NumCPU:        runtime.NumCPU(),
		NumGoroutines: runtime.NumGoroutine(),
	}

	writeJSON(w, http.StatusOK, resp)
}

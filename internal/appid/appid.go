// Package appid holds the application identity used for config paths, env
// prefixes and telemetry namespaces.
package appid

import (
	"context"

	"github.com/fulmenhq/gofulmen/appidentity"
)

// Identity values.
const (
	BinaryName         = "courseflow"
	EnvPrefix          = "COURSEFLOW_"
	ConfigName         = "courseflow"
	TelemetryNamespace = "courseflow"
	Vendor             = "courseflow"
	Description        = "Request guard service for CourseFlow: rate limiting, webhook replay protection and usage heuristics"
)

// Get returns a fresh copy of the application identity.
func Get(ctx context.Context) (*appidentity.Identity, error) {
	return &appidentity.Identity{
		BinaryName:  BinaryName,
		Vendor:      Vendor,
		EnvPrefix:   EnvPrefix,
		ConfigName:  ConfigName,
		Description: Description,
	}, nil
}

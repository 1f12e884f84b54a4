// Package runregistry defines the port interface for discovering which
// worker instances currently hold a run active.
//
// Entries follow the key convention "active.{instance_id}.{run_id}". They
// are ephemeral markers created and removed by the owning worker instance;
// this service only reads them to fan out stop signals, never to claim
// ownership.
package runregistry

import (
	"context"
	"fmt"
	"strings"
)

const keyPrefix = "active"

// Registry discovers active-run markers by prefix scan.
type Registry interface {
	// ScanActive returns the raw registry keys of every instance currently
	// marked active for the run.
	ScanActive(ctx context.Context, runID string) ([]string, error)
}

// ActiveKey builds the registry key for an instance holding a run.
func ActiveKey(instanceID, runID string) string {
	return keyPrefix + "." + instanceID + "." + runID
}

// ActiveKeyFilter returns the scan filter matching every instance marker
// for the given run.
func ActiveKeyFilter(runID string) string {
	return keyPrefix + ".*." + runID
}

// ParseActiveKey decomposes a registry key into its instance and run ids.
// It fails closed: a key that does not split into exactly the expected
// three components is rejected so malformed entries are skipped rather
// than signaled.
func ParseActiveKey(key string) (instanceID, runID string, err error) {
	parts := strings.Split(key, ".")
	if len(parts) != 3 || parts[0] != keyPrefix || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("unexpected registry key format: %q", key)
	}
	return parts[1], parts[2], nil
}

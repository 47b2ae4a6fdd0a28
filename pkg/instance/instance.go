// Package instance names the running process in poller claims and cron
// lock leases.
package instance

import (
	"fmt"
	"os"
	"strings"
)

// EnvInstanceID overrides the derived identifier, e.g. with a pod name.
const EnvInstanceID = "FARMLINK_INSTANCE_ID"

// ID returns EnvInstanceID when set, otherwise host-pid.
func ID() string {
	if id := strings.TrimSpace(os.Getenv(EnvInstanceID)); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "farmlink"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

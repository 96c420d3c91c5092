// Package hostinfo reads coarse host facts for run headers: a convergence
// trail that begins with hostname and uptime makes boot-time runs easy to
// tell apart from manual ones.
package hostinfo

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Uptime returns how long the host has been up.
func Uptime() (time.Duration, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, fmt.Errorf("sysinfo: %w", err)
	}
	return time.Duration(info.Uptime) * time.Second, nil
}

// Summary returns a one-line "host=<name> uptime=<dur>" header.
// Facts that cannot be read are reported as "?" rather than failing:
// the header is informational only.
func Summary() string {
	host, err := os.Hostname()
	if err != nil {
		host = "?"
	}
	up := "?"
	if d, err := Uptime(); err == nil {
		up = d.Truncate(time.Second).String()
	}
	return fmt.Sprintf("host=%s uptime=%s", host, up)
}

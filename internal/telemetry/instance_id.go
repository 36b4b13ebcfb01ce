package telemetry

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
)

// instanceID returns a unique string for this process (hostname+pid+random).
// It tells apart replicas sharing a service name in exported metrics.
func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}

	rnd := make([]byte, 4)
	_, _ = rand.Read(rnd)

	return host + "-" + strconv.Itoa(os.Getpid()) + "-" + hex.EncodeToString(rnd)
}

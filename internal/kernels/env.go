package kernels

import (
	"os"
	"strconv"
)

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

var (
	// Rows below this run on the caller goroutine; the pool only pays off
	// once a slab of output rows amortizes the handoff.
	matVecParMinRows = envInt("AQLM_MATVEC_PAR_MIN_ROWS", 64)
	matVecWorkers    = envInt("AQLM_MATVEC_WORKERS", 0)
)

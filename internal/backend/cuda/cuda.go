//go:build cuda

package cuda

import (
	"fmt"

	"github.com/samcharles93/aqlm/internal/backend/cuda/native"
)

// New probes for a device and builds the cuda ops with a dedicated stream.
func New() (*Ops, error) {
	count, err := native.DeviceCount()
	if err != nil {
		return nil, fmt.Errorf("cuda device query failed: %w", err)
	}
	if count < 1 {
		return nil, fmt.Errorf("no cuda devices detected")
	}
	stream, err := native.NewStream()
	if err != nil {
		return nil, fmt.Errorf("cuda stream create failed: %w", err)
	}
	return NewOps(stream), nil
}

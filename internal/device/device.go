// Package device validates the --cuda-device selection before a model is loaded.
package device

import (
	"fmt"
	"os"
	"strings"
)

// CPU selects the CPU.
const CPU = -1

// nvidiaGPUDir lists one entry per GPU when the NVIDIA driver is loaded.
var nvidiaGPUDir = "/proc/driver/nvidia/gpus"

// unavailableError is returned when a GPU was requested but cannot be used.
type unavailableError struct{ id, visible int }

func (e unavailableError) Error() string {
	if e.visible == 0 {
		return fmt.Sprintf("cuda device %d requested but no GPU is available; use --cuda-device -1 to run on CPU", e.id)
	}
	return fmt.Sprintf("cuda device %d requested but only %d GPU(s) are visible", e.id, e.visible)
}

// IsUnavailable reports whether err came from Check rejecting a GPU id.
func IsUnavailable(err error) bool {
	_, ok := err.(unavailableError)
	return ok
}

// Check verifies that id can be used: CPU always can, a GPU id must be below
// the number of visible devices.
func Check(id int) error {
	if id < CPU {
		return fmt.Errorf("invalid cuda device: %d", id)
	}
	if id == CPU {
		return nil
	}
	n := Count()
	if id >= n {
		return unavailableError{id: id, visible: n}
	}
	return nil
}

// Count returns the number of GPUs visible to this process. CUDA_VISIBLE_DEVICES,
// when set, narrows the driver's device list.
func Count() int {
	entries, err := os.ReadDir(nvidiaGPUDir)
	if err != nil {
		return 0
	}
	n := len(entries)
	if v, ok := os.LookupEnv("CUDA_VISIBLE_DEVICES"); ok {
		v = strings.TrimSpace(v)
		if v == "" || v == "-1" {
			return 0
		}
		if ids := len(strings.Split(v, ",")); ids < n {
			n = ids
		}
	}
	return n
}

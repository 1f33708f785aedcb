package device

import (
	"os"
	"path/filepath"
	"testing"
)

func fakeGPUs(t *testing.T, n int) {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		if err := os.Mkdir(filepath.Join(dir, "0000:0"+string(rune('0'+i))+":00.0"), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	orig := nvidiaGPUDir
	nvidiaGPUDir = dir
	t.Cleanup(func() { nvidiaGPUDir = orig })
}

func TestCheckCPU(t *testing.T) {
	if err := Check(CPU); err != nil {
		t.Fatalf("cpu: %v", err)
	}
	if err := Check(-2); err == nil {
		t.Fatalf("expected invalid id error")
	}
}

func TestCheckWithoutDriver(t *testing.T) {
	orig := nvidiaGPUDir
	nvidiaGPUDir = filepath.Join(t.TempDir(), "absent")
	t.Cleanup(func() { nvidiaGPUDir = orig })
	err := Check(0)
	if err == nil || !IsUnavailable(err) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestCheckVisibleDevices(t *testing.T) {
	fakeGPUs(t, 2)
	t.Setenv("CUDA_VISIBLE_DEVICES", "1")
	if Count() != 1 {
		t.Fatalf("count=%d", Count())
	}
	if err := Check(0); err != nil {
		t.Fatalf("gpu 0: %v", err)
	}
	if err := Check(1); !IsUnavailable(err) {
		t.Fatalf("expected unavailable for gpu 1, got %v", err)
	}
	t.Setenv("CUDA_VISIBLE_DEVICES", "")
	if Count() != 0 {
		t.Fatalf("empty CUDA_VISIBLE_DEVICES should hide all devices")
	}
}

func TestCountDriverOnly(t *testing.T) {
	fakeGPUs(t, 3)
	orig, had := os.LookupEnv("CUDA_VISIBLE_DEVICES")
	os.Unsetenv("CUDA_VISIBLE_DEVICES")
	t.Cleanup(func() {
		if had {
			os.Setenv("CUDA_VISIBLE_DEVICES", orig)
		}
	})
	if Count() != 3 {
		t.Fatalf("count=%d", Count())
	}
	if err := Check(2); err != nil {
		t.Fatalf("gpu 2: %v", err)
	}
}

// Reports the CPU features the matvec kernels probe for, plus the path the
// dispatcher would take on this host. Run with: go run scripts/cpu_features.go
package main

import (
	"fmt"
	"os"
	"runtime"

	json "github.com/goccy/go-json"

	"simd/archsimd"
)

type output struct {
	GoVersion  string          `json:"go_version"`
	GoOS       string          `json:"go_os"`
	GoArch     string          `json:"go_arch"`
	CPUs       int             `json:"cpus"`
	Features   map[string]bool `json:"features"`
	KernelPath string          `json:"kernel_path"`
}

func main() {
	features := map[string]bool{
		"AVX":    archsimd.X86.AVX(),
		"AVX2":   archsimd.X86.AVX2(),
		"FMA":    archsimd.X86.FMA(),
		"AVX512": archsimd.X86.AVX512(),
	}

	path := "scalar"
	if features["AVX2"] {
		path = "avx2"
	}

	out := output{
		GoVersion:  runtime.Version(),
		GoOS:       runtime.GOOS,
		GoArch:     runtime.GOARCH,
		CPUs:       runtime.NumCPU(),
		Features:   features,
		KernelPath: path,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
}

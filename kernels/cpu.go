package kernels

import (
	"runtime"
	"sort"

	"github.com/klauspost/cpuid/v2"
)

// BatchSize determines the vector width, in float32 lanes, the host CPU can
// process per instruction. It is used to size inference chunks.
func BatchSize() int {
	switch {
	case cpuid.CPU.Supports(cpuid.AVX512F, cpuid.AVX512DQ):
		return 16
	case cpuid.CPU.Supports(cpuid.AVX2, cpuid.FMA3):
		return 8
	case cpuid.CPU.Supports(cpuid.ASIMD):
		return 4
	default:
		return 4
	}
}

// CPUInfo summarizes the host for performance reports.
type CPUInfo struct {
	Brand         string   `json:"brand" yaml:"brand"`
	Arch          string   `json:"arch" yaml:"arch"`
	PhysicalCores int      `json:"physicalCores" yaml:"physicalCores"`
	LogicalCores  int      `json:"logicalCores" yaml:"logicalCores"`
	VectorLanes   int      `json:"vectorLanes" yaml:"vectorLanes"`
	Features      []string `json:"features" yaml:"features"`
}

// simdFeatures are the feature flags relevant to float32 kernels.
var simdFeatures = []cpuid.FeatureID{
	cpuid.SSE2,
	cpuid.AVX,
	cpuid.AVX2,
	cpuid.FMA3,
	cpuid.AVX512F,
	cpuid.AVX512DQ,
	cpuid.ASIMD,
}

// Host reports the CPU detected at startup.
func Host() CPUInfo {
	info := CPUInfo{
		Brand:         cpuid.CPU.BrandName,
		Arch:          runtime.GOARCH,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		VectorLanes:   BatchSize(),
	}
	for _, f := range simdFeatures {
		if cpuid.CPU.Supports(f) {
			info.Features = append(info.Features, f.String())
		}
	}
	sort.Strings(info.Features)
	if info.LogicalCores == 0 {
		info.LogicalCores = runtime.NumCPU()
	}
	return info
}

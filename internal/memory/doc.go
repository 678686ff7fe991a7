// Package memory keeps the converter inside its container memory limit.
//
// Decoding a HEIC photo holds the compressed source, the full RGBA frame,
// and the encoded JPEG at once, and libheif allocates its own buffers in C
// memory that the Go runtime cannot see. Two pieces cooperate:
//
//   - [ConfigureFromEnv] sets GOMEMLIMIT from the container limit, leaving
//     a reserve for C allocations.
//   - [Monitor] samples heap usage and gates the batch controller: while
//     usage is above the pause threshold, [Monitor.Wait] holds back the next
//     conversion until the heap drops below the resume threshold.
//
// # Environment Variables
//
//   - GOMEMLIMIT: standard Go variable; takes precedence when set.
//   - MEMORY_LIMIT: container memory limit in bytes, usually injected via
//     the Kubernetes Downward API.
//   - MEMORY_RATIO: share of MEMORY_LIMIT for the Go heap, between 0.0 and
//     1.0. Default 0.75.
//
// Kubernetes example:
//
//	env:
//	- name: MEMORY_LIMIT
//	  valueFrom:
//	    resourceFieldRef:
//	      resource: limits.memory
//	- name: MEMORY_RATIO
//	  value: "0.7"
//
// # Usage
//
//	memory.ConfigureFromEnv()
//
//	monitor := memory.NewMonitor(memory.DefaultConfig())
//	monitor.Start()
//	defer monitor.Stop()
//
//	// before each conversion:
//	if err := monitor.Wait(ctx); err != nil {
//	    return err
//	}
//
// GOMEMLIMIT is a soft limit. It does not bound cgo allocations, which is
// why the ratio leaves more headroom than a pure Go service would need.
package memory

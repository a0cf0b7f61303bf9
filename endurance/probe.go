package endurance

import (
	"os"
	"runtime"
	"strconv"
	"strings"
)

// ProbeKind selects the memory footprint source.
type ProbeKind int

const (
	// ProbeHeap reads the Go heap via runtime.ReadMemStats.
	ProbeHeap ProbeKind = iota
	// ProbeRSS reads the OS resident set from /proc/self/statm, falling
	// back to the heap probe where that file does not exist.
	ProbeRSS
)

func (p ProbeKind) String() string {
	if p == ProbeRSS {
		return "rss"
	}
	return "heap"
}

// readMemory returns the current footprint in bytes. With forceGC a
// collection runs first so the heap probe reports the live set rather
// than allocation churn.
func readMemory(kind ProbeKind, forceGC bool) uint64 {
	if forceGC {
		runtime.GC()
	}

	if kind == ProbeRSS {
		if rss, ok := readRSS(); ok {
			return rss
		}
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// readRSS parses the resident page count from /proc/self/statm.
func readRSS() (uint64, bool) {
	data, err := os.ReadFile("/proc/self/statm")
	if err != nil {
		return 0, false
	}

	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return 0, false
	}

	pages, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, false
	}

	return pages * uint64(os.Getpagesize()), true
}

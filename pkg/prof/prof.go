// Package prof captures pprof profiles of a scenario run.
//
// A Session starts CPU profiling when given a CPU path and writes the heap
// profile on Stop when given a heap path. Either path may be empty.
package prof

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"

	"github.com/ardnew/softhcd/pkg"
)

// ErrActive indicates a profiling session is already running.
var ErrActive = errors.New("profiling session already active")

var (
	mu     sync.Mutex
	active bool
)

// Session is one profiling window.
type Session struct {
	cpu     *os.File
	heap    string
	stopped bool
}

// Start begins a session. Only one session runs per process.
func Start(cpuPath, heapPath string) (*Session, error) {
	mu.Lock()
	defer mu.Unlock()
	if active {
		return nil, ErrActive
	}

	s := &Session{heap: heapPath}
	if cpuPath != "" {
		f, err := os.Create(cpuPath)
		if err != nil {
			return nil, fmt.Errorf("cpu profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("cpu profile: %w", err)
		}
		s.cpu = f
	}
	active = true
	pkg.LogDebug(pkg.ComponentCLI, "profiling started", "cpu", cpuPath, "heap", heapPath)
	return s, nil
}

// Stop ends the session and writes the heap profile. Further calls do
// nothing.
func (s *Session) Stop() error {
	mu.Lock()
	defer mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	active = false

	var errs []error
	if s.cpu != nil {
		pprof.StopCPUProfile()
		errs = append(errs, s.cpu.Close())
	}
	if s.heap != "" {
		errs = append(errs, writeHeap(s.heap))
	}
	return errors.Join(errs...)
}

func writeHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("heap profile: %w", err)
	}
	defer f.Close()
	runtime.GC()
	return pprof.Lookup("heap").WriteTo(f, 0)
}

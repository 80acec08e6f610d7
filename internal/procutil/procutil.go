// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package procutil provides OS-level process and port liveness
// probes for the Ports component's stale-pid reclamation and the
// Agents/Reaper death-correlation logic.
package procutil

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/curiositech/port-daddy/lib/clock"
)

// IsAlive reports whether pid refers to a live process, using
// kill(pid, 0) semantics. The result is never cached — callers that
// want caching (none currently do) must do so themselves.
func IsAlive(pid int64) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(int(pid), 0)
	if err == nil {
		return true
	}
	// EPERM means the process exists but we lack permission to
	// signal it — still alive from our point of view.
	return err == unix.EPERM
}

// ListeningPortScanner reports which TCP ports the OS currently has
// in LISTEN state, reading /proc/net/tcp and /proc/net/tcp6. Results
// are cached for a configurable TTL to bound the cost of repeated
// free-port searches.
type ListeningPortScanner struct {
	mu       sync.Mutex
	cacheTTL time.Duration
	cachedAt time.Time
	cached   map[int]bool
	clock    clock.Clock
}

// NewListeningPortScanner returns a scanner that caches scan results
// for ttl. A non-positive ttl disables caching (every call rescans).
func NewListeningPortScanner(clk clock.Clock, ttl time.Duration) *ListeningPortScanner {
	if clk == nil {
		clk = clock.Real()
	}
	return &ListeningPortScanner{cacheTTL: ttl, clock: clk}
}

// IsListening reports whether port is currently in LISTEN state
// according to the most recent (possibly cached) scan.
func (p *ListeningPortScanner) IsListening(port int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached == nil || (p.cacheTTL > 0 && p.clock.Now().Sub(p.cachedAt) > p.cacheTTL) {
		scanned, err := scanListeningPorts()
		if err != nil {
			return false, err
		}
		p.cached = scanned
		p.cachedAt = p.clock.Now()
	}

	return p.cached[port], nil
}

func scanListeningPorts() (map[int]bool, error) {
	result := make(map[int]bool)
	for _, path := range []string{"/proc/net/tcp", "/proc/net/tcp6"} {
		if err := scanProcNetTCP(path, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// procNetTCPListenState is the "st" field value for TCP_LISTEN in
// /proc/net/tcp's hex-encoded state column.
const procNetTCPListenState = "0A"

func scanProcNetTCP(path string, into map[int]bool) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// tcp6 may not exist on IPv4-only hosts.
			return nil
		}
		return fmt.Errorf("procutil: opening %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Scan() // header line
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		// fields[1] is "local_address:port" in hex, fields[3] is
		// hex connection state.
		if fields[3] != procNetTCPListenState {
			continue
		}
		localAddr := fields[1]
		colon := strings.LastIndexByte(localAddr, ':')
		if colon < 0 {
			continue
		}
		portHex := localAddr[colon+1:]
		port, err := strconv.ParseInt(portHex, 16, 32)
		if err != nil {
			continue
		}
		into[int(port)] = true
	}
	return scanner.Err()
}

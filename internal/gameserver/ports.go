// internal/gameserver/ports.go
package gameserver

import (
	"errors"
	"fmt"
	"net"
)

// ErrPortsExhausted is returned when no port in the configured range is free.
// Exhaustion is not retried; the matchmaking workflow aborts.
var ErrPortsExhausted = errors.New("no free port in configured range")

// Allocator hands out a free TCP port for a game-server process.
type Allocator interface {
	Allocate() (int, error)
}

// PortAllocator probes linearly from Start to End inclusive and returns the
// first port the OS lets us bind.
type PortAllocator struct {
	Start int
	End   int
}

// Allocate probes the range. The probe listener is closed immediately, so a
// small window exists between probing and the spawned process binding. The
// linear scan restarts from Start on every call.
func (a PortAllocator) Allocate() (int, error) {
	for port := a.Start; port <= a.End; port++ {
		l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			continue
		}
		l.Close()
		return port, nil
	}
	return 0, ErrPortsExhausted
}

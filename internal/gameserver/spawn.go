// internal/gameserver/spawn.go
package gameserver

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Spawner launches one dedicated game-server process bound to a port.
type Spawner interface {
	Spawn(ctx context.Context, port int) error
}

// ProcessSpawner execs the configured binary with a -port flag. The process
// is detached from the matchmaking workflow: once started it outlives the
// lobby that requested it.
type ProcessSpawner struct {
	Binary string
	Log    *logrus.Logger
}

// Spawn starts the process and reaps it from a goroutine so finished servers
// do not accumulate as zombies.
func (s ProcessSpawner) Spawn(ctx context.Context, port int) error {
	cmd := exec.Command(s.Binary, "-port", strconv.Itoa(port))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start game server on port %d: %w", port, err)
	}
	s.Log.Infof("game server pid %d started on port %d", cmd.Process.Pid, port)

	go func() {
		if err := cmd.Wait(); err != nil {
			s.Log.Warnf("game server on port %d exited: %v", port, err)
		} else {
			s.Log.Infof("game server on port %d exited cleanly", port)
		}
	}()
	return nil
}

package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"podship/internal/config"
	"podship/internal/services"
)

// episodeLock wraps one advisory file lock scoped to a single episode id,
// enforcing the partition rule that an episode's subtree and row are owned
// by at most one orchestrator run at a time.
type episodeLock struct {
	lock *flock.Flock
}

// acquireEpisodeLock attempts to take exclusive ownership of episodeID. It
// does not block: if another run already holds the lock, it returns
// services.ErrPreconditionFailed immediately.
func acquireEpisodeLock(cfg *config.Config, episodeID int64) (*episodeLock, error) {
	lockDir := cfg.LocksDir()
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrIO, "", "acquire_lock", "create lock directory", err)
	}
	path := filepath.Join(lockDir, fmt.Sprintf("episode-%d.lock", episodeID))
	lk := flock.New(path)
	ok, err := lk.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "", "acquire_lock", "acquire episode lock", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrPreconditionFailed, "", "acquire_lock",
			fmt.Sprintf("episode %d is already being processed by another run", episodeID), nil)
	}
	return &episodeLock{lock: lk}, nil
}

func (l *episodeLock) release() {
	if l == nil || l.lock == nil {
		return
	}
	_ = l.lock.Unlock()
}

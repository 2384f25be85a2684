// Package coordinator implements single-flight election among concurrent
// mcp-remote-bridge processes that share a server hash, so only one of them
// drives the OAuth browser flow at a time.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/giantswarm/mcp-remote-bridge/internal/store"
	"github.com/giantswarm/mcp-remote-bridge/pkg/logging"
)

// DefaultStaleAfter is how long an exclusive lock is honored without proof
// of life before a waiting process attempts to reclaim it. Long enough that
// a leader mid-browser-flow is never evicted under normal use, short enough
// that a crashed-without-cleanup leader does not wedge every other process
// on this server hash indefinitely.
const DefaultStaleAfter = 30 * time.Minute

const lockFileName = ".coordinator.lock"

// Role identifies which side of the election a process landed on.
type Role int

const (
	// Leader acquired the exclusive lock and should drive the OAuth flow
	// itself, including starting the callback listener.
	Leader Role = iota
	// Follower lost the race and should poll the leader's callback
	// listener (at LeaderPort) for the result instead of starting its own.
	Follower
)

func (r Role) String() string {
	if r == Leader {
		return "leader"
	}
	return "follower"
}

// Handle represents the outcome of an election attempt.
type Handle struct {
	Role Role
	// LeaderPort is the callback listener port to poll when Role is
	// Follower. Zero when Role is Leader (the caller picks its own port).
	LeaderPort int
	// Release must be called by the leader once the OAuth flow finishes
	// (success or failure) to free the lock for the next process. It is a
	// no-op for followers.
	Release func() error

	// record and st let a leader correct the lock's recorded port once its
	// callback listener reports the port it actually bound, which can
	// differ from desiredPort if that one was already taken.
	record store.Lock
	st     *store.Store
	hash   string
}

// RecordActualPort rewrites the lock record with the callback listener's
// actual bound port, preserving the rest of the record. Only meaningful for
// a Leader: desiredPort (what Coordinate recorded) is a starting point for
// the listener's own upward port scan, so a follower polling lockRecord.Port
// needs this correction to land on the right port. A no-op for a Follower.
func (h *Handle) RecordActualPort(actualPort int) error {
	if h.Role != Leader || h.st == nil {
		return nil
	}
	if h.record.Port == actualPort {
		return nil
	}
	h.record.Port = actualPort
	if err := h.st.WriteLock(h.hash, h.record); err != nil {
		return fmt.Errorf("update lock record with actual port: %w", err)
	}
	return nil
}

// Coordinate attempts to become the leader for serverHash. desiredPort is
// the port the caller intends to bind its callback listener to if it wins
// leadership; it is recorded in the lock so followers know where to poll.
func Coordinate(ctx context.Context, st *store.Store, serverHash string, desiredPort int) (*Handle, error) {
	dir, err := st.ServerDir(serverHash)
	if err != nil {
		return nil, fmt.Errorf("resolve server dir: %w", err)
	}
	lockPath := filepath.Join(dir, lockFileName)

	fl := flock.New(lockPath)
	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("acquire coordinator lock: %w", err)
	}

	if !locked {
		if reclaimed := tryReclaimStale(st, serverHash, fl, ctx); reclaimed {
			locked = true
		}
	}

	if locked {
		record := store.Lock{PID: os.Getpid(), Port: desiredPort, LockID: uuid.NewString(), CreatedAt: time.Now()}
		if err := st.WriteLock(serverHash, record); err != nil {
			_ = fl.Unlock()
			return nil, fmt.Errorf("write lock record: %w", err)
		}
		logging.Info("Coordinator", "elected leader for server %s on port %d", logging.TruncateSessionID(serverHash), desiredPort)
		return &Handle{
			Role:   Leader,
			record: record,
			st:     st,
			hash:   serverHash,
			Release: func() error {
				_ = st.DeleteLock(serverHash)
				return fl.Unlock()
			},
		}, nil
	}

	lockRecord, ok, err := st.ReadLock(serverHash)
	if err != nil {
		return nil, fmt.Errorf("read lock record: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another process holds the coordinator lock but left no lock record")
	}

	logging.Info("Coordinator", "elected follower for server %s, leader on port %d", logging.TruncateSessionID(serverHash), lockRecord.Port)
	return &Handle{
		Role:       Follower,
		LeaderPort: lockRecord.Port,
		Release:    func() error { return nil },
	}, nil
}

// tryReclaimStale checks whether the existing lock record is old enough,
// and its owning PID no longer alive, to justify one more attempt at the
// flock (a leader that died without releasing leaves such a record behind,
// e.g. on a filesystem where flock advisory locks are not honored by every
// writer). It only retries TryLockContext; a flock that another process
// still holds is not broken.
func tryReclaimStale(st *store.Store, serverHash string, fl *flock.Flock, ctx context.Context) bool {
	record, ok, err := st.ReadLock(serverHash)
	if err != nil || !ok {
		return false
	}

	if time.Since(record.CreatedAt) < DefaultStaleAfter {
		return false
	}
	if pidAlive(record.PID) {
		return false
	}

	logging.Warn("Coordinator", "reclaiming stale lock for server %s: pid %d not alive, age %s",
		logging.TruncateSessionID(serverHash), record.PID, time.Since(record.CreatedAt))

	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	return err == nil && locked
}

// ForceReclaim unconditionally clears the lockfile and lock record for
// serverHash, regardless of age or PID liveness. It backs the operator-facing
// --reset-auth-lock flag for clearing a lock left behind by a leader that
// crashed hard enough to skip Release, without waiting out DefaultStaleAfter.
func ForceReclaim(st *store.Store, serverHash string) error {
	dir, err := st.ServerDir(serverHash)
	if err != nil {
		return fmt.Errorf("resolve server dir: %w", err)
	}
	lockPath := filepath.Join(dir, lockFileName)

	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lockfile: %w", err)
	}
	if err := st.DeleteLock(serverHash); err != nil {
		return fmt.Errorf("delete lock record: %w", err)
	}

	logging.Audit(logging.AuditEvent{
		Action:     "lock_force_reclaim",
		Outcome:    "success",
		ServerHash: logging.TruncateSessionID(serverHash),
	})
	return nil
}

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds; signal 0 probes existence
	// without actually signaling the process.
	return proc.Signal(syscall.Signal(0)) == nil
}

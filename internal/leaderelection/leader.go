// Package leaderelection picks a single active scheduler instance using a
// Postgres session advisory lock.
//
// The lock lives on a dedicated database connection and is held for the
// connection's lifetime. There is no renewal: if the connection dies,
// Postgres releases the lock server-side. The heartbeat ping only detects
// local connection death so the leader can step down promptly.
package leaderelection

import (
	"context"
	"database/sql"
	"log"
	"time"
)

// MetricsSink records election metrics. All methods must be non-blocking.
type MetricsSink interface {
	LeaderStatusChanged(isLeader bool)
	LeaderAcquired()
	LeaderLost(reason string) // reason: "shutdown", "conn_lost", "error"
}

type Elector struct {
	db                *sql.DB
	lockKey           int64
	retryInterval     time.Duration // follower: how often to attempt acquisition
	heartbeatInterval time.Duration // leader: how often to ping the dedicated connection
	onElected         func(ctx context.Context)
	onDemoted         func()
	metrics           MetricsSink // optional, nil = disabled
}

// New creates an Elector.
//
// onElected runs in a new goroutine when this instance wins; its context
// is cancelled when leadership is lost. It should start leader duties
// (scheduler, reconciler, lifecycle sweeper) and return quickly.
//
// onDemoted runs synchronously when leadership is lost. It must stop
// leader duties, block until they are down, and be idempotent.
func New(
	db *sql.DB,
	lockKey int64,
	retryInterval, heartbeatInterval time.Duration,
	onElected func(ctx context.Context),
	onDemoted func(),
) *Elector {
	return &Elector{
		db:                db,
		lockKey:           lockKey,
		retryInterval:     retryInterval,
		heartbeatInterval: heartbeatInterval,
		onElected:         onElected,
		onDemoted:         onDemoted,
	}
}

func (e *Elector) WithMetrics(sink MetricsSink) *Elector {
	e.metrics = sink
	return e
}

// Run drives the election loop until ctx is cancelled.
func (e *Elector) Run(ctx context.Context) {
	log.Printf("election: loop started (lock_key=%d, retry=%s, heartbeat=%s)",
		e.lockKey, e.retryInterval, e.heartbeatInterval)

	for {
		if ctx.Err() != nil {
			log.Println("election: loop stopped")
			return
		}

		reason := e.runOnce(ctx)

		if ctx.Err() != nil {
			log.Println("election: loop stopped")
			return
		}

		if reason != "" {
			log.Printf("election: leadership lost (reason=%s), retrying in %s", reason, e.retryInterval)
		}

		select {
		case <-ctx.Done():
			log.Println("election: loop stopped")
			return
		case <-time.After(e.retryInterval):
		}
	}
}

// runOnce tries to take the advisory lock and hold it. Returns the reason
// leadership ended ("" if the lock was never acquired).
func (e *Elector) runOnce(ctx context.Context) string {
	// Session-scoped lock: needs a dedicated connection.
	conn, err := e.db.Conn(ctx)
	if err != nil {
		log.Printf("election: dedicated connection failed: %v", err)
		return ""
	}
	defer conn.Close()

	var acquired bool
	err = conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", e.lockKey).Scan(&acquired)
	if err != nil {
		log.Printf("election: advisory lock query failed: %v", err)
		return ""
	}
	if !acquired {
		log.Printf("election: lock %d held elsewhere, retrying in %s", e.lockKey, e.retryInterval)
		return ""
	}

	log.Printf("election: acquired advisory lock %d", e.lockKey)
	if e.metrics != nil {
		e.metrics.LeaderStatusChanged(true)
		e.metrics.LeaderAcquired()
	}

	leaderCtx, cancelLeader := context.WithCancel(ctx)

	go e.onElected(leaderCtx)

	reason := e.holdLock(ctx, conn)

	cancelLeader()
	e.onDemoted()

	if e.metrics != nil {
		e.metrics.LeaderStatusChanged(false)
		e.metrics.LeaderLost(reason)
	}

	log.Printf("election: released advisory lock %d", e.lockKey)
	return reason
}

// holdLock blocks while pinging the dedicated connection. The ping does
// not renew anything; it only notices a dead connection.
func (e *Elector) holdLock(ctx context.Context, conn *sql.Conn) string {
	ticker := time.NewTicker(e.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "shutdown"
		case <-ticker.C:
			if err := conn.PingContext(ctx); err != nil {
				if ctx.Err() != nil {
					return "shutdown"
				}
				log.Printf("election: connection ping failed: %v", err)
				return "conn_lost"
			}
		}
	}
}

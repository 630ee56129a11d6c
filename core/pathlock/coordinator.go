package pathlock

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openfms/agvd/core/logger"
	"github.com/openfms/agvd/core/model"
)

// Deps carries the coordinator's optional collaborators.
type Deps struct {
	Store      Store
	Edges      EdgeResolver
	TaskStatus TaskStatusFunc
	Log        logger.Logger
	Now        func() time.Time
}

// Coordinator is the in-memory lock table behind every strategy. A
// single mutex guards the table: conflict predicates are pluggable, so
// no static partition into independent groups exists, and decisions
// must see a consistent view.
type Coordinator struct {
	mu       sync.Mutex
	cfg      Config
	conflict ConflictFunc

	store      Store
	taskStatus TaskStatusFunc
	log        logger.Logger
	now        func() time.Time

	// active holds at most one approved lock per channel name.
	active map[string]model.PathLock
}

// NewCoordinator builds a coordinator with the given conflict predicate.
func NewCoordinator(cfg Config, conflict ConflictFunc, deps Deps) *Coordinator {
	if deps.Log == nil {
		panic("pathlock: nil logger")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Coordinator{
		cfg:        cfg,
		conflict:   conflict,
		store:      deps.Store,
		taskStatus: deps.TaskStatus,
		log:        deps.Log,
		now:        deps.Now,
		active:     make(map[string]model.PathLock),
	}
}

// RequestLock implements Strategy. The check and the grant happen under
// one critical section so two racing requests can never both win.
func (c *Coordinator) RequestLock(req Request) (bool, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, err := c.reapExpiredLocked(now); err != nil {
		return false, "", err
	}

	if cur, ok := c.active[req.Channel.Name()]; ok && cur.ActiveAt(now) && cur.AgvCode == req.AgvCode {
		c.log.Debugf("lock re-approved for %s on %s", req.AgvCode, req.Channel.Name())
		return true, "already approved", nil
	}

	for _, cur := range c.active {
		if !cur.ActiveAt(now) {
			continue
		}
		if c.conflict(cur, req) {
			reason := fmt.Sprintf("channel %s held by %s", cur.ChannelName, cur.AgvCode)
			rejected := c.newLock(req, now)
			rejected.Status = model.LockRejected
			rejected.Reason = reason
			if err := c.persist(rejected); err != nil {
				return false, "", err
			}
			c.log.Infof("lock rejected for %s on %s: %s", req.AgvCode, req.Channel.Name(), reason)
			return false, reason, nil
		}
	}

	granted := c.newLock(req, now)
	granted.Status = model.LockApproved
	granted.ApprovedAt = now
	if c.cfg.LockTTL > 0 {
		granted.ExpiresAt = now.Add(c.cfg.LockTTL)
	}
	if err := c.persist(granted); err != nil {
		return false, "", err
	}
	c.active[req.Channel.Name()] = granted
	c.log.Infof("lock approved for %s on %s", req.AgvCode, req.Channel.Name())
	return true, "", nil
}

// ReleaseLock implements Strategy.
func (c *Coordinator) ReleaseLock(agvCode string, ch model.Channel) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.active[ch.Name()]
	if !ok || cur.AgvCode != agvCode {
		return nil
	}
	return c.releaseLocked(cur, "released")
}

// ClearAgvLocks implements Strategy.
func (c *Coordinator) ClearAgvLocks(agvCode string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	released := 0
	for _, cur := range c.active {
		if cur.AgvCode != agvCode {
			continue
		}
		if err := c.releaseLocked(cur, "agv locks cleared"); err != nil {
			return released, err
		}
		released++
	}
	return released, nil
}

// GetActiveChannels implements Strategy.
func (c *Coordinator) GetActiveChannels() []model.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var out []model.Channel
	for _, cur := range c.active {
		if cur.ActiveAt(now) {
			out = append(out, cur.Channel())
		}
	}
	return out
}

// ReleaseChannel implements Strategy. Only locks whose owning task is
// already cancelled or failed may be freed this way; a lock backing a
// live task stays put.
func (c *Coordinator) ReleaseChannel(ch model.Channel) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.active[ch.Name()]
	if !ok {
		return 0, nil
	}
	if c.taskStatus != nil {
		status, found := c.taskStatus(cur.TaskID)
		if found && status != model.TaskCancelled && status != model.TaskFailed {
			return 0, nil
		}
		if !found {
			return 0, nil
		}
	}
	if err := c.releaseLocked(cur, "channel released"); err != nil {
		return 0, err
	}
	return 1, nil
}

// ReapExpired implements Strategy.
func (c *Coordinator) ReapExpired() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reapExpiredLocked(c.now())
}

func (c *Coordinator) reapExpiredLocked(now time.Time) (int, error) {
	reaped := 0
	for _, cur := range c.active {
		if cur.Status != model.LockApproved || cur.ExpiresAt.IsZero() || now.Before(cur.ExpiresAt) {
			continue
		}
		if err := c.releaseLocked(cur, "expired"); err != nil {
			return reaped, err
		}
		reaped++
	}
	return reaped, nil
}

func (c *Coordinator) newLock(req Request, now time.Time) model.PathLock {
	return model.PathLock{
		ID:              uuid.New(),
		FromStationCode: req.Channel.From,
		ToStationCode:   req.Channel.To,
		AgvCode:         req.AgvCode,
		TaskID:          req.TaskID,
		ChannelName:     req.Channel.Name(),
		RequestedAt:     now,
	}
}

func (c *Coordinator) releaseLocked(l model.PathLock, reason string) error {
	l.Status = model.LockReleased
	l.Reason = reason
	l.ReleasedAt = c.now()
	if err := c.persist(l); err != nil {
		return err
	}
	delete(c.active, l.ChannelName)
	c.log.Debugf("lock released for %s on %s (%s)", l.AgvCode, l.ChannelName, reason)
	return nil
}

func (c *Coordinator) persist(l model.PathLock) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.SaveLock(l); err != nil {
		return fmt.Errorf("pathlock: persist lock %s: %w", l.ID, err)
	}
	return nil
}

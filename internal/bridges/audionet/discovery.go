package audionet

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Scan scheduling constants. Fixed, not externally configurable.
const (
	// scanSearchWindow is how long a manually triggered discovery session
	// stays open before results are finalized with a StopScan.
	scanSearchWindow = 5 * time.Second

	// backgroundInitialDelay is the pause before the first background scan.
	backgroundInitialDelay = 5 * time.Second

	// backgroundInterval is the period between background scans.
	backgroundInterval = 20 * time.Second
)

// Scan trigger labels, recorded with scan metrics.
const (
	TriggerManual     = "manual"
	TriggerBackground = "background"
	TriggerEvent      = "event"
)

// BridgeClient is the bridge surface the coordinator consumes.
//
// NewPlayers and NewGroups return nil as an absent sentinel when no valid
// membership data exists; RemovedGroups and RemovedPlayers never return nil.
// Each call must be an atomic query-and-clear: the coordinator's correctness
// under concurrent scans depends on that invariant.
type BridgeClient interface {
	NewPlayers() map[string]Player
	NewGroups() map[string]PlayerGroup
	RemovedGroups() map[string]PlayerGroup
	RemovedPlayers() map[string]Player
	RegisterMembershipListener(l MembershipListener)
	SetEntityStatusOnline(id string)
	SetEntityStatusOffline(id string)
	ID() string
}

// Result is one discovered entity pending adoption.
type Result struct {
	// ID is the stable identifier: player pid or group member hash.
	ID string

	Kind  EntityKind
	Label string

	// Properties carries {name, pid, model, host} for players and
	// {name, members} for groups.
	Properties map[string]string

	// BridgeID scopes the result under its parent bridge.
	BridgeID string

	// Timestamp is when the scan that produced or reconfirmed this result
	// started. Purging compares against it.
	Timestamp time.Time
}

// ResultSink receives discovery additions, removals, and purge requests.
// Implementations must tolerate repeated EntityDiscovered calls for the same
// ID (reconfirmation refreshes the timestamp).
type ResultSink interface {
	EntityDiscovered(result Result)
	EntityRemoved(id string)
	PurgeResultsOlderThan(cutoff time.Time)
}

// ScanRecorder records scan telemetry. Optional; matches the InfluxDB
// client's write surface.
type ScanRecorder interface {
	WriteScanMetrics(trigger string, playersFound, groupsFound, removed int, duration time.Duration, aborted bool)
}

// CoordinatorOptions configures a Coordinator.
type CoordinatorOptions struct {
	// Bridge supplies membership deltas. Required.
	Bridge BridgeClient

	// Sink receives discovery results. Required.
	Sink ResultSink

	// Metrics records scan telemetry. Optional.
	Metrics ScanRecorder

	// Logger is optional.
	Logger Logger
}

// Coordinator schedules discovery scan passes and runs the membership diff
// over the bridge's pending deltas.
//
// One scan pass performs four sequential queries: new players, new groups,
// removed groups, removed players. Additions are reported before removals
// and players before groups, so a group never references a player the sink
// has not seen. An absent sentinel from either new-entity query aborts the
// whole pass; the deltas stay queued in the bridge for the next pass.
//
// A mutex serializes scan passes: the periodic job and the on-demand
// event trigger may fire concurrently and must not interleave.
type Coordinator struct {
	bridge  BridgeClient
	sink    ResultSink
	metrics ScanRecorder
	logger  Logger

	// scanMu serializes scan passes and StopScan against each other.
	scanMu sync.Mutex

	// lastScan is the timestamp of the last completed scan; results older
	// than it are stale.
	lastScan   time.Time
	lastScanMu sync.RWMutex

	bgDone chan struct{}
	bgWg   sync.WaitGroup
	bgMu   sync.Mutex
}

// NewCoordinator creates a scan coordinator and registers it with the bridge
// as a membership listener, so hub change notifications trigger on-demand
// scans.
func NewCoordinator(opts CoordinatorOptions) (*Coordinator, error) {
	if opts.Bridge == nil {
		return nil, fmt.Errorf("audionet: bridge is required")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("audionet: sink is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	c := &Coordinator{
		bridge:  opts.Bridge,
		sink:    opts.Sink,
		metrics: opts.Metrics,
		logger:  logger,
	}

	opts.Bridge.RegisterMembershipListener(c)

	return c, nil
}

// PlayersChanged implements MembershipListener.
func (c *Coordinator) PlayersChanged() {
	c.ScanForNewPlayers()
}

// GroupsChanged implements MembershipListener.
func (c *Coordinator) GroupsChanged() {
	c.ScanForNewPlayers()
}

// StartScan purges stale results and runs one scan pass.
func (c *Coordinator) StartScan(trigger string) {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()

	c.purgeStale()
	started := time.Now()
	c.runPass(trigger, started)
	c.setLastScan(started)
}

// ScanForNewPlayers is the on-demand trigger invoked by the bridge's
// membership-change callback: the same purge-then-scan sequence as the
// periodic job, outside the fixed schedule.
func (c *Coordinator) ScanForNewPlayers() {
	c.StartScan(TriggerEvent)
}

// TriggerScanSession runs a manual scan and finalizes its results after the
// search window elapses.
func (c *Coordinator) TriggerScanSession() {
	c.StartScan(TriggerManual)
	time.AfterFunc(scanSearchWindow, c.StopScan)
}

// StopScan finalizes an in-progress discovery session: serialized against
// scan execution, it purges results not reconfirmed by the latest scan.
func (c *Coordinator) StopScan() {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()
	c.purgeStale()
}

// StartBackgroundDiscovery schedules the periodic scan job. Idempotent:
// calling it while a job is active is a no-op.
func (c *Coordinator) StartBackgroundDiscovery() {
	c.bgMu.Lock()
	defer c.bgMu.Unlock()

	if c.bgDone != nil {
		c.logger.Debug("background discovery already active")
		return
	}

	c.bgDone = make(chan struct{})
	c.bgWg.Add(1)
	go c.backgroundLoop(c.bgDone)

	c.logger.Info("background discovery started",
		"initial_delay", backgroundInitialDelay,
		"interval", backgroundInterval,
	)
}

// StopBackgroundDiscovery cancels the periodic job. Safe to call when
// already stopped.
func (c *Coordinator) StopBackgroundDiscovery() {
	c.bgMu.Lock()
	defer c.bgMu.Unlock()

	if c.bgDone == nil {
		return
	}

	close(c.bgDone)
	c.bgWg.Wait()
	c.bgDone = nil

	c.logger.Info("background discovery stopped")
}

// BackgroundActive reports whether the periodic job is scheduled.
func (c *Coordinator) BackgroundActive() bool {
	c.bgMu.Lock()
	defer c.bgMu.Unlock()
	return c.bgDone != nil
}

// LastScan returns the timestamp of the last completed scan.
func (c *Coordinator) LastScan() time.Time {
	c.lastScanMu.RLock()
	defer c.lastScanMu.RUnlock()
	return c.lastScan
}

func (c *Coordinator) setLastScan(t time.Time) {
	c.lastScanMu.Lock()
	c.lastScan = t
	c.lastScanMu.Unlock()
}

// backgroundLoop waits the initial delay then scans every interval tick.
func (c *Coordinator) backgroundLoop(done <-chan struct{}) {
	defer c.bgWg.Done()

	initial := time.NewTimer(backgroundInitialDelay)
	defer initial.Stop()

	select {
	case <-done:
		return
	case <-initial.C:
	}

	c.StartScan(TriggerBackground)

	ticker := time.NewTicker(backgroundInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.StartScan(TriggerBackground)
		}
	}
}

// purgeStale drops results older than the last completed scan.
// Caller holds scanMu.
func (c *Coordinator) purgeStale() {
	cutoff := c.LastScan()
	if cutoff.IsZero() {
		return
	}
	c.sink.PurgeResultsOlderThan(cutoff)
}

// runPass executes one membership diff pass. Caller holds scanMu.
//
// Scan passes never raise user-visible errors: absent data aborts silently
// and the deltas are retried next pass.
func (c *Coordinator) runPass(trigger string, started time.Time) {
	newPlayers := c.bridge.NewPlayers()
	if newPlayers == nil {
		c.logger.Debug("player data unavailable, aborting scan pass", "trigger", trigger)
		c.recordScan(trigger, 0, 0, 0, started, true)
		return
	}

	for _, player := range sortedPlayers(newPlayers) {
		c.sink.EntityDiscovered(Result{
			ID:    player.PID,
			Kind:  EntityPlayer,
			Label: player.Name,
			Properties: map[string]string{
				"name":  player.Name,
				"pid":   player.PID,
				"model": player.Model,
				"host":  player.IP,
			},
			BridgeID:  c.bridge.ID(),
			Timestamp: started,
		})
		c.logger.Info("player discovered", "pid", player.PID, "name", player.Name)
	}

	newGroups := c.bridge.NewGroups()
	if newGroups == nil {
		// Mid-pass abort: players above are already reported, but group
		// and removal processing wait for the next pass.
		c.logger.Debug("group data unavailable, aborting scan pass", "trigger", trigger)
		c.recordScan(trigger, len(newPlayers), 0, 0, started, true)
		return
	}

	for _, hash := range sortedKeys(newGroups) {
		group := newGroups[hash]
		c.sink.EntityDiscovered(Result{
			ID:    hash,
			Kind:  EntityGroup,
			Label: group.Name,
			Properties: map[string]string{
				"name":    group.Name,
				"members": strings.Join(group.MemberPIDs, ","),
			},
			BridgeID:  c.bridge.ID(),
			Timestamp: started,
		})
		// Groups have no separate creation flow; presence needs explicit
		// activation.
		c.bridge.SetEntityStatusOnline(hash)
		c.logger.Info("group discovered", "hash", hash, "name", group.Name)
	}

	removed := 0
	for _, hash := range sortedKeys(c.bridge.RemovedGroups()) {
		c.sink.EntityRemoved(hash)
		c.bridge.SetEntityStatusOffline(hash)
		c.logger.Info("group removed", "hash", hash)
		removed++
	}

	for _, pid := range sortedKeys(c.bridge.RemovedPlayers()) {
		c.sink.EntityRemoved(pid)
		c.logger.Info("player removed", "pid", pid)
		removed++
	}

	c.recordScan(trigger, len(newPlayers), len(newGroups), removed, started, false)
}

func (c *Coordinator) recordScan(trigger string, players, groups, removed int, started time.Time, aborted bool) {
	if c.metrics == nil {
		return
	}
	c.metrics.WriteScanMetrics(trigger, players, groups, removed, time.Since(started), aborted)
}

// sortedPlayers returns players ordered by pid for deterministic reporting.
func sortedPlayers(m map[string]Player) []Player {
	out := make([]Player, 0, len(m))
	for _, pid := range sortedKeys(m) {
		out = append(out, m[pid])
	}
	return out
}

// sortedKeys returns map keys in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hum-tech/tsoam/internal/domain"
)

// Progress checkpoints within a cycle.
const (
	progressLoading    = 10
	progressReplayFrom = 20
	progressReplayTo   = 80
	progressCleanup    = 90
)

type moduleGroup struct {
	module string
	ops    []domain.PendingOperation
}

// groupByModule partitions ops by module in order of first appearance and
// sorts each group by enqueue timestamp.
func groupByModule(ops []domain.PendingOperation) []moduleGroup {
	var groups []moduleGroup
	index := make(map[string]int)
	for _, op := range ops {
		i, ok := index[op.Module]
		if !ok {
			i = len(groups)
			index[op.Module] = i
			groups = append(groups, moduleGroup{module: op.Module})
		}
		groups[i].ops = append(groups[i].ops, op)
	}
	for _, g := range groups {
		sort.SliceStable(g.ops, func(a, b int) bool {
			return g.ops[a].Timestamp < g.ops[b].Timestamp
		})
	}
	return groups
}

// cycle carries the state of one in-flight sync.
type cycle struct {
	s       *OfflineService
	total   int
	modules int
	done    int
	result  domain.CycleResult
}

func (c *cycle) emit(step string, progress int, message string) {
	errs := make([]string, len(c.result.Errors))
	copy(errs, c.result.Errors)
	c.s.observers.notify(domain.SyncProgress{
		Step:     step,
		Progress: progress,
		Total:    domain.ProgressTotal,
		Message:  message,
		Errors:   errs,
	})
}

func (c *cycle) fail(err error) domain.CycleResult {
	c.result.Err = err
	c.result.Errors = append(c.result.Errors, err.Error())
	c.emit(domain.StepError, c.replayProgress(), err.Error())
	return c.result
}

func (c *cycle) recordError(format string, args ...any) {
	c.result.Errors = append(c.result.Errors, fmt.Sprintf(format, args...))
}

// replayProgress maps finished module groups linearly onto [20, 80].
func (c *cycle) replayProgress() int {
	if c.modules == 0 {
		return progressReplayFrom
	}
	span := progressReplayTo - progressReplayFrom
	return progressReplayFrom + span*c.done/c.modules
}

// ForceSyncAll runs one sync cycle now. It returns a skipped result when
// offline or when another cycle is already running.
func (s *OfflineService) ForceSyncAll(ctx context.Context) domain.CycleResult {
	if !s.Online() {
		s.logger.Debug("sync skipped: offline")
		return domain.CycleResult{Skipped: true}
	}
	if !s.syncing.CompareAndSwap(false, true) {
		s.logger.Debug("sync skipped: already in progress")
		return domain.CycleResult{Skipped: true}
	}

	result, warm := s.runCycle(ctx)
	s.syncing.Store(false)

	// The flag is already clear; a sync requested during warm runs normally
	if warm {
		if err := s.worker.Warm(ctx, s.registry.Modules()); err != nil {
			s.logger.Warn("cache warm failed", "error", err)
		}
	}
	return result
}

func (s *OfflineService) loadOperations(ctx context.Context) ([]domain.PendingOperation, error) {
	raws, err := s.store.RetrieveAll(ctx, domain.PartitionOperations)
	if err != nil {
		return nil, err
	}
	ops, err := domain.DecodeAll[domain.PendingOperation](raws)
	if err != nil {
		return nil, &domain.StorageError{Op: "decode", Partition: domain.PartitionOperations, Err: err}
	}
	return ops, nil
}

// runCycle replays the queue through the Complete event. warm reports
// whether the cycle finished without errors.
func (s *OfflineService) runCycle(ctx context.Context) (result domain.CycleResult, warm bool) {
	c := &cycle{s: s}
	c.emit(domain.StepStarting, 0, "Starting synchronization")

	if s.store == nil {
		return c.fail(domain.ErrStorageUnavailable), false
	}
	ops, err := s.loadOperations(ctx)
	if err != nil {
		s.logger.Error("failed to load pending operations", "error", err)
		return c.fail(err), false
	}
	if len(ops) == 0 {
		c.emit(domain.StepComplete, 100, "No offline operations to sync")
		return c.result, false
	}

	groups := groupByModule(ops)
	c.total = len(ops)
	c.modules = len(groups)
	s.logger.Info("sync started", "operations", c.total, "modules", c.modules)
	c.emit(domain.StepLoading, progressLoading, fmt.Sprintf("Found %d pending operations", c.total))

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return c.fail(err), false
		}
		message := s.syncModule(ctx, c, g)
		if err := ctx.Err(); err != nil {
			return c.fail(err), false
		}
		c.done++
		c.emit(domain.StepSyncing, c.replayProgress(), message)
	}

	c.emit(domain.StepCleanup, progressCleanup, "Cleaning up old operations")
	collected, err := s.collectGarbage(ctx)
	c.result.Collected = collected
	if err != nil {
		s.logger.Error("garbage collection failed", "error", err)
		c.recordError("cleanup: %v", err)
	}

	meta := domain.SyncMetadata{Key: domain.MetadataKey, LastSync: s.now().UnixMilli()}
	if err := s.store.Store(ctx, domain.PartitionMetadata, meta); err != nil {
		s.logger.Error("failed to record sync time", "error", err)
		c.recordError("metadata: %v", err)
	}

	s.logger.Info("sync complete",
		"processed", c.result.Processed,
		"succeeded", c.result.Succeeded,
		"dropped", c.result.Dropped,
		"collected", c.result.Collected,
		"errors", len(c.result.Errors),
	)
	c.emit(domain.StepComplete, 100, completeMessage(c.result))
	return c.result, len(c.result.Errors) == 0
}

func completeMessage(r domain.CycleResult) string {
	if len(r.Errors) == 0 {
		return fmt.Sprintf("Synced %d operations", r.Succeeded)
	}
	return fmt.Sprintf("Synced %d operations with %d errors", r.Succeeded, len(r.Errors))
}

// syncModule replays one module's operations in timestamp order and stops
// at the first failure; the remainder waits for the next cycle. It returns
// the progress message for the finished group.
func (s *OfflineService) syncModule(ctx context.Context, c *cycle, g moduleGroup) string {
	endpoint, err := s.registry.Endpoint(g.module)
	if err != nil {
		// Every operation of an unroutable module fails the same way
		for _, op := range g.ops {
			c.result.Processed++
			s.dropOperation(ctx, c, op, err)
		}
		return fmt.Sprintf("Skipped module %s", g.module)
	}

	synced := 0
	for _, op := range g.ops {
		if ctx.Err() != nil {
			break
		}
		c.result.Processed++

		err := s.replay(ctx, endpoint, op)
		if err == nil {
			c.result.Succeeded++
			synced++
			continue
		}
		if ctx.Err() != nil {
			break
		}

		s.handleFailure(ctx, c, op, err)
		return fmt.Sprintf("Synced %d of %d %s operations, stopped at %s %s",
			synced, len(g.ops), g.module, op.Kind, op.ID)
	}
	return fmt.Sprintf("Synced %d %s operations", synced, g.module)
}

// replay sends op to the API and applies the outcome to the store.
func (s *OfflineService) replay(ctx context.Context, endpoint string, op domain.PendingOperation) error {
	switch op.Kind {
	case domain.OperationCreate:
		resp, err := s.remote.Create(ctx, endpoint, op.Data)
		if err != nil {
			return err
		}
		return s.completeWrite(ctx, op, resp, "")

	case domain.OperationUpdate:
		id, ok := domain.EntityID(op.Data)
		if !ok {
			return domain.ErrMissingID
		}
		resp, err := s.remote.Update(ctx, endpoint, id, op.Data)
		if err != nil {
			return err
		}
		return s.completeWrite(ctx, op, resp, id)

	case domain.OperationDelete:
		id, ok := domain.EntityID(op.Data)
		if !ok {
			return domain.ErrMissingID
		}
		if err := s.remote.Delete(ctx, endpoint, id); err != nil {
			return err
		}
		if err := s.store.Delete(ctx, domain.PartitionOperations, op.ID); err != nil {
			return err
		}
		return s.store.Delete(ctx, domain.PartitionData, domain.CacheKey(op.Module, id))

	default:
		return fmt.Errorf("%w: %q", domain.ErrInvalidKind, op.Kind)
	}
}

// completeWrite removes a replayed Create/Update and caches the server's view.
func (s *OfflineService) completeWrite(ctx context.Context, op domain.PendingOperation, resp []byte, fallbackID string) error {
	if err := s.store.Delete(ctx, domain.PartitionOperations, op.ID); err != nil {
		return err
	}

	id, ok := domain.EntityID(resp)
	if !ok {
		id = fallbackID
	}
	if id == "" || len(resp) == 0 {
		s.logger.Debug("response carries no id, not cached", "op", op.ID)
		return nil
	}
	return s.cacheRecord(ctx, op.Module, id, resp)
}

// handleFailure bumps the retry count, dropping the operation once the cap
// is reached or when the failure is permanent.
func (s *OfflineService) handleFailure(ctx context.Context, c *cycle, op domain.PendingOperation, cause error) {
	if errors.Is(cause, domain.ErrStorageUnavailable) {
		// The remote call may have succeeded; keep the operation as is
		s.logger.Error("storage failed during replay", "op", op.ID, "error", cause)
		c.recordError("%s %s %s: %v", op.Module, op.Kind, op.ID, cause)
		return
	}
	if domain.IsPermanent(cause) {
		s.dropOperation(ctx, c, op, cause)
		return
	}

	op.RetryCount++
	op.LastError = cause.Error()

	if op.RetryCount >= s.maxRetries {
		s.dropOperation(ctx, c, op, cause)
		return
	}

	s.logger.Warn("operation failed, will retry",
		"op", op.ID, "module", op.Module, "kind", op.Kind,
		"attempt", op.RetryCount, "maxRetries", s.maxRetries, "error", cause)
	c.recordError("%s %s %s: %v", op.Module, op.Kind, op.ID, cause)

	if err := s.store.Store(ctx, domain.PartitionOperations, op); err != nil {
		s.logger.Error("failed to record retry", "op", op.ID, "error", err)
		c.recordError("%s %s %s: %v", op.Module, op.Kind, op.ID, err)
	}
}

func (s *OfflineService) dropOperation(ctx context.Context, c *cycle, op domain.PendingOperation, cause error) {
	s.logger.Error("dropping operation",
		"op", op.ID, "module", op.Module, "kind", op.Kind,
		"attempts", op.RetryCount, "error", cause)
	c.recordError("%s %s %s dropped: %v", op.Module, op.Kind, op.ID, cause)

	if err := s.store.Delete(ctx, domain.PartitionOperations, op.ID); err != nil {
		s.logger.Error("failed to drop operation", "op", op.ID, "error", err)
		c.recordError("%s %s %s: %v", op.Module, op.Kind, op.ID, err)
		return
	}
	c.result.Dropped++
}

// collectGarbage removes operations older than gcAge that have already
// failed at least gcMinRetries times.
func (s *OfflineService) collectGarbage(ctx context.Context) (int, error) {
	ops, err := s.loadOperations(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-s.gcAge).UnixMilli()
	collected := 0
	for _, op := range ops {
		if op.Timestamp >= cutoff || op.RetryCount < s.gcMinRetries {
			continue
		}
		if err := s.store.Delete(ctx, domain.PartitionOperations, op.ID); err != nil {
			return collected, err
		}
		s.logger.Info("collected stale operation", "op", op.ID, "module", op.Module, "attempts", op.RetryCount)
		collected++
	}
	return collected, nil
}

/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package formsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/formsync/config"
	"github.com/jerry-enebeli/formsync/internal/apierror"
	"github.com/jerry-enebeli/formsync/internal/notification"
	"github.com/jerry-enebeli/formsync/model"
)

// PurgeOptions controls what Initialize does besides starting the daily loop.
type PurgeOptions struct {
	RunOnStartup bool
	// TestMode uses 0-day thresholds for the startup pass.
	TestMode bool
}

// PurgeScheduler expires old forms every day at local midnight and resets
// syncs that were left in progress.
type PurgeScheduler struct {
	formsync         *Formsync
	syncedDays       int
	staleDays        int
	recoveryInterval time.Duration
	stuckThreshold   time.Duration
	now              func() time.Time
	stopCh           chan struct{}
	wg               sync.WaitGroup
	running          bool
	mu               sync.Mutex
}

func NewPurgeScheduler(f *Formsync) *PurgeScheduler {
	p := &PurgeScheduler{
		formsync:         f,
		syncedDays:       config.DEFAULT_SYNCED_DAYS,
		staleDays:        config.DEFAULT_STALE_DAYS,
		recoveryInterval: config.DEFAULT_RECOVERY_INTERVAL * time.Second,
		stuckThreshold:   config.DEFAULT_STUCK_THRESHOLD * time.Second,
		now:              time.Now,
		stopCh:           make(chan struct{}),
	}

	cfg := f.config.Purge
	if cfg.SyncedDays > 0 {
		p.syncedDays = cfg.SyncedDays
	}
	if cfg.StaleDays > 0 {
		p.staleDays = cfg.StaleDays
	}
	if cfg.RecoveryIntervalSec > 0 {
		p.recoveryInterval = time.Duration(cfg.RecoveryIntervalSec) * time.Second
	}
	if cfg.StuckThresholdSec > 0 {
		p.stuckThreshold = time.Duration(cfg.StuckThresholdSec) * time.Second
	}
	return p
}

func cutoffFor(now time.Time, days int) time.Time {
	return now.AddDate(0, 0, -days)
}

// ExpireSyncedOlderThan expires synced forms whose sync date is at least days ago.
func (p *PurgeScheduler) ExpireSyncedOlderThan(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, apierror.NewAPIError(apierror.ErrInvalidInput, "days must not be negative", nil)
	}
	now := p.formsync.clock.Now()
	count, err := p.formsync.datasource.ExpireSyncedBefore(ctx, cutoffFor(now, days), now)
	if err != nil {
		return 0, err
	}
	logrus.WithFields(logrus.Fields{"days": days, "count": count}).Info("expired synchronized forms")
	return count, nil
}

// ExpireStaleOlderThan expires unsynced forms created at least days ago.
func (p *PurgeScheduler) ExpireStaleOlderThan(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, apierror.NewAPIError(apierror.ErrInvalidInput, "days must not be negative", nil)
	}
	now := p.formsync.clock.Now()
	count, err := p.formsync.datasource.ExpireStaleBefore(ctx, cutoffFor(now, days), now)
	if err != nil {
		return 0, err
	}
	logrus.WithFields(logrus.Fields{"days": days, "count": count}).Info("expired stale forms")
	return count, nil
}

// RunManual runs both sweeps with the given thresholds.
func (p *PurgeScheduler) RunManual(ctx context.Context, syncDays, staleDays int) (model.PurgeResult, error) {
	var result model.PurgeResult
	synced, err := p.ExpireSyncedOlderThan(ctx, syncDays)
	if err != nil {
		return result, err
	}
	result.ExpiredSyncedCount = synced

	stale, err := p.ExpireStaleOlderThan(ctx, staleDays)
	if err != nil {
		return result, err
	}
	result.ExpiredStaleCount = stale
	return result, nil
}

// RunScheduled runs both sweeps with the configured thresholds.
func (p *PurgeScheduler) RunScheduled(ctx context.Context) (model.PurgeResult, error) {
	return p.RunManual(ctx, p.syncedDays, p.staleDays)
}

// RecoverStuckSyncs fails syncs that have been in progress longer than the stuck threshold.
func (p *PurgeScheduler) RecoverStuckSyncs(ctx context.Context) (int64, error) {
	now := p.formsync.clock.Now()
	count, err := p.formsync.datasource.ResetStuckSyncs(ctx, now.Add(-p.stuckThreshold), now)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		logrus.WithField("count", count).Warn("reset syncs stuck in progress")
	}
	return count, nil
}

// Initialize starts the daily loop and, when asked, runs one pass immediately.
func (p *PurgeScheduler) Initialize(ctx context.Context, opts PurgeOptions) {
	p.Start(ctx)

	if !opts.RunOnStartup {
		return
	}
	syncDays, staleDays := p.syncedDays, p.staleDays
	if opts.TestMode {
		syncDays, staleDays = 0, 0
	}
	result, err := p.RunManual(ctx, syncDays, staleDays)
	if err != nil {
		notification.NotifyError(fmt.Errorf("startup purge failed: %w", err))
		return
	}
	logrus.WithFields(logrus.Fields{
		"expired_synced": result.ExpiredSyncedCount,
		"expired_stale":  result.ExpiredStaleCount,
		"test_mode":      opts.TestMode,
	}).Info("startup purge completed")
}

func (p *PurgeScheduler) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()

	logrus.Info("Purge scheduler started")
}

func (p *PurgeScheduler) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	logrus.Info("Purge scheduler stopped")
}

func (p *PurgeScheduler) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}

func (p *PurgeScheduler) run(ctx context.Context) {
	daily := time.NewTimer(nextMidnight(p.now()).Sub(p.now()))
	defer daily.Stop()
	recovery := time.NewTicker(p.recoveryInterval)
	defer recovery.Stop()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Purge scheduler context cancelled")
			return
		case <-p.stopCh:
			logrus.Info("Purge scheduler stop signal received")
			return
		case <-daily.C:
			p.sweep(ctx)
			daily.Reset(nextMidnight(p.now()).Sub(p.now()))
		case <-recovery.C:
			if _, err := p.RecoverStuckSyncs(ctx); err != nil {
				notification.NotifyError(fmt.Errorf("stuck sync recovery failed: %w", err))
			}
		}
	}
}

func (p *PurgeScheduler) sweep(ctx context.Context) {
	result, err := p.RunScheduled(ctx)
	if err != nil {
		notification.NotifyError(fmt.Errorf("scheduled purge failed: %w", err))
		return
	}
	logrus.WithFields(logrus.Fields{
		"expired_synced": result.ExpiredSyncedCount,
		"expired_stale":  result.ExpiredStaleCount,
	}).Info("scheduled purge completed")
}

// Purge runs a manual sweep. Nil thresholds use the configured defaults.
func (f *Formsync) Purge(ctx context.Context, syncDays, staleDays *int) (model.PurgeResult, error) {
	p := NewPurgeScheduler(f)
	sd, st := p.syncedDays, p.staleDays
	if syncDays != nil {
		sd = *syncDays
	}
	if staleDays != nil {
		st = *staleDays
	}
	return p.RunManual(ctx, sd, st)
}

package retention

import (
	"context"
	"time"

	"parley/pkg/config"
	"parley/pkg/logger"
	"parley/pkg/store"
)

const defaultPeriod = 720 * time.Hour // 30 days

// runOnce trims read notifications older than the configured period.
// Unread notifications are never touched regardless of age; the
// notification contract only bounds what readers surface, so the sweeper
// is the sole delete path and stays conservative.
func runOnce(ctx context.Context, eff config.EffectiveConfigResult, retentionPath string) error {
	ret := eff.Config.Retention
	period := defaultPeriod
	if ret.Period != "" {
		if p, err := time.ParseDuration(ret.Period); err == nil && p > 0 {
			period = p
		} else {
			logger.Warn("retention_invalid_period", "period", ret.Period)
		}
	}
	cutoff := time.Now().UTC().Add(-period).UnixNano()

	uids, err := store.ListNotifiedUserIDs()
	if err != nil {
		return err
	}

	removed := 0
	for _, uid := range uids {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		ns, err := store.ListNotifications(uid, 0)
		if err != nil {
			logger.Warn("retention_list_failed", "user", uid, "error", err)
			continue
		}
		for _, n := range ns {
			if n.Unread || n.TS >= cutoff {
				continue
			}
			if ret.DryRun {
				logger.Info("retention_would_remove", "user", uid, "notification", n.ID)
				continue
			}
			if err := store.DeleteNotificationRecord(uid, n.ID); err != nil {
				logger.Warn("retention_delete_failed", "user", uid, "notification", n.ID, "error", err)
				continue
			}
			removed++
		}
	}

	logger.Info("retention_run_complete", "users", len(uids), "removed", removed, "dry_run", ret.DryRun)
	writeMarker(retentionPath, removed)
	return nil
}

// Package app wires configuration, storage, pacing, quota, the sender
// and the reporting consumers into one campaign invocation.
package app

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/campaign"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/compose"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/config"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/contacts"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/eventbus"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/notify"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/pace"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/quota"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/report"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/retry"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/sender"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/storage"
	"github.com/Candra0x6/WA-Website-Offer-Automation/pkg/logx"
)

// Overrides are command-line settings that win over the config file.
// Nil pointers leave the file value in place.
type Overrides struct {
	ContactsFile string
	DryRun       *bool
	Headless     *bool
	Fresh        bool
}

// Run executes one campaign invocation end to end and returns its
// final status. The context governs the whole run; cancelling it
// pauses the campaign between jobs.
func Run(ctx context.Context, configPath string, ov Overrides) (campaign.Status, error) {
	mgr := config.NewManager(configPath)
	cfg, err := mgr.LoadOrDefault()
	if err != nil {
		return campaign.StatusIdle, fmt.Errorf("config: %w", err)
	}
	applyOverrides(cfg, ov)

	logSvc, log := logx.New(logConfig(cfg))
	defer logSvc.Close()
	mgr.SetLogger(log)

	log.Info("starting",
		logx.String("config", configPath),
		logx.String("contacts", cfg.Campaign.ContactsFile),
		logx.Bool("dry_run", cfg.Campaign.DryRun))

	if err := waitForSchedule(ctx, cfg.Campaign.Schedule, log); err != nil {
		return campaign.StatusIdle, err
	}

	sc, err := storageConfig(cfg)
	if err != nil {
		return campaign.StatusIdle, err
	}
	store, err := storage.Open(sc, log)
	if err != nil {
		return campaign.StatusIdle, fmt.Errorf("storage: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	source, err := contacts.Load(cfg.Campaign.ContactsFile, cfg.Campaign.CountryCode, log)
	if err != nil {
		return campaign.StatusIdle, fmt.Errorf("contacts: %w", err)
	}
	if source.Valid() == 0 {
		return campaign.StatusIdle, fmt.Errorf("contacts: no valid rows in %s", cfg.Campaign.ContactsFile)
	}

	tracker, err := quota.New(ctx, quotaLimits(cfg), store, log)
	if err != nil {
		return campaign.StatusIdle, fmt.Errorf("quota: %w", err)
	}

	paceCfg, err := paceConfig(cfg)
	if err != nil {
		return campaign.StatusIdle, err
	}
	pacer, err := pace.New(paceCfg, nil)
	if err != nil {
		return campaign.StatusIdle, fmt.Errorf("pace: %w", err)
	}

	policy, err := retryPolicy(cfg)
	if err != nil {
		return campaign.StatusIdle, err
	}

	snd := buildSender(cfg, log)
	if err := snd.Start(ctx); err != nil {
		return campaign.StatusIdle, fmt.Errorf("sender: %w", err)
	}
	defer snd.Close()

	bus := eventbus.New()

	var flushReports func()
	if cfg.Reports.Enabled {
		rep := report.New(cfg.Reports.Dir, log)
		ch, unsub := bus.Subscribe(256)
		done := rep.Consume(ch)
		flushReports = func() {
			unsub()
			<-done
			if _, err := rep.Flush(); err != nil {
				log.Warn("report flush failed", logx.Err(err))
			}
		}
	}

	var waitNotify func()
	notifier, err := notify.New(notifyConfig(cfg), log)
	if err != nil {
		log.Warn("telegram notifier unavailable", logx.Err(err))
	} else if notifier != nil {
		ch, unsub := bus.Subscribe(64)
		done := notifier.Consume(ctx, ch)
		waitNotify = func() {
			unsub()
			<-done
		}
	}

	// Live reload: pacing, quota ceilings and log level can change
	// mid-run without restarting the campaign.
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	updates := mgr.Subscribe(1)
	defer mgr.Unsubscribe(updates)
	go func() {
		if err := mgr.Watch(watchCtx); err != nil {
			log.Warn("config watch stopped", logx.Err(err))
		}
	}()
	go func() {
		for next := range updates {
			applyOverrides(next, ov)
			if pc, perr := paceConfig(next); perr == nil {
				if aerr := pacer.Apply(pc); aerr != nil {
					log.Warn("pace reload rejected", logx.Err(aerr))
				}
			}
			tracker.SetLimits(quotaLimits(next))
			logSvc.Apply(logConfig(next))
		}
	}()

	runner := campaign.New(source, snd, compose.New(rand.New(rand.NewSource(time.Now().UnixNano()))),
		tracker, pacer, policy, store, bus, log, campaign.Options{
			SaveEvery:     cfg.Campaign.SaveEvery,
			Fresh:         ov.Fresh,
			DryRun:        cfg.Campaign.DryRun,
			CountAttempts: cfg.Rate.CountAttempts,
		})

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	sum, runErr := runner.Run(ctx)
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	qs := tracker.Snapshot()
	log.Info("quota status",
		logx.Int("sent_today", qs.SentToday),
		logx.Int("sent_this_hour", qs.SentThisHour),
		logx.Int("total_sent", qs.TotalSent))

	if waitNotify != nil {
		waitNotify()
	}
	if flushReports != nil {
		flushReports()
	}
	return sum.Status, runErr
}

func applyOverrides(cfg *config.Config, ov Overrides) {
	if ov.ContactsFile != "" {
		cfg.Campaign.ContactsFile = ov.ContactsFile
	}
	if ov.DryRun != nil {
		cfg.Campaign.DryRun = *ov.DryRun
	}
	if ov.Headless != nil {
		cfg.Campaign.Headless = *ov.Headless
	}
}

// waitForSchedule blocks until the next cron activation, or returns
// immediately when no schedule is set.
func waitForSchedule(ctx context.Context, spec string, log logx.Logger) error {
	if spec == "" {
		return nil
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	next := sched.Next(time.Now())
	wait := time.Until(next)
	log.Info("waiting for scheduled start",
		logx.Time("next", next),
		logx.Duration("wait", wait))

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func buildSender(cfg *config.Config, log logx.Logger) sender.Sender {
	if cfg.Campaign.DryRun {
		return sender.NewDryRun(log, 0)
	}
	return sender.NewWhatsApp(sender.WhatsAppConfig{
		Headless:   cfg.Campaign.Headless,
		ProfileDir: cfg.Campaign.ChromeProfile,
	}, log)
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func quotaLimits(cfg *config.Config) quota.Limits {
	return quota.Limits{Daily: cfg.Rate.DailyLimit, Hourly: cfg.Rate.HourlyLimit}
}

func paceConfig(cfg *config.Config) (pace.Config, error) {
	var (
		pc  pace.Config
		err error
	)
	if pc.MinMessageDelay, err = config.ParseDurationField("rate.min_message_delay", cfg.Rate.MinMessageDelay); err != nil {
		return pc, err
	}
	if pc.MaxMessageDelay, err = config.ParseDurationField("rate.max_message_delay", cfg.Rate.MaxMessageDelay); err != nil {
		return pc, err
	}
	if pc.MinBatchDelay, err = config.ParseDurationField("rate.min_batch_delay", cfg.Rate.MinBatchDelay); err != nil {
		return pc, err
	}
	if pc.MaxBatchDelay, err = config.ParseDurationField("rate.max_batch_delay", cfg.Rate.MaxBatchDelay); err != nil {
		return pc, err
	}
	pc.MinBatchSize = cfg.Rate.MinBatchSize
	pc.MaxBatchSize = cfg.Rate.MaxBatchSize
	return pc, nil
}

func retryPolicy(cfg *config.Config) (retry.Policy, error) {
	p := retry.Policy{
		MaxRetries: cfg.Retry.MaxRetries,
		Factor:     cfg.Retry.BackoffFactor,
	}
	var err error
	if p.BaseDelay, err = config.ParseDurationField("retry.base_delay", cfg.Retry.BaseDelay); err != nil {
		return p, err
	}
	if p.MaxBackoff, err = config.ParseDurationField("retry.max_backoff", cfg.Retry.MaxBackoff); err != nil {
		return p, err
	}
	return p, nil
}

func storageConfig(cfg *config.Config) (storage.Config, error) {
	sc := storage.Config{
		Driver: cfg.Storage.Driver,
		Path:   cfg.Storage.Path,
	}
	d, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return sc, err
	}
	sc.BusyTimeout = d
	return sc, nil
}

func notifyConfig(cfg *config.Config) notify.Config {
	t := cfg.Notify.Telegram
	per := t.RatePerMin / 60
	if t.RatePerMin > 0 && per < 1 {
		per = 1
	}
	return notify.Config{
		Enabled:    t.Enabled,
		Token:      t.Token,
		ChatID:     t.ChatID,
		RatePerSec: per,
	}
}

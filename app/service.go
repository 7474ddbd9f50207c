// Package app wires the configuration into running collaborators: metric
// sinks, the event bus, the persistence client and the save notifier. It is
// the composition root UI layers obtain sessions from.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/groundctl/passplan/config"
	"github.com/groundctl/passplan/core/logger"
	coremetrics "github.com/groundctl/passplan/core/metrics"
	"github.com/groundctl/passplan/core/model"
	"github.com/groundctl/passplan/core/session"
	"github.com/groundctl/passplan/core/store"
	infralogger "github.com/groundctl/passplan/infra/logger"
	"github.com/groundctl/passplan/infra/metrics"
	"github.com/groundctl/passplan/infra/mqtt"
	infrastore "github.com/groundctl/passplan/infra/store"
	"github.com/groundctl/passplan/internal/eventbus"
)

// Service owns the long-lived collaborators shared by all sessions.
type Service struct {
	cfg    *config.Config
	log    logger.Logger
	bus    *eventbus.Bus
	sink   coremetrics.Sink
	saver  store.Saver
	cancel context.CancelFunc

	mu       sync.RWMutex
	notifier mqtt.Notifier
}

// New builds a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	log := infralogger.New("service")

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(nil)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
		go func() {
			if err := metrics.StartPromServer(cfg.Metrics.PrometheusPort); err != nil {
				log.Errorf("prom server: %v", err)
			}
		}()
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(
			cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket))
	}
	var sink coremetrics.Sink = coremetrics.NopSink{}
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = coremetrics.NewMultiSink(sinks...)
	}

	var saver store.Saver
	if cfg.Store.BaseURL != "" {
		saver = infrastore.NewHTTPSaver(cfg.Store)
	}

	var notifier mqtt.Notifier
	if cfg.MQTT.Enabled {
		n, err := mqtt.NewPahoNotifier(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt notifier: %w", err)
		}
		notifier = n
	}

	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	metrics.StartEventCollector(ctx, bus, sink)

	svc := &Service{
		cfg:      cfg,
		log:      log,
		bus:      bus,
		sink:     sink,
		saver:    saver,
		notifier: notifier,
		cancel:   cancel,
	}
	svc.watchSaves(ctx)
	return svc, nil
}

// OpenSession creates an override session for the opportunity.
func (s *Service) OpenSession(opp model.Opportunity, candidates []model.Site) (*session.Controller, error) {
	threshold, err := s.cfg.Session.Threshold()
	if err != nil {
		return nil, err
	}
	return session.New(opp, candidates, session.Config{
		Planner:      s.cfg.Planner,
		AckThreshold: threshold,
		Saver:        s.saver,
		Logger:       infralogger.New("session"),
		Bus:          s.bus,
	})
}

// SetSaver overrides the persistence collaborator. Used by tests and by
// callers embedding the engine behind their own store.
func (s *Service) SetSaver(saver store.Saver) {
	s.saver = saver
}

// SetNotifier overrides the saved-override notifier.
func (s *Service) SetNotifier(n mqtt.Notifier) {
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()
}

func (s *Service) currentNotifier() mqtt.Notifier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notifier
}

// watchSaves forwards successful saves to the MQTT notifier.
func (s *Service) watchSaves(ctx context.Context) {
	sub := s.bus.Subscribe()
	go func() {
		defer s.bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				save, isSave := ev.(session.SaveEvent)
				if !isSave || save.Outcome != "ok" || save.Request == nil {
					continue
				}
				notifier := s.currentNotifier()
				if notifier == nil {
					continue
				}
				notice := mqtt.OverrideSavedNotice{
					SessionID:     save.SessionID,
					OpportunityID: save.OpportunityID,
					Allocation:    save.Request.FinalAllocation,
					ForceOverride: save.Request.ForceOverride,
					SavedAt:       save.Time,
				}
				if err := notifier.NotifySaved(notice); err != nil {
					s.log.Warnf("override notice: %v", err)
				}
			}
		}
	}()
}

// Close tears the service down.
func (s *Service) Close() error {
	s.cancel()
	if n := s.currentNotifier(); n != nil {
		n.Close()
	}
	s.bus.Close()
	return nil
}

// Package metrics exports reminder and notification counters to Prometheus.
//
// Counters are fed from the event bus, so the scheduler and the notifier stay
// unaware of Prometheus.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"todox/internal/eventbus"
	logx "todox/pkg/logx"
)

const namespace = "todox"

type Metrics struct {
	reg *prometheus.Registry
	log logx.Logger

	scheduled     prometheus.Counter
	fired         prometheus.Counter
	cancelled     prometheus.Counter
	restored      prometheus.Counter
	notifications *prometheus.CounterVec
	taskReloads   prometheus.Counter
}

// New builds a private registry with the todox collectors plus the Go and
// process collectors. live, when non-nil, backs the registry-size gauge.
func New(live func() int, log logx.Logger) (*Metrics, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		log: log,
		scheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reminders_scheduled_total",
			Help: "Reminder timers armed.",
		}),
		fired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reminders_fired_total",
			Help: "Reminder timers that fired.",
		}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reminders_cancelled_total",
			Help: "Reminder entries removed before firing.",
		}),
		restored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reminders_restored_total",
			Help: "Reminder keys restored from storage at startup.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_total",
			Help: "Notification outcomes by result.",
		}, []string{"result"}),
		taskReloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "task_reloads_total",
			Help: "Task file synchronizations.",
		}),
	}
	cs := []prometheus.Collector{
		m.scheduled, m.fired, m.cancelled, m.restored, m.notifications, m.taskReloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	if live != nil {
		cs = append(cs, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "reminders_live",
			Help: "Entries currently in the reminder registry.",
		}, func() float64 { return float64(live()) }))
	}
	for _, c := range cs {
		if err := m.reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	for _, r := range []string{"sent", "failed", "dropped", "deduped"} {
		m.notifications.WithLabelValues(r)
	}
	return m, nil
}

// Registry is the gatherer served on /metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Observe updates counters for one event. Unknown types are ignored.
func (m *Metrics) Observe(e eventbus.Event) {
	switch e.Type {
	case eventbus.ReminderScheduled:
		m.scheduled.Inc()
	case eventbus.ReminderFired:
		m.fired.Inc()
	case eventbus.ReminderCancelled:
		m.cancelled.Inc()
	case eventbus.ReminderRestored:
		m.restored.Inc()
	case eventbus.NotificationSent:
		m.notifications.WithLabelValues("sent").Inc()
	case eventbus.NotificationFailed:
		m.notifications.WithLabelValues("failed").Inc()
	case eventbus.NotificationDropped:
		m.notifications.WithLabelValues("dropped").Inc()
	case eventbus.NotificationDeduped:
		m.notifications.WithLabelValues("deduped").Inc()
	case eventbus.TasksReloaded:
		m.taskReloads.Inc()
	}
}

// Run consumes bus events until ctx is done.
func (m *Metrics) Run(ctx context.Context, bus eventbus.Bus) error {
	if bus == nil {
		<-ctx.Done()
		return nil
	}
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	m.log.Debug("metrics consumer started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			m.Observe(e)
		}
	}
}

package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "automod_event_duration_sec",
	Help: "Total duration of automod context evaluation",
}, []string{"type"})

var eventProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_event_processed",
	Help: "Number of contexts evaluated",
}, []string{"type"})

var eventErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_event_errors",
	Help: "Number of contexts which failed evaluation",
}, []string{"type"})

var ruleMatchCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_rule_matches",
	Help: "Number of rule matches, by trigger type",
}, []string{"trigger"})

var ruleSkipCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_rule_skips",
	Help: "Number of rules skipped before trigger evaluation, by reason",
}, []string{"reason"})

var triggerErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_trigger_errors",
	Help: "Number of trigger evaluations which returned an error",
}, []string{"trigger"})

var actionApplyCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_actions_applied",
	Help: "Number of actions applied",
}, []string{"action"})

var actionErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_action_errors",
	Help: "Number of actions which failed",
}, []string{"action"})

var chainedContextCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_chained_contexts",
	Help: "Number of contexts enqueued as a side-effect of actions",
}, []string{"type"})

var botAlertCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_bot_alerts",
	Help: "Number of bot alerts, by whether they were delivered or throttled",
}, []string{"status"})

var queueTasksAdded = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_queue_tasks_added",
	Help: "Number of tasks added to guild queues",
})

var queueTasksProcessed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_queue_tasks_processed",
	Help: "Number of guild queue tasks which ran to completion",
})

var queueTasksRejected = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_queue_tasks_rejected",
	Help: "Number of tasks rejected because the guild queue was full (back-pressure)",
})

var queueTaskFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_task_failures",
	Help: "Number of guild queue tasks which returned an error or panicked",
}, []string{"kind"})

var queueWorkersActive = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "automod_queue_workers",
	Help: "Number of guild queue workers",
})

var mutesExpired = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_mutes_expired",
	Help: "Number of expired mutes lifted, by outcome",
}, []string{"status"})

package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chatTurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streetlight_chat_turns_total",
		Help: "Completed chat turns by mode and outcome",
	}, []string{"mode", "outcome"})

	toolExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streetlight_tool_executions_total",
		Help: "Tool executions requested by the model, by tool name and status",
	}, []string{"tool", "status"})

	groundingTriggersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streetlight_grounding_triggers_total",
		Help: "Turns where forced-context grounding fired",
	})

	llmRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streetlight_llm_request_duration_seconds",
		Help:    "Latency of language model calls by phase",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})
)

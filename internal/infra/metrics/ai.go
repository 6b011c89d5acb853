package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiTokensIn,
		aiTokensOut,
		aiCompletionsTotal,
		aiCompletionLatencyMs,
	)
}

var (
	aiTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_in",
			Help: "Sum of prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model", "estimated"},
	)

	aiTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_out",
			Help: "Sum of completion (output) tokens per provider/model.",
		},
		[]string{"provider", "model", "estimated"},
	)

	aiCompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_completions_total",
			Help: "Completion calls per provider/model and outcome (ok or error kind).",
		},
		[]string{"provider", "model", "outcome"},
	)

	aiCompletionLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_completion_latency_ms",
			Help:    "Completion latency distribution in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		},
		[]string{"provider", "model", "success"},
	)
)

func ObserveCompletion(provider, model, outcome string, latency time.Duration) {
	aiCompletionsTotal.WithLabelValues(norm(provider), norm(model), norm(outcome)).Inc()
	aiCompletionLatencyMs.WithLabelValues(norm(provider), norm(model), strconv.FormatBool(outcome == "ok")).
		Observe(float64(latency.Milliseconds()))
}

func ObserveTokens(provider, model string, tokensIn, tokensOut int, estimated bool) {
	lbl := []string{norm(provider), norm(model), strconv.FormatBool(estimated)}
	aiTokensIn.WithLabelValues(lbl...).Add(float64(tokensIn))
	aiTokensOut.WithLabelValues(lbl...).Add(float64(tokensOut))
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Collector aggregates prometheus metrics for the retrieval pipeline and the
// workflow engine. Recording failures never abort a turn; the CollectMetrics
// node logs and swallows them.
type Collector struct {
	// Retrieval metrics
	retrievalDuration *prometheus.HistogramVec
	retrievalResults  *prometheus.HistogramVec
	backendErrors     *prometheus.CounterVec

	// Cache metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// Workflow metrics
	turnDuration     *prometheus.HistogramVec
	generateRetries  *prometheus.CounterVec
	guardrailErrors  *prometheus.CounterVec
	promptTokensUsed *prometheus.CounterVec

	// Tool metrics
	toolExecutions *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a collector and registers its metrics on reg. Pass
// prometheus.NewRegistry() in tests to avoid global registry collisions.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := func(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
		h := prometheus.NewHistogramVec(opts, labels)
		reg.MustRegister(h)
		return h
	}
	counter := func(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
		c := prometheus.NewCounterVec(opts, labels)
		reg.MustRegister(c)
		return c
	}

	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	c.retrievalDuration = factory(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "retrieval_duration_seconds",
		Help:      "Retrieval pipeline duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"domain", "cache"})

	c.retrievalResults = factory(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "retrieval_results",
		Help:      "Number of citations returned per retrieval",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
	}, []string{"domain"})

	c.backendErrors = counter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retrieval_backend_errors_total",
		Help:      "Total retrieval backend failures after retries",
	}, []string{"backend"})

	c.cacheHits = counter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_hits_total",
		Help:      "Total cache hits",
	}, []string{"cache"})

	c.cacheMisses = counter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_misses_total",
		Help:      "Total cache misses",
	}, []string{"cache"})

	c.turnDuration = factory(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "turn_duration_seconds",
		Help:      "Workflow turn duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"domain"})

	c.generateRetries = counter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generate_retries_total",
		Help:      "Total guardrail-triggered generation retries",
	}, []string{"domain"})

	c.guardrailErrors = counter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "guardrail_errors_total",
		Help:      "Total guardrail validation errors recorded",
	}, []string{"domain", "code"})

	c.promptTokensUsed = counter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "prompt_tokens_total",
		Help:      "Approximate prompt tokens sent to the LLM gateway",
	}, []string{"domain"})

	c.toolExecutions = counter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tool_executions_total",
		Help:      "Total tool executions by outcome",
	}, []string{"tool", "outcome"})

	return c
}

// ObserveRetrieval records one retrieval pipeline pass.
func (c *Collector) ObserveRetrieval(domain string, cached bool, results int, elapsed time.Duration) {
	cacheLabel := "miss"
	if cached {
		cacheLabel = "hit"
	}
	c.retrievalDuration.WithLabelValues(domain, cacheLabel).Observe(elapsed.Seconds())
	c.retrievalResults.WithLabelValues(domain).Observe(float64(results))
}

// IncBackendError records a backend failure after retries were exhausted.
func (c *Collector) IncBackendError(backend string) {
	c.backendErrors.WithLabelValues(backend).Inc()
}

// IncCacheHit records a hit on the named cache.
func (c *Collector) IncCacheHit(cacheName string) {
	c.cacheHits.WithLabelValues(cacheName).Inc()
}

// IncCacheMiss records a miss on the named cache.
func (c *Collector) IncCacheMiss(cacheName string) {
	c.cacheMisses.WithLabelValues(cacheName).Inc()
}

// ObserveTurn records one completed workflow turn.
func (c *Collector) ObserveTurn(domain string, elapsed time.Duration) {
	c.turnDuration.WithLabelValues(domain).Observe(elapsed.Seconds())
}

// IncGenerateRetry records a guardrail-triggered regeneration.
func (c *Collector) IncGenerateRetry(domain string) {
	c.generateRetries.WithLabelValues(domain).Inc()
}

// IncGuardrailError records a recorded validation error.
func (c *Collector) IncGuardrailError(domain, code string) {
	c.guardrailErrors.WithLabelValues(domain, code).Inc()
}

// AddPromptTokens records approximate prompt token usage.
func (c *Collector) AddPromptTokens(domain string, tokens int) {
	if tokens > 0 {
		c.promptTokensUsed.WithLabelValues(domain).Add(float64(tokens))
	}
}

// IncToolExecution records one tool execution outcome.
func (c *Collector) IncToolExecution(tool string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.toolExecutions.WithLabelValues(tool, outcome).Inc()
}

package changefeed

import "github.com/prometheus/client_golang/prometheus"

var (
	publishedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainingsync",
		Subsystem: "changefeed",
		Name:      "published_total",
		Help:      "Change messages published grouped by event type.",
	}, []string{"event_type"})

	publishErrorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trainingsync",
		Subsystem: "changefeed",
		Name:      "publish_errors_total",
		Help:      "Change messages that could not be published.",
	})

	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainingsync",
		Subsystem: "changefeed",
		Name:      "messages_processed_total",
		Help:      "Change messages handled successfully.",
	}, []string{"topic", "event_type"})

	ignoredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainingsync",
		Subsystem: "changefeed",
		Name:      "messages_ignored_total",
		Help:      "Change messages skipped because they came from this device or another user.",
	}, []string{"topic"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainingsync",
		Subsystem: "changefeed",
		Name:      "handler_errors_total",
		Help:      "Handler errors grouped by topic and event type.",
	}, []string{"topic", "event_type"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainingsync",
		Subsystem: "changefeed",
		Name:      "decode_errors_total",
		Help:      "Decode failures per topic.",
	}, []string{"topic"})

	lastMessageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "trainingsync",
		Subsystem: "changefeed",
		Name:      "last_message_timestamp_seconds",
		Help:      "Unix timestamp of the most recent handled message per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(publishedCounter, publishErrorCounter, processedCounter, ignoredCounter,
		handlerErrorCounter, decodeErrorCounter, lastMessageGauge)
}

func recordPublished(eventType string) {
	publishedCounter.WithLabelValues(eventType).Inc()
}

func recordPublishError() {
	publishErrorCounter.Inc()
}

func recordProcessed(msg Message) {
	processedCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
	if !msg.Timestamp.IsZero() {
		lastMessageGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordIgnored(msg Message) {
	ignoredCounter.WithLabelValues(msg.Topic).Inc()
}

func recordHandlerError(msg Message) {
	handlerErrorCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}

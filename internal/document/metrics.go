package document

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentsIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streetlight_documents_ingested_total",
		Help: "Documents accepted by the ingestion pipeline, by category",
	}, []string{"category"})

	chunksIngestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streetlight_chunks_ingested_total",
		Help: "Knowledge chunks written by the ingestion pipeline",
	})
)

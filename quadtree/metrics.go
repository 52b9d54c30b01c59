package quadtree

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultLabel = "result"
	depthLabel  = "depth"
)

var (
	quadtreeInserts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quadtree_inserts_total",
		Help: "The number of positions inserted into quadtrees, by result.",
	}, []string{resultLabel})

	quadtreeSubdivisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quadtree_subdivisions_total",
		Help: "The number of quadtree node subdivisions, by depth of the subdivided node.",
	}, []string{depthLabel})

	quadtreeQueries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quadtree_nearby_queries_total",
		Help: "The number of nearby queries.",
	})

	quadtreeQueryResultSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quadtree_nearby_result_size",
		Help:    "The number of positions returned by nearby queries.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)

func instrumentInsert(res InsertResult, count int) {
	if count == 0 {
		return
	}
	quadtreeInserts.
		With(prometheus.Labels{resultLabel: res.String()}).
		Add(float64(count))
}

func instrumentSubdivision(depth int) {
	quadtreeSubdivisions.
		With(prometheus.Labels{depthLabel: strconv.Itoa(depth)}).
		Inc()
}

func instrumentQuery(resultSize int) {
	quadtreeQueries.Inc()
	quadtreeQueryResultSize.Observe(float64(resultSize))
}

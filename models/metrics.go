package models

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fieldCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "field_count",
		Help: "The number of fields.",
	})

	fieldCountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "field_count_total",
		Help: "The total number of fields.",
	})

	fieldEntitiesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "field_entities_total",
		Help: "The total number of entities spawned in fields.",
	})
)

func instrumentIncreaseFieldGauge() {
	fieldCount.Inc()
}

func instrumentDecreaseFieldGauge() {
	fieldCount.Dec()
}

func instrumentCountField() {
	fieldCountTotal.Inc()
}

func instrumentSpawnEntities(count int) {
	if count == 0 {
		return
	}
	fieldEntitiesTotal.Add(float64(count))
}

package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	productionRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchworks_production_runs_total",
			Help: "Total number of production runs by outcome",
		},
		[]string{"result"},
	)

	stockConflictRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batchworks_stock_conflict_retries_total",
			Help: "Total number of commit attempts retried after losing a stock race",
		},
	)

	lowStockWarnings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batchworks_low_stock_warnings_total",
			Help: "Total number of ingredients left at or below their minimum threshold by a run",
		},
	)
)

const (
	resultProduced     = "produced"
	resultInvalid      = "invalid"
	resultInsufficient = "insufficient_stock"
	resultConflict     = "stock_conflict"
	resultFailed       = "failed"
)

package main

import (
	"time"

	"github.com/animus-labs/basic-cleaning/internal/cleaning"
	"github.com/prometheus/client_golang/prometheus"
)

func recordRun(reg prometheus.Registerer, res cleaning.Result, runErr error, elapsed time.Duration) {
	rows := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "basic_cleaning_rows",
		Help: "Rows read, written and dropped by the last run.",
	}, []string{"stage"})
	imputed := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "basic_cleaning_imputed_cells",
		Help: "Missing cells replaced by the last run, per column.",
	}, []string{"column"})
	duration := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "basic_cleaning_duration_seconds",
		Help: "Wall time of the last run.",
	})
	success := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "basic_cleaning_last_success",
		Help: "1 if the last run published its output, 0 otherwise.",
	})
	completed := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "basic_cleaning_last_completion_timestamp_seconds",
		Help: "Unix time the last run finished.",
	})
	reg.MustRegister(rows, imputed, duration, success, completed)

	rows.WithLabelValues("in").Set(float64(res.RowsIn))
	rows.WithLabelValues("out").Set(float64(res.RowsOut))
	rows.WithLabelValues("dropped").Set(float64(res.RowsDropped))
	imputed.WithLabelValues(cleaning.ColumnLastReview).Set(float64(res.DatesDefaulted))
	imputed.WithLabelValues(cleaning.ColumnReviewsPerMonth).Set(float64(res.RatesFilled))
	imputed.WithLabelValues(cleaning.ColumnName).Set(float64(res.NamesFilled))
	imputed.WithLabelValues(cleaning.ColumnHostName).Set(float64(res.HostNamesFilled))
	duration.Set(elapsed.Seconds())
	if runErr == nil {
		success.Set(1)
	}
	completed.SetToCurrentTime()
}

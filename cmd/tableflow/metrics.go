package main

import (
	"fmt"
	"log"

	"tableflow/internal/metrics"
	"tableflow/internal/metrics/datadog"
	"tableflow/internal/metrics/prompush"
)

// setupMetrics installs the backend selected by s and returns the flush to
// defer. A backend that fails to initialize leaves metrics disabled.
func setupMetrics(s *Settings, job, runID string) (func(), error) {
	nop := func() {}
	var (
		b   metrics.Backend
		err error
	)
	switch s.MetricsBackend {
	case "", "none":
		return nop, nil
	case "pushgateway":
		b, err = prompush.NewBackend(job, s.PushgatewayURL, runID)
		if err == nil {
			log.Printf("metrics: backend=pushgateway url=%s job_name=%s run_id=%s", s.PushgatewayURL, job, runID)
		}
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       s.DogstatsdAddr,
			Namespace:  "tableflow.",
			GlobalTags: []string{"job:" + job, "run_id:" + runID},
		})
		if err == nil {
			log.Printf("metrics: backend=datadog addr=%s job_name=%s run_id=%s", s.DogstatsdAddr, job, runID)
		}
	default:
		return nop, fmt.Errorf("unknown metrics backend %q (want none, pushgateway or datadog)", s.MetricsBackend)
	}
	if err != nil {
		log.Printf("metrics: failed to init %s backend: %v; using nop", s.MetricsBackend, err)
		return nop, nil
	}
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}, nil
}

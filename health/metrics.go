// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"fmt"
	"io"
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// scrapeMetrics fetches the endpoint's Prometheus text exposition and
// parses it into metric families.
func (a *Aggregator) scrapeMetrics(ctx context.Context, endpoint Endpoint) (map[string]*dto.MetricFamily, error) {
	response, err := a.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetching metrics: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", response.StatusCode)
	}
	return parseExposition(response.Body)
}

// parseExposition decodes a Prometheus text exposition. A partial
// result with a trailing parse warning still counts as a successful
// parse.
func parseExposition(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(r)
	if err != nil && len(families) == 0 {
		return nil, fmt.Errorf("parsing exposition: %w", err)
	}
	return families, nil
}

// sumFamily adds every counter, gauge, or untyped value in a family.
// A nil family (metric absent from the scrape) sums to zero.
func sumFamily(family *dto.MetricFamily) float64 {
	if family == nil {
		return 0
	}
	var total float64
	for _, metric := range family.GetMetric() {
		switch {
		case metric.Counter != nil:
			total += metric.Counter.GetValue()
		case metric.Gauge != nil:
			total += metric.Gauge.GetValue()
		case metric.Untyped != nil:
			total += metric.Untyped.GetValue()
		}
	}
	return total
}

package telemetry

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

// Registration is checked through Describe() because Gather() omits *Vec
// metrics that have no observed label combination yet.
func TestMetrics_AllRegistered(t *testing.T) {
	type describer interface {
		Describe(chan<- *prometheus.Desc)
	}

	cases := []struct {
		name string
		c    describer
	}{
		{"http_requests_total", HTTPRequestsTotal},
		{"http_request_duration_seconds", HTTPRequestDuration},
		{"tsom_release_fetch_duration_seconds", ReleaseFetchDuration},
		{"tsom_release_fetch_errors_total", ReleaseFetchErrorsTotal},
		{"tsom_checksum_failures_total", ChecksumFailuresTotal},
		{"tsom_release_cache_requests_total", ReleaseCacheRequestsTotal},
		{"tsom_players_created_total", PlayersCreatedTotal},
		{"tsom_connection_tokens_issued_total", ConnectionTokensIssuedTotal},
		{"db_open_connections", DBOpenConnections},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch := make(chan *prometheus.Desc, 10)
			tc.c.Describe(ch)
			close(ch)
			for desc := range ch {
				if strings.Contains(desc.String(), `"`+tc.name+`"`) {
					return
				}
			}
			t.Errorf("metric %q: Describe() returned no descriptor with this fqName", tc.name)
		})
	}
}

func TestMetrics_HTTPRequestsTotal_CanBeIncremented(t *testing.T) {
	labels := prometheus.Labels{"method": "GET", "path": "/test", "status": "200"}
	before := counterValue(t, HTTPRequestsTotal, labels)
	HTTPRequestsTotal.WithLabelValues("GET", "/test", "200").Inc()
	after := counterValue(t, HTTPRequestsTotal, labels)
	if after-before < 1 {
		t.Errorf("HTTPRequestsTotal.Inc() did not increase counter (before=%.0f after=%.0f)", before, after)
	}
}

func TestMetrics_ReleaseCacheRequests_CanBeIncremented(t *testing.T) {
	c := ReleaseCacheRequestsTotal.WithLabelValues("latest_game_release", "hit")
	before := testutil.ToFloat64(c)
	c.Inc()
	if got := testutil.ToFloat64(c); got-before != 1 {
		t.Errorf("cache hit counter delta = %.0f, want 1", got-before)
	}
}

func TestMetrics_PlayersCreated_CanBeIncremented(t *testing.T) {
	before := testutil.ToFloat64(PlayersCreatedTotal)
	PlayersCreatedTotal.Inc()
	if got := testutil.ToFloat64(PlayersCreatedTotal); got-before != 1 {
		t.Errorf("PlayersCreatedTotal delta = %.0f, want 1", got-before)
	}
}

func TestMetrics_ReleaseFetchDuration_CanBeObserved(t *testing.T) {
	ReleaseFetchDuration.WithLabelValues("game").Observe(0.5)
	ReleaseFetchDuration.WithLabelValues("updater").Observe(1.5)
}

func TestMetrics_DBOpenConnections_CanBeSet(t *testing.T) {
	DBOpenConnections.Set(5)
	if got := testutil.ToFloat64(DBOpenConnections); got != 5 {
		t.Errorf("DBOpenConnections = %.0f, want 5", got)
	}
	DBOpenConnections.Set(0)
}

// counterValue reads the current value of a CounterVec for the given label set.
func counterValue(t *testing.T, cv *prometheus.CounterVec, labels prometheus.Labels) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 20)
	cv.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		if labelsMatch(dm.GetLabel(), labels) {
			return dm.GetCounter().GetValue()
		}
	}
	return 0
}

// labelsMatch returns true when all entries in want appear in got.
func labelsMatch(got []*dto.LabelPair, want prometheus.Labels) bool {
	for k, v := range want {
		found := false
		for _, lp := range got {
			if lp.GetName() == k && lp.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

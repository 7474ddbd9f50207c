package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/groundctl/passplan/core/logger"
	coremetrics "github.com/groundctl/passplan/core/metrics"
	infralogger "github.com/groundctl/passplan/infra/logger"
)

// InfluxSink writes session events to an InfluxDB bucket.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	client := influxdb2.NewClientWithOptions(url, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      infralogger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback health-checks the instance and returns a NopSink
// when it is unreachable, so a dead metrics backend never fails startup.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordMutation implements the metrics sink.
func (s *InfluxSink) RecordMutation(rec coremetrics.MutationRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("session_mutation").
		AddTag("mutation", rec.Mutation).
		AddTag("severity", rec.Severity).
		AddTag("rejected", strconv.FormatBool(rec.Rejected)).
		AddTag("opportunity_id", rec.OpportunityID).
		AddField("conflicts", rec.Conflicts).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSave implements the metrics sink.
func (s *InfluxSink) RecordSave(rec coremetrics.SaveRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("session_save").
		AddTag("outcome", rec.Outcome).
		AddTag("opportunity_id", rec.OpportunityID).
		AddField("duration_ms", rec.Duration.Milliseconds()).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

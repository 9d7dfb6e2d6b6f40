package logger

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type sourceStat struct {
	snapshots int64
	rows      int64
	failures  int64
	skipped   int64
}

var sources sync.Map // map[string]*sourceStat

func statFor(sourceID string) *sourceStat {
	v, _ := sources.LoadOrStore(sourceID, &sourceStat{})
	return v.(*sourceStat)
}

// RecordArchive counts one written snapshot and the history rows it produced.
func RecordArchive(sourceID string, rows int) {
	s := statFor(sourceID)
	atomic.AddInt64(&s.snapshots, 1)
	atomic.AddInt64(&s.rows, int64(rows))
}

// RecordFailure counts a failed fetch or archive for a source.
func RecordFailure(sourceID string) {
	atomic.AddInt64(&statFor(sourceID).failures, 1)
}

// RecordSkip counts a run where the source produced no observation.
func RecordSkip(sourceID string) {
	atomic.AddInt64(&statFor(sourceID).skipped, 1)
}

// SourceCounts returns the snapshot, row and failure counters of a source.
func SourceCounts(sourceID string) (snapshots, rows, failures int64) {
	v, ok := sources.Load(sourceID)
	if !ok {
		return 0, 0, 0
	}
	s := v.(*sourceStat)
	return atomic.LoadInt64(&s.snapshots), atomic.LoadInt64(&s.rows), atomic.LoadInt64(&s.failures)
}

// ResetReport clears all counters.
func ResetReport() {
	sources.Range(func(k, _ any) bool {
		sources.Delete(k)
		return true
	})
}

// LogRunReport logs the per-source counters collected during a run and
// publishes them to CloudWatch when it is configured.
func LogRunReport(ctx context.Context, log *Log, runID string) {
	var ids []string
	sources.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	sort.Strings(ids)

	var data []cwtypes.MetricDatum
	for _, id := range ids {
		s := statFor(id)
		fields := Fields{
			"run_id":    runID,
			"source":    id,
			"snapshots": atomic.LoadInt64(&s.snapshots),
			"rows":      atomic.LoadInt64(&s.rows),
			"failures":  atomic.LoadInt64(&s.failures),
			"skipped":   atomic.LoadInt64(&s.skipped),
		}
		log.WithComponent("report").WithFields(fields).Info("run report")

		dims := []cwtypes.Dimension{{Name: aws.String("Source"), Value: aws.String(id)}}
		data = append(data,
			cwtypes.MetricDatum{MetricName: aws.String("SnapshotsWritten"), Unit: cwtypes.StandardUnitCount, Dimensions: dims, Value: aws.Float64(float64(fields["snapshots"].(int64)))},
			cwtypes.MetricDatum{MetricName: aws.String("HistoryRowsAppended"), Unit: cwtypes.StandardUnitCount, Dimensions: dims, Value: aws.Float64(float64(fields["rows"].(int64)))},
			cwtypes.MetricDatum{MetricName: aws.String("ArchiveFailures"), Unit: cwtypes.StandardUnitCount, Dimensions: dims, Value: aws.Float64(float64(fields["failures"].(int64)))},
		)
	}

	publishMetrics(ctx, data)
}

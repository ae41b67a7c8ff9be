package adapter

import (
	"context"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/option"
)

// UsageSink receives one audit record per completed turn. Inserts are
// best-effort; the gateway never blocks a reply on the sink.
type UsageSink interface {
	Put(ctx context.Context, rec *model.TurnUsage) error
}

// bigquerySink implements UsageSink with a BigQuery streaming inserter.
type bigquerySink struct {
	client   *bigquery.Client
	inserter *bigquery.Inserter
}

// NewBigQuerySink creates a usage sink writing to dataset.table.
func NewBigQuerySink(ctx context.Context, projectID, dataset, table string, opts ...option.ClientOption) (UsageSink, error) {
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create BigQuery client")
	}

	return &bigquerySink{
		client:   client,
		inserter: client.Dataset(dataset).Table(table).Inserter(),
	}, nil
}

func (s *bigquerySink) Put(ctx context.Context, rec *model.TurnUsage) error {
	if err := s.inserter.Put(ctx, rec); err != nil {
		return goerr.Wrap(err, "failed to insert usage record",
			goerr.V("turn_id", rec.TurnID))
	}
	return nil
}

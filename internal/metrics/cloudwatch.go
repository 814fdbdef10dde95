package metrics

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	appconfig "fieldtrack/config"
	"fieldtrack/logger"
)

// Publisher periodically pushes counter snapshots to CloudWatch. When the
// AWS configuration cannot be loaded publishing stays disabled and the
// counters are only logged.
type Publisher struct {
	client    *cloudwatch.Client
	namespace string
	interval  time.Duration
	log       *logger.Log
}

func NewPublisher(cfg appconfig.MetricsConfig) (*Publisher, error) {
	log := logger.GetLogger()

	p := &Publisher{
		namespace: cfg.Namespace,
		interval:  cfg.Interval,
		log:       log,
	}
	if p.namespace == "" {
		p.namespace = "Fieldtrack"
	}
	if p.interval <= 0 {
		p.interval = 30 * time.Second
	}

	if !cfg.Cloudwatch {
		return p, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		log.WithComponent("metrics").WithError(err).Warn("failed to load AWS configuration; CloudWatch publishing disabled")
		return p, nil
	}
	p.client = cloudwatch.NewFromConfig(awsCfg)

	log.WithComponent("metrics").WithFields(logger.Fields{
		"namespace": p.namespace,
		"region":    awsCfg.Region,
	}).Info("initialized CloudWatch client")

	return p, nil
}

// Start reports counters on the configured interval until the context is
// cancelled.
func (p *Publisher) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.report(ctx)
			}
		}
	}()
}

func (p *Publisher) report(ctx context.Context) {
	snap := Snapshot()

	p.log.WithComponent("metrics").WithFields(logger.Fields{
		"sentences_parsed":  snap.SentencesParsed,
		"sentences_skipped": snap.SentencesSkipped,
		"fixes_accepted":    snap.FixesAccepted,
		"fixes_rejected":    snap.FixesRejected,
		"fixes_stored":      snap.FixesStored,
		"store_errors":      snap.StoreErrors,
		"history_queries":   snap.HistoryQueries,
	}).Info("pipeline counters")

	if p.client == nil {
		return
	}

	data := []cwtypes.MetricDatum{
		datum("SentencesParsed", snap.SentencesParsed),
		datum("SentencesSkipped", snap.SentencesSkipped),
		datum("FixesAccepted", snap.FixesAccepted),
		datum("FixesRejected", snap.FixesRejected),
		datum("FixesStored", snap.FixesStored),
		datum("StoreErrors", snap.StoreErrors),
		datum("HistoryQueries", snap.HistoryQueries),
	}

	pubCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := p.client.PutMetricData(pubCtx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: data,
	})
	if err != nil {
		p.log.WithComponent("metrics").WithError(err).Warn("failed to publish metrics to CloudWatch")
	}
}

func datum(name string, value int64) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Unit:       cwtypes.StandardUnitCount,
		Value:      aws.Float64(float64(value)),
	}
}

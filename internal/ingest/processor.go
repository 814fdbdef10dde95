// Package ingest runs one device's sentence batch through the parse,
// reconcile and filter stages. A batch never aborts on a bad line; a batch
// yielding zero accepted fixes is a valid, if unhelpful, outcome.
package ingest

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	appconfig "fieldtrack/config"
	"fieldtrack/internal/fix"
	"fieldtrack/internal/metrics"
	"fieldtrack/internal/nmea"
	"fieldtrack/logger"
)

// Result summarizes one processed batch.
type Result struct {
	BatchID  string
	Lines    int
	Parsed   int
	Skipped  int
	Rejected int
	Accepted []fix.Fix
}

// Processor is safe for concurrent use: each batch gets its own
// reconciler, so concurrent device uploads never interleave.
type Processor struct {
	filter   *fix.QualityFilter
	maxLines int
	log      *logger.Log
}

func NewProcessor(cfg appconfig.IngestConfig) (*Processor, error) {
	loc, err := appconfig.ParseUTCOffset(cfg.UTCOffset)
	if err != nil {
		return nil, err
	}

	return &Processor{
		filter: fix.NewQualityFilter(fix.FilterConfig{
			MinSatellites: cfg.MinSatellites,
			CenturyBase:   cfg.CenturyBase,
			Location:      loc,
		}),
		maxLines: cfg.MaxBatchLines,
		log:      logger.GetLogger(),
	}, nil
}

// ProcessBatch parses a newline-separated sentence batch for one device
// and returns the quality-passing fixes in arrival order.
func (p *Processor) ProcessBatch(deviceID int, raw string) Result {
	result := Result{BatchID: uuid.NewString()}
	log := p.log.WithComponent("ingest").WithFields(logger.Fields{
		"batch_id":  result.BatchID,
		"player_id": deviceID,
	})

	reconciler := fix.NewReconciler(deviceID)

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		result.Lines++
		if p.maxLines > 0 && result.Lines > p.maxLines {
			log.WithFields(logger.Fields{"max_lines": p.maxLines}).Warn("batch truncated")
			break
		}

		sentence, err := nmea.ParseSentence(line)
		if err != nil {
			result.Skipped++
			if errors.Is(err, nmea.ErrMalformedSentence) {
				log.WithError(err).Debug("skipping line")
			} else {
				log.WithError(err).Warn("skipping line")
			}
			continue
		}
		result.Parsed++
		reconciler.Apply(sentence)
	}

	for _, builder := range reconciler.Finalize() {
		fx, ok, reason := p.filter.Accept(builder)
		if !ok {
			result.Rejected++
			log.WithFields(logger.Fields{
				"time_key": builder.TimeKey,
				"reason":   reason,
			}).Debug("fix rejected")
			continue
		}
		result.Accepted = append(result.Accepted, fx)
	}

	metrics.AddSentencesParsed(result.Parsed)
	metrics.AddSentencesSkipped(result.Skipped)
	metrics.AddFixesAccepted(len(result.Accepted))
	metrics.AddFixesRejected(result.Rejected)

	log.WithFields(logger.Fields{
		"lines":    result.Lines,
		"parsed":   result.Parsed,
		"skipped":  result.Skipped,
		"rejected": result.Rejected,
		"accepted": len(result.Accepted),
	}).Info("batch processed")

	return result
}

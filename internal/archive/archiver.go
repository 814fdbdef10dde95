// Package archive writes accepted fixes to S3 as parquet files for
// offline analysis. Files are partitioned by day and device so a season
// of sessions stays cheap to scan.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "fieldtrack/config"
	"fieldtrack/internal/fix"
	"fieldtrack/logger"
)

// ParquetRecord is the on-disk layout of one archived fix.
type ParquetRecord struct {
	Timestamp  int64   `parquet:"name=timestamp, type=INT64"`
	PlayerID   int32   `parquet:"name=player_id, type=INT32"`
	Latitude   float64 `parquet:"name=latitude, type=DOUBLE"`
	Longitude  float64 `parquet:"name=longitude, type=DOUBLE"`
	Altitude   float64 `parquet:"name=altitude, type=DOUBLE"`
	Satellites int32   `parquet:"name=num_satellites, type=INT32"`
	HDOP       float64 `parquet:"name=hdop, type=DOUBLE"`
	SpeedKmh   float64 `parquet:"name=speed_kmh, type=DOUBLE"`
	Course     float64 `parquet:"name=course, type=DOUBLE"`
	Quality    int32   `parquet:"name=quality, type=INT32"`
}

type Archiver struct {
	config   appconfig.ArchiveConfig
	s3Client *s3.Client
	log      *logger.Log

	mu          sync.Mutex
	buffer      map[int][]fix.Fix
	running     bool
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	flushTicker *time.Ticker
}

func NewArchiver(cfg appconfig.ArchiveConfig) (*Archiver, error) {
	log := logger.GetLogger()

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	log.WithComponent("archive").WithFields(logger.Fields{
		"bucket":     cfg.Bucket,
		"region":     cfg.Region,
		"endpoint":   cfg.Endpoint,
		"path_style": cfg.PathStyle,
	}).Info("archiver initialized")

	return &Archiver{
		config:   cfg,
		s3Client: s3Client,
		log:      log,
		buffer:   make(map[int][]fix.Fix),
	}, nil
}

func (a *Archiver) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("archiver already running")
	}
	a.running = true
	a.ctx, a.cancel = context.WithCancel(ctx)
	interval := a.config.FlushInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	a.flushTicker = time.NewTicker(interval)
	a.mu.Unlock()

	a.wg.Add(1)
	go a.flushWorker()

	a.log.WithComponent("archive").Info("archiver started")
	return nil
}

func (a *Archiver) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.mu.Unlock()

	a.flushTicker.Stop()
	a.cancel()
	a.wg.Wait()
	a.log.WithComponent("archive").Info("archiver stopped")
}

// Add buffers accepted fixes until the next flush, grouped by device.
func (a *Archiver) Add(fixes []fix.Fix) {
	a.mu.Lock()
	for _, fx := range fixes {
		a.buffer[fx.DeviceID] = append(a.buffer[fx.DeviceID], fx)
	}
	a.mu.Unlock()
}

func (a *Archiver) flushWorker() {
	defer a.wg.Done()

	log := a.log.WithComponent("archive").WithFields(logger.Fields{"worker": "flush"})
	log.Info("starting flush worker")

	for {
		select {
		case <-a.ctx.Done():
			a.flushBuffers("shutdown")
			log.Info("flush worker stopped due to context cancellation")
			return
		case <-a.flushTicker.C:
			a.flushBuffers("interval")
		}
	}
}

func (a *Archiver) flushBuffers(reason string) {
	a.mu.Lock()
	buffers := a.buffer
	a.buffer = make(map[int][]fix.Fix)
	a.mu.Unlock()

	if len(buffers) == 0 {
		return
	}

	a.log.WithComponent("archive").WithFields(logger.Fields{
		"flushed_buffers": len(buffers),
		"reason":          reason,
	}).Info("flushing buffers")

	for deviceID, fixes := range buffers {
		if len(fixes) == 0 {
			continue
		}
		a.uploadDevice(deviceID, fixes)
	}
}

func (a *Archiver) uploadDevice(deviceID int, fixes []fix.Fix) {
	key := a.objectKey(deviceID, fixes[0].Timestamp)
	log := a.log.WithComponent("archive").WithFields(logger.Fields{
		"player_id":    deviceID,
		"record_count": len(fixes),
		"s3_key":       key,
	})

	data, err := a.buildParquet(fixes)
	if err != nil {
		log.WithError(err).Error("failed to create parquet file")
		return
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type": "parquet",
			"compression":  a.config.Compression,
		},
	}

	ctx := context.WithoutCancel(a.ctx)
	if _, err := a.s3Client.PutObject(ctx, input); err != nil {
		log.WithError(err).WithFields(logger.Fields{"bucket": a.config.Bucket}).
			Error("failed to upload to S3")
		return
	}

	log.WithFields(logger.Fields{"file_size": len(data)}).Info("archive uploaded")
}

// objectKey partitions objects as prefix/date=.../player=.../fixes_<ts>_<id>.parquet.
func (a *Archiver) objectKey(deviceID int, ts time.Time) string {
	ts = ts.UTC()
	return path.Join(
		a.config.Prefix,
		fmt.Sprintf("date=%s", ts.Format("2006-01-02")),
		fmt.Sprintf("player=%d", deviceID),
		fmt.Sprintf("fixes_%s_%s.parquet", ts.Format("20060102150405"), uuid.New().String()[:8]),
	)
}

func (a *Archiver) buildParquet(fixes []fix.Fix) ([]byte, error) {
	fw := newMemoryFileWriter()

	pw, err := writer.NewParquetWriter(fw, new(ParquetRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch a.config.Compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, fx := range fixes {
		if err := pw.Write(toRecord(fx)); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.Bytes(), nil
}

func toRecord(fx fix.Fix) ParquetRecord {
	return ParquetRecord{
		Timestamp:  fx.Timestamp.UnixMilli(),
		PlayerID:   int32(fx.DeviceID),
		Latitude:   fx.Latitude,
		Longitude:  fx.Longitude,
		Altitude:   fx.Altitude,
		Satellites: int32(fx.Satellites),
		HDOP:       fx.HDOP,
		SpeedKmh:   fx.SpeedKmh,
		Course:     fx.Course,
		Quality:    int32(fx.Quality),
	}
}

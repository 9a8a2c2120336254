package writer

import (
	"FlowForge/internal/config"
	"FlowForge/internal/model"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS sampled_flows (
    Timestamp DateTime64(3),
    SrcAddr   String,
    DstAddr   String,
    SrcPort   UInt16,
    DstPort   UInt16,
    Protocol  UInt8,
    SrcAS     UInt16,
    DstAS     UInt16,
    ByteCount   UInt64,
    PacketCount UInt64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (Timestamp, SrcAS, DstAS);
`

// Flows accumulate locally and ship in batches of this size.
const chBatchSize = 10000

// ClickHouseWriter streams sampled flows into a ClickHouse table in batches.
type ClickHouseWriter struct {
	conn  driver.Conn
	epoch time.Time
	buf   []*model.FlowRecord
}

// NewClickHouseWriter connects, pings and ensures the table exists.
func NewClickHouseWriter(cfg config.ClickHouseConfig, epoch time.Time) (*ClickHouseWriter, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Println("Successfully connected to ClickHouse and ensured table exists.")

	return &ClickHouseWriter{
		conn:  conn,
		epoch: epoch,
		buf:   make([]*model.FlowRecord, 0, chBatchSize),
	}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

// WriteRaw is a no-op; only exported flows reach ClickHouse.
func (w *ClickHouseWriter) WriteRaw(rec *model.FlowRecord) error { return nil }

// WriteSampled buffers a record, shipping a batch when full.
func (w *ClickHouseWriter) WriteSampled(rec *model.FlowRecord) error {
	w.buf = append(w.buf, rec)
	if len(w.buf) >= chBatchSize {
		return w.flush()
	}
	return nil
}

func (w *ClickHouseWriter) flush() error {
	if len(w.buf) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(context.Background(), "INSERT INTO sampled_flows")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, rec := range w.buf {
		err = batch.Append(
			w.epoch.Add(time.Duration(rec.Timestamp)*time.Millisecond),
			model.IPString(rec.SrcAddr),
			model.IPString(rec.DstAddr),
			rec.SrcPort,
			rec.DstPort,
			rec.Protocol,
			rec.SrcAS,
			rec.DstAS,
			uint64(rec.Octets),
			uint64(rec.Packets),
		)
		if err != nil {
			return fmt.Errorf("failed to append flow to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	w.buf = w.buf[:0]
	return nil
}

// Close ships the final partial batch and closes the connection.
func (w *ClickHouseWriter) Close() error {
	flushErr := w.flush()
	if err := w.conn.Close(); err != nil && flushErr == nil {
		return fmt.Errorf("failed to close clickhouse connection: %w", err)
	}
	return flushErr
}

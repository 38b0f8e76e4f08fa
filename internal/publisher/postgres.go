package publisher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ruda0008/rideau-canal-sensor-simulation/common/database"
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/config"
	"go.uber.org/zap"
)

const insertReadingSQL = `
	INSERT INTO skateway_readings (message_id, device_id, content_type, payload)
	VALUES ($1, $2, $3, $4::jsonb)
	RETURNING id
`

// Postgres stores every event as a row in skateway_readings
type Postgres struct {
	device config.DeviceConfig
	logger *zap.Logger
	open   func(ctx context.Context) (*sql.DB, error)

	db *sql.DB
}

// NewPostgres creates the publisher. The device credential is not used
// for the database login; it only has to be present.
func NewPostgres(cfg *config.Config, device config.DeviceConfig, logger *zap.Logger) *Postgres {
	dbCfg := cfg.Database
	return &Postgres{
		device: device,
		logger: logger,
		open: func(ctx context.Context) (*sql.DB, error) {
			return database.NewPostgresDB(ctx, &dbCfg)
		},
	}
}

// newPostgresWithOpener is used by tests to supply a mocked pool
func newPostgresWithOpener(device config.DeviceConfig, logger *zap.Logger, open func(ctx context.Context) (*sql.DB, error)) *Postgres {
	return &Postgres{device: device, logger: logger, open: open}
}

// Connect opens and pings the pool
func (p *Postgres) Connect(ctx context.Context) error {
	if p.device.Credential == "" {
		return errors.New("device credential is empty")
	}
	db, err := p.open(ctx)
	if err != nil {
		return err
	}
	p.db = db
	return nil
}

// Send inserts one row
func (p *Postgres) Send(ctx context.Context, msg Message) error {
	if p.db == nil {
		return ErrNotConnected
	}

	var id int64
	err := p.db.QueryRowContext(ctx, insertReadingSQL,
		msg.MessageID, msg.DeviceID, msg.ContentType, string(msg.Payload),
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}

	p.logger.Debug("Reading stored",
		zap.Int64("id", id),
		zap.String("device_id", msg.DeviceID),
	)
	return nil
}

// Disconnect closes the pool
func (p *Postgres) Disconnect(ctx context.Context) error {
	if p.db == nil {
		return ErrNotConnected
	}
	err := database.Close(p.db)
	p.db = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

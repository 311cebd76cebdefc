package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"jobdef/internal/api/models"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// JobChangedSubject is the subject a job change is published on
func JobChangedSubject(tenantID string, jobID uuid.UUID) string {
	return fmt.Sprintf("tenant.%s.job.%s.changed", tenantID, jobID)
}

// JobChangePublisher sends committed job changes to NATS.
// Best-effort: without a connection it only logs.
type JobChangePublisher struct {
	conn     *nats.Conn
	tenantID string
	noop     bool
	logger   zerolog.Logger
}

// NewJobChangePublisher connects to natsURL. An empty URL or a failed
// connection returns a no-op publisher.
func NewJobChangePublisher(natsURL, tenantID string, logger zerolog.Logger) *JobChangePublisher {
	if natsURL == "" {
		return &JobChangePublisher{noop: true, tenantID: tenantID, logger: logger}
	}
	nc, err := nats.Connect(natsURL, nats.Name("jobdef"))
	if err != nil {
		logger.Warn().Err(err).Str("url", natsURL).Msg("NATS connection failed, job change notifications disabled")
		return &JobChangePublisher{noop: true, tenantID: tenantID, logger: logger}
	}
	logger.Info().Str("url", natsURL).Msg("NATS connected")
	return &JobChangePublisher{conn: nc, tenantID: tenantID, logger: logger}
}

// JobChanged publishes change on the subject of its job
func (p *JobChangePublisher) JobChanged(_ context.Context, change models.JobChange) error {
	subject := JobChangedSubject(p.tenantID, change.JobID)
	if p.noop {
		p.logger.Debug().Str("subject", subject).Msg("Job change (no-op)")
		return nil
	}
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal job change: %w", err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains and closes the NATS connection
func (p *JobChangePublisher) Close() {
	if p.noop || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn().Err(err).Msg("NATS drain error")
	}
}

// JobChangeWatcher receives the job changes of a tenant
type JobChangeWatcher struct {
	conn     *nats.Conn
	tenantID string
}

func NewJobChangeWatcher(natsURL, tenantID string) (*JobChangeWatcher, error) {
	nc, err := nats.Connect(natsURL, nats.Name("jobdef-watch"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &JobChangeWatcher{conn: nc, tenantID: tenantID}, nil
}

// Watch calls handle for every change published under the tenant until the
// watcher is closed
func (w *JobChangeWatcher) Watch(handle func(models.JobChange)) error {
	subject := fmt.Sprintf("tenant.%s.job.*.changed", w.tenantID)
	_, err := w.conn.Subscribe(subject, func(msg *nats.Msg) {
		change, err := decodeJobChange(msg.Subject, msg.Data)
		if err != nil {
			return
		}
		handle(change)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %q: %w", subject, err)
	}
	return nil
}

func (w *JobChangeWatcher) Close() {
	_ = w.conn.Drain()
}

// decodeJobChange reads a change and checks it against the job id of its
// subject "tenant.<tid>.job.<jobId>.changed"
func decodeJobChange(subject string, data []byte) (models.JobChange, error) {
	var change models.JobChange
	parts := strings.Split(subject, ".")
	if len(parts) != 5 {
		return change, fmt.Errorf("expected 5 parts, got %d", len(parts))
	}
	jobID, err := uuid.Parse(parts[3])
	if err != nil {
		return change, fmt.Errorf("invalid job id %q: %w", parts[3], err)
	}
	if err := json.Unmarshal(data, &change); err != nil {
		return change, err
	}
	if change.JobID != jobID {
		return change, fmt.Errorf("payload job %s does not match subject job %s", change.JobID, jobID)
	}
	return change, nil
}

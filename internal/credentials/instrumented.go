package credentials

import (
	"context"
	"log/slog"

	"github.com/teemow/calbridge/internal/instrumentation"
	"github.com/teemow/calbridge/internal/logging"
)

// InstrumentedStore records metrics and debug logs for every backend call.
type InstrumentedStore struct {
	next    Store
	backend string
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// NewInstrumentedStore wraps next. A nil metrics recorder or logger is allowed.
func NewInstrumentedStore(next Store, backend string, metrics *instrumentation.Metrics, logger *slog.Logger) *InstrumentedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &InstrumentedStore{
		next:    next,
		backend: backend,
		metrics: metrics,
		logger:  logging.WithComponent(logger, "credentials"),
	}
}

// Backend returns the name of the wrapped backend.
func (s *InstrumentedStore) Backend() string {
	return s.backend
}

func (s *InstrumentedStore) Load(ctx context.Context) (*Credentials, error) {
	creds, err := s.next.Load(ctx)
	s.record(ctx, instrumentation.StoreOperationLoad, err)
	return creds, err
}

func (s *InstrumentedStore) Save(ctx context.Context, creds *Credentials) error {
	err := s.next.Save(ctx, creds)
	s.record(ctx, instrumentation.StoreOperationSave, err)
	return err
}

func (s *InstrumentedStore) record(ctx context.Context, op string, err error) {
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		s.logger.Error("credential store operation failed",
			logging.Operation(op), logging.Backend(s.backend), logging.Err(err))
	} else {
		s.logger.Debug("credential store operation",
			logging.Operation(op), logging.Backend(s.backend))
	}
	s.metrics.RecordCredentialStoreOperation(ctx, s.backend, op, status)
}

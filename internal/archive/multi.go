package archive

import (
	"context"
	"errors"
	"log/slog"

	"careerlens/internal/domain"
	"careerlens/internal/ports"
)

// Multi saves to every archive and joins their failures.
type Multi struct {
	archives []ports.SessionArchive
	logger   *slog.Logger
}

func NewMulti(logger *slog.Logger, archives ...ports.SessionArchive) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	kept := make([]ports.SessionArchive, 0, len(archives))
	for _, a := range archives {
		if a != nil {
			kept = append(kept, a)
		}
	}
	return &Multi{archives: kept, logger: logger}
}

func (m *Multi) Len() int { return len(m.archives) }

func (m *Multi) Save(ctx context.Context, record domain.SessionRecord) error {
	var errs []error
	for _, a := range m.archives {
		if err := a.Save(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		m.logger.Warn("session archive incomplete", "session", record.ID, "failed", len(errs), "archives", len(m.archives))
	}
	return errors.Join(errs...)
}

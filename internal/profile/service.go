// Package profile loads and merges user career profiles.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"careerlens/internal/domain"
	"careerlens/internal/ports"
)

// ErrInvalidRequest marks a profile call missing its uid or data.
var ErrInvalidRequest = errors.New("invalid profile request")

// Keys the client may not write directly.
var reservedKeys = map[string]bool{"_id": true, "createdAt": true, "updatedAt": true}

var dobLayouts = []string{time.RFC3339, "2006-01-02"}

type Service struct {
	store  ports.ProfileStore
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(store ports.ProfileStore, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the stored profile, or the default shape when none exists.
func (s *Service) Get(ctx context.Context, uid string) (domain.UserProfile, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return domain.UserProfile{}, fmt.Errorf("%w: uid is required", ErrInvalidRequest)
	}
	p, found, err := s.store.Get(ctx, uid)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("load profile: %w", err)
	}
	if !found {
		return domain.DefaultProfile(s.now().UTC()), nil
	}
	return p, nil
}

// Save merges data into the stored profile. Unmentioned fields are kept.
func (s *Service) Save(ctx context.Context, uid string, data map[string]any) error {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return fmt.Errorf("%w: uid is required", ErrInvalidRequest)
	}
	if data == nil {
		return fmt.Errorf("%w: profileData is required", ErrInvalidRequest)
	}

	fields, err := sanitize(data)
	if err != nil {
		return err
	}
	if err := s.store.Upsert(ctx, uid, fields, s.now().UTC()); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	s.logger.Debug("profile saved", "uid", uid, "fields", len(fields))
	return nil
}

func sanitize(data map[string]any) (map[string]any, error) {
	fields := make(map[string]any, len(data))
	for key, value := range data {
		if reservedKeys[key] || key == "" || strings.ContainsAny(key, "$.") {
			continue
		}
		if key == "dob" {
			dob, err := parseDOB(value)
			if err != nil {
				return nil, err
			}
			if dob == nil {
				fields[key] = nil
				continue
			}
			fields[key] = *dob
			continue
		}
		fields[key] = value
	}
	return fields, nil
}

func parseDOB(value any) (*time.Time, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &v, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, nil
		}
		for _, layout := range dobLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				t = t.UTC()
				return &t, nil
			}
		}
		return nil, fmt.Errorf("%w: dob %q is not a date", ErrInvalidRequest, v)
	default:
		return nil, fmt.Errorf("%w: dob must be a date string", ErrInvalidRequest)
	}
}

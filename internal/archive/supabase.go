package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/supabase-community/supabase-go"

	"careerlens/internal/domain"
)

type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
	// Prefix is prepended to every object key.
	Prefix string
}

type objectUploader interface {
	Upload(bucket, key string, data []byte) error
}

type supabaseUploader struct {
	client *supabase.Client
}

func (u supabaseUploader) Upload(bucket, key string, data []byte) error {
	_, err := u.client.Storage.UploadFile(bucket, key, bytes.NewReader(data))
	return err
}

// SupabaseExport writes each finished session as a JSON object in a
// Supabase Storage bucket.
type SupabaseExport struct {
	uploader objectUploader
	bucket   string
	prefix   string
}

func NewSupabaseExport(cfg SupabaseConfig) (*SupabaseExport, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" || cfg.Bucket == "" {
		return nil, errors.New("supabase export needs a url, service role key and bucket")
	}
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseExport{uploader: supabaseUploader{client: client}, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *SupabaseExport) Save(_ context.Context, record domain.SessionRecord) error {
	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.uploader.Upload(s.bucket, s.key(record), payload); err != nil {
		return fmt.Errorf("upload session %s: %w", record.ID, err)
	}
	return nil
}

// key groups exports by mode and day: <prefix>/<mode>/<yyyy-mm-dd>/<id>.json
func (s *SupabaseExport) key(record domain.SessionRecord) string {
	day := record.EndedAt.UTC().Format("2006-01-02")
	return path.Join(s.prefix, string(record.Config.Mode), day, record.ID+".json")
}

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/earthmate/earthmate/internal/domain"
)

// TranscriptStore persists one chat transcript under a fixed key.
type TranscriptStore struct {
	repo Repository
	key  string
}

// NewTranscriptStore binds a transcript to key in repo.
func NewTranscriptStore(repo Repository, key string) *TranscriptStore {
	return &TranscriptStore{repo: repo, key: key}
}

// Key returns the storage key.
func (s *TranscriptStore) Key() string {
	return s.key
}

// Load returns the stored transcript. A missing key yields ErrNotFound and an
// undecodable value yields ErrCorrupt.
func (s *TranscriptStore) Load(ctx context.Context) (domain.Transcript, error) {
	entry, err := s.repo.Get(ctx, s.key)
	if err != nil {
		return nil, err
	}
	t, err := domain.DecodeTranscript([]byte(entry.Value))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.key, err)
	}
	return t, nil
}

// Save overwrites the stored transcript.
func (s *TranscriptStore) Save(ctx context.Context, t domain.Transcript) error {
	data, err := t.Encode()
	if err != nil {
		return err
	}
	return s.repo.Put(ctx, s.key, string(data))
}

// Clear removes the stored transcript.
func (s *TranscriptStore) Clear(ctx context.Context) error {
	if err := s.repo.Delete(ctx, s.key); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

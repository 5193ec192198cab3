// Package filestore persists scanned custody-form images. Callers keep the
// returned reference opaquely; only the store knows how to resolve it.
package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"custodian/pkg/platform/sentinel"
)

// Store is the file-store contract.
type Store interface {
	Put(ctx context.Context, contentType string, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

const refPrefix = "sha256:"

// refFor derives the content-addressed reference for data.
func refFor(data []byte) (ref string, rawHash string) {
	sum := sha256.Sum256(data)
	rawHash = hex.EncodeToString(sum[:])
	return refPrefix + rawHash, rawHash
}

func parseRef(ref string) (string, error) {
	if !strings.HasPrefix(ref, refPrefix) || len(ref) == len(refPrefix) {
		return "", fmt.Errorf("invalid file reference: %q", ref)
	}
	return strings.TrimPrefix(ref, refPrefix), nil
}

// Memory keeps blobs in process memory for tests and single-node development.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, _ string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty file")
	}
	ref, raw := refFor(data)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[raw] = append([]byte(nil), data...)
	return ref, nil
}

func (m *Memory) Get(_ context.Context, ref string) ([]byte, error) {
	raw, err := parseRef(ref)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[raw]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

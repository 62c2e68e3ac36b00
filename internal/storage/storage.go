// Package storage persists the artifacts passed between pipeline stages:
// the terminal-URL list and the product-record list, one JSON file per brand.
// Keeping the artifacts on disk lets any stage be re-run without re-crawling.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/maltedev/catalog-sync/internal/models"
)

type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) SaveTerminalURLs(brand string, urls []string) error {
	return s.save(s.terminalPath(brand), urls)
}

func (s *Store) LoadTerminalURLs(brand string) ([]string, error) {
	var urls []string
	if err := s.load(s.terminalPath(brand), &urls); err != nil {
		return nil, err
	}
	return urls, nil
}

func (s *Store) SaveProducts(brand string, records []*models.ProductRecord) error {
	return s.save(s.productsPath(brand), records)
}

func (s *Store) LoadProducts(brand string) ([]*models.ProductRecord, error) {
	var records []*models.ProductRecord
	if err := s.load(s.productsPath(brand), &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) terminalPath(brand string) string {
	return filepath.Join(s.dir, slug(brand)+"-pages.json")
}

func (s *Store) productsPath(brand string) string {
	return filepath.Join(s.dir, slug(brand)+"-products.json")
}

func (s *Store) save(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	// Write to temp file first for atomicity
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace artifact: %w", err)
	}
	return nil
}

func (s *Store) load(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read artifact %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode artifact %s: %w", path, err)
	}
	return nil
}

func slug(brand string) string {
	brand = strings.ToLower(strings.TrimSpace(brand))
	return strings.ReplaceAll(brand, " ", "-")
}

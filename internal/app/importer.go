package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"remindbot/internal/storage"

	yaml "go.yaml.in/yaml/v3"
)

// ImportResult reports what an import did.
type ImportResult struct {
	Read     int
	Upserted int
	Skipped  []string // reasons, one per skipped row
}

// ReadItemsFile parses a YAML or JSON item list. The document is either a
// sequence of items or a mapping with an "items" sequence.
func ReadItemsFile(path string) ([]storage.Item, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var items []storage.Item
		if err := root.Decode(&items); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return items, nil
	case yaml.MappingNode:
		var wrapped struct {
			Items []storage.Item `yaml:"items"`
		}
		if err := root.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return wrapped.Items, nil
	default:
		return nil, fmt.Errorf("%s: expected a list of items", path)
	}
}

// ImportFile upserts the items of path into store. Stored reminder states
// are kept; rows without an id are skipped and later duplicates win.
func ImportFile(ctx context.Context, store storage.Store, path string) (ImportResult, error) {
	if store == nil {
		return ImportResult{}, storage.ErrDisabled
	}
	items, err := ReadItemsFile(path)
	if err != nil {
		return ImportResult{}, err
	}
	res := ImportResult{Read: len(items)}

	keep := make([]storage.Item, 0, len(items))
	pos := make(map[string]int, len(items))
	for i, it := range items {
		it.ID = strings.TrimSpace(it.ID)
		if it.ID == "" {
			res.Skipped = append(res.Skipped, fmt.Sprintf("row %d: missing id", i+1))
			continue
		}
		if j, ok := pos[it.ID]; ok {
			res.Skipped = append(res.Skipped, fmt.Sprintf("row %d: duplicate id %s replaces an earlier row", i+1, it.ID))
			keep[j] = it
			continue
		}
		pos[it.ID] = len(keep)
		keep = append(keep, it)
	}
	if len(keep) == 0 {
		return res, errors.New("no importable items")
	}
	n, err := store.UpsertItems(ctx, keep)
	if err != nil {
		return res, fmt.Errorf("upsert items: %w", err)
	}
	res.Upserted = n
	return res, nil
}

package graphql

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
)

// FetchPolicy decides whether a query may be answered from the cache.
type FetchPolicy int

const (
	// CacheFirst answers from the cache when every referenced entity is present.
	CacheFirst FetchPolicy = iota
	// NetworkOnly always goes to the server and refreshes the cache.
	NetworkOnly
)

const (
	refKey      = "__ref"
	typenameKey = "__typename"
	idKey       = "id"

	resultPrefix = "result:"
	entityPrefix = "entity:"
)

// Cache is the normalized response cache shared by the HTTP and websocket channels.
// Objects carrying __typename and id are stored once under "Type:id" and results
// hold references to them, so an entity written by a subscription is seen by
// later cached query reads.
type Cache struct {
	// mu serializes entity merges; ristretto itself is safe for concurrent use.
	mu    sync.Mutex
	store *ristretto.Cache[string, any]
}

// NewCache creates a cache holding up to maxEntries results and entities.
func NewCache(maxEntries int64) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	store, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}
	return &Cache{store: store}, nil
}

// Close releases the cache.
func (c *Cache) Close() {
	c.store.Close()
}

// Clear drops every cached result and entity.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Clear()
}

// ResultKey hashes the request shape and arguments.
func ResultKey(req Request) string {
	h := sha256.New()
	h.Write([]byte(req.Query))
	h.Write([]byte{0})
	// json.Marshal sorts map keys, so equal variables hash equally.
	vars, _ := json.Marshal(req.Variables)
	h.Write(vars)
	h.Write([]byte{0})
	h.Write([]byte(req.OperationName))
	return hex.EncodeToString(h.Sum(nil))
}

// Read returns the cached data for req, or false when the result or one of its
// entities is missing.
func (c *Cache) Read(req Request) (json.RawMessage, bool) {
	tree, ok := c.store.Get(resultPrefix + ResultKey(req))
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	resolved, ok := c.denormalize(tree)
	c.mu.Unlock()
	if !ok {
		return nil, false
	}

	data, err := json.Marshal(resolved)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Write stores data as the result of req and merges its entities.
func (c *Cache) Write(req Request, data json.RawMessage) error {
	tree, err := decodeTree(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	entities := map[string]map[string]any{}
	normalized := c.normalize(tree, entities)
	c.commit(entities)
	c.store.Set(resultPrefix+ResultKey(req), normalized, 1)
	c.mu.Unlock()

	c.store.Wait()
	return nil
}

// WriteEntities merges the entities found in data without recording a result.
// Used for subscription payloads and mutation responses.
func (c *Cache) WriteEntities(data json.RawMessage) error {
	tree, err := decodeTree(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	entities := map[string]map[string]any{}
	c.normalize(tree, entities)
	c.commit(entities)
	c.mu.Unlock()

	c.store.Wait()
	return nil
}

// Entity returns the stored fields of "Type:id".
func (c *Cache) Entity(typename, id string) (map[string]any, bool) {
	v, ok := c.store.Get(entityPrefix + typename + ":" + id)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func decodeTree(data json.RawMessage) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("decode graphql data for cache: %w", err)
	}
	return tree, nil
}

// normalize replaces identifiable objects with references and merges their
// fields into entities, keyed by "Type:id". An entity seen twice in one payload
// is merged once per occurrence. Callers hold c.mu.
func (c *Cache) normalize(v any, entities map[string]map[string]any) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = c.normalize(item, entities)
		}
		return out
	case map[string]any:
		fields := make(map[string]any, len(val))
		for k, item := range val {
			fields[k] = c.normalize(item, entities)
		}

		key, ok := entityKey(val)
		if !ok {
			return fields
		}

		merged, seen := entities[key]
		if !seen {
			// Copy-on-write: readers may hold the previous map.
			merged = make(map[string]any, len(fields))
			if prev, found := c.store.Get(entityPrefix + key); found {
				if prevFields, isMap := prev.(map[string]any); isMap {
					for k, item := range prevFields {
						merged[k] = item
					}
				}
			}
			entities[key] = merged
		}
		for k, item := range fields {
			merged[k] = item
		}
		return map[string]any{refKey: key}
	default:
		return v
	}
}

// commit stores each merged entity with a single Set. Callers hold c.mu.
func (c *Cache) commit(entities map[string]map[string]any) {
	for key, fields := range entities {
		c.store.Set(entityPrefix+key, fields, 1)
	}
}

// denormalize resolves references back into objects. Callers hold c.mu.
func (c *Cache) denormalize(v any) (any, bool) {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, ok := c.denormalize(item)
			if !ok {
				return nil, false
			}
			out[i] = resolved
		}
		return out, true
	case map[string]any:
		if ref, isRef := val[refKey].(string); isRef && len(val) == 1 {
			entity, found := c.store.Get(entityPrefix + ref)
			if !found {
				return nil, false
			}
			return c.denormalize(entity)
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, ok := c.denormalize(item)
			if !ok {
				return nil, false
			}
			out[k] = resolved
		}
		return out, true
	default:
		return v, true
	}
}

func entityKey(obj map[string]any) (string, bool) {
	typename, ok := obj[typenameKey].(string)
	if !ok || typename == "" {
		return "", false
	}
	switch id := obj[idKey].(type) {
	case string:
		if id == "" {
			return "", false
		}
		return typename + ":" + id, true
	case json.Number:
		return typename + ":" + id.String(), true
	default:
		return "", false
	}
}

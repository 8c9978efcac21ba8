// Package namespace maps conversation keys to durable storage locations.
//
// Every conversation lives in its own directory under a root:
//
//	<root>/<tenant>/<conversation>/current.txt
//	<root>/<tenant>/<conversation>/archive.txt
//	<root>/<tenant>/<conversation>/system.txt
//
// Tenant and conversation identifiers are rendered in base 10, so two
// distinct keys never share a directory.
package namespace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// Resource names one of the per-conversation resources.
type Resource string

const (
	ResourceCurrent Resource = "current"
	ResourceArchive Resource = "archive"
	ResourceSystem  Resource = "system"
)

// Valid reports whether r is one of the known resources.
func (r Resource) Valid() bool {
	switch r {
	case ResourceCurrent, ResourceArchive, ResourceSystem:
		return true
	}
	return false
}

// Filename returns the on-disk file name for the resource.
func (r Resource) Filename() string {
	return string(r) + ".txt"
}

// Key identifies one isolated conversation.
type Key struct {
	TenantID       int64 `json:"tenant_id" yaml:"tenant_id"`
	ConversationID int64 `json:"conversation_id" yaml:"conversation_id"`
}

// String renders the key as "tenant/conversation".
func (k Key) String() string {
	return strconv.FormatInt(k.TenantID, 10) + "/" + strconv.FormatInt(k.ConversationID, 10)
}

// ErrUnknownResource is returned when resolving a resource name that is not
// one of ResourceCurrent, ResourceArchive or ResourceSystem.
var ErrUnknownResource = errors.New("unknown resource")

// Resolver turns keys into paths under Root.
type Resolver struct {
	Root string
}

// NewResolver creates a resolver rooted at dir.
func NewResolver(dir string) *Resolver {
	return &Resolver{Root: dir}
}

// Dir returns the directory for key without creating it.
func (r *Resolver) Dir(key Key) string {
	return filepath.Join(r.Root,
		strconv.FormatInt(key.TenantID, 10),
		strconv.FormatInt(key.ConversationID, 10))
}

// Path returns the location of a resource without touching the filesystem.
func (r *Resolver) Path(key Key, res Resource) (string, error) {
	if !res.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownResource, res)
	}
	return filepath.Join(r.Dir(key), res.Filename()), nil
}

// Resolve returns the location of a resource, creating the conversation
// directory when it is missing. It is safe to call concurrently for the same
// key; an already existing directory is not an error.
func (r *Resolver) Resolve(key Key, res Resource) (string, error) {
	p, err := r.Path(key, res)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create namespace %s: %w", key, err)
	}
	return p, nil
}

// Discover walks the root and returns every conversation key found, sorted by
// tenant then conversation. Entries whose names are not integers are ignored.
// A missing root yields no keys.
func (r *Resolver) Discover() ([]Key, error) {
	tenants, err := os.ReadDir(r.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("discover conversations: %w", err)
	}

	var keys []Key
	for _, t := range tenants {
		if !t.IsDir() {
			continue
		}
		tenantID, ok := parseID(t.Name())
		if !ok {
			continue
		}
		convs, err := os.ReadDir(filepath.Join(r.Root, t.Name()))
		if err != nil {
			return nil, fmt.Errorf("discover conversations in tenant %d: %w", tenantID, err)
		}
		for _, c := range convs {
			if !c.IsDir() {
				continue
			}
			convID, ok := parseID(c.Name())
			if !ok {
				continue
			}
			keys = append(keys, Key{TenantID: tenantID, ConversationID: convID})
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].TenantID != keys[j].TenantID {
			return keys[i].TenantID < keys[j].TenantID
		}
		return keys[i].ConversationID < keys[j].ConversationID
	})
	return keys, nil
}

// parseID accepts only the canonical base-10 form so that "007" and "7" do
// not both map to the same key.
func parseID(name string) (int64, bool) {
	id, err := strconv.ParseInt(name, 10, 64)
	if err != nil {
		return 0, false
	}
	if strconv.FormatInt(id, 10) != name {
		return 0, false
	}
	return id, true
}

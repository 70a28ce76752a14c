package entitystore

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"utms/internal/logger"
	"utms/internal/sexpr"
	"utms/internal/timeutil"
	"utms/internal/typedvalue"
)

// cacheFile is the top-level binary cache envelope. WriteID identifies the
// writeCache call that produced the file, so a stale-cache bug report can
// be correlated with the log line emitted at write time.
type cacheFile struct {
	WriteID  string
	Entities []cachedEntity
}

// cachedEntity is the on-disk binary cache representation of an Entity
// It carries each attribute's
// runtime-projected value rather than the full TypedValue tree so the cache
// format doesn't need to know about every FieldType's in-memory Go type.
type cachedEntity struct {
	Name       string
	TypeKey    string
	Category   string
	SourceFile string
	Attrs      map[string]cachedAttr
}

type cachedAttr struct {
	Form typedvalue.RuntimeForm
}

func init() {
	gob.Register(typedvalue.RuntimeForm{})
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register(sexpr.Node{})
}

// CachePath computes the content-addressable cache filename for a source
// path: sha256(abspath).bin under cacheRoot.
func CachePath(cacheRoot, sourcePath string) (string, error) {
	abs, err := filepath.Abs(sourcePath)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(abs))
	return filepath.Join(cacheRoot, hex.EncodeToString(sum[:])+".bin"), nil
}

// cacheFresh reports whether the cache file at cachePath exists and its
// mtime is at or after the source file's mtime (if the cache
// mtime >= source mtime, deserialize cached entities").
func cacheFresh(cachePath, sourcePath string) bool {
	srcInfo, err := os.Stat(sourcePath)
	if err != nil {
		return false
	}
	cacheInfo, err := os.Stat(cachePath)
	if err != nil {
		return false
	}
	return !cacheInfo.ModTime().Before(srcInfo.ModTime())
}

func readCache(cachePath string) ([]cachedEntity, error) {
	f, err := os.Open(cachePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var cf cacheFile
	if err := gob.NewDecoder(f).Decode(&cf); err != nil {
		return nil, fmt.Errorf("entitystore: decoding cache %s: %w", cachePath, err)
	}
	return cf.Entities, nil
}

func writeCache(cachePath string, entities []*Entity) error {
	cached := make([]cachedEntity, 0, len(entities))
	for _, e := range entities {
		attrs := make(map[string]cachedAttr, len(e.Attributes))
		for name, tv := range e.Attributes {
			attrs[name] = cachedAttr{Form: typedvalue.SerializeForRuntime(tv)}
		}
		cached = append(cached, cachedEntity{
			Name: e.Name, TypeKey: e.TypeKey, Category: e.Category,
			SourceFile: e.SourceFile, Attrs: attrs,
		})
	}
	writeID := uuid.NewString()
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cacheFile{WriteID: writeID, Entities: cached}); err != nil {
		return fmt.Errorf("entitystore: encoding cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
		return err
	}
	tmp := cachePath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, cachePath); err != nil {
		return err
	}
	logger.Debug("entitystore: wrote cache %s (write %s, %d entities)", cachePath, writeID, len(cached))
	return nil
}

// tryLoadFromCache reads and decodes a cache file, returning ok=false on
// any error so the caller falls back to reparsing the source.
func tryLoadFromCache(cachePath string, et typedvalue.EntityType) ([]*Entity, bool) {
	cached, err := readCache(cachePath)
	if err != nil {
		return nil, false
	}
	entities := make([]*Entity, 0, len(cached))
	for _, c := range cached {
		e, err := cachedToEntity(c, et)
		if err != nil {
			return nil, false
		}
		entities = append(entities, e)
	}
	return entities, true
}

func cachedToEntity(c cachedEntity, et typedvalue.EntityType) (*Entity, error) {
	e := &Entity{
		Name: c.Name, TypeKey: c.TypeKey, Category: c.Category,
		SourceFile: c.SourceFile, Attributes: make(map[string]typedvalue.TypedValue, len(c.Attrs)),
	}
	for name, attr := range c.Attrs {
		schema, known := et.Attributes[name]
		if !known {
			// Preserve undeclared attributes (hooks, cursors) verbatim: a
			// dynamic hook's AST carries its own source text, and a cursor's
			// runtime form holds int64 nanoseconds.
			tv := typedvalue.TypedValue{
				FieldType: typedvalue.ParseFieldType(attr.Form.Type),
				Value:     attr.Form.Value,
				IsDynamic: attr.Form.IsDynamic,
			}
			if node, ok := tv.Value.(sexpr.Node); ok && tv.IsDynamic {
				tv.OriginalSource = node.Text
			}
			if ns, ok := tv.Value.(int64); ok && (tv.FieldType == typedvalue.Timestamp || tv.FieldType == typedvalue.DateTime) {
				tv.Value = timeutil.Instant(ns)
			}
			e.Attributes[name] = tv
			continue
		}
		tv, err := typedvalue.DeserializeRuntime(attr.Form, schema)
		if err != nil {
			return nil, err
		}
		e.Attributes[name] = tv
	}
	return e, nil
}

// touchCacheMtime sets path's access and modification times to t. Nothing
// in the module calls it, tests included.
func touchCacheMtime(path string, t time.Time) error {
	return os.Chtimes(path, t, t)
}

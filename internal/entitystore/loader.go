package entitystore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"utms/internal/logger"
	"utms/internal/sexpr"
)

// LoadSchemas scans dir for *.hy schema files and registers every
// def-entity/def-type form found. A malformed file
// aborts only that file's load; other files still load.
func (s *Store) LoadSchemas(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".hy") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := s.loadSchemaFile(path); err != nil {
			logger.Error("entitystore: loading schema %s: %v", path, err)
		}
	}
	return nil
}

func (s *Store) loadSchemaFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	forms, err := sexpr.ReadAll(string(data))
	if err != nil {
		return err
	}
	types, complexTypes, err := ParseSchemaForms(forms, path)
	if err != nil {
		return err
	}
	for _, et := range types {
		if err := s.RegisterType(et); err != nil {
			logger.Error("entitystore: %v", err)
		}
	}
	for _, ct := range complexTypes {
		if err := s.RegisterComplexType(ct); err != nil {
			logger.Error("entitystore: %v", err)
		}
	}
	return nil
}

// LoadCategoryDir loads every category file for typeKey under dir
// (conventionally <user>/<type_key>s/), using cacheRoot for the
// mtime-keyed binary cache.
func (s *Store) LoadCategoryDir(typeKey, dir, cacheRoot string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".hy") {
			continue
		}
		category := strings.TrimSuffix(entry.Name(), ".hy")
		path := filepath.Join(dir, entry.Name())
		if err := s.loadCategoryFile(typeKey, category, path, cacheRoot); err != nil {
			logger.Error("entitystore: loading category %s: %v", path, err)
		}
	}
	return nil
}

func (s *Store) loadCategoryFile(typeKey, category, path, cacheRoot string) error {
	et, ok := s.EntityType(typeKey)
	if !ok {
		return fmt.Errorf("entitystore: unknown entity type %q for %s", typeKey, path)
	}

	cachePath, err := CachePath(cacheRoot, path)
	if err != nil {
		return err
	}
	if cacheFresh(cachePath, path) {
		if entities, ok := tryLoadFromCache(cachePath, et); ok {
			for _, e := range entities {
				s.Put(e)
			}
			return nil
		}
		logger.Warn("entitystore: cache unusable for %s, reparsing", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	forms, err := sexpr.ReadAll(string(data))
	if err != nil {
		return err
	}
	entities, err := ParseEntityForms(forms, et, category, path)
	if err != nil {
		return err
	}
	for _, e := range entities {
		s.Put(e)
	}
	if err := writeCache(cachePath, entities); err != nil {
		logger.Warn("entitystore: writing cache for %s: %v", path, err)
	}
	return nil
}

package jsonfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"cashback/internal/log"
)

// load decodes the named document into v. It reports false when the file is
// missing, empty or unparsable; in the last case the file is moved aside so
// the next write starts from defaults. v must not be used when false is returned.
func (s *Store) load(name string, v any) (bool, error) {
	path := s.path(name)
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		s.quarantine(name, err)
		return false, nil
	}
	return true, nil
}

func (s *Store) quarantine(name string, cause error) {
	path := s.path(name)
	target := path + ".corrupt-" + strconv.FormatInt(s.now().Unix(), 10)
	if err := os.Rename(path, target); err != nil {
		s.logger.Error("Failed to quarantine corrupt document",
			log.FieldFile, name,
			log.FieldError, err,
			"cause", cause)
		return
	}
	s.logger.Warn("Corrupt document moved aside, using defaults",
		log.FieldFile, name,
		"quarantined_as", filepath.Base(target),
		log.FieldError, cause)
}

// save writes v as 2-space indented JSON through a temp file and rename.
func (s *Store) save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	data = append(data, '\n')
	if err := atomicWriteFile(s.path(name), data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// atomicWriteFile replaces path so that readers see either the old or the new content.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

func systemNow() time.Time { return time.Now() }

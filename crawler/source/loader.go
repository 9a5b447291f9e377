package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	apperrors "github.com/dotecxy/legado2-sub001/errors"
)

// Parse decodes a single book source object or an array of them
func Parse(data []byte) ([]*BookSource, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, apperrors.ErrSourceInvalid.WithCause(fmt.Errorf("empty document"))
	}

	var sources []*BookSource
	if data[0] == '[' {
		if err := json.Unmarshal(data, &sources); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeSourceInvalid, "malformed book source document")
		}
	} else {
		var single BookSource
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeSourceInvalid, "malformed book source document")
		}
		sources = append(sources, &single)
	}

	for i, s := range sources {
		if err := Validate(s); err != nil {
			return nil, fmt.Errorf("source #%d: %w", i, err)
		}
	}
	return sources, nil
}

// Load reads book sources from a reader
func Load(r io.Reader) ([]*BookSource, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// LoadFile reads book sources from a JSON file
func LoadFile(path string) ([]*BookSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Validate checks the fields every operation relies on
func Validate(s *BookSource) error {
	if s == nil {
		return apperrors.ErrSourceInvalid.WithCause(fmt.Errorf("nil source"))
	}
	u := strings.TrimSpace(s.URL)
	if u == "" {
		return apperrors.ErrSourceInvalid.WithCause(fmt.Errorf("bookSourceUrl is required"))
	}
	s.URL = strings.TrimRight(u, "/")
	if s.Name == "" {
		s.Name = s.URL
	}
	return nil
}

// Package scripmaster retrieves the raw Angel One instrument master and
// decodes it into records for instrument.Load.
package scripmaster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/swapnilk30/AlgoTradingSetup01/internal/instrument"
)

// DefaultURL is the public OpenAPI scrip master.
const DefaultURL = "https://margincalculator.angelbroking.com/OpenAPI_File/files/OpenAPIScripMaster.json"

// Source returns the raw master JSON body.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	Name() string
}

// HTTPSource downloads the master over HTTP.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPSource returns an HTTPSource for url, DefaultURL when empty.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPSource{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (s *HTTPSource) Name() string { return "http" }

// Fetch downloads the body. Non-2xx responses are errors.
func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scripmaster: download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("scripmaster: download: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("scripmaster: read body: %w", err)
	}
	slog.Info("scripmaster: downloaded", "url", s.URL, "bytes", len(body), "took", time.Since(start).String())
	return body, nil
}

// FileSource reads a previously saved master.
type FileSource struct {
	Path string
}

func (s *FileSource) Name() string { return "file" }

// Fetch reads the file.
func (s *FileSource) Fetch(ctx context.Context) ([]byte, error) {
	body, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("scripmaster: read %s: %w", s.Path, err)
	}
	return body, nil
}

// SaveFile writes body atomically to path, creating parent directories.
func SaveFile(path string, body []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ErrEmptyMaster is returned by Decode for a body with no records.
var ErrEmptyMaster = errors.New("scripmaster: master is empty")

// Decode parses a JSON array of master objects. Numbers are kept as
// json.Number so tokens and strikes are not rounded through float64.
func Decode(body []byte) ([]instrument.RawRecord, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, ErrEmptyMaster
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var recs []instrument.RawRecord
	if err := dec.Decode(&recs); err != nil {
		return nil, fmt.Errorf("scripmaster: decode: %w", err)
	}
	if len(recs) == 0 {
		return nil, ErrEmptyMaster
	}
	return recs, nil
}

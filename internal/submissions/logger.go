// Package submissions validates key/value form submissions and logs them to a JSON array
// file and a rendered HTML page.
package submissions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/poster-cache/internal/metrics"
	"github.com/JakeFAU/poster-cache/internal/storage/local"
)

// DefaultMaxFieldLength caps keys and values.
const DefaultMaxFieldLength = 25

// Submission results recorded in metrics.
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

var allowed = regexp.MustCompile(`^[A-Za-z0-9 ()\-.,]*$`)

// ErrInvalid is wrapped by Submit when validation fails.
var ErrInvalid = errors.New("invalid submission")

// Record is one logged submission. Data values are strings or json.Number.
type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Config locates the log files.
type Config struct {
	HTMLFile       string
	JSONFile       string
	MaxFieldLength int
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Logger appends submissions to both files. Every write rewrites both files in full.
type Logger struct {
	cfg    Config
	clock  Clock
	logger *zap.Logger
	mu     sync.Mutex
}

// New creates the log files from their empty templates when they do not exist yet.
func New(cfg Config, clock Clock, logger *zap.Logger) (*Logger, error) {
	if strings.TrimSpace(cfg.HTMLFile) == "" || strings.TrimSpace(cfg.JSONFile) == "" {
		return nil, errors.New("submission html and json files are required")
	}
	if cfg.MaxFieldLength <= 0 {
		cfg.MaxFieldLength = DefaultMaxFieldLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Logger{cfg: cfg, clock: clock, logger: logger}
	if err := l.ensureFiles(); err != nil {
		return nil, err
	}
	return l, nil
}

// Validate returns one message per violation; an empty result means fields are acceptable.
func (l *Logger) Validate(fields map[string]string) []string {
	if len(fields) == 0 {
		return []string{"At least one field is required. Use ?key=value"}
	}
	var issues []string
	for _, key := range sortedKeys(fields) {
		value := fields[key]
		if strings.TrimSpace(key) == "" {
			issues = append(issues, "Field names must not be empty")
			continue
		}
		if n := len([]rune(key)); n > l.cfg.MaxFieldLength {
			issues = append(issues, fmt.Sprintf("Field name %q exceeds %d characters", key, l.cfg.MaxFieldLength))
		}
		if !allowed.MatchString(key) {
			issues = append(issues, fmt.Sprintf("Field name %q contains invalid characters", key))
		}
		if n := len([]rune(value)); n > l.cfg.MaxFieldLength {
			issues = append(issues, fmt.Sprintf("Field %q exceeds %d characters", key, l.cfg.MaxFieldLength))
		}
		if !allowed.MatchString(value) {
			issues = append(issues, fmt.Sprintf("Field %q contains invalid characters", key))
		}
	}
	return issues
}

// Submit validates fields and appends them. Validation failures return the issues and an
// error wrapping ErrInvalid.
func (l *Logger) Submit(fields map[string]string) (Record, []string, error) {
	if issues := l.Validate(fields); len(issues) > 0 {
		metrics.ObserveSubmission(ResultRejected)
		return Record{}, issues, fmt.Errorf("%w: %d issue(s)", ErrInvalid, len(issues))
	}
	rec, err := l.Append(fields)
	if err != nil {
		metrics.ObserveSubmission(ResultFailed)
		return Record{}, nil, err
	}
	metrics.ObserveSubmission(ResultAccepted)
	return rec, nil, nil
}

// Append logs fields without validating them. Numeric values are stored as JSON numbers.
func (l *Logger) Append(fields map[string]string) (Record, error) {
	rec := Record{Timestamp: l.clock.Now(), Data: make(map[string]any, len(fields))}
	for k, v := range fields {
		rec.Data[k] = typedValue(v)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	records, err := l.read()
	if err != nil {
		return Record{}, err
	}
	records = append(records, rec)
	if err := l.write(records); err != nil {
		return Record{}, err
	}
	l.logger.Info("submission logged", zap.Int("fields", len(fields)), zap.Int("total", len(records)))
	return rec, nil
}

// List returns every logged record in submission order.
func (l *Logger) List() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read()
}

// View returns the rendered HTML page.
func (l *Logger) View() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	// #nosec G304 -- path comes from configuration.
	page, err := os.ReadFile(l.cfg.HTMLFile)
	if err != nil {
		return nil, fmt.Errorf("read submissions view: %w", err)
	}
	return page, nil
}

// Reset truncates both files back to their empty templates.
func (l *Logger) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.write(nil); err != nil {
		return err
	}
	l.logger.Info("submissions reset")
	return nil
}

func (l *Logger) ensureFiles() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, jsonErr := os.Stat(l.cfg.JSONFile)
	_, htmlErr := os.Stat(l.cfg.HTMLFile)
	switch {
	case jsonErr == nil && htmlErr == nil:
		return nil
	case jsonErr == nil:
		// Rebuild the view from the log.
		records, err := l.read()
		if err != nil {
			return err
		}
		return l.write(records)
	default:
		return l.write(nil)
	}
}

func (l *Logger) read() ([]Record, error) {
	// #nosec G304 -- path comes from configuration.
	data, err := os.ReadFile(l.cfg.JSONFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read submissions: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var records []Record
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode submissions: %w", err)
	}
	return records, nil
}

func (l *Logger) write(records []Record) error {
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal submissions: %w", err)
	}
	page, err := render(records)
	if err != nil {
		return err
	}
	if err := local.WriteFileAtomic(l.cfg.JSONFile, data, 0o600); err != nil {
		return fmt.Errorf("write submissions json: %w", err)
	}
	if err := local.WriteFileAtomic(l.cfg.HTMLFile, page, 0o644); err != nil {
		return fmt.Errorf("write submissions html: %w", err)
	}
	return nil
}

func typedValue(v string) any {
	if v == "" {
		return v
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil && json.Valid([]byte(v)) {
		return json.Number(v)
	}
	return v
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

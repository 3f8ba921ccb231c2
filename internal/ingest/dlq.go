package ingest

import (
	"bytes"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/drilonhametaj25/client-sniper/internal/business"
	"github.com/drilonhametaj25/client-sniper/internal/resilience"
)

// DLQEntry is one observation that could not be resolved.
type DLQEntry struct {
	Observation business.Observation `json:"observation"`
	Error       string               `json:"error"`
	ErrorType   string               `json:"error_type"` // "transient" or "permanent"
	Attempts    int                  `json:"attempts"`
	FailedAt    time.Time            `json:"failed_at"`
}

// DLQ appends failed observations to a JSONL file. A DLQ with an empty
// path discards entries. Safe for concurrent use.
type DLQ struct {
	mu   sync.Mutex
	path string
	f    *os.File
	n    int
}

// NewDLQ returns a dead-letter writer for path. The file is created on the
// first write.
func NewDLQ(path string) *DLQ {
	return &DLQ{path: path}
}

// Add records o with the error that made it fail.
func (d *DLQ) Add(o business.Observation, err error, attempts int) error {
	entry := DLQEntry{
		Observation: o,
		Error:       err.Error(),
		ErrorType:   resilience.ClassifyError(err),
		Attempts:    attempts,
		FailedAt:    time.Now().UTC(),
	}
	line, mErr := json.Marshal(entry)
	if mErr != nil {
		return eris.Wrap(mErr, "ingest: encode dlq entry")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.n++
	if d.path == "" {
		return nil
	}
	if d.f == nil {
		f, oErr := os.OpenFile(d.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if oErr != nil {
			return eris.Wrapf(oErr, "ingest: open dlq %s", d.path)
		}
		d.f = f
	}
	if _, wErr := d.f.Write(append(line, '\n')); wErr != nil {
		return eris.Wrap(wErr, "ingest: write dlq entry")
	}
	return nil
}

// Len returns the number of entries added.
func (d *DLQ) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.n
}

// Close flushes and closes the underlying file.
func (d *DLQ) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return eris.Wrap(err, "ingest: close dlq")
}

// ReadDLQ loads the entries of a dead-letter file.
func ReadDLQ(path string) ([]DLQEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read dlq %s", path)
	}
	var out []DLQEntry
	for i, raw := range bytes.Split(data, []byte("\n")) {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		var e DLQEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, eris.Wrapf(err, "ingest: dlq line %d", i+1)
		}
		out = append(out, e)
	}
	return out, nil
}

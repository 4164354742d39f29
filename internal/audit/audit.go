// Package audit provides the append-only, hash-chained event log kept in each
// run's working directory. Every record carries the hash of its predecessor,
// so any after-the-fact edit or deletion breaks the chain from that point on.
// The chain is the sole integrity mechanism; there is no separate signature.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileName is the audit log file inside a run's working directory.
const FileName = "audit.log"

// Genesis is the prev value of the first record in a chain.
const Genesis = "0000000000000000000000000000000000000000000000000000000000000000"

// Record is one event in the chain. Hash covers the canonical serialization
// of all fields except Hash itself.
type Record struct {
	TS    string         `json:"ts"`
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
	Prev  string         `json:"prev"`
	Hash  string         `json:"hash"`
}

// Log appends hash-chained records to a run's audit file.
type Log struct {
	path     string
	lastHash string
	now      func() time.Time
}

// Open creates a log writer for the given working directory. The chain
// continues from the last record if the file already has content.
func Open(workdir string) (*Log, error) {
	l := &Log{
		path:     filepath.Join(workdir, FileName),
		lastHash: Genesis,
		now:      time.Now,
	}
	records, err := ReadAll(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read existing audit log: %w", err)
	}
	if len(records) > 0 {
		l.lastHash = records[len(records)-1].Hash
	}
	return l, nil
}

// Path returns the audit file location.
func (l *Log) Path() string {
	return l.path
}

// Record appends one event to the chain. Data is redacted of secret-shaped
// values before hashing, so the stored record and its hash always agree.
func (l *Log) Record(event string, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	rec := Record{
		TS:    l.now().UTC().Format(time.RFC3339Nano),
		Event: event,
		Data:  redactData(data),
		Prev:  l.lastHash,
	}
	hash, err := hashRecord(rec)
	if err != nil {
		return fmt.Errorf("failed to hash audit record: %w", err)
	}
	rec.Hash = hash

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}

	l.lastHash = hash
	return nil
}

// hashRecord computes the canonical hash of a record's ts, event, data and
// prev fields. Serializing through a map gives an order-independent form:
// encoding/json sorts map keys at every nesting level.
func hashRecord(rec Record) (string, error) {
	canonical := map[string]any{
		"ts":    rec.TS,
		"event": rec.Event,
		"data":  rec.Data,
		"prev":  rec.Prev,
	}
	payload, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// ReadAll parses every record in an audit file. A missing file yields an
// empty chain, not an error.
func ReadAll(path string) ([]Record, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var records []Record
	for i, line := range strings.Split(string(raw), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("malformed audit record at line %d: %w", i+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

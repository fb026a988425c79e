package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// WireVersion is the version stamped on every record a worker pushes.
// Leaders refuse records carrying any other version.
const WireVersion = 1

var ErrUnsupportedVersion = errors.New("unsupported record version")

// StatRecord is one completed test case.
type StatRecord struct {
	Version int           `json:"v"`
	File    string        `json:"file"`
	Package string        `json:"package,omitempty"`
	Test    string        `json:"test"`
	Status  TestStatus    `json:"status"`
	Elapsed time.Duration `json:"elapsed"`
	Worker  int           `json:"worker"`
}

func (s StatRecord) String() string {
	return fmt.Sprintf("%-4s %s (%s, %s, worker %d)", s.Status, s.Test, s.File, FormatDuration(s.Elapsed), s.Worker)
}

// Exception describes why a test failed. Class is either the engine's
// assertion class (testing.T) or the kind of fault the test raised.
type Exception struct {
	Class     string   `json:"class"`
	Message   string   `json:"message"`
	Backtrace []string `json:"backtrace"`
}

// FailureRecord is one failing test case.
type FailureRecord struct {
	Version     int       `json:"v"`
	Description string    `json:"description"`
	Position    string    `json:"position"`
	Exception   Exception `json:"exception"`
	File        string    `json:"file"`
	Worker      int       `json:"worker"`
}

// EncodeStat serializes a stat record, stamping the current wire version
func EncodeStat(rec StatRecord) (string, error) {
	rec.Version = WireVersion
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to encode stat record: %w", err)
	}
	return string(data), nil
}

// DecodeStat parses a stat record pushed by a worker
func DecodeStat(raw string) (StatRecord, error) {
	var rec StatRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return rec, fmt.Errorf("failed to decode stat record: %w", err)
	}
	if rec.Version != WireVersion {
		return rec, fmt.Errorf("%w: %d", ErrUnsupportedVersion, rec.Version)
	}
	return rec, nil
}

// EncodeFailure serializes a failure record, stamping the current wire version
func EncodeFailure(rec FailureRecord) (string, error) {
	rec.Version = WireVersion
	if rec.Exception.Backtrace == nil {
		rec.Exception.Backtrace = []string{}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to encode failure record: %w", err)
	}
	return string(data), nil
}

// DecodeFailure parses a failure record pushed by a worker
func DecodeFailure(raw string) (FailureRecord, error) {
	var rec FailureRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return rec, fmt.Errorf("failed to decode failure record: %w", err)
	}
	if rec.Version != WireVersion {
		return rec, fmt.Errorf("%w: %d", ErrUnsupportedVersion, rec.Version)
	}
	return rec, nil
}

package snapshot

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the normalized form of period boundaries.
const DateLayout = "02-01-2006"

// sep joins the parts of a storage key. It never occurs in a normalized date.
const sep = "_"

// Identifier errors.
var (
	ErrInvalidDate = errors.New("invalid date")
	ErrInvalidKey  = errors.New("invalid snapshot key")
)

var dateRe = regexp.MustCompile(`^(\d{2})[-./ ](\d{2})[-./ ](\d{4})$`)

// NormalizeDate accepts dd-mm-YYYY with '-', '.', '/' or ' ' separators and
// returns it in DateLayout.
func NormalizeDate(s string) (string, error) {
	m := dateRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", fmt.Errorf("%w: %q, expected dd-mm-YYYY", ErrInvalidDate, s)
	}

	normalized := m[1] + "-" + m[2] + "-" + m[3]

	_, err := time.Parse(DateLayout, normalized)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidDate, s, err)
	}

	return normalized, nil
}

// DraftID identifies a draft by its period.
type DraftID struct {
	From string
	To   string
}

// Key encodes the id as a storage key.
func (d DraftID) Key() string {
	return d.From + sep + d.To
}

func (d DraftID) String() string {
	return d.From + " .. " + d.To
}

// ParseDraftKey decodes a key produced by DraftID.Key.
func ParseDraftKey(key string) (DraftID, error) {
	from, to, ok := strings.Cut(key, sep)
	if !ok || from == "" || to == "" || strings.Contains(to, sep) {
		return DraftID{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	return DraftID{From: from, To: to}, nil
}

// SnapshotID identifies an approved snapshot: its period and the modification
// time of the draft it was approved from.
type SnapshotID struct {
	From  string
	To    string
	MTime time.Time
}

// Draft returns the period part of the id.
func (s SnapshotID) Draft() DraftID {
	return DraftID{From: s.From, To: s.To}
}

// Key encodes the id as a storage key, the mtime as Unix nanoseconds.
func (s SnapshotID) Key() string {
	return s.From + sep + s.To + sep + strconv.FormatInt(s.MTime.UnixNano(), 10)
}

func (s SnapshotID) String() string {
	return fmt.Sprintf("%s .. %s @ %s", s.From, s.To, s.MTime.UTC().Format(time.RFC3339Nano))
}

// ParseSnapshotKey decodes a key produced by SnapshotID.Key.
func ParseSnapshotKey(key string) (SnapshotID, error) {
	from, rest, ok := strings.Cut(key, sep)
	if !ok || from == "" {
		return SnapshotID{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	to, ns, ok := strings.Cut(rest, sep)
	if !ok || to == "" {
		return SnapshotID{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	n, err := strconv.ParseInt(ns, 10, 64)
	if err != nil {
		return SnapshotID{}, fmt.Errorf("%w: %q: mtime: %w", ErrInvalidKey, key, err)
	}

	return SnapshotID{From: from, To: to, MTime: time.Unix(0, n).UTC()}, nil
}

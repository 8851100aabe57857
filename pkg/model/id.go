package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const localPrefix = "local-"

// MaxRemoteID is the largest numeric id read as a server id. Older clients
// used millisecond timestamps as local handles, and those are all larger, so
// a backend whose ids pass this bound would have them misread as local.
const MaxRemoteID = 999_999_999_999

// ID identifies a task. A task created without a session only has a Local
// handle until the backend assigns it a Remote id.
type ID struct {
	Remote int64
	Local  string
}

func RemoteID(n int64) ID { return ID{Remote: n} }

// NewLocalID returns a fresh client-side handle.
func NewLocalID() ID {
	return ID{Local: localPrefix + uuid.NewString()}
}

// ParseID accepts "42", " 42 ", "local-<uuid>" and legacy millisecond
// timestamps written by older clients. Numbers above MaxRemoteID become the
// local handle "local-<n>".
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ID{}, fmt.Errorf("empty task id")
	}
	if strings.HasPrefix(s, localPrefix) {
		return ID{Local: s}, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return ID{}, fmt.Errorf("invalid task id %q", s)
	}
	if n > MaxRemoteID {
		return ID{Local: localPrefix + s}, nil
	}
	return ID{Remote: n}, nil
}

func (id ID) IsLocal() bool { return id.Remote == 0 }

func (id ID) IsZero() bool { return id.Remote == 0 && id.Local == "" }

// String is the canonical comparison form.
func (id ID) String() string {
	if id.Remote != 0 {
		return strconv.FormatInt(id.Remote, 10)
	}
	return id.Local
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id.Remote != 0 {
		return []byte(strconv.FormatInt(id.Remote, 10)), nil
	}
	return json.Marshal(id.Local)
}

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ID{}
		return nil
	}
	var s string
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	} else {
		s = string(b)
	}
	parsed, err := ParseID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

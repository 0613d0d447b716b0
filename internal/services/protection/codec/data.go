package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	apperrors "github.com/louisbranch/wardstone/internal/platform/errors"
	"github.com/louisbranch/wardstone/internal/services/protection/domain"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	rightsMember = "rights"
	flagsMember  = "flags"
)

// Data is the decoded form of a protection data column.
type Data struct {
	Permissions []domain.Permission
	Flags       []domain.Flag
	Extension   domain.Extension
}

type permissionJSON struct {
	Name   string `json:"name"`
	Type   int    `json:"type"`
	Rights int    `json:"rights"`
}

type flagJSON struct {
	ID   int             `json:"id"`
	Data json.RawMessage `json:"data,omitempty"`
}

// DecodeData parses a data column. The returned Data is always usable: on a
// CodeMalformedExtensionData error it carries the original bytes in
// Extension.Raw and no permissions or flags.
func DecodeData(raw []byte) (Data, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Data{}, nil
	}
	malformed := func(reason string) (Data, error) {
		return Data{Extension: domain.Extension{Raw: append([]byte(nil), raw...), Malformed: true}},
			apperrors.New(apperrors.CodeMalformedExtensionData, reason)
	}
	if !gjson.ValidBytes(raw) {
		return malformed("data is not valid json")
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return malformed("data is not a json object")
	}

	var (
		data   Data
		failed string
	)
	root.ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case rightsMember:
			perms, err := decodePermissions(value)
			if err != nil {
				failed = err.Error()
				return false
			}
			data.Permissions = perms
		case flagsMember:
			flags, err := decodeFlags(value)
			if err != nil {
				failed = err.Error()
				return false
			}
			data.Flags = flags
		default:
			data.Extension.Extra = append(data.Extension.Extra, domain.Member{
				Key:   key.String(),
				Value: json.RawMessage(value.Raw),
			})
		}
		return true
	})
	if failed != "" {
		return malformed(failed)
	}
	return data, nil
}

func decodePermissions(value gjson.Result) ([]domain.Permission, error) {
	if !value.IsArray() {
		return nil, fmt.Errorf("%s is not an array", rightsMember)
	}
	var perms []domain.Permission
	for _, entry := range value.Array() {
		if !entry.IsObject() {
			return nil, fmt.Errorf("%s entry is not an object", rightsMember)
		}
		name := entry.Get("name")
		if name.Type != gjson.String {
			return nil, fmt.Errorf("%s entry has no name", rightsMember)
		}
		perms = append(perms, domain.Permission{
			Subject: name.String(),
			Scope:   domain.Scope(entry.Get("type").Int()),
			Access:  domain.Access(entry.Get("rights").Int()),
		})
	}
	return perms, nil
}

func decodeFlags(value gjson.Result) ([]domain.Flag, error) {
	if !value.IsArray() {
		return nil, fmt.Errorf("%s is not an array", flagsMember)
	}
	var flags []domain.Flag
	for _, entry := range value.Array() {
		if !entry.IsObject() {
			return nil, fmt.Errorf("%s entry is not an object", flagsMember)
		}
		flag := domain.Flag{Kind: domain.FlagKind(entry.Get("id").Int())}
		if payload := entry.Get("data"); payload.Exists() {
			flag.Data = json.RawMessage(payload.Raw)
		}
		flags = append(flags, flag)
	}
	return flags, nil
}

// EncodeData renders data as a JSON object: unknown members first in their
// original order, then `rights` and `flags` when non-empty. An empty result
// is returned as nil.
func EncodeData(data Data) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, member := range data.Extension.Extra {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(member.Key)
		if err != nil {
			return nil, fmt.Errorf("encode member key: %w", err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		value := member.Value
		if len(bytes.TrimSpace(value)) == 0 {
			value = json.RawMessage("null")
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	out := buf.Bytes()

	if len(data.Permissions) > 0 {
		entries := make([]permissionJSON, 0, len(data.Permissions))
		for _, perm := range data.Permissions {
			entries = append(entries, permissionJSON{Name: perm.Subject, Type: int(perm.Scope), Rights: int(perm.Access)})
		}
		raw, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("encode rights: %w", err)
		}
		if out, err = sjson.SetRawBytes(out, rightsMember, raw); err != nil {
			return nil, fmt.Errorf("set rights: %w", err)
		}
	}
	if len(data.Flags) > 0 {
		entries := make([]flagJSON, 0, len(data.Flags))
		for _, flag := range data.Flags {
			payload := flag.Data
			if len(bytes.TrimSpace(payload)) == 0 {
				payload = nil
			}
			entries = append(entries, flagJSON{ID: int(flag.Kind), Data: payload})
		}
		raw, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("encode flags: %w", err)
		}
		if out, err = sjson.SetRawBytes(out, flagsMember, raw); err != nil {
			return nil, fmt.Errorf("set flags: %w", err)
		}
	}

	if bytes.Equal(out, []byte("{}")) {
		return nil, nil
	}
	return out, nil
}

package proto

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// Format selects the encoding Marshal produces.
type Format int

const (
	// FormatJSON is version-prefixed JSON.
	FormatJSON Format = iota
	// FormatCBOR is a plain CBOR map.
	FormatCBOR
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatCBOR:
		return "cbor"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat is the inverse of Format.String.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "json":
		return FormatJSON, nil
	case "cbor":
		return FormatCBOR, nil
	}
	return 0, errors.Errorf("unknown wire format %q", s)
}

type validator interface {
	Validate() error
}

// Marshal encodes obj in the given format at the current protocol version.
func Marshal(obj interface{}, f Format) ([]byte, error) {
	return MarshalVersioned(obj, f, Version)
}

// MarshalVersioned encodes obj, tagging JSON output with the given version.
// A version is included via a v0 compatible hack since v0 did not include the
// version. Specifically, the version is encoded as whitespace prefixing the
// json data. CBOR output is untagged; it only exists from v1 on.
func MarshalVersioned(obj interface{}, f Format, version uint32) ([]byte, error) {
	switch f {
	case FormatCBOR:
		data, err := cbor.Marshal(obj)
		if err != nil {
			return nil, errors.Wrap(err, "could not cbor encode message")
		}
		return data, nil
	case FormatJSON:
		var blob bytes.Buffer
		blob.Write(encodeVersion(version))
		if err := json.NewEncoder(&blob).Encode(obj); err != nil {
			return nil, errors.Wrap(err, "could not json encode message")
		}
		return blob.Bytes(), nil
	}
	return nil, errors.Errorf("unknown wire format %v", f)
}

// Unmarshal decodes a sample produced by Marshal in either format into obj
// and returns the protocol version the sender spoke. If obj has a Validate
// method it is applied. Every failure wraps ErrMalformed.
func Unmarshal(data []byte, obj interface{}) (uint32, error) {
	if len(data) == 0 {
		return 0, errors.Wrap(ErrMalformed, "empty sample")
	}

	var version uint32
	if isJSONIgnorableWhitespace(data[0]) || data[0] == '{' {
		var prefix []byte
		for i := 0; i < len(data); i++ {
			if !isJSONIgnorableWhitespace(data[i]) {
				prefix = data[0:i]
				break
			}
		}
		v, err := decodeVersion(prefix)
		if err != nil {
			return 0, errors.Wrapf(ErrMalformed, "could not determine version from prefix: %v", err)
		}
		if err := json.Unmarshal(data, obj); err != nil {
			return 0, errors.Wrapf(ErrMalformed, "can't decode json sample: %v", err)
		}
		version = v
	} else {
		if err := cbor.Unmarshal(data, obj); err != nil {
			return 0, errors.Wrapf(ErrMalformed, "can't decode cbor sample: %v", err)
		}
		version = Version
	}

	if v, ok := obj.(validator); ok {
		if err := v.Validate(); err != nil {
			return version, err
		}
	}
	return version, nil
}

// Package archive encodes register dumps and preset exports as CBOR.
//
// The encoding is deterministic (canonical key order, definite lengths), so
// archiving the same register map twice yields identical bytes and archives
// can be compared or hashed directly.
package archive

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// ContentType is the media type served for CBOR archives.
const ContentType = "application/cbor"

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("archive: creating CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthAllowed,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("archive: creating CBOR decoder mode: %v", err))
	}
}

// Marshal encodes v as canonical CBOR.
func Marshal(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("archive: encoding: %w", err)
	}
	return b, nil
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("archive: decoding: %w", err)
	}
	return nil
}

// Write encodes v to w.
func Write(w io.Writer, v any) error {
	if err := encMode.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("archive: encoding: %w", err)
	}
	return nil
}

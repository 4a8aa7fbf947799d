package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2) so the same
// episode always produces identical bytes. Float64 values keep their full
// precision; ShortestFloat is left off. Timestamps keep nanoseconds.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	opts := cbor.CoreDetEncOptions()
	opts.ShortestFloat = cbor.ShortestFloatNone
	opts.Time = cbor.TimeRFC3339Nano
	encMode, err = opts.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBOR is the default binary codec backed by github.com/fxamacker/cbor/v2.
//
// Unlike JSON it round-trips NaN and ±Inf, which appear in Box space bounds.
type CBOR struct{}

// Marshal encodes v to deterministic CBOR.
func (CBOR) Marshal(v any) ([]byte, error) { return encMode.Marshal(v) }

// Unmarshal decodes CBOR data into v.
func (CBOR) Unmarshal(data []byte, v any) error { return decMode.Unmarshal(data, v) }

// Name returns "cbor".
func (CBOR) Name() string { return "cbor" }

package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestEncodeDecode(t *testing.T) {
	reg := Default()
	v := cty.ObjectVal(map[string]cty.Value{
		"amount":   cty.NumberFloatVal(1234.5),
		"currency": cty.StringVal("USD"),
		"legs":     cty.ListVal([]cty.Value{cty.NumberIntVal(1), cty.NumberIntVal(2)}),
	})

	for _, tag := range reg.Tags() {
		t.Run(tag, func(t *testing.T) {
			data, err := reg.Encode(tag, v)
			require.NoError(t, err)

			got, err := reg.Decode(data)
			require.NoError(t, err)
			assert.True(t, got.Type().Equals(v.Type()))
			assert.True(t, v.Equals(got).True(), "got %#v", got)
		})
	}
}

func TestDecodeUsesFrameTag(t *testing.T) {
	writer := Default()
	data, err := writer.Encode(TagMsgpack, cty.StringVal("x"))
	require.NoError(t, err)

	onlyJSON := NewRegistry()
	require.NoError(t, onlyJSON.Register(JSON{}))
	_, err = onlyJSON.Decode(data)
	assert.ErrorIs(t, err, ErrUnknownTag)
}

func TestRegistryErrors(t *testing.T) {
	reg := Default()
	assert.EqualError(t, reg.Register(JSON{}), "codec with tag 'cty-json' already registered")

	_, err := reg.Encode("gob", cty.True)
	assert.ErrorIs(t, err, ErrUnknownTag)

	_, err = reg.Decode(nil)
	assert.ErrorIs(t, err, ErrMalformedFrame)
	_, err = reg.Decode([]byte{0x20, 'a'})
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

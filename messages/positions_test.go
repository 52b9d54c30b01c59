package messages

import (
	"math"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/quadfield/quadtree"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestPositionsCodec(t *testing.T) {
	positions := []quadtree.Vector3f{
		{X: 1, Y: 2, Z: 3},
		{},
		{X: -0.5, Y: 1e6},
		{X: float32(math.Copysign(0, -1)), Y: 4},
	}

	b := MarshalPositions(positions)
	res, err := UnmarshalPositions(b)
	require.NoError(t, err)
	require.Equal(t, positions, res)
	require.True(t, math.Signbit(float64(res[3].X)))
}

func TestMarshalPositionsEmpty(t *testing.T) {
	require.Empty(t, MarshalPositions(nil))

	res, err := UnmarshalPositions(nil)
	require.NoError(t, err)
	require.Empty(t, res)
}

func TestMarshalPositionsWireFormat(t *testing.T) {
	b := MarshalPositions([]quadtree.Vector3f{{X: 1}})

	expected := protowire.AppendTag(nil, 1, protowire.BytesType)
	expected = protowire.AppendVarint(expected, 5)
	expected = protowire.AppendTag(expected, 1, protowire.Fixed32Type)
	expected = protowire.AppendFixed32(expected, math.Float32bits(1))

	require.Equal(t, expected, b)
}

func TestUnmarshalPositionsSkipsUnknownFields(t *testing.T) {
	var pb []byte
	pb = protowire.AppendTag(pb, 2, protowire.Fixed32Type)
	pb = protowire.AppendFixed32(pb, math.Float32bits(7))
	pb = protowire.AppendTag(pb, 9, protowire.VarintType)
	pb = protowire.AppendVarint(pb, 300)
	pb = protowire.AppendTag(pb, 3, protowire.Fixed32Type)
	pb = protowire.AppendFixed32(pb, math.Float32bits(-2))

	var b []byte
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("ignored"))
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, pb)

	res, err := UnmarshalPositions(b)
	require.NoError(t, err)
	require.Equal(t, []quadtree.Vector3f{{Y: 7, Z: -2}}, res)
}

func TestUnmarshalPositionsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "truncated tag",
			data: []byte{0x80},
		},
		{
			name: "truncated position",
			data: []byte{0x0a, 0x05, 0x0d, 0x00},
		},
		{
			name: "truncated float",
			data: []byte{0x0a, 0x03, 0x0d, 0x00, 0x00},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := UnmarshalPositions(test.data)
			require.Error(t, err)
			require.Equal(t, ErrTypePositionsDecoding, errors.Type(err))
		})
	}
}

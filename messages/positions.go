package messages

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/quadfield/quadtree"
	"google.golang.org/protobuf/encoding/protowire"
)

// ContentTypePositions is the content type of a protobuf encoded positions
// list.
const ContentTypePositions = "application/x-protobuf"

// Positions are encoded as the protobuf messages:
//
//	message Position {
//	  float x = 1;
//	  float y = 2;
//	  float z = 3;
//	}
//
//	message Positions {
//	  repeated Position positions = 1;
//	}
const (
	positionsFieldNum protowire.Number = 1
	xFieldNum         protowire.Number = 1
	yFieldNum         protowire.Number = 2
	zFieldNum         protowire.Number = 3
)

// MarshalPositions encodes the given positions as a Positions message.
func MarshalPositions(positions []quadtree.Vector3f) []byte {
	var b []byte
	var pb []byte

	for _, p := range positions {
		pb = appendPosition(pb[:0], p)
		b = protowire.AppendTag(b, positionsFieldNum, protowire.BytesType)
		b = protowire.AppendBytes(b, pb)
	}
	return b
}

func appendPosition(b []byte, p quadtree.Vector3f) []byte {
	b = appendFloat(b, xFieldNum, p.X)
	b = appendFloat(b, yFieldNum, p.Y)
	return appendFloat(b, zFieldNum, p.Z)
}

func appendFloat(b []byte, num protowire.Number, v float32) []byte {
	bits := math.Float32bits(v)
	if bits == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, bits)
}

// UnmarshalPositions decodes a Positions message. Unknown fields are skipped.
func UnmarshalPositions(b []byte) ([]quadtree.Vector3f, error) {
	var positions []quadtree.Vector3f

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, newPositionsDecodingError(n)
		}
		b = b[n:]

		if num != positionsFieldNum || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, newPositionsDecodingError(n)
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, newPositionsDecodingError(n)
		}
		b = b[n:]

		p, err := unmarshalPosition(v)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}

	return positions, nil
}

func unmarshalPosition(b []byte) (quadtree.Vector3f, error) {
	var p quadtree.Vector3f

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return p, newPositionsDecodingError(n)
		}
		b = b[n:]

		var dst *float32
		switch num {
		case xFieldNum:
			dst = &p.X
		case yFieldNum:
			dst = &p.Y
		case zFieldNum:
			dst = &p.Z
		}

		if dst == nil || typ != protowire.Fixed32Type {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return p, newPositionsDecodingError(n)
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return p, newPositionsDecodingError(n)
		}
		b = b[n:]
		*dst = math.Float32frombits(v)
	}

	return p, nil
}

func newPositionsDecodingError(n int) error {
	return errors.New("decoding positions failed").
		WithType(ErrTypePositionsDecoding).
		Wrap(protowire.ParseError(n))
}

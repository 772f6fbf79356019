package session

import (
	"context"
	"encoding/json"
	"errors"
)

// Codec turns an attribute value into opaque bytes and back. The core never
// inspects attribute payloads; application-level typing lives entirely in
// the codec and the generic helpers below.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// JSONCodec is the default codec.
type JSONCodec struct{}

func (JSONCodec) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Join(ErrEncode, err)
	}
	return data, nil
}

func (JSONCodec) Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Join(ErrDecode, err)
	}
	return nil
}

var _ Codec = JSONCodec{}

// Value is a typed helper to read a session attribute through the session's
// codec. Returns ErrNotFound if the attribute does not exist.
func Value[T any](s *Session, name string) (T, error) {
	var zero T
	if s == nil {
		return zero, ErrNotFound
	}

	data, ok := s.Attr(name)
	if !ok {
		return zero, ErrNotFound
	}

	var v T
	if err := s.codec.Decode(data, &v); err != nil {
		return zero, err
	}
	return v, nil
}

// ValueOr is a typed helper that returns a default when the attribute is
// missing or cannot be decoded.
func ValueOr[T any](s *Session, name string, defaultVal T) T {
	v, err := Value[T](s, name)
	if err != nil {
		return defaultVal
	}
	return v
}

// SetValue encodes a value through the session's codec and stores it as an
// attribute. A nil pointer round-trips to a removal like SetAttr(nil).
func SetValue[T any](ctx context.Context, s *Session, name string, v T) error {
	data, err := s.codec.Encode(v)
	if err != nil {
		return err
	}
	return s.SetAttr(ctx, name, data)
}

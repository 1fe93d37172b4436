package rpc

import (
	"context"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// codec reads and writes whole messages on a connection.
type codec interface {
	read(ctx context.Context, conn *websocket.Conn, v any) error
	write(ctx context.Context, conn *websocket.Conn, v any) error
}

type jsonCodec struct{}

func (jsonCodec) read(ctx context.Context, conn *websocket.Conn, v any) error {
	return wsjson.Read(ctx, conn, v)
}

func (jsonCodec) write(ctx context.Context, conn *websocket.Conn, v any) error {
	return wsjson.Write(ctx, conn, v)
}

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORCodec() cborCodec {
	encOptions := cbor.CoreDetEncOptions()
	// tags travel as their names
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	enc, err := encOptions.EncMode()
	if err != nil {
		panic("rpc: CBOR encoder initialization failed: " + err.Error())
	}
	dec, err := cbor.DecOptions{
		// generic trees must look the same as ones decoded from JSON
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("rpc: CBOR decoder initialization failed: " + err.Error())
	}
	return cborCodec{enc: enc, dec: dec}
}

func (c cborCodec) read(ctx context.Context, conn *websocket.Conn, v any) error {
	typ, b, err := conn.Read(ctx)
	if err != nil {
		return err
	}
	if typ != websocket.MessageBinary {
		return fmt.Errorf("expected binary message, got %v", typ)
	}
	if err := c.dec.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decoding CBOR message: %w", err)
	}
	return nil
}

func (c cborCodec) write(ctx context.Context, conn *websocket.Conn, v any) error {
	b, err := c.enc.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding CBOR message: %w", err)
	}
	return conn.Write(ctx, websocket.MessageBinary, b)
}

// codecFor returns the codec of a negotiated subprotocol. No subprotocol means JSON.
func codecFor(subprotocol string) (codec, error) {
	switch subprotocol {
	case SubprotocolJSON, "":
		return jsonCodec{}, nil
	case SubprotocolCBOR:
		return newCBORCodec(), nil
	}
	return nil, fmt.Errorf("unsupported subprotocol %q", subprotocol)
}

package codec

import (
	"encoding/json"
	"fmt"

	"github.com/synix/crdtengine/container"
	"github.com/synix/crdtengine/content"
)

// appendContentPayload writes the content-kind-specific payload that
// follows an Item's length field (spec §4.7 struct section).
func appendContentPayload(buf []byte, c content.Content) ([]byte, error) {
	switch c.Kind {
	case content.KindAny, content.KindJSON:
		b, err := json.Marshal(c.Any)
		if err != nil {
			return nil, err
		}
		return appendVarBytes(buf, b), nil
	case content.KindString:
		return appendVarBytes(buf, []byte(string(c.String))), nil
	case content.KindBinary:
		return appendVarBytes(buf, c.Binary), nil
	case content.KindEmbed:
		b, err := json.Marshal(c.Embed)
		if err != nil {
			return nil, err
		}
		return appendVarBytes(buf, b), nil
	case content.KindFormat:
		buf = appendVarString(buf, c.FormatKey)
		b, err := json.Marshal(c.FormatValue)
		if err != nil {
			return nil, err
		}
		return appendVarBytes(buf, b), nil
	case content.KindDeleted:
		// Length already encodes the tombstone span; no extra payload.
		return buf, nil
	case content.KindType:
		kind, ok := contentTypeKind(c)
		if !ok {
			return nil, fmt.Errorf("type content missing container kind: %w", ErrUnknownContentRef)
		}
		return append(buf, byte(kind)), nil
	case content.KindDoc:
		return appendVarString(buf, c.DocGUID), nil
	default:
		return nil, fmt.Errorf("content kind %v: %w", c.Kind, ErrUnknownContentRef)
	}
}

func contentTypeKind(c content.Content) (container.Kind, bool) {
	nested, ok := c.Type.(*container.Container)
	if !ok {
		return 0, false
	}
	return nested.Kind, true
}

// decodeContentPayload reads the payload for a struct already known to
// carry content kind and unit length, reconstructing a Content value. For
// KindType it allocates a fresh, empty nested container; the items that
// belong inside it arrive as separate structs whose Parent references
// this item's id and get integrated into it independently.
func decodeContentPayload(d *decoder, kind content.Kind, length uint32) (content.Content, error) {
	switch kind {
	case content.KindAny, content.KindJSON:
		b, err := d.varBytes()
		if err != nil {
			return content.Content{}, err
		}
		var vs []any
		if err := json.Unmarshal(b, &vs); err != nil {
			return content.Content{}, err
		}
		return content.Content{Kind: kind, Any: vs}, nil
	case content.KindString:
		b, err := d.varBytes()
		if err != nil {
			return content.Content{}, err
		}
		return content.NewString(string(b)), nil
	case content.KindBinary:
		b, err := d.varBytes()
		if err != nil {
			return content.Content{}, err
		}
		return content.NewBinary(append([]byte{}, b...)), nil
	case content.KindEmbed:
		b, err := d.varBytes()
		if err != nil {
			return content.Content{}, err
		}
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			return content.Content{}, err
		}
		return content.NewEmbed(v), nil
	case content.KindFormat:
		key, err := d.varString()
		if err != nil {
			return content.Content{}, err
		}
		b, err := d.varBytes()
		if err != nil {
			return content.Content{}, err
		}
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			return content.Content{}, err
		}
		return content.NewFormat(key, v), nil
	case content.KindDeleted:
		return content.NewDeleted(length), nil
	case content.KindType:
		kb, err := d.byte()
		if err != nil {
			return content.Content{}, err
		}
		return content.NewType(container.New(container.Kind(kb))), nil
	case content.KindDoc:
		guid, err := d.varString()
		if err != nil {
			return content.Content{}, err
		}
		return content.NewDoc(guid), nil
	default:
		return content.Content{}, fmt.Errorf("content kind %v: %w", kind, ErrUnknownContentRef)
	}
}

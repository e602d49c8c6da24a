package serializer

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

type JSONSerializerOptions struct {
	// UseNumber 反序列化到 any 时数字保留为 json.Number
	UseNumber  bool `cfg:"useNumber"`
	EscapeHTML bool `cfg:"escapeHTML"`
}

type JSONSerializer struct {
	useNumber  bool
	escapeHTML bool
}

func NewJSONSerializerWithOptions(options *JSONSerializerOptions) *JSONSerializer {
	if options == nil {
		options = &JSONSerializerOptions{}
	}
	return &JSONSerializer{useNumber: options.UseNumber, escapeHTML: options.EscapeHTML}
}

func (s *JSONSerializer) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(s.escapeHTML)
	if err := enc.Encode(v); err != nil {
		return nil, errors.Wrap(err, "json encode failed")
	}
	// Encode 会追加换行
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (s *JSONSerializer) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if s.useNumber {
		dec.UseNumber()
	}
	return errors.Wrap(dec.Decode(v), "json decode failed")
}

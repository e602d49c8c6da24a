package serializer

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

type MsgPackSerializerOptions struct {
	// UseJSONTag 使用结构体的 json 标签作为字段名
	UseJSONTag bool `cfg:"useJSONTag" def:"true"`
}

// MsgPackSerializer 输出二进制，适合 BLOB 类型的列
type MsgPackSerializer struct {
	tag string
}

func NewMsgPackSerializerWithOptions(options *MsgPackSerializerOptions) *MsgPackSerializer {
	s := &MsgPackSerializer{}
	if options == nil || options.UseJSONTag {
		s.tag = "json"
	}
	return s
}

func (s *MsgPackSerializer) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if s.tag != "" {
		enc.SetCustomStructTag(s.tag)
	}
	if err := enc.Encode(v); err != nil {
		return nil, errors.Wrap(err, "msgpack encode failed")
	}
	return buf.Bytes(), nil
}

func (s *MsgPackSerializer) Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	if s.tag != "" {
		dec.SetCustomStructTag(s.tag)
	}
	return errors.Wrap(dec.Decode(v), "msgpack decode failed")
}

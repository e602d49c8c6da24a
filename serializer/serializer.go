package serializer

import (
	"github.com/hatlonely/korm/model"
	"github.com/hatlonely/korm/ref"
	"github.com/pkg/errors"
)

func init() {
	ref.MustRegisterT[JSONSerializer](NewJSONSerializerWithOptions)
	ref.MustRegisterT[MsgPackSerializer](NewMsgPackSerializerWithOptions)
}

// Serializer 可序列化字段的编解码器，写入前 Marshal，读取后 Unmarshal
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

var _ model.Codec = Serializer(nil)

// NewSerializerWithOptions options 为 nil 时使用 JSONSerializer
func NewSerializerWithOptions(options *ref.TypeOptions) (Serializer, error) {
	if options == nil {
		options = &ref.TypeOptions{
			Namespace: "github.com/hatlonely/korm/serializer",
			Type:      "JSONSerializer",
		}
	}
	obj, err := ref.NewWithOptions(options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.NewWithOptions failed")
	}
	s, ok := obj.(Serializer)
	if !ok {
		return nil, errors.Errorf("%s:%s is not a Serializer", options.Namespace, options.Type)
	}
	return s, nil
}

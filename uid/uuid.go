package uid

import (
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type UUIDOptions struct {
	Version string `cfg:"version" def:"v4" validate:"oneof=v1 v4 v6 v7"`
	// WithHyphens 为 false 时输出 32 位十六进制，列长度需要相应调整
	WithHyphens bool `cfg:"withHyphens" def:"true"`
}

type UUIDGenerator struct {
	newUUID     func() (uuid.UUID, error)
	withHyphens bool
}

func NewUUIDGeneratorWithOptions(options *UUIDOptions) (*UUIDGenerator, error) {
	if options == nil {
		options = &UUIDOptions{Version: "v4", WithHyphens: true}
	}
	g := &UUIDGenerator{withHyphens: options.WithHyphens}
	switch options.Version {
	case "v1":
		g.newUUID = uuid.NewUUID
	case "", "v4":
		g.newUUID = uuid.NewRandom
	case "v6":
		g.newUUID = uuid.NewV6
	case "v7":
		g.newUUID = uuid.NewV7
	default:
		return nil, errors.Errorf("unsupported uuid version %q", options.Version)
	}
	return g, nil
}

func (g *UUIDGenerator) Generate() string {
	u := uuid.Must(g.newUUID())
	if g.withHyphens {
		return u.String()
	}
	return hex.EncodeToString(u[:])
}

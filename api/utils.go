package api

import (
	"io"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

const maxBodySize = 64 << 10

// JSONSerializer plugs sonic into echo's c.JSON and c.Bind.
type JSONSerializer struct{}

func (JSONSerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := sonic.ConfigStd.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (JSONSerializer) Deserialize(c echo.Context, i interface{}) error {
	return decodeBody(c.Request().Body, i)
}

// decodeBody reads a single JSON value of at most maxBodySize bytes.
// Unknown fields are ignored.
func decodeBody(r io.Reader, out any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(r, maxBodySize))
	return dec.Decode(out)
}

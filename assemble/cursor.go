package assemble

import (
	"encoding/base64"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/apiforge/forge"
)

// cursor is the decoded form of the opaque pagination token. It pins the
// absolute offset of a record within the filtered, ordered result set; the
// model name guards against replaying a cursor across operations.
type cursor struct {
	Model  string `msgpack:"m"`
	Offset int    `msgpack:"o"`
}

func encodeCursor(c cursor) string {
	raw, err := msgpack.Marshal(c)
	if err != nil {
		// A two-field struct of builtins cannot fail to encode.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(model, token string) (cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return cursor{}, forge.NewValidationError("cursor", fmt.Errorf("malformed cursor"))
	}
	var c cursor
	if err := msgpack.Unmarshal(raw, &c); err != nil {
		return cursor{}, forge.NewValidationError("cursor", fmt.Errorf("malformed cursor"))
	}
	if c.Model != model || c.Offset < 0 {
		return cursor{}, forge.NewValidationError("cursor", fmt.Errorf("cursor does not belong to this operation"))
	}
	return c, nil
}

package nextrush

import (
	"encoding/json"

	"github.com/mitchellh/mapstructure"
)

// Bind decodes the request into dst based on its method and Content-Type,
// generalizing teacher binder.go's `Binder#Bind`: GET/HEAD/DELETE decode
// the query string, everything else dispatches through `Context.Body`
// (see bodyparser.go) the same way the body parser itself is chosen, then
// decodes the parsed value onto dst with `mapstructure` (form/query values)
// or `encoding/json` (JSON bodies).
func (c *Context) Bind(dst interface{}) error {
	switch c.Method {
	case "GET", "HEAD", "DELETE":
		return decodeValues(flattenQuery(c.Request.Query), dst)
	}

	body, err := c.Body()
	if err != nil {
		return err
	}

	switch body.Kind {
	case BodyJSON:
		b, err := json.Marshal(body.JSON)
		if err != nil {
			return ErrBadRequest("invalid json body")
		}
		if err := json.Unmarshal(b, dst); err != nil {
			return ErrBadRequest("cannot bind json body: " + err.Error())
		}
		return nil

	case BodyForm:
		return decodeValues(flattenQuery(body.Form), dst)

	case BodyMultipart:
		return decodeValues(flattenQuery(body.Multipart.Fields), dst)

	case BodyText:
		return ErrUnsupportedMediaType("cannot bind a text body")

	default:
		return ErrUnsupportedMediaType("no binder for this content type")
	}
}

// flattenQuery collapses a `url.Values` (string -> []string) into a plain
// string-keyed map, taking the last value for each key -- matching spec
// section 3's "query map (K->V, last-write-wins for duplicates)" semantics
// for the analogous form/query bind path.
func flattenQuery(v map[string][]string) map[string]interface{} {
	out := make(map[string]interface{}, len(v))
	for k, vals := range v {
		if len(vals) == 0 {
			continue
		}
		out[k] = vals[len(vals)-1]
	}
	return out
}

func decodeValues(src map[string]interface{}, dst interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		WeaklyTypedInput: true,
		TagName:          "form",
	})
	if err != nil {
		return ErrInternal(err)
	}

	if err := decoder.Decode(src); err != nil {
		return ErrBadRequest("cannot bind request: " + err.Error())
	}

	return nil
}

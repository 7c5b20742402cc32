package intercept

import (
	"fmt"
	"strings"
)

// CyclePlaceholder stands in for a container that encloses itself.
const CyclePlaceholder = "<cycle>"

// Render formats v the way fmt's %v does for plain data, except that a
// record or sequence reached again while it is still being printed renders
// as CyclePlaceholder. Record keys come out sorted.
func Render(v any) string {
	var b strings.Builder
	render(&b, unwrapValue(v), make(map[cloneKey]struct{}))
	return b.String()
}

func render(b *strings.Builder, v any, open map[cloneKey]struct{}) {
	switch c := v.(type) {
	case map[string]any:
		if c == nil {
			b.WriteString("map[]")
			return
		}
		id := cloneKey{id: identity(c), n: -1}
		if _, ok := open[id]; ok {
			b.WriteString(CyclePlaceholder)
			return
		}
		open[id] = struct{}{}
		b.WriteString("map[")
		for i, k := range sortedKeys(c) {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(k)
			b.WriteByte(':')
			render(b, unwrapValue(c[k]), open)
		}
		b.WriteByte(']')
		delete(open, id)

	case []any:
		if len(c) > 0 {
			id := cloneKey{id: identity(c), n: len(c)}
			if _, ok := open[id]; ok {
				b.WriteString(CyclePlaceholder)
				return
			}
			open[id] = struct{}{}
			defer delete(open, id)
		}
		b.WriteByte('[')
		for i, el := range c {
			if i > 0 {
				b.WriteByte(' ')
			}
			render(b, unwrapValue(el), open)
		}
		b.WriteByte(']')

	default:
		fmt.Fprint(b, v)
	}
}

package preview

import (
	"path/filepath"
	"strings"
)

const ellipsis = "..."

// TruncateName shortens name to at most limit runes by cutting the middle
// of the base name, keeping the extension intact.
func TruncateName(name string, limit int) string {
	runes := []rune(name)
	if limit <= 0 || len(runes) <= limit {
		return name
	}
	ext := []rune(filepath.Ext(name))
	if len(ext) == len(runes) {
		ext = nil
	}
	base := runes[:len(runes)-len(ext)]
	keep := limit - len(ext) - len(ellipsis)
	if keep < 2 {
		// extension too long to keep, cut from the end instead
		if limit <= len(ellipsis) {
			return string(runes[:limit])
		}
		return string(runes[:limit-len(ellipsis)]) + ellipsis
	}
	head := (keep + 1) / 2
	tail := keep - head
	var b strings.Builder
	b.WriteString(string(base[:head]))
	b.WriteString(ellipsis)
	b.WriteString(string(base[len(base)-tail:]))
	b.WriteString(string(ext))
	return b.String()
}

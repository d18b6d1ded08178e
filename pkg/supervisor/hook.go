package supervisor

import (
	"strconv"
	"strings"
)

// ExpandHookCommand replaces %p with pid and %% with a literal % in the
// configured on_timeout_cmd template.
func ExpandHookCommand(template string, pid int) string {
	var b strings.Builder
	pidStr := strconv.Itoa(pid)
	for i := 0; i < len(template); i++ {
		c := template[i]
		if c != '%' || i+1 >= len(template) {
			b.WriteByte(c)
			continue
		}
		switch template[i+1] {
		case 'p':
			b.WriteString(pidStr)
			i++
		case '%':
			b.WriteByte('%')
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

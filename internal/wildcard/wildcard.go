// Package wildcard expands the $-token template language used by job
// command strings.
//
// Expansion is a single left-to-right pass: replacement text is emitted
// directly and never re-scanned, so an event-controlled filename containing
// token syntax can never inject a second substitution. Every substituted
// value is shell-quoted; `$$` yields a literal `$`; unrecognized `$word`
// tokens pass through verbatim so configuration authors can still use
// shell-native variables.
package wildcard

import (
	"strconv"
	"strings"

	"github.com/direwatch/direwatch/pkg/models"
)

// Expand substitutes the per-event tokens of a primary command template:
// $job, $folder, $watched, $filename, $tflags, $nflags, $cookie.
func Expand(template string, ctx *models.ExecutionContext) string {
	return scan(template, bindings(ctx, false))
}

// ExpandFollowup substitutes a follow-up command template, which additionally
// binds $output (the primary command's captured output, possibly empty) and
// $host (the local hostname).
func ExpandFollowup(template string, ctx *models.ExecutionContext) string {
	return scan(template, bindings(ctx, true))
}

// Quote wraps a value in single quotes with embedded quotes escaped, the
// POSIX-shell-safe form.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func bindings(ctx *models.ExecutionContext, followup bool) map[string]string {
	bind := map[string]string{
		"job":      Quote(ctx.Job),
		"folder":   Quote(ctx.Folder),
		"watched":  Quote(ctx.Watched),
		"filename": Quote(ctx.Filename),
		"tflags":   Quote(ctx.Kinds.String()),
		"nflags":   Quote(ctx.Kinds.Numeric()),
		"cookie":   Quote(strconv.FormatUint(uint64(ctx.Cookie), 10)),
	}
	if followup {
		bind["output"] = Quote(ctx.Output)
		bind["host"] = Quote(ctx.Host)
	}
	return bind
}

// scan is the single forward pass emitting either a literal run or a
// resolved token, never revisiting emitted output.
func scan(template string, bind map[string]string) string {
	var b strings.Builder
	b.Grow(len(template) + 32)

	for i := 0; i < len(template); {
		if template[i] != '$' {
			b.WriteByte(template[i])
			i++
			continue
		}

		// $$ is a literal dollar sign
		if i+1 < len(template) && template[i+1] == '$' {
			b.WriteByte('$')
			i += 2
			continue
		}

		j := i + 1
		for j < len(template) && isWordByte(template[j]) {
			j++
		}
		word := template[i+1 : j]

		if val, ok := bind[word]; ok {
			b.WriteString(val)
		} else {
			// unknown token, keep verbatim
			b.WriteString(template[i:j])
		}
		i = j
	}

	return b.String()
}

func isWordByte(c byte) bool {
	return c == '_' ||
		('a' <= c && c <= 'z') ||
		('A' <= c && c <= 'Z') ||
		('0' <= c && c <= '9')
}

package util

import (
	"strings"
	"time"
)

// dateTpl maps template placeholders to Go layout tokens. YYYY is listed
// before YY so the replacer never splits a four-digit year.
var dateTpl = strings.NewReplacer(
	"YYYY", "2006",
	"YY", "06",
	"MM", "01",
	"DD", "02",
	"hh", "15",
	"mm", "04",
	"ss", "05",
)

// FormatDate formats t with a placeholder template such as "YYYY-MM-DD hh:mm".
// The zero time formats as "".
func FormatDate(t time.Time, tpl string) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateTpl.Replace(tpl))
}

package display

import (
	"fmt"
	"io"

	"github.com/backmassage/meshbatch/internal/term"
)

const banner = `                   _     _           _       _
 _ __ ___   ___ ___| |__ | |__   __ _| |_ ___| |__
| '_ ` + "`" + ` _ \ / _ / __| '_ \| '_ \ / _` + "`" + ` | __/ __| '_ \
| | | | | |  __\__ \ | | | |_) | (_| | || (__| | | |
|_| |_| |_|\___|___/_| |_|_.__/ \__,_|\__\___|_| |_|
`

// PrintBanner writes the ASCII art banner and version; magenta if colors are
// enabled.
func PrintBanner(w io.Writer, version string) {
	fmt.Fprint(w, term.Paint(term.Magenta, banner))
	fmt.Fprintf(w, "  v%s\n\n", version)
}

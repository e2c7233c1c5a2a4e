package tui

import (
	"fmt"
	"io"
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Printer writes coloured run reports. Colours are dropped when the output
// is not a terminal.
type Printer struct {
	out     io.Writer
	profile termenv.Profile
}

// NewPrinter creates a printer for out.
func NewPrinter(out io.Writer) *Printer {
	profile := termenv.Ascii
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		profile = termenv.EnvColorProfile()
	}
	return &Printer{out: out, profile: profile}
}

func (p *Printer) paint(s, hex string) termenv.Style {
	return p.profile.String(s).Foreground(p.profile.Color(hex))
}

// Banner outputs the ASCII art banner.
func (p *Printer) Banner() {
	lines := []struct{ text, color string }{
		{` ____      _                                _ `, "#818cf8"},
		{`|  _ \ ___| |__   ___  __ _ _ __ ___  __ _| |`, "#a78bfa"},
		{`| |_) / _ \ '_ \ / _ \/ _' | '__/ __|/ _' | |`, "#c084fc"},
		{`|  _ <  __/ | | |  __/ (_| | |  \__ \ (_| | |`, "#e879f9"},
		{`|_| \_\___|_| |_|\___|\__,_|_|  |___/\__,_|_|`, "#f472b6"},
	}
	fmt.Fprintln(p.out)
	for _, l := range lines {
		fmt.Fprintln(p.out, p.paint(l.text, l.color))
	}
	fmt.Fprintln(p.out)
}

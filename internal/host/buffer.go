package host

import (
	"bytes"
	"fmt"
	"strings"

	"qmk-keymap-preview/internal/filedoc"

	"github.com/neovim/go-client/nvim"
)

// bufferDocument exposes a Neovim buffer as a preview document.
type bufferDocument struct {
	v   *nvim.Nvim
	buf nvim.Buffer
	uri string
}

func newBufferDocument(v *nvim.Nvim, buf nvim.Buffer) (*bufferDocument, error) {
	name, err := v.BufferName(buf)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("buffer %d has no file name", buf)
	}
	return &bufferDocument{v: v, buf: buf, uri: filedoc.FileURI(name)}, nil
}

func (d *bufferDocument) URI() string {
	return d.uri
}

func (d *bufferDocument) Text() (string, error) {
	lines, err := d.v.BufferLines(d.buf, 0, -1, true)
	if err != nil {
		return "", err
	}
	eol, err := d.endsWithNewline()
	if err != nil {
		return "", err
	}
	return joinLines(lines, eol), nil
}

// endsWithNewline reports whether writing the buffer adds a final newline.
// 'fixeol' restores one even when 'eol' is off.
func (d *bufferDocument) endsWithNewline() (bool, error) {
	var eol, fixeol bool
	if err := d.v.BufferOption(d.buf, "endofline", &eol); err != nil {
		return false, err
	}
	if err := d.v.BufferOption(d.buf, "fixendofline", &fixeol); err != nil {
		return false, err
	}
	return eol || fixeol, nil
}

// Replace swaps every line of the buffer, last line included.
func (d *bufferDocument) Replace(text string) error {
	valid, err := d.v.IsBufferValid(d.buf)
	if err != nil {
		return err
	}
	if !valid {
		return fmt.Errorf("buffer %d is no longer valid", d.buf)
	}
	return d.v.SetBufferLines(d.buf, 0, -1, true, splitLines(text))
}

// joinLines renders buffer lines as file text. Neovim keeps the final
// newline implicit, so it is added back here when eol is set.
func joinLines(lines [][]byte, eol bool) string {
	if len(lines) == 0 || (len(lines) == 1 && len(lines[0]) == 0) {
		return ""
	}
	text := string(bytes.Join(lines, []byte("\n")))
	if eol {
		text += "\n"
	}
	return text
}

// splitLines is the inverse of joinLines: one trailing newline terminates the
// last line instead of opening an empty one. CRLF endings are folded to LF.
func splitLines(text string) [][]byte {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")

	parts := strings.Split(text, "\n")
	lines := make([][]byte, len(parts))
	for i, part := range parts {
		lines[i] = []byte(part)
	}
	return lines
}

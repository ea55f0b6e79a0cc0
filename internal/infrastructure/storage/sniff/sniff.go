// Package sniff detects the content type of a stream without consuming it.
package sniff

import (
	"bufio"
	"io"
	"net/http"
)

const sniffLen = 512

// Reader returns a reader that still yields all of r plus the MIME type
// detected from its first bytes.
func Reader(r io.Reader) (io.Reader, string) {
	br := bufio.NewReaderSize(r, sniffLen)
	head, _ := br.Peek(sniffLen)
	return br, http.DetectContentType(head)
}

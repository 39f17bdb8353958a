package transport

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
)

// Content types used on HAP over IP.
const (
	ContentTypeJSON = "application/hap+json"
	ContentTypeTLV8 = "application/pairing+tlv8"
)

// eventProto starts every unsolicited notification.
const eventProto = "EVENT/1.0"

// message is an HTTP response or an EVENT notification.
type message struct {
	event  bool
	status int
	header http.Header
	body   []byte
}

// writeRequest renders a request in one write so it leaves in as few
// encrypted frames as possible.
func writeRequest(w io.Writer, host, method, path, contentType string, body []byte) error {
	var rd io.Reader
	if len(body) > 0 {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, "http://"+host+path, rd)
	if err != nil {
		return err
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", contentType)
	}

	var buf bytes.Buffer
	if err := req.Write(&buf); err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// readMessage reads the next response or EVENT from br.
func readMessage(br *bufio.Reader) (*message, error) {
	peek, err := br.Peek(len(eventProto))
	if err != nil {
		return nil, err
	}
	if string(peek) == eventProto {
		return readEvent(br)
	}

	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &message{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

// readEvent parses an EVENT/1.0 message, which net/http rejects because of
// its protocol name.
func readEvent(br *bufio.Reader) (*message, error) {
	tp := textproto.NewReader(br)
	line, err := tp.ReadLine()
	if err != nil {
		return nil, err
	}
	proto, rest, ok := strings.Cut(line, " ")
	if !ok || proto != eventProto {
		return nil, fmt.Errorf("%w: status line %q", ErrMalformedMessage, line)
	}
	code, _, _ := strings.Cut(rest, " ")
	status, err := strconv.Atoi(code)
	if err != nil {
		return nil, fmt.Errorf("%w: status line %q", ErrMalformedMessage, line)
	}

	hdr, err := tp.ReadMIMEHeader()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	n, err := strconv.Atoi(hdr.Get("Content-Length"))
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: event without content length", ErrMalformedMessage)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(br, body); err != nil {
		return nil, err
	}
	return &message{event: true, status: status, header: http.Header(hdr), body: body}, nil
}

// WriteEvent renders an EVENT/1.0 notification carrying a JSON body.
func WriteEvent(w io.Writer, body []byte) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s 200 OK\r\nContent-Type: %s\r\nContent-Length: %d\r\n\r\n", eventProto, ContentTypeJSON, len(body))
	buf.Write(body)
	_, err := w.Write(buf.Bytes())
	return err
}

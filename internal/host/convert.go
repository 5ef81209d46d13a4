package host

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"golang.org/x/net/html/charset"
)

// maxDecodedBytes caps decompressed bodies.
const maxDecodedBytes = 8 << 20

var textMediaTypes = []string{
	"application/json",
	"application/javascript",
	"application/xml",
	"application/xhtml+xml",
	"application/x-www-form-urlencoded",
}

// NewHTTPRequest serializes an outgoing request. The body is not captured.
func NewHTTPRequest(req *http.Request) *HTTPRequest {
	if req == nil {
		return nil
	}

	path := req.URL.RequestURI()
	headers := make([]string, 0, len(req.Header)+1)
	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	headers = append(headers, "Host: "+host)
	headers = append(headers, FormatHeaders(req.Header)...)

	proto := req.Proto
	if proto == "" {
		proto = "HTTP/1.1"
	}

	return &HTTPRequest{
		Method:   req.Method,
		Path:     path,
		Protocol: proto,
		Headers:  headers,
		Body:     Body{Type: BodyNone},
	}
}

// NewHTTPResponse serializes a response snapshot. raw is the body as received
// on the wire and is decoded according to the response headers.
func NewHTTPResponse(status int, statusLine, proto string, header http.Header, raw []byte) *HTTPResponse {
	message := strings.TrimSpace(strings.TrimPrefix(statusLine, strconv.Itoa(status)))
	if message == "" {
		message = http.StatusText(status)
	}

	return &HTTPResponse{
		Code:     strconv.Itoa(status),
		Message:  message,
		Protocol: proto,
		Headers:  FormatHeaders(header),
		Body:     DecodeBody(header, raw),
	}
}

// FormatHeaders renders headers as sorted "Name: value" lines.
func FormatHeaders(header http.Header) []string {
	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		for _, v := range header[k] {
			lines = append(lines, k+": "+v)
		}
	}
	return lines
}

// DecodeBody decompresses raw according to Content-Encoding and, when the
// content is textual, converts it to UTF-8 using the declared or sniffed
// charset. Anything else is returned as base64.
func DecodeBody(header http.Header, raw []byte) Body {
	if len(raw) == 0 {
		return Body{Type: BodyNone}
	}

	data := decompress(header.Get("Content-Encoding"), raw)
	contentType := header.Get("Content-Type")

	if isText(contentType, data) {
		if text, ok := decodeText(contentType, data); ok {
			return Body{Type: BodyText, Payload: &text}
		}
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	return Body{Type: BodyBinary, Payload: &encoded}
}

// PayloadLength returns the number of characters in a text body, or 0 when
// the body is absent or binary.
func PayloadLength(b Body) int {
	if !b.IsText() {
		return 0
	}
	return utf8.RuneCountInString(*b.Payload)
}

func decompress(encoding string, raw []byte) []byte {
	var (
		r   io.Reader
		err error
	)
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip":
		r, err = gzip.NewReader(bytes.NewReader(raw))
	case "deflate":
		// Servers disagree on whether deflate means zlib-wrapped or raw.
		r, err = zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			r, err = flate.NewReader(bytes.NewReader(raw)), nil
		}
	default:
		return raw
	}
	if err != nil {
		return raw
	}

	out, err := io.ReadAll(io.LimitReader(r, maxDecodedBytes))
	if err != nil && len(out) == 0 {
		// Truncated captures still yield a usable prefix.
		return raw
	}
	return out
}

func isText(contentType string, data []byte) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if strings.HasPrefix(mediaType, "text/") {
			return true
		}
		for _, t := range textMediaTypes {
			if mediaType == t {
				return true
			}
		}
		if strings.HasSuffix(mediaType, "+json") || strings.HasSuffix(mediaType, "+xml") {
			return true
		}
	}

	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func decodeText(contentType string, data []byte) (string, bool) {
	r, err := charset.NewReader(bytes.NewReader(data), contentType)
	if err != nil {
		return "", false
	}
	out, err := io.ReadAll(r)
	if err != nil || !utf8.Valid(out) {
		return "", false
	}
	return string(out), true
}

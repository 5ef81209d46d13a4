package host

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zlibbed(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDecodeBody(t *testing.T) {
	pngHeader := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

	tests := []struct {
		name     string
		header   http.Header
		raw      []byte
		wantType BodyType
		wantText string
	}{
		{
			name:     "empty",
			header:   http.Header{},
			raw:      nil,
			wantType: BodyNone,
		},
		{
			name:     "plain text",
			header:   http.Header{"Content-Type": {"text/plain"}},
			raw:      []byte("hello"),
			wantType: BodyText,
			wantText: "hello",
		},
		{
			name:     "sniffed html without content type",
			header:   http.Header{},
			raw:      []byte("<html><body>hi</body></html>"),
			wantType: BodyText,
			wantText: "<html><body>hi</body></html>",
		},
		{
			name:     "json",
			header:   http.Header{"Content-Type": {"application/json"}},
			raw:      []byte(`{"ok":true}`),
			wantType: BodyText,
			wantText: `{"ok":true}`,
		},
		{
			name:     "gzip",
			header:   http.Header{"Content-Type": {"text/plain"}, "Content-Encoding": {"gzip"}},
			raw:      gzipped(t, "compressed text"),
			wantType: BodyText,
			wantText: "compressed text",
		},
		{
			name:     "deflate",
			header:   http.Header{"Content-Type": {"text/plain"}, "Content-Encoding": {"deflate"}},
			raw:      zlibbed(t, "deflated text"),
			wantType: BodyText,
			wantText: "deflated text",
		},
		{
			name:     "gbk charset",
			header:   http.Header{"Content-Type": {"text/html; charset=gbk"}},
			raw:      []byte{0xB9, 0xDC, 0xC0, 0xED},
			wantType: BodyText,
			wantText: "管理",
		},
		{
			name:     "binary",
			header:   http.Header{"Content-Type": {"image/png"}},
			raw:      pngHeader,
			wantType: BodyBinary,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := DecodeBody(tt.header, tt.raw)
			assert.Equal(t, tt.wantType, body.Type)

			switch tt.wantType {
			case BodyNone:
				assert.Nil(t, body.Payload)
				assert.Equal(t, 0, PayloadLength(body))
			case BodyText:
				require.NotNil(t, body.Payload)
				assert.Equal(t, tt.wantText, *body.Payload)
				assert.Equal(t, len([]rune(tt.wantText)), PayloadLength(body))
			case BodyBinary:
				require.NotNil(t, body.Payload)
				decoded, err := base64.StdEncoding.DecodeString(*body.Payload)
				require.NoError(t, err)
				assert.Equal(t, tt.raw, decoded)
				assert.Equal(t, 0, PayloadLength(body))
			}
		})
	}
}

func TestNewHTTPRequest(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.com:8080/admin?x=1", http.NoBody)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	got := NewHTTPRequest(req)
	require.NotNil(t, got)
	assert.Equal(t, "GET", got.Method)
	assert.Equal(t, "/admin?x=1", got.Path)
	assert.Equal(t, "HTTP/1.1", got.Protocol)
	assert.Equal(t, []string{
		"Host: example.com:8080",
		"Accept-Encoding: gzip, deflate",
		"User-Agent: test-agent",
	}, got.Headers)
	assert.Equal(t, BodyNone, got.Body.Type)

	assert.Nil(t, NewHTTPRequest(nil))
}

func TestNewHTTPResponse(t *testing.T) {
	header := http.Header{"Content-Type": {"text/plain"}, "Location": {"/next"}}
	resp := NewHTTPResponse(302, "302 Found", "HTTP/1.1", header, []byte("moved"))

	assert.Equal(t, "302", resp.Code)
	assert.Equal(t, "Found", resp.Message)
	assert.Equal(t, []string{"Content-Type: text/plain", "Location: /next"}, resp.Headers)
	assert.Equal(t, 5, PayloadLength(resp.Body))

	bare := NewHTTPResponse(200, "", "HTTP/1.1", http.Header{}, nil)
	assert.Equal(t, "OK", bare.Message)
}

func TestRowJSONShape(t *testing.T) {
	row := Row{
		Data:    []any{"http://example.com/robots.txt", 200, 14},
		Request: &HTTPRequest{Method: "GET", Path: "/robots.txt", Protocol: "HTTP/1.1", Headers: []string{}},
	}

	raw, err := json.Marshal(row)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, []any{"http://example.com/robots.txt", float64(200), float64(14)}, decoded["data"])
	assert.NotContains(t, decoded, "response")

	body := decoded["request"].(map[string]any)["body"].(map[string]any)
	assert.Equal(t, float64(0), body["type"])
	assert.Nil(t, body["payload"])
}

func TestDescriptorJSON(t *testing.T) {
	d := Descriptor{
		Type:    PluginTypeTask,
		Request: true,
		Layout:  Layout{Headers: []Column{{Name: "URL", Index: 0}}},
	}
	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"typ":1,"request":true,"response":false,"layout":{"headers":[{"name":"URL","index":0}]}}`, string(raw))
}

func TestChannelSink(t *testing.T) {
	drops := 0
	sink := NewChannelSink(1).OnDrop(func() { drops++ })

	sink.Publish(RowBatch{{Data: []any{"a"}}})
	sink.Publish(RowBatch{{Data: []any{"b"}}})

	assert.Equal(t, int64(1), sink.Dropped())
	assert.Equal(t, 1, drops)

	batch := <-sink.C()
	assert.Equal(t, "a", batch[0].Data[0])
}

func TestJSONLinesSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONLinesSink(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink.Publish(RowBatch{{Data: []any{"x"}}, {Data: []any{"y"}}})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 10)
	for _, line := range lines {
		assert.True(t, json.Valid([]byte(line)), "line should be valid JSON: %s", line)
	}
}

func TestMultiSinkAndSinkFunc(t *testing.T) {
	var got []string
	record := func(name string) Sink {
		return SinkFunc(func(b RowBatch) { got = append(got, name) })
	}

	MultiSink{record("first"), nil, record("second")}.Publish(RowBatch{{}})
	assert.Equal(t, []string{"first", "second"}, got)
}

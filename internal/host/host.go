// Package host defines the boundary types exchanged with a plugin host: the
// observed traffic context, serialized request and response records, result
// rows and the sink rows are published to.
package host

//go:generate mockgen -source=host.go -destination=mocks/sink_mock.go -package=mocks Sink

// PluginType values reported in a Descriptor.
const (
	PluginTypeTask = 1
)

// Context describes where an observed request came from.
type Context struct {
	ID     string `json:"id,omitempty"`
	URL    string `json:"url"`
	Scheme string `json:"scheme"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
	CID    int64  `json:"cid,omitempty"`
	CTime  int64  `json:"ctime,omitempty"`
	SID    int64  `json:"sid,omitempty"`
	STime  int64  `json:"stime,omitempty"`
}

// BodyType tells how Body.Payload is encoded.
type BodyType int

const (
	BodyNone   BodyType = 0
	BodyText   BodyType = 1
	BodyBinary BodyType = 2
)

// Body is a serialized message body. Text payloads are UTF-8; binary payloads
// are base64.
type Body struct {
	Type    BodyType `json:"type"`
	Payload *string  `json:"payload"`
}

// IsText reports whether the payload holds decoded text.
func (b Body) IsText() bool {
	return b.Type == BodyText && b.Payload != nil
}

// HTTPRequest is the host's serialized request form. Headers are "Name: value" lines.
type HTTPRequest struct {
	Method   string   `json:"method"`
	Path     string   `json:"path"`
	Protocol string   `json:"protocol"`
	Headers  []string `json:"headers"`
	Body     Body     `json:"body"`
}

// HTTPResponse is the host's serialized response form.
type HTTPResponse struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Protocol string   `json:"protocol"`
	Headers  []string `json:"headers"`
	Body     Body     `json:"body"`
}

// Row is one result record. Data is aligned to the descriptor's columns.
type Row struct {
	Data     []any         `json:"data"`
	Context  *Context      `json:"context,omitempty"`
	Request  *HTTPRequest  `json:"request,omitempty"`
	Response *HTTPResponse `json:"response,omitempty"`
}

// RowBatch is an ordered group of rows published together.
type RowBatch []Row

// Column is one entry of the result table layout.
type Column struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

// Layout is the result table layout.
type Layout struct {
	Headers []Column `json:"headers"`
}

// Descriptor declares a plugin's capabilities to the host.
type Descriptor struct {
	Type     int    `json:"typ"`
	Request  bool   `json:"request"`
	Response bool   `json:"response"`
	Layout   Layout `json:"layout"`
}

// Sink receives published result rows. Implementations must be safe for
// concurrent use and should not block for long.
type Sink interface {
	Publish(batch RowBatch)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(batch RowBatch)

// Publish calls f(batch).
func (f SinkFunc) Publish(batch RowBatch) {
	f(batch)
}

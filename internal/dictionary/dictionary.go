// Package dictionary loads the candidate path list probed against every target.
//
// A dictionary is a plain text file with one path per line. Blank lines and
// lines starting with "#", ";" or "//" are ignored. The file's text encoding is
// not declared, so a fixed list of candidate encodings is tried in order and the
// first one that decodes cleanly wins.
package dictionary

import (
	"bufio"
	"bytes"
	stderrors "errors"
	"io/fs"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"

	"github.com/anstrom/pathorama/internal/errors"
	"github.com/anstrom/pathorama/internal/logging"
)

// Encoding names reported by Dictionary.Encoding.
const (
	EncodingUTF8    = "utf-8"
	EncodingGB18030 = "gb18030"
	EncodingLatin1  = "latin-1"
)

var commentPrefixes = []string{"#", ";", "//"}

type candidate struct {
	name   string
	decode func([]byte) ([]byte, bool)
}

// candidates is the ordered list of encodings tried by Parse.
var candidates = []candidate{
	{EncodingUTF8, decodeUTF8},
	{EncodingGB18030, decodeWith(simplifiedchinese.GB18030)},
	{EncodingLatin1, decodeWith(charmap.ISO8859_1)},
}

// PathSet is an immutable, deduplicated set of normalized paths. It is built
// once and shared read-only by every scanner.
type PathSet struct {
	paths []string
	index map[string]struct{}
}

// NewPathSet builds a PathSet from already-normalized paths.
func NewPathSet(paths ...string) *PathSet {
	ps := &PathSet{index: make(map[string]struct{}, len(paths))}
	for _, p := range paths {
		if _, ok := ps.index[p]; ok {
			continue
		}
		ps.index[p] = struct{}{}
		ps.paths = append(ps.paths, p)
	}
	sort.Strings(ps.paths)
	return ps
}

// Len returns the number of paths.
func (ps *PathSet) Len() int {
	if ps == nil {
		return 0
	}
	return len(ps.paths)
}

// Contains reports whether p is in the set.
func (ps *PathSet) Contains(p string) bool {
	if ps == nil {
		return false
	}
	_, ok := ps.index[p]
	return ok
}

// Paths returns the paths in sorted order. The returned slice must not be modified.
func (ps *PathSet) Paths() []string {
	if ps == nil {
		return nil
	}
	return ps.paths
}

// Dictionary is a loaded path dictionary.
type Dictionary struct {
	Source   string
	Encoding string
	Paths    *PathSet
}

// Load reads and parses the dictionary file at path. A missing or unreadable
// file is reported with CodeFileNotFound or CodeFilePermission.
func Load(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		code := errors.CodeFilePermission
		if stderrors.Is(err, fs.ErrNotExist) {
			code = errors.CodeFileNotFound
		}
		logging.Error("Load path from dictionary failed", "path", path, "error", err)
		return nil, errors.WrapDictionaryError(code, "Failed to read dictionary", path, err)
	}

	dict, err := parse(data, path)
	if err != nil {
		return nil, err
	}
	dict.Source = path
	return dict, nil
}

// Parse parses dictionary content held in memory.
func Parse(data []byte) (*Dictionary, error) {
	return parse(data, "")
}

func parse(data []byte, source string) (*Dictionary, error) {
	for _, enc := range candidates {
		text, ok := enc.decode(data)
		if !ok {
			continue
		}

		paths := NewPathSet(parseLines(text)...)
		logging.Info("Loaded paths from dictionary",
			"path", source,
			"paths", paths.Len(),
			"encoding", enc.name)

		if paths.Len() == 0 {
			return nil, errors.ErrDictionaryEmpty(source, enc.name)
		}
		return &Dictionary{Source: source, Encoding: enc.name, Paths: paths}, nil
	}

	logging.Error("Load path from dictionary failed: no encoding matched", "path", source)
	return nil, errors.ErrDictionaryDecode(source)
}

// parseLines returns the normalized form of every non-comment line.
func parseLines(text []byte) []string {
	var out []string
	scanner := bufio.NewScanner(bytes.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || isComment(line) {
			continue
		}
		if p := NormalizePath(line); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isComment(line string) bool {
	for _, prefix := range commentPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// NormalizePath trims whitespace, strips leading slashes and percent-encodes p.
func NormalizePath(p string) string {
	p = strings.TrimLeft(strings.TrimSpace(p), "/")
	return QuotePath(p)
}

// QuotePath percent-encodes every byte outside the unreserved set, keeping "/"
// literal. Bytes are encoded as upper-case %XX.
func QuotePath(p string) string {
	const hex = "0123456789ABCDEF"

	var b strings.Builder
	b.Grow(len(p))
	for i := 0; i < len(p); i++ {
		c := p[i]
		if shouldKeep(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func shouldKeep(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '_', c == '.', c == '-', c == '~', c == '/':
		return true
	}
	return false
}

func decodeUTF8(data []byte) ([]byte, bool) {
	if !utf8.Valid(data) {
		return nil, false
	}
	out, err := unicode.UTF8BOM.NewDecoder().Bytes(data)
	if err != nil {
		return nil, false
	}
	return out, true
}

// decodeWith decodes using enc and treats any replacement rune that was not
// already present in the input as a decode failure.
func decodeWith(enc encoding.Encoding) func([]byte) ([]byte, bool) {
	return func(data []byte) ([]byte, bool) {
		out, err := enc.NewDecoder().Bytes(data)
		if err != nil {
			return nil, false
		}
		if bytes.ContainsRune(out, utf8.RuneError) && !bytes.Contains(data, []byte(string(utf8.RuneError))) {
			return nil, false
		}
		return out, true
	}
}

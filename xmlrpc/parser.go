package xmlrpc

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/openrobots-dev/urosnode/roserr"
)

func decodeBase64(s string) []byte {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

// DefaultReadBufferLen matches the original's 128-byte pull-parser buffer
// (spec.md §4.C, configurable via rpc.parser.read_buffer_len in spec.md §6).
const DefaultReadBufferLen = 128

// parser is a streaming, pull-style recursive-descent reader over the
// narrow XML-RPC dialect spec.md §4.C specifies. It is deliberately not a
// general XML parser: no namespaces, no attributes beyond what's ignored,
// and it tolerates a bare <string>value</string> wherever a <value> wrapper
// is expected, because the ROS Master occasionally sends exactly that.
type parser struct {
	r *bufio.Reader
}

func newParser(r io.Reader, readBufferLen int) *parser {
	if readBufferLen <= 0 {
		readBufferLen = DefaultReadBufferLen
	}
	return &parser{r: bufio.NewReaderSize(r, readBufferLen)}
}

// MethodCall is a decoded <methodCall>.
type MethodCall struct {
	Name   string
	Params []Value
}

// ParseMethodCall decodes a <?xml...?><methodCall>...</methodCall> document.
func ParseMethodCall(r io.Reader, readBufferLen int) (*MethodCall, error) {
	p := newParser(r, readBufferLen)
	if err := p.skipProlog(); err != nil {
		return nil, err
	}
	if err := p.expectOpen("methodCall"); err != nil {
		return nil, err
	}
	name, err := p.readTextElement("methodName")
	if err != nil {
		return nil, err
	}
	params, err := p.readParams()
	if err != nil {
		return nil, err
	}
	if err := p.expectClose("methodCall"); err != nil {
		return nil, err
	}
	return &MethodCall{Name: name, Params: params}, nil
}

// MethodResponse is a decoded <methodResponse>: either a single value or a
// fault with (code, message).
type MethodResponse struct {
	Value      Value
	IsFault    bool
	FaultCode  int32
	FaultMsg   string
}

// ParseMethodResponse decodes a <?xml...?><methodResponse>...</methodResponse>.
func ParseMethodResponse(r io.Reader, readBufferLen int) (*MethodResponse, error) {
	p := newParser(r, readBufferLen)
	if err := p.skipProlog(); err != nil {
		return nil, err
	}
	if err := p.expectOpen("methodResponse"); err != nil {
		return nil, err
	}
	p.skipWhitespace()
	tag, err := p.peekTagName()
	if err != nil {
		return nil, err
	}
	resp := &MethodResponse{}
	if tag == "fault" {
		if err := p.expectOpen("fault"); err != nil {
			return nil, err
		}
		v, err := p.readValue()
		if err != nil {
			return nil, err
		}
		if err := p.expectClose("fault"); err != nil {
			return nil, err
		}
		s, _ := v.(Struct)
		resp.IsFault = true
		if code, ok := s["faultCode"]; ok {
			resp.FaultCode = toInt32(code)
		}
		if msg, ok := s["faultString"]; ok {
			resp.FaultMsg, _ = msg.(string)
		}
	} else {
		params, err := p.readParams()
		if err != nil {
			return nil, err
		}
		if len(params) > 0 {
			resp.Value = params[0]
		}
	}
	if err := p.expectClose("methodResponse"); err != nil {
		return nil, err
	}
	return resp, nil
}

func toInt32(v Value) int32 {
	switch t := v.(type) {
	case int32:
		return t
	case int:
		return int32(t)
	case int64:
		return int32(t)
	}
	return 0
}

func (p *parser) readParams() ([]Value, error) {
	p.skipWhitespace()
	tag, err := p.peekTagName()
	if err != nil {
		return nil, err
	}
	if tag != "params" {
		return nil, nil
	}
	if err := p.expectOpen("params"); err != nil {
		return nil, err
	}
	var values []Value
	for {
		p.skipWhitespace()
		tag, err := p.peekTagName()
		if err != nil {
			return nil, err
		}
		if tag == "/params" {
			break
		}
		if err := p.expectOpen("param"); err != nil {
			return nil, err
		}
		v, err := p.readValue()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		if err := p.expectClose("param"); err != nil {
			return nil, err
		}
	}
	if err := p.expectClose("params"); err != nil {
		return nil, err
	}
	return values, nil
}

// readValue decodes a <value>...</value> element. Per spec.md §4.C it must
// tolerate a bare scalar element (most commonly <string>) with no enclosing
// <value> tag, which is why the caller paths into this function are allowed
// to see either "value" or, e.g., "string" as the next open tag.
func (p *parser) readValue() (Value, error) {
	p.skipWhitespace()
	tag, err := p.peekTagName()
	if err != nil {
		return nil, err
	}
	wrapped := tag == "value"
	if wrapped {
		if err := p.expectOpen("value"); err != nil {
			return nil, err
		}
		p.skipWhitespace()
		tag, err = p.peekTagName()
		if err != nil {
			return nil, err
		}
	}

	var value Value
	switch tag {
	case "i4", "int":
		text, err := p.readTextElement(tag)
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 32)
		if err != nil {
			return nil, roserr.Wrap(roserr.PARSE, "xmlrpc: bad int", err)
		}
		value = int32(n)
	case "boolean":
		text, err := p.readTextElement("boolean")
		if err != nil {
			return nil, err
		}
		value = strings.TrimSpace(text) == "1"
	case "double":
		text, err := p.readTextElement("double")
		if err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return nil, roserr.Wrap(roserr.PARSE, "xmlrpc: bad double", err)
		}
		value = f
	case "string":
		text, err := p.readTextElement("string")
		if err != nil {
			return nil, err
		}
		value = unescapeText(text)
	case "base64":
		text, err := p.readTextElement("base64")
		if err != nil {
			return nil, err
		}
		value = Base64(decodeBase64(strings.TrimSpace(text)))
	case "dateTime.iso8601":
		text, err := p.readTextElement("dateTime.iso8601")
		if err != nil {
			return nil, err
		}
		value = strings.TrimSpace(text)
	case "struct":
		s, err := p.readStruct()
		if err != nil {
			return nil, err
		}
		value = s
	case "array":
		a, err := p.readArray()
		if err != nil {
			return nil, err
		}
		value = a
	case "", "/value":
		// Empty <value></value> or a bare text run with no child tag at all:
		// treat it as a string (empty for <value></value>), matching the
		// original's tolerance.
		text, err := p.readRawTextUntilTag()
		if err != nil {
			return nil, err
		}
		value = unescapeText(text)
	default:
		return nil, roserr.New(roserr.PARSE, "xmlrpc: unexpected tag <"+tag+"> in value")
	}

	if wrapped {
		if err := p.expectClose("value"); err != nil {
			return nil, err
		}
	}
	return value, nil
}

func (p *parser) readStruct() (Struct, error) {
	if err := p.expectOpen("struct"); err != nil {
		return nil, err
	}
	s := make(Struct)
	for {
		p.skipWhitespace()
		tag, err := p.peekTagName()
		if err != nil {
			return nil, err
		}
		if tag == "/struct" {
			break
		}
		if err := p.expectOpen("member"); err != nil {
			return nil, err
		}
		name, err := p.readTextElement("name")
		if err != nil {
			return nil, err
		}
		v, err := p.readValue()
		if err != nil {
			return nil, err
		}
		s[name] = v
		if err := p.expectClose("member"); err != nil {
			return nil, err
		}
	}
	if err := p.expectClose("struct"); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *parser) readArray() (Array, error) {
	if err := p.expectOpen("array"); err != nil {
		return nil, err
	}
	if err := p.expectOpen("data"); err != nil {
		return nil, err
	}
	var a Array
	for {
		p.skipWhitespace()
		tag, err := p.peekTagName()
		if err != nil {
			return nil, err
		}
		if tag == "/data" {
			break
		}
		v, err := p.readValue()
		if err != nil {
			return nil, err
		}
		a = append(a, v)
	}
	if err := p.expectClose("data"); err != nil {
		return nil, err
	}
	if err := p.expectClose("array"); err != nil {
		return nil, err
	}
	return a, nil
}

// --- low-level tag/text primitives ---

func (p *parser) skipProlog() error {
	p.skipWhitespace()
	b, err := p.r.Peek(2)
	if err != nil {
		return roserr.Wrap(roserr.PARSE, "xmlrpc: empty document", err)
	}
	if string(b) == "<?" {
		if _, err := p.r.ReadString('>'); err != nil {
			return roserr.Wrap(roserr.PARSE, "xmlrpc: unterminated prolog", err)
		}
	}
	return nil
}

func (p *parser) skipWhitespace() {
	for {
		b, err := p.r.Peek(1)
		if err != nil || len(b) == 0 {
			return
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			p.r.ReadByte()
		default:
			return
		}
	}
}

// peekTagName reports the name of the next tag without consuming it, "" if
// the next thing is not a '<'. A closing tag is reported with a leading '/'.
func (p *parser) peekTagName() (string, error) {
	b, err := p.r.Peek(1)
	if err != nil {
		return "", roserr.Wrap(roserr.PARSE, "xmlrpc: unexpected eof", err)
	}
	if b[0] != '<' {
		return "", nil
	}
	var name strings.Builder
	i := 1
	closing := false
	for {
		chunk, err := p.r.Peek(i + 1)
		if err != nil {
			return "", roserr.Wrap(roserr.PARSE, "xmlrpc: unterminated tag", err)
		}
		c := chunk[i]
		if i == 1 && c == '/' {
			closing = true
			i++
			continue
		}
		if c == '>' || c == ' ' || c == '\t' || c == '\r' || c == '\n' {
			break
		}
		name.WriteByte(c)
		i++
	}
	if closing {
		return "/" + name.String(), nil
	}
	return name.String(), nil
}

// expectOpen consumes "<name ...>", tolerating attributes (ignored, per
// spec.md §4.C: "unknown keys are ignored" generalizes to unknown XML
// attributes too — the dialect never needs any).
func (p *parser) expectOpen(name string) error {
	p.skipWhitespace()
	tag, err := p.readRawTag()
	if err != nil {
		return err
	}
	got := strings.TrimSpace(strings.SplitN(tag, " ", 2)[0])
	if got != name {
		return roserr.New(roserr.PARSE, fmt.Sprintf("xmlrpc: expected <%s>, got <%s>", name, got))
	}
	return nil
}

func (p *parser) expectClose(name string) error {
	p.skipWhitespace()
	tag, err := p.readRawTag()
	if err != nil {
		return err
	}
	want := "/" + name
	if tag != want {
		return roserr.New(roserr.PARSE, fmt.Sprintf("xmlrpc: expected <%s>, got <%s>", want, tag))
	}
	return nil
}

// readRawTag reads "<...>" and returns its inner content without the angle
// brackets (e.g. "methodCall" or "/methodCall" or "value type=\"...\"").
func (p *parser) readRawTag() (string, error) {
	b, err := p.r.ReadByte()
	if err != nil {
		return "", roserr.Wrap(roserr.EOF, "xmlrpc", err)
	}
	if b != '<' {
		return "", roserr.New(roserr.PARSE, "xmlrpc: expected '<'")
	}
	s, err := p.r.ReadString('>')
	if err != nil {
		return "", roserr.Wrap(roserr.PARSE, "xmlrpc: unterminated tag", err)
	}
	return s[:len(s)-1], nil
}

// readTextElement reads "<name>text</name>" and returns text verbatim
// (caller unescapes/trims as appropriate for the element kind).
func (p *parser) readTextElement(name string) (string, error) {
	p.skipWhitespace()
	if err := p.expectOpen(name); err != nil {
		return "", err
	}
	text, err := p.readRawTextUntilTag()
	if err != nil {
		return "", err
	}
	if err := p.expectClose(name); err != nil {
		return "", err
	}
	return text, nil
}

// readRawTextUntilTag reads bytes up to (not including) the next '<'.
func (p *parser) readRawTextUntilTag() (string, error) {
	var b strings.Builder
	for {
		c, err := p.r.ReadByte()
		if err != nil {
			return "", roserr.Wrap(roserr.EOF, "xmlrpc", err)
		}
		if c == '<' {
			p.r.UnreadByte()
			return b.String(), nil
		}
		b.WriteByte(c)
	}
}

func unescapeText(s string) string {
	if !strings.ContainsRune(s, '&') {
		return s
	}
	r := strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")
	return r.Replace(s)
}

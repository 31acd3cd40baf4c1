package xmlrpc

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"sort"
)

// StreamerConfig controls the fixed-Content-Length fallback spec.md §4.C
// documents as a compatibility hack for embedded stacks that cannot buffer
// arbitrarily large bodies. Go has no such constraint, so this rewrite
// defaults FixedContentLength to 0 (disabled) and keeps it only as a
// configurable fallback, per spec.md §9's design note.
type StreamerConfig struct {
	FixedContentLength int
}

// DefaultStreamerConfig leaves the fixed-Content-Length fallback disabled
// (FixedContentLength 0); a caller that wants the original's 4000-byte
// padding/truncation boundary sets it explicitly.
var DefaultStreamerConfig = StreamerConfig{FixedContentLength: 0}

// EncodeMethodCall renders a <methodCall> with the given method name and
// positional arguments.
func EncodeMethodCall(method string, args ...Value) []byte {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0"?>`)
	b.WriteString("<methodCall><methodName>")
	b.WriteString(escapeText(method))
	b.WriteString("</methodName><params>")
	for _, a := range args {
		b.WriteString("<param>")
		encodeValue(&b, a)
		b.WriteString("</param>")
	}
	b.WriteString("</params></methodCall>")
	return b.Bytes()
}

// EncodeMethodResponse renders a <methodResponse> carrying a single value —
// in this codebase that value is always the (code, status, value) triple of
// spec.md §3, but EncodeMethodResponse itself is agnostic to that shape.
func EncodeMethodResponse(value Value) []byte {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0"?>`)
	b.WriteString("<methodResponse><params><param>")
	encodeValue(&b, value)
	b.WriteString("</param></params></methodResponse>")
	return b.Bytes()
}

// EncodeFault renders a <methodResponse><fault>...</fault></methodResponse>.
func EncodeFault(code int32, message string) []byte {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0"?>`)
	b.WriteString("<methodResponse><fault><value><struct>")
	b.WriteString(`<member><name>faultCode</name><value><int>`)
	fmt.Fprintf(&b, "%d", code)
	b.WriteString(`</int></value></member>`)
	b.WriteString(`<member><name>faultString</name><value><string>`)
	b.WriteString(escapeText(message))
	b.WriteString(`</string></value></member>`)
	b.WriteString("</struct></value></fault></methodResponse>")
	return b.Bytes()
}

func encodeValue(b *bytes.Buffer, v Value) {
	b.WriteString("<value>")
	switch t := v.(type) {
	case nil:
		b.WriteString("<string></string>")
	case bool:
		b.WriteString("<boolean>")
		if t {
			b.WriteString("1")
		} else {
			b.WriteString("0")
		}
		b.WriteString("</boolean>")
	case int:
		fmt.Fprintf(b, "<i4>%d</i4>", t)
	case int32:
		fmt.Fprintf(b, "<i4>%d</i4>", t)
	case int64:
		fmt.Fprintf(b, "<i4>%d</i4>", t)
	case float64:
		fmt.Fprintf(b, "<double>%v</double>", t)
	case float32:
		fmt.Fprintf(b, "<double>%v</double>", t)
	case string:
		b.WriteString("<string>")
		b.WriteString(escapeText(t))
		b.WriteString("</string>")
	case Base64:
		b.WriteString("<base64>")
		b.WriteString(base64.StdEncoding.EncodeToString(t))
		b.WriteString("</base64>")
	case []byte:
		b.WriteString("<base64>")
		b.WriteString(base64.StdEncoding.EncodeToString(t))
		b.WriteString("</base64>")
	case Array:
		encodeArray(b, t)
	case []Value:
		encodeArray(b, Array(t))
	case Struct:
		encodeStruct(b, t)
	case map[string]Value:
		encodeStruct(b, Struct(t))
	default:
		panic(fmt.Sprintf("xmlrpc: cannot encode value of type %T", v))
	}
	b.WriteString("</value>")
}

func encodeArray(b *bytes.Buffer, arr Array) {
	b.WriteString("<array><data>")
	for _, v := range arr {
		encodeValue(b, v)
	}
	b.WriteString("</data></array>")
}

func encodeStruct(b *bytes.Buffer, s Struct) {
	b.WriteString("<struct>")
	// Deterministic member order keeps wire output reproducible for tests.
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("<member><name>")
		b.WriteString(escapeText(k))
		b.WriteString("</name>")
		encodeValue(b, s[k])
		b.WriteString("</member>")
	}
	b.WriteString("</struct>")
}

func escapeText(s string) string {
	var b bytes.Buffer
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PadOrTruncate applies the fixed-Content-Length compatibility hack: when
// cfg.FixedContentLength is non-zero, body is padded with trailing spaces or
// hard-truncated to exactly that length. A truncated body is
// only ever produced when the caller has misconfigured a FixedContentLength
// smaller than any real response, which is a caller error, not something
// this rewrite attempts to recover from gracefully — same as the original.
func PadOrTruncate(body []byte, cfg StreamerConfig) []byte {
	if cfg.FixedContentLength <= 0 || len(body) == cfg.FixedContentLength {
		return body
	}
	if len(body) > cfg.FixedContentLength {
		return body[:cfg.FixedContentLength]
	}
	pad := cfg.FixedContentLength - len(body)
	out := make([]byte, 0, cfg.FixedContentLength)
	out = append(out, body...)
	out = append(out, bytes.Repeat([]byte(" "), pad)...)
	return out
}

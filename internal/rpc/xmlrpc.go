package rpc

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/funvibe/torrentrpc/internal/config"
	"github.com/funvibe/torrentrpc/internal/object"
)

const apacheNamespace = "http://ws.apache.org/xmlrpc/namespaces/extensions"

// Process handles one XML-RPC request held in buf and passes the encoded
// response to write. Every failure, including a malformed or oversize
// request, is answered with a fault. It reports whether write succeeded.
func (b *Bridge) Process(buf []byte, write func([]byte) error) bool {
	id := uuid.NewString()

	var (
		result object.Value
		err    error
	)
	if int64(len(buf)) > b.sizeLimit {
		err = faultf(FaultSizeLimit, "Content size exceeds maximum XML-RPC limit of %s", humanize.IBytes(uint64(b.sizeLimit)))
	} else {
		var method string
		var params []object.Value
		method, params, err = decodeMethodCall(buf)
		if err != nil {
			err = faultf(FaultParse, "Parse error: %s", err)
		} else {
			log.Debugw("xmlrpc call", "id", id, "method", method, "params", len(params), "size", humanize.Bytes(uint64(len(buf))))
			result, err = b.Call("xmlrpc", method, params)
		}
	}

	var out []byte
	if err != nil {
		f := toFault(err)
		log.Debugw("xmlrpc fault", "id", id, "code", f.Code, "message", f.Msg)
		out = encodeFault(f, b.dialect)
	} else {
		out = encodeResponse(result, b.dialect)
	}

	if werr := write(out); werr != nil {
		log.Warnw("xmlrpc write failed", "id", id, "error", werr)
		return false
	}
	return true
}

// xmlDecoder walks the token stream of a methodCall document.
type xmlDecoder struct {
	d     *xml.Decoder
	depth int
}

func decodeMethodCall(buf []byte) (string, []object.Value, error) {
	x := &xmlDecoder{d: xml.NewDecoder(bytes.NewReader(buf))}

	start, err := x.nextStart()
	if err != nil {
		return "", nil, err
	}
	if start.Name.Local != "methodCall" {
		return "", nil, errors.New("expected methodCall")
	}

	var (
		method string
		params []object.Value
	)
	for {
		tok, err := x.nextElement()
		if err != nil {
			return "", nil, err
		}
		if _, ok := tok.(xml.EndElement); ok {
			break
		}
		el := tok.(xml.StartElement)
		switch el.Name.Local {
		case "methodName":
			if method, err = x.text(); err != nil {
				return "", nil, err
			}
			method = strings.TrimSpace(method)
		case "params":
			if params, err = x.params(); err != nil {
				return "", nil, err
			}
		default:
			if err := x.d.Skip(); err != nil {
				return "", nil, err
			}
		}
	}
	if method == "" {
		return "", nil, errors.New("missing methodName")
	}
	return method, params, nil
}

// nextElement returns the next start or end element, skipping whitespace,
// comments and processing instructions.
func (x *xmlDecoder) nextElement() (xml.Token, error) {
	for {
		tok, err := x.d.Token()
		if err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement, xml.EndElement:
			return t, nil
		case xml.CharData:
			if len(bytes.TrimSpace(t)) != 0 {
				return nil, errors.New("unexpected text")
			}
		}
	}
}

func (x *xmlDecoder) nextStart() (xml.StartElement, error) {
	tok, err := x.nextElement()
	if err != nil {
		return xml.StartElement{}, err
	}
	start, ok := tok.(xml.StartElement)
	if !ok {
		return xml.StartElement{}, errors.New("unexpected end element")
	}
	return start, nil
}

func (x *xmlDecoder) expect(name string) error {
	start, err := x.nextStart()
	if err != nil {
		return err
	}
	if start.Name.Local != name {
		return errors.New("expected " + name + ", got " + start.Name.Local)
	}
	return nil
}

func (x *xmlDecoder) expectEnd() error {
	tok, err := x.nextElement()
	if err != nil {
		return err
	}
	if _, ok := tok.(xml.EndElement); !ok {
		return errors.New("expected end element")
	}
	return nil
}

// text reads character data up to the end of the current element.
func (x *xmlDecoder) text() (string, error) {
	var sb strings.Builder
	for {
		tok, err := x.d.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.EndElement:
			return sb.String(), nil
		case xml.StartElement:
			return "", errors.New("unexpected element " + t.Name.Local)
		}
	}
}

func (x *xmlDecoder) params() ([]object.Value, error) {
	var params []object.Value
	for {
		tok, err := x.nextElement()
		if err != nil {
			return nil, err
		}
		if _, ok := tok.(xml.EndElement); ok {
			return params, nil
		}
		if tok.(xml.StartElement).Name.Local != "param" {
			return nil, errors.New("expected param")
		}
		if err := x.expect("value"); err != nil {
			return nil, err
		}
		v, err := x.value()
		if err != nil {
			return nil, err
		}
		if err := x.expectEnd(); err != nil {
			return nil, err
		}
		params = append(params, v)
	}
}

// value decodes the content of a <value> element whose start tag has been
// consumed, including its end tag. Untyped content is a string.
func (x *xmlDecoder) value() (object.Value, error) {
	if x.depth >= config.MaxValueDepth {
		return object.None(), fmt.Errorf("values nested deeper than %d", config.MaxValueDepth)
	}
	x.depth++
	defer func() { x.depth-- }()

	var text strings.Builder
	for {
		tok, err := x.d.Token()
		if err != nil {
			return object.None(), err
		}
		switch t := tok.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			return object.String(text.String()), nil
		case xml.StartElement:
			v, err := x.typed(t)
			if err != nil {
				return object.None(), err
			}
			if err := x.expectEnd(); err != nil {
				return object.None(), err
			}
			return v, nil
		}
	}
}

func (x *xmlDecoder) typed(start xml.StartElement) (object.Value, error) {
	switch start.Name.Local {
	case "i4", "int", "i8":
		s, err := x.text()
		if err != nil {
			return object.None(), err
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return object.None(), errors.New("invalid integer")
		}
		return object.Int(n), nil
	case "boolean":
		s, err := x.text()
		if err != nil {
			return object.None(), err
		}
		switch strings.TrimSpace(s) {
		case "1", "true":
			return object.Bool(true), nil
		case "0", "false":
			return object.Bool(false), nil
		}
		return object.None(), errors.New("invalid boolean")
	case "double":
		s, err := x.text()
		if err != nil {
			return object.None(), err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return object.None(), errors.New("invalid double")
		}
		return object.Int(int64(f)), nil
	case "string", "dateTime.iso8601":
		s, err := x.text()
		if err != nil {
			return object.None(), err
		}
		return object.String(s), nil
	case "base64":
		s, err := x.text()
		if err != nil {
			return object.None(), err
		}
		raw, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(s), ""))
		if err != nil {
			return object.None(), errors.New("invalid base64")
		}
		return object.String(string(raw)), nil
	case "nil":
		if err := x.expectEnd(); err != nil {
			return object.None(), err
		}
		return object.None(), nil
	case "array":
		return x.array()
	case "struct":
		return x.structure()
	}
	return object.None(), errors.New("unknown type " + start.Name.Local)
}

func (x *xmlDecoder) array() (object.Value, error) {
	if err := x.expect("data"); err != nil {
		return object.None(), err
	}
	var items []object.Value
	for {
		tok, err := x.nextElement()
		if err != nil {
			return object.None(), err
		}
		if _, ok := tok.(xml.EndElement); ok {
			break
		}
		if tok.(xml.StartElement).Name.Local != "value" {
			return object.None(), errors.New("expected value")
		}
		v, err := x.value()
		if err != nil {
			return object.None(), err
		}
		items = append(items, v)
	}
	if err := x.expectEnd(); err != nil {
		return object.None(), err
	}
	return object.List(items...), nil
}

func (x *xmlDecoder) structure() (object.Value, error) {
	m := object.NewMap()
	for {
		tok, err := x.nextElement()
		if err != nil {
			return object.None(), err
		}
		if _, ok := tok.(xml.EndElement); ok {
			return m, nil
		}
		if tok.(xml.StartElement).Name.Local != "member" {
			return object.None(), errors.New("expected member")
		}

		var (
			name    string
			val     object.Value
			hasName bool
		)
		for {
			tok, err := x.nextElement()
			if err != nil {
				return object.None(), err
			}
			if _, ok := tok.(xml.EndElement); ok {
				break
			}
			switch tok.(xml.StartElement).Name.Local {
			case "name":
				if name, err = x.text(); err != nil {
					return object.None(), err
				}
				hasName = true
			case "value":
				if val, err = x.value(); err != nil {
					return object.None(), err
				}
			default:
				return object.None(), errors.New("unexpected member element")
			}
		}
		if !hasName {
			return object.None(), errors.New("member without name")
		}
		m.SetKey(name, val)
	}
}

// xmlEncoder writes values in the wire form of one dialect.
type xmlEncoder struct {
	buf     bytes.Buffer
	dialect Dialect
}

func (w *xmlEncoder) header() {
	w.buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	w.buf.WriteByte('\n')
	if w.dialect == DialectApache {
		w.buf.WriteString(`<methodResponse xmlns:ex="` + apacheNamespace + `">`)
		return
	}
	w.buf.WriteString("<methodResponse>")
}

func (w *xmlEncoder) value(v object.Value) {
	w.buf.WriteString("<value>")
	switch v.Kind() {
	case object.NONE_OBJ:
		switch w.dialect {
		case DialectGeneric:
			w.buf.WriteString("<i4>0</i4>")
		case DialectApache:
			w.buf.WriteString("<ex:nil/>")
		default:
			w.buf.WriteString("<nil/>")
		}
	case object.VALUE_OBJ:
		w.integer(v.AsValue())
	case object.STRING_OBJ:
		w.buf.WriteString("<string>")
		_ = xml.EscapeText(&w.buf, []byte(v.AsString()))
		w.buf.WriteString("</string>")
	case object.LIST_OBJ:
		w.buf.WriteString("<array><data>")
		for _, item := range v.AsList() {
			w.value(item)
		}
		w.buf.WriteString("</data></array>")
	case object.MAP_OBJ:
		w.buf.WriteString("<struct>")
		for _, key := range v.Keys() {
			item, _ := v.Get(key)
			w.member(key, item)
		}
		w.buf.WriteString("</struct>")
	}
	w.buf.WriteString("</value>")
}

func (w *xmlEncoder) integer(n int64) {
	tag := "i8"
	switch w.dialect {
	case DialectGeneric:
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			tag = "i4"
		}
	case DialectApache:
		tag = "ex:i8"
	}
	w.buf.WriteString("<" + tag + ">")
	w.buf.WriteString(strconv.FormatInt(n, 10))
	w.buf.WriteString("</" + tag + ">")
}

func (w *xmlEncoder) member(name string, v object.Value) {
	w.buf.WriteString("<member><name>")
	_ = xml.EscapeText(&w.buf, []byte(name))
	w.buf.WriteString("</name>")
	w.value(v)
	w.buf.WriteString("</member>")
}

func encodeResponse(v object.Value, d Dialect) []byte {
	w := &xmlEncoder{dialect: d}
	w.header()
	w.buf.WriteString("<params><param>")
	w.value(v)
	w.buf.WriteString("</param></params></methodResponse>\n")
	return w.buf.Bytes()
}

// encodeFault always writes faultCode as <i4>, which every client accepts.
func encodeFault(f *Fault, d Dialect) []byte {
	w := &xmlEncoder{dialect: d}
	w.header()
	w.buf.WriteString("<fault><value><struct>")
	w.buf.WriteString("<member><name>faultCode</name><value><i4>")
	w.buf.WriteString(strconv.Itoa(f.Code))
	w.buf.WriteString("</i4></value></member>")
	w.member("faultString", object.String(f.Msg))
	w.buf.WriteString("</struct></value></fault></methodResponse>\n")
	return w.buf.Bytes()
}

package core

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// SQLData is the XML interchange form of a RecordSet:
//
//	<sqldata table="systems" key="syskey">
//	  <fields>
//	    <field fid="0">sysid</field>
//	    <field fid="1">dmidata</field>
//	  </fields>
//	  <records>
//	    <record>
//	      <value fid="0" hash="sha1">...</value>
//	      <value fid="1" type="xmlblob"><dmi>...</dmi></value>
//	    </record>
//	  </records>
//	</sqldata>
type SQLData struct {
	XMLName xml.Name    `xml:"sqldata"`
	Table   string      `xml:"table,attr"`
	Key     string      `xml:"key,attr,omitempty"`
	Fields  []SQLField  `xml:"fields>field"`
	Records []SQLRecord `xml:"records>record"`
}

type SQLField struct {
	ID   int    `xml:"fid,attr"`
	Name string `xml:",chardata"`
}

type SQLRecord struct {
	Values []SQLValue `xml:"value"`
}

// SQLValue carries either text (plain and hash values) or raw inner XML
// (xmlblob values). Param names a value to be filled in by the transform
// step; see ParamFunc.
type SQLValue struct {
	FieldID int    `xml:"fid,attr"`
	Type    string `xml:"type,attr,omitempty"`
	Hash    string `xml:"hash,attr,omitempty"`
	Param   string `xml:"param,attr,omitempty"`
	Text    string `xml:",chardata"`
	Inner   string `xml:",innerxml"`
}

// ParamFunc supplies the content of values that carry a param attribute.
type ParamFunc func(name string) (string, bool)

// DecodeSQLData reads one sqldata document. Values with a param attribute
// are rejected; use SQLData.RecordSet with a ParamFunc for templates.
func DecodeSQLData(r io.Reader) (*RecordSet, error) {
	var doc SQLData
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, Malformed("decode sqldata: %v", err)
	}
	return doc.RecordSet(nil)
}

// RecordSet converts the document into a validated RecordSet.
func (d *SQLData) RecordSet(params ParamFunc) (*RecordSet, error) {
	rs := &RecordSet{
		Table:   strings.TrimSpace(d.Table),
		Key:     strings.TrimSpace(d.Key),
		Fields:  make([]Field, len(d.Fields)),
		Records: make([]Record, len(d.Records)),
	}
	for i, f := range d.Fields {
		rs.Fields[i] = Field{ID: f.ID, Name: strings.TrimSpace(f.Name)}
	}

	for i, rec := range d.Records {
		values := make([]Value, len(rec.Values))
		for j, sv := range rec.Values {
			v, err := sv.value(params)
			if err != nil {
				return nil, fmt.Errorf("%s: record %d: %w", rs.Table, i+1, err)
			}
			values[j] = v
		}
		rs.Records[i] = Record{Values: values}
	}

	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

func (sv SQLValue) value(params ParamFunc) (Value, error) {
	v := Value{FieldID: sv.FieldID, Kind: KindPlain, Content: sv.Text}

	if sv.Param != "" {
		if params == nil {
			return Value{}, Malformed("field %d: unexpected param %q", sv.FieldID, sv.Param)
		}
		content, ok := params(sv.Param)
		if !ok {
			return Value{}, Malformed("field %d: unknown param %q", sv.FieldID, sv.Param)
		}
		v.Content = content
	}

	switch {
	case sv.Type != "" && sv.Hash != "":
		return Value{}, Malformed("field %d: both type and hash set", sv.FieldID)
	case sv.Hash != "":
		v.Kind = KindHash
		v.Algorithm = sv.Hash
	case sv.Type != "":
		v.Kind = Kind(sv.Type)
		if v.Kind == KindXMLBlob {
			v.Content = sv.Inner
		}
		if !HasKind(v.Kind) {
			return Value{}, Malformed("field %d: unknown value type %q", sv.FieldID, sv.Type)
		}
	}
	return v, nil
}

// EncodeSQLData writes rs as an sqldata document.
func EncodeSQLData(w io.Writer, rs *RecordSet) error {
	doc := SQLData{
		Table:   rs.Table,
		Key:     rs.Key,
		Fields:  make([]SQLField, len(rs.Fields)),
		Records: make([]SQLRecord, len(rs.Records)),
	}
	for i, f := range rs.Fields {
		doc.Fields[i] = SQLField{ID: f.ID, Name: f.Name}
	}
	for i, rec := range rs.Records {
		values := make([]SQLValue, len(rec.Values))
		for j, v := range rec.Values {
			sv := SQLValue{FieldID: v.FieldID}
			switch v.Kind {
			case KindHash:
				sv.Hash = v.Algorithm
				if sv.Hash == "" {
					sv.Hash = DefaultDigest
				}
				sv.Text = v.Content
			case KindXMLBlob:
				sv.Type = string(KindXMLBlob)
				sv.Inner = v.Content
			case KindPlain, "":
				sv.Text = v.Content
			default:
				sv.Type = string(v.Kind)
				sv.Text = v.Content
			}
			values[j] = sv
		}
		doc.Records[i] = SQLRecord{Values: values}
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode sqldata: %w", err)
	}
	return enc.Flush()
}

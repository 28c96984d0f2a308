package core

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// Kind selects how a Value's content is turned into the bound parameter.
type Kind string

const (
	KindPlain   Kind = "plain"
	KindXMLBlob Kind = "xmlblob"
	KindHash    Kind = "hash"
)

// DefaultDigest is used for KindHash values that do not name an algorithm.
const DefaultDigest = "sha1"

// Transform resolves a value of one kind into the string bound to the
// statement.
type Transform func(v Value) (string, error)

var (
	kinds   = make(map[Kind]Transform)
	digests = make(map[string]func() hash.Hash)
	kindsMu sync.RWMutex
)

func init() {
	RegisterKind(KindPlain, func(v Value) (string, error) { return v.Content, nil })
	RegisterKind(KindXMLBlob, serializeBlob)
	RegisterKind(KindHash, digestValue)

	RegisterDigest("sha1", sha1.New)
	RegisterDigest("sha256", sha256.New)
	RegisterDigest("sha3-256", sha3.New256)
	RegisterDigest("blake2b-256", func() hash.Hash {
		h, _ := blake2b.New256(nil) // only fails for oversized keys
		return h
	})
}

// RegisterKind adds a value kind. Panics if the kind is already registered.
func RegisterKind(k Kind, fn Transform) {
	kindsMu.Lock()
	defer kindsMu.Unlock()

	if _, exists := kinds[k]; exists {
		panic(fmt.Sprintf("value kind already registered: %s", k))
	}
	kinds[k] = fn
}

// RegisterDigest adds a named digest for KindHash values.
// Names are case-insensitive. Panics on duplicates.
func RegisterDigest(name string, fn func() hash.Hash) {
	kindsMu.Lock()
	defer kindsMu.Unlock()

	name = strings.ToLower(name)
	if _, exists := digests[name]; exists {
		panic(fmt.Sprintf("digest already registered: %s", name))
	}
	digests[name] = fn
}

// HasKind reports whether k is registered.
func HasKind(k Kind) bool {
	kindsMu.RLock()
	defer kindsMu.RUnlock()
	_, ok := kinds[k]
	return ok
}

// HasDigest reports whether a digest name is registered.
func HasDigest(name string) bool {
	kindsMu.RLock()
	defer kindsMu.RUnlock()
	_, ok := digests[strings.ToLower(name)]
	return ok
}

// Resolve returns the string bound for v.
// An empty Kind is treated as KindPlain.
func (v Value) Resolve() (string, error) {
	k := v.Kind
	if k == "" {
		k = KindPlain
	}

	kindsMu.RLock()
	fn, ok := kinds[k]
	kindsMu.RUnlock()
	if !ok {
		return "", Malformed("field %d: unknown value kind %q", v.FieldID, k)
	}
	return fn(v)
}

func digestValue(v Value) (string, error) {
	name := v.Algorithm
	if name == "" {
		name = DefaultDigest
	}

	kindsMu.RLock()
	newHash, ok := digests[strings.ToLower(name)]
	kindsMu.RUnlock()
	if !ok {
		return "", Malformed("field %d: unsupported hash %q", v.FieldID, name)
	}

	h := newHash()
	h.Write([]byte(v.Content))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// serializeBlob re-encodes an XML fragment into a flat string. Whitespace
// between elements is dropped, so equivalent documents serialize the same
// way regardless of how the submitter indented them.
func serializeBlob(v Value) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(v.Content))
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", Malformed("field %d: xmlblob: %v", v.FieldID, err)
		}

		switch t := tok.(type) {
		case xml.CharData:
			if len(bytes.TrimSpace(t)) == 0 {
				continue
			}
		case xml.ProcInst, xml.Directive, xml.Comment:
			continue
		}

		if err := enc.EncodeToken(xml.CopyToken(tok)); err != nil {
			return "", Malformed("field %d: xmlblob: %v", v.FieldID, err)
		}
	}

	if err := enc.Flush(); err != nil {
		return "", Malformed("field %d: xmlblob: %v", v.FieldID, err)
	}
	return buf.String(), nil
}

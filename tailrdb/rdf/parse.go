// Package rdf is the boundary adapter between serialized RDF documents
// and the canonical statement sets stored by the engine. Everything past
// this package treats a resource state as an opaque line set.
package rdf

import (
	"bytes"
	"io"
	"mime"
	"strings"

	"github.com/knakk/rdf"
	"github.com/pkg/errors"

	"github.com/tailrdb/tailr/tailrdb/statement"
)

// Media types accepted on push.
const (
	MediaNTriples = "application/n-triples"
	MediaRDFXML   = "application/rdf+xml"
	MediaTurtle   = "text/turtle"
)

// BaseIRI resolves relative references in pushed documents.
const BaseIRI = "urn:x-default:tailr"

// ErrParse wraps any failure to decode a pushed document.
var ErrParse = errors.New("unable to parse RDF payload")

// Parse decodes a document of the declared media type into a canonical
// statement set. Each statement becomes one N-Triple line terminated
// with " .", duplicates collapse. An empty media type defaults to
// N-Triples.
func Parse(body []byte, mediaType string) (statement.Set, error) {
	format, err := format(mediaType)
	if err != nil {
		return nil, err
	}

	dec := rdf.NewTripleDecoder(bytes.NewReader(body), format)
	if base, err := rdf.NewIRI(BaseIRI); err == nil {
		// Decoders without base support reject the option, which is fine
		// for formats that only carry absolute IRIs.
		_ = dec.SetOption(rdf.Base, base)
	}

	stmts := statement.Set{}
	for {
		triple, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(ErrParse, "%v", err)
		}
		stmts.Add(strings.TrimSpace(triple.Serialize(rdf.NTriples)))
	}

	return stmts, nil
}

func format(mediaType string) (rdf.Format, error) {
	if mediaType == "" {
		return rdf.NTriples, nil
	}

	// Strip parameters such as "; charset=utf-8".
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		mt = strings.TrimSpace(strings.ToLower(mediaType))
	}

	switch mt {
	case MediaNTriples:
		return rdf.NTriples, nil
	case MediaRDFXML:
		return rdf.RDFXML, nil
	case MediaTurtle:
		return rdf.Turtle, nil
	}
	return rdf.NTriples, errors.Wrapf(ErrParse, "unsupported media type %q", mediaType)
}

// Package memento holds the datetime formats and response rendering of
// the Memento protocol surface (RFC 7089): Link headers, link-format
// and JSON timemaps.
package memento

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

const (
	// QSFormat is the query string datetime format,
	// e.g. `?datetime=2015-05-11-16:56:21`.
	QSFormat = "2006-01-02-15:04:05"

	// RFC1123Format is the header datetime format,
	// e.g. `Mon, 11 May 2015 16:56:21 GMT`.
	RFC1123Format = "Mon, 02 Jan 2006 15:04:05 GMT"

	// ISOFormat is the JSON timemap datetime format.
	ISOFormat = "2006-01-02T15:04:05"
)

// ParseQS parses a query string datetime as UTC.
func ParseQS(s string) (time.Time, error) {
	t, err := time.ParseInLocation(QSFormat, s, time.UTC)
	return t, errors.Wrapf(err, "invalid datetime %q", s)
}

// ParseRFC1123 parses an Accept-Datetime header value as UTC.
func ParseRFC1123(s string) (time.Time, error) {
	t, err := time.ParseInLocation(RFC1123Format, s, time.UTC)
	return t, errors.Wrapf(err, "invalid accept-datetime %q", s)
}

// FormatRFC1123 renders a Memento-Datetime header value.
func FormatRFC1123(t time.Time) string {
	return t.UTC().Format(RFC1123Format)
}

// Link renders the Link header of a Memento or TimeGate response.
func Link(original, timegateURL, timemapURL string) string {
	return fmt.Sprintf(`<%s>; rel="original", <%s>; rel="timegate", <%s>; rel="timemap"`,
		original, timegateURL, timemapURL)
}

// MementoURL builds the URI of one memento below base.
func MementoURL(base, key string, t time.Time) string {
	return base + "?key=" + url.QueryEscape(key) + "&datetime=" + t.UTC().Format(QSFormat)
}

// WriteLinkTimeMap renders an application/link-format timemap: the
// original link first, then one memento link per changeset time.
func WriteLinkTimeMap(w io.Writer, base, key string, times []time.Time) error {
	if _, err := fmt.Fprintf(w, `<%s>; rel="original"`, key); err != nil {
		return err
	}
	for _, t := range times {
		_, err := fmt.Fprintf(w,
			",\n<%s>; rel=\"memento\"; datetime=%q; type=\"application/n-quads\"",
			MementoURL(base, key, t), FormatRFC1123(t))
		if err != nil {
			return err
		}
	}
	return nil
}

type jsonMemento struct {
	Datetime string `json:"datetime"`
	URI      string `json:"uri"`
}

type jsonTimeMap struct {
	OriginalURI string `json:"original_uri"`
	Mementos    struct {
		List []jsonMemento `json:"list"`
	} `json:"mementos"`
}

// WriteJSONTimeMap renders the JSON timemap shape of
// http://mementoweb.org/guide/timemap-json/.
func WriteJSONTimeMap(w io.Writer, base, key string, times []time.Time) error {
	tm := jsonTimeMap{OriginalURI: key}
	tm.Mementos.List = make([]jsonMemento, 0, len(times))
	for _, t := range times {
		tm.Mementos.List = append(tm.Mementos.List, jsonMemento{
			Datetime: t.UTC().Format(ISOFormat),
			URI:      MementoURL(base, key, t),
		})
	}
	return json.NewEncoder(w).Encode(&tm)
}

package memento

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQS(t *testing.T) {
	ts, err := ParseQS("2015-05-11-16:56:21")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2015, 5, 11, 16, 56, 21, 0, time.UTC), ts)

	_, err = ParseQS("2015-05-11T16:56:21")
	assert.Error(t, err)
}

func TestRFC1123RoundTrip(t *testing.T) {
	ts := time.Date(2015, 5, 11, 16, 56, 21, 0, time.UTC)
	s := FormatRFC1123(ts)
	assert.Equal(t, "Mon, 11 May 2015 16:56:21 GMT", s)

	parsed, err := ParseRFC1123(s)
	require.NoError(t, err)
	assert.Equal(t, ts, parsed)
}

func TestLink(t *testing.T) {
	l := Link("http://example.org/r", "http://host/u/r", "http://host/u/r?key=k&timemap=true")
	assert.Equal(t,
		`<http://example.org/r>; rel="original", <http://host/u/r>; rel="timegate", <http://host/u/r?key=k&timemap=true>; rel="timemap"`,
		l)
}

func TestWriteLinkTimeMap(t *testing.T) {
	times := []time.Time{
		time.Date(2015, 5, 11, 16, 57, 21, 0, time.UTC),
		time.Date(2015, 5, 11, 16, 56, 21, 0, time.UTC),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteLinkTimeMap(&buf, "http://host/u/r", "urn:key", times))

	body := buf.String()
	assert.True(t, strings.HasPrefix(body, `<urn:key>; rel="original"`))
	assert.Contains(t, body, `<http://host/u/r?key=urn%3Akey&datetime=2015-05-11-16:57:21>; rel="memento"; datetime="Mon, 11 May 2015 16:57:21 GMT"; type="application/n-quads"`)
	assert.Equal(t, 2, strings.Count(body, `rel="memento"`))
}

func TestWriteJSONTimeMap(t *testing.T) {
	times := []time.Time{
		time.Date(2015, 5, 11, 16, 57, 21, 0, time.UTC),
		time.Date(2015, 5, 11, 16, 56, 21, 0, time.UTC),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteJSONTimeMap(&buf, "http://host/u/r", "urn:key", times))

	var tm struct {
		OriginalURI string `json:"original_uri"`
		Mementos    struct {
			List []struct {
				Datetime string `json:"datetime"`
				URI      string `json:"uri"`
			} `json:"list"`
		} `json:"mementos"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &tm))

	assert.Equal(t, "urn:key", tm.OriginalURI)
	require.Len(t, tm.Mementos.List, 2)
	assert.Equal(t, "2015-05-11T16:57:21", tm.Mementos.List[0].Datetime)
	assert.Equal(t, "http://host/u/r?key=urn%3Akey&datetime=2015-05-11-16:57:21", tm.Mementos.List[0].URI)
}

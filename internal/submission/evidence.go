package submission

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/p-n-ai/greenquest/internal/curriculum"
)

// MinReportLength is the minimum number of characters of a trimmed report.
const MinReportLength = 50

// Evidence is the proof attached to a submission. Each variant matches one
// quest type and carries only the fields that type needs.
type Evidence interface {
	Kind() curriculum.QuestType
	// Validate reports what is missing or malformed.
	Validate() error
	// fields returns the values covered by the integrity hash, in a fixed order.
	fields() []string
}

// PhotoEvidence is one or more uploaded photos.
type PhotoEvidence struct {
	PhotoURLs []string `json:"photo_urls"`
}

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// GeotagEvidence is a location, optionally with photos of the site.
type GeotagEvidence struct {
	Location  GeoPoint `json:"location"`
	PhotoURLs []string `json:"photo_urls,omitempty"`
}

// QREvidence is a scanned station code.
type QREvidence struct {
	Code string `json:"code"`
}

// ReportEvidence is a free-text write-up.
type ReportEvidence struct {
	Text string `json:"text"`
}

// TeamEvidence lists the members who took part.
type TeamEvidence struct {
	Members   []string `json:"members"`
	PhotoURLs []string `json:"photo_urls,omitempty"`
}

func (PhotoEvidence) Kind() curriculum.QuestType  { return curriculum.QuestPhoto }
func (GeotagEvidence) Kind() curriculum.QuestType { return curriculum.QuestGeotag }
func (QREvidence) Kind() curriculum.QuestType     { return curriculum.QuestQR }
func (ReportEvidence) Kind() curriculum.QuestType { return curriculum.QuestReport }
func (TeamEvidence) Kind() curriculum.QuestType   { return curriculum.QuestTeam }

func (e PhotoEvidence) Validate() error {
	if countNonBlank(e.PhotoURLs) == 0 {
		return fmt.Errorf("at least one photo is required")
	}
	return nil
}

func (e GeotagEvidence) Validate() error {
	lat, lng := e.Location.Lat, e.Location.Lng
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range", lat)
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return fmt.Errorf("longitude %v out of range", lng)
	}
	return nil
}

func (e QREvidence) Validate() error {
	if strings.TrimSpace(e.Code) == "" {
		return fmt.Errorf("qr code is required")
	}
	return nil
}

func (e ReportEvidence) Validate() error {
	if n := utf8.RuneCountInString(strings.TrimSpace(e.Text)); n < MinReportLength {
		return fmt.Errorf("report needs at least %d characters, got %d", MinReportLength, n)
	}
	return nil
}

func (e TeamEvidence) Validate() error {
	if len(e.Members) == 0 {
		return fmt.Errorf("at least one team member is required")
	}
	if countNonBlank(e.Members) != len(e.Members) {
		return fmt.Errorf("team member names must not be blank")
	}
	return nil
}

func (e PhotoEvidence) fields() []string { return e.PhotoURLs }

func (e GeotagEvidence) fields() []string {
	out := []string{
		strconv.FormatFloat(e.Location.Lat, 'f', -1, 64),
		strconv.FormatFloat(e.Location.Lng, 'f', -1, 64),
		e.Location.Address,
	}
	return append(out, e.PhotoURLs...)
}

func (e QREvidence) fields() []string     { return []string{e.Code} }
func (e ReportEvidence) fields() []string { return []string{e.Text} }

func (e TeamEvidence) fields() []string {
	out := append([]string{strconv.Itoa(len(e.Members))}, e.Members...)
	return append(out, e.PhotoURLs...)
}

func countNonBlank(ss []string) int {
	n := 0
	for _, s := range ss {
		if strings.TrimSpace(s) != "" {
			n++
		}
	}
	return n
}

// envelope is the wire form of an Evidence: {"type": "...", "data": {...}}.
type envelope struct {
	Type curriculum.QuestType `json:"type"`
	Data json.RawMessage      `json:"data"`
}

// MarshalEvidence encodes an evidence variant with its type tag.
func MarshalEvidence(e Evidence) ([]byte, error) {
	if e == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: e.Kind(), Data: data})
}

// UnmarshalEvidence decodes a tagged evidence envelope.
func UnmarshalEvidence(b []byte) (Evidence, error) {
	if string(b) == "null" {
		return nil, nil
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decoding evidence: %w", err)
	}
	return DecodeEvidence(env.Type, env.Data)
}

// DecodeEvidence decodes the variant named by t from its JSON data.
func DecodeEvidence(t curriculum.QuestType, data []byte) (Evidence, error) {
	var (
		ev  Evidence
		err error
	)
	switch t {
	case curriculum.QuestPhoto:
		var e PhotoEvidence
		err = json.Unmarshal(data, &e)
		ev = e
	case curriculum.QuestGeotag:
		var e GeotagEvidence
		err = json.Unmarshal(data, &e)
		ev = e
	case curriculum.QuestQR:
		var e QREvidence
		err = json.Unmarshal(data, &e)
		ev = e
	case curriculum.QuestReport:
		var e ReportEvidence
		err = json.Unmarshal(data, &e)
		ev = e
	case curriculum.QuestTeam:
		var e TeamEvidence
		err = json.Unmarshal(data, &e)
		ev = e
	default:
		return nil, fmt.Errorf("unknown evidence type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s evidence: %w", t, err)
	}
	return ev, nil
}

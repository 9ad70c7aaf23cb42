package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// CheckinEvent is one raw entry/exit detection reported by the HANET API.
// Upstream emits one event per detection, so a person usually appears many
// times per day. Field types in the upstream JSON are loose (numeric IDs,
// string timestamps, non-string titles), so decoding goes through the
// flexible helpers below instead of trusting the declared shapes.
type CheckinEvent struct {
	PersonID    string `json:"personID"`
	PersonName  string `json:"personName"`
	AliasID     string `json:"aliasID"`
	PlaceID     string `json:"placeID"`
	Title       string `json:"title"`
	Type        string `json:"type"`
	DeviceID    string `json:"deviceID"`
	DeviceName  string `json:"deviceName"`
	Date        string `json:"date"`
	CheckinTime int64  `json:"checkinTime"`
}

// UnmarshalJSON converts the untyped upstream record into a typed event.
// Unparseable fields degrade to their zero value; records that end up
// without a personID or timestamp are discarded later by the aggregator.
func (e *CheckinEvent) UnmarshalJSON(data []byte) error {
	var raw struct {
		PersonID    flexString      `json:"personID"`
		PersonName  flexString      `json:"personName"`
		AliasID     flexString      `json:"aliasID"`
		PlaceID     flexString      `json:"placeID"`
		Title       json.RawMessage `json:"title"`
		Type        flexString      `json:"type"`
		DeviceID    flexString      `json:"deviceID"`
		DeviceName  flexString      `json:"deviceName"`
		Date        flexString      `json:"date"`
		CheckinTime flexMillis      `json:"checkinTime"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.PersonID = string(raw.PersonID)
	e.PersonName = string(raw.PersonName)
	e.AliasID = string(raw.AliasID)
	e.PlaceID = string(raw.PlaceID)
	e.Title = NormalizeTitle(raw.Title)
	e.Type = string(raw.Type)
	e.DeviceID = string(raw.DeviceID)
	e.DeviceName = string(raw.DeviceName)
	e.Date = string(raw.Date)
	e.CheckinTime = int64(raw.CheckinTime)
	return nil
}

// TitleGuest is the title assigned when upstream reports none.
const TitleGuest = "Guest"

// NormalizeTitle applies the title policy: trimmed when a non-empty string,
// "N/A" when present but not a string, "Guest" when absent or blank.
func NormalizeTitle(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return TitleGuest
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "N/A"
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
		return TitleGuest
	}
	return "N/A"
}

// PersonDaySummary is the aggregated output unit: exactly one record per
// (personID, date) with the earliest check-in and latest check-out seen.
type PersonDaySummary struct {
	PersonName            string `json:"personName"`
	PersonID              string `json:"personID"`
	AliasID               string `json:"aliasID"`
	PlaceID               string `json:"placeID"`
	Title                 string `json:"title"`
	Type                  string `json:"type"`
	DeviceID              string `json:"deviceID"`
	DeviceName            string `json:"deviceName"`
	Date                  string `json:"date"`
	CheckinTime           int64  `json:"checkinTime"`
	CheckoutTime          int64  `json:"checkoutTime"`
	FormattedCheckinTime  string `json:"formattedCheckinTime"`
	FormattedCheckoutTime string `json:"formattedCheckoutTime"`
}

// Place is a HANET location. IDs are opaque: upstream sometimes sends them
// as numbers, so they decode through flexString.
type Place struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

func (p *Place) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID      flexString `json:"id"`
		Name    flexString `json:"name"`
		Address flexString `json:"address"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.ID = string(raw.ID)
	p.Name = string(raw.Name)
	p.Address = string(raw.Address)
	return nil
}

// Device is a HANET camera/terminal attached to a place.
type Device struct {
	DeviceID   string `json:"deviceID"`
	DeviceName string `json:"deviceName"`
	PlaceID    string `json:"placeID,omitempty"`
	Connected  bool   `json:"connected,omitempty"`
}

func (d *Device) UnmarshalJSON(data []byte) error {
	var raw struct {
		DeviceID   flexString `json:"deviceID"`
		DeviceName flexString `json:"deviceName"`
		PlaceID    flexString `json:"placeID"`
		Connected  bool       `json:"connected"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.DeviceID = string(raw.DeviceID)
	d.DeviceName = string(raw.DeviceName)
	d.PlaceID = string(raw.PlaceID)
	d.Connected = raw.Connected
	return nil
}

// Chunk is a half-open interval [Start, End) in epoch milliseconds. Kind is
// a diagnostic label only and never influences fetching or aggregation.
type Chunk struct {
	Start int64
	End   int64
	Kind  string
}

// flexString decodes a JSON string, number or bool into a string. null and
// empty input become "".
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(b)
	return nil
}

// flexMillis decodes an epoch-millisecond timestamp that upstream sends as
// either a number or a numeric string. Anything else becomes 0.
type flexMillis int64

func (m *flexMillis) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*m = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			*m = 0
			return nil
		}
		b = []byte(strings.TrimSpace(s))
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		*m = 0
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		*m = 0
		return nil
	}
	*m = flexMillis(int64(f))
	return nil
}

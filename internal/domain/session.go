package domain

import (
	"encoding/json"
	"maps"
)

// Credentials is the credential material a mini-program client attaches to a
// request. Every field defaults to the empty string when the header is absent.
type Credentials struct {
	Code          string
	RawData       string
	Signature     string
	EncryptedData string
	IV            string
}

type Watermark struct {
	AppID     string `json:"appid"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// SessionRecord is the identity cached under a session code. Optional fields
// are omitted when absent so a cache round trip keeps them absent. Keys this
// type does not model, and modelled keys whose value has another JSON shape,
// are carried verbatim in Extra.
type SessionRecord struct {
	OpenID    string     `json:"openId,omitempty"`
	UnionID   string     `json:"unionId,omitempty"`
	NickName  string     `json:"nickName,omitempty"`
	AvatarURL string     `json:"avatarUrl,omitempty"`
	Gender    *int       `json:"gender,omitempty"`
	Language  string     `json:"language,omitempty"`
	City      string     `json:"city,omitempty"`
	Province  string     `json:"province,omitempty"`
	Country   string     `json:"country,omitempty"`
	Subscribe *int       `json:"subscribe,omitempty"`
	Watermark *Watermark `json:"watermark,omitempty"`

	UserID            string          `json:"userId,omitempty"`
	ProfileEditStatus json.RawMessage `json:"profile_edit_status,omitempty"`
	School            string          `json:"School,omitempty"`
	CanonicalGender   json.RawMessage `json:"Gender,omitempty"`
	YearOfBirth       json.RawMessage `json:"YearOfBirth,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var knownRecordKeys = map[string]struct{}{
	"openId": {}, "unionId": {}, "nickName": {}, "avatarUrl": {}, "gender": {},
	"language": {}, "city": {}, "province": {}, "country": {}, "subscribe": {},
	"watermark": {}, "userId": {}, "profile_edit_status": {}, "School": {},
	"Gender": {}, "YearOfBirth": {},
}

type sessionRecordFields SessionRecord

func (r SessionRecord) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(sessionRecordFields(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return known, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	// Typed fields win over Extra entries with the same key, and identity keys
	// only ever come from the typed fields.
	merged := maps.Clone(r.Extra)
	delete(merged, "openId")
	delete(merged, "unionId")
	delete(merged, "userId")
	maps.Copy(merged, fields)
	return json.Marshal(merged)
}

// UnmarshalJSON decodes key by key so one oddly shaped client value does not
// reject the whole record.
func (r *SessionRecord) UnmarshalJSON(data []byte) error {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	var fields sessionRecordFields
	extra := make(map[string]json.RawMessage)
	for k, v := range all {
		if _, ok := knownRecordKeys[k]; !ok {
			extra[k] = v
			continue
		}
		one, err := json.Marshal(map[string]json.RawMessage{k: v})
		if err != nil {
			return err
		}
		var probe sessionRecordFields
		if json.Unmarshal(one, &probe) != nil {
			extra[k] = v
			continue
		}
		if err := json.Unmarshal(one, &fields); err != nil {
			return err
		}
	}
	if len(extra) > 0 {
		fields.Extra = extra
	}
	*r = SessionRecord(fields)
	return nil
}

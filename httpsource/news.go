package httpsource

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Item is a single headline from a source.
type Item struct {
	ID            string `json:"id,omitempty"`
	Title         string `json:"title"`
	URL           string `json:"url"`
	MobileURL     string `json:"mobileUrl,omitempty"`
	ExtensionData string `json:"extensionData,omitempty"`
}

// News is the list of headlines of one source.
type News struct {
	Items []Item
	// UpdatedTime is when the source last updated its list. Zero if the
	// server did not say.
	UpdatedTime time.Time
}

// newsResponse is the response body for a source. Data is either a list of
// items or an object with an items list. Some servers name the time field
// updateTime.
type newsResponse struct {
	Data        json.RawMessage `json:"data"`
	UpdatedTime json.RawMessage `json:"updatedTime"`
	UpdateTime  json.RawMessage `json:"updateTime"`
}

type newsData struct {
	Items       []Item          `json:"items"`
	UpdatedTime json.RawMessage `json:"updatedTime"`
}

// timeLayouts are tried in order. Times without a zone are local.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseTime parses a JSON time string. It returns the zero time for a missing,
// non-string, or unrecognized value.
func parseTime(raw json.RawMessage) time.Time {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return time.Time{}
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

// DecodeNews decodes a source response body. A missing or null data field
// decodes to News with no items. An unreadable update time is left zero.
func DecodeNews(body []byte) (*News, error) {
	var resp newsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	news := &News{}
	var innerTime time.Time
	data := bytes.TrimSpace(resp.Data)
	if len(data) != 0 {
		switch data[0] {
		case '[':
			if err := json.Unmarshal(data, &news.Items); err != nil {
				return nil, err
			}
		case '{':
			var nd newsData
			if err := json.Unmarshal(data, &nd); err != nil {
				return nil, err
			}
			news.Items = nd.Items
			innerTime = parseTime(nd.UpdatedTime)
		}
	}

	for _, t := range []time.Time{parseTime(resp.UpdatedTime), parseTime(resp.UpdateTime), innerTime} {
		if !t.IsZero() {
			news.UpdatedTime = t
			break
		}
	}
	return news, nil
}

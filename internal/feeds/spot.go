package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"enroute_tracker/internal/geo"
)

// DefaultSpotURLTemplate is the public single-device feed; %s is the feed GID.
const DefaultSpotURLTemplate = "https://api.findmespot.com/spot-main-web/consumer/rest-api/2.0/public/feed/%s/message.json"

// spotNoData is the description Spot returns for a feed with nothing to show.
const spotNoData = "No displayable messages"

const spotDateTime = "2006-01-02T15:04:05-0700"

type spotEnvelope struct {
	Response struct {
		Errors *struct {
			Error json.RawMessage `json:"error"`
		} `json:"errors"`
		FeedMessageResponse *struct {
			Messages struct {
				Message json.RawMessage `json:"message"`
			} `json:"messages"`
		} `json:"feedMessageResponse"`
	} `json:"response"`
}

type spotError struct {
	Code        string `json:"code"`
	Text        string `json:"text"`
	Description string `json:"description"`
}

type spotMessage struct {
	MessengerID  string   `json:"messengerId"`
	UnixTime     int64    `json:"unixTime"`
	DateTime     string   `json:"dateTime"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	BatteryState string   `json:"batteryState"`
}

// ParseSpot decodes a Spot feed response into messages, newest first.
// "No displayable messages" yields an empty slice; any other error the
// response carries, or a response that cannot be read, is a ProviderFault.
func ParseSpot(gid string, body []byte) ([]Message, error) {
	var env spotEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &ProviderFault{Scope: gid, Detail: fmt.Sprintf("malformed response: %v", err)}
	}
	if env.Response.Errors != nil {
		desc := spotErrorDescription(env.Response.Errors.Error)
		if strings.Contains(desc, spotNoData) {
			return []Message{}, nil
		}
		return nil, &ProviderFault{Scope: gid, Detail: desc}
	}
	if env.Response.FeedMessageResponse == nil {
		return nil, &ProviderFault{Scope: gid, Detail: "response carries neither errors nor messages"}
	}

	raws, err := oneOrMany(env.Response.FeedMessageResponse.Messages.Message)
	if err != nil {
		return nil, &ProviderFault{Scope: gid, Detail: fmt.Sprintf("malformed messages: %v", err)}
	}
	msgs := make([]Message, 0, len(raws))
	for i, raw := range raws {
		m, err := spotToMessage(raw)
		if err != nil {
			return nil, &ProviderFault{Scope: gid, Detail: fmt.Sprintf("message %d: %v", i, err)}
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// oneOrMany accepts a JSON array or a lone object, which Spot sends when
// the feed holds a single message.
func oneOrMany(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case trimmed == "" || trimmed == "null":
		return nil, nil
	case strings.HasPrefix(trimmed, "["):
		var many []json.RawMessage
		if err := json.Unmarshal(raw, &many); err != nil {
			return nil, err
		}
		return many, nil
	default:
		return []json.RawMessage{raw}, nil
	}
}

func spotErrorDescription(raw json.RawMessage) string {
	items, err := oneOrMany(raw)
	if err != nil || len(items) == 0 {
		return "unreadable error: " + string(raw)
	}
	var descs []string
	for _, item := range items {
		var e spotError
		if err := json.Unmarshal(item, &e); err != nil {
			descs = append(descs, string(item))
			continue
		}
		switch {
		case e.Description != "":
			descs = append(descs, e.Description)
		case e.Text != "":
			descs = append(descs, e.Text)
		default:
			descs = append(descs, e.Code)
		}
	}
	return strings.Join(descs, "; ")
}

func spotToMessage(raw json.RawMessage) (Message, error) {
	var sm spotMessage
	if err := json.Unmarshal(raw, &sm); err != nil {
		return Message{}, err
	}
	if sm.Latitude == nil || sm.Longitude == nil {
		return Message{}, errors.New("missing latitude or longitude")
	}
	p := geo.Pt(*sm.Latitude, *sm.Longitude)
	if err := p.Validate(); err != nil {
		return Message{}, err
	}

	var at time.Time
	switch {
	case sm.UnixTime > 0:
		at = time.Unix(sm.UnixTime, 0).UTC()
	case sm.DateTime != "":
		t, err := time.Parse(spotDateTime, sm.DateTime)
		if err != nil {
			return Message{}, fmt.Errorf("bad dateTime %q: %w", sm.DateTime, err)
		}
		at = t.UTC()
	default:
		return Message{}, errors.New("missing timestamp")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Message{}, err
	}
	return Message{
		DeviceID:     sm.MessengerID,
		Time:         at,
		Point:        p,
		BatteryState: sm.BatteryState,
		Fields:       flatten(fields),
	}, nil
}

func flatten(fields map[string]json.RawMessage) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		out[k] = string(v)
	}
	return out
}

// SpotClient polls the single-device provider, one feed per request.
type SpotClient struct {
	urlTemplate string
	timeout     time.Duration
	httpClient  *http.Client
}

// NewSpotClient builds a client. An empty template selects the public Spot
// feed and a nil http.Client selects http.DefaultClient.
func NewSpotClient(urlTemplate string, timeout time.Duration, hc *http.Client) *SpotClient {
	if urlTemplate == "" {
		urlTemplate = DefaultSpotURLTemplate
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &SpotClient{urlTemplate: urlTemplate, timeout: timeout, httpClient: hc}
}

// FetchDevice retrieves the recent messages of one feed, newest first.
func (c *SpotClient) FetchDevice(ctx context.Context, gid string) ([]Message, error) {
	body, err := fetch(ctx, c.httpClient, c.timeout, gid, fmt.Sprintf(c.urlTemplate, url.PathEscape(gid)))
	if err != nil {
		return nil, err
	}
	return ParseSpot(gid, body)
}

// Check queries a feed directly and reports whether it is usable. A feed
// with no messages is valid.
func (c *SpotClient) Check(ctx context.Context, gid string) (bool, string) {
	_, err := c.FetchDevice(ctx, gid)
	if err == nil {
		return true, ""
	}
	var pf *ProviderFault
	if errors.As(err, &pf) {
		return false, pf.Detail
	}
	return false, err.Error()
}

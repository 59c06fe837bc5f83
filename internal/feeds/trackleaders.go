package feeds

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"enroute_tracker/internal/geo"
)

// TrackLeadersScope names the aggregated feed in faults and poll state.
const TrackLeadersScope = "trackleaders"

// The aggregate document is a root holding one group per racer, each with
// zero or more message elements of flat key/value children.
type tlDocument struct {
	Groups []tlGroup `xml:",any"`
}

type tlGroup struct {
	Messages []tlMessage `xml:"message"`
}

type tlMessage struct {
	Fields []tlField `xml:",any"`
}

type tlField struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// Batch is one aggregated response: the messages that decoded, in document
// order, and a fault for each message that did not.
type Batch struct {
	Messages []Message
	Faults   []*ProviderFault
}

// ParseTrackLeaders decodes an aggregated feed. Message fields are kept
// verbatim in Message.Fields. A message that cannot be read becomes a fault
// scoped to its device and the rest of the feed is kept; only a document that
// cannot be read at all is an error.
func ParseTrackLeaders(scope string, body []byte) (Batch, error) {
	var doc tlDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return Batch{}, &ProviderFault{Scope: scope, Detail: fmt.Sprintf("malformed feed: %v", err)}
	}

	b := Batch{Messages: []Message{}}
	n := 0
	for _, g := range doc.Groups {
		for _, tm := range g.Messages {
			fields := make(map[string]string, len(tm.Fields))
			for _, f := range tm.Fields {
				fields[f.XMLName.Local] = strings.TrimSpace(f.Value)
			}
			m, err := tlToMessage(fields)
			if err != nil {
				faultScope := fields["esn"]
				if faultScope == "" {
					faultScope = fmt.Sprintf("%s message %d", scope, n)
				}
				b.Faults = append(b.Faults, &ProviderFault{Scope: faultScope, Detail: err.Error()})
			} else {
				b.Messages = append(b.Messages, m)
			}
			n++
		}
	}
	return b, nil
}

func tlToMessage(fields map[string]string) (Message, error) {
	esn := fields["esn"]
	if esn == "" {
		return Message{}, fmt.Errorf("missing esn")
	}
	lat, err := strconv.ParseFloat(fields["latitude"], 64)
	if err != nil {
		return Message{}, fmt.Errorf("bad latitude %q", fields["latitude"])
	}
	lon, err := strconv.ParseFloat(fields["longitude"], 64)
	if err != nil {
		return Message{}, fmt.Errorf("bad longitude %q", fields["longitude"])
	}
	p := geo.Pt(lat, lon)
	if err := p.Validate(); err != nil {
		return Message{}, err
	}

	var at time.Time
	if ts := fields["timestamp"]; ts != "" {
		if at, err = time.Parse(time.RFC3339, ts); err != nil {
			return Message{}, fmt.Errorf("bad timestamp %q", ts)
		}
	} else if secs, perr := strconv.ParseInt(fields["timeInGMTSecond"], 10, 64); perr == nil {
		at = time.Unix(secs, 0)
	} else {
		return Message{}, fmt.Errorf("missing timestamp")
	}

	return Message{
		DeviceID:     esn,
		Time:         at.UTC(),
		Point:        p,
		BatteryState: fields["batteryState"],
		Fields:       fields,
	}, nil
}

// TrackLeadersClient reads the aggregated feed: one request covers every
// device in the event.
type TrackLeadersClient struct {
	url        string
	timeout    time.Duration
	httpClient *http.Client
}

func NewTrackLeadersClient(url string, timeout time.Duration, hc *http.Client) *TrackLeadersClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &TrackLeadersClient{url: url, timeout: timeout, httpClient: hc}
}

// FetchBatch retrieves and parses the whole aggregated feed.
func (c *TrackLeadersClient) FetchBatch(ctx context.Context) (Batch, error) {
	body, err := fetch(ctx, c.httpClient, c.timeout, TrackLeadersScope, c.url)
	if err != nil {
		return Batch{}, err
	}
	return ParseTrackLeaders(TrackLeadersScope, body)
}

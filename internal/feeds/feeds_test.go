package feeds

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enroute_tracker/internal/geo"
)

const spotFeed = `{"response":{"feedMessageResponse":{"count":3,"messages":{"message":[
 {"@clientUnixTime":"0","id":821374484,"messengerId":"0-2460348","messengerName":"Michal's Spot","unixTime":1504235730,"messageType":"TRACK","latitude":44.02339,"longitude":-123.13719,"dateTime":"2017-09-01T03:15:30+0000","batteryState":"GOOD","altitude":-103},
 {"@clientUnixTime":"0","id":821371513,"messengerId":"0-2460348","messengerName":"Michal's Spot","unixTime":1504235140,"messageType":"OK","latitude":44.04497,"longitude":-123.07883,"dateTime":"2017-09-01T03:05:40+0000","batteryState":"GOOD","altitude":0},
 {"@clientUnixTime":"0","id":821368036,"messengerId":"0-2460348","messengerName":"Michal's Spot","unixTime":1504232535,"messageType":"TRACK","latitude":44.04246,"longitude":-123.11697,"dateTime":"2017-09-01T02:22:15+0000","batteryState":"LOW","altitude":-103}
]}}}}`

const spotSingleton = `{"response":{"feedMessageResponse":{"count":1,"messages":{"message":
 {"messengerId":"0-1","dateTime":"2017-09-01T03:15:30+0000","latitude":44.0,"longitude":-123.0,"batteryState":"GOOD"}
}}}}`

const spotNoMessages = `{"response":{"errors":{"error":{"code":"E-0195","text":"No Messages to display","description":"No displayable messages found found for feed: 0abc"}}}}`

const spotBadFeed = `{"response":{"errors":{"error":{"code":"E-0160","text":"Feed Not Found","description":"Feed with Id: 0bogus not found."}}}}`

const tlFeed = `<?xml version="1.0"?>
<trackleaders_aggregate_feed>
<trackleaders_feed><trackleaders_racer_ID>1</trackleaders_racer_ID></trackleaders_feed>
<trackleaders_feed>
<trackleaders_racer_ID>3</trackleaders_racer_ID>
<message><id>993354437</id><esn>0-2578655</esn><esnName>T305c</esnName><messageType>UNLIMITED-TRACK</messageType><messageDetail/>
<timestamp>2018-06-12T18:17:23.000Z</timestamp><timeInGMTSecond>1528827443</timeInGMTSecond>
<latitude>40.11396</latitude><longitude>95.7913</longitude><batteryState>LOW</batteryState><elevation>-1.000000</elevation></message>
<message><id>993350560</id><esn>0-2578655</esn><esnName>T305c</esnName><messageType>UNLIMITED-TRACK</messageType><messageDetail/>
<timestamp>2018-06-12T18:12:15.000Z</timestamp><timeInGMTSecond>1528827135</timeInGMTSecond>
<latitude>40.11379</latitude><longitude>95.79116</longitude><batteryState>LOW</batteryState><elevation>-1.000000</elevation></message>
</trackleaders_feed>
<trackleaders_feed>
<trackleaders_racer_ID>4</trackleaders_racer_ID>
<message><esn>0-3159988</esn><timestamp>2018-06-12T18:15:00Z</timestamp>
<latitude>40.2</latitude><longitude>95.9</longitude><batteryState>GOOD</batteryState></message>
</trackleaders_feed>
</trackleaders_aggregate_feed>`

func msg(id string, at time.Time, lat, lon float64) Message {
	return Message{DeviceID: id, Time: at, Point: geo.Pt(lat, lon), BatteryState: "GOOD"}
}

func TestNormalize(t *testing.T) {
	now := time.Date(2017, 9, 1, 4, 0, 0, 0, time.UTC)
	msgs := []Message{
		msg("a", now.Add(-10*time.Minute), 44.3, -123.0),
		msg("a", now.Add(-20*time.Minute), 44.2, -123.0),
		msg("a", now.Add(-90*time.Minute), 44.1, -123.0),
		msg("a", now.Add(-30*time.Minute), 44.0, -123.0), // past the stop point
	}

	track, anomalies := Normalize("gid", msgs, now, time.Hour)
	assert.Empty(t, anomalies)
	assert.Equal(t, "gid", track.ID)
	require.NotNil(t, track.Latest)
	assert.Equal(t, now.Add(-10*time.Minute), track.Latest.DateTime)
	assert.Equal(t, geo.Pt(44.3, -123.0), track.Latest.LatLon)
	require.NotNil(t, track.Latest.PriorPosition)
	assert.Equal(t, geo.Pt(44.2, -123.0), *track.Latest.PriorPosition)
	assert.Equal(t, []geo.GeoPoint{geo.Pt(44.2, -123.0), geo.Pt(44.3, -123.0)}, track.Path)
}

func TestNormalizeSingleAndEmpty(t *testing.T) {
	now := time.Date(2017, 9, 1, 4, 0, 0, 0, time.UTC)

	track, _ := Normalize("gid", []Message{msg("a", now.Add(-3*time.Hour), 44, -123)}, now, time.Hour)
	require.NotNil(t, track.Latest)
	assert.Nil(t, track.Latest.PriorPosition)
	assert.NotNil(t, track.Path)
	assert.Empty(t, track.Path)

	empty, anomalies := Normalize("gid", nil, now, time.Hour)
	assert.Nil(t, empty.Latest)
	assert.NotNil(t, empty.Path)
	assert.Empty(t, anomalies)
}

func TestNormalizeFlagsOutOfOrder(t *testing.T) {
	now := time.Date(2018, 6, 12, 18, 30, 0, 0, time.UTC)
	msgs := []Message{
		msg("esn", now.Add(-10*time.Minute), 40.1, 95.7),
		msg("esn", now.Add(-5*time.Minute), 40.2, 95.8),
	}
	track, anomalies := Normalize("esn", msgs, now, time.Hour)
	require.Len(t, anomalies, 1)
	assert.Equal(t, "esn", anomalies[0].DeviceID)
	assert.Equal(t, now.Add(-5*time.Minute), anomalies[0].Offending)
	assert.Contains(t, anomalies[0].String(), "newer than latest")
	// latest is not promoted
	assert.Equal(t, now.Add(-10*time.Minute), track.Latest.DateTime)
}

func TestNormalizeIdempotent(t *testing.T) {
	now := time.Date(2017, 9, 1, 3, 30, 0, 0, time.UTC)
	msgs, err := ParseSpot("gid", []byte(spotFeed))
	require.NoError(t, err)
	again, err := ParseSpot("gid", []byte(spotFeed))
	require.NoError(t, err)

	a, _ := Normalize("gid", msgs, now, time.Hour)
	b, _ := Normalize("gid", again, now, time.Hour)
	assert.Equal(t, a, b)
}

func TestNormalizeBatch(t *testing.T) {
	now := time.Date(2018, 6, 12, 18, 30, 0, 0, time.UTC)
	b, err := ParseTrackLeaders(TrackLeadersScope, []byte(tlFeed))
	require.NoError(t, err)
	require.Empty(t, b.Faults)

	tracks, anomalies := NormalizeBatch(b.Messages, now, time.Hour)
	assert.Empty(t, anomalies)
	require.Len(t, tracks, 2)

	assert.Equal(t, "0-2578655", tracks[0].ID)
	assert.Equal(t, time.Date(2018, 6, 12, 18, 17, 23, 0, time.UTC), tracks[0].Latest.DateTime)
	assert.Equal(t, geo.Pt(40.11396, 95.7913), tracks[0].Latest.LatLon)
	assert.Equal(t, "LOW", tracks[0].Latest.BatteryState)
	assert.Equal(t, []geo.GeoPoint{geo.Pt(40.11379, 95.79116), geo.Pt(40.11396, 95.7913)}, tracks[0].Path)

	assert.Equal(t, "0-3159988", tracks[1].ID)
	assert.Len(t, tracks[1].Path, 1)
}

func TestParseSpot(t *testing.T) {
	msgs, err := ParseSpot("gid", []byte(spotFeed))
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "0-2460348", msgs[0].DeviceID)
	assert.Equal(t, time.Unix(1504235730, 0).UTC(), msgs[0].Time)
	assert.Equal(t, geo.Pt(44.02339, -123.13719), msgs[0].Point)
	assert.Equal(t, "LOW", msgs[2].BatteryState)
	assert.Equal(t, "Michal's Spot", msgs[0].Fields["messengerName"])
	assert.Equal(t, "-103", msgs[0].Fields["altitude"])

	single, err := ParseSpot("gid", []byte(spotSingleton))
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Equal(t, time.Date(2017, 9, 1, 3, 15, 30, 0, time.UTC), single[0].Time)

	empty, err := ParseSpot("gid", []byte(spotNoMessages))
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Equal(t, OutcomeEmpty, Classify(empty, err))
}

func TestParseSpotFaults(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"provider error", spotBadFeed, "not found"},
		{"not json", `<html>`, "malformed response"},
		{"no payload", `{"response":{}}`, "neither errors nor messages"},
		{"missing position", `{"response":{"feedMessageResponse":{"messages":{"message":{"unixTime":1}}}}}`, "missing latitude"},
		{"bad coordinate", `{"response":{"feedMessageResponse":{"messages":{"message":{"unixTime":1,"latitude":99,"longitude":0}}}}}`, "invalid coordinate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := ParseSpot("0bogus", []byte(tt.body))
			require.Error(t, err)
			var pf *ProviderFault
			require.True(t, errors.As(err, &pf))
			assert.Equal(t, "0bogus", pf.Scope)
			assert.Contains(t, pf.Detail, tt.want)
			assert.Equal(t, OutcomeProviderFault, Classify(msgs, err))
		})
	}
}

func TestParseTrackLeaders(t *testing.T) {
	b, err := ParseTrackLeaders(TrackLeadersScope, []byte(tlFeed))
	require.NoError(t, err)
	assert.Empty(t, b.Faults)
	msgs := b.Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "T305c", msgs[0].Fields["esnName"])
	assert.Equal(t, "", msgs[0].Fields["messageDetail"])
	assert.Equal(t, "LOW", msgs[0].BatteryState)

	empty, err := ParseTrackLeaders(TrackLeadersScope, []byte(`<trackleaders_aggregate_feed></trackleaders_aggregate_feed>`))
	require.NoError(t, err)
	assert.Empty(t, empty.Messages)
	assert.Empty(t, empty.Faults)
	assert.Equal(t, OutcomeEmpty, Classify(empty.Messages, err))

	_, err = ParseTrackLeaders(TrackLeadersScope, []byte(`<feed><g>`))
	var pf *ProviderFault
	require.True(t, errors.As(err, &pf))
	assert.Equal(t, TrackLeadersScope, pf.Scope)
}

func TestParseTrackLeadersKeepsGoodDevices(t *testing.T) {
	feed := `<feed>
<g><message><esn>0-1</esn><timestamp>2018-06-12T18:15:00Z</timestamp><latitude>40.2</latitude><longitude>95.9</longitude></message></g>
<g><message><esn>0-2</esn><timestamp>2018-06-12T18:15:00Z</timestamp><latitude></latitude><longitude>95.9</longitude></message></g>
<g><message><latitude>1</latitude></message></g>
<g><message><esn>0-3</esn><timestamp>yesterday</timestamp><latitude>40.3</latitude><longitude>95.9</longitude></message>
<message><esn>0-3</esn><timestamp>2018-06-12T18:10:00Z</timestamp><latitude>40.25</latitude><longitude>95.9</longitude></message></g>
</feed>`

	b, err := ParseTrackLeaders(TrackLeadersScope, []byte(feed))
	require.NoError(t, err)

	require.Len(t, b.Messages, 2)
	assert.Equal(t, "0-1", b.Messages[0].DeviceID)
	assert.Equal(t, geo.Pt(40.2, 95.9), b.Messages[0].Point)
	assert.Equal(t, "0-3", b.Messages[1].DeviceID)
	assert.Equal(t, geo.Pt(40.25, 95.9), b.Messages[1].Point)

	require.Len(t, b.Faults, 3)
	assert.Equal(t, "0-2", b.Faults[0].Scope)
	assert.Contains(t, b.Faults[0].Detail, "bad latitude")
	assert.Equal(t, "trackleaders message 2", b.Faults[1].Scope)
	assert.Contains(t, b.Faults[1].Detail, "missing esn")
	assert.Equal(t, "0-3", b.Faults[2].Scope)
	assert.Contains(t, b.Faults[2].Detail, "bad timestamp")
}

func TestSpotClient(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch {
		case strings.Contains(r.URL.Path, "/good/"):
			_, _ = w.Write([]byte(spotFeed))
		case strings.Contains(r.URL.Path, "/quiet/"):
			_, _ = w.Write([]byte(spotNoMessages))
		case strings.Contains(r.URL.Path, "/bogus/"):
			_, _ = w.Write([]byte(spotBadFeed))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	c := NewSpotClient(srv.URL+"/feed/%s/message.json", time.Second, srv.Client())
	ctx := context.Background()

	msgs, err := c.FetchDevice(ctx, "good")
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
	assert.Equal(t, OutcomeData, Classify(msgs, err))

	ok, reason := c.Check(ctx, "quiet")
	assert.True(t, ok)
	assert.Empty(t, reason)

	ok, reason = c.Check(ctx, "bogus")
	assert.False(t, ok)
	assert.Contains(t, reason, "not found")

	_, err = c.FetchDevice(ctx, "down")
	var nf *NetworkFault
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "down", nf.Scope)
	assert.Equal(t, OutcomeNetworkFault, Classify(nil, err))
	assert.True(t, Classify(nil, err).Failed())

	assert.Equal(t, int32(4), hits.Load(), "no retries")
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewTrackLeadersClient(srv.URL, 50*time.Millisecond, srv.Client())
	start := time.Now()
	_, err := c.FetchBatch(context.Background())
	var nf *NetworkFault
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, TrackLeadersScope, nf.Scope)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestTrackLeadersClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(tlFeed))
	}))
	defer srv.Close()

	b, err := NewTrackLeadersClient(srv.URL, time.Second, nil).FetchBatch(context.Background())
	require.NoError(t, err)
	assert.Len(t, b.Messages, 3)
}

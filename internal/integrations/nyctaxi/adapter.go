// Package nyctaxi reads NYC yellow-taxi trip records (the 2015 layout with
// coordinates) into trip requests.
package nyctaxi

import (
    "context"
    "encoding/csv"
    "errors"
    "fmt"
    "io"
    "os"
    "sort"
    "strconv"
    "time"

    "github.com/rs/zerolog"

    "darpm/internal/geo"
    "darpm/internal/model"
)

// Column positions in the trip record files.
const (
    colPickupDatetime = 1
    colPickupLng      = 5
    colPickupLat      = 6
    colDropoffLng     = 9
    colDropoffLat     = 10
)

// maxTripSec drops trips whose direct ride would exceed 12 hours.
const maxTripSec = 12 * 3600

type Options struct {
    TimeWindow time.Duration // width of the pickup and drop-off windows
    Timeframe  time.Duration // keep pickups within this span of the first one
    TestSize   int           // cap on the number of requests; 0 keeps all
    MaxRows    int           // cap on the data rows read; 0 reads the whole file
    SpeedKph   float64
    Log        zerolog.Logger
}

// Trip is one accepted record before numbering.
type Trip struct {
    Pickup, Dropoff     model.TimeWindow
    Origin, Destination model.GeoPoint
}

// Adapter loads a static instance from a trip record CSV file.
type Adapter struct {
    Path string
    Opts Options
}

func (a Adapter) Name() string { return "nyc-taxi" }

func (a Adapter) Load(ctx context.Context) ([]model.Request, error) {
    f, err := os.Open(a.Path)
    if err != nil {
        return nil, err
    }
    defer f.Close()
    trips, err := Read(ctx, f, a.Opts)
    if err != nil {
        return nil, fmt.Errorf("%s: %w", a.Path, err)
    }
    reqs := Select(trips, a.Opts.Timeframe, a.Opts.TestSize)
    a.Opts.Log.Info().Int("trips", len(trips)).Int("requests", len(reqs)).
        Dur("timeframe", a.Opts.Timeframe).Msg("dataset loaded")
    return reqs, nil
}

// Read parses trip records after the header row, drops unusable ones and
// returns the rest sorted by pickup window opening. Only the pickup time is
// taken from the file; the drop-off is derived from the direct travel time.
func Read(ctx context.Context, r io.Reader, o Options) ([]Trip, error) {
    metric := geo.NewHaversine(o.SpeedKph)
    width := o.TimeWindow.Seconds()
    cr := csv.NewReader(r)
    cr.FieldsPerRecord = -1
    cr.ReuseRecord = true
    if _, err := cr.Read(); err != nil {
        if errors.Is(err, io.EOF) {
            return nil, nil
        }
        return nil, fmt.Errorf("read header: %w", err)
    }
    var trips []Trip
    skipped := 0
    for row := 0; o.MaxRows == 0 || row < o.MaxRows; row++ {
        if row%1000 == 0 && ctx.Err() != nil {
            return nil, ctx.Err()
        }
        rec, err := cr.Read()
        if errors.Is(err, io.EOF) {
            break
        }
        if err != nil {
            return nil, err
        }
        t, ok := parseTrip(rec, metric, width)
        if !ok {
            skipped++
            continue
        }
        trips = append(trips, t)
    }
    sort.SliceStable(trips, func(i, j int) bool { return trips[i].Pickup.Earliest < trips[j].Pickup.Earliest })
    if skipped > 0 {
        o.Log.Debug().Int("skipped", skipped).Msg("dropped unusable trip records")
    }
    return trips, nil
}

func parseTrip(rec []string, metric geo.Haversine, width float64) (Trip, bool) {
    if len(rec) <= colDropoffLat {
        return Trip{}, false
    }
    at, err := secondsOfDay(rec[colPickupDatetime])
    if err != nil {
        return Trip{}, false
    }
    var c [4]float64
    for i, col := range []int{colPickupLat, colPickupLng, colDropoffLat, colDropoffLng} {
        if c[i], err = strconv.ParseFloat(rec[col], 64); err != nil {
            return Trip{}, false
        }
    }
    from := model.GeoPoint{Lat: c[0], Lng: c[1]}
    to := model.GeoPoint{Lat: c[2], Lng: c[3]}
    if (from.Lat == 0 && from.Lng == 0) || (to.Lat == 0 && to.Lng == 0) || from == to {
        return Trip{}, false
    }
    travel := metric.TravelTime(from, to)
    if travel > maxTripSec {
        return Trip{}, false
    }
    arrive := at + travel
    return Trip{
        Pickup:      model.TimeWindow{Earliest: at - width, Latest: at},
        Dropoff:     model.TimeWindow{Earliest: arrive, Latest: arrive + width},
        Origin:      from,
        Destination: to,
    }, true
}

func secondsOfDay(v string) (float64, error) {
    t, err := time.Parse(time.DateTime, v)
    if err != nil {
        return 0, err
    }
    return float64(t.Hour()*3600 + t.Minute()*60 + t.Second()), nil
}

// Select keeps the sorted trips whose pickup window opens within timeframe
// of the first one, at most testSize of them, and numbers them from 1.
func Select(trips []Trip, timeframe time.Duration, testSize int) []model.Request {
    if len(trips) == 0 {
        return nil
    }
    t0 := trips[0].Pickup.Earliest
    var out []model.Request
    for i, t := range trips {
        if timeframe > 0 && t.Pickup.Earliest >= t0+timeframe.Seconds() {
            break
        }
        if testSize > 0 && len(out) == testSize {
            break
        }
        out = append(out, model.Request{
            ID:          i + 1,
            Pickup:      t.Pickup,
            Dropoff:     t.Dropoff,
            Origin:      t.Origin,
            Destination: t.Destination,
        })
    }
    return out
}

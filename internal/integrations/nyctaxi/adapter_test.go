package nyctaxi

import (
    "context"
    "os"
    "path/filepath"
    "strings"
    "testing"
    "time"

    "github.com/stretchr/testify/require"

    "darpm/internal/geo"
    "darpm/internal/model"
)

const header = "VendorID,tpep_pickup_datetime,tpep_dropoff_datetime,passenger_count,trip_distance,pickup_longitude,pickup_latitude,RateCodeID,store_and_fwd_flag,dropoff_longitude,dropoff_latitude,payment_type\n"

func row(pickup string, puLng, puLat, doLng, doLat string) string {
    return strings.Join([]string{"2", pickup, "2015-01-15 19:23:42", "1", "1.59", puLng, puLat, "1", "N", doLng, doLat, "1"}, ",") + "\n"
}

var sample = header +
    row("2015-01-15 19:05:40", "-73.993896", "40.750111", "-73.974785", "40.750618") +
    row("2015-01-15 19:05:39", "-74.001648", "40.724243", "-73.994415", "40.759109") +
    row("2015-01-15 19:05:41", "0", "0", "0", "0") +
    row("2015-01-15 19:05:42", "-73.963341", "40.802788", "-73.963341", "40.802788") +
    row("not a date", "-73.963341", "40.802788", "-73.951820", "40.824413") +
    row("2015-01-15 19:30:00", "-73.963341", "40.802788", "-73.951820", "40.824413")

func opts() Options {
    return Options{TimeWindow: 15 * time.Minute, Timeframe: 1000 * time.Second, SpeedKph: 40}
}

func TestReadFiltersAndSorts(t *testing.T) {
    trips, err := Read(context.Background(), strings.NewReader(sample), opts())
    require.NoError(t, err)
    require.Len(t, trips, 3)

    first := trips[0]
    at := float64(19*3600 + 5*60 + 39)
    require.Equal(t, at-900, first.Pickup.Earliest)
    require.Equal(t, at, first.Pickup.Latest)
    require.Equal(t, model.GeoPoint{Lat: 40.724243, Lng: -74.001648}, first.Origin)

    travel := geo.NewHaversine(40).TravelTime(first.Origin, first.Destination)
    require.InDelta(t, at+travel, first.Dropoff.Earliest, 1e-9)
    require.InDelta(t, at+travel+900, first.Dropoff.Latest, 1e-9)

    for i := 1; i < len(trips); i++ {
        require.LessOrEqual(t, trips[i-1].Pickup.Earliest, trips[i].Pickup.Earliest)
    }
}

func TestReadMaxRows(t *testing.T) {
    o := opts()
    o.MaxRows = 1
    trips, err := Read(context.Background(), strings.NewReader(sample), o)
    require.NoError(t, err)
    require.Len(t, trips, 1)
}

func TestReadHonoursContext(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    cancel()
    _, err := Read(ctx, strings.NewReader(sample), opts())
    require.ErrorIs(t, err, context.Canceled)
}

func TestSelectTimeframeAndSize(t *testing.T) {
    trips, err := Read(context.Background(), strings.NewReader(sample), opts())
    require.NoError(t, err)

    reqs := Select(trips, 1000*time.Second, 0)
    require.Len(t, reqs, 2, "the 19:30 trip is outside the timeframe")
    require.Equal(t, 1, reqs[0].ID)
    require.Equal(t, 2, reqs[1].ID)

    require.Len(t, Select(trips, 0, 0), 3)
    require.Len(t, Select(trips, 0, 1), 1)
    require.Nil(t, Select(nil, time.Second, 1))
}

func TestAdapterLoad(t *testing.T) {
    path := filepath.Join(t.TempDir(), "yellow.csv")
    require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
    a := Adapter{Path: path, Opts: opts()}
    require.Equal(t, "nyc-taxi", a.Name())
    reqs, err := a.Load(context.Background())
    require.NoError(t, err)
    require.Len(t, reqs, 2)
    for _, r := range reqs {
        require.LessOrEqual(t, r.Pickup.Earliest, r.Pickup.Latest)
        require.Less(t, r.Pickup.Latest, r.Dropoff.Latest)
    }

    _, err = Adapter{Path: filepath.Join(t.TempDir(), "missing.csv")}.Load(context.Background())
    require.Error(t, err)
}

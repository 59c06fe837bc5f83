// Command planarize converts a route points file, or a GeoJSON LineString
// with -geojson, into a planarized route file.
//
//	planarize [-geojson] in.json out.json
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"enroute_tracker/internal/geo"
	"enroute_tracker/internal/route"
)

func main() {
	geojson := flag.Bool("geojson", false, "input is a GeoJSON LineString or Feature")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: planarize [-geojson] in.json out.json")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), flag.Arg(1), *geojson); err != nil {
		logrus.WithError(err).Fatal("Planarize failed")
	}
}

func run(in, out string, geojson bool) error {
	points, err := readRoute(in, geojson)
	if err != nil {
		return err
	}
	pr, err := route.Planarize(points)
	if err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := route.WritePlanar(f, pr); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"zone":     pr.Zone,
		"south":    pr.South,
		"vertices": len(pr.Vertices),
		"km":       fmt.Sprintf("%.2f", pr.TotalKm()),
	}).Info("Route planarized")
	return nil
}

func readRoute(path string, geojson bool) ([]geo.GeoPoint, error) {
	if geojson {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return route.PointsFromGeoJSON(data)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return route.ReadPoints(f)
}

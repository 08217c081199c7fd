package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/aemetwind/aemetwind/internal/api/models"
	"github.com/aemetwind/aemetwind/internal/climate"
	"github.com/aemetwind/aemetwind/internal/config"
	"github.com/aemetwind/aemetwind/internal/station"
	"github.com/aemetwind/aemetwind/internal/wind"
	"github.com/aemetwind/aemetwind/internal/worker"
)

var errEndBeforeStart = errors.New("end date is before start date")

func periodFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "station",
			Aliases:  []string{"s"},
			Usage:    "station identifier (indicativo), e.g. 6297",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "start",
			Usage:    "first day, YYYY-MM-DD",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "end",
			Usage:    "last day, YYYY-MM-DD",
			Required: true,
		},
	}
}

func outputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "write to a file instead of stdout",
	}
}

func queryFromFlags(cmd *cli.Command) (climate.Query, error) {
	q, err := climate.NewQuery(cmd.String("station"), cmd.String("start"), cmd.String("end"))
	if err != nil {
		return climate.Query{}, err
	}
	if q.End.Before(q.Start) {
		return climate.Query{}, errEndBeforeStart
	}
	return q, nil
}

func decomposeCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "decompose",
		Usage: "show how a period is split into API requests",
		Flags: append(periodFlags(),
			&cli.FloatFlag{
				Name:  "max-years",
				Usage: "longest span of one request, in 365-day years",
				Value: climate.MaxYears,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print JSON instead of a table",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			q, err := queryFromFlags(cmd)
			if err != nil {
				return err
			}
			maxYears := cmd.Float("max-years")
			if maxYears <= 0 {
				return fmt.Errorf("max-years must be positive, got %v", maxYears)
			}

			chunks := climate.Decompose(q, maxYears)
			a.log.Debug().Str("query", q.String()).Int("chunks", len(chunks)).Msg("query decomposed")

			w := stdout(cmd)
			if cmd.Bool("json") {
				out := models.Decomposition{
					Query:    models.NewPeriod(q),
					MaxYears: maxYears,
					Chunks:   make([]models.Period, 0, len(chunks)),
				}
				for _, c := range chunks {
					out.Chunks = append(out.Chunks, models.NewPeriod(c))
				}
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STATION\tSTART\tEND\tYEARS")
			for _, c := range chunks {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\n", c.StationID, c.Start, c.End, c.Years())
			}
			return tw.Flush()
		},
	}
}

func climateCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "climate",
		Usage: "stream raw daily climate records as NDJSON",
		Flags: append(periodFlags(),
			outputFlag(),
			&cli.BoolFlag{
				Name:  "metadata",
				Usage: "print the dataset field descriptions instead (period of at most five years)",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := a.requireKey(); err != nil {
				return err
			}
			q, err := queryFromFlags(cmd)
			if err != nil {
				return err
			}

			w, closeOut, err := openOutput(cmd)
			if err != nil {
				return err
			}
			defer closeOut()

			if cmd.Bool("metadata") {
				if err := climate.CheckSpan(q, climate.MaxYears); err != nil {
					return err
				}
				md, err := a.client.DailyClimateMetadata(ctx, q)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(md)
			}

			enc := json.NewEncoder(w)
			fetcher := climate.WithDelay(a.client, a.cfg.AEMET.RequestDelay)
			n := 0
			for rec, err := range climate.Collect(ctx, q, fetcher) {
				if err != nil {
					return err
				}
				if err := enc.Encode(rec); err != nil {
					return err
				}
				n++
			}
			a.log.Info().Str("query", q.String()).Int("records", n).Msg("climate records written")
			return nil
		},
	}
}

// windLine is an NDJSON wind row with the derived Beaufort force and
// cardinal gust direction.
type windLine struct {
	wind.Observation
	Beaufort *int   `json:"beaufort,omitempty"`
	Cardinal string `json:"cardinal,omitempty"`
}

func newWindLine(obs wind.Observation) windLine {
	line := windLine{Observation: obs}
	if obs.AveWindSpeed != nil {
		b := wind.BeaufortNumber(*obs.AveWindSpeed)
		line.Beaufort = &b
	}
	if deg, ok := obs.DirectionDegrees(); ok {
		line.Cardinal = wind.DegreesToCardinal(deg)
	}
	return line
}

// observationWriter writes observations in one output format.
type observationWriter interface {
	Write(obs wind.Observation) error
	Flush() error
}

type ndjsonWriter struct {
	enc *json.Encoder
}

func (w ndjsonWriter) Write(obs wind.Observation) error { return w.enc.Encode(newWindLine(obs)) }
func (w ndjsonWriter) Flush() error                     { return nil }

func newObservationWriter(format string, w io.Writer) (observationWriter, error) {
	switch format {
	case "csv":
		return wind.NewCSVWriter(w), nil
	case "ndjson":
		return ndjsonWriter{enc: json.NewEncoder(w)}, nil
	default:
		return nil, fmt.Errorf("unknown format %q (csv or ndjson)", format)
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "csv or ndjson",
		Value:   "csv",
	}
}

func windCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "wind",
		Usage: "daily mean wind speed, strongest gust and its direction",
		Flags: append(periodFlags(), outputFlag(), formatFlag()),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := a.requireKey(); err != nil {
				return err
			}
			q, err := queryFromFlags(cmd)
			if err != nil {
				return err
			}

			w, closeOut, err := openOutput(cmd)
			if err != nil {
				return err
			}
			defer closeOut()

			ow, err := newObservationWriter(cmd.String("format"), w)
			if err != nil {
				return err
			}
			if cw, ok := ow.(*wind.CSVWriter); ok {
				if err := cw.WriteHeader(); err != nil {
					return err
				}
			}

			svc := wind.NewService(wind.ServiceConfig{
				Fetcher: a.client,
				Delay:   a.cfg.AEMET.RequestDelay,
				Logger:  a.log,
			})

			written, skipped := 0, 0
			for obs, err := range svc.Stream(ctx, q) {
				if err != nil {
					var malformed *wind.MalformedRecordError
					if errors.As(err, &malformed) {
						skipped++
						a.log.Warn().Err(err).Str("station_id", q.StationID).Msg("skipping malformed record")
						continue
					}
					_ = ow.Flush()
					return err
				}
				if err := ow.Write(obs); err != nil {
					return err
				}
				written++
			}
			if err := ow.Flush(); err != nil {
				return err
			}

			a.log.Info().
				Str("query", q.String()).
				Int("observations", written).
				Int("skipped", skipped).
				Msg("wind data written")
			return nil
		},
	}
}

func stationsCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "stations",
		Usage: "list climatological stations as semicolon separated CSV",
		Flags: []cli.Flag{
			outputFlag(),
			&cli.StringFlag{
				Name:  "province",
				Usage: "only stations of this province, ignoring case",
			},
			&cli.FloatFlag{
				Name:  "lat",
				Usage: "latitude in decimal degrees, with --lon",
			},
			&cli.FloatFlag{
				Name:  "lon",
				Usage: "longitude in decimal degrees, with --lat",
			},
			&cli.FloatFlag{
				Name:  "radius",
				Usage: "search radius around --lat/--lon in km",
				Value: 50,
			},
			&cli.BoolFlag{
				Name:  "metadata",
				Usage: "print the inventory field descriptions instead",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := a.requireKey(); err != nil {
				return err
			}
			if cmd.IsSet("lat") != cmd.IsSet("lon") {
				return errors.New("--lat and --lon must be given together")
			}
			if cmd.Float("radius") <= 0 {
				return errors.New("--radius must be positive")
			}

			svc := station.NewService(station.ServiceConfig{Provider: a.client, Logger: a.log})

			w, closeOut, err := openOutput(cmd)
			if err != nil {
				return err
			}
			defer closeOut()

			if cmd.Bool("metadata") {
				md, err := svc.InventoryMetadata(ctx)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(md)
			}

			stations, err := svc.Inventory(ctx)
			if err != nil {
				return err
			}
			if p := cmd.String("province"); p != "" {
				stations = station.InProvince(stations, p)
			}
			if cmd.IsSet("lat") {
				near := station.Near(stations, cmd.Float("lat"), cmd.Float("lon"), cmd.Float("radius"))
				stations = make([]station.Station, 0, len(near))
				for _, n := range near {
					stations = append(stations, n.Station)
				}
			}

			a.log.Debug().Int("stations", len(stations)).Msg("writing stations")
			return station.WriteCSV(w, stations)
		},
	}
}

func downloadCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "download the wind data of several stations into one CSV",
		ArgsUsage: "[station...]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "stations",
				Aliases: []string{"s"},
				Usage:   "station identifiers, comma separated or repeated",
			},
			&cli.StringFlag{
				Name:     "start",
				Usage:    "first day, YYYY-MM-DD",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "end",
				Usage:    "last day, YYYY-MM-DD",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "stations downloaded at once, overrides DOWNLOAD_CONCURRENCY",
			},
			outputFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := a.requireKey(); err != nil {
				return err
			}

			ids := append(cmd.StringSlice("stations"), cmd.Args().Slice()...)
			q, err := climate.NewQuery("", cmd.String("start"), cmd.String("end"))
			if err != nil {
				return err
			}

			dc := worker.DefaultDownloadConfig(ids, q.Start, q.End)
			dc.Concurrency = a.cfg.Download.Concurrency
			if cmd.IsSet("concurrency") {
				dc.Concurrency = int(cmd.Int("concurrency"))
			}
			dc.Timeout = a.cfg.Download.Timeout
			dc.Delay = a.cfg.AEMET.RequestDelay
			if err := dc.Validate(); err != nil {
				return err
			}

			w, closeOut, err := openOutput(cmd)
			if err != nil {
				return err
			}
			defer closeOut()

			job := worker.NewDownloadJob(worker.DownloadJobConfig{
				Config:  dc,
				Fetcher: a.client,
				Logger:  a.log,
			})
			result := job.Run(ctx)

			if err := wind.WriteCSV(w, result.Observations()); err != nil {
				return err
			}
			for id, err := range result.Errors() {
				a.log.Error().Err(err).Str("station_id", id).Msg("station not downloaded")
			}
			if result.Failed > 0 {
				return fmt.Errorf("%d of %d stations failed: %w", result.Failed, len(result.Stations), result.Err())
			}
			return nil
		},
	}
}

func envCommand() *cli.Command {
	return &cli.Command{
		Name:  "env",
		Usage: "list the supported environment variables",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return config.Usage(stdout(cmd))
		},
	}
}

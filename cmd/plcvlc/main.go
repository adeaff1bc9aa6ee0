package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/norasector/plcvlc/pkg/dsp/filters/fir"
	"github.com/norasector/plcvlc/pkg/dsp/viz"
	"github.com/norasector/plcvlc/pkg/dsp/waveform"
	"github.com/norasector/plcvlc/pkg/manchester"
	"github.com/norasector/plcvlc/pkg/plcvlc"
	"github.com/norasector/plcvlc/pkg/plcvlc/config"
	"github.com/norasector/plcvlc/pkg/plcvlc/device"
	"github.com/norasector/plcvlc/pkg/plcvlc/device/file"
	"github.com/norasector/plcvlc/pkg/plcvlc/device/gpio"
	"github.com/norasector/plcvlc/pkg/plcvlc/device/uart"
	"github.com/norasector/plcvlc/pkg/plcvlc/output"
	"github.com/norasector/plcvlc/pkg/plcvlc/program/echoback"
	"github.com/norasector/plcvlc/pkg/plcvlc/program/edgebits"
	"github.com/norasector/plcvlc/pkg/plcvlc/program/sampler"
	"github.com/norasector/plcvlc/pkg/plcvlc/program/transmit"
	"github.com/norasector/plcvlc/pkg/sci"
	"github.com/norasector/plcvlc/pkg/util"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
	configFile := flag.String("config", "plcvlc.yaml", "YAML config file")

	flag.Parse()
	if *configFile == "" {
		flag.Usage()
		os.Exit(1)
	}

	opts, err := config.Load(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("error loading config file")
	}
	log.Logger = log.Logger.Level(opts.Level())

	stationOpts := plcvlc.Options{
		QueueDepth:     opts.QueueDepth,
		StatusInterval: opts.StatusInterval,
	}

	if opts.Program == config.ProgramTransmit {
		stationOpts.Link, err = sci.Open(opts.Link)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open link")
		}
	}
	if opts.Console.Port != "" {
		console, err := sci.OpenPort(opts.Console)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open console")
		}
		defer console.Close()
		stationOpts.Console = console
	}

	var dev device.Device
	switch opts.Device {
	case config.DeviceSerial:
		log.Info().Str("device", "serial").Str("port", opts.Link.Port).Msg("initializing device...")
		link := stationOpts.Link
		if link == nil {
			link, err = sci.Open(opts.Link)
			if err != nil {
				log.Fatal().Str("device", "serial").Err(err).Msg("failed to open link")
			}
		}
		dev = uart.NewUARTDevice(link, log.Logger.With().Str("device", "serial").Logger())
	case config.DeviceGPIO:
		log.Info().Str("device", "gpio").Msg("initializing device...")
		gpioDev, err := gpio.NewGPIODevice(gpio.Pins{
			XINT1:       opts.GPIO.XINT1Pin,
			XINT2:       opts.GPIO.XINT2Pin,
			XINT1Rising: opts.GPIO.XINT1Rising == nil || *opts.GPIO.XINT1Rising,
			XINT2Rising: opts.GPIO.XINT2Rising != nil && *opts.GPIO.XINT2Rising,
			Monitors:    opts.GPIO.MonitorPins,
		}, log.Logger.With().Str("device", "gpio").Logger())
		if err != nil {
			log.Fatal().Str("device", "gpio").Err(err).Msg("failed to initialize gpio")
		}
		stationOpts.Monitors = gpioDev.Monitors()
		dev = gpioDev
	case config.DeviceFile:
		log.Info().Str("device", "file").Str("capture", opts.PlaybackLocation).Msg("initializing device...")
		fileDev, err := file.NewFileDevice(opts.PlaybackLocation, opts.PlaybackInterval)
		if err != nil {
			log.Fatal().Str("device", "file").Err(err).Msg("failed to init file reader")
		}
		if opts.Sampler.ADC.Source == config.ADCFile {
			stationOpts.ADC = fileDev
		}
		dev = fileDev
	}

	if stationOpts.ADC == nil {
		adc := opts.Sampler.ADC
		stationOpts.ADC = waveform.NewLineWaveform(adc.SamplesPerBit, adc.High, adc.Low,
			manchester.EncodeString(adc.Message)...)
	}

	var writeAPI api.WriteAPI = &util.MockWriteAPI{}
	if opts.InfluxDB.Host != "" {
		client := influxdb2.NewClient(opts.InfluxDB.Host, opts.InfluxDB.Token)
		defer client.Close()
		writeAPI = client.WriteAPI(opts.InfluxDB.Organization, opts.InfluxDB.Bucket)
	}

	stationOpts.Outputs = append(stationOpts.Outputs, output.NewConsoleOutput(os.Stdout, false))
	if len(opts.OutputDestinations) > 0 {
		stationOpts.Outputs = append(stationOpts.Outputs, output.NewUDPOutput(opts.OutputDestinations, writeAPI))
	}

	stationOptions := []plcvlc.StationOption{
		plcvlc.WithInfluxDB(writeAPI),
		plcvlc.WithLogger(log.Logger),
	}
	if opts.VizServer.Port != 0 {
		stationOptions = append(stationOptions, plcvlc.WithImageServer(viz.NewServer(opts.VizServer.Port, opts.VizServer.UpdateInterval)))
	}

	station, err := plcvlc.NewStation(dev, newProgram(opts), stationOpts, stationOptions...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create station")
	}

	eg, ctx := errgroup.WithContext(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	eg.Go(func() error {

		select {
		case <-sigChan:
		case <-ctx.Done():
		}

		return station.Stop()
	})

	eg.Go(func() error {
		return station.Start(ctx)
	})

	if err := eg.Wait(); err != nil && !finished(err) {
		log.Fatal().Err(err).Msg("exited program")
	}
}

func newProgram(opts *config.Config) plcvlc.Program {
	switch opts.Program {
	case config.ProgramEchoback:
		return echoback.New(opts.Echoback.BufferLen, opts.StatusInterval)
	case config.ProgramEdgeBits:
		return edgebits.New(*opts.EdgeBits.SymbolBits, opts.StatusInterval)
	case config.ProgramSampler:
		so := sampler.Options{
			BufferLen:      opts.Sampler.BufferLen,
			SamplePeriod:   opts.Sampler.SamplePeriod,
			StopOnWindow:   opts.Sampler.StopOnWindow,
			StatusInterval: opts.StatusInterval,
		}
		if opts.Sampler.LowpassCutoff > 0 {
			so.Smoothing = fir.NewLowPass(1/opts.Sampler.SamplePeriod.Seconds(),
				opts.Sampler.LowpassCutoff, opts.Sampler.LowpassTransition)
		}
		return sampler.New(so)
	default:
		var input io.Reader
		if opts.Transmit.Message == "" {
			input = os.Stdin
		}
		return transmit.New(transmit.Options{
			Message:  opts.Transmit.Message,
			Interval: opts.Transmit.Interval,
			Repeat:   opts.Transmit.Repeat,
			Input:    input,
		})
	}
}

func finished(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, plcvlc.ErrDone) ||
		errors.Is(err, file.ErrPlaybackDone)
}

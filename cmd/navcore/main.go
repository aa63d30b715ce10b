// Command navcore runs the autonomous navigation loop: it reads the
// rangefinder, maps the pool, avoids obstacles and drives the motor and
// rudder, serving live telemetry over HTTP and gRPC.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/ecoship/internal/config"
	"github.com/banshee-data/ecoship/internal/nav"
	"github.com/banshee-data/ecoship/internal/nav/actuation"
	"github.com/banshee-data/ecoship/internal/nav/pipeline"
	"github.com/banshee-data/ecoship/internal/nav/sensor"
	"github.com/banshee-data/ecoship/internal/nav/storage/sqlite"
	"github.com/banshee-data/ecoship/internal/nav/telemetry"
	"github.com/banshee-data/ecoship/internal/serialport"
	"github.com/banshee-data/ecoship/internal/timeutil"
	"github.com/banshee-data/ecoship/internal/version"
)

var (
	configPath = flag.String("config", "", "Path to navigation config JSON (defaults when empty)")
	sensorKind = flag.String("sensor", "ydlidar", "Range sensor: ydlidar, http, sim or auto")
	simMode    = flag.Bool("sim", false, "Use the simulated pool (same as --sensor=sim)")
	device     = flag.String("device", "/dev/ttyUSB0", "Rangefinder serial device")
	lidarBaud  = flag.Int("lidar-baud", 128000, "Rangefinder baud rate")
	sensorURL  = flag.String("sensor-url", "", "Remote /lidar/latest URL for --sensor=http")
	lockDir    = flag.String("lock-dir", os.TempDir(), "Directory for the rangefinder lock file (empty disables locking)")
	simAdvance = flag.Float64("sim-advance", 0, "Simulated forward motion per sweep in metres")

	actuator     = flag.String("actuator", "", "Motor controller serial device (empty logs commands only)")
	actuatorBaud = flag.Int("actuator-baud", 115200, "Motor controller baud rate")

	listen     = flag.String("listen", ":8080", "HTTP listen address")
	grpcListen = flag.String("grpc-listen", ":50051", "gRPC telemetry listen address (empty disables)")
	dbPath     = flag.String("db", "navcore.db", "Run log SQLite path (empty disables)")

	logDiag     = flag.Bool("log-diag", false, "Enable diagnostic logging")
	logTrace    = flag.Bool("log-trace", false, "Enable per-tick trace logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		log.Printf("navcore %s", version.String())
		return
	}

	writers := nav.LogWriters{Ops: os.Stderr}
	if *logDiag {
		writers.Diag = os.Stderr
	}
	if *logTrace {
		writers.Trace = os.Stderr
	}
	nav.SetLogWriters(writers)

	cfg := config.EmptyNavConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadNavConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	params := pipeline.ParamsFromConfig(cfg)

	kind, err := sensor.ParseKind(*sensorKind)
	if err != nil {
		log.Fatalf("invalid --sensor: %v", err)
	}
	if *simMode {
		kind = sensor.KindSim
	}
	clock := timeutil.RealClock{}
	simCfg := sensor.DefaultSimConfig()
	simCfg.Velocity.X = *simAdvance
	simCfg.Clock = clock

	driver, capa, err := sensor.Open(sensor.Options{
		Kind:    kind,
		Device:  *device,
		Port:    serialport.PortOptions{BaudRate: *lidarBaud},
		LockDir: *lockDir,
		URL:     *sensorURL,
		Sim:     simCfg,
		Clock:   clock,
	})
	if err != nil {
		var unavailable *sensor.UnavailableError
		if errors.As(err, &unavailable) {
			log.Fatalf("range sensor unavailable: %v (use --sim or --sensor=auto to run without hardware)", err)
		}
		log.Fatalf("failed to open range sensor: %v", err)
	}
	defer driver.Close()
	log.Printf("range sensor: %s (%s)", capa.Kind, capa.Detail)

	var sink actuation.Sink = actuation.LogSink{}
	if *actuator != "" {
		port, err := serialport.Open(*actuator, serialport.PortOptions{BaudRate: *actuatorBaud})
		if err != nil {
			log.Fatalf("failed to open motor controller %s: %v", *actuator, err)
		}
		serialSink := actuation.NewSerialSink(port)
		defer serialSink.Close()
		sink = serialSink
	} else {
		log.Printf("no --actuator given, commands are logged only")
	}

	pub := telemetry.NewPublisher()
	pcfg := pipeline.Config{
		Params:  params,
		Source:  driver,
		Sink:    sink,
		Clock:   clock,
		Publish: pub,
	}

	var (
		runDB    *sqlite.DB
		recorder *sqlite.Recorder
	)
	if *dbPath != "" {
		runDB, err = sqlite.Open(*dbPath)
		if err != nil {
			log.Fatalf("failed to open run log: %v", err)
		}
		defer runDB.Close()
		run, err := runDB.StartRun(string(capa.Kind), time.Now(), cfg)
		if err != nil {
			log.Fatalf("failed to start run: %v", err)
		}
		recorder = sqlite.NewRecorder(runDB, run.ID, 0)
		pcfg.Persist = recorder
		log.Printf("recording run %s to %s", run.ID, *dbPath)
	}

	core, err := pipeline.NewCore(pcfg)
	if err != nil {
		log.Fatalf("failed to build navigation core: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Control loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stop()
		if err := core.Run(ctx); err != nil {
			log.Printf("navigation loop failed: %v", err)
		}
		if recorder != nil {
			if err := recorder.Close(); err != nil {
				log.Printf("failed to close run: %v", err)
			}
		}
		log.Print("navigation loop terminated")
	}()

	// gRPC telemetry
	if *grpcListen != "" {
		lis, err := net.Listen("tcp", *grpcListen)
		if err != nil {
			log.Fatalf("failed to listen on %s: %v", *grpcListen, err)
		}
		grpcServer := telemetry.NewGRPCServer(telemetry.NewGRPCService(pub, 0))
		wg.Add(1)
		go func() {
			defer wg.Done()
			go func() {
				if err := grpcServer.Serve(lis); err != nil {
					log.Printf("gRPC server error: %v", err)
				}
			}()
			<-ctx.Done()
			grpcServer.Stop(time.Second)
			log.Printf("gRPC server stopped")
		}()
	}

	// HTTP server
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		tsrv := telemetry.NewServer(pub, core)
		tsrv.RegisterRoutes(mux)
		tsrv.AttachAdminRoutes(mux)
		if runDB != nil {
			if err := runDB.AttachAdminRoutes(mux); err != nil {
				log.Printf("run log admin routes disabled: %v", err)
			}
		}

		server := &http.Server{
			Addr:              *listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

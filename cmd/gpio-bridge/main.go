// Command gpio-bridge serves a one-byte command protocol over TCP (and
// optionally a serial port) and drives GPIO output lines in response.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/gpio-bridge/internal/gpio"
	"github.com/sweeney/gpio-bridge/internal/handler"
	"github.com/sweeney/gpio-bridge/internal/logging"
	"github.com/sweeney/gpio-bridge/internal/logic"
	"github.com/sweeney/gpio-bridge/internal/mqtt"
	"github.com/sweeney/gpio-bridge/internal/protocol"
	"github.com/sweeney/gpio-bridge/internal/status"
	"github.com/sweeney/gpio-bridge/internal/web"
)

const (
	eventQueueSize  = 64
	statusInterval  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

func main() {
	opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := logging.New(logrus.InfoLevel)

	if opts.resolve != "" {
		addr, err := gpio.Resolve(opts.resolve)
		if err != nil {
			log.WithError(err).Fatal("resolve failed")
		}
		fmt.Printf("%s: %s%d offset %d\n", opts.resolve, opts.chipPath, addr.Chip, addr.Offset)
		return
	}

	if err := run(opts, log); err != nil {
		log.WithError(err).Fatal("fatal")
	}
}

// shutdownSignal is the cancel cause recorded when a signal arrives.
type shutdownSignal struct{ sig os.Signal }

func (s shutdownSignal) Error() string { return "received " + s.sig.String() }

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// shutdownReason names why ctx ended, for the SHUTDOWN event.
func shutdownReason(ctx context.Context) string {
	var s shutdownSignal
	if errors.As(context.Cause(ctx), &s) {
		return signalName(s.sig)
	}
	return "ERROR"
}

// watchSignals cancels ctx with the first signal received on sig.
func watchSignals(ctx context.Context, sig <-chan os.Signal, cancel context.CancelCauseFunc) {
	select {
	case s := <-sig:
		cancel(shutdownSignal{sig: s})
	case <-ctx.Done():
	}
}

func run(opts *options, log *logrus.Entry) error {
	cache := gpio.NewCache(gpio.NewCdevDevice(), gpio.CacheConfig{
		Chips:    opts.chips,
		BasePath: opts.chipPath,
		Consumer: opts.consumer,
	}, logging.Component(log, "gpio"))
	defer cache.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		Listen:        opts.listen,
		Serial:        opts.serial,
		Mode:          opts.mode,
		Chips:         opts.chips,
		ChipPath:      opts.chipPath,
		IdleTimeoutMs: opts.idleTimeout.Milliseconds(),
		Broker:        opts.broker,
		HTTPAddr:      opts.httpAddr,
	})

	events := make(chan logic.Event, eventQueueSize)
	h, closeHandler, err := buildHandler(opts, cache, queueSink(events, log), log)
	if err != nil {
		return fmt.Errorf("init handler: %w", err)
	}
	defer closeHandler()

	if err := h.InitDefault(); err != nil {
		log.WithError(err).Error("failed to drive lines to their default state")
	}
	for _, l := range cache.Lines() {
		log.WithFields(logrus.Fields{"id": l.ID, "line": l.Address, "value": l.Value}).Info("line ready")
	}

	ln, err := net.Listen("tcp", opts.listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", opts.listen, err)
	}

	protoLog := logging.Component(log, "protocol")
	pcfg := protocol.DefaultConfig()
	pcfg.IdleTimeout = opts.idleTimeout
	d := protocol.NewDispatcher(h, pcfg, sessionObserver{tracker}, protoLog)
	srv := protocol.NewServer(opts.listen, d, protoLog)

	var (
		publisher mqtt.Publisher
		mqttState mqtt.ConnectionStatus
	)
	if opts.broker != "" {
		p := mqtt.NewRealPublisher(opts.broker, logging.Component(log, "mqtt"))
		defer p.Close()
		publisher, mqttState = p, p
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go watchSignals(ctx, sigCh, cancel)

	publishSystem(publisher, mqttState, tracker, "STARTUP", "", log)
	log.WithFields(logrus.Fields{
		"listen": opts.listen,
		"mode":   opts.mode,
		"broker": opts.broker,
		"http":   opts.httpAddr,
	}).Info("started")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Serve(ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		return srv.Shutdown(sctx)
	})

	if opts.serial != "" {
		port, err := protocol.OpenSerial(protocol.SerialConfig{Device: opts.serial, Baud: opts.baud})
		if err != nil {
			log.WithError(err).Error("serial transport disabled")
		} else {
			g.Go(func() error {
				if err := protocol.ServeSerial(gctx, port, opts.serial, d); err != nil {
					protoLog.WithError(err).Error("serial transport stopped")
				}
				return nil
			})
		}
	}

	if opts.httpAddr != "" {
		webLog := logging.Component(log, "web")
		webSrv := web.New(opts.httpAddr, tracker, webLog)
		g.Go(func() error {
			webLog.WithField("addr", opts.httpAddr).Info("http status server listening")
			if err := webSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				webLog.WithError(err).Error("http server error")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			return webSrv.Shutdown(sctx)
		})
	}

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	g.Go(func() error {
		return eventLoop(gctx, events, publisher, mqttState, tracker, ticker.C, log)
	})

	err = g.Wait()
	reason := shutdownReason(ctx)
	log.WithField("reason", reason).Info("shutting down")
	publishSystem(publisher, mqttState, tracker, "SHUTDOWN", reason, log)
	return err
}

// buildHandler creates the handler selected by -mode. The returned func
// releases it.
func buildHandler(opts *options, cache *gpio.Cache, sink handler.Sink, log *logrus.Entry) (handler.Handler, func() error, error) {
	switch opts.mode {
	case modeLED:
		led, err := handler.NewLED(cache, opts.led, handler.LEDConfig{
			ActiveLow:     opts.activeLow,
			BlinkInterval: opts.blinkInterval,
		}, sink, logging.Component(log, "led"))
		if err != nil {
			return nil, nil, err
		}
		return led, led.Close, nil

	case modeTable:
		t := handler.NewTable(cache, sink)
		for _, b := range opts.bindings {
			if err := t.Bind(b); err != nil {
				return nil, nil, err
			}
		}
		return t, func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown mode %q", opts.mode)
}

// queueSink hands line events to the event loop without blocking the
// handler. Events are dropped when the queue is full.
func queueSink(ch chan<- logic.Event, log *logrus.Entry) handler.SinkFunc {
	return func(e logic.Event) {
		select {
		case ch <- e:
		default:
			log.WithField("id", e.ID).Warn("event queue full; dropping line event")
		}
	}
}

// sessionObserver feeds session and command counts into the tracker.
type sessionObserver struct {
	tracker *status.Tracker
}

func (o sessionObserver) SessionOpened(*protocol.Session) { o.tracker.SessionOpened() }

func (o sessionObserver) CommandHandled(_ *protocol.Session, _ byte, err error) {
	o.tracker.RecordCommand(err == nil)
}

func (o sessionObserver) SessionClosed(*protocol.Session) { o.tracker.SessionClosed() }

// eventLoop records line events in the tracker and publishes them until ctx
// is done. publisher and mqttState may be nil when MQTT is disabled.
func eventLoop(ctx context.Context, events <-chan logic.Event, publisher mqtt.Publisher, mqttState mqtt.ConnectionStatus, tracker *status.Tracker, tick <-chan time.Time, log *logrus.Entry) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case e := <-events:
			log.WithFields(logrus.Fields{
				"id":     e.ID,
				"action": e.Action,
				"value":  e.Value,
				"state":  e.State,
			}).Debug("line changed")
			tracker.LineChanged(e)
			if publisher != nil {
				if err := publisher.Publish(e); err != nil {
					log.WithError(err).Warn("publish error")
					// Don't crash on publish failure
				}
			}
			if mqttState != nil {
				tracker.SetMQTTConnected(mqttState.IsConnected())
			}

		case <-tick:
			if mqttState != nil {
				tracker.SetMQTTConnected(mqttState.IsConnected())
			}
		}
	}
}

// publishSystem publishes a retained lifecycle event carrying a status snapshot.
func publishSystem(publisher mqtt.Publisher, mqttState mqtt.ConnectionStatus, tracker *status.Tracker, event, reason string, log *logrus.Entry) {
	if publisher == nil {
		return
	}
	if mqttState != nil {
		tracker.SetMQTTConnected(mqttState.IsConnected())
	}
	snap := tracker.Snapshot()
	err := publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		log.WithError(err).Warnf("failed to publish %s event", event)
		return
	}
	log.Infof("published %s event", event)
}

// Package simple implements a blocking, auto-connecting convenience API
// built atop pkg/control, pkg/notify, pkg/rtsp and pkg/match. A dedicated
// background goroutine owns all mutable pipeline state and lifecycle
// (ctx/cancel/wg); the facade's public methods post a request onto that
// goroutine and block on a response channel, turning each call into a
// synchronous request/response exchange.
package simple

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crestline-labs/eyelink-realtime/pkg/control"
	"github.com/crestline-labs/eyelink-realtime/pkg/eyeevent"
	"github.com/crestline-labs/eyelink-realtime/pkg/gaze"
	"github.com/crestline-labs/eyelink-realtime/pkg/imu"
	"github.com/crestline-labs/eyelink-realtime/pkg/logger"
	"github.com/crestline-labs/eyelink-realtime/pkg/match"
	"github.com/crestline-labs/eyelink-realtime/pkg/notify"
	"github.com/crestline-labs/eyelink-realtime/pkg/rtsp"
	"github.com/crestline-labs/eyelink-realtime/pkg/status"
	"github.com/crestline-labs/eyelink-realtime/pkg/video"
	"github.com/crestline-labs/eyelink-realtime/pkg/wallclock"
)

// sensorPipeline is one lazily-started RTSP session plus its depacketizer
// and wall-clock mapper.
type sensorPipeline struct {
	session *rtsp.Session
	cancel  context.CancelFunc
	samples chan any
}

// request is one posted unit of work for the background worker goroutine.
type request struct {
	fn   func() (any, error)
	resp chan result
}

type result struct {
	val any
	err error
}

// Facade is the blocking convenience client. Construct with New, then call
// Receive*/StartRecording/etc; all public methods are safe for concurrent
// use.
type Facade struct {
	host string
	port int
	log  *logger.Logger

	control  *control.Client
	notifier *notify.Notifier

	reqCh chan request

	sensors map[status.SensorKind]*sensorPipeline
	matcher *match.Matcher

	cachedStatus atomic.Pointer[status.Status]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Facade scoped to host:port and starts its background
// worker and status notifier.
func New(host string, port int, log *logger.Logger) *Facade {
	if log == nil {
		log = logger.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	f := &Facade{
		host:     host,
		port:     port,
		log:      log,
		control:  control.New(host, port, log.Logger),
		notifier: notify.New(host, port, log.Logger),
		reqCh:    make(chan request),
		sensors:  make(map[status.SensorKind]*sensorPipeline),
		ctx:      ctx,
		cancel:   cancel,
	}

	initial := status.New()
	f.cachedStatus.Store(&initial)

	f.wg.Add(2)
	go f.worker()
	go f.runNotifier()

	return f
}

func (f *Facade) runNotifier() {
	defer f.wg.Done()
	f.notifier.Subscribe(func(c status.Component, snapshot status.Status) {
		f.cachedStatus.Store(&snapshot)
	})
	if st, err := f.control.GetStatus(f.ctx); err == nil {
		f.cachedStatus.Store(&st)
		f.notifier.SeedSnapshot(st)
	}
	_ = f.notifier.Run(f.ctx)
}

// worker is the dedicated goroutine that owns sensor pipelines and the
// matcher; every public method posts a closure here and blocks for its
// result, so pipeline state is never touched from two goroutines at once.
func (f *Facade) worker() {
	defer f.wg.Done()
	for {
		select {
		case <-f.ctx.Done():
			f.teardownAll()
			return
		case req := <-f.reqCh:
			val, err := req.fn()
			req.resp <- result{val: val, err: err}
		}
	}
}

func (f *Facade) call(fn func() (any, error)) (any, error) {
	req := request{fn: fn, resp: make(chan result, 1)}
	select {
	case f.reqCh <- req:
	case <-f.ctx.Done():
		return nil, f.ctx.Err()
	}
	select {
	case r := <-req.resp:
		return r.val, r.err
	case <-f.ctx.Done():
		return nil, f.ctx.Err()
	}
}

func (f *Facade) teardownAll() {
	for _, p := range f.sensors {
		p.cancel()
		_ = p.session.Close()
	}
}

// Status returns the cached status snapshot with no I/O.
func (f *Facade) Status() status.Status { return *f.cachedStatus.Load() }

// BatteryLevelPercent reads the cached Status with no I/O.
func (f *Facade) BatteryLevelPercent() int { return f.Status().Phone.BatteryLevelPercent }

// MemoryNumFreeBytes reads the cached Status with no I/O.
func (f *Facade) MemoryNumFreeBytes() int64 { return f.Status().Phone.MemoryBytesFree }

// SerialNumberGlasses reads the cached Status with no I/O.
func (f *Facade) SerialNumberGlasses() string { return f.Status().Hardware.GlassesSerial }

// StartRecording starts a recording on the device.
func (f *Facade) StartRecording(ctx context.Context) (string, error) {
	id, err := f.control.RecordingStart(ctx)
	return id, err
}

// StopRecordingAndSave stops and saves the active recording.
func (f *Facade) StopRecordingAndSave(ctx context.Context) error {
	return f.control.RecordingStopAndSave(ctx)
}

// CancelRecording stops the active recording without saving.
func (f *Facade) CancelRecording(ctx context.Context) error {
	return f.control.RecordingCancel(ctx)
}

// matchLeaderStream and matchFollowerStream name the two streams fused by
// the facade's matcher.
const (
	matchLeaderStream   = "scene"
	matchFollowerStream = "gaze"
	matchWindow         = 40 * time.Millisecond
	matchWaitWindow     = 200 * time.Millisecond
)

// ensureSensorStarted lazily opens an RTSP session for the given sensor
// kind on first use. Must run on the worker goroutine.
func (f *Facade) ensureSensorStarted(kind status.SensorKind) (*sensorPipeline, error) {
	if p, ok := f.sensors[kind]; ok {
		return p, nil
	}

	sensor, ok := f.Status().Sensors[status.SensorKey{Sensor: kind, Connection: status.ConnectionDirect}]
	if !ok {
		return nil, fmt.Errorf("simple: no direct %s sensor in current status", kind)
	}

	sess := rtsp.NewSession(sensor.URL(), f.log)
	ctx, cancel := context.WithCancel(f.ctx)

	if err := sess.Connect(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("simple: connect %s sensor: %w", kind, err)
	}
	if err := sess.SetupAll(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("simple: setup %s sensor: %w", kind, err)
	}
	if err := sess.Play(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("simple: play %s sensor: %w", kind, err)
	}

	p := &sensorPipeline{session: sess, cancel: cancel, samples: make(chan any, 64)}
	f.sensors[kind] = p

	if (kind == status.SensorWorld || kind == status.SensorGaze) && f.matcher == nil {
		f.matcher = match.New(matchLeaderStream, []string{matchFollowerStream}, matchWindow, matchWaitWindow)
	}

	go f.pumpSensor(ctx, kind, p)

	return p, nil
}

// pumpSensor maps RTP packets to wall-clock timestamps and decodes them
// into typed samples, pushed onto the pipeline's sample channel and, for
// the scene/gaze pair, onto the matcher.
func (f *Facade) pumpSensor(ctx context.Context, kind status.SensorKind, p *sensorPipeline) {
	mappers := make(map[byte]*wallclock.Mapper)

	var videoProc *video.Processor
	var videoChannel byte
	if kind == status.SensorWorld {
		videoProc = video.NewProcessor()
		videoProc.OnAccessUnit = func(au video.AccessUnit) {
			mapper, haveMapper := mappers[videoChannel]
			if !haveMapper {
				return
			}
			wallClockNS, haveWallClock := mapper.WallClock(au.RTPTimestamp)
			if !haveWallClock {
				f.log.DebugVideo("withholding access unit: no sender report observed yet")
				return
			}
			deliver(p.samples, timedSample{wallClockNS, au})
			if f.matcher != nil {
				_ = f.matcher.Push(matchLeaderStream, match.Sample{WallClockNS: wallClockNS, Payload: au})
			}
		}
		videoProc.OnError = func(err error) { f.log.DebugVideo("access unit dropped", "err", err) }
	}

	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-p.session.Packets:
			if !ok {
				return
			}
			mapper, ok := mappers[pkt.Media.RTPChannel]
			if !ok {
				mapper = wallclock.NewMapper(pkt.Media.ClockRate)
				mappers[pkt.Media.RTPChannel] = mapper
			}

			switch kind {
			case status.SensorWorld:
				videoChannel = pkt.Media.RTPChannel
				if videoProc != nil && len(pkt.Media.SpropParams) >= 2 {
					videoProc.SetParameterSets(pkt.Media.SpropParams[0], pkt.Media.SpropParams[1])
					videoProc.EmitParameterSets()
				}
				videoProc.ProcessPacket(pkt.RTP.SequenceNumber, pkt.RTP.Timestamp, pkt.RTP.Marker, pkt.RTP.Payload)
			case status.SensorGaze:
				wallClockNS, haveWallClock := mapper.WallClock(pkt.RTP.Timestamp)
				if !haveWallClock {
					continue
				}
				if sample, err := gaze.Decode(pkt.RTP.Payload); err == nil {
					deliver(p.samples, timedSample{wallClockNS, sample})
					if f.matcher != nil {
						_ = f.matcher.Push(matchFollowerStream, match.Sample{WallClockNS: wallClockNS, Payload: sample})
					}
				}
			case status.SensorEyeEvents:
				wallClockNS, haveWallClock := mapper.WallClock(pkt.RTP.Timestamp)
				if !haveWallClock {
					continue
				}
				if ev, err := eyeevent.Decode(pkt.RTP.Payload); err == nil {
					ev.RTPTimestampUnixSeconds = float64(wallClockNS) / 1e9
					deliver(p.samples, timedSample{wallClockNS, ev})
				}
			case status.SensorIMU:
				wallClockNS, haveWallClock := mapper.WallClock(pkt.RTP.Timestamp)
				if !haveWallClock {
					continue
				}
				if frame, err := imu.Decode(pkt.RTP.Payload); err == nil {
					deliver(p.samples, timedSample{wallClockNS, frame})
				}
			}
		case rep, ok := <-p.session.Reports:
			if !ok {
				continue
			}
			mapper, ok := mappers[rep.Media.RTPChannel]
			if !ok {
				mapper = wallclock.NewMapper(rep.Media.ClockRate)
				mappers[rep.Media.RTPChannel] = mapper
			}
			mapper.ObserveSenderReport(wallclock.SenderReport{
				RTPTimestamp: rep.SR.RTPTime,
				NTPSeconds:   uint32(rep.SR.NTPTime >> 32),
				NTPFraction:  uint32(rep.SR.NTPTime),
			})
		case w, ok := <-p.session.Warnings:
			if !ok {
				continue
			}
			f.log.Warn("rtsp session warning", "sensor", kind, "error", w)
		}
	}
}

type timedSample struct {
	wallClockNS int64
	payload     any
}

func deliver(ch chan any, s timedSample) {
	select {
	case ch <- s:
	default:
		// drop-oldest backpressure: make room for the freshest sample.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

// ReceiveGazeDatum blocks until a gaze sample arrives or timeout elapses.
func (f *Facade) ReceiveGazeDatum(ctx context.Context, timeout time.Duration) (gaze.Sample, error) {
	val, err := f.call(func() (any, error) {
		p, err := f.ensureSensorStarted(status.SensorGaze)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	if err != nil {
		return gaze.Sample{}, err
	}
	p := val.(*sensorPipeline)

	select {
	case s := <-p.samples:
		ts := s.(timedSample)
		return ts.payload.(gaze.Sample), nil
	case <-time.After(timeout):
		return gaze.Sample{}, fmt.Errorf("simple: no gaze sample within %s", timeout)
	case <-ctx.Done():
		return gaze.Sample{}, ctx.Err()
	}
}

// ReceiveSceneVideoFrame blocks until a scene video Access Unit arrives.
func (f *Facade) ReceiveSceneVideoFrame(ctx context.Context, timeout time.Duration) (video.AccessUnit, error) {
	val, err := f.call(func() (any, error) { return f.ensureSensorStarted(status.SensorWorld) })
	if err != nil {
		return video.AccessUnit{}, err
	}
	p := val.(*sensorPipeline)

	select {
	case s := <-p.samples:
		return s.(timedSample).payload.(video.AccessUnit), nil
	case <-time.After(timeout):
		return video.AccessUnit{}, fmt.Errorf("simple: no scene frame within %s", timeout)
	case <-ctx.Done():
		return video.AccessUnit{}, ctx.Err()
	}
}

// ReceiveMatchedSceneAndGaze starts the scene and gaze sensors if needed
// and blocks for the next nearest-timestamp fused (frame, gaze) tuple.
func (f *Facade) ReceiveMatchedSceneAndGaze(ctx context.Context) (match.Fused, error) {
	val, err := f.call(func() (any, error) {
		if _, err := f.ensureSensorStarted(status.SensorWorld); err != nil {
			return nil, err
		}
		if _, err := f.ensureSensorStarted(status.SensorGaze); err != nil {
			return nil, err
		}
		return f.matcher, nil
	})
	if err != nil {
		return match.Fused{}, err
	}
	return val.(*match.Matcher).Next(ctx)
}

// Close tears down the background worker, all open sensor sessions, and
// the status notifier.
func (f *Facade) Close() error {
	f.cancel()
	f.wg.Wait()
	_ = f.notifier.Close()
	return f.control.Close()
}

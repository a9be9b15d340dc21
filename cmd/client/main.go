package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/spatialvoice/internal/adapters/audio"
	"github.com/dkeye/spatialvoice/internal/adapters/rtc"
	"github.com/dkeye/spatialvoice/internal/app/orch"
	"github.com/dkeye/spatialvoice/internal/config"
	"github.com/dkeye/spatialvoice/internal/core"
	"github.com/dkeye/spatialvoice/internal/domain"
	"github.com/dkeye/spatialvoice/internal/signaling"
	"github.com/dkeye/spatialvoice/internal/topology"
	"github.com/dkeye/spatialvoice/internal/voice"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	flags := pflag.NewFlagSet("client", pflag.ExitOnError)
	config.RegisterFlags(flags)
	seal := flags.Duration("seal-after", 0, "seal the lobby this long after connecting (host only)")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	cc := cfg.Client

	dialer := signaling.NewWebsocketDialer(&websocket.Dialer{HandshakeTimeout: cc.ConnectTimeout})
	client := signaling.NewClient(dialer, log.Logger)
	connector := rtc.NewConnector(cc.ICEServers, log.Logger)
	manager := topology.NewManager(client, connector, log.Logger,
		topology.WithNegotiationTimeout(cc.NegotiationTimeout))

	queue := &voice.FrameQueue{}
	relay := voice.NewRelay(queue, log.Logger)

	output, err := audio.NewOtoOutput(cc.SampleRate, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("audio output")
	}
	defer output.Close()

	var capture core.CaptureDevice
	if cc.CaptureFile != "" {
		clip, err := audio.LoadMP3Capture(cc.CaptureFile, cc.SampleRate, log.Logger)
		if err != nil {
			log.Error().Err(err).Msg("capture file unusable, voice will be receive-only")
		} else {
			capture = clip
		}
	}
	pose := audio.NewStaticPose(cc.Pose())

	bridge := voice.NewBridge(relay, queue, output, capture, pose, log.Logger,
		voice.WithMaxDistance(cc.MaxVoiceDistance),
		voice.WithSampleRate(cc.SampleRate))

	o := orch.New(orch.Deps{
		Signal:   client,
		Topology: manager,
		Relay:    relay,
		Voice:    bridge,
		Config: orch.Config{
			TickInterval:      cc.TickInterval,
			ConnectTimeout:    cc.ConnectTimeout,
			ReconnectAttempts: cc.ReconnectAttempts,
			ReconnectBackoff:  cc.ReconnectBackoff,
		},
		Logger: log.Logger,
	})

	var sealAt, nextReport time.Time
	o.OnStateChange(func(s orch.State) {
		switch s {
		case orch.StateFailed:
			log.Error().Msg("giving up on the session")
			cancel()
		case orch.StateConnected:
			log.Info().
				Str("id", manager.LocalID().String()).
				Str("topology", manager.Topology().String()).
				Float32("voice_range", bridge.VoiceRange()).
				Msg("session up")
			if *seal > 0 && manager.LocalID() == domain.AuthorityID && !manager.Sealed() {
				sealAt = time.Now().Add(*seal)
			}
		}
	})
	o.OnTick(func(now time.Time) {
		if !sealAt.IsZero() && now.After(sealAt) {
			sealAt = time.Time{}
			if err := o.Seal(); err != nil {
				log.Warn().Err(err).Msg("seal")
			}
		}
		if now.After(nextReport) {
			nextReport = now.Add(5 * time.Second)
			log.Debug().
				Int("peers", manager.EstablishedCount()).
				Int("speakers", bridge.ActiveSpeakerCount()).
				Float32("input_level", bridge.InputLevel()).
				Msg("voice stats")
		}
	})

	o.Start(cc.SignalURL, domain.LobbyName(cc.Lobby), cc.Mesh)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.Run(gctx) })

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("client error")
	}
	log.Info().Msg("client exited")
}

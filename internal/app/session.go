package app

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/intervox-ai/intervox/internal/capture"
	"github.com/intervox-ai/intervox/internal/dialogue"
	"github.com/intervox-ai/intervox/internal/interview"
	"github.com/intervox-ai/intervox/internal/resilience"
	"github.com/intervox-ai/intervox/internal/speech"
	"github.com/intervox-ai/intervox/internal/transcribe"
	"github.com/intervox-ai/intervox/internal/voicecmd"
	"github.com/intervox-ai/intervox/pkg/audio/wsbridge"
	"github.com/intervox-ai/intervox/pkg/provider/tts"
)

// handleInterview upgrades the connection to a WebSocket and runs one
// interview session over it. Candidate metadata comes from query parameters.
func (a *App) handleInterview(w http.ResponseWriter, r *http.Request) {
	candidate := r.URL.Query().Get("candidate")
	role := r.URL.Query().Get("role")
	if candidate == "" || role == "" {
		http.Error(w, "candidate and role query parameters are required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket accept failed", "error", err)
		return
	}

	id := uuid.NewString()
	logger := a.logger.With("session_id", id)
	bridge := wsbridge.New(conn, wsbridge.WithLogger(logger))

	sess, err := a.buildSession(id, candidate, role, r.URL.Query().Get("image"), bridge)
	if err != nil {
		logger.Error("session assembly failed", "error", err)
		_ = conn.Close(websocket.StatusInternalError, "session setup failed")
		return
	}
	if err := a.manager.Add(sess); err != nil {
		logger.Error("session registration failed", "error", err)
		_ = conn.Close(websocket.StatusInternalError, "session setup failed")
		return
	}
	defer a.manager.Remove(id)

	// The bridge read loop and the event forwarder run for as long as the
	// session does.
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		err := bridge.Run(ctx)
		// Client gone: make sure the session winds down.
		sess.End()
		return err
	})
	g.Go(func() error {
		// Keep draining after a send failure so the session can flush its
		// queue and close the stream.
		dead := false
		for ev := range sess.Events() {
			if dead {
				continue
			}
			if err := bridge.SendEvent(ctx, ev); err != nil {
				logger.Debug("event send failed", "error", err)
				dead = true
			}
		}
		return nil
	})

	if err := sess.Start(ctx); err != nil {
		logger.Error("session start failed", "error", err)
	}

	<-sess.Done()
	_ = bridge.Close()
	if err := g.Wait(); err != nil {
		logger.Debug("bridge finished", "error", err)
	}
}

// buildSession assembles the per-session pipeline from the current config
// snapshot.
func (a *App) buildSession(id, candidate, role, image string, bridge *wsbridge.Bridge) (*interview.Session, error) {
	cfg := a.currentConfig()
	logger := a.logger.With("session_id", id)

	captureSvc := capture.NewService(bridge, capture.Config{
		ChunkInterval: cfg.Capture.ChunkInterval.Std(),
		MinChunkBytes: cfg.Capture.MinChunkBytes,
		ContentType:   cfg.Capture.ContentType,
	}, logger)

	var trOpts []transcribe.Option
	if cfg.Transcription.MinConfidence > 0 {
		trOpts = append(trOpts, transcribe.WithMinConfidence(cfg.Transcription.MinConfidence))
	}
	if cfg.Transcription.Language != "" {
		trOpts = append(trOpts, transcribe.WithLanguage(cfg.Transcription.Language))
	}
	trOpts = append(trOpts, transcribe.WithLogger(logger))
	transcriber := transcribe.NewClient(
		a.providers.STT,
		resilience.NewRetryer(cfg.Resilience.STT.RetryConfig("stt")),
		trOpts...,
	)

	engine := dialogue.NewEngine(
		a.providers.LLM,
		resilience.NewRetryer(cfg.Resilience.LLM.RetryConfig("llm")),
		dialogue.Config{
			CandidateName:     candidate,
			Role:              role,
			QuestionCount:     cfg.Interview.QuestionCount,
			FallbackUtterance: cfg.Interview.FallbackUtterance,
			Temperature:       cfg.Interview.Temperature,
			MaxTokens:         cfg.Interview.MaxTokens,
		},
		logger,
	)

	synth := speech.NewSynthesizer(
		a.providers.TTS,
		resilience.NewRetryer(cfg.Resilience.TTS.RetryConfig("tts")),
		tts.VoiceProfile{
			ID:              cfg.Interview.Voice.VoiceID,
			Stability:       cfg.Interview.Voice.Stability,
			SimilarityBoost: cfg.Interview.Voice.SimilarityBoost,
			Speed:           cfg.Interview.Voice.Speed,
		},
	)

	var detectorOpts []voicecmd.Option
	if len(cfg.Interview.EndPhrases) > 0 {
		detectorOpts = append(detectorOpts, voicecmd.WithPhrases(cfg.Interview.EndPhrases))
	}

	params := interview.Params{
		ID:            id,
		CandidateName: candidate,
		Role:          role,
		UserImage:     image,
		Capture:       captureSvc,
		Transcriber:   transcriber,
		Dialogue:      engine,
		Synth:         synth,
		Player:        speech.NewPlayer(bridge, logger),
		EndDetector:   voicecmd.New(detectorOpts...),
		Feedback:      a.feedbackSender,
		Metrics:       a.metrics,
		Logger:        a.logger,
	}
	if cfg.Feedback.Timeout > 0 {
		params.FeedbackTimeout = cfg.Feedback.Timeout.Std()
	}

	return interview.NewSession(params)
}

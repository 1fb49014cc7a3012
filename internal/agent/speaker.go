package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"
)

// Player plays synthesized audio. Play must return promptly once ctx is
// cancelled.
type Player interface {
	Play(ctx context.Context, audio []byte) error
}

// Speaker voices replies in the background. A new utterance interrupts the one
// still playing, so only the latest reply is heard.
type Speaker struct {
	tts    TTSClient
	player Player
	log    zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

func NewSpeaker(tts TTSClient, player Player, log zerolog.Logger) *Speaker {
	return &Speaker{tts: tts, player: player, log: log}
}

// Say returns immediately. Synthesis and playback errors are logged, never
// returned.
func (s *Speaker) Say(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel, s.done = cancel, done

	go func() {
		defer close(done)
		audio, err := s.tts.Synthesize(ctx, text)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Error().Err(err).Msg("speech synthesis failed")
			}
			return
		}
		if err := s.player.Play(ctx, audio); err != nil && ctx.Err() == nil {
			s.log.Error().Err(err).Msg("playback failed")
		}
	}()
}

// Wait blocks until the current utterance has finished or was interrupted.
func (s *Speaker) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close stops playback and waits for it to wind down. Later calls to Say are
// ignored.
func (s *Speaker) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.closed = true
}

func (s *Speaker) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

// CommandPlayer writes the audio to a temporary file and plays it with an
// external program such as mpg123 or afplay. Cancelling the context kills the
// program.
type CommandPlayer struct {
	Command string
	Args    []string
}

func (p CommandPlayer) Play(ctx context.Context, audio []byte) error {
	if p.Command == "" {
		return errors.New("player: no command configured")
	}
	f, err := os.CreateTemp("", "medyk-*.mp3")
	if err != nil {
		return fmt.Errorf("player: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(audio); err != nil {
		f.Close()
		return fmt.Errorf("player: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("player: %w", err)
	}

	args := append(append([]string{}, p.Args...), f.Name())
	return exec.CommandContext(ctx, p.Command, args...).Run()
}

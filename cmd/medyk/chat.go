package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"medical-voice-agent/internal/agent"
	"medical-voice-agent/internal/catalog"
	"medical-voice-agent/internal/config"
	"medical-voice-agent/internal/dialogue"
	"medical-voice-agent/internal/platform/logger"
)

type chatFlags struct {
	catalogPath string
	seed        int64
	speak       bool
	player      string
}

func newChatCmd() *cobra.Command {
	var f chatFlags
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant on stdin/stdout",
		Long: `Runs one conversation in the terminal. Each input line is one utterance.
Say "od nowa" to start over; the command exits once the conversation ends.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChatCmd(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.catalogPath, "catalog", "", "catalog YAML file (defaults to the embedded Polish catalog)")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "seed for phrase variants (0 picks randomly)")
	cmd.Flags().BoolVar(&f.speak, "speak", false, "read replies aloud through the speech service")
	cmd.Flags().StringVar(&f.player, "player", "mpg123", "audio player command used with --speak")
	return cmd
}

func runChatCmd(cmd *cobra.Command, f chatFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if f.catalogPath == "" {
		f.catalogPath = cfg.CatalogPath
	}
	cat, err := loadCatalog(f.catalogPath)
	if err != nil {
		return err
	}

	advisor := agent.NoAdvisor()
	if cfg.OpenAI.APIKey != "" {
		advisor = agent.NewOpenAIAdvisor(agent.OpenAIConfig{
			APIKey:       cfg.OpenAI.APIKey,
			BaseURL:      cfg.OpenAI.BaseURL,
			Organization: cfg.OpenAI.Organization,
			Model:        cfg.OpenAI.Model,
			Temperature:  cfg.OpenAI.Temperature,
			Timeout:      cfg.OpenAI.Timeout,
		})
	}

	log := logger.New(cmd.ErrOrStderr(), "chat", cfg.LogLevel)
	opts := cfg.DialogueOptions()
	opts.Picker = dialogue.NewPicker(f.seed)
	opts.Logger = &log
	engine := dialogue.New(cat, advisor, opts)

	ctx := cmd.Context()
	if !f.speak {
		return runChat(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), engine, func(string) {})
	}

	tts := agent.NewTTSClient(agent.TTSConfig{
		URL:              cfg.Speech.TTSURL,
		Language:         cfg.Speech.Language,
		ElevenLabsAPIKey: cfg.Speech.ElevenLabsAPIKey,
		VoiceID:          cfg.Speech.VoiceID,
	})
	speaker := agent.NewSpeaker(tts, agent.CommandPlayer{Command: f.player}, log)
	err = runChat(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), engine, speaker.Say)
	drain(ctx, speaker)
	return err
}

// drain lets the last reply finish playing, unless ctx is cancelled first,
// and then closes the speaker.
func drain(ctx context.Context, s *agent.Speaker) {
	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.Close()
	<-done
}

// runChat feeds input lines to the engine until the conversation ends or the
// input runs out.
func runChat(ctx context.Context, in io.Reader, out io.Writer, engine *dialogue.Engine, say func(string)) error {
	greeting := engine.Greet()
	fmt.Fprintln(out, greeting)
	say(greeting)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		_, reply := engine.Analyze(ctx, line)
		fmt.Fprintln(out, reply)
		say(reply)
		if engine.Session().State == dialogue.StateEnded {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

// Command practice runs one interview or English practice session in the
// terminal, using the microphone and speakers through ffmpeg and ffplay.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"careerlens/internal/audio"
	"careerlens/internal/bootstrap"
	"careerlens/internal/domain"
	"careerlens/internal/usecase"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "practice:", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (domain.SessionConfig, string, error) {
	flags := pflag.NewFlagSet("practice", pflag.ContinueOnError)
	var cfg domain.SessionConfig
	var mode string
	flags.StringVar(&mode, "mode", string(domain.ModeTechnical), "technical, hr, mixed or english-practice")
	flags.StringVar(&cfg.JobRole, "role", "", "job role to interview for")
	flags.StringVar(&cfg.JobDescription, "job-description", "", "job description text")
	flags.StringVar(&cfg.Topic, "topic", "daily", "english practice topic")
	flags.StringVar(&cfg.Proficiency, "proficiency", "intermediate", "english proficiency")
	flags.StringVar(&cfg.Accent, "accent", "", "english accent")
	flags.StringVar(&cfg.Persona, "persona", "", "interviewer persona")
	flags.IntVar(&cfg.MaxExchanges, "max-exchanges", 0, "number of AI turns; 0 uses the configured default")
	uid := flags.String("uid", "", "load this user's career profile")
	if err := flags.Parse(args); err != nil {
		return domain.SessionConfig{}, "", err
	}
	cfg.Mode = domain.Mode(mode)
	if !cfg.Mode.IsInterview() {
		cfg.JobRole = ""
	}
	return cfg, *uid, nil
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	sessionCfg, uid, err := parseFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := bootstrap.Build(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = services.Close(closeCtx)
	}()

	var p *domain.UserProfile
	if uid != "" {
		loaded, err := services.Profiles.Get(ctx, uid)
		if err != nil {
			return err
		}
		p = &loaded
	}

	cfg := services.Config
	sink := audio.NewFFplaySink(cfg.Audio.PlayerCommand, cfg.Deepgram.SpeakSampleRate, 1)
	defer sink.Close()
	channel := services.StreamingChannel(audio.NewFFmpegCapture(cfg.Audio.RecorderCommand), sink)

	session, err := services.Registry.Create(sessionCfg, p)
	if err != nil {
		return err
	}
	out := newConsole(stdout)
	if _, err := session.Start(ctx, channel, out); err != nil {
		return err
	}
	out.Printf("Session %s started. Speak your answers, or type them and press enter. Type /end to finish.", session.ID())

	go readTyped(ctx, stdin, session, out)

	select {
	case <-session.Done():
	case <-ctx.Done():
		endCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := session.End(endCtx); err != nil {
			return err
		}
	}

	out.Summary(session.Record())
	return nil
}

type utteranceTarget interface {
	SubmitUtterance(ctx context.Context, text string) error
	End(ctx context.Context) error
}

// readTyped submits typed lines as answers until stdin closes or the user
// types /end.
func readTyped(ctx context.Context, in io.Reader, session utteranceTarget, out *console) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/end":
			_ = session.End(ctx)
			return
		}
		if err := session.SubmitUtterance(ctx, line); err != nil {
			switch {
			case errors.Is(err, domain.ErrTurnInProgress):
				out.Printf("(wait for the question to finish)")
			case errors.Is(err, domain.ErrNoActiveSession):
				return
			default:
				out.Printf("(answer not accepted: %v)", err)
			}
		}
	}
}

var _ utteranceTarget = (*usecase.Session)(nil)

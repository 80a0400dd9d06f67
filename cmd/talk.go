package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tutorline/server/internal/audio"
	"github.com/tutorline/server/internal/realtime"
)

type talkOptions struct {
	broker  string
	subject string
	input   string
	format  string
	output  string
}

func newTalkCmd(verbose *bool) *cobra.Command {
	var opts talkOptions

	cmd := &cobra.Command{
		Use:   "talk",
		Short: "Open a realtime tutoring session from the terminal",
		Long: "Talk to a tutor through the realtime endpoint. Lines typed on stdin are sent\n" +
			"as messages; \"/switch <subject>\" changes subject and \"/end\" says goodbye.\n" +
			"Audio is read from --input and the tutor's voice written to --output.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(*verbose)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return talk(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
		},
	}
	cmd.Flags().StringVar(&opts.broker, "broker", "http://localhost:8080/api/v1/functions/realtime-session", "realtime session endpoint")
	cmd.Flags().StringVar(&opts.subject, "subject", "english", "tutoring subject")
	cmd.Flags().StringVar(&opts.input, "input", "", "audio file to stream as microphone input (.wav or raw)")
	cmd.Flags().StringVar(&opts.format, "format", string(audio.FormatS16LE), "sample format of a raw --input (s16le|f32le)")
	cmd.Flags().StringVar(&opts.output, "output", "", "file receiving the tutor's PCM16 audio")
	return cmd
}

func talk(ctx context.Context, opts talkOptions, in io.Reader, out io.Writer, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	cfg := realtime.Config{
		Dialer: &realtime.BrokerDialer{BrokerURL: opts.broker, Logger: logger},
		Logger: logger,
	}

	if opts.input != "" {
		mic, err := fileMicrophone(opts.input, audio.SampleFormat(opts.format))
		if err != nil {
			return err
		}
		cfg.Microphone = mic
	}
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		cfg.Player = &audio.WAVSink{W: f, Realtime: true}
	}

	session := realtime.NewSession(cfg)
	events, unsubscribe := session.Subscribe()
	defer unsubscribe()

	if err := session.Init(ctx, opts.subject); err != nil {
		return err
	}
	defer session.EndSession(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		printEvents(out, events)
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := handleLine(ctx, session, strings.TrimSpace(line)); err != nil {
				if errors.Is(err, errEndTalk) {
					return nil
				}
				fmt.Fprintf(out, "! %v\n", err)
			}
		}
	}
}

var errEndTalk = errors.New("end of session")

func handleLine(ctx context.Context, session *realtime.Session, line string) error {
	switch {
	case line == "":
		return nil
	case line == "/end":
		if err := session.EndSession(ctx); err != nil {
			return err
		}
		return errEndTalk
	case strings.HasPrefix(line, "/switch "):
		return session.SwitchSubject(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/switch ")))
	default:
		return session.SendMessage(ctx, line)
	}
}

func printEvents(out io.Writer, events <-chan realtime.Event) {
	for ev := range events {
		switch ev.Type {
		case realtime.EventSessionState:
			fmt.Fprintf(out, "[%s]\n", ev.State)
		case realtime.EventInputTranscriptionCompleted:
			fmt.Fprintf(out, "you: %s\n", ev.Transcript)
		case realtime.EventResponseTranscriptDone:
			fmt.Fprintf(out, "tutor: %s\n", ev.Transcript)
		case realtime.EventSessionUpdated:
			if ev.Session != nil {
				fmt.Fprintf(out, "[subject: %s]\n", ev.Session.Subject)
			}
		case realtime.EventError:
			if ev.Error != nil {
				fmt.Fprintf(out, "! %s\n", ev.Error.Error())
			}
		}
	}
}

// fileMicrophone streams a recording as if it were a live microphone
func fileMicrophone(path string, format audio.SampleFormat) (audio.Microphone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		info, pcm, err := audio.ParseWAV(data)
		if err != nil {
			return nil, err
		}
		if info.SampleRate != audio.DefaultSampleRate || info.Channels != 1 {
			return nil, fmt.Errorf("input must be mono %d Hz, got %d channels at %d Hz",
				audio.DefaultSampleRate, info.Channels, info.SampleRate)
		}
		data, format = pcm, audio.FormatS16LE
	}
	return &audio.ReaderMicrophone{Source: bytes.NewReader(data), Format: format}, nil
}

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/quest-labs/relo/pkg/model"
	"github.com/quest-labs/relo/pkg/repository"
	"github.com/quest-labs/relo/pkg/usecase/voice"
	"github.com/quest-labs/relo/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// consoleEmitter prints paced words to the terminal, stopping the
// spinner on the first chunk
type consoleEmitter struct {
	w       io.Writer
	spin    *spinner.Spinner
	answer  strings.Builder
	started bool
}

func (e *consoleEmitter) Content(text string) error {
	if !e.started {
		e.spin.Stop()
		e.started = true
	}
	e.answer.WriteString(text)
	fmt.Fprint(e.w, text)
	return nil
}

func (e *consoleEmitter) Done() error {
	if !e.started {
		e.spin.Stop()
	}
	fmt.Fprintln(e.w)
	return nil
}

func chatCommand() *cli.Command {
	var (
		cfg    config
		userID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User ID to chat as",
			Value:       string(model.AnonymousUserID),
			Sources:     cli.EnvVars("RELO_USER_ID"),
			Destination: &userID,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, serviceFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive voice-pipeline session in the terminal",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)
			logger := logging.From(ctx)

			var repo repository.Repository
			if cfg.project == "" {
				logger.Info("no project configured, using in-memory repository")
				repo = repository.NewMemory()
			} else {
				var err error
				repo, err = cfg.newRepository(ctx)
				if err != nil {
					return err
				}
				defer repo.Close()
			}

			llm, err := cfg.newOpenAI()
			if err != nil {
				return err
			}

			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}

			engine, err := cfg.newPolicy(ctx)
			if err != nil {
				return err
			}

			uc := voice.New(voice.NewInput{
				Repo:   repo,
				LLM:    llm,
				Gemini: gemini,
				Policy: engine,
			})
			defer uc.Wait()

			rl, err := readline.New("> ")
			if err != nil {
				return goerr.Wrap(err, "failed to initialize readline")
			}
			defer rl.Close()

			fmt.Fprintln(c.Root().Writer, "Chat session started. Type 'exit' to quit.")

			var messages []voice.InboundMessage
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				line = strings.TrimSpace(line)
				if line == "exit" {
					break
				}
				if line == "" {
					continue
				}

				content, err := json.Marshal(line)
				if err != nil {
					return goerr.Wrap(err, "failed to encode message")
				}
				messages = append(messages, voice.InboundMessage{Role: "user", Content: content})

				spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
				spin.Suffix = " thinking..."
				spin.Start()

				emitter := &consoleEmitter{w: c.Root().Writer, spin: spin}
				if err := uc.HandleVoiceTurn(ctx, model.UserID(userID), messages, emitter); err != nil {
					logger.Warn("turn failed", "error", err)
					continue
				}

				answer, err := json.Marshal(emitter.answer.String())
				if err != nil {
					return goerr.Wrap(err, "failed to encode answer")
				}
				messages = append(messages, voice.InboundMessage{Role: "assistant", Content: answer})
			}

			fmt.Fprintln(c.Root().Writer, "\nChat session completed")
			return nil
		},
	}
}

package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/quest-labs/relo/pkg/server"
	"github.com/quest-labs/relo/pkg/service/mcp"
	"github.com/quest-labs/relo/pkg/tool"
	"github.com/quest-labs/relo/pkg/tool/articles"
	"github.com/quest-labs/relo/pkg/tool/cost"
	"github.com/quest-labs/relo/pkg/tool/preference"
	"github.com/quest-labs/relo/pkg/usecase/chat"
	"github.com/quest-labs/relo/pkg/usecase/voice"
	"github.com/quest-labs/relo/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 30 * time.Second

func serveCommand() *cli.Command {
	var (
		cfg  config
		addr string
	)

	builtinTools := []tool.Tool{
		preference.New(),
		articles.New(),
		cost.New(),
	}

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address",
			Value:       ":8080",
			Sources:     cli.EnvVars("RELO_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, serviceFlags(&cfg)...)
	flags = append(flags, tool.Flags(builtinTools...)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the chat and voice HTTP server",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)
			logger := logging.From(ctx)

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			llm, err := cfg.newOpenAI()
			if err != nil {
				return err
			}

			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}

			kgSvc, err := cfg.newKG(ctx)
			if err != nil {
				return err
			}
			if kgSvc != nil {
				defer kgSvc.Close(ctx)
			}

			memSvc, err := cfg.newMemory(ctx, gemini)
			if err != nil {
				return err
			}
			if memSvc != nil {
				defer memSvc.Close()
			}

			storage, err := cfg.newStorage(ctx)
			if err != nil {
				return err
			}

			engine, err := cfg.newPolicy(ctx)
			if err != nil {
				return err
			}

			tools := builtinTools
			mcpProvider, err := mcp.LoadAndConnect(ctx, cfg.mcpConfig)
			if err != nil {
				return err
			}
			if mcpProvider != nil {
				tools = append(tools, mcpProvider)
			}

			registry, err := tool.New(ctx, &tool.Client{
				Repo:   repo,
				Memory: memSvc,
			}, tools...)
			if err != nil {
				return err
			}

			store := chat.NewStore()
			store.Start(ctx)
			defer store.Stop()

			chatUC := chat.New(store, llm, registry)
			voiceUC := voice.New(voice.NewInput{
				Repo:    repo,
				LLM:     llm,
				Gemini:  gemini,
				KG:      kgSvc,
				Memory:  memSvc,
				Storage: storage,
				Policy:  engine,
			})

			srv := server.New(addr, chatUC, voiceUC)

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Run(ctx)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown gracefully")
			}
			return nil
		},
	}
}

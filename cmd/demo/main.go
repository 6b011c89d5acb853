// File: cmd/demo/main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/rs/zerolog"

	"expert-assistant/internal/config"
	"expert-assistant/internal/domain"
	"expert-assistant/internal/domain/model"
	aiAdapters "expert-assistant/internal/infra/adapters/ai"
	"expert-assistant/internal/infra/logging"
	"expert-assistant/internal/persona"
	"expert-assistant/internal/usecase"
)

const help = `commands:
  /mode product|finance|stock   switch expert (resets the conversation)
  /clear                        start over with the current expert
  /retry                        resend after a failure
  /quit                         exit`

func main() {
	cfgPath := flag.String("config", "", "optional YAML config; without an API key the noop client is used")
	mode := flag.String("mode", "product", "initial expert mode")
	apiKey := flag.String("key", os.Getenv("ASSISTANT_AI_API_KEY"), "provider API key")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if *apiKey != "" && cfg.AI.APIKey == "" && cfg.AI.Provider == "noop" {
		cfg.AI.Provider = "openai"
	}
	cfg.Log.Level = "warn"
	logger := logging.New(cfg.Log, true)

	products, err := persona.DefaultProducts()
	if err != nil {
		logger.Fatal().Err(err).Msg("products")
	}
	catalog, err := persona.NewCatalog(products, persona.WithLogger(logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("persona catalog")
	}
	client, err := aiAdapters.NewFromConfig(cfg.AI)
	if err != nil {
		logger.Fatal().Err(err).Msg("ai client")
	}

	sess := usecase.NewSessionStore(catalog, client,
		usecase.WithOwner("console"),
		usecase.WithMode(model.Mode(*mode)),
		usecase.WithSessionLogger(logger),
	)
	defer sess.Close()

	fmt.Printf("%s (%s)\n%s\n", sess.Persona().DisplayName, cfg.AI.Provider, help)
	c := &console{sess: sess, apiKey: *apiKey, out: os.Stdout, log: logger, requestCtx: interruptContext}
	c.run(os.Stdin)
}

// interruptContext scopes Ctrl-C to one request. Once stop runs, Ctrl-C at
// the prompt exits the program again.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

type console struct {
	sess       usecase.SessionStore
	apiKey     string
	out        io.Writer
	log        *zerolog.Logger
	requestCtx func() (context.Context, context.CancelFunc)
}

func (c *console) run(in io.Reader) {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprintf(c.out, "[%s] > ", c.sess.Mode())
		if !sc.Scan() {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := c.command(line); quit {
				return
			}
			continue
		}
		c.request(func(ctx context.Context) (model.ChatMessage, error) {
			return c.sess.Send(ctx, line, c.apiKey)
		})
	}
}

func (c *console) request(fn func(ctx context.Context) (model.ChatMessage, error)) {
	ctx, stop := c.requestCtx()
	defer stop()
	reply, err := fn(ctx)
	c.printResult(reply, err)
}

func (c *console) command(line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/mode":
		if len(fields) < 2 {
			fmt.Fprintln(c.out, "usage: /mode product|finance|stock")
			return false
		}
		if err := c.sess.SwitchMode(model.Mode(strings.ToLower(fields[1]))); err != nil {
			fmt.Fprintln(c.out, "error:", err)
			return false
		}
		fmt.Fprintf(c.out, "now talking to %s\n", c.sess.Persona().DisplayName)
	case "/clear":
		if err := c.sess.ClearHistory(); err != nil {
			fmt.Fprintln(c.out, "error:", err)
			return false
		}
		fmt.Fprintln(c.out, "conversation cleared")
	case "/retry":
		c.request(func(ctx context.Context) (model.ChatMessage, error) {
			return c.sess.Retry(ctx, c.apiKey)
		})
	default:
		c.log.Debug().Str("command", fields[0]).Msg("unknown command")
		fmt.Fprintln(c.out, help)
	}
	return false
}

func (c *console) printResult(reply model.ChatMessage, err error) {
	if err == nil {
		fmt.Fprintln(c.out, reply.Content)
		return
	}
	switch domain.KindOf(err) {
	case domain.KindAuthentication:
		fmt.Fprintln(c.out, "! the provider rejected the API key; pass -key or set ASSISTANT_AI_API_KEY, then /retry")
	case domain.KindNetwork:
		fmt.Fprintln(c.out, "! network problem or timeout; /retry to try again")
	case domain.KindUpstream, domain.KindMalformedResponse:
		fmt.Fprintln(c.out, "! the provider failed:", err, "- /retry to try again")
	default:
		if errors.Is(err, domain.ErrRequestDiscarded) {
			fmt.Fprintln(c.out, "! request discarded")
			return
		}
		fmt.Fprintln(c.out, "! error:", err)
	}
}

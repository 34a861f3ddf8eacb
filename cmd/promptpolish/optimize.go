package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matiasleandrokruk/promptpolish/internal/bridge"
	"github.com/matiasleandrokruk/promptpolish/internal/domain/polish"
	"github.com/matiasleandrokruk/promptpolish/internal/domain/session"
	"github.com/matiasleandrokruk/promptpolish/internal/infra/config"
	"github.com/matiasleandrokruk/promptpolish/internal/infra/eventbus"
	pkgauth "github.com/matiasleandrokruk/promptpolish/pkg/auth"
)

// terminalField is the single field the terminal client drives.
const terminalField session.FieldID = "terminal"

type optimizeFlags struct {
	mode        string
	instruction string
	deep        bool
	noClarify   bool
	followUp    string
	jsonOut     bool
	token       string
}

func (a *app) optimizeCmd() *cobra.Command {
	var f optimizeFlags
	cmd := &cobra.Command{
		Use:   "optimize [text...]",
		Short: "Polish text from the arguments or stdin",
		Long: `optimize runs one conversation turn: the text is submitted (short text may
be routed to clarification first), and with --follow-up the suggestion is
refined once more (formal, creative, concise or analyze_comparison).

Requests go through BRIDGE_URL when set, otherwise straight to the proxy
endpoint.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return a.optimize(cmd.Context(), cmd.OutOrStdout(), text, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.mode, "mode", "m", "", "optimization mode (default from settings)")
	fl.StringVarP(&f.instruction, "instruction", "i", "", "custom instruction, used with --mode custom")
	fl.BoolVar(&f.deep, "deep", false, "deep polish")
	fl.BoolVar(&f.noClarify, "no-clarify", false, "never route short input to clarification")
	fl.StringVar(&f.followUp, "follow-up", "", "follow-up action on the suggestion")
	fl.BoolVar(&f.jsonOut, "json", false, "print the result envelope as JSON")
	fl.StringVar(&f.token, "token", "", "bridge token (minted from BRIDGE_SECRET when empty)")
	return cmd
}

func (a *app) optimize(ctx context.Context, out io.Writer, text string, f optimizeFlags) error {
	sender, closeSender, err := a.sender(ctx, f.token)
	if err != nil {
		return err
	}
	defer closeSender()

	bus := eventbus.New()
	done := make(chan struct{})
	go logTransitions(bus.Subscribe(session.TopicTransition), a.logger, done)
	defer func() {
		bus.Close()
		<-done
	}()

	m := session.NewMachine(sender, session.StaticSettings(terminalSettings(a.cfg.Settings, f)),
		session.WithLimits(limitsOf(a.cfg)),
		session.WithEventBus(bus),
		session.WithLogger(a.logger.Named("session")))
	if err := m.Attach(terminalField, "terminal"); err != nil {
		return err
	}

	outcome, err := m.Submit(ctx, terminalField, text)
	if err != nil {
		return err
	}
	if f.followUp != "" && outcome.State == session.StateSuggested {
		outcome, err = m.FollowUp(ctx, terminalField, polish.Mode(f.followUp))
		if err != nil {
			return err
		}
	}
	return printOutcome(out, outcome, f.jsonOut)
}

// sender picks the bridge client when BRIDGE_URL is set and the in-process
// relay otherwise.
func (a *app) sender(ctx context.Context, token string) (session.Sender, func(), error) {
	if a.cfg.Bridge.URL == "" {
		local := bridge.NewLocal(bridge.NewRelay(clientOptimizer(a.cfg, a.logger), a.logger))
		return local, local.Close, nil
	}

	if token == "" && a.cfg.Bridge.Secret != "" {
		tokens, err := pkgauth.NewTokens(a.cfg.Bridge.Secret, a.cfg.TokenTTL())
		if err != nil {
			return nil, nil, err
		}
		if token, err = tokens.Issue("terminal", "cli"); err != nil {
			return nil, nil, err
		}
	}
	client, err := bridge.Dial(ctx, a.cfg.Bridge.URL, token, a.logger)
	if err != nil {
		return nil, nil, err
	}
	closeClient := func() {
		client.Close() //nolint:errcheck
	}
	return client, closeClient, nil
}

// terminalSettings applies the command-line overrides to the configured
// settings. The terminal is not a host page, so the host allow-list is dropped.
func terminalSettings(cs config.ClientSettings, f optimizeFlags) session.Settings {
	s := session.Settings{
		DefaultMode:        polish.Mode(cs.DefaultMode),
		CustomInstruction:  cs.CustomInstruction,
		AutoClarify:        cs.AutoClarify,
		Enabled:            cs.Enabled,
		DeepPolish:         cs.DeepPolish,
		VagueWordThreshold: cs.VagueWordThreshold,
	}
	if f.mode != "" {
		s.DefaultMode = polish.Mode(f.mode)
	}
	if f.instruction != "" {
		s.CustomInstruction = f.instruction
	}
	if f.deep {
		s.DeepPolish = true
	}
	if f.noClarify {
		s.AutoClarify = false
	}
	return s
}

func logTransitions(events <-chan eventbus.Event, logger *zap.Logger, done chan<- struct{}) {
	defer close(done)
	for evt := range events {
		t, ok := evt.Payload.(session.Transition)
		if !ok {
			continue
		}
		logger.Debug("transition",
			zap.String("field", string(t.Field)),
			zap.Stringer("from", t.From),
			zap.Stringer("to", t.To),
			zap.String("mode", string(t.Mode)))
	}
}

func readInput(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	raw, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(raw), "\r\n"), nil
}

func printOutcome(w io.Writer, o session.Outcome, jsonOut bool) error {
	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(o.Envelope); err != nil {
			return err
		}
		if o.State == session.StateFailed {
			return errors.New(o.Envelope.Error)
		}
		return nil
	}

	switch o.State {
	case session.StateFailed:
		return errors.New(o.Envelope.Error)
	case session.StateSuggested:
		if len(o.Suggestions) == 1 {
			_, err := fmt.Fprintln(w, o.Suggestions[0])
			return err
		}
		for i, s := range o.Suggestions {
			if _, err := fmt.Fprintf(w, "%d. %s\n", i+1, s); err != nil {
				return err
			}
		}
		return nil
	default:
		_, err := fmt.Fprintln(w, strings.Join(o.Envelope.Data.Items(), "\n"))
		return err
	}
}

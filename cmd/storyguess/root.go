package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"storyguess/internal/api"
	"storyguess/internal/config"
	"storyguess/internal/game"
	"storyguess/internal/lobby"
	"storyguess/internal/screen"
	"storyguess/internal/session"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "storyguess",
		Short:         "Spot the made-up fact in each round's story before the clock runs out.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.AddCommand(newHostCmd(), newJoinCmd(), newPlayCmd())
	return root
}

func newHostCmd() *cobra.Command {
	var topic string

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Create a lobby and play as its host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newEnv()
			if err != nil {
				return err
			}
			defer env.close()

			resp, err := env.api.CreateLobby(cmd.Context(), topic)
			if err != nil {
				return fmt.Errorf("creating lobby: %w", err)
			}
			fmt.Printf("Lobby created. Share this id with the other players: %s\n", resp.LobbyID)

			sess := session.Session{
				UserID:     resp.CreatorID,
				LobbyID:    resp.LobbyID,
				PlayerName: lobby.HostName,
			}
			if err := env.store.Save(sess); err != nil {
				return err
			}
			return env.play(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&topic, "topic", "t", "", "subject the round's stories are written about (required)")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

func newJoinCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "join <lobby-id>",
		Short: "Join an existing lobby and play",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnv()
			if err != nil {
				return err
			}
			defer env.close()

			lobbyID := args[0]
			userID := strings.ReplaceAll(uuid.NewString(), "-", "")

			if err := env.api.Join(cmd.Context(), lobbyID, userID, name); err != nil {
				if errors.Is(err, api.ErrNameTaken) {
					return fmt.Errorf("%q is taken in this lobby, pick another name", name)
				}
				return fmt.Errorf("joining lobby: %w", err)
			}

			sess := session.Session{UserID: userID, LobbyID: lobbyID, PlayerName: name}
			if err := env.store.Save(sess); err != nil {
				return err
			}
			return env.play(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "display name shown to other players (required)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newPlayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Resume the game for the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newEnv()
			if err != nil {
				return err
			}
			defer env.close()
			return env.play(cmd.Context())
		},
	}
}

// env bundles everything a subcommand needs to reach the lobby service.
type env struct {
	cfg   config.Config
	api   *api.Client
	store *session.Store
	log   *zap.Logger
}

func newEnv() (*env, error) {
	cfg := config.Load()

	lvl, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	log, err := zcfg.Build()
	if err != nil {
		return nil, err
	}

	path, err := session.DefaultPath()
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:   cfg,
		api:   api.NewClient(cfg.APIBaseURL),
		store: session.NewStore(path),
		log:   log,
	}, nil
}

func (e *env) close() { _ = e.log.Sync() }

// play runs the game screen with stdin as the input surface: plain lines are
// guesses, "/say ..." lines are chat, and "/quit" leaves the game.
func (e *env) play(ctx context.Context) error {
	scr := screen.New(screen.Options{
		API:       e.api,
		Store:     e.store,
		WSBaseURL: e.cfg.WSBaseURL,
		Notifier:  stdoutNotifier{},
		Log:       e.log,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go readInput(ctx, scr.Inbox())
	go render(ctx, scr.Inbox())

	dest, err := scr.Run(ctx)
	if err != nil {
		if errors.Is(err, screen.ErrMissingIdentity) {
			return errors.New("no saved session, use 'storyguess host' or 'storyguess join' first")
		}
		return err
	}
	if dest == game.DestJoin {
		fmt.Println("Rejoin the lobby to keep playing.")
	}
	return nil
}

func readInput(ctx context.Context, inbox chan<- screen.Msg) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		var msg screen.Msg
		switch {
		case line == "":
			continue
		case line == "/quit":
			msg = screen.Stop{}
		case strings.HasPrefix(line, "/say "):
			msg = screen.SendChat{Text: strings.TrimPrefix(line, "/say ")}
		default:
			msg = screen.SubmitGuess{Text: line}
		}

		select {
		case inbox <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// render polls the screen state and prints what changed: the story when a new
// subtopic begins, feed entries as they land, and the scoreboard at the end.
func render(ctx context.Context, inbox chan<- screen.Msg) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	lastPhase := game.PhaseNotStarted
	lastSubtopic := -1
	printed := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		reply := make(chan game.State, 1)
		select {
		case inbox <- screen.Snapshot{Reply: reply}:
		case <-ctx.Done():
			return
		}

		var st game.State
		select {
		case st = <-reply:
		case <-ctx.Done():
			return
		}

		if st.Phase == game.PhaseGenerating && lastPhase != game.PhaseGenerating {
			fmt.Println("Generating the round...")
		}

		if st.Phase == game.PhaseSubtopicActive && st.Subtopic != lastSubtopic {
			sub, ok := game.CurrentSubtopic(st)
			if ok {
				fmt.Printf("\n== %s (%d seconds) ==\n%s\n", sub.Name, st.Ticks, sub.Narrative)
				fmt.Println("Type the fact you think is made up:")
			}
			lastSubtopic = st.Subtopic
			printed = 0
		}

		for ; printed < len(st.Feed); printed++ {
			entry := st.Feed[printed]
			fmt.Printf("[%s] %s\n", entry.Author, entry.Text)
		}

		if st.Phase == game.PhaseRoundComplete && lastPhase != game.PhaseRoundComplete {
			fmt.Println("\nFinal scores:")
			for _, name := range st.Players {
				fmt.Printf("  %s: %d\n", name, st.Scores[name])
			}
		}
		lastPhase = st.Phase
	}
}

type stdoutNotifier struct{}

func (stdoutNotifier) Notify(message string) {
	fmt.Println(message)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"storyline/internal/app"
	"storyline/internal/config"
	"storyline/internal/domain"
	"storyline/internal/engine"
	"storyline/internal/engine/auth"
	"storyline/internal/logging"
	"storyline/internal/repo"
	"storyline/internal/server"
	"storyline/internal/textgen"
)

var rootCmd = &cobra.Command{
	Use:   "sl",
	Short: "Storyline CLI",
	Long: `Storyline is a chat app that tracks user stories per chat space.
- Spaces: every chat space the app is added to gets its own stories and user records.
- User stories: title, description, priority and size; status moves OPEN -> STARTED -> COMPLETED and never back.
- Chat endpoint: 'sl serve' answers chat events on server.chat_path and serves the management API under server.base_path.
- Event log: every change is recorded, view it with 'sl log tail' or forward it with webhooks.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("STORYLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "users/local", "actor identifier recorded in the event log")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides logging.level)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(storyCmd())
	rootCmd.AddCommand(spaceCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(configCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath, chatPath, mode string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat endpoint and the management API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if mode != "http" && mode != "lambda" {
				return errors.New("--mode must be http or lambda")
			}
			return withRuntime(cmd.Context(), mode, func(ctx context.Context, rt *app.Runtime) error {
				cfg := rt.Config
				if addr == "" {
					addr = cfg.Server.Addr
				}
				if basePath == "" {
					basePath = cfg.Server.BasePath
				}
				if chatPath == "" {
					chatPath = cfg.Server.ChatPath
				}
				authCfg := server.AuthConfig{JWTSecret: viper.GetString("jwt-secret")}
				if authCfg.JWTSecret == "" {
					rt.Log.Warnw("STORYLINE_JWT_SECRET is not set, the management API only accepts API keys")
				}
				handler, err := server.New(server.Config{
					Engine:    rt.Engine,
					Chat:      rt.Chat,
					BasePath:  basePath,
					ChatPath:  chatPath,
					Auth:      authCfg,
					Log:       rt.Log.With("component", "server"),
					LogEvents: cfg.Logging.Events,
				})
				if err != nil {
					return err
				}
				if mode == "lambda" {
					lambda.Start(httpadapter.New(handler).ProxyWithContext)
					return nil
				}
				if d := server.NewWebhookDispatcher(rt.Engine, rt.Log.With("component", "webhooks")); d != nil {
					go d.Run(ctx)
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				rt.Log.Infow("serving Storyline", "addr", addr, "chat_path", chatPath, "base_path", basePath)
				fmt.Printf("Serving Storyline on http://%s (chat at %s, API at %s, Swagger UI at /docs)\n", addr, chatPath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides server.base_path)")
	cmd.Flags().StringVar(&chatPath, "chat-path", "", "chat endpoint path (overrides server.chat_path)")
	cmd.Flags().StringVar(&mode, "mode", "http", "http or lambda")
	return cmd
}

func storyCmd() *cobra.Command {
	st := &cobra.Command{Use: "story", Short: "Manage user stories"}
	st.PersistentFlags().String("space", "", "space id, with or without the spaces/ prefix")
	_ = viper.BindPFlag("space", st.PersistentFlags().Lookup("space"))
	st.AddCommand(storyListCmd())
	st.AddCommand(storyShowCmd())
	st.AddCommand(storyCreateCmd())
	st.AddCommand(storyAssignCmd())
	st.AddCommand(storyStatusCmd("start", "Start a user story", func(e engine.Engine) statusFunc { return e.StartUserStory }))
	st.AddCommand(storyStatusCmd("complete", "Complete a user story", func(e engine.Engine) statusFunc { return e.CompleteUserStory }))
	st.AddCommand(storyCleanupCmd())
	return st
}

func requireSpace() (string, error) {
	space := viper.GetString("space")
	if space == "" {
		return "", errors.New("--space required")
	}
	if !strings.HasPrefix(space, domain.SpacesPrefix) {
		space = domain.SpacesPrefix + space
	}
	return space, nil
}

func storyListCmd() *cobra.Command {
	var assignee, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List user stories of a space",
		RunE: func(cmd *cobra.Command, args []string) error {
			space, err := requireSpace()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				stories, err := e.FindUserStories(ctx, space, assignee, domain.Status(strings.ToUpper(status)))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stories)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Size", "Assignee"})
				for _, s := range stories {
					tw.AppendRow(table.Row{s.ID, s.Title, s.Status, s.PriorityText(), s.SizeText(), s.AssigneeID()})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter (OPEN, STARTED, COMPLETED)")
	return cmd
}

func storyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a user story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			space, err := requireSpace()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.GetUserStory(ctx, space, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
}

func storyCreateCmd() *cobra.Command {
	var title, description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user story",
		RunE: func(cmd *cobra.Command, args []string) error {
			space, err := requireSpace()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.CreateUserStory(ctx, space, title, description, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "story title")
	cmd.Flags().StringVar(&description, "description", "", "story description")
	return cmd
}

func storyAssignCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "assign <id>",
		Short: "Assign a user story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			space, err := requireSpace()
			if err != nil {
				return err
			}
			if user == "" {
				return errors.New("--user required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.AssignUserStory(ctx, space, args[0], user, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user name, for example users/123")
	return cmd
}

type statusFunc func(ctx context.Context, spaceName, id, actorID string) (domain.UserStory, error)

func storyStatusCmd(use, short string, pick func(engine.Engine) statusFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			space, err := requireSpace()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := pick(e)(ctx, space, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
}

func storyCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete every user story of a space",
		RunE: func(cmd *cobra.Command, args []string) error {
			space, err := requireSpace()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.CleanupUserStories(ctx, space, viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Printf("deleted all user stories of %s\n", space)
				return nil
			})
		},
	}
}

func spaceCmd() *cobra.Command {
	sp := &cobra.Command{Use: "space", Short: "Manage spaces"}
	sp.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List spaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				spaces, err := e.ListSpaces(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(spaces)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, s := range spaces {
					tw.AppendRow(table.Row{s.ID, s.DisplayName, s.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	sp.AddCommand(&cobra.Command{
		Use:   "delete <space>",
		Short: "Delete a space with its users and stories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteSpace(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	})
	return sp
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.RecentEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Space", "Entity", "Actor", "Payload"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.SpaceID, evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&f.Limit, "n", "n", 20, "number of events")
	cmd.Flags().StringVar(&f.SpaceID, "space", "", "space filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id filter")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "Manage management API keys"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, secret, err := auth.Service{Repo: e.Repo}.CreateKey(ctx, viper.GetString("actor-id"), name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"key": key, "secret": secret})
				}
				fmt.Printf("created key %s for %s\n%s\n(store the secret now, it is not shown again)\n", key.ID, key.ActorID, secret)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key label")
	keys.AddCommand(create)
	keys.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API keys of --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := auth.Service{Repo: e.Repo}.ListKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Actor", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.Name, k.ActorID, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	keys.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return auth.Service{Repo: e.Repo}.RevokeKey(ctx, args[0])
			})
		},
	})
	return keys
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage storyline.yml",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default storyline.yml to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return errors.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfg.AddCommand(initCmd)
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate storyline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	return cfg
}

// --- helpers ---

// withRuntime opens the workspace for fn. mode is the serve mode, or empty
// for one-shot commands, which never call the text model.
func withRuntime(ctx context.Context, mode string, fn func(context.Context, *app.Runtime) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	level := viper.GetString("log-level")
	if level == "" {
		level = cfg.Logging.Level
	}
	zl, err := logging.ParseLevel(level)
	if err != nil {
		return err
	}
	log := logging.MustMakeCommandLogger(zl)
	opts := app.Options{Workspace: workspace, Config: cfg, Log: log}
	switch mode {
	case "":
		opts.Generator = textgen.Disabled{}
	case "lambda":
		opts.Log = logging.MustMakeJSONLogger(zl)
	}
	log = opts.Log
	rt, err := app.Open(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.WithError(err).Warnw("close runtime")
		}
	}()
	return fn(ctx, rt)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withRuntime(ctx, "", func(ctx context.Context, rt *app.Runtime) error {
		return fn(ctx, rt.Engine)
	})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

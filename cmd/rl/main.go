package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"reqline/internal/app"
	"reqline/internal/config"
	"reqline/internal/db"
	"reqline/internal/domain"
	"reqline/internal/engine"
	"reqline/internal/migrate"
	"reqline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "rl",
	Short: "Reqline CLI",
	Long: `Reqline stores behavioral requirements as a typed graph.
Core concepts:
- Workspace: the .reqline directory holding the database; reqline.yml seeds a new project.
- Project: owns actors, use cases and requirements.
- Actors: who or what interacts with the system (HUMAN, SOFTWARE, HARDWARE, AI_AGENT, EVENT).
- Use cases: named flows that requirements belong to; PRIMARY for main flows, SECONDARY for exception flows.
- Requirements: eleven kinds, simple (system, event_system, actor, ...) and composite
  (logical_group, conditional_group, simultaneous, exceptional); composites reference other requirements.
- Nesting and exceptions: requirements nest under parents; exceptional requirements attach where they are raised.
- Event log: diary of changes, view with 'rl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("REQLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides the workspace default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(actorCmd())
	rootCmd.AddCommand(useCaseCmd())
	rootCmd.AddCommand(reqCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectInitCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectListCmd())
	return prj
}

func projectInitCmd() *cobra.Command {
	var name, desc string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a project in this workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if cfg == nil {
				if name == "" {
					return fmt.Errorf("--name required (or create reqline.yml first)")
				}
				cfg = config.Default(name)
			}
			e := engine.New(conn, cfg)
			p, err := e.InitProject(cmd.Context(), name, desc)
			if err != nil {
				return err
			}
			return printJSONOrTable(p)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&desc, "description", "", "project description")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				return printJSONOrTable(p)
			})
		},
	}
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func actorCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "actor", Short: "Manage actors"}
	cmd.AddCommand(actorCreateCmd())
	cmd.AddCommand(actorListCmd())
	return cmd
}

func actorCreateCmd() *cobra.Command {
	var name, actorType, subtype string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				a, err := e.CreateActor(ctx, engine.ActorCreateOptions{
					ProjectID: p.ID,
					Name:      name,
					Type:      actorType,
					Subtype:   domain.ActorSubtype(subtype),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "actor name")
	cmd.Flags().StringVar(&actorType, "type", "", "free-form actor type")
	cmd.Flags().StringVar(&subtype, "subtype", "", "HUMAN, SOFTWARE, HARDWARE, AI_AGENT or EVENT")
	return cmd
}

func actorListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List actors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				items, err := e.ListActors(ctx, p.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Subtype", "Type"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.Name, a.Subtype, a.Type})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func useCaseCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "usecase", Short: "Manage use cases"}
	cmd.AddCommand(useCaseCreateCmd())
	cmd.AddCommand(useCaseListCmd())
	return cmd
}

func useCaseCreateCmd() *cobra.Command {
	var name, kind string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create use case",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				u, err := e.CreateUseCase(ctx, engine.UseCaseCreateOptions{
					ProjectID: p.ID,
					Name:      name,
					Kind:      domain.UseCaseKind(kind),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "use case name")
	cmd.Flags().StringVar(&kind, "kind", "", "PRIMARY or SECONDARY")
	return cmd
}

func useCaseListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List use cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				items, err := e.ListUseCases(ctx, p.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Kind"})
				for _, u := range items {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Kind})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func reqCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "req", Short: "Manage requirements"}
	cmd.AddCommand(reqCreateCmd())
	cmd.AddCommand(reqShowCmd())
	cmd.AddCommand(reqListCmd())
	cmd.AddCommand(reqRemoveCmd())
	cmd.AddCommand(reqNestCmd())
	cmd.AddCommand(reqUnnestCmd())
	cmd.AddCommand(reqExceptCmd())
	cmd.AddCommand(reqUnexceptCmd())
	cmd.AddCommand(reqTransferCmd())
	cmd.AddCommand(reqCheckCmd())
	return cmd
}

func reqCreateCmd() *cobra.Command {
	var (
		variant, useCaseID                  string
		depth                               int
		operation, condition, condValue     string
		exception, commInfo, commFacility   string
		actorIDs, details, alts             []string
		simples, handles                    []string
		requirementID, referencedUC, mainID string
		primaryCond, fallback               string
		parentID, exceptionID               string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create requirement",
		RunE: func(cmd *cobra.Command, args []string) error {
			if variant == "" {
				return fmt.Errorf("--variant required (one of: %s)", strings.Join(variantNames(), ", "))
			}
			if useCaseID == "" {
				return fmt.Errorf("--usecase required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				req := domain.Requirement{
					Variant:   domain.Variant(variant),
					UseCaseID: useCaseID,
					Depth:     depth,

					Operation:             operation,
					Condition:             condition,
					ConditionalValue:      condValue,
					Exception:             exception,
					CommunicationInfo:     commInfo,
					CommunicationFacility: commFacility,

					ActorIDs:                actorIDs,
					RequirementID:           optionalString(requirementID),
					ReferencedUseCaseID:     optionalString(referencedUC),
					MainRequirementID:       optionalString(mainID),
					DetailRequirementIDs:    details,
					PrimaryConditionID:      optionalString(primaryCond),
					AlternativeConditionIDs: alts,
					FallbackConditionID:     optionalString(fallback),
					SimpleRequirementIDs:    simples,
					HandledRequirementIDs:   handles,
				}
				created, err := e.CreateRequirement(ctx, engine.CreateRequirementOptions{
					ProjectID:           p.ID,
					Requirement:         req,
					ParentRequirementID: parentID,
					ExceptionID:         exceptionID,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&variant, "variant", "", "requirement variant")
	cmd.Flags().StringVar(&useCaseID, "usecase", "", "owning use case id")
	cmd.Flags().IntVar(&depth, "depth", 0, "nesting depth")
	cmd.Flags().StringVar(&operation, "operation", "", "operation text")
	cmd.Flags().StringVar(&condition, "condition", "", "condition text")
	cmd.Flags().StringVar(&condValue, "conditional-value", "", "conditional value")
	cmd.Flags().StringVar(&exception, "exception", "", "exception text")
	cmd.Flags().StringVar(&commInfo, "communication-info", "", "communication info")
	cmd.Flags().StringVar(&commFacility, "communication-facility", "", "communication facility")
	cmd.Flags().StringSliceVar(&actorIDs, "actor", nil, "actor id (repeatable)")
	cmd.Flags().StringVar(&requirementID, "requirement", "", "referenced requirement id")
	cmd.Flags().StringVar(&referencedUC, "referenced-usecase", "", "referenced use case id")
	cmd.Flags().StringVar(&mainID, "main", "", "main requirement id")
	cmd.Flags().StringSliceVar(&details, "detail", nil, "detail requirement id (repeatable)")
	cmd.Flags().StringVar(&primaryCond, "primary-condition", "", "primary condition requirement id")
	cmd.Flags().StringSliceVar(&alts, "alternative", nil, "alternative condition requirement id (repeatable)")
	cmd.Flags().StringVar(&fallback, "fallback", "", "fallback condition requirement id")
	cmd.Flags().StringSliceVar(&simples, "simple", nil, "simple requirement id (repeatable)")
	cmd.Flags().StringSliceVar(&handles, "handles", nil, "handled requirement id (repeatable)")
	cmd.Flags().StringVar(&parentID, "parent", "", "nest under this requirement")
	cmd.Flags().StringVar(&exceptionID, "exception-id", "", "attach to this exceptional requirement")
	return cmd
}

func reqShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show requirement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				req, err := e.GetRequirement(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
}

func reqListCmd() *cobra.Command {
	var useCaseID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requirements",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				var (
					items []*domain.Requirement
					err   error
				)
				if useCaseID != "" {
					items, err = e.RequirementsByUseCase(ctx, useCaseID)
				} else {
					items, err = e.RequirementsByProject(ctx, p.ID)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Variant", "Summary", "Use case", "Depth"})
				for _, r := range items {
					tw.AppendRow(table.Row{r.ID, r.Variant, summarize(r), r.UseCaseID, r.Depth})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&useCaseID, "usecase", "", "filter by use case id")
	return cmd
}

func reqRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove requirement and its owned subtree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				removed, err := e.RemoveRequirement(ctx, args[0])
				if err != nil {
					return err
				}
				if !removed {
					fmt.Println("nothing to remove")
					return nil
				}
				fmt.Println("removed", args[0])
				return nil
			})
		},
	}
}

func reqNestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nest <parent> <child>",
		Short: "Nest a requirement under another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				return e.AddNestedRequirement(ctx, args[0], args[1])
			})
		},
	}
}

func reqUnnestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unnest <parent> <child>",
		Short: "Remove a nesting link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				return e.RemoveNestedRequirement(ctx, args[0], args[1])
			})
		},
	}
}

func reqExceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "except <requirement> <exceptional>",
		Short: "Attach an exceptional requirement",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				return e.AddException(ctx, args[0], args[1])
			})
		},
	}
}

func reqUnexceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unexcept <requirement> <exceptional>",
		Short: "Detach an exceptional requirement",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				return e.RemoveException(ctx, args[0], args[1])
			})
		},
	}
}

func reqTransferCmd() *cobra.Command {
	var useCaseID string
	cmd := &cobra.Command{
		Use:   "transfer <container>",
		Short: "Move a container and its members to another use case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if useCaseID == "" {
				return fmt.Errorf("--usecase required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				moved, err := e.SetToSecondaryUseCase(ctx, args[0], useCaseID)
				if err != nil {
					return err
				}
				fmt.Printf("moved %d requirements to %s\n", moved, useCaseID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&useCaseID, "usecase", "", "target use case id")
	return cmd
}

func reqCheckCmd() *cobra.Command {
	var variant, targetID string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a variant may reference a requirement",
		RunE: func(cmd *cobra.Command, args []string) error {
			if variant == "" || targetID == "" {
				return fmt.Errorf("--variant and --target required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				if err := e.ValidateRequirementDependency(ctx, domain.Variant(variant), targetID); err != nil {
					var br domain.BadRequestError
					if errors.As(err, &br) {
						fmt.Println("not allowed:", br.Reason)
						return nil
					}
					return err
				}
				fmt.Println("allowed")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&variant, "variant", "", "source requirement variant")
	cmd.Flags().StringVar(&targetID, "target", "", "target requirement id")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				events, err := e.LatestEvents(ctx, n, p.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn, nil)
			p, cfg, err := app.ResolveProjectAndConfig(cmd.Context(), workspace, viper.GetString("project"), e)
			if err != nil {
				return err
			}
			e.Config = cfg
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Reqline API for project %s on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n",
				p.Name, addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, domain.Project) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	e := engine.New(conn, nil)
	p, cfg, err := app.ResolveProjectAndConfig(ctx, workspace, viper.GetString("project"), e)
	if err != nil {
		return err
	}
	e.Config = cfg
	return fn(ctx, e, p)
}

func withDB(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, nil))
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
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

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func variantNames() []string {
	var names []string
	for _, v := range domain.Variants() {
		names = append(names, string(v))
	}
	return names
}

// summarize picks the most descriptive scalar a variant carries.
func summarize(r *domain.Requirement) string {
	switch {
	case r.Operation != "":
		return r.Operation
	case r.Condition != "":
		return r.Condition
	case r.Exception != "":
		return r.Exception
	case r.CommunicationInfo != "":
		return r.CommunicationInfo
	default:
		return ""
	}
}

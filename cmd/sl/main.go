package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"suratline/internal/app"
	"suratline/internal/config"
	"suratline/internal/db"
	"suratline/internal/domain"
	"suratline/internal/engine"
	"suratline/internal/engine/auth"
	"suratline/internal/logging"
	"suratline/internal/migrate"
	"suratline/internal/notify"
	"suratline/internal/repo"
	"suratline/internal/server"
	"suratline/internal/session"
)

var rootCmd = &cobra.Command{
	Use:   "sl",
	Short: "Suratline CLI",
	Long: `Suratline follows official correspondence from intake to approval.
- TU registers a letter (report create) and forwards it to coordinators.
- Coordinators check the required documents (report verify/doc) and split the work among staff (report assign).
- Staff complete their tasks; the report is Completed when every task is done.
- Coordinators approve, send back for revision, or return to TU when documents are missing.
- Every step lands in the report history (sl log). Anyone can follow a letter with 'sl track'.
Log in first with 'sl login <user-id>'.`,
	SilenceUsage: true,
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
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SURATLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("session", "sql", "session store: sql or redis")
	flags.String("redis-addr", "127.0.0.1:6379", "redis address for the redis session store")
	flags.String("redis-password", "", "redis password")
	flags.Int("redis-db", 0, "redis database")
	flags.String("log-env", "development", "log format: production (JSON) or development")
	for _, name := range []string{"workspace", "json", "session", "redis-addr", "redis-password", "redis-db", "log-env"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(trackCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(serveCmd())
}

func loginCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <user-id>",
		Short: "Log in on this workstation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, env cliEnv) error {
				u, err := env.Users.Login(ctx, args[0], password)
				if err != nil {
					return err
				}
				if err := env.Session.Set(ctx, u.ID); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(u.Actor())
				}
				fmt.Printf("Logged in as %s (%s)\n", u.Name, u.Role)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the logged-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, env cliEnv) error {
				return env.Session.Clear(ctx)
			})
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, env cliEnv, actor domain.Actor) error {
				if viper.GetBool("json") {
					return printJSON(actor)
				}
				fmt.Printf("%s (%s, %s)\n", actor.Name, actor.ID, actor.Role)
				return nil
			})
		},
	}
}

func reportCmd() *cobra.Command {
	rep := &cobra.Command{Use: "report", Short: "Work with reports"}
	rep.AddCommand(reportCreateCmd())
	rep.AddCommand(reportListCmd())
	rep.AddCommand(reportShowCmd())
	rep.AddCommand(reportForwardCmd())
	rep.AddCommand(reportVerifyCmd())
	rep.AddCommand(reportDocCmd())
	rep.AddCommand(reportAssignCmd())
	rep.AddCommand(reportSimpleCmd("complete", "Complete your task on a report", func(string) engine.Command { return engine.CompleteTaskCommand{} }))
	rep.AddCommand(reportSimpleCmd("approve", "Approve a fully completed report", func(string) engine.Command { return engine.ApproveCommand{} }))
	rep.AddCommand(reportSimpleCmd("revise", "Send assigned work back for revision", func(note string) engine.Command { return engine.ReviseCommand{Note: note} }))
	rep.AddCommand(reportSimpleCmd("return", "Return a report to TU for missing documents", func(note string) engine.Command { return engine.ReturnToTUCommand{Note: note} }))
	rep.AddCommand(reportSimpleCmd("handback", "Tell the coordinators your work is ready", func(string) engine.Command { return engine.HandBackCommand{} }))
	rep.AddCommand(reportEditCmd())
	rep.AddCommand(reportNoteCmd())
	return rep
}

func reportCreateCmd() *cobra.Command {
	var in engine.NewReport
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register incoming correspondence",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, env cliEnv, actor domain.Actor) error {
				r, err := env.Engine.CreateReport(ctx, actor, in)
				if err != nil {
					return err
				}
				return printReport(r)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.LetterNumber, "letter", "", "letter number")
	f.StringVar(&in.Subject, "subject", "", "subject")
	f.StringVar(&in.ServiceType, "service", "", "service type from the catalog")
	f.StringVar(&in.Notes, "notes", "", "notes")
	addDispositionFlags(cmd, &in.Disposition)
	_ = cmd.MarkFlagRequired("letter")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("service")
	return cmd
}

func addDispositionFlags(cmd *cobra.Command, d *domain.Disposition) {
	f := cmd.Flags()
	f.StringArrayVar(&d.Nature, "nature", nil, "disposition nature flag (repeatable)")
	f.StringArrayVar(&d.Urgency, "urgency", nil, "disposition urgency flag (repeatable)")
	f.StringVar(&d.AgendaNumber, "agenda-number", "", "agenda number")
	f.StringVar(&d.OriginGroup, "origin-group", "", "origin group")
	f.StringVar(&d.SecretariatAgenda, "secretariat-agenda", "", "secretariat agenda")
	f.StringVar(&d.Sender, "sender", "", "sender")
	f.StringVar(&d.AgendaDate, "agenda-date", "", "agenda date")
	f.StringVar(&d.LetterDate, "letter-date", "", "letter date")
}

func reportListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the reports you can see",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, env cliEnv, actor domain.Actor) error {
				reps, err := env.Engine.ListForRole(ctx, actor.Role, actor.Name)
				if err != nil {
					return err
				}
				if status != "" {
					filtered := []domain.Report{}
					for _, r := range reps {
						if string(r.Status) == status {
							filtered = append(filtered, r)
						}
					}
					reps = filtered
				}
				if viper.GetBool("json") {
					return printJSON(reps)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Letter", "Subject", "Service", "Status", "Progress"})
				for _, r := range reps {
					tw.AppendRow(table.Row{r.ID, r.LetterNumber, r.Subject, r.ServiceType, r.Status, fmt.Sprintf("%d%%", r.Progress)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func reportShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <report-id>",
		Short: "Show a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, env cliEnv, actor domain.Actor) error {
				r, err := env.Engine.GetReport(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printReport(r)
			})
		},
	}
}

func reportForwardCmd() *cobra.Command {
	var coordinators []string
	cmd := &cobra.Command{
		Use:   "forward <report-id>",
		Short: "Forward a report to coordinators",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyCommand(cmd.Context(), args[0], engine.ForwardCommand{Coordinators: coordinators})
		},
	}
	cmd.Flags().StringArrayVar(&coordinators, "coordinator", nil, "coordinator name (repeatable)")
	_ = cmd.MarkFlagRequired("coordinator")
	return cmd
}

func reportVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <report-id>",
		Short: "Show the document check, starting it if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, env cliEnv, actor domain.Actor) error {
				r, err := env.Engine.OpenVerification(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printVerification(env.Engine.Config, r)
			})
		},
	}
}

func reportDocCmd() *cobra.Command {
	var absent bool
	cmd := &cobra.Command{
		Use:   "doc <report-id> <document>",
		Short: "Record whether a required document is present",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := domain.DocumentPresent
			if absent {
				status = domain.DocumentAbsent
			}
			return withActor(cmd.Context(), func(ctx context.Context, env cliEnv, actor domain.Actor) error {
				r, err := env.Engine.RecordDocument(ctx, actor, args[0], args[1], status)
				if err != nil {
					return err
				}
				return printVerification(env.Engine.Config, r)
			})
		},
	}
	cmd.Flags().BoolVar(&absent, "absent", false, "mark the document as missing")
	return cmd
}

func reportAssignCmd() *cobra.Command {
	var staff, items, present []string
	var notes string
	var allPresent bool
	cmd := &cobra.Command{
		Use:   "assign <report-id>",
		Short: "Confirm documents and assign staff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, env cliEnv, actor domain.Actor) error {
				v := domain.Verification{}
				for _, doc := range present {
					v[doc] = domain.DocumentPresent
				}
				if allPresent {
					r, err := env.Engine.GetReport(ctx, actor, args[0])
					if err != nil {
						return err
					}
					for _, doc := range env.Engine.Config.RequiredDocuments(r.ServiceType) {
						v[doc] = domain.DocumentPresent
					}
				}
				r, err := env.Engine.Apply(ctx, actor, args[0], engine.VerifyAssignCommand{
					Verification: v,
					Staff:        staff,
					Items:        items,
					Notes:        notes,
				})
				if err != nil {
					return err
				}
				return printReport(r)
			})
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&staff, "staff", nil, "staff name (repeatable)")
	f.StringArrayVar(&items, "item", nil, "checklist item (repeatable)")
	f.StringArrayVar(&present, "present", nil, "document confirmed present (repeatable)")
	f.BoolVar(&allPresent, "all-present", false, "confirm every required document")
	f.StringVar(&notes, "notes", "", "instructions for staff")
	_ = cmd.MarkFlagRequired("staff")
	_ = cmd.MarkFlagRequired("item")
	return cmd
}

func reportSimpleCmd(use, short string, build func(note string) engine.Command) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   use + " <report-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyCommand(cmd.Context(), args[0], build(note))
		},
	}
	if use == "revise" || use == "return" {
		cmd.Flags().StringVar(&note, "note", "", "note for the history")
	}
	return cmd
}

func reportEditCmd() *cobra.Command {
	var letter, subject, service, notes string
	var disp domain.Disposition
	cmd := &cobra.Command{
		Use:   "edit <report-id>",
		Short: "Edit descriptive fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			c := engine.EditFieldsCommand{}
			if f.Changed("letter") {
				c.LetterNumber = &letter
			}
			if f.Changed("subject") {
				c.Subject = &subject
			}
			if f.Changed("service") {
				c.ServiceType = &service
			}
			if f.Changed("notes") {
				c.Notes = &notes
			}
			for _, name := range []string{"nature", "urgency", "agenda-number", "origin-group", "secretariat-agenda", "sender", "agenda-date", "letter-date"} {
				if f.Changed(name) {
					c.Disposition = &disp
					break
				}
			}
			if c.Disposition != nil {
				return withActor(cmd.Context(), func(ctx context.Context, env cliEnv, actor domain.Actor) error {
					cur, err := env.Engine.GetReport(ctx, actor, args[0])
					if err != nil {
						return err
					}
					c.Disposition = mergeDisposition(cur.Disposition, disp, f.Changed)
					r, err := env.Engine.Apply(ctx, actor, args[0], c)
					if err != nil {
						return err
					}
					return printReport(r)
				})
			}
			return applyCommand(cmd.Context(), args[0], c)
		},
	}
	f := cmd.Flags()
	f.StringVar(&letter, "letter", "", "letter number")
	f.StringVar(&subject, "subject", "", "subject")
	f.StringVar(&service, "service", "", "service type")
	f.StringVar(&notes, "notes", "", "notes")
	addDispositionFlags(cmd, &disp)
	return cmd
}

// mergeDisposition overlays the flags the user set on the stored disposition.
func mergeDisposition(cur, in domain.Disposition, changed func(string) bool) *domain.Disposition {
	out := cur
	if changed("nature") {
		out.Nature = in.Nature
	}
	if changed("urgency") {
		out.Urgency = in.Urgency
	}
	if changed("agenda-number") {
		out.AgendaNumber = in.AgendaNumber
	}
	if changed("origin-group") {
		out.OriginGroup = in.OriginGroup
	}
	if changed("secretariat-agenda") {
		out.SecretariatAgenda = in.SecretariatAgenda
	}
	if changed("sender") {
		out.Sender = in.Sender
	}
	if changed("agenda-date") {
		out.AgendaDate = in.AgendaDate
	}
	if changed("letter-date") {
		out.LetterDate = in.LetterDate
	}
	return &out
}

func reportNoteCmd() *cobra.Command {
	var action, notes string
	cmd := &cobra.Command{
		Use:   "note <report-id>",
		Short: "Append a note to the report history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, env cliEnv, actor domain.Actor) error {
				if _, err := env.Engine.GetReport(ctx, actor, args[0]); err != nil {
					return err
				}
				id, err := env.Engine.AddHistoryEntry(ctx, args[0], action, actor.Name, notes)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": id})
				}
				fmt.Println(id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "action text")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func trackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "track <letter-number>",
		Short: "Follow a letter by (part of) its number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, env cliEnv) error {
				r, err := env.Engine.Track(ctx, args[0])
				if errors.Is(err, repo.ErrNotFound) {
					return fmt.Errorf("no letter matches %q", args[0])
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"id":            r.ID,
						"letter_number": r.LetterNumber,
						"subject":       r.Subject,
						"status":        r.Status,
						"progress":      r.Progress,
					})
				}
				fmt.Printf("%s  %s\n%s\nStatus: %s (%d%%)\n", r.ID, r.LetterNumber, r.Subject, r.Status, r.Progress)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Time", "Action"})
				for _, h := range r.History {
					tw.AppendRow(table.Row{h.Timestamp, h.Action})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	var n int
	var types []string
	cmd := &cobra.Command{
		Use:   "log [report-id]",
		Short: "Show report history, or the latest ledger entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, env cliEnv, actor domain.Actor) error {
				var entries []domain.HistoryEntry
				if len(args) == 1 {
					r, err := env.Engine.GetReport(ctx, actor, args[0])
					if err != nil {
						return err
					}
					entries = r.History
				} else {
					if err := auth.Require(actor, "read the history feed"); err != nil {
						return err
					}
					latest, err := env.Engine.Repo.LatestHistorySeq(ctx)
					if err != nil {
						return err
					}
					cursor := latest - int64(n)
					if cursor < 0 {
						cursor = 0
					}
					entries, err = env.Engine.Repo.HistoryAfter(ctx, n, cursor, repo.HistoryFilters{Types: types})
					if err != nil {
						return err
					}
				}
				return printHistory(entries)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries without a report id")
	cmd.Flags().StringArrayVar(&types, "type", nil, "entry type filter without a report id (repeatable)")
	return cmd
}

func userCmd() *cobra.Command {
	usr := &cobra.Command{Use: "user", Short: "Administer users"}
	usr.AddCommand(userListCmd())
	usr.AddCommand(userCreateCmd())
	usr.AddCommand(userUpdateCmd())
	usr.AddCommand(userDeleteCmd())
	return usr
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd.Context(), "list users", func(ctx context.Context, env cliEnv) error {
				users, err := env.Users.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role", "Created"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Role, u.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func userCreateCmd() *cobra.Command {
	var in auth.NewUser
	var role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create user",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Role = domain.Role(role)
			return withAdmin(cmd.Context(), "create users", func(ctx context.Context, env cliEnv) error {
				u, err := env.Users.CreateUser(ctx, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.ID, "id", "", "user id")
	f.StringVar(&in.Name, "name", "", "display name")
	f.StringVar(&role, "role", "", "Admin, TU, Coordinator or Staff")
	f.StringVar(&in.Password, "password", "", "password")
	for _, name := range []string{"id", "name", "role", "password"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func userUpdateCmd() *cobra.Command {
	var name, role, password string
	cmd := &cobra.Command{
		Use:   "update <user-id>",
		Short: "Update user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upd := auth.UserUpdate{}
			if cmd.Flags().Changed("name") {
				upd.Name = &name
			}
			if cmd.Flags().Changed("role") {
				r := domain.Role(role)
				upd.Role = &r
			}
			if cmd.Flags().Changed("password") {
				upd.Password = &password
			}
			return withAdmin(cmd.Context(), "update users", func(ctx context.Context, env cliEnv) error {
				u, err := env.Users.UpdateUser(ctx, args[0], upd)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "", "role")
	cmd.Flags().StringVar(&password, "password", "", "password")
	return cmd
}

func userDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd.Context(), "delete users", func(ctx context.Context, env cliEnv) error {
				return env.Users.DeleteUser(ctx, args[0])
			})
		},
	}
}

func catalogCmd() *cobra.Command {
	cat := &cobra.Command{Use: "catalog", Short: "Service catalog and directory"}
	cat.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the catalog stored in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, env cliEnv) error {
				return printJSONOrTable(env.Engine.Config)
			})
		},
	})
	cat.AddCommand(catalogImportCmd())
	return cat
}

func catalogImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the catalog from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withAdmin(cmd.Context(), "import the catalog", func(ctx context.Context, env cliEnv) error {
				if err := env.Engine.Repo.UpsertCatalogConfig(ctx, cfg); err != nil {
					return err
				}
				fmt.Printf("Imported catalog with %d service(s)\n", len(cfg.Services))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML catalog")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var tokenTTL time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("SURATLINE_JWT_SECRET is required for bearer auth")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, env cliEnv) error {
				dispatcher, stopSinks, err := notify.FromConfig(env.Engine.Config.Notify, env.Engine.Repo, env.Log)
				if err != nil {
					return err
				}
				defer stopSinks()
				if dispatcher.Len() > 0 {
					go dispatcher.Run(ctx)
				}
				handler, err := server.New(server.Config{
					Engine:   env.Engine,
					Users:    env.Users,
					BasePath: basePath,
					Auth:     server.AuthConfig{JWTSecret: secret, TokenTTL: tokenTTL},
					Log:      env.Log,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				env.Log.Info("serving suratline API",
					zap.String("addr", addr),
					zap.String("base_path", basePath),
					zap.Int("notify_sinks", dispatcher.Len()))
				fmt.Printf("Serving Suratline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().DurationVar(&tokenTTL, "token-ttl", 12*time.Hour, "bearer token lifetime")
	cmd.Flags().String("jwt-secret", "", "HS256 signing secret")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

// --- helpers ---

type cliEnv struct {
	Engine  engine.Engine
	Users   auth.Service
	Session session.Store
	Log     *zap.Logger
}

func withEngine(ctx context.Context, fn func(context.Context, cliEnv) error) error {
	log, err := logging.New(viper.GetString("log-env"))
	if err != nil {
		return err
	}
	defer log.Sync()
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	cfg, err := app.LoadCatalog(ctx, workspace, r)
	if err != nil {
		return err
	}
	users := auth.Service{Repo: r}
	if err := app.SeedUsers(ctx, users, app.DefaultUsers, log); err != nil {
		return err
	}
	store, closeStore, err := openSessionStore(ctx, r)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(ctx, cliEnv{
		Engine:  engine.New(conn, cfg, log),
		Users:   users,
		Session: store,
		Log:     log,
	})
}

// withActor runs fn as the logged-in user.
func withActor(ctx context.Context, fn func(context.Context, cliEnv, domain.Actor) error) error {
	return withEngine(ctx, func(ctx context.Context, env cliEnv) error {
		id, err := env.Session.Get(ctx)
		if err != nil {
			if errors.Is(err, session.ErrNoSession) {
				return fmt.Errorf("%w: run 'sl login <user-id>'", err)
			}
			return err
		}
		u, err := env.Users.GetUser(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			_ = env.Session.Clear(ctx)
			return fmt.Errorf("logged-in user %s no longer exists", id)
		}
		if err != nil {
			return err
		}
		return fn(ctx, env, u.Actor())
	})
}

func withAdmin(ctx context.Context, action string, fn func(context.Context, cliEnv) error) error {
	return withActor(ctx, func(ctx context.Context, env cliEnv, actor domain.Actor) error {
		if err := auth.Require(actor, action); err != nil {
			return err
		}
		return fn(ctx, env)
	})
}

func openSessionStore(ctx context.Context, r repo.Repo) (session.Store, func(), error) {
	switch viper.GetString("session") {
	case "", "sql":
		return session.SQLStore{Repo: r}, func() {}, nil
	case "redis":
		store := session.NewRedisStore(viper.GetString("redis-addr"), viper.GetString("redis-password"), viper.GetInt("redis-db"))
		if _, err := store.Ping(); err != nil {
			store.Close()
			return nil, func() {}, fmt.Errorf("redis session store: %w", err)
		}
		return store, func() { store.Close() }, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown session store %q", viper.GetString("session"))
	}
}

func applyCommand(ctx context.Context, reportID string, c engine.Command) error {
	return withActor(ctx, func(ctx context.Context, env cliEnv, actor domain.Actor) error {
		r, err := env.Engine.Apply(ctx, actor, reportID, c)
		if err != nil {
			return err
		}
		return printReport(r)
	})
}

func printReport(r domain.Report) error {
	if viper.GetBool("json") {
		return printJSON(r)
	}
	fmt.Printf("%s  %s\n", r.ID, r.LetterNumber)
	fmt.Printf("Subject: %s\nService: %s\nStatus:  %s (%d%%)\n", r.Subject, r.ServiceType, r.Status, r.Progress)
	if len(r.AssignedCoordinators) > 0 {
		fmt.Printf("Coordinators: %s\n", strings.Join(r.AssignedCoordinators, ", "))
	}
	if r.Notes != "" {
		fmt.Printf("Notes: %s\n", r.Notes)
	}
	if r.RevisionNotes != "" {
		fmt.Printf("Revision: %s\n", r.RevisionNotes)
	}
	if len(r.Tasks) > 0 {
		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"Staff", "Items", "Done"})
		for _, t := range r.Tasks {
			done := ""
			if t.Completed && t.CompletedAt != nil {
				done = *t.CompletedAt
			}
			tw.AppendRow(table.Row{t.StaffID, strings.Join(t.Items, "; "), done})
		}
		tw.Render()
	}
	return printHistory(r.History)
}

func printHistory(entries []domain.HistoryEntry) error {
	if viper.GetBool("json") {
		return printJSON(entries)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Time", "Report", "Action", "Actor", "Notes"})
	for _, h := range entries {
		tw.AppendRow(table.Row{h.Timestamp, h.ReportID, h.Action, h.Actor, h.Notes})
	}
	tw.Render()
	return nil
}

func printVerification(cfg *config.Config, r domain.Report) error {
	if viper.GetBool("json") {
		return printJSON(r.Verification)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Document", "Status"})
	seen := map[string]bool{}
	for _, doc := range cfg.RequiredDocuments(r.ServiceType) {
		seen[doc] = true
		tw.AppendRow(table.Row{doc, r.Verification[doc]})
	}
	for doc, st := range r.Verification {
		if !seen[doc] {
			tw.AppendRow(table.Row{doc, st})
		}
	}
	tw.Render()
	return nil
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

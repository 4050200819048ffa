package main

import (
	"bufio"
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

	"blueprint/internal/agent"
	"blueprint/internal/agent/anthropic"
	"blueprint/internal/config"
	"blueprint/internal/db"
	"blueprint/internal/engine"
	"blueprint/internal/migrate"
	"blueprint/internal/repo"
	"blueprint/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "bp",
	Short: "Blueprint CLI",
	Long: `Blueprint is a project dashboard with an AI architect.
Talk to the architect in plain language; it answers with a structured plan
(create a project, add tasks with checklists) that you can apply with one
command. Everything lives in a .blueprint workspace with a single SQLite
database.`,
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
	viper.SetEnvPrefix("BLUEPRINT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "local-user", "user identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(todoCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default blueprint.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.RecentProjects(ctx, viper.GetString("user-id"), limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Priority", "Progress", "Updated"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Status, p.Priority, fmt.Sprintf("%d%%", p.Progress), p.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "max projects (0 = all)")
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var name, desc, stack, priority string
	var tags []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
					UserID:      viper.GetString("user-id"),
					Name:        name,
					Description: desc,
					Stack:       stack,
					Priority:    priority,
					Tags:        tags,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&stack, "stack", "", "tech stack")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (Alta, Média, Baixa)")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectShowCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a project with tasks and status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				userID := viper.GetString("user-id")
				p, err := e.Repo.GetUserProject(ctx, userID, id)
				if err != nil {
					return err
				}
				counts, err := e.Repo.CountTasksByStatus(ctx, p.ID)
				if err != nil {
					return err
				}
				tasks, err := e.Repo.RecentTasks(ctx, p.ID, 0)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"project": p, "task_counts": counts, "tasks": tasks})
				}
				fmt.Printf("Project #%d: %s (%s, %s, %d%%)\n", p.ID, p.Name, p.Status, p.Priority, p.Progress)
				if p.Description != "" {
					fmt.Println(p.Description)
				}
				if p.Stack != "" {
					fmt.Println("Stack:", p.Stack)
				}
				if len(p.Tags) > 0 {
					fmt.Println("Tags:", strings.Join(p.Tags, ", "))
				}
				fmt.Println("Tasks:")
				for status, c := range counts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Checklist"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, fmt.Sprintf("%d/%d", t.TotalTodos-t.PendingTodos, t.TotalTodos)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "project id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var id int64
	var status, priority, desc string
	var progress int
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.ProjectUpdateOptions{
					UserID:    viper.GetString("user-id"),
					ProjectID: id,
				}
				if cmd.Flags().Changed("status") {
					opts.Status = &status
				}
				if cmd.Flags().Changed("priority") {
					opts.Priority = &priority
				}
				if cmd.Flags().Changed("progress") {
					opts.Progress = &progress
				}
				if cmd.Flags().Changed("description") {
					opts.Description = &desc
				}
				p, err := e.UpdateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "project id")
	cmd.Flags().StringVar(&status, "status", "", "status (planejamento, em_andamento, pausado, concluido)")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (Alta, Média, Baixa)")
	cmd.Flags().IntVar(&progress, "progress", 0, "progress 0-100")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a project and its tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				userID := viper.GetString("user-id")
				if _, err := e.Repo.GetUserProject(ctx, userID, id); err != nil {
					return err
				}
				if err := e.Repo.DeleteProject(ctx, id); err != nil {
					return err
				}
				fmt.Println("deleted project", id)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "project id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskStatusCmd())
	return task
}

func taskListCmd() *cobra.Command {
	var projectID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				userID := viper.GetString("user-id")
				if _, err := e.Repo.GetUserProject(ctx, userID, projectID); err != nil {
					return err
				}
				tasks, err := e.Repo.RecentTasks(ctx, projectID, 0)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Checklist"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, fmt.Sprintf("%d/%d", t.TotalTodos-t.PendingTodos, t.TotalTodos)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&projectID, "project", 0, "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func taskAddCmd() *cobra.Command {
	var projectID int64
	var title, desc, guidance string
	var todos []string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a task to a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return fmt.Errorf("--title required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.CreateTasks(ctx, engine.TasksCreateOptions{
					UserID:    viper.GetString("user-id"),
					ProjectID: projectID,
					Tasks: []engine.TaskSpec{{
						Title:          title,
						Description:    desc,
						GuidancePrompt: guidance,
						Todos:          todos,
					}},
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(tasks)
			})
		},
	}
	cmd.Flags().Int64Var(&projectID, "project", 0, "project id")
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&guidance, "guidance", "", "guidance prompt")
	cmd.Flags().StringSliceVar(&todos, "todo", nil, "checklist item (repeatable)")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskStatusCmd() *cobra.Command {
	var id int64
	var status string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Set task status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.SetTaskStatus(ctx, viper.GetString("user-id"), id, status)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "task id")
	cmd.Flags().StringVar(&status, "status", "", "status (pendente, em_andamento, concluida, cancelada)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func todoCmd() *cobra.Command {
	todo := &cobra.Command{Use: "todo", Short: "Task checklists"}
	todo.AddCommand(todoListCmd())
	todo.AddCommand(todoDoneCmd())
	return todo
}

func todoListCmd() *cobra.Command {
	var taskID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List checklist items for a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				todos, err := r.ListTodos(ctx, taskID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(todos)
				}
				for _, td := range todos {
					mark := " "
					if td.Done {
						mark = "x"
					}
					fmt.Printf("[%s] #%d %s\n", mark, td.ID, td.Description)
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&taskID, "task", 0, "task id")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func todoDoneCmd() *cobra.Command {
	var id int64
	var undo bool
	cmd := &cobra.Command{
		Use:   "done",
		Short: "Mark a checklist item done",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.SetTodoDone(ctx, id, !undo)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "todo id")
	cmd.Flags().BoolVar(&undo, "undo", false, "mark pending instead")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func chatCmd() *cobra.Command {
	var apply, autonomous bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the architect",
		Long: `Interactive chat with the AI architect. The architect knows your recent
projects and replies with a plan when it has enough information. With --apply
the plan's executable actions run immediately; otherwise they are printed.
Requires ANTHROPIC_API_KEY. Type /quit to exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			apiKey := os.Getenv("ANTHROPIC_API_KEY")
			if apiKey == "" {
				return fmt.Errorf("ANTHROPIC_API_KEY is required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				pipeline := agent.New(anthropic.New(apiKey), e.Repo, e.Config, nil)
				userID := viper.GetString("user-id")
				transcript := []agent.Message{}
				scanner := bufio.NewScanner(os.Stdin)
				scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
				fmt.Println("Architect ready. Type /quit to exit.")
				for {
					fmt.Print("> ")
					if !scanner.Scan() {
						return scanner.Err()
					}
					line := strings.TrimSpace(scanner.Text())
					if line == "" {
						continue
					}
					if line == "/quit" || line == "/exit" {
						return nil
					}
					transcript = append(transcript, agent.Message{Role: agent.RoleUser, Content: line})
					resp, err := pipeline.Chat(ctx, agent.ChatRequest{
						UserID:      userID,
						Messages:    transcript,
						Interactive: !autonomous,
					})
					if err != nil {
						var invErr *agent.InvocationError
						if errors.As(err, &invErr) {
							fmt.Println("architect unavailable:", invErr.Reason)
							transcript = transcript[:len(transcript)-1]
							continue
						}
						return err
					}
					transcript = append(transcript, agent.Message{Role: agent.RoleAssistant, Content: resp.Content})
					fmt.Println(visibleReply(resp.Content))
					if resp.Plan == nil {
						continue
					}
					fmt.Printf("\nPlan: %s\n", resp.Plan.Summary)
					for i, action := range resp.Plan.Actions {
						fmt.Printf("  %d. %s\n", i+1, describeAction(action))
					}
					if !apply {
						continue
					}
					for _, action := range resp.Plan.Actions {
						result, err := e.ApplyAction(ctx, userID, action)
						if err != nil {
							fmt.Println("  skipped:", err)
							continue
						}
						if result.Project != nil {
							fmt.Printf("  created project #%d %q\n", result.Project.ID, result.Project.Name)
						}
						if len(result.Tasks) > 0 {
							fmt.Printf("  created %d task(s)\n", len(result.Tasks))
						}
					}
				}
			})
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "execute plan actions immediately")
	cmd.Flags().BoolVar(&autonomous, "autonomous", false, "skip confirmation-style planning")
	return cmd
}

// visibleReply strips the machine-readable trailer so the terminal shows
// only the conversational text.
func visibleReply(content string) string {
	if idx := strings.Index(content, "<!--agent_actions"); idx >= 0 {
		return strings.TrimSpace(content[:idx])
	}
	return strings.TrimSpace(content)
}

func describeAction(action agent.Action) string {
	switch payload := action.Payload.(type) {
	case agent.CreateProjectPayload:
		return fmt.Sprintf("create project %q (%d requirement(s))", payload.Name, len(payload.Requirements))
	case agent.CreateTasksPayload:
		target := payload.ProjectName
		if payload.ProjectID != nil {
			target = fmt.Sprintf("#%d", *payload.ProjectID)
		}
		return fmt.Sprintf("create %d task(s) in project %s", len(payload.Tasks), target)
	default:
		return action.Type
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, viper.GetString("user-id"), evtType)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowHeader bool
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
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			var pipeline *agent.Pipeline
			if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
				pipeline = agent.New(anthropic.New(apiKey), e.Repo, cfg, nil)
			} else {
				fmt.Println("ANTHROPIC_API_KEY not set; /architect/chat will return 503")
			}
			authCfg := server.AuthConfig{
				JWTSecret:       os.Getenv("BLUEPRINT_JWT_SECRET"),
				AllowUserHeader: allowHeader,
				EnableDevLogin:  os.Getenv("BLUEPRINT_DEV_LOGIN") != "",
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowUserHeader {
				return fmt.Errorf("BLUEPRINT_JWT_SECRET is required for bearer auth (or pass --allow-user-header for local use)")
			}
			handler, err := server.New(server.Config{Engine: e, Agent: pipeline, BasePath: basePath, Auth: authCfg})
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
			fmt.Printf("Serving Blueprint API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowHeader, "allow-user-header", false, "trust the X-User-Id header (local development only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
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

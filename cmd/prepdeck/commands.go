package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/prepbrain/prepdeck/internal/config"
	"github.com/prepbrain/prepdeck/internal/controlplane"
	"github.com/prepbrain/prepdeck/internal/dashboard"
	"github.com/prepbrain/prepdeck/internal/journal"
	"github.com/prepbrain/prepdeck/internal/state"
	"github.com/prepbrain/prepdeck/internal/watch"
)

// withConsole opens a console for the duration of fn.
func withConsole(cmd *cobra.Command, fn func(ctx context.Context, c *console) error, tune ...func(*dashboard.Options)) error {
	c, err := newConsole(tune...)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(cmd.Context(), c)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bot, Ollama and device status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			if err := c.ctrl.LoadStatus(ctx); err != nil {
				return report(c.ctrl, err)
			}
			st := c.ctrl.Snapshot().Status
			w := cmd.OutOrStdout()
			if boolFlag(cmd, "json") {
				return printJSON(w, st)
			}
			bot := st.Bot.Status
			if st.Bot.PID != nil {
				bot = fmt.Sprintf("%s (pid %d)", bot, *st.Bot.PID)
			}
			printStatus(w, "Bot", "%s", bot)
			printStatus(w, "Ollama", "%s", st.Ollama.Status)
			printStatus(w, "Signal", "%d%%", st.Telemetry.Signal)
			if st.Telemetry.Battery != nil {
				printStatus(w, "Battery", "%d%%", *st.Telemetry.Battery)
			}
			if st.Telemetry.CoreTemp != nil {
				printStatus(w, "Core temp", "%.1f°C", *st.Telemetry.CoreTemp)
			}
			printStatus(w, "Position", "%s", st.Telemetry.Position)
			printStatus(w, "Uptime", "%s", time.Duration(st.UptimeSeconds)*time.Second)
			printStatus(w, "Processing", "%t", st.Processing)
			return nil
		})
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "print the raw status snapshot")
}

// --- logs ---

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent bot log lines (newest first)",
	RunE: func(cmd *cobra.Command, args []string) error {
		tune := func(o *dashboard.Options) {
			if cmd.Flags().Changed("lines") {
				o.LogLines = intFlag(cmd, "lines")
			}
			if cmd.Flags().Changed("level") {
				o.LogLevel = controlplane.LogLevel(stringsFlag(cmd, "level"))
			}
		}
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			if err := c.ctrl.LoadLogs(ctx); err != nil {
				return report(c.ctrl, err)
			}
			w := cmd.OutOrStdout()
			for _, e := range c.ctrl.Snapshot().Logs {
				line := e.Raw
				if line == "" {
					line = e.Message
				}
				upper := strings.ToUpper(line)
				switch {
				case strings.Contains(upper, "ERROR"):
					line = colorize(colorRed, line)
				case strings.Contains(upper, "WARNING"):
					line = colorize(colorYellow, line)
				}
				fmt.Fprintln(w, line)
			}
			return nil
		}, tune)
	},
}

func init() {
	logsCmd.Flags().Int("lines", 120, "number of lines to fetch (1-1000)")
	logsCmd.Flags().String("level", "all", "filter: all, warnings or errors")
}

// --- control ---

var controlCmd = &cobra.Command{
	Use:       "control <bot|ollama> <start|stop|restart>",
	Short:     "Start, stop or restart the bot or Ollama",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{controlplane.TargetBot, controlplane.TargetOllama},
	RunE: func(cmd *cobra.Command, args []string) error {
		target, action := args[0], args[1]
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			switch target {
			case controlplane.TargetBot:
				return report(c.ctrl, c.ctrl.ControlBot(ctx, action))
			case controlplane.TargetOllama:
				return report(c.ctrl, c.ctrl.ControlOllama(ctx, action))
			}
			return fmt.Errorf("unknown target %q: want bot or ollama", target)
		})
	},
}

var sequenceCmd = &cobra.Command{
	Use:   "sequence",
	Short: "Start Ollama, then restart the bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			printStep("Starting Ollama and restarting the bot...")
			return report(c.ctrl, c.ctrl.ExecuteSequence(ctx))
		})
	},
}

var estopCmd = &cobra.Command{
	Use:   "estop",
	Short: "Emergency stop: halt the bot immediately",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			c.ctrl.EmergencyStop(ctx)
			c.ctrl.Wait()
			b := c.ctrl.Snapshot().Banner
			if b.Kind == state.BannerError {
				printError("%s", b.Text)
				return errReported
			}
			printSuccess("%s", b.Text)
			return nil
		})
	},
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List chat sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			if err := c.ctrl.LoadSessions(ctx); err != nil {
				return report(c.ctrl, err)
			}
			var rows [][]string
			for _, s := range c.ctrl.Snapshot().Sessions {
				rows = append(rows, []string{strconv.FormatInt(s.ID, 10), s.DisplayName, strconv.Itoa(s.MessageCount), s.CreatedAt})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "NAME", "MESSAGES", "CREATED"}, rows)
			return nil
		})
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the latest messages of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			if err := c.ctrl.SelectSession(ctx, &id); err != nil {
				return report(c.ctrl, err)
			}
			w := cmd.OutOrStdout()
			for _, m := range c.ctrl.Snapshot().Messages {
				fmt.Fprintf(w, "%s %s\n", colorize(colorCyan, "["+m.Role+"]"), m.Content)
			}
			return nil
		}, func(o *dashboard.Options) { o.MessageLimit = intFlag(cmd, "limit") })
	},
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear <id>",
	Short: "Delete every message in a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			_, err := c.ctrl.ClearSession(ctx, id)
			return report(c.ctrl, err)
		})
	},
}

func init() {
	sessionsShowCmd.Flags().Int("limit", 10, "number of messages")
	sessionsCmd.AddCommand(sessionsShowCmd, sessionsClearCmd)
}

// --- knowledge ---

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "List knowledge sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			if err := c.ctrl.LoadKnowledge(ctx); err != nil {
				return report(c.ctrl, err)
			}
			var rows [][]string
			for _, k := range c.ctrl.Snapshot().Knowledge {
				rows = append(rows, []string{k.ID, k.Title, k.Status, strconv.Itoa(k.ChunkCount), k.TextProfileLabel, strconv.Itoa(len(k.Warnings))})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "TITLE", "STATUS", "CHUNKS", "PROFILE", "WARNINGS"}, rows)
			return nil
		})
	},
}

func uploadOptions(cmd *cobra.Command, cfg config.Config) controlplane.UploadOptions {
	opts := controlplane.UploadOptions{
		ExtractImages:      cfg.Watch.ExtractImages,
		VisionDescriptions: cfg.Watch.VisionDescriptions,
	}
	if cmd.Flags().Changed("extract-images") {
		opts.ExtractImages = boolFlag(cmd, "extract-images")
	}
	if cmd.Flags().Changed("vision") {
		opts.VisionDescriptions = boolFlag(cmd, "vision")
	}
	return opts
}

var knowledgeUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Ingest a .pdf, .txt or .docx file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			res, err := c.ctrl.UploadKnowledgeFile(ctx, args[0], uploadOptions(cmd, c.cfg))
			if err == nil {
				if warnings, ok := res["warnings"].([]any); ok {
					for _, w := range warnings {
						printWarning("%v", w)
					}
				}
			}
			return report(c.ctrl, err)
		})
	},
}

var knowledgeToggleCmd = &cobra.Command{
	Use:   "toggle <id> <on|off>",
	Short: "Activate or deactivate a knowledge source",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var active bool
		switch args[1] {
		case "on":
			active = true
		case "off":
		default:
			return fmt.Errorf("want on or off, got %q", args[1])
		}
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			if err := c.ctrl.LoadKnowledge(ctx); err != nil {
				return report(c.ctrl, err)
			}
			return report(c.ctrl, c.ctrl.ToggleKnowledge(ctx, args[0], active))
		})
	},
}

var knowledgeDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a knowledge source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			return report(c.ctrl, c.ctrl.DeleteKnowledge(ctx, args[0]))
		})
	},
}

var knowledgeWatchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Upload files dropped into a folder until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			setupLogging(c.cfg.Log.Level, os.Stderr)
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			w := watch.New(args[0], c.ctrl, uploadOptions(cmd, c.cfg), dashboard.UploadExtensions, 0)
			printStep("Watching %s (uploaded files move to %s/)", args[0], watch.ArchiveDir)
			return w.Run(ctx)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{knowledgeUploadCmd, knowledgeWatchCmd} {
		c.Flags().Bool("extract-images", false, "extract embedded images (overrides watch.extract_images)")
		c.Flags().Bool("vision", false, "describe images with the vision model (overrides watch.vision_descriptions)")
	}
	knowledgeCmd.AddCommand(knowledgeUploadCmd, knowledgeToggleCmd, knowledgeDeleteCmd, knowledgeWatchCmd)
}

// --- remote config ---

var remoteConfigCmd = &cobra.Command{
	Use:   "remote-config",
	Short: "Show or edit the assistant's server configuration",
}

var remoteConfigShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the server configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			if err := c.ctrl.LoadConfig(ctx); err != nil {
				return report(c.ctrl, err)
			}
			data := c.ctrl.Snapshot().ConfigData
			w := cmd.OutOrStdout()
			if boolFlag(cmd, "yaml") {
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(map[string]any(data))
			}
			return printJSON(w, data)
		})
	},
}

// draftSetters map remote-config field names onto the editable draft.
var draftSetters = map[string]func(d *state.ConfigDraft, v string) error{
	"model": func(d *state.ConfigDraft, v string) error { d.Model = v; return nil },
	"temperature": func(d *state.ConfigDraft, v string) (err error) {
		d.Temperature, err = strconv.ParseFloat(v, 64)
		return err
	},
	"max_tokens": func(d *state.ConfigDraft, v string) (err error) {
		d.MaxTokens, err = strconv.Atoi(v)
		return err
	},
	"top_k": func(d *state.ConfigDraft, v string) (err error) {
		d.TopK, err = strconv.Atoi(v)
		return err
	},
	"rag": func(d *state.ConfigDraft, v string) (err error) {
		d.RAGEnabled, err = strconv.ParseBool(v)
		return err
	},
	"ocr": func(d *state.ConfigDraft, v string) (err error) {
		d.OCREnabled, err = strconv.ParseBool(v)
		return err
	},
	"vision": func(d *state.ConfigDraft, v string) (err error) {
		d.VisionEnabled, err = strconv.ParseBool(v)
		return err
	},
	"extract_images": func(d *state.ConfigDraft, v string) (err error) {
		d.ExtractImages, err = strconv.ParseBool(v)
		return err
	},
}

var remoteConfigSetCmd = &cobra.Command{
	Use:   "set <field>=<value>...",
	Short: "Change model, temperature, max_tokens, top_k, rag, ocr, vision or extract_images",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		type edit struct {
			set   func(*state.ConfigDraft, string) error
			field string
			value string
		}
		var edits []edit
		for _, arg := range args {
			field, value, ok := strings.Cut(arg, "=")
			set, known := draftSetters[field]
			if !ok || !known {
				return fmt.Errorf("invalid assignment %q", arg)
			}
			edits = append(edits, edit{set, field, value})
		}
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			if err := c.ctrl.LoadConfig(ctx); err != nil {
				return report(c.ctrl, err)
			}
			var parseErr error
			c.ctrl.EditConfig(func(d *state.ConfigDraft) {
				for _, e := range edits {
					if err := e.set(d, e.value); err != nil && parseErr == nil {
						parseErr = fmt.Errorf("invalid value for %s: %w", e.field, err)
					}
				}
			})
			if parseErr != nil {
				return parseErr
			}
			return report(c.ctrl, c.ctrl.SaveConfig(ctx))
		})
	},
}

func init() {
	remoteConfigShowCmd.Flags().Bool("yaml", false, "print as YAML instead of JSON")
	remoteConfigCmd.AddCommand(remoteConfigShowCmd, remoteConfigSetCmd)
}

// --- autonomy ---

var autonomyCmd = &cobra.Command{
	Use:   "autonomy",
	Short: "Show the autonomy loop status and recent actions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			if err := c.ctrl.LoadAutonomy(ctx); err != nil {
				return report(c.ctrl, err)
			}
			snap := c.ctrl.Snapshot()
			w := cmd.OutOrStdout()
			a := snap.Autonomy
			printStatus(w, "Status", "%s", a.Status)
			printStatus(w, "Always on", "%t", a.IsAlwaysOn)
			printStatus(w, "Last tick", "%s %s", a.LastTickAt, a.LastAction)
			printStatus(w, "Errors", "%d", a.ErrorCount)
			if a.LastError != "" {
				printStatus(w, "Last error", "%s", colorize(colorRed, a.LastError))
			}
			var rows [][]string
			for _, e := range snap.AutonomyLogs {
				rows = append(rows, []string{e.CreatedAt, e.Action, e.Detail})
			}
			printTable(w, []string{"AT", "ACTION", "DETAIL"}, rows)
			return nil
		}, func(o *dashboard.Options) { o.AutonomyLogLimit = intFlag(cmd, "limit") })
	},
}

var autonomyStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Ask the control plane to start the autonomy loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			return report(c.ctrl, c.ctrl.StartAutonomy(ctx))
		})
	},
}

var autonomyStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask the control plane to stop the autonomy loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			return report(c.ctrl, c.ctrl.StopAutonomy(ctx))
		})
	},
}

func init() {
	autonomyCmd.Flags().Int("limit", 50, "number of log entries")
	autonomyCmd.AddCommand(autonomyStartCmd, autonomyStopCmd)
}

var sysinfoCmd = &cobra.Command{
	Use:   "sysinfo",
	Short: "Show control-plane runtime information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			if err := c.ctrl.LoadSystem(ctx); err != nil {
				return report(c.ctrl, err)
			}
			info := c.ctrl.Snapshot().System
			w := cmd.OutOrStdout()
			printStatus(w, "Runtime", "%s", info.RuntimeVersion)
			printStatus(w, "Platform", "%s", info.Platform)
			printStatus(w, "Started", "%s", time.Unix(info.APIStartedAt, 0).Format(time.DateTime))
			printStatus(w, "Working dir", "%s", info.CWD)
			return nil
		})
	},
}

// --- journal ---

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show the local record of operator commands",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			entries, err := c.journal.Recent(ctx, journal.Query{
				Limit:      intFlag(cmd, "limit"),
				FailedOnly: boolFlag(cmd, "failed"),
				Command:    stringsFlag(cmd, "command"),
			})
			if err != nil {
				return err
			}
			var rows [][]string
			for _, e := range entries {
				result := colorize(colorGreen, "ok")
				if !e.OK {
					result = colorize(colorRed, "failed")
				}
				rows = append(rows, []string{e.CreatedAt.Local().Format(time.DateTime), e.Kind, e.Command, result, e.Message})
			}
			printTable(cmd.OutOrStdout(), []string{"AT", "KIND", "COMMAND", "RESULT", "MESSAGE"}, rows)
			return nil
		})
	},
}

var journalPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete journal entries older than a duration",
	RunE: func(cmd *cobra.Command, args []string) error {
		age, err := time.ParseDuration(stringsFlag(cmd, "older-than"))
		if err != nil {
			return fmt.Errorf("invalid --older-than: %w", err)
		}
		return withConsole(cmd, func(ctx context.Context, c *console) error {
			n, err := c.journal.Prune(ctx, time.Now().Add(-age))
			if err != nil {
				return err
			}
			printSuccess("Pruned %d entries", n)
			return nil
		})
	},
}

func init() {
	journalCmd.Flags().Int("limit", 20, "maximum number of entries")
	journalCmd.Flags().Bool("failed", false, "only failed commands")
	journalCmd.Flags().String("command", "", "filter by command name")
	journalPruneCmd.Flags().String("older-than", "720h", "age threshold")
	journalCmd.AddCommand(journalPruneCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update local console configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login [token]",
	Short: "Store the control-plane API token",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var token string
		if len(args) == 1 {
			token = args[0]
		} else {
			fmt.Fprint(os.Stderr, "API token: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading token: %w", err)
			}
			token = line
		}
		token = strings.TrimSpace(token)
		if token == "" {
			return fmt.Errorf("empty token")
		}
		if err := config.SetAPIToken(token); err != nil {
			return fmt.Errorf("storing token: %w", err)
		}
		printSuccess("Token saved")
		return nil
	},
}

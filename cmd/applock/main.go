package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "applock",
	Short: "applock CLI - drive the biometric gate over its HTTP bridge",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadConfig()
		if !cmd.Flags().Changed("format") && cfg.Format != "" {
			outputFormat = cfg.Format
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json, raw")
	rootCmd.PersistentFlags().StringVar(&outputField, "field", "", "Output a specific field (raw mode)")

	rootCmd.AddCommand(
		configCmd(),
		statusCmd(),
		lockCmd(),
		lifecycleCmd(),
		settingsCmd(),
		sessionCmd(),
		credentialCmd(),
		loginCmd(),
		stepUpCmd(),
		simCmd(),
		auditCmd(),
	)
}

// ---- config ----

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage CLI configuration"}

	cmd.AddCommand(&cobra.Command{
		Use:   "set-address <url>",
		Short: "Set the applockd address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Address = strings.TrimRight(args[0], "/")
			if err := saveConfig(); err != nil {
				return err
			}
			printSuccess("Address saved: " + cfg.Address)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set-format <table|json|raw>",
		Short: "Set the default output format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "table", "json", "raw":
			default:
				err := fmt.Errorf("unknown format %q", args[0])
				printError(err.Error())
				return err
			}
			cfg.Format = args[0]
			if err := saveConfig(); err != nil {
				return err
			}
			printSuccess("Format saved: " + cfg.Format)
			return nil
		},
	})
	return cmd
}

// ---- status ----

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon health and device capability",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			health, err := c.get("/v1/sys/health")
			if err != nil {
				printError(err.Error())
				return err
			}
			capability, err := c.get("/v1/capability")
			if err != nil {
				printError(err.Error())
				return err
			}
			health["capability"] = capability
			printResult(health)
			return nil
		},
	}
}

// ---- lock ----

func lockCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "lock", Short: "Inspect and drive the app-lock overlay"}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the lock overlay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return show(newClient().get("/v1/lock/overlay"))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rendered",
		Short: "Report that the lock overlay is on screen",
		RunE: func(cmd *cobra.Command, args []string) error {
			return show(newClient().post("/v1/lock/rendered", nil))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "retry",
		Short: "Press the overlay's retry button",
		RunE: func(cmd *cobra.Command, args []string) error {
			return show(newClient().post("/v1/lock/retry", nil))
		},
	})
	return cmd
}

func lifecycleCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "lifecycle <active|inactive|background>",
		Short:     "Report an app lifecycle transition",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"active", "inactive", "background"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return show(newClient().post("/v1/lifecycle", map[string]string{"state": args[0]}))
		},
	}
}

// ---- settings ----

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "settings", Short: "Manage security policy toggles"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the security toggles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showToggles(newClient().get("/v1/settings/toggles"))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <flag> <on|off>",
		Short: "Turn a toggle on or off (turning on asks for a biometric prompt)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled, err := parseSwitch(args[1])
			if err != nil {
				printError(err.Error())
				return err
			}
			path := "/v1/settings/toggles/" + url.PathEscape(args[0])
			return showToggles(newClient().put(path, map[string]bool{"enabled": enabled}))
		},
	})
	return cmd
}

func showToggles(resp map[string]any, err error) error {
	if err != nil {
		printError(err.Error())
		return err
	}
	rows, _ := resp["toggles"].([]any)
	printRows(rows, "flag", "enabled", "disabled", "disabled_reason")
	return nil
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "enable", "enabled":
		return true, nil
	case "off", "false", "disable", "disabled":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

// ---- session / credential / login ----

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "session", Short: "Manage the stored session artifact"}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <access-token>",
		Short: "Store a session access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := newClient().post("/v1/session", map[string]string{"access_token": args[0]})
			return done("Session stored", err)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().delete("/v1/session"); err != nil {
				printError(err.Error())
				return err
			}
			printSuccess("Session cleared")
			return nil
		},
	})
	return cmd
}

func credentialCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "credential", Short: "Manage the biometric login credential"}

	cmd.AddCommand(&cobra.Command{
		Use:   "create <identity> <subject-id>",
		Short: "Save the login credential (requires biometric login to be on)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"identity": args[0], "subject_id": args[1]}
			_, err := newClient().post("/v1/credential", body)
			return done("Credential saved", err)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show whether a credential is stored",
		RunE: func(cmd *cobra.Command, args []string) error {
			return show(newClient().get("/v1/credential"))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Destroy the stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().delete("/v1/credential"); err != nil {
				printError(err.Error())
				return err
			}
			printSuccess("Credential destroyed")
			return nil
		},
	})
	return cmd
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in with biometrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return show(newClient().post("/v1/auth/biometric-login", nil))
		},
	}
}

// ---- step-up ----

func stepUpCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "stepup", Short: "Drive transfer step-up authentication"}

	var (
		description string
		amount      string
		currency    string
		manual      bool
		flag        string
	)
	request := &cobra.Command{
		Use:   "request <title>",
		Short: "Open a step-up session and mount it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"title":        args[0],
				"description":  description,
				"auto_trigger": !manual,
			}
			if flag != "" {
				body["flag"] = flag
			}
			if amount != "" {
				minor, err := parseMinor(amount)
				if err != nil {
					printError(err.Error())
					return err
				}
				body["amount"] = map[string]any{"minor": minor, "currency": currency}
			}
			c := newClient()
			opened, err := c.post("/v1/stepup/", body)
			if err != nil {
				printError(err.Error())
				return err
			}
			id, _ := opened["id"].(string)
			return show(c.post("/v1/stepup/"+url.PathEscape(id)+"/mount", nil))
		},
	}
	request.Flags().StringVar(&description, "description", "", "Modal description")
	request.Flags().StringVar(&amount, "amount", "", "Transfer amount, e.g. 12500.00")
	request.Flags().StringVar(&currency, "currency", "NGN", "Amount currency")
	request.Flags().BoolVar(&manual, "manual", false, "Do not prompt on mount")
	request.Flags().StringVar(&flag, "flag", "", "Policy flag guarding the action")
	cmd.AddCommand(request)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a step-up modal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return show(newClient().get("/v1/stepup/" + url.PathEscape(args[0])))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "authenticate <id>",
		Short: "Press the modal's authenticate button",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return show(newClient().post("/v1/stepup/"+url.PathEscape(args[0])+"/authenticate", nil))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel <id>",
		Short: "Dismiss a step-up modal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return show(newClient().post("/v1/stepup/"+url.PathEscape(args[0])+"/cancel", nil))
		},
	})
	return cmd
}

// parseMinor converts "12500.5" to 1250050.
func parseMinor(s string) (int64, error) {
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount %q has more than two decimals", s)
	}
	frac += strings.Repeat("0", 2-len(frac))
	n, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return n, nil
}

// ---- simulator ----

func simCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "sim", Short: "Control the simulated biometric platform (dev mode)"}

	var (
		noHardware bool
		unenrolled bool
		modalities []string
	)
	capCmd := &cobra.Command{
		Use:   "capability",
		Short: "Set the simulated device capability",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"has_hardware": !noHardware,
				"enrolled":     !unenrolled,
				"modalities":   modalities,
			}
			return show(newClient().put("/v1/sim/capability", body))
		},
	}
	capCmd.Flags().BoolVar(&noHardware, "no-hardware", false, "Simulate a device without a sensor")
	capCmd.Flags().BoolVar(&unenrolled, "unenrolled", false, "Simulate a device with nothing enrolled")
	capCmd.Flags().StringSliceVar(&modalities, "modality", []string{"fingerprint"}, "Enrolled modalities")
	cmd.AddCommand(capCmd)

	var once bool
	outcomeCmd := &cobra.Command{
		Use:   "outcome <success|user_cancel|system_cancel|app_cancel|failure|...>",
		Short: "Set how simulated prompts resolve",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"result": args[0], "queue": once}
			_, err := newClient().put("/v1/sim/outcome", body)
			return done("Outcome set", err)
		},
	}
	outcomeCmd.Flags().BoolVar(&once, "once", false, "Apply to the next prompt only")
	cmd.AddCommand(outcomeCmd)
	return cmd
}

// ---- audit ----

func auditCmd() *cobra.Command {
	var (
		event  string
		since  string
		limit  int
		offset int
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if event != "" {
				q.Set("event", event)
			}
			if since != "" {
				q.Set("since", since)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				q.Set("offset", strconv.Itoa(offset))
			}
			path := "/v1/sys/audit-log"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			resp, err := newClient().get(path)
			if err != nil {
				printError(err.Error())
				return err
			}
			rows, _ := resp["data"].([]any)
			printRows(rows, "timestamp", "event", "subject", "outcome", "detail")
			return nil
		},
	}
	cmd.Flags().StringVar(&event, "event", "", "Filter by event name")
	cmd.Flags().StringVar(&since, "since", "", "Only entries after this RFC3339 time")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entries")
	cmd.Flags().IntVar(&offset, "offset", 0, "Entries to skip")
	return cmd
}

func show(resp map[string]any, err error) error {
	if err != nil {
		printError(err.Error())
		return err
	}
	printResult(resp)
	return nil
}

func done(msg string, err error) error {
	if err != nil {
		printError(err.Error())
		return err
	}
	printSuccess(msg)
	return nil
}

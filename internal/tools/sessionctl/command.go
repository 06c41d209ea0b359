package sessionctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/weapp-session-service/internal/config"
	"github.com/sandeepkv93/weapp-session-service/internal/di"
	"github.com/sandeepkv93/weapp-session-service/internal/domain"
	"github.com/sandeepkv93/weapp-session-service/internal/service"
	"github.com/sandeepkv93/weapp-session-service/internal/tools/common"
	"github.com/sandeepkv93/weapp-session-service/internal/tools/ui"
)

var ErrSessionNotFound = errors.New("no session stored for code")

type options struct {
	configFile string
	envFile    string
	ci         bool
	timeout    time.Duration
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "weapp-session",
		Short:         "Mini-program session service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.configFile != "" {
				_ = os.Setenv("CONFIG_FILE", opts.configFile)
			}
			if opts.envFile != "" {
				_ = os.Setenv("ENV_FILE", opts.envFile)
			}
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", ".env file (overrides ENV_FILE)")
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newInspectCommand(opts))
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := di.InitializeApp(ctx, cfg)
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			return a.Run(ctx)
		},
	}
}

func newInspectCommand(opts *options) *cobra.Command {
	var openID string
	cmd := &cobra.Command{
		Use:   "inspect [code]",
		Short: "Print the session cached under a code or open id",
		Args: func(cmd *cobra.Command, args []string) error {
			if openID == "" && len(args) != 1 {
				return errors.New("inspect needs exactly one code, or --open-id")
			}
			if openID != "" && len(args) != 0 {
				return errors.New("pass either a code or --open-id, not both")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			inspector, err := di.InitializeInspector(cfg)
			if err != nil {
				return fmt.Errorf("initialize inspector: %w", err)
			}
			defer func() { _ = inspector.Backend.Close() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			code := ""
			if len(args) == 1 {
				code = args[0]
			}
			code, rec, err := lookup(ctx, inspector.Cache, code, openID)
			return report(cmd.OutOrStdout(), opts.ci, code, rec, err)
		},
	}
	cmd.Flags().StringVar(&openID, "open-id", "", "look the session up through the open id index")
	cmd.Flags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "store lookup timeout")
	return cmd
}

func lookup(ctx context.Context, cache *service.SessionCache, code, openID string) (string, *domain.SessionRecord, error) {
	if openID != "" {
		c, ok, err := cache.CodeFor(ctx, openID)
		if err != nil {
			return "", nil, err
		}
		if !ok {
			return "", nil, fmt.Errorf("no code indexed for open id %q", openID)
		}
		code = c
	}
	rec, ok, err := cache.GetRecord(ctx, code)
	if err != nil {
		return code, nil, err
	}
	if !ok {
		return code, nil, fmt.Errorf("%w %q", ErrSessionNotFound, code)
	}
	return code, rec, nil
}

func report(w io.Writer, ci bool, code string, rec *domain.SessionRecord, err error) error {
	if ci {
		var details []string
		if rec != nil {
			raw, _ := json.Marshal(rec)
			details = []string{"code=" + code, "record=" + string(raw)}
		}
		if printErr := common.PrintCIResult(w, err == nil, "inspect", details, err); printErr != nil {
			return printErr
		}
		return err
	}
	if err != nil {
		fmt.Fprintln(w, ui.Error(err.Error()))
		return err
	}
	fmt.Fprintln(w, ui.Table("Session "+code, sessionRows(rec)))
	return nil
}

func sessionRows(rec *domain.SessionRecord) []ui.Row {
	rows := []ui.Row{
		{Key: "openId", Value: rec.OpenID},
		{Key: "unionId", Value: rec.UnionID},
		{Key: "userId", Value: rec.UserID},
		{Key: "nickName", Value: rec.NickName},
		{Key: "avatarUrl", Value: rec.AvatarURL},
		{Key: "School", Value: rec.School},
		{Key: "Gender", Value: rawValue(rec.CanonicalGender)},
		{Key: "YearOfBirth", Value: rawValue(rec.YearOfBirth)},
		{Key: "language", Value: rec.Language},
		{Key: "country", Value: rec.Country},
		{Key: "province", Value: rec.Province},
		{Key: "city", Value: rec.City},
	}
	if rec.Gender != nil {
		rows = append(rows, ui.Row{Key: "gender", Value: strconv.Itoa(*rec.Gender)})
	}
	if rec.Watermark != nil {
		rows = append(rows, ui.Row{Key: "watermark.appid", Value: rec.Watermark.AppID})
	}
	return rows
}

func rawValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

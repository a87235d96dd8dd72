package attendcli

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/phillip-england/attendsuite/internal/apiapp"
	"github.com/phillip-england/attendsuite/internal/attendance"
	"github.com/phillip-england/attendsuite/internal/envutil"
	"github.com/phillip-england/attendsuite/internal/security"
	"github.com/phillip-england/attendsuite/internal/sheetstore"
	"github.com/spf13/cobra"
)

var ErrUsage = errors.New("usage")

func usageError(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, a...))
}

// Execute runs the command line in args (without the program name).
func Execute(args []string) error {
	return execute(args, os.Stdout)
}

func execute(args []string, out io.Writer) error {
	root := newRootCmd(out)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func PrintUsage(w io.Writer) {
	root := newRootCmd(w)
	root.SetOut(w)
	_ = root.Usage()
}

func newRootCmd(out io.Writer) *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "attendsuite",
		Short:         "QR attendance sheets backed by Excel workbooks",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "setup" {
				return nil
			}
			if err := envutil.LoadDotEnv(envFile); err != nil {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return usageError("attendsuite <setup|run|mark|import|sample|backup> [...]")
			}
			return usageError("unknown command %q", args[0])
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to .env file")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError("%s: %v", cmd.Name(), err)
	})

	root.AddCommand(
		newSetupCmd(&envFile),
		newRunCmd(),
		newMarkCmd(),
		newImportCmd(),
		newSampleCmd(),
		newBackupCmd(),
	)
	return root
}

func defaultUploadDir() string {
	return envutil.OrDefault("UPLOAD_DIR", "uploads")
}

func newSetupCmd(envFile *string) *cobra.Command {
	var (
		token     string
		uploadDir string
		force     bool
	)
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Write a .env file with an operator token hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printToken := false
			if token == "" {
				generated, err := generateToken()
				if err != nil {
					return err
				}
				token = generated
				printToken = true
			}
			hash, err := security.HashToken(token)
			if err != nil {
				return fmt.Errorf("invalid operator token: %w", err)
			}

			values := map[string]string{
				"API_ADDR":            ":3000",
				"UPLOAD_DIR":          uploadDir,
				"STATIC_DIR":          "public",
				"MAX_UPLOAD_MB":       "10",
				"OPERATOR_TOKEN_HASH": hash,
			}
			if err := envutil.WriteDotEnv(*envFile, values, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", *envFile)
			if printToken {
				fmt.Fprintf(cmd.OutOrStdout(), "operator token: %s\n", token)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "operator-token", "", "operator token for uploads and scans (min 16 chars, generated when empty)")
	cmd.Flags().StringVar(&uploadDir, "upload-dir", "uploads", "directory holding sheet workbooks")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing env file")
	return cmd
}

func generateToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate operator token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the attendance API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := apiapp.Run(ctx, apiapp.DefaultConfigFromEnv()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newMarkCmd() *cobra.Command {
	var sheet, date, name, uploadDir string
	cmd := &cobra.Command{
		Use:   "mark",
		Short: "Mark a person present on a date without the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sheet == "" || date == "" || name == "" {
				return usageError("mark --sheet <key> --date <YYYY-MM-DD> --name <name>")
			}
			store, err := sheetstore.New(dirOrDefault(uploadDir))
			if err != nil {
				return err
			}
			res, err := attendance.NewEngine(store).Update(cmd.Context(), sheet, date, name)
			if err != nil {
				return err
			}
			status := "marked"
			if res.AlreadyMarked {
				status = "already marked"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s on %s (%s!%s)\n", status, res.Name, res.Date, res.Sheet, res.Cell)
			return nil
		},
	}
	cmd.Flags().StringVar(&sheet, "sheet", "", "sheet key")
	cmd.Flags().StringVar(&date, "date", "", "attendance date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&name, "name", "", "name or leading part of a name")
	cmd.Flags().StringVar(&uploadDir, "upload-dir", "", "directory holding sheet workbooks (default $UPLOAD_DIR or uploads)")
	return cmd
}

func newImportCmd() *cobra.Command {
	var sheet, file, uploadDir string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Store an xlsx, xls or csv roster under a sheet key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sheet == "" || file == "" {
				return usageError("import --sheet <key> --file <roster.xlsx|.xls|.csv>")
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			store, err := sheetstore.New(dirOrDefault(uploadDir))
			if err != nil {
				return err
			}
			if err := store.Import(cmd.Context(), sheet, filepath.Base(file), data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s as %s\n", file, sheet)
			return nil
		},
	}
	cmd.Flags().StringVar(&sheet, "sheet", "", "sheet key")
	cmd.Flags().StringVar(&file, "file", "", "roster file to import")
	cmd.Flags().StringVar(&uploadDir, "upload-dir", "", "directory holding sheet workbooks (default $UPLOAD_DIR or uploads)")
	return cmd
}

func newSampleCmd() *cobra.Command {
	var (
		out    string
		people int
		days   int
		from   string
	)
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Write a demo roster with fake names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return usageError("sample --out <file.xlsx>")
			}
			start := time.Now().UTC()
			if from != "" {
				parsed, err := time.Parse("2006-01-02", from)
				if err != nil {
					return usageError("--from must be YYYY-MM-DD, got %q", from)
				}
				start = parsed
			}
			data, err := sheetstore.SampleRoster(people, days, start)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d people, %d days)\n", out, people, days)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output xlsx path")
	cmd.Flags().IntVar(&people, "people", 20, "number of roster rows")
	cmd.Flags().IntVar(&days, "days", 5, "number of date columns")
	cmd.Flags().StringVar(&from, "from", "", "first date column (YYYY-MM-DD, default today)")
	return cmd
}

func newBackupCmd() *cobra.Command {
	var out, uploadDir string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive every stored sheet into a tar.xz file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return usageError("backup --out <file.tar.xz>")
			}
			store, err := sheetstore.New(dirOrDefault(uploadDir))
			if err != nil {
				return err
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			n, err := store.Backup(cmd.Context(), f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(out)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d sheets)\n", out, n)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output archive path")
	cmd.Flags().StringVar(&uploadDir, "upload-dir", "", "directory holding sheet workbooks (default $UPLOAD_DIR or uploads)")
	return cmd
}

func dirOrDefault(dir string) string {
	if dir = strings.TrimSpace(dir); dir != "" {
		return dir
	}
	return defaultUploadDir()
}

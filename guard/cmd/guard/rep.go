package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/rahnavardnetwork/sos/guard/internal/config"
	"github.com/rahnavardnetwork/sos/guard/internal/models"
	"github.com/rahnavardnetwork/sos/guard/internal/repository"
	"github.com/rahnavardnetwork/sos/guard/internal/threat"
	"github.com/rahnavardnetwork/sos/guard/internal/validate"
)

var repCmd = &cobra.Command{
	Use:   "rep",
	Short: "Manage rep accounts",
}

var (
	repUsername string
	repEmail    string
	repFullName string
	repRole     string
	repMFA      bool
)

var repCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a rep account (password is read from stdin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.Type != config.BackendPostgres {
			return errors.New("rep create requires database.type=postgres")
		}
		if repRole != models.RoleRep && repRole != models.RoleAdmin {
			return fmt.Errorf("role must be %q or %q", models.RoleRep, models.RoleAdmin)
		}

		v := newValidator(cfg)
		if res := v.Username(repUsername); !res.Valid {
			return fmt.Errorf("invalid username: %s", strings.Join(res.Errors, "; "))
		}
		if res := v.Email(repEmail); !res.Valid {
			return fmt.Errorf("invalid email: %s", strings.Join(res.Errors, "; "))
		}

		password, err := readPassword()
		if err != nil {
			return err
		}
		hash, err := hashPassword(v, password, cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		repo, err := repository.NewPostgresRepository(cmd.Context(), cfg.Database.Postgres.DSN())
		if err != nil {
			return err
		}
		defer repo.Close()

		rep := &models.Rep{
			ID:           uuid.NewString(),
			Username:     repUsername,
			Email:        repEmail,
			FullName:     repFullName,
			Role:         repRole,
			PasswordHash: hash,
			Active:       true,
			MFAEnabled:   repMFA,
			CreatedAt:    time.Now().UTC(),
		}
		if err := repo.CreateRep(cmd.Context(), rep); err != nil {
			return err
		}
		logger.Info("rep created", "rep_id", rep.ID, "role", rep.Role)
		fmt.Fprintln(cmd.OutOrStdout(), rep.ID)
		return nil
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Check a password against the policy and print its bcrypt hash (reads stdin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		password, err := readPassword()
		if err != nil {
			return err
		}
		hash, err := hashPassword(newValidator(cfg), password, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	repCreateCmd.Flags().StringVar(&repUsername, "username", "", "login name")
	repCreateCmd.Flags().StringVar(&repEmail, "email", "", "email address for MFA codes")
	repCreateCmd.Flags().StringVar(&repFullName, "full-name", "", "display name")
	repCreateCmd.Flags().StringVar(&repRole, "role", models.RoleRep, "rep or admin")
	repCreateCmd.Flags().BoolVar(&repMFA, "mfa", false, "require MFA for this rep")
	_ = repCreateCmd.MarkFlagRequired("username")
	_ = repCreateCmd.MarkFlagRequired("email")

	repCmd.AddCommand(repCreateCmd)
	rootCmd.AddCommand(repCmd)
	rootCmd.AddCommand(hashPasswordCmd)
}

func newValidator(cfg *config.Config) *validate.Validator {
	return validate.New(threat.NewDetector(cfg.Threat), threat.NewSanitizer(),
		cfg.Validation.Password, cfg.Validation.MaxInputLength)
}

// hashPassword enforces the policy, then writes strength hints for
// passwords that pass it but still score low.
func hashPassword(v *validate.Validator, password string, hints io.Writer) (string, error) {
	if res := v.Password(password); !res.Valid {
		return "", fmt.Errorf("password rejected: %s", strings.Join(res.Errors, "; "))
	}
	if score, feedback := validate.Strength(password); len(feedback) > 0 {
		fmt.Fprintf(hints, "warning: password strength %d/4: %s\n", score, strings.Join(feedback, "; "))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func readPassword() (string, error) {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

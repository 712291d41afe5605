package cli

import (
	"github.com/dmitrijs2005/erpkeeper/internal/client/models"
	"github.com/spf13/cobra"
)

func (a *App) registerCommand() *cobra.Command {
	var reg models.Registration

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account; a verification code is emailed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if reg.Password, reg.ConfirmPassword, err = a.newPassword("Password"); err != nil {
				return err
			}
			res, err := a.client.Register(cmd.Context(), reg)
			if err != nil {
				return err
			}
			a.printf("registered %s, check %s for the verification code\n", res.Account.Username, res.Account.Email)
			a.warn(res.Warning)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&reg.FullName, "full-name", "", "full name")
	f.StringVar(&reg.Username, "username", "", "username")
	f.StringVar(&reg.Email, "email", "", "email address")
	f.StringVar(&reg.Phone, "phone", "", "phone number")
	f.StringVar(&reg.CompanyName, "company", "", "company name")
	f.StringVar(&reg.AvatarPath, "avatar", "", "path to a profile picture")
	for _, name := range []string{"full-name", "username", "email", "phone", "company", "avatar"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (a *App) verifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify CODE",
		Short: "Verify the account email with the mailed code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client.VerifyEmail(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.printf("email %s verified\n", res.Account.Email)
			a.warn(res.Warning)
			return nil
		},
	}
}

func (a *App) resendCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resend EMAIL",
		Short: "Send a fresh verification code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client.ResendVerification(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.printf("verification code sent\n")
			a.warn(res.Warning)
			return nil
		},
	}
}

func (a *App) loginCommand() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and cache the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			addr := email
			if addr == "" {
				t, err := a.store.Tokens(ctx)
				if err != nil {
					return err
				}
				addr = t.Email
			}
			addr, err := a.valueOr(addr, "Email")
			if err != nil {
				return err
			}
			pw, err := a.password("Password")
			if err != nil {
				return err
			}

			acc, err := a.client.Login(ctx, addr, pw)
			if err != nil {
				return err
			}
			a.printf("logged in as %s\n", acc.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email (defaults to the last one used)")
	return cmd
}

func (a *App) refreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Rotate the cached token pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.client.Refresh(cmd.Context()); err != nil {
				return err
			}
			a.printf("session refreshed\n")
			return nil
		},
	}
}

func (a *App) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session on the server and locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.client.Logout(cmd.Context()); err != nil {
				return err
			}
			a.printf("logged out\n")
			return nil
		},
	}
}

func (a *App) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			acc, err := a.client.Me(cmd.Context())
			if err != nil {
				return err
			}
			a.printf("%s <%s>\n", acc.FullName, acc.Email)
			a.printf("username: %s\ncompany:  %s\nverified: %t\n", acc.Username, acc.CompanyName, acc.IsVerified)
			if acc.PendingEmail != "" {
				a.printf("pending:  %s\n", acc.PendingEmail)
			}
			return nil
		},
	}
}

func (a *App) changePasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "change-password",
		Short: "Change the password of the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			old, err := a.password("Current password")
			if err != nil {
				return err
			}
			pw, confirm, err := a.newPassword("New password")
			if err != nil {
				return err
			}
			if err := a.client.ChangePassword(cmd.Context(), old, pw, confirm); err != nil {
				return err
			}
			a.printf("password changed\n")
			return nil
		},
	}
}

func (a *App) forgotPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "forgot-password EMAIL",
		Short: "Email a password reset code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client.ForgotPassword(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.printf("if the account exists, a reset code was sent\n")
			a.warn(res.Warning)
			return nil
		},
	}
}

func (a *App) resetPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password CODE",
		Short: "Set a new password with a reset code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, confirm, err := a.newPassword("New password")
			if err != nil {
				return err
			}
			res, err := a.client.ResetPassword(cmd.Context(), args[0], pw, confirm)
			if err != nil {
				return err
			}
			a.printf("password reset, you can log in now\n")
			a.warn(res.Warning)
			return nil
		},
	}
}

func (a *App) changeEmailCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "change-email NEW_EMAIL",
		Short: "Start an email change; a code is sent to the new address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client.ChangeEmail(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.printf("confirmation code sent to %s\n", args[0])
			a.warn(res.Warning)
			return nil
		},
	}
}

func (a *App) confirmEmailCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm-email CODE",
		Short: "Confirm an email change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client.ConfirmEmail(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.printf("email changed to %s\n", res.Account.Email)
			a.warn(res.Warning)
			return nil
		},
	}
}

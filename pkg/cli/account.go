package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/harrisonrobin/famtasks/pkg/auth"
	"github.com/spf13/cobra"
)

var (
	loginName     string
	loginPassword string
	resolveReset  bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the family tasks backend",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app) error {
		in := bufio.NewReader(os.Stdin)
		name, err := promptIfEmpty(in, os.Stdout, "Login: ", loginName)
		if err != nil {
			return err
		}
		password, err := promptIfEmpty(in, os.Stdout, "Password: ", loginPassword)
		if err != nil {
			return err
		}

		tok, user, err := a.client.Login(ctx, name, password, "")
		if err != nil {
			return err
		}
		if err := a.session.Set(ctx, tok, user); err != nil {
			return err
		}
		fmt.Printf("%s Signed in as %s\n", okStyle("✓"), user.FirstName)

		// Upload anything created while signed out.
		if _, err := a.engine.Load(ctx); err != nil {
			a.logger.Printf("sync after login: %v", err)
		}
		return nil
	}),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget cached tasks",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app) error {
		if a.session.Authenticated(ctx) {
			if err := a.client.Logout(ctx); err != nil {
				a.logger.Printf("backend logout: %v", err)
			}
		}
		if err := a.session.Clear(ctx); err != nil {
			return err
		}
		if err := a.engine.Reset(ctx); err != nil {
			return err
		}
		fmt.Println(okStyle("✓"), "Signed out")
		return nil
	}),
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed in user",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app) error {
		user, err := a.session.User(ctx)
		if errors.Is(err, auth.ErrNoToken) {
			fmt.Println("Not signed in.")
			return nil
		}
		if err != nil {
			return err
		}
		valid, err := a.client.Validate(ctx)
		switch {
		case err != nil:
			fmt.Printf("%s (%s), %d coins %s\n", user.FirstName, user.Login, user.Coins, warnStyle("(backend unreachable)"))
		case !valid:
			fmt.Printf("%s (%s) %s\n", user.FirstName, user.Login, failStyle("session expired, run famtasks login"))
		default:
			p, err := a.client.Profile(ctx)
			if err != nil {
				a.logger.Printf("profile: %v", err)
				fmt.Printf("%s (%s), %s, %d coins\n", user.FirstName, user.Login, user.Role, user.Coins)
				return nil
			}
			fmt.Printf("%s (%s), %s, %d coins, %d family coins, %d tasks\n",
				p.User.FirstName, p.User.Login, p.User.Role, p.User.Coins, p.TotalCoins, p.TasksCount)
		}
		return nil
	}),
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Find a reachable backend and remember it",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app) error {
		if resolveReset {
			if err := a.resolver.Invalidate(ctx); err != nil {
				return err
			}
		}
		res, err := a.resolver.Resolve(ctx)
		if err != nil {
			return err
		}
		if !res.Resolved {
			fmt.Printf("%s No backend answered, using %s\n", warnStyle("!"), res.URL)
			return nil
		}
		fmt.Printf("%s %s (%s)\n", okStyle("✓"), res.URL, res.Source)
		return nil
	}),
}

func init() {
	loginCmd.Flags().StringVarP(&loginName, "login", "l", "", "account login")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "account password (prompted when empty)")
	resolveCmd.Flags().BoolVar(&resolveReset, "reset", false, "forget the remembered address first")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, resolveCmd)
}

func promptIfEmpty(in *bufio.Reader, out io.Writer, prompt, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprint(out, prompt)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("%s is required", strings.TrimSuffix(prompt, ": "))
	}
	return line, nil
}

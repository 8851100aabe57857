package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/harrisonrobin/famtasks/pkg/devserver"
	"github.com/spf13/cobra"
)

func main() {
	var (
		addr      string
		publicURL string
		users     []string
	)

	cmd := &cobra.Command{
		Use:   "famtasks-devserver",
		Short: "Serve the family tasks API from memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New(os.Stderr, "", log.LstdFlags)
			srv := devserver.New(devserver.Options{PublicURL: publicURL, Logger: logger})
			for _, u := range users {
				parts := strings.SplitN(u, ":", 3)
				if len(parts) < 2 {
					return fmt.Errorf("--user %q: want login:password[:name]", u)
				}
				name := parts[0]
				if len(parts) == 3 {
					name = parts[2]
				}
				srv.AddUser(parts[0], parts[1], name, "parent")
				logger.Printf("user %s ready", parts[0])
			}
			return srv.Run(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&publicURL, "public-url", "", "URL advertised on /api/cloudflare-info")
	cmd.Flags().StringArrayVar(&users, "user", []string{"parent:parent"}, "account as login:password[:name], repeatable")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var childAge int

var familyCmd = &cobra.Command{
	Use:   "family",
	Short: "Show your family and their coins",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app) error {
		members, err := a.client.Family(ctx)
		if err != nil {
			return err
		}
		renderMembers(os.Stdout, members)
		return nil
	}),
}

var familyAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a child to your family",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if childAge < 0 {
			return fmt.Errorf("age must not be negative")
		}
		name := strings.Join(args, " ")
		return withApp(func(ctx context.Context, a *app) error {
			id, err := a.client.CreateChild(ctx, name, childAge)
			if err != nil {
				return err
			}
			fmt.Printf("%s Added %s %s\n", okStyle("✓"), name, idStyle(fmt.Sprintf("(id %d)", id)))
			return nil
		})(cmd, args)
	},
}

func init() {
	familyAddCmd.Flags().IntVar(&childAge, "age", 0, "child's age")
	familyCmd.AddCommand(familyAddCmd)
	rootCmd.AddCommand(familyCmd)
}

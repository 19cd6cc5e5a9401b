package cmd

import (
	"fmt"

	"github.com/etnz/debinspect/deb"
	"github.com/spf13/cobra"
)

func newCompareCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compare A B",
		Short: "compare two package versions",
		Long:  "compare prints '<', '=' or '>' as version A is older than, equal to or newer than version B.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := deb.CompareVersions(args[0], args[1])
			if err != nil {
				return err
			}
			symbol := "="
			switch {
			case c < 0:
				symbol = "<"
			case c > 0:
				symbol = ">"
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), symbol)
			return err
		},
	}
}

func newSortCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sort VERSION...",
		Short: "sort package versions, oldest first",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			versions := append([]string(nil), args...)
			if err := deb.SortVersions(versions); err != nil {
				return err
			}
			for _, v := range versions {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), v); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newBumpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "bump VERSION",
		Short: "print the smallest sensible version newer than VERSION",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := deb.ParseVersion(args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), deb.BumpVersion(args[0]))
			return err
		},
	}
}

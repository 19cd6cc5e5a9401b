package cmd

import (
	"fmt"

	"github.com/etnz/debinspect/deb"
	"github.com/spf13/cobra"
)

const (
	flagLenient = "lenient"
	flagHeader  = "header"
)

func newInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect FILE.deb...",
		Short: "print the digests and control headers of binary packages",
		Args:  cobra.MinimumNArgs(1),
		RunE:  inspect,
	}
	cmd.Flags().Bool(flagLenient, false, "do not require the Package, Version and Architecture headers")
	cmd.Flags().String(flagHeader, "", "print only the value of this header")
	return cmd
}

// packageOptions returns the deb options selected by flags and configuration.
func packageOptions(cmd *cobra.Command) []deb.Option {
	lenient, _ := cmd.Flags().GetBool(flagLenient)
	if lenient || configFrom(cmd.Context()).Lenient {
		return []deb.Option{deb.WithLenientHeaders()}
	}
	return nil
}

func inspect(cmd *cobra.Command, args []string) error {
	header, _ := cmd.Flags().GetString(flagHeader)
	out := cmd.OutOrStdout()
	opts := packageOptions(cmd)

	for i, path := range args {
		pkg, err := deb.Open(cmd.Context(), path, opts...)
		if err != nil {
			return err
		}
		if header != "" {
			value, err := pkg.Header(header)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			fmt.Fprintln(out, value)
			continue
		}
		if i > 0 {
			fmt.Fprintln(out)
		}
		if err := pkg.WriteReport(out); err != nil {
			return err
		}
	}
	return nil
}

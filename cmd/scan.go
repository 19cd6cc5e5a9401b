package cmd

import (
	"fmt"
	"os"

	"github.com/etnz/debinspect/apt"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

const (
	flagOut        = "out"
	flagSigningKey = "signing-key"
)

// signingKeyEnv holds an armored private key used when --signing-key is not set.
const signingKeyEnv = "GPG_PRIVATE_KEY"

func newScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan DIR",
		Short: "index every .deb under a directory",
		Long: "scan inspects every .deb under DIR and prints the resulting Packages index. " +
			"With --out, Packages, Packages.gz and Release are written to that directory instead, " +
			"plus InRelease and Release.key when a signing key is given.",
		Args: cobra.ExactArgs(1),
		RunE: scan,
	}
	cmd.Flags().String(flagOut, "", "directory receiving Packages, Packages.gz and Release")
	cmd.Flags().String(flagSigningKey, "", "armored private key signing the Release file (default $"+signingKeyEnv+")")
	cmd.Flags().Bool(flagLenient, false, "do not require the Package, Version and Architecture headers")
	return cmd
}

func scan(cmd *cobra.Command, args []string) error {
	log := logr.FromContextOrDiscard(cmd.Context())
	outDir, _ := cmd.Flags().GetString(flagOut)
	key, err := signingKey(cmd)
	if err != nil {
		return err
	}

	idx, scanErr := apt.Scan(cmd.Context(), args[0], packageOptions(cmd)...)
	if idx == nil {
		return scanErr
	}
	log.Info("scanned pool", "dir", args[0], "packages", idx.Len())

	if outDir == "" {
		if err := idx.WritePackages(cmd.OutOrStdout()); err != nil {
			return err
		}
	} else if err := idx.SaveSignedTo(outDir, configFrom(cmd.Context()).ArchiveInfo, key); err != nil {
		return err
	}
	// Unreadable packages are reported after the index is written.
	return scanErr
}

func signingKey(cmd *cobra.Command) (string, error) {
	path, _ := cmd.Flags().GetString(flagSigningKey)
	if path == "" {
		return os.Getenv(signingKeyEnv), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading signing key: %w", err)
	}
	return string(data), nil
}
